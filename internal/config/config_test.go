package config

import (
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDecodeConfigDefaults(t *testing.T) {
	cfg := EmptyDecodeConfig()

	if cfg.GetSpoolDir() != "" {
		t.Errorf("GetSpoolDir() = %q, want empty", cfg.GetSpoolDir())
	}
	if cfg.GetErrorFile() != "DECODE.ERR" {
		t.Errorf("GetErrorFile() = %q, want DECODE.ERR", cfg.GetErrorFile())
	}
	if cfg.GetDLACLegacyTab() {
		t.Error("GetDLACLegacyTab() = true, want false")
	}
	if cfg.GetRSR() {
		t.Error("GetRSR() = true, want false")
	}
	if cfg.GetRSRWindowSecs() != 10 || cfg.GetRSREverySecs() != 10 {
		t.Errorf("RSR window/every = %d/%d, want 10/10",
			cfg.GetRSRWindowSecs(), cfg.GetRSREverySecs())
	}

	syn := cfg.SynthesisConfig()
	if syn.METARExpiration != 120*time.Minute {
		t.Errorf("METARExpiration = %v, want 2h", syn.METARExpiration)
	}
	if syn.ServiceStatusExpiration != 40*time.Second {
		t.Errorf("ServiceStatusExpiration = %v, want 40s", syn.ServiceStatusExpiration)
	}
	if syn.TWGODefaultExpiration != 61*time.Minute {
		t.Errorf("TWGODefaultExpiration = %v, want 61m", syn.TWGODefaultExpiration)
	}
	if !syn.PIREPExpireFromReportTime {
		t.Error("PIREPExpireFromReportTime = false, want true")
	}

	ddp := cfg.DedupConfig()
	if ddp.ExpireAfter != 45*time.Minute || ddp.ExpungeEvery != 10*time.Minute {
		t.Errorf("dedup lifecycle = %v/%v, want 45m/10m", ddp.ExpireAfter, ddp.ExpungeEvery)
	}
	if ddp.StorePIREPs {
		t.Error("StorePIREPs = true, want false")
	}
}

func TestLoadDecodeConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "decode.json")

	testJSON := `{
  "spool_dir": "/var/spool/fisb",
  "rsr": true,
  "rsr_window_secs": 30,
  "metar_expiration_mins": 90,
  "dedup_store_pireps": true
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadDecodeConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.GetSpoolDir() != "/var/spool/fisb" {
		t.Errorf("GetSpoolDir() = %q, want /var/spool/fisb", cfg.GetSpoolDir())
	}
	if !cfg.GetRSR() {
		t.Error("GetRSR() = false, want true")
	}
	if cfg.GetRSRWindowSecs() != 30 {
		t.Errorf("GetRSRWindowSecs() = %d, want 30", cfg.GetRSRWindowSecs())
	}
	// Unset fields keep defaults.
	if cfg.GetRSREverySecs() != 10 {
		t.Errorf("GetRSREverySecs() = %d, want 10", cfg.GetRSREverySecs())
	}
	if got := cfg.SynthesisConfig().METARExpiration; got != 90*time.Minute {
		t.Errorf("METARExpiration = %v, want 90m", got)
	}
	if !cfg.DedupConfig().StorePIREPs {
		t.Error("StorePIREPs = false, want true")
	}
}

func TestLoadDecodeConfigRejectsBadValues(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "decode.json")

	testJSON := `{"rsr_window_secs": -5}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	if _, err := LoadDecodeConfig(configPath); err == nil {
		t.Error("Expected error for negative rsr_window_secs")
	}
}

func TestLoadConfigRejectsNonJSONExtension(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "decode.yaml")
	if err := os.WriteFile(configPath, []byte(`{}`), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	if _, err := LoadDecodeConfig(configPath); err == nil {
		t.Error("Expected error for .yaml extension")
	}
	if _, err := LoadHarvestConfig(configPath); err == nil {
		t.Error("Expected error for .yaml extension")
	}
}

func TestHarvestConfigDefaults(t *testing.T) {
	cfg := EmptyHarvestConfig()

	if cfg.GetSpoolDir() != "spool" {
		t.Errorf("GetSpoolDir() = %q, want spool", cfg.GetSpoolDir())
	}
	if cfg.GetDBPath() != "harvest.db" {
		t.Errorf("GetDBPath() = %q, want harvest.db", cfg.GetDBPath())
	}
	if cfg.GetErrorFile() != "HARVEST.ERR" {
		t.Errorf("GetErrorFile() = %q, want HARVEST.ERR", cfg.GetErrorFile())
	}
	if cfg.GetMaintInterval() != 10*time.Second {
		t.Errorf("GetMaintInterval() = %v, want 10s", cfg.GetMaintInterval())
	}
	if !cfg.GetExpireMessages() {
		t.Error("GetExpireMessages() = false, want true")
	}
	if !cfg.GetAnnotateCRLReports() || !cfg.GetImmediateCRLUpdate() {
		t.Error("CRL handling should default on")
	}
	if !cfg.GetProcessImages() {
		t.Error("GetProcessImages() = false, want true")
	}
	if cfg.GetSmoothImages() {
		t.Error("GetSmoothImages() = true, want false")
	}
	if cfg.GetLocationDB() != "" {
		t.Errorf("GetLocationDB() = %q, want empty (disabled)", cfg.GetLocationDB())
	}
	if cfg.GetImageQuietSeconds() != 10*time.Second {
		t.Errorf("GetImageQuietSeconds() = %v, want 10s", cfg.GetImageQuietSeconds())
	}
	if cfg.GetImageMapConfiguration() != MapShowNoData {
		t.Errorf("GetImageMapConfiguration() = %d, want %d",
			cfg.GetImageMapConfiguration(), MapShowNoData)
	}
	if cfg.GetCloudTopMap() != 4 || cfg.GetRadarMap() != 1 {
		t.Errorf("palettes = %d/%d, want 4/1", cfg.GetCloudTopMap(), cfg.GetRadarMap())
	}
	want := color.NRGBA{R: 0xEC, G: 0xDA, B: 0x96, A: 0xFF}
	if cfg.GetNotIncludedColor() != want {
		t.Errorf("GetNotIncludedColor() = %v, want %v", cfg.GetNotIncludedColor(), want)
	}
	if !cfg.GetTextWxLocationSupport() || !cfg.GetPIREPLocationSupport() {
		t.Error("location support should default on")
	}
	if !cfg.GetSaveUnmatchedPIREPs() {
		t.Error("GetSaveUnmatchedPIREPs() = false, want true")
	}
}

func TestLoadHarvestConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "harvest.json")

	testJSON := `{
  "db_path": "/data/fisb.db",
  "expire_messages": false,
  "image_quiet_secs": 0,
  "image_map_configuration": 0,
  "not_included_color": "#102030",
  "sync_file": "sync.fisb"
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadHarvestConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.GetDBPath() != "/data/fisb.db" {
		t.Errorf("GetDBPath() = %q, want /data/fisb.db", cfg.GetDBPath())
	}
	if cfg.GetExpireMessages() {
		t.Error("GetExpireMessages() = true, want false")
	}
	if cfg.GetImageQuietSeconds() != 0 {
		t.Errorf("GetImageQuietSeconds() = %v, want 0", cfg.GetImageQuietSeconds())
	}
	if cfg.GetImageMapConfiguration() != MapGeneral {
		t.Errorf("GetImageMapConfiguration() = %d, want %d",
			cfg.GetImageMapConfiguration(), MapGeneral)
	}
	want := color.NRGBA{R: 0x10, G: 0x20, B: 0x30, A: 0xFF}
	if cfg.GetNotIncludedColor() != want {
		t.Errorf("GetNotIncludedColor() = %v, want %v", cfg.GetNotIncludedColor(), want)
	}
	if cfg.GetSyncFile() != "sync.fisb" {
		t.Errorf("GetSyncFile() = %q, want sync.fisb", cfg.GetSyncFile())
	}
}

func TestHarvestConfigValidation(t *testing.T) {
	cases := []struct {
		name string
		cfg  HarvestConfig
	}{
		{"negative maint interval", HarvestConfig{MaintIntervalSecs: ptrInt(-1)}},
		{"map configuration out of range", HarvestConfig{ImageMapConfiguration: ptrInt(3)}},
		{"cloudtop palette out of range", HarvestConfig{CloudTopMap: ptrInt(5)}},
		{"radar palette out of range", HarvestConfig{RadarMap: ptrInt(2)}},
		{"malformed color", HarvestConfig{NotIncludedColor: ptrString("ECDA96")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.cfg.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}
