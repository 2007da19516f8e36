// Package config loads the JSON configuration files for the decode
// pipeline and the curator. All fields are pointers so a partial file
// overrides only what it names; the Get accessors supply defaults for
// everything else.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fisb-tools/fisb978/internal/fisb/l2products"
	"github.com/fisb-tools/fisb978/internal/fisb/l3dedup"
)

// DecodeConfig configures the capture-to-spool pipeline.
type DecodeConfig struct {
	SpoolDir  *string `json:"spool_dir,omitempty"`
	ErrorFile *string `json:"error_file,omitempty"`

	// DLAC tab handling: some legacy encoders pack the post-tab space
	// count into 4 bits instead of 6.
	DLACLegacyTab *bool `json:"dlac_legacy_tab,omitempty"`

	// Reception success rate reporting.
	RSR            *bool `json:"rsr,omitempty"`
	RSRWindowSecs  *int  `json:"rsr_window_secs,omitempty"`
	RSREverySecs   *int  `json:"rsr_every_secs,omitempty"`
	RSRUseSiteRate *bool `json:"rsr_use_site_rate,omitempty"`

	// Product expiration policy, minutes unless noted.
	METARExpirationMins         *int  `json:"metar_expiration_mins,omitempty"`
	UnavailableExpirationMins   *int  `json:"unavailable_expiration_mins,omitempty"`
	ServiceStatusExpirationSecs *int  `json:"service_status_expiration_secs,omitempty"`
	RegionalNEXRADMins          *int  `json:"regional_nexrad_expiration_mins,omitempty"`
	CONUSNEXRADMins             *int  `json:"conus_nexrad_expiration_mins,omitempty"`
	TurbulenceMins              *int  `json:"turbulence_expiration_mins,omitempty"`
	IcingMins                   *int  `json:"icing_expiration_mins,omitempty"`
	CloudTopsMins               *int  `json:"cloudtops_expiration_mins,omitempty"`
	LightningMins               *int  `json:"lightning_expiration_mins,omitempty"`
	PIREPMins                   *int  `json:"pirep_expiration_mins,omitempty"`
	PIREPExpireFromReportTime   *bool `json:"pirep_expire_from_report_time,omitempty"`
	TWGODefaultMins             *int  `json:"twgo_default_expiration_mins,omitempty"`
	BypassTWGOSmartExpiration   *bool `json:"bypass_twgo_smart_expiration,omitempty"`
	CancelExpirationMins        *int  `json:"cancel_expiration_mins,omitempty"`

	// Duplicate filter lifecycle.
	DedupExpireMins  *int  `json:"dedup_expire_mins,omitempty"`
	DedupExpungeMins *int  `json:"dedup_expunge_mins,omitempty"`
	DedupStorePIREPs *bool `json:"dedup_store_pireps,omitempty"`
}

// Helper functions to create pointers
func ptrBool(v bool) *bool       { return &v }
func ptrString(v string) *string { return &v }
func ptrInt(v int) *int          { return &v }

// loadJSONConfig validates and reads one config file into out. Files
// must carry a .json extension and stay under 1 MB.
func loadJSONConfig(path string, out interface{}) error {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse config JSON: %w", err)
	}
	return nil
}

// EmptyDecodeConfig returns a DecodeConfig with all fields nil, so
// every accessor reports its default.
func EmptyDecodeConfig() *DecodeConfig {
	return &DecodeConfig{}
}

// LoadDecodeConfig loads a DecodeConfig from a JSON file. Fields
// omitted from the file keep their defaults, so partial configs are
// safe.
func LoadDecodeConfig(path string) (*DecodeConfig, error) {
	cfg := EmptyDecodeConfig()
	if err := loadJSONConfig(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *DecodeConfig) Validate() error {
	positives := map[string]*int{
		"rsr_window_secs":                c.RSRWindowSecs,
		"rsr_every_secs":                 c.RSREverySecs,
		"metar_expiration_mins":          c.METARExpirationMins,
		"service_status_expiration_secs": c.ServiceStatusExpirationSecs,
		"twgo_default_expiration_mins":   c.TWGODefaultMins,
		"dedup_expire_mins":              c.DedupExpireMins,
		"dedup_expunge_mins":             c.DedupExpungeMins,
	}
	for name, v := range positives {
		if v != nil && *v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, *v)
		}
	}
	return nil
}

// GetSpoolDir returns the spool directory, empty for none.
func (c *DecodeConfig) GetSpoolDir() string {
	if c.SpoolDir == nil {
		return ""
	}
	return *c.SpoolDir
}

// GetErrorFile returns the decode error file path.
func (c *DecodeConfig) GetErrorFile() string {
	if c.ErrorFile == nil {
		return "DECODE.ERR"
	}
	return *c.ErrorFile
}

// GetDLACLegacyTab returns whether the 4-bit tab space count applies.
func (c *DecodeConfig) GetDLACLegacyTab() bool {
	return c.DLACLegacyTab != nil && *c.DLACLegacyTab
}

// GetRSR returns whether reception reports are emitted.
func (c *DecodeConfig) GetRSR() bool {
	return c.RSR != nil && *c.RSR
}

// GetRSRWindowSecs returns the reception report window.
func (c *DecodeConfig) GetRSRWindowSecs() int {
	if c.RSRWindowSecs == nil {
		return 10
	}
	return *c.RSRWindowSecs
}

// GetRSREverySecs returns the reception report interval.
func (c *DecodeConfig) GetRSREverySecs() int {
	if c.RSREverySecs == nil {
		return 10
	}
	return *c.RSREverySecs
}

// GetRSRUseSiteRate returns whether the TIS-B nominal rate is the
// expected packet count; otherwise the best observed second is.
func (c *DecodeConfig) GetRSRUseSiteRate() bool {
	return c.RSRUseSiteRate != nil && *c.RSRUseSiteRate
}

func minutes(v *int, def time.Duration) time.Duration {
	if v == nil {
		return def
	}
	return time.Duration(*v) * time.Minute
}

// SynthesisConfig assembles the L2 expiration policy.
func (c *DecodeConfig) SynthesisConfig() l2products.Config {
	d := l2products.DefaultConfig()
	d.METARExpiration = minutes(c.METARExpirationMins, d.METARExpiration)
	d.UnavailableExpiration = minutes(c.UnavailableExpirationMins, d.UnavailableExpiration)
	if c.ServiceStatusExpirationSecs != nil {
		d.ServiceStatusExpiration = time.Duration(*c.ServiceStatusExpirationSecs) * time.Second
	}
	d.RegionalNEXRADExpiration = minutes(c.RegionalNEXRADMins, d.RegionalNEXRADExpiration)
	d.CONUSNEXRADExpiration = minutes(c.CONUSNEXRADMins, d.CONUSNEXRADExpiration)
	d.TurbulenceExpiration = minutes(c.TurbulenceMins, d.TurbulenceExpiration)
	d.IcingExpiration = minutes(c.IcingMins, d.IcingExpiration)
	d.CloudTopsExpiration = minutes(c.CloudTopsMins, d.CloudTopsExpiration)
	d.LightningExpiration = minutes(c.LightningMins, d.LightningExpiration)
	d.PIREPExpiration = minutes(c.PIREPMins, d.PIREPExpiration)
	if c.PIREPExpireFromReportTime != nil {
		d.PIREPExpireFromReportTime = *c.PIREPExpireFromReportTime
	}
	d.TWGODefaultExpiration = minutes(c.TWGODefaultMins, d.TWGODefaultExpiration)
	if c.BypassTWGOSmartExpiration != nil {
		d.BypassTWGOSmartExpiration = *c.BypassTWGOSmartExpiration
	}
	d.CancelExpiration = minutes(c.CancelExpirationMins, d.CancelExpiration)
	return d
}

// DedupConfig assembles the L3 filter lifecycle.
func (c *DecodeConfig) DedupConfig() l3dedup.Config {
	d := l3dedup.DefaultConfig()
	d.ExpireAfter = minutes(c.DedupExpireMins, d.ExpireAfter)
	d.ExpungeEvery = minutes(c.DedupExpungeMins, d.ExpungeEvery)
	if c.DedupStorePIREPs != nil {
		d.StorePIREPs = *c.DedupStorePIREPs
	}
	return d
}
