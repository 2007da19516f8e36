package config

import (
	"fmt"
	"image/color"
	"time"
)

// Map rendering configurations.
const (
	MapGeneral    = 0 // blend no-data into the background
	MapTesting    = 1 // high-contrast palette for regression runs
	MapShowNoData = 2 // paint not-included blocks their own color
)

// HarvestConfig configures the spool curator.
type HarvestConfig struct {
	SpoolDir  *string `json:"spool_dir,omitempty"`
	DBPath    *string `json:"db_path,omitempty"`
	ErrorFile *string `json:"error_file,omitempty"`

	MaintIntervalSecs *int `json:"maint_interval_secs,omitempty"`
	RetryDBConnSecs   *int `json:"retry_db_conn_secs,omitempty"`

	ExpireMessages            *bool `json:"expire_messages,omitempty"`
	PrintImmediateExpirations *bool `json:"print_immediate_expirations,omitempty"`
	AnnotateCRLReports        *bool `json:"annotate_crl_reports,omitempty"`
	ImmediateCRLUpdate        *bool `json:"immediate_crl_update,omitempty"`

	ProcessImages         *bool   `json:"process_images,omitempty"`
	ImageDir              *string `json:"image_dir,omitempty"`
	SmoothImages          *bool   `json:"smooth_images,omitempty"`
	ImageQuietSecs        *int    `json:"image_quiet_secs,omitempty"`
	ImageMapConfiguration *int    `json:"image_map_configuration,omitempty"`
	CloudTopMap           *int    `json:"cloudtop_map,omitempty"`
	RadarMap              *int    `json:"radar_map,omitempty"`
	NotIncludedColor      *string `json:"not_included_color,omitempty"`

	SyncFile *string `json:"sync_file,omitempty"`

	LocationDB            *string `json:"location_db,omitempty"`
	TextWxLocationSupport *bool   `json:"text_wx_location_support,omitempty"`
	PIREPLocationSupport  *bool   `json:"pirep_location_support,omitempty"`
	SaveUnmatchedPIREPs   *bool   `json:"save_unmatched_pireps,omitempty"`
	UnmatchedPIREPsFile   *string `json:"unmatched_pireps_file,omitempty"`

	// Test-group replay.
	TGDir        *string `json:"tg_dir,omitempty"`
	TGTriggerDir *string `json:"tg_trigger_dir,omitempty"`
	TGStartDates *string `json:"tg_start_dates,omitempty"`
}

// EmptyHarvestConfig returns a HarvestConfig with all fields nil.
func EmptyHarvestConfig() *HarvestConfig {
	return &HarvestConfig{}
}

// LoadHarvestConfig loads a HarvestConfig from a JSON file.
func LoadHarvestConfig(path string) (*HarvestConfig, error) {
	cfg := EmptyHarvestConfig()
	if err := loadJSONConfig(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *HarvestConfig) Validate() error {
	if c.MaintIntervalSecs != nil && *c.MaintIntervalSecs <= 0 {
		return fmt.Errorf("maint_interval_secs must be positive, got %d", *c.MaintIntervalSecs)
	}
	if c.RetryDBConnSecs != nil && *c.RetryDBConnSecs <= 0 {
		return fmt.Errorf("retry_db_conn_secs must be positive, got %d", *c.RetryDBConnSecs)
	}
	if c.ImageQuietSecs != nil && *c.ImageQuietSecs < 0 {
		return fmt.Errorf("image_quiet_secs must be non-negative, got %d", *c.ImageQuietSecs)
	}
	if c.ImageMapConfiguration != nil {
		if v := *c.ImageMapConfiguration; v < MapGeneral || v > MapShowNoData {
			return fmt.Errorf("image_map_configuration must be 0-2, got %d", v)
		}
	}
	if c.CloudTopMap != nil {
		if v := *c.CloudTopMap; v < 0 || v > 4 {
			return fmt.Errorf("cloudtop_map must be 0-4, got %d", v)
		}
	}
	if c.RadarMap != nil {
		if v := *c.RadarMap; v < 0 || v > 1 {
			return fmt.Errorf("radar_map must be 0-1, got %d", v)
		}
	}
	if c.NotIncludedColor != nil {
		if _, err := parseHexColor(*c.NotIncludedColor); err != nil {
			return err
		}
	}
	return nil
}

func parseHexColor(s string) (color.NRGBA, error) {
	var r, g, b uint8
	if n, err := fmt.Sscanf(s, "#%02x%02x%02x", &r, &g, &b); err != nil || n != 3 {
		return color.NRGBA{}, fmt.Errorf("color must look like #RRGGBB, got %q", s)
	}
	return color.NRGBA{R: r, G: g, B: b, A: 0xFF}, nil
}

// GetSpoolDir returns the directory watched for .msg files.
func (c *HarvestConfig) GetSpoolDir() string {
	if c.SpoolDir == nil {
		return "spool"
	}
	return *c.SpoolDir
}

// GetDBPath returns the sqlite database path.
func (c *HarvestConfig) GetDBPath() string {
	if c.DBPath == nil {
		return "harvest.db"
	}
	return *c.DBPath
}

// GetErrorFile returns the curator error file path.
func (c *HarvestConfig) GetErrorFile() string {
	if c.ErrorFile == nil {
		return "HARVEST.ERR"
	}
	return *c.ErrorFile
}

// GetMaintInterval returns the maintenance sweep interval.
func (c *HarvestConfig) GetMaintInterval() time.Duration {
	if c.MaintIntervalSecs == nil {
		return 10 * time.Second
	}
	return time.Duration(*c.MaintIntervalSecs) * time.Second
}

// GetRetryDBConn returns how long to wait before retrying a failed
// database open.
func (c *HarvestConfig) GetRetryDBConn() time.Duration {
	if c.RetryDBConnSecs == nil {
		return 60 * time.Second
	}
	return time.Duration(*c.RetryDBConnSecs) * time.Second
}

// GetExpireMessages returns whether expired rows are removed.
func (c *HarvestConfig) GetExpireMessages() bool {
	return c.ExpireMessages == nil || *c.ExpireMessages
}

// GetPrintImmediateExpirations returns whether sub-interval
// expirations are logged as they fire.
func (c *HarvestConfig) GetPrintImmediateExpirations() bool {
	return c.PrintImmediateExpirations != nil && *c.PrintImmediateExpirations
}

// GetAnnotateCRLReports returns whether stored CRL reports carry a '*'
// when the matching report is on hand.
func (c *HarvestConfig) GetAnnotateCRLReports() bool {
	return c.AnnotateCRLReports == nil || *c.AnnotateCRLReports
}

// GetImmediateCRLUpdate returns whether an arriving TWGO report
// refreshes its CRL right away rather than at the next sweep.
func (c *HarvestConfig) GetImmediateCRLUpdate() bool {
	return c.ImmediateCRLUpdate == nil || *c.ImmediateCRLUpdate
}

// GetProcessImages returns whether image products are rendered.
func (c *HarvestConfig) GetProcessImages() bool {
	return c.ProcessImages == nil || *c.ProcessImages
}

// GetImageDir returns where rendered maps are written.
func (c *HarvestConfig) GetImageDir() string {
	if c.ImageDir == nil {
		return "images"
	}
	return *c.ImageDir
}

// GetSmoothImages returns whether maps are bilinearly upscaled.
func (c *HarvestConfig) GetSmoothImages() bool {
	return c.SmoothImages != nil && *c.SmoothImages
}

// GetImageQuietSeconds returns how long a map must go without new
// blocks before it is rendered. Zero renders on every sweep.
func (c *HarvestConfig) GetImageQuietSeconds() time.Duration {
	if c.ImageQuietSecs == nil {
		return 10 * time.Second
	}
	return time.Duration(*c.ImageQuietSecs) * time.Second
}

// GetImageMapConfiguration returns the rendering mode.
func (c *HarvestConfig) GetImageMapConfiguration() int {
	if c.ImageMapConfiguration == nil {
		return MapShowNoData
	}
	return *c.ImageMapConfiguration
}

// GetCloudTopMap returns the cloud top palette index.
func (c *HarvestConfig) GetCloudTopMap() int {
	if c.CloudTopMap == nil {
		return 4
	}
	return *c.CloudTopMap
}

// GetRadarMap returns the radar palette index.
func (c *HarvestConfig) GetRadarMap() int {
	if c.RadarMap == nil {
		return 1
	}
	return *c.RadarMap
}

// GetNotIncludedColor returns the fill for blocks the ground station
// did not transmit.
func (c *HarvestConfig) GetNotIncludedColor() color.NRGBA {
	if c.NotIncludedColor == nil {
		return color.NRGBA{R: 0xEC, G: 0xDA, B: 0x96, A: 0xFF}
	}
	col, err := parseHexColor(*c.NotIncludedColor)
	if err != nil {
		return color.NRGBA{R: 0xEC, G: 0xDA, B: 0x96, A: 0xFF}
	}
	return col
}

// GetSyncFile returns the virtual clock sync file path, empty for
// wall-clock operation.
func (c *HarvestConfig) GetSyncFile() string {
	if c.SyncFile == nil {
		return ""
	}
	return *c.SyncFile
}

// GetLocationDB returns the location CSV path, empty when location
// enrichment is disabled.
func (c *HarvestConfig) GetLocationDB() string {
	if c.LocationDB == nil {
		return ""
	}
	return *c.LocationDB
}

// GetTextWxLocationSupport returns whether METAR/TAF/WINDS products
// get station coordinates attached.
func (c *HarvestConfig) GetTextWxLocationSupport() bool {
	return c.TextWxLocationSupport == nil || *c.TextWxLocationSupport
}

// GetPIREPLocationSupport returns whether PIREP /OV clauses are
// resolved to coordinates.
func (c *HarvestConfig) GetPIREPLocationSupport() bool {
	return c.PIREPLocationSupport == nil || *c.PIREPLocationSupport
}

// GetSaveUnmatchedPIREPs returns whether unresolvable PIREPs are
// appended to a file for later study.
func (c *HarvestConfig) GetSaveUnmatchedPIREPs() bool {
	return c.SaveUnmatchedPIREPs == nil || *c.SaveUnmatchedPIREPs
}

// GetUnmatchedPIREPsFile returns where unresolved PIREPs go.
func (c *HarvestConfig) GetUnmatchedPIREPsFile() string {
	if c.UnmatchedPIREPsFile == nil {
		return "unmatched-pireps.txt"
	}
	return *c.UnmatchedPIREPsFile
}

// GetTGDir returns the test-group archive directory.
func (c *HarvestConfig) GetTGDir() string {
	if c.TGDir == nil {
		return ""
	}
	return *c.TGDir
}

// GetTGTriggerDir returns where replay trigger CSVs are written.
func (c *HarvestConfig) GetTGTriggerDir() string {
	if c.TGTriggerDir == nil {
		return ""
	}
	return *c.TGTriggerDir
}

// GetTGStartDates returns the test-group start date table path.
func (c *HarvestConfig) GetTGStartDates() string {
	if c.TGStartDates == nil {
		return ""
	}
	return *c.TGStartDates
}
