package fisb

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// AltitudeBand is the vertical extent of a geometry record. Reference
// is "MSL" or "AGL"; "UNK" when the broadcast did not say.
type AltitudeBand struct {
	Top       int    `json:"top"`
	TopRef    string `json:"top_ref"`
	Bottom    int    `json:"bottom"`
	BottomRef string `json:"bottom_ref"`
}

// Geometry is one geometric record attached to a product. POINT carries
// a single coordinate, POLYGON and POLYLINE carry a coordinate list,
// CIRCLE carries a center plus radii.
type Geometry struct {
	Type        string        `json:"type"` // POINT, POLYGON, POLYLINE, CIRCLE
	Coordinates [][]float64   `json:"coordinates,omitempty"`
	Center      []float64     `json:"center,omitempty"`
	RadiusNM    float64       `json:"radius_nm,omitempty"`
	MinorNM     float64       `json:"minor_nm,omitempty"`
	Altitudes   *AltitudeBand `json:"altitudes,omitempty"`
	StartTime   *time.Time    `json:"start_time,omitempty"`
	StopTime    *time.Time    `json:"stop_time,omitempty"`
	DailyStart  string        `json:"start_hour,omitempty"` // HHMM, hours-only schedules
	DailyStop   string        `json:"stop_hour,omitempty"`
	AirportID   string        `json:"airport_id,omitempty"`
	Element     string        `json:"element,omitempty"`    // G-AIRMET element name
	Conditions  []string      `json:"conditions,omitempty"` // G-AIRMET qualifiers
	Cancelled   bool          `json:"cancelled,omitempty"`
}

// SUAFields carries the special-use-airspace record fields.
type SUAFields struct {
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	ScheduleID     string    `json:"schedule_id"`
	AirspaceID     string    `json:"airspace_id"`
	Status         string    `json:"status"` // P pending, W waiting, H hot
	AirspaceType   string    `json:"airspace_type"`
	AirspaceName   string    `json:"airspace_name"`
	LowAltitude    int       `json:"low_altitude"`
	HighAltitude   int       `json:"high_altitude"`
	SeparationRule string    `json:"separation_rule"`
	ShapeDefined   string    `json:"shape_defined"`
	NFDCID         string    `json:"nfdc_id,omitempty"`
	NFDCName       string    `json:"nfdc_name,omitempty"`
	DAFIFID        string    `json:"dafif_id,omitempty"`
	DAFIFName      string    `json:"dafif_name,omitempty"`
}

// RSRStat is the per-station entry of a reception success rate report.
type RSRStat struct {
	Received int `json:"received"`
	Expected int `json:"expected"`
	Percent  int `json:"percent"`
}

// Product is a fully synthesized FIS-B message. The (Type, UniqueName)
// pair identifies a message for curation: a later product with the same
// pair replaces the earlier one. Optional fields are populated per
// product family and omitted from JSON otherwise.
type Product struct {
	Type       string `json:"type"`
	UniqueName string `json:"unique_name"`
	ProductID  int    `json:"product_id,omitempty"`
	Station    string `json:"station,omitempty"`
	Location   string `json:"location,omitempty"`

	ReceivedTime   time.Time  `json:"rcvd_time"`
	ExpirationTime time.Time  `json:"expiration_time"`
	IssuedTime     *time.Time `json:"issued_time,omitempty"`
	ObservationTime *time.Time `json:"observation_time,omitempty"`
	ValidTime       *time.Time `json:"valid_time,omitempty"`
	ModelRunTime    *time.Time `json:"model_run_time,omitempty"`
	ForUseFromTime  *time.Time `json:"for_use_from_time,omitempty"`
	ForUseToTime    *time.Time `json:"for_use_to_time,omitempty"`
	StartOfActivity *time.Time `json:"start_of_activity_time,omitempty"`
	EndOfValidity   *time.Time `json:"end_of_validity_time,omitempty"`
	PermanentEnd    bool       `json:"permanent_end,omitempty"`

	ValidPeriodBegin *time.Time `json:"valid_period_begin_time,omitempty"`
	ValidPeriodEnd   *time.Time `json:"valid_period_end_time,omitempty"`

	// PIREP fields keyed by their two-letter tag (ov, tm, fl, ...).
	ReportType string            `json:"report_type,omitempty"`
	ReportTime *time.Time        `json:"report_time,omitempty"`
	PIREP      map[string]string `json:"pirep,omitempty"`

	Contents         string     `json:"contents,omitempty"`
	ContentsText     string     `json:"contents_text,omitempty"`
	ContentsGraphics []Geometry `json:"contents_graphics,omitempty"`
	Geometry         []Geometry `json:"geometry,omitempty"`
	GeoJSON          json.RawMessage `json:"geojson,omitempty"`

	// NOTAM family.
	Subtype     string `json:"subtype,omitempty"`
	Number      string `json:"number,omitempty"`
	Accountable string `json:"accountable,omitempty"`
	Affected    string `json:"affected,omitempty"`
	Keyword     string `json:"keyword,omitempty"`

	// FIS-B unavailable.
	Centers  []string `json:"centers,omitempty"`
	Products []string `json:"products,omitempty"`

	// SUA.
	SUA *SUAFields `json:"sua,omitempty"`

	// Image blocks (L2) and assembled images (curator). Bins holds the
	// 128 block bins hex encoded so the JSON stays valid UTF-8.
	AltBlockNumber int    `json:"alt_block_number,omitempty"`
	ScaleFactor    int    `json:"scale_factor,omitempty"`
	Bins           string `json:"bins,omitempty"`
	BoundingBox    [][]float64 `json:"bbox,omitempty"`
	InsertTime     *time.Time  `json:"insert_time,omitempty"`
	NoDigest       bool        `json:"no_msg_digest,omitempty"`

	// CRL.
	CRLProductID int      `json:"crl_product_id,omitempty"`
	RangeNM      int      `json:"range_nm,omitempty"`
	HasOverflow  bool     `json:"has_overflow,omitempty"`
	Reports      []string `json:"reports,omitempty"`
	Complete     bool     `json:"complete,omitempty"`

	// Service status.
	Traffic []string `json:"traffic,omitempty"`

	// Reception success rate.
	Stations map[string]RSRStat `json:"stations,omitempty"`
}

// Digest returns the hex SHA-256 of the product with its receive-side
// fields zeroed, so two transmissions of the same report hash the same.
func (p *Product) Digest() string {
	c := *p
	c.ReceivedTime = time.Time{}
	c.ExpirationTime = time.Time{}
	c.InsertTime = nil
	c.Station = ""
	b, err := json.Marshal(&c)
	if err != nil {
		// Product contains only marshalable fields.
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
