package fisb

import "time"

// Packet is one decoded ground uplink message: the 8-byte header fields
// plus every frame found in the 424-byte application payload.
type Packet struct {
	Station          string    `json:"station"`
	Latitude         float64   `json:"latitude"`
	Longitude        float64   `json:"longitude"`
	PositionValid    bool      `json:"position_valid"`
	AppDataValid     bool      `json:"app_data_valid"`
	UTCCoupled       bool      `json:"utc_coupled"`
	SlotID           int       `json:"slot_id"`
	TransmissionSlot int       `json:"transmission_time_slot"`
	MSO              int       `json:"mso"`
	MSOUTCMs         float64   `json:"mso_utc_ms"`
	DataChannel      int       `json:"data_channel"`
	TISBSiteID       int       `json:"tisb_site_id"`
	TISBSiteTier     string    `json:"tisb_site_tier"`
	ReceivedTime     time.Time `json:"rcvd_time"`
	Frames           []Frame   `json:"frames,omitempty"`
}

// Frame is one frame inside an uplink payload. Exactly one of the
// typed payload pointers is set, according to FrameType; reserved frame
// types carry none.
type Frame struct {
	FrameType     int                 `json:"frame_type"`
	APDU          *APDU               `json:"apdu,omitempty"`
	CRL           *CRLFrame           `json:"crl,omitempty"`
	ServiceStatus *ServiceStatusFrame `json:"service_status,omitempty"`
}

// APDU is a decoded application protocol data unit. Times are the raw
// broadcast fields; reconstruction into full timestamps happens at L2.
type APDU struct {
	ProductID  int  `json:"product_id"`
	SegFlag    bool `json:"s_flag"`
	TimeOption int  `json:"t_opt"`
	Month      int  `json:"month,omitempty"`
	Day        int  `json:"day,omitempty"`
	Hour       int  `json:"hour"`
	Minute     int  `json:"minute"`

	// Segmentation block, present only when SegFlag is set.
	ProductFileID     int `json:"product_file_id,omitempty"`
	ProductFileLength int `json:"product_file_length,omitempty"`
	APDUNumber        int `json:"apdu_number,omitempty"`

	// Contents holds the undecoded payload hex for segmented frames,
	// or the DLAC text for product 413.
	Contents string `json:"contents,omitempty"`

	// Exactly one of these is set for non-segmented structured
	// payloads.
	TWGO  *TWGOPayload  `json:"twgo,omitempty"`
	Block *GlobalBlock  `json:"block,omitempty"`
}

// TWGOPayload is a text-with-graphic-overlay payload: a shared header
// plus text or graphic records (never both in one payload).
type TWGOPayload struct {
	RecordFormat         int             `json:"record_format"` // 2 text, 8 graphic
	Location             string          `json:"location"`
	RecordCount          int             `json:"record_count"`
	RecordReferencePoint int             `json:"record_reference_point"`
	Text                 []TextRecord    `json:"text_records,omitempty"`
	Graphics             []GraphicRecord `json:"graphic_records,omitempty"`
}

// TextRecord is one DLAC text record inside a TWGO payload.
type TextRecord struct {
	ReportNumber int    `json:"report_number"`
	ReportYear   int    `json:"report_year"`
	ReportStatus int    `json:"report_status"` // 0 cancelled, 1 active
	Text         string `json:"text,omitempty"`
}

// GraphicRecord is one overlay record inside a TWGO payload. Vertex
// lists hold [lon, lat, alt] triplets for 6-byte vertices and the
// 9-element circular prism tuple for 14-byte vertices.
type GraphicRecord struct {
	OverlayRecordLength   int         `json:"overlay_record_length"`
	ReportNumber          int         `json:"report_number"`
	ReportYear            int         `json:"report_year"`
	StartYearOffset       int         `json:"record_applicability_start_year"`
	EndYearOffset         int         `json:"record_applicability_end_year"`
	OverlayRecordID       int         `json:"overlay_record_id"`
	LabelFlag             int         `json:"label_flag"`
	ObjectLabel           string      `json:"object_label,omitempty"`
	ElementFlag           int         `json:"element_flag"`
	QualFlag              int         `json:"qual_flag"`
	ParamFlag             int         `json:"param_flag"`
	ObjectElement         int         `json:"object_element"`
	ObjectType            int         `json:"object_type"`
	ObjectStatus          int         `json:"object_status"`
	ObjectQualifiers      []byte      `json:"object_qualifiers,omitempty"`
	ApplicabilityOptions  int         `json:"record_applicability_options"`
	DateTimeFormat        int         `json:"date_time_format"`
	GeometryOptions       int         `json:"overlay_geometry_options"`
	OverlayOperator       int         `json:"overlay_operator"`
	VerticesCount         int         `json:"overlay_vertices_count,omitempty"`
	StartMonth            int         `json:"start_month,omitempty"`
	StartDay              int         `json:"start_day,omitempty"`
	StartHour             int         `json:"start_hour"`
	StartMinute           int         `json:"start_minute"`
	StopMonth             int         `json:"stop_month,omitempty"`
	StopDay               int         `json:"stop_day,omitempty"`
	StopHour              int         `json:"stop_hour"`
	StopMinute            int         `json:"stop_minute"`
	HasStart              bool        `json:"has_start"`
	HasStop               bool        `json:"has_stop"`
	Vertices              [][]float64 `json:"vertex_list,omitempty"`
}

// GlobalBlock is a decoded global block representation payload for the
// gridded image products.
type GlobalBlock struct {
	BlockNumber int `json:"block_number"`
	ScaleFactor int `json:"scale_factor"`
	ElementID   int `json:"element_id"` // 0 empty run list, 1 bins

	// AltitudeLevel is the forecast altitude in feet MSL; icing and
	// turbulence products only.
	AltitudeLevel int `json:"altitude_level,omitempty"`

	Bins        []byte `json:"bins,omitempty"`
	EmptyBlocks string `json:"empty_blocks,omitempty"` // bitmap, '1' per empty block
}

// CRLFrame is a decoded current report list frame.
type CRLFrame struct {
	ProductID    int        `json:"product_id"`
	RangeNM      int        `json:"range_nm"`
	TFRNOTAM     bool       `json:"tfr_notam"`
	Overflow     bool       `json:"has_overflow"`
	LocationFlag bool       `json:"location_flag"`
	LocationID   string     `json:"location_id,omitempty"`
	Reports      []CRLEntry `json:"reports,omitempty"`
}

// CRLEntry identifies one report a station is currently transmitting.
type CRLEntry struct {
	YearOrMonth  int  `json:"year_or_month"`
	ReportNumber int  `json:"report_number"`
	TextFlag     bool `json:"text_flag"`
	GraphicsFlag bool `json:"graphics_flag"`
}

// ServiceStatusFrame lists the aircraft a station currently provides
// TIS-B services for.
type ServiceStatusFrame struct {
	Traffic []string `json:"traffic"`
}
