// Package fisb holds the shared domain model for the FIS-B decode chain:
// uplink packets, frames, synthesized products, and the geometry types
// that ride along with them. Stage packages (l0frames, l1assembly,
// l2products, l3dedup) and the curator all speak these types.
package fisb

import "strconv"

// Product identifiers carried in APDU headers. Anything else is rejected
// at L0.
const (
	ProductNOTAM        = 8   // NOTAM-D/FDC/TFR, FIS-B unavailable
	ProductAIRMET       = 11  // AIRMET
	ProductSIGMET       = 12  // SIGMET, convective SIGMET (WST)
	ProductSUA          = 13  // Special Use Airspace
	ProductGAIRMET      = 14  // G-AIRMET
	ProductCWA          = 15  // Center Weather Advisory
	ProductNOTAMTRA     = 16  // NOTAM-TRA
	ProductNOTAMTMOA    = 17  // NOTAM-TMOA
	ProductNEXRADRegion = 63  // Regional NEXRAD composite
	ProductNEXRADCONUS  = 64  // CONUS NEXRAD composite
	ProductIcingLow     = 70  // Icing 2,000-12,000 ft
	ProductIcingHigh    = 71  // Icing 14,000-24,000 ft
	ProductCloudTops    = 84  // Cloud tops
	ProductTurbLow      = 90  // Turbulence 2,000-12,000 ft
	ProductTurbHigh     = 91  // Turbulence 14,000-24,000 ft
	ProductLightning    = 103 // Lightning strikes
	ProductGenericText  = 413 // METAR, TAF, PIREP, winds aloft
)

// ValidProductIDs is the set of product ids the decoder will accept.
var ValidProductIDs = map[int]bool{
	ProductNOTAM: true, ProductAIRMET: true, ProductSIGMET: true,
	ProductSUA: true, ProductGAIRMET: true, ProductCWA: true,
	ProductNOTAMTRA: true, ProductNOTAMTMOA: true,
	ProductNEXRADRegion: true, ProductNEXRADCONUS: true,
	ProductIcingLow: true, ProductIcingHigh: true,
	ProductCloudTops: true, ProductTurbLow: true, ProductTurbHigh: true,
	ProductLightning: true, ProductGenericText: true,
}

// TWGOProductIDs are the text-with-graphic-overlay products handled by
// the L1 matcher.
var TWGOProductIDs = map[int]bool{
	ProductNOTAM: true, ProductAIRMET: true, ProductSIGMET: true,
	ProductCWA: true, ProductNOTAMTRA: true, ProductNOTAMTMOA: true,
}

// Frame types inside a ground uplink payload.
const (
	FrameTypeAPDU          = 0
	FrameTypeCRL           = 14
	FrameTypeServiceStatus = 15
)

// Message type names used in the unique_name/type pair that identifies
// every synthesized product.
const (
	TypeMETAR           = "METAR"
	TypeTAF             = "TAF"
	TypeWinds06         = "WINDS_06_HR"
	TypeWinds12         = "WINDS_12_HR"
	TypeWinds24         = "WINDS_24_HR"
	TypePIREP           = "PIREP"
	TypeNOTAM           = "NOTAM"
	TypeCancelNOTAM     = "CANCEL_NOTAM"
	TypeCancelCWA       = "CANCEL_CWA"
	TypeCancelGAIRMET   = "CANCEL_G_AIRMET"
	TypeUnavailable     = "FIS_B_UNAVAILABLE"
	TypeAIRMET          = "AIRMET"
	TypeSIGMET          = "SIGMET"
	TypeWST             = "WST"
	TypeCWA             = "CWA"
	TypeGAIRMET         = "G_AIRMET"
	TypeSUA             = "SUA"
	TypeServiceStatus   = "SERVICE_STATUS"
	TypeRSR             = "RSR"
	TypeNEXRADRegional  = "NEXRAD_REGIONAL"
	TypeNEXRADCONUS     = "NEXRAD_CONUS"
	TypeCloudTops       = "CLOUD_TOPS"
	TypeLightning       = "LIGHTNING"
	TypeImage           = "IMAGE"
	TypeLegend          = "LEGEND"
)

// CRLType returns the message type for a current report list of the
// given product ("CRL_8", "CRL_11", ...).
func CRLType(productID int) string {
	return "CRL_" + strconv.Itoa(productID)
}

// TISBTierLookup maps the TIS-B site id hex digit to its power tier.
// Surface stations carry an S prefix in the raw id.
var TISBTierLookup = map[byte]string{
	'0': "no tier", '1': "high tier", '2': "high tier", '3': "high tier",
	'4': "high tier", '5': "medium tier", '6': "medium tier",
	'7': "medium tier", '8': "medium tier", '9': "medium tier",
	'A': "low tier", 'B': "low tier", 'C': "low tier",
	'D': "surface", 'E': "surface", 'F': "unknown",
}

// ExpectedPacketsPerSecond gives the nominal uplink rate for a TIS-B
// site id, used by reception-rate accounting.
func ExpectedPacketsPerSecond(tisbSiteID int) int {
	switch {
	case tisbSiteID >= 13:
		return 4
	case tisbSiteID >= 10:
		return 3
	case tisbSiteID >= 5:
		return 2
	default:
		return 1
	}
}
