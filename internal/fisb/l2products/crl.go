package l2products

import (
	"fmt"
	"strconv"
	"time"

	"github.com/fisb-tools/fisb978/internal/fisb"
)

// stuckCRL12Reports are the SIGMET CRL entries belonging to reports in
// stuckMessages. They are skipped so a wedged report cannot hold the
// CRL incomplete forever.
var stuckCRL12Reports = map[string]bool{
	"20-7489": true,
	"20-7676": true,
}

// synthesizeCRL turns a current report list frame into a CRL product.
// Each station sends one CRL per product it carries; the unique name is
// the product and station pair.
func (s *Synthesizer) synthesizeCRL(crl *fisb.CRLFrame, station string, rcvd time.Time) (*fisb.Product, error) {
	// The CRL retransmits at the product's nominal interval (table C-1);
	// expire after missing two of them.
	var ttl time.Duration
	switch crl.ProductID {
	case fisb.ProductNOTAM, fisb.ProductCWA, fisb.ProductNOTAMTRA, fisb.ProductNOTAMTMOA:
		ttl = 2 * 10 * time.Minute
	case fisb.ProductAIRMET, fisb.ProductSIGMET, fisb.ProductGAIRMET:
		ttl = 2 * 5 * time.Minute
	default:
		return nil, fmt.Errorf("product %d has no current report list", crl.ProductID)
	}

	reports := make([]string, 0, len(crl.Reports))
	for _, r := range crl.Reports {
		// NOTAM-TRA and NOTAM-TMOA carry a month where the others carry
		// a year; either way it matches the report's unique name.
		name := strconv.Itoa(r.YearOrMonth) + "-" + strconv.Itoa(r.ReportNumber)
		if crl.ProductID == fisb.ProductSIGMET && stuckCRL12Reports[name] {
			continue
		}

		switch {
		case r.TextFlag && r.GraphicsFlag:
			name += "/TG"
		case r.GraphicsFlag:
			name += "/GO"
		case r.TextFlag:
			name += "/TO"
		default:
			return nil, fmt.Errorf("CRL %d report %s has neither text nor graphics", crl.ProductID, name)
		}
		reports = append(reports, name)
	}

	return &fisb.Product{
		Type:           fisb.CRLType(crl.ProductID),
		UniqueName:     "CRL-" + strconv.Itoa(crl.ProductID) + "-" + station,
		Station:        station,
		CRLProductID:   crl.ProductID,
		RangeNM:        crl.RangeNM,
		HasOverflow:    crl.Overflow,
		Reports:        reports,
		NoDigest:       true,
		ReceivedTime:   rcvd,
		ExpirationTime: rcvd.Add(ttl),
	}, nil
}
