package l2products

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/fisb-tools/fisb978/internal/fisb"
	"github.com/fisb-tools/fisb978/internal/fisb/l1assembly"
)

var (
	// Leading "TYPE STATION ddhhmm" of an AIRMET/SIGMET/WST/CWA.
	twgoHeaderRE = regexp.MustCompile(`([^ ]+) ([^ ]+) ([0-3]\d[0-2]\d[0-5]\d)`)
	// Some SIGMETs come without a station.
	twgoHeaderNoStationRE = regexp.MustCompile(`([^ ]+) +([0-3]\d[0-2]\d[0-5]\d)`)
)

// stuckMessages are reports that have been wedged in the broadcast for
// over a year and never expire. They are dropped here, and their CRL
// entries are ignored in crl.go, so they cannot hold a CRL incomplete.
var stuckMessages = map[string]bool{
	"WST KMKC 062057 CONVECTIVE SIGMET 99C\nFL TN AL MS LA AR TX OK AND FL AL MS LA CSTL WTRS\nFROM 20ENE MEM-20NNW VUZ-110S CEW-50SSW LSU-70NW GGG-10SSW\nFSM-20ENE MEM\nAREA TS MOV LTL. TOPS TO FL410.\n": true,
	"WST KMKC 170253 CONVECTIVE SIGMET 3E\nNC AND NC SC CSTL WTRS\nFROM 40S ECG-120SE ECG-200SE ILM-120SSE ILM-30WSW ILM-40S ECG\nAREA EMBD TS MOV FROM 17015KT. TOPS TO FL430.\n": true,
}

// synthesizeSIGWX handles products 11, 12, and 15: AIRMET, SIGMET,
// convective SIGMET (WST), and CWA. The report type is whatever word
// the text leads with.
func (s *Synthesizer) synthesizeSIGWX(msg *l1assembly.Message) (*fisb.Product, error) {
	a := msg.APDU
	rec := msg.Text
	if rec == nil {
		return nil, fmt.Errorf("product %d message has no text record", a.ProductID)
	}
	reportID := strconv.Itoa(rec.ReportYear) + "-" + strconv.Itoa(rec.ReportNumber)

	// A cancelled CWA is the only cancellation this family sends.
	if a.ProductID == fisb.ProductCWA && rec.ReportStatus == 0 {
		return &fisb.Product{
			Type:           fisb.TypeCancelCWA,
			UniqueName:     reportID,
			ReceivedTime:   msg.ReceivedTime,
			ExpirationTime: msg.ReceivedTime.Add(s.cfg.CancelExpiration),
		}, nil
	}

	if stuckMessages[rec.Text] {
		Diagf("dropping stuck report %s", reportID)
		return nil, nil
	}
	if rec.Text == "" {
		return nil, fmt.Errorf("empty text in product %d report %s", a.ProductID, reportID)
	}
	text := CleanFAAText(rec.Text)

	var reportType, issueStr string
	if m := twgoHeaderRE.FindStringSubmatch(text); m != nil {
		reportType, issueStr = m[1], m[3]
	} else if m := twgoHeaderNoStationRE.FindStringSubmatch(text); m != nil {
		reportType, issueStr = m[1], m[2]
	} else {
		return nil, fmt.Errorf("report header did not match: %.60q", text)
	}

	issued, err := DayHourMin(msg.ReceivedTime, issueStr)
	if err != nil {
		return nil, fmt.Errorf("report %s: %w", reportID, err)
	}

	p := &fisb.Product{
		Type:         reportType,
		UniqueName:   reportID,
		Station:      msg.Station,
		Contents:     text,
		ReceivedTime: msg.ReceivedTime,
		IssuedTime:   &issued,
	}

	if len(msg.Graphics) > 0 {
		first := &msg.Graphics[0]
		if first.GeometryOptions != 3 && first.GeometryOptions != 4 {
			return nil, fmt.Errorf("report %s overlay is not a polygon", reportID)
		}

		// The first record's applicability window becomes the for-use
		// window. Test data sometimes omits it.
		if first.ApplicabilityOptions == 3 && first.DateTimeFormat == 1 {
			from := ComponentsReferenced(issued, first.StartMonth, first.StartDay,
				first.StartHour, first.StartMinute)
			to := ComponentsReferenced(issued, first.StopMonth, first.StopDay,
				first.StopHour, first.StopMinute)
			p.ForUseFromTime = &from
			p.ForUseToTime = &to
		}

		geo, err := ProcessGeometry(msg.Graphics, issued, a.ProductID)
		if err != nil {
			return nil, fmt.Errorf("report %s geometry: %w", reportID, err)
		}
		p.Geometry = geo
	}

	p.ExpirationTime = s.cfg.twgoExpiration(p.Geometry, msg.ReceivedTime, nil)
	return p, nil
}
