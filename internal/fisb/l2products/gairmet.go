package l2products

import (
	"fmt"
	"strconv"
	"time"

	"github.com/fisb-tools/fisb978/internal/fisb"
	"github.com/fisb-tools/fisb978/internal/fisb/l1assembly"
)

// synthesizeGAIRMET handles product 14. The broadcast never says which
// forecast (00, 03, or 06 hour) a G-AIRMET belongs to, so it is
// inferred from the applicability window: a start equal to the stop is
// the 06 hour forecast, and otherwise the stop hour mod 6 separates the
// 00 hour (on the synoptic hours) from the 03 hour (offset by three).
// DO-358B table A-52 lays this out.
func (s *Synthesizer) synthesizeGAIRMET(msg *l1assembly.Message) (*fisb.Product, error) {
	a := msg.APDU
	if a.TWGO == nil || len(a.TWGO.Graphics) == 0 {
		return nil, fmt.Errorf("G-AIRMET message has no overlay records")
	}
	records := a.TWGO.Graphics
	first := &records[0]

	reportID := strconv.Itoa(first.ReportYear) + "-" + strconv.Itoa(first.ReportNumber)

	if first.ObjectStatus == 13 {
		return &fisb.Product{
			Type:           fisb.TypeCancelGAIRMET,
			UniqueName:     reportID,
			ReceivedTime:   msg.ReceivedTime,
			ExpirationTime: msg.ReceivedTime.Add(s.cfg.CancelExpiration),
		}, nil
	}

	geoOpts := first.GeometryOptions
	if first.ObjectStatus != 15 || first.DateTimeFormat != 1 ||
		(geoOpts != 3 && geoOpts != 4 && geoOpts != 11 && geoOpts != 12) {
		return nil, fmt.Errorf("G-AIRMET %s has unexpected parameters", reportID)
	}

	year := DoubleDigitYear(msg.ReceivedTime.Year(), first.ReportYear)
	issued := time.Date(year, time.Month(a.Month), a.Day, a.Hour, a.Minute, 0, 0, time.UTC)

	start := ComponentsReferenced(issued, first.StartMonth, first.StartDay,
		first.StartHour, first.StartMinute)
	stop := ComponentsReferenced(issued, first.StopMonth, first.StopDay,
		first.StopHour, first.StopMinute)

	forecastHour := -1
	if start.Equal(stop) {
		forecastHour = 6
		// The 06 hour forecast covers the three hours past its start.
		stop = start.Add(3 * time.Hour)
	} else if stop.Minute() == 0 {
		switch stop.Hour() % 6 {
		case 0:
			forecastHour = 0
		case 3:
			forecastHour = 3
		}
	}
	if forecastHour == -1 {
		return nil, fmt.Errorf("G-AIRMET %s: no forecast matches stop %s",
			reportID, stop.Format(time.RFC3339))
	}

	geo, err := ProcessGeometry(records, issued, a.ProductID)
	if err != nil {
		return nil, fmt.Errorf("G-AIRMET %s geometry: %w", reportID, err)
	}

	p := &fisb.Product{
		Type:           fisb.TypeGAIRMET,
		UniqueName:     reportID,
		Subtype:        fmt.Sprintf("%02d", forecastHour),
		Station:        msg.Station,
		ReceivedTime:   msg.ReceivedTime,
		IssuedTime:     &issued,
		ForUseFromTime: &start,
		ForUseToTime:   &stop,
		Geometry:       geo,
	}
	p.ExpirationTime = s.cfg.twgoExpiration(p.Geometry, msg.ReceivedTime, nil)
	return p, nil
}
