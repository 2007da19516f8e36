package l2products

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/fisb-tools/fisb978/internal/fisb"
	"github.com/fisb-tools/fisb978/internal/fisb/l1assembly"
)

var (
	// Start and end of a NOTAM validity window: yymmddHHMM-yymmddHHMM,
	// with PERM allowed as the end.
	notamTimesRE = regexp.MustCompile(`(\d\d[01]\d[0-3]\d[0-2]\d[0-5]\d)-(\d\d[01]\d[0-3]\d[0-2]\d[0-5]\d|PERM)`)

	notamTFRRE      = regexp.MustCompile(`^NOTAM-TFR ([0-9]/[0-9]{4}) `)
	notamRE         = regexp.MustCompile(`NOTAM-(D|FDC|TMOA|TRA) ([^ ]+) ([^ ]+) !([^ ]+) ([^ ]+) ([^ ]+) ([^ ]+)`)
	notamContentsRE = regexp.MustCompile(`(?s)NOTAM-(D|FDC|TMOA|TRA) ([^ ]+) ([^ ]+) (.+)`)

	fisbUnavailRE = regexp.MustCompile(`FIS-B ([0-3]\d[0-2]\d[0-5]\d)Z ([^ ]+) (.+)`)
	fisbProductRE = regexp.MustCompile(`^(.+) PRODUCT`)
)

// synthesizeNOTAM handles products 8, 16, and 17: NOTAMs of every
// subtype, plus the provider-generated NOTAM-TFR and FIS-B unavailable
// notices that ride in product 8.
func (s *Synthesizer) synthesizeNOTAM(msg *l1assembly.Message) (*fisb.Product, error) {
	a := msg.APDU
	rec := msg.Text
	if rec == nil {
		return nil, fmt.Errorf("product %d message has no text record", a.ProductID)
	}

	// TMOA and TRA recycle report numbers across months; the APDU month
	// keys them the way their CRL does. Everything else keys on the
	// report year.
	var reportID string
	if a.ProductID == fisb.ProductNOTAMTRA || a.ProductID == fisb.ProductNOTAMTMOA {
		reportID = strconv.Itoa(a.Month) + "-" + strconv.Itoa(rec.ReportNumber)
	} else {
		reportID = strconv.Itoa(rec.ReportYear) + "-" + strconv.Itoa(rec.ReportNumber)
	}

	if rec.ReportStatus == 0 {
		return &fisb.Product{
			Type:           fisb.TypeCancelNOTAM,
			UniqueName:     reportID,
			ReceivedTime:   msg.ReceivedTime,
			ExpirationTime: msg.ReceivedTime.Add(s.cfg.CancelExpiration),
		}, nil
	}

	// Large NOTAMs renew with an empty active record; there is nothing
	// to synthesize from those.
	if rec.Text == "" {
		return nil, nil
	}
	text := CleanFAAText(rec.Text)

	switch {
	case strings.HasPrefix(text, "FIS-B"):
		return s.fisbUnavailable(reportID, text, msg.ReceivedTime)
	case strings.HasPrefix(text, "NOTAM-TFR"):
		return s.tfrNOTAM(reportID, text, msg)
	}
	return s.notam(reportID, text, msg)
}

// fisbUnavailable decodes a provider notice that a FIS-B product is out
// of service for some set of ARTCC centers.
func (s *Synthesizer) fisbUnavailable(reportID, text string, rcvd time.Time) (*fisb.Product, error) {
	// An old test-message format spells out "SERVICE OUTAGE".
	if strings.HasPrefix(text, "FIS-B SERVICE OUTAGE") {
		text = "FIS-B " + text[21:]
	}
	m := fisbUnavailRE.FindStringSubmatch(text)
	if m == nil {
		return nil, fmt.Errorf("unavailable notice did not match: %.60q", text)
	}
	issued, err := DayHourMin(rcvd, m[1])
	if err != nil {
		return nil, fmt.Errorf("unavailable notice: %w", err)
	}
	pm := fisbProductRE.FindStringSubmatch(m[3])
	if pm == nil {
		return nil, fmt.Errorf("unavailable notice names no product: %.60q", text)
	}

	return &fisb.Product{
		Type:           fisb.TypeUnavailable,
		UniqueName:     reportID,
		Contents:       m[3],
		Centers:        strings.Split(m[2], ","),
		Products:       []string{pm[1]},
		ReceivedTime:   rcvd,
		IssuedTime:     &issued,
		ExpirationTime: rcvd.Add(s.cfg.UnavailableExpiration),
	}, nil
}

// tfrNOTAM decodes the provider-generated TFR form. These are not real
// NOTAMs: usually a glob of (INCMPL) text with geometry attached, and
// the issue time they carry is unreliable, so only the activity window
// is trusted.
func (s *Synthesizer) tfrNOTAM(reportID, text string, msg *l1assembly.Message) (*fisb.Product, error) {
	m := notamTFRRE.FindStringSubmatch(text)
	if m == nil {
		return nil, fmt.Errorf("NOTAM-TFR did not match: %.60q", text)
	}

	p := &fisb.Product{
		Type:         fisb.TypeNOTAM,
		Subtype:      "TFR",
		UniqueName:   reportID,
		Contents:     text,
		Station:      msg.Station,
		Number:       m[1],
		ReceivedTime: msg.ReceivedTime,
	}
	if err := s.insertNOTAMDates(p, text, msg.ReceivedTime); err != nil {
		return nil, err
	}
	if err := s.attachGeometry(p, msg); err != nil {
		return nil, err
	}
	p.ExpirationTime = s.cfg.twgoExpiration(p.Geometry, msg.ReceivedTime, nil)
	return p, nil
}

// notam decodes a regular NOTAM-D, -FDC, -TMOA, or -TRA.
func (s *Synthesizer) notam(reportID, text string, msg *l1assembly.Message) (*fisb.Product, error) {
	comp := notamRE.FindStringSubmatch(text)
	body := notamContentsRE.FindStringSubmatch(text)
	if comp == nil || body == nil {
		return nil, fmt.Errorf("NOTAM did not match: %.60q", text)
	}
	contents := body[4]
	if contents[0] != '!' {
		return nil, fmt.Errorf("NOTAM body does not start with '!': %.60q", text)
	}

	subtype := comp[1]

	// NOTAM-D report ids repeat across locations, so the location joins
	// the key. The products with a CRL key on number and year alone and
	// must stay that way to reconcile.
	if subtype == "D" && msg.Location != "" {
		reportID = reportID + "-" + msg.Location
	}

	p := &fisb.Product{
		Type:         fisb.TypeNOTAM,
		Subtype:      subtype,
		UniqueName:   reportID,
		Location:     msg.Location,
		Contents:     contents,
		Accountable:  comp[4],
		Affected:     comp[6],
		Keyword:      comp[7],
		Number:       comp[5],
		Station:      msg.Station,
		ReceivedTime: msg.ReceivedTime,
	}
	if err := s.insertNOTAMDates(p, text, msg.ReceivedTime); err != nil {
		return nil, err
	}

	// SUA-accountable NOTAM-Ds are the replacement for product 13.
	if strings.HasPrefix(p.Accountable, "SUA") {
		p.Subtype = "D-SUA"
	}

	if err := s.attachGeometry(p, msg); err != nil {
		return nil, err
	}

	// A real end of validity beats any guess, PERM excepted: a PERM
	// NOTAM still has to die when the system stops sending it.
	var notamExp *time.Time
	if p.EndOfValidity != nil && !p.PermanentEnd {
		notamExp = p.EndOfValidity
	}
	p.ExpirationTime = s.cfg.twgoExpiration(p.Geometry, msg.ReceivedTime, notamExp)
	return p, nil
}

// insertNOTAMDates pulls the yymmddHHMM-yymmddHHMM validity window out
// of the NOTAM text, if present.
func (s *Synthesizer) insertNOTAMDates(p *fisb.Product, text string, rcvd time.Time) error {
	m := notamTimesRE.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	start, err := NotamTime(rcvd.Year(), m[1])
	if err != nil {
		return fmt.Errorf("NOTAM %s: %w", p.UniqueName, err)
	}
	p.StartOfActivity = &start

	if m[2] == "PERM" {
		end := permanentEnd
		p.EndOfValidity = &end
		p.PermanentEnd = true
		return nil
	}
	end, err := NotamTime(rcvd.Year(), m[2])
	if err != nil {
		return fmt.Errorf("NOTAM %s: %w", p.UniqueName, err)
	}
	p.EndOfValidity = &end
	return nil
}

// attachGeometry converts any overlay records paired with the message.
// The start of activity, when known, anchors partial dates in the
// records.
func (s *Synthesizer) attachGeometry(p *fisb.Product, msg *l1assembly.Message) error {
	if len(msg.Graphics) == 0 {
		return nil
	}
	ref := msg.ReceivedTime
	if p.StartOfActivity != nil {
		ref = *p.StartOfActivity
	}
	geo, err := ProcessGeometry(msg.Graphics, ref, msg.APDU.ProductID)
	if err != nil {
		return fmt.Errorf("NOTAM %s geometry: %w", p.UniqueName, err)
	}
	p.Geometry = geo
	return nil
}
