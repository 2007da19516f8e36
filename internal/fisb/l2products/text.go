package l2products

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/fisb-tools/fisb978/internal/fisb"
)

var (
	metarRE = regexp.MustCompile(`^(METAR|SPECI) ([0-9A-Z]{4}) ([0-9]{6})`)
	tafRE   = regexp.MustCompile(`^(TAF|TAF\.AMD|TAF COR) ([0-9A-Z]{4}) ([0-9]{6})Z ([0-9]{4})/([0-9]{4})`)
	// Naval air station TAFs skip the issue time.
	tafNoZRE = regexp.MustCompile(`^(TAF|TAF\.AMD|TAF COR) ([0-9A-Z]{4}) ([0-9]{4})/([0-9]{4})`)
	windsRE  = regexp.MustCompile(`^(WINDS) ([0-9A-Z]{3}) ([0-9]{6})Z`)
	pirepRE  = regexp.MustCompile(`^(PIREP) ([^ ]+) ([0-9]{6})Z ([^ ]+) (UA|UUA) (.+)`)
)

// pirepFields are the recognized PIREP tags. The trailing space on /OV
// keeps a "/OVC" inside a remark from parsing as a field.
var pirepFields = []string{
	"/OV ", "/TM", "/FL", "/TP", "/TB", "/SK", "/RM",
	"/WX", "/TA", "/WV", "/IC",
}

// windMatrix maps [product-available slot][valid-time slot] to the
// forecast length in hours. The broadcast never says which winds aloft
// forecast it is; DO-358B table A-9 lets us infer it from the product
// available time (0200/0800/1400/2000) crossed with the valid time
// (0600/1200/1800/0000). -1 marks combinations that cannot occur.
var windMatrix = [4][4]int{
	{6, 12, -1, 24},
	{24, 6, 12, -1},
	{-1, 24, 6, 12},
	{12, -1, 24, 6},
}

// synthesizeText turns one product 413 DLAC text frame into a product.
// A nil product with nil error means the frame is deliberately skipped.
func (s *Synthesizer) synthesizeText(a *fisb.APDU, rcvd time.Time) (*fisb.Product, error) {
	contents := CleanFAAText(a.Contents)

	switch {
	case strings.HasPrefix(contents, "METAR"), strings.HasPrefix(contents, "SPECI"):
		return s.metar(contents, rcvd)
	case strings.HasPrefix(contents, "TAF"):
		return s.taf(contents, rcvd)
	case strings.HasPrefix(contents, "WINDS"):
		return s.winds(contents, rcvd, a.Hour, a.Minute)
	case strings.HasPrefix(contents, "PIREP"):
		return s.pirep(contents, rcvd)
	}
	return nil, fmt.Errorf("unknown text product: %.40q", contents)
}

func (s *Synthesizer) metar(contents string, rcvd time.Time) (*fisb.Product, error) {
	m := metarRE.FindStringSubmatch(contents)
	if m == nil {
		return nil, fmt.Errorf("METAR did not match template")
	}
	obs, err := DayHourMin(rcvd, m[3])
	if err != nil {
		return nil, fmt.Errorf("METAR %s: %w", m[2], err)
	}

	return &fisb.Product{
		Type:            fisb.TypeMETAR,
		UniqueName:      m[2],
		Location:        m[2],
		Contents:        contents,
		ReceivedTime:    rcvd,
		ObservationTime: &obs,
		ExpirationTime:  obs.Add(s.cfg.METARExpiration),
	}, nil
}

func (s *Synthesizer) taf(contents string, rcvd time.Time) (*fisb.Product, error) {
	m := tafRE.FindStringSubmatch(contents)
	issuedStr, beginStr, endStr := "", "", ""
	if m != nil {
		issuedStr, beginStr, endStr = m[3], m[4], m[5]
	} else {
		if m = tafNoZRE.FindStringSubmatch(contents); m == nil {
			return nil, fmt.Errorf("TAF did not match any template")
		}
		// No issue time; fall back to the start of the valid period.
		issuedStr, beginStr, endStr = m[3], m[3], m[4]
	}

	issued, err := DayHourMin(rcvd, issuedStr)
	if err != nil {
		return nil, fmt.Errorf("TAF %s: %w", m[2], err)
	}
	begin, err := DayHourMin(rcvd, beginStr)
	if err != nil {
		return nil, fmt.Errorf("TAF %s: %w", m[2], err)
	}
	end, err := DayHourMin(rcvd, endStr)
	if err != nil {
		return nil, fmt.Errorf("TAF %s: %w", m[2], err)
	}

	return &fisb.Product{
		Type:             fisb.TypeTAF,
		UniqueName:       m[2],
		Location:         m[2],
		Contents:         contents,
		ReceivedTime:     rcvd,
		IssuedTime:       &issued,
		ValidPeriodBegin: &begin,
		ValidPeriodEnd:   &end,
		ExpirationTime:   end,
	}, nil
}

func (s *Synthesizer) winds(contents string, rcvd time.Time, apduHour, apduMinute int) (*fisb.Product, error) {
	m := windsRE.FindStringSubmatch(contents)
	if m == nil {
		return nil, fmt.Errorf("winds aloft did not match template")
	}
	location, validStr := m[2], m[3]

	// The first line only repeats the altitude header; the data is the
	// second line.
	lines := strings.SplitN(contents, "\n", 3)
	if len(lines) < 2 {
		return nil, fmt.Errorf("winds aloft %s has no data line", location)
	}
	data := strings.TrimRight(lines[1], " \t")

	var paIdx int
	switch {
	case apduHour >= 1 && apduHour < 3:
		paIdx = 0
	case apduHour >= 7 && apduHour < 9:
		paIdx = 1
	case apduHour >= 13 && apduHour < 15:
		paIdx = 2
	case apduHour >= 19 && apduHour < 21:
		paIdx = 3
	default:
		return nil, fmt.Errorf("winds aloft available hour %d not near a cycle", apduHour)
	}

	var vtIdx int
	switch hhmm, _ := strconv.Atoi(validStr[2:]); hhmm {
	case 600:
		vtIdx = 0
	case 1200:
		vtIdx = 1
	case 1800:
		vtIdx = 2
	case 0:
		vtIdx = 3
	default:
		return nil, fmt.Errorf("winds aloft valid time %s not a cycle boundary", validStr)
	}

	forecast := windMatrix[paIdx][vtIdx]
	if forecast == -1 {
		return nil, fmt.Errorf("winds aloft slots %d/%d cannot occur", paIdx, vtIdx)
	}

	valid, err := DayHourMin(rcvd, validStr)
	if err != nil {
		return nil, fmt.Errorf("winds aloft %s: %w", location, err)
	}

	// The valid time is the only complete date; everything else hangs
	// off it at fixed offsets per forecast length.
	var prodName string
	var issued, modelRun, useFrom, useTo time.Time
	switch forecast {
	case 6:
		prodName = fisb.TypeWinds06
		issued = valid.Add(-4 * time.Hour)
		modelRun = valid.Add(-6 * time.Hour)
		useFrom = valid.Add(-4 * time.Hour)
		useTo = valid.Add(3 * time.Hour)
	case 12:
		prodName = fisb.TypeWinds12
		issued = valid.Add(-10 * time.Hour)
		modelRun = valid.Add(-12 * time.Hour)
		useFrom = valid.Add(-3 * time.Hour)
		useTo = valid.Add(6 * time.Hour)
	case 24:
		prodName = fisb.TypeWinds24
		issued = valid.Add(-22 * time.Hour)
		modelRun = valid.Add(-24 * time.Hour)
		useFrom = valid.Add(-6 * time.Hour)
		useTo = valid.Add(6 * time.Hour)
	}

	// The issue time was derived; put the hour and minute the APDU
	// actually carried back in. The drift is minutes and never crosses
	// a day boundary (nothing is issued near 0000Z).
	issued = time.Date(issued.Year(), issued.Month(), issued.Day(),
		apduHour, apduMinute, 0, 0, time.UTC)

	expire := useTo
	if forecast == 6 {
		// The last 6 hour forecast stays current until the next one
		// arrives, so it holds for an extra day.
		expire = useTo.AddDate(0, 0, 1)
	}

	return &fisb.Product{
		Type:           prodName,
		UniqueName:     location,
		Location:       location,
		Contents:       data,
		ReceivedTime:   rcvd,
		IssuedTime:     &issued,
		ValidTime:      &valid,
		ModelRunTime:   &modelRun,
		ForUseFromTime: &useFrom,
		ForUseToTime:   &useTo,
		ExpirationTime: expire,
	}, nil
}

func (s *Synthesizer) pirep(contents string, rcvd time.Time) (*fisb.Product, error) {
	m := pirepRE.FindStringSubmatch(contents)
	if m == nil {
		return nil, fmt.Errorf("PIREP did not match template")
	}

	// Field tags share their slash with free text, so rewrite known
	// tags to a reserved separator before splitting.
	body := m[6]
	for _, f := range pirepFields {
		body = strings.ReplaceAll(body, f, "~"+f[1:3])
	}

	fields := make(map[string]string)
	for _, part := range strings.Split(body, "~") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if len(part) < 2 {
			return nil, fmt.Errorf("PIREP field %q too short", part)
		}
		fields[strings.ToLower(part[:2])] = strings.TrimSpace(part[2:])
	}

	report, err := DayHourMin(rcvd, m[3])
	if err != nil {
		return nil, fmt.Errorf("PIREP %s: %w", m[4], err)
	}

	expireBase := rcvd
	if s.cfg.PIREPExpireFromReportTime {
		expireBase = report
	}

	return &fisb.Product{
		Type: fisb.TypePIREP,
		// The location FIS-B puts after PIREP is fabricated from the
		// /OV field and useless; the report's own station plus its body
		// makes the stable name.
		UniqueName:     m[5] + m[4] + strings.ReplaceAll(m[6], " ", ""),
		ReportType:     m[5],
		Station:        m[4],
		Contents:       contents,
		PIREP:          fields,
		ReceivedTime:   rcvd,
		ReportTime:     &report,
		ExpirationTime: expireBase.Add(s.cfg.PIREPExpiration),
	}, nil
}
