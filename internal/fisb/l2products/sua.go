package l2products

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/fisb-tools/fisb978/internal/fisb"
)

// First SUA field: "SUA ddhhmm schedule-id".
var suaRE = regexp.MustCompile(`SUA ([0-3]\d[0-2]\d[0-5]\d) (.+)`)

// synthesizeSUA handles product 13, the legacy special use airspace
// schedule feed. The record is a pipe-separated field list; the NOTAM
// TMOA/TRA products are replacing it.
func (s *Synthesizer) synthesizeSUA(rec *fisb.TextRecord, rcvd time.Time) (*fisb.Product, error) {
	reportID := strconv.Itoa(rec.ReportYear) + "-" + strconv.Itoa(rec.ReportNumber)

	if rec.ReportStatus == 0 {
		return nil, fmt.Errorf("SUA %s: cancellations are never broadcast", reportID)
	}

	fields := strings.Split(strings.TrimRight(rec.Text, "\n "), "|")
	if len(fields) < 15 {
		return nil, fmt.Errorf("SUA %s: %d fields, want 15", reportID, len(fields))
	}

	m := suaRE.FindStringSubmatch(fields[0])
	if m == nil {
		return nil, fmt.Errorf("SUA %s header did not match: %.40q", reportID, fields[0])
	}

	start, err := NotamTime(rcvd.Year(), fields[5])
	if err != nil {
		return nil, fmt.Errorf("SUA %s: %w", reportID, err)
	}
	end, err := NotamTime(rcvd.Year(), fields[6])
	if err != nil {
		return nil, fmt.Errorf("SUA %s: %w", reportID, err)
	}
	low, err1 := strconv.Atoi(fields[7])
	high, err2 := strconv.Atoi(fields[8])
	if err1 != nil || err2 != nil {
		return nil, fmt.Errorf("SUA %s: bad altitudes %q/%q", reportID, fields[7], fields[8])
	}

	separation := fields[9]
	if separation == "" || separation == " " {
		separation = "U" // unspecified
	}

	sua := &fisb.SUAFields{
		StartTime:      start,
		EndTime:        end,
		ScheduleID:     m[2],
		AirspaceID:     fields[1],
		Status:         fields[2],
		AirspaceType:   fields[3],
		AirspaceName:   fields[4],
		LowAltitude:    low * 100,
		HighAltitude:   high * 100,
		SeparationRule: separation,
		ShapeDefined:   fields[10],
	}
	// The catalog cross-references are either all present or all blank.
	if fields[11] != "" {
		sua.NFDCID = fields[11]
		sua.NFDCName = fields[12]
		sua.DAFIFID = fields[13]
		sua.DAFIFName = fields[14]
	}

	return &fisb.Product{
		Type:           fisb.TypeSUA,
		UniqueName:     reportID,
		SUA:            sua,
		ReceivedTime:   rcvd,
		ExpirationTime: end,
	}, nil
}
