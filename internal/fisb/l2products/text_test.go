package l2products

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fisb-tools/fisb978/internal/fisb"
)

func newTestSynthesizer() *Synthesizer {
	return NewSynthesizer(DefaultConfig())
}

func textFrame(contents string, hour, minute int) *fisb.APDU {
	return &fisb.APDU{
		ProductID: fisb.ProductGenericText,
		Hour:      hour, Minute: minute,
		Contents: contents,
	}
}

func TestMETAR(t *testing.T) {
	s := newTestSynthesizer()
	contents := "METAR KOCQ 140715Z AUTO 08005KT 10SM CLR 12/09 A3001 RMK AO2   \n"

	p, err := s.synthesizeText(textFrame(contents, 7, 16), rcvd)
	require.NoError(t, err)

	assert.Equal(t, "METAR", p.Type)
	assert.Equal(t, "KOCQ", p.UniqueName)
	assert.Equal(t, "KOCQ", p.Location)
	require.NotNil(t, p.ObservationTime)
	assert.Equal(t, time.Date(2021, 5, 14, 7, 15, 0, 0, time.UTC), *p.ObservationTime)
	assert.Equal(t, time.Date(2021, 5, 14, 9, 15, 0, 0, time.UTC), p.ExpirationTime)
	assert.NotContains(t, p.Contents, "   \n", "trailing whitespace stripped")
}

func TestTAF(t *testing.T) {
	s := newTestSynthesizer()
	contents := "TAF KSLN 140540Z 1406/1506 14010KT P6SM SCT050"

	p, err := s.synthesizeText(textFrame(contents, 5, 41), rcvd)
	require.NoError(t, err)

	assert.Equal(t, "TAF", p.Type)
	assert.Equal(t, "KSLN", p.UniqueName)
	assert.Equal(t, time.Date(2021, 5, 14, 5, 40, 0, 0, time.UTC), *p.IssuedTime)
	assert.Equal(t, time.Date(2021, 5, 14, 6, 0, 0, 0, time.UTC), *p.ValidPeriodBegin)
	assert.Equal(t, time.Date(2021, 5, 15, 6, 0, 0, 0, time.UTC), *p.ValidPeriodEnd)
	assert.Equal(t, *p.ValidPeriodEnd, p.ExpirationTime)
}

func TestTAFNavalForm(t *testing.T) {
	s := newTestSynthesizer()
	contents := "TAF KNSE 1406/1506 14010KT P6SM SCT050"

	p, err := s.synthesizeText(textFrame(contents, 6, 1), rcvd)
	require.NoError(t, err)
	assert.Equal(t, *p.ValidPeriodBegin, *p.IssuedTime,
		"without an issue time the valid period start stands in")
}

func TestWinds12Hour(t *testing.T) {
	s := newTestSynthesizer()
	// Product available ~0800, valid 1800 same day: the 12 hour forecast.
	contents := "WINDS SLN 141800Z  3000 6000 9000\n 2321 2425+10 2527+05"

	p, err := s.synthesizeText(textFrame(contents, 8, 2), rcvd)
	require.NoError(t, err)

	assert.Equal(t, "WINDS_12_HR", p.Type)
	assert.Equal(t, "SLN", p.UniqueName)
	assert.Equal(t, " 2321 2425+10 2527+05", p.Contents, "header line dropped")

	valid := time.Date(2021, 5, 14, 18, 0, 0, 0, time.UTC)
	assert.Equal(t, valid, *p.ValidTime)
	assert.Equal(t, valid.Add(-12*time.Hour), *p.ModelRunTime)
	assert.Equal(t, valid.Add(-3*time.Hour), *p.ForUseFromTime)
	assert.Equal(t, valid.Add(6*time.Hour), *p.ForUseToTime)
	// The derived issue time keeps the hour and minute the APDU carried.
	assert.Equal(t, time.Date(2021, 5, 14, 8, 2, 0, 0, time.UTC), *p.IssuedTime)
	assert.Equal(t, *p.ForUseToTime, p.ExpirationTime)
}

func TestWinds06HourHoldsExtraDay(t *testing.T) {
	s := newTestSynthesizer()
	contents := "WINDS SLN 141200Z  3000 6000\n 2321 2425+10"

	p, err := s.synthesizeText(textFrame(contents, 8, 0), rcvd)
	require.NoError(t, err)
	assert.Equal(t, "WINDS_06_HR", p.Type)
	assert.Equal(t, p.ForUseToTime.AddDate(0, 0, 1), p.ExpirationTime)
}

func TestWindsImpossibleSlot(t *testing.T) {
	s := newTestSynthesizer()
	// Product available ~0200 with valid 1800 cannot occur.
	contents := "WINDS SLN 141800Z  3000\n 2321"
	_, err := s.synthesizeText(textFrame(contents, 2, 0), rcvd)
	assert.Error(t, err)
}

func TestPIREP(t *testing.T) {
	s := newTestSynthesizer()
	contents := "PIREP WITHINMILESCLE 140656Z CLE UA /OV WITHIN 20 MILES CLE /TM 0656 /FL050 /TP B737 /TB LGT CHOP /RM SMOOTH ABOVE"

	p, err := s.synthesizeText(textFrame(contents, 6, 57), rcvd)
	require.NoError(t, err)

	assert.Equal(t, "PIREP", p.Type)
	assert.Equal(t, "UA", p.ReportType)
	assert.Equal(t, "CLE", p.Station)
	assert.Equal(t, "WITHIN 20 MILES CLE", p.PIREP["ov"])
	assert.Equal(t, "0656", p.PIREP["tm"])
	assert.Equal(t, "050", p.PIREP["fl"])
	assert.Equal(t, "B737", p.PIREP["tp"])
	assert.Equal(t, "LGT CHOP", p.PIREP["tb"])
	assert.Equal(t, "SMOOTH ABOVE", p.PIREP["rm"])

	report := time.Date(2021, 5, 14, 6, 56, 0, 0, time.UTC)
	assert.Equal(t, report, *p.ReportTime)
	// Default policy expires from the report time, not reception.
	assert.Equal(t, report.Add(2*time.Hour), p.ExpirationTime)
}

func TestPIREPOVCNotAField(t *testing.T) {
	s := newTestSynthesizer()
	contents := "PIREP X 140656Z CLE UA /OV CLE /TM 0656 /RM BKN-/OVC LYR"

	p, err := s.synthesizeText(textFrame(contents, 6, 57), rcvd)
	require.NoError(t, err)
	assert.Equal(t, "BKN-/OVC LYR", p.PIREP["rm"], "slash inside a remark survives")
}

func TestUnknownTextRejected(t *testing.T) {
	s := newTestSynthesizer()
	_, err := s.synthesizeText(textFrame("GARBAGE 123", 0, 0), rcvd)
	assert.Error(t, err)
}
