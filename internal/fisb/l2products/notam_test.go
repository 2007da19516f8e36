package l2products

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fisb-tools/fisb978/internal/fisb"
	"github.com/fisb-tools/fisb978/internal/fisb/l1assembly"
)

func notamMessage(productID, year, number int, text string) *l1assembly.Message {
	return &l1assembly.Message{
		Station:      "40.0~-88.2",
		ReceivedTime: rcvd,
		APDU: &fisb.APDU{
			ProductID: productID,
			Month:     5, Day: 14, Hour: 7, Minute: 10,
		},
		Location: "KSLN",
		Text: &fisb.TextRecord{
			ReportNumber: number,
			ReportYear:   year,
			ReportStatus: 1,
			Text:         text,
		},
	}
}

func TestNOTAMD(t *testing.T) {
	s := newTestSynthesizer()
	text := "NOTAM-D KSLN 051413 !SLN 05/006 SLN TWY A EDGE LGT OBSC 2105141300-2105302000"

	p, err := s.synthesizeNOTAM(notamMessage(8, 21, 12345, text))
	require.NoError(t, err)

	assert.Equal(t, "NOTAM", p.Type)
	assert.Equal(t, "D", p.Subtype)
	assert.Equal(t, "21-12345-KSLN", p.UniqueName, "NOTAM-D keys include the location")
	assert.Equal(t, "!SLN 05/006 SLN TWY A EDGE LGT OBSC 2105141300-2105302000", p.Contents)
	assert.Equal(t, "SLN", p.Accountable)
	assert.Equal(t, "SLN", p.Affected)
	assert.Equal(t, "TWY", p.Keyword)
	assert.Equal(t, "05/006", p.Number)

	require.NotNil(t, p.StartOfActivity)
	assert.Equal(t, time.Date(2021, 5, 14, 13, 0, 0, 0, time.UTC), *p.StartOfActivity)
	require.NotNil(t, p.EndOfValidity)
	assert.Equal(t, time.Date(2021, 5, 30, 20, 0, 0, 0, time.UTC), *p.EndOfValidity)
	// No geometry: the NOTAM's own end of validity is the expiration.
	assert.Equal(t, *p.EndOfValidity, p.ExpirationTime)
}

func TestNOTAMPermanent(t *testing.T) {
	s := newTestSynthesizer()
	text := "NOTAM-FDC KSLN 051413 !FDC 1/4567 SLN AIRSPACE AMENDED 2105141300-PERM"

	p, err := s.synthesizeNOTAM(notamMessage(8, 21, 4567, text))
	require.NoError(t, err)

	assert.True(t, p.PermanentEnd)
	assert.Equal(t, permanentEnd, *p.EndOfValidity)
	// PERM must not drive the expiration: the default hold applies so
	// the message dies when the broadcast drops it.
	assert.Equal(t, rcvd.Add(s.cfg.TWGODefaultExpiration), p.ExpirationTime)
}

func TestNOTAMTFRWithCircle(t *testing.T) {
	s := newTestSynthesizer()
	msg := notamMessage(8, 1, 6733, "NOTAM-TFR 0/6733 SECURITY... (INCMPL)")
	msg.Location = ""
	msg.Graphics = []fisb.GraphicRecord{{
		ObjectStatus:    15,
		GeometryOptions: 7,
		Vertices: [][]float64{
			{-88.25, 40.05, -88.25, 40.05, 0, 3000, 5, 5, 0},
		},
	}}

	p, err := s.synthesizeNOTAM(msg)
	require.NoError(t, err)

	assert.Equal(t, "TFR", p.Subtype)
	assert.Equal(t, "1-6733", p.UniqueName)
	assert.Equal(t, "0/6733", p.Number)
	require.Len(t, p.Geometry, 1)
	assert.Equal(t, "CIRCLE", p.Geometry[0].Type)
	assert.Equal(t, rcvd.Add(s.cfg.TWGODefaultExpiration), p.ExpirationTime)
}

func TestNOTAMCancellation(t *testing.T) {
	s := newTestSynthesizer()
	msg := notamMessage(8, 21, 12345, "")
	msg.Text.ReportStatus = 0

	p, err := s.synthesizeNOTAM(msg)
	require.NoError(t, err)
	assert.Equal(t, "CANCEL_NOTAM", p.Type)
	assert.Equal(t, "21-12345", p.UniqueName)
	assert.Equal(t, rcvd.Add(s.cfg.CancelExpiration), p.ExpirationTime)
}

func TestNOTAMEmptyKeepAlive(t *testing.T) {
	s := newTestSynthesizer()
	p, err := s.synthesizeNOTAM(notamMessage(8, 21, 12345, ""))
	require.NoError(t, err)
	assert.Nil(t, p, "empty active text renews elsewhere, nothing to synthesize")
}

func TestNOTAMTMOAKeysOnMonth(t *testing.T) {
	s := newTestSynthesizer()
	text := "NOTAM-TMOA KZAU 051413 !SUAE 05/100 ZAU AIRSPACE MOA ACT 2105141300-2105142000"
	msg := notamMessage(17, 21, 13500, text)
	msg.Location = ""

	p, err := s.synthesizeNOTAM(msg)
	require.NoError(t, err)
	assert.Equal(t, "5-13500", p.UniqueName, "TMOA keys on APDU month like its CRL")
	assert.Equal(t, "D-SUA", p.Subtype, "SUA service areas relabel the subtype")
}

func TestNOTAMSUAAccountable(t *testing.T) {
	s := newTestSynthesizer()
	text := "NOTAM-D KSLN 051413 !SUAC 05/010 SLN AIRSPACE ACT 2105141300-2105142000"

	p, err := s.synthesizeNOTAM(notamMessage(8, 21, 14001, text))
	require.NoError(t, err)
	assert.Equal(t, "D-SUA", p.Subtype)
}

func TestFISBUnavailable(t *testing.T) {
	s := newTestSynthesizer()
	text := "FIS-B 140600Z ZAU,ZID CONUS NEXRAD PRODUCT UPDATES UNAVAILABLE"

	p, err := s.synthesizeNOTAM(notamMessage(8, 21, 10500, text))
	require.NoError(t, err)

	assert.Equal(t, "FIS_B_UNAVAILABLE", p.Type)
	assert.Equal(t, "21-10500", p.UniqueName)
	assert.Equal(t, []string{"ZAU", "ZID"}, p.Centers)
	assert.Equal(t, []string{"CONUS NEXRAD"}, p.Products)
	assert.Equal(t, time.Date(2021, 5, 14, 6, 0, 0, 0, time.UTC), *p.IssuedTime)
	assert.Equal(t, rcvd.Add(s.cfg.UnavailableExpiration), p.ExpirationTime)
}
