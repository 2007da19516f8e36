package l2products

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fisb-tools/fisb978/internal/fisb"
	"github.com/fisb-tools/fisb978/internal/fisb/l1assembly"
)

func TestSIGWXAirmet(t *testing.T) {
	s := newTestSynthesizer()
	msg := &l1assembly.Message{
		Station:      "st",
		ReceivedTime: rcvd,
		APDU:         &fisb.APDU{ProductID: 11, Hour: 12, Minute: 55},
		Text: &fisb.TextRecord{
			ReportNumber: 500, ReportYear: 21, ReportStatus: 1,
			Text: "AIRMET KSLN 141255 AIRMET TANGO FOR TURB   \nVALID UNTIL 141800",
		},
		Graphics: []fisb.GraphicRecord{{
			ObjectStatus:         15,
			GeometryOptions:      3,
			ApplicabilityOptions: 3,
			DateTimeFormat:       1,
			StartMonth:           5, StartDay: 14, StartHour: 12, StartMinute: 55,
			StopMonth: 5, StopDay: 14, StopHour: 18, StopMinute: 0,
			Vertices: [][]float64{{-90, 45, 5000}, {-89, 45, 5000}, {-90, 45, 5000}},
		}},
	}

	products, err := s.Process(msg)
	require.NoError(t, err)
	require.Len(t, products, 1)
	p := products[0]

	assert.Equal(t, "AIRMET", p.Type, "report type comes from the text")
	assert.Equal(t, "21-500", p.UniqueName)
	assert.Equal(t, time.Date(2021, 5, 14, 12, 55, 0, 0, time.UTC), *p.IssuedTime)
	assert.Equal(t, time.Date(2021, 5, 14, 18, 0, 0, 0, time.UTC), *p.ForUseToTime)
	require.Len(t, p.Geometry, 1)
	// Every record has a stop time, so it drives the expiration.
	assert.Equal(t, *p.Geometry[0].StopTime, p.ExpirationTime)
}

func TestSIGWXCancelCWA(t *testing.T) {
	s := newTestSynthesizer()
	msg := &l1assembly.Message{
		ReceivedTime: rcvd,
		APDU:         &fisb.APDU{ProductID: 15},
		Text:         &fisb.TextRecord{ReportNumber: 7, ReportYear: 21, ReportStatus: 0},
	}

	products, err := s.Process(msg)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "CANCEL_CWA", products[0].Type)
	assert.Equal(t, "21-7", products[0].UniqueName)
}

func TestSIGWXRejectsNonPolygonOverlay(t *testing.T) {
	s := newTestSynthesizer()
	msg := &l1assembly.Message{
		ReceivedTime: rcvd,
		APDU:         &fisb.APDU{ProductID: 12},
		Text: &fisb.TextRecord{
			ReportNumber: 1, ReportYear: 21, ReportStatus: 1,
			Text: "SIGMET KSLN 140700 SIGMET NOVEMBER 1",
		},
		Graphics: []fisb.GraphicRecord{{GeometryOptions: 7,
			Vertices: [][]float64{{-90, 45, -90, 45, 0, 4000, 5, 5, 0}}}},
	}
	_, err := s.Process(msg)
	assert.Error(t, err)
}

func TestGAIRMETForecastHours(t *testing.T) {
	s := newTestSynthesizer()

	build := func(startHour, stopHour int) *l1assembly.Message {
		return &l1assembly.Message{
			Station:      "st",
			ReceivedTime: rcvd,
			APDU: &fisb.APDU{
				ProductID: 14,
				Month:     5, Day: 14, Hour: 2, Minute: 45,
				TWGO: &fisb.TWGOPayload{
					RecordFormat: 8,
					Graphics: []fisb.GraphicRecord{{
						ReportNumber: 42, ReportYear: 21,
						ObjectStatus:         15,
						DateTimeFormat:       1,
						GeometryOptions:      3,
						ApplicabilityOptions: 3,
						StartMonth:           5, StartDay: 14, StartHour: startHour,
						StopMonth: 5, StopDay: 14, StopHour: stopHour,
						Vertices: [][]float64{{-90, 45, 5000}, {-89, 45, 5000}, {-90, 45, 5000}},
					}},
				},
			},
		}
	}

	// Stop on a synoptic hour: the 00 hour product.
	products, err := s.Process(build(3, 6))
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "G_AIRMET", products[0].Type)
	assert.Equal(t, "00", products[0].Subtype)
	assert.Equal(t, "21-42", products[0].UniqueName)

	// Stop offset by three: the 03 hour product.
	products, err = s.Process(build(3, 9))
	require.NoError(t, err)
	assert.Equal(t, "03", products[0].Subtype)

	// Start equals stop: the 06 hour product, covering three hours.
	products, err = s.Process(build(9, 9))
	require.NoError(t, err)
	p := products[0]
	assert.Equal(t, "06", p.Subtype)
	assert.Equal(t, p.ForUseFromTime.Add(3*time.Hour), *p.ForUseToTime)
}

func TestGAIRMETCancellation(t *testing.T) {
	s := newTestSynthesizer()
	msg := &l1assembly.Message{
		ReceivedTime: rcvd,
		APDU: &fisb.APDU{
			ProductID: 14,
			TWGO: &fisb.TWGOPayload{
				RecordFormat: 8,
				Graphics: []fisb.GraphicRecord{{
					ReportNumber: 42, ReportYear: 21, ObjectStatus: 13,
				}},
			},
		},
	}
	products, err := s.Process(msg)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "CANCEL_G_AIRMET", products[0].Type)
}

func TestSUA(t *testing.T) {
	s := newTestSynthesizer()
	text := "SUA 140712 12345|A1234|W|M|EUREKA MOA|2105141300|2105142200|50|180|A|Y|NF1|EUREKA|DF1|EUREKA DAFIF\n"
	msg := &l1assembly.Message{
		ReceivedTime: rcvd,
		APDU: &fisb.APDU{
			ProductID: 13,
			TWGO: &fisb.TWGOPayload{
				RecordFormat: 2,
				Text: []fisb.TextRecord{{
					ReportNumber: 900, ReportYear: 21, ReportStatus: 1,
					Text: text,
				}},
			},
		},
	}

	products, err := s.Process(msg)
	require.NoError(t, err)
	require.Len(t, products, 1)
	p := products[0]

	assert.Equal(t, "SUA", p.Type)
	assert.Equal(t, "21-900", p.UniqueName)
	require.NotNil(t, p.SUA)
	assert.Equal(t, "12345", p.SUA.ScheduleID)
	assert.Equal(t, "A1234", p.SUA.AirspaceID)
	assert.Equal(t, "W", p.SUA.Status)
	assert.Equal(t, "M", p.SUA.AirspaceType)
	assert.Equal(t, "EUREKA MOA", p.SUA.AirspaceName)
	assert.Equal(t, 5000, p.SUA.LowAltitude)
	assert.Equal(t, 18000, p.SUA.HighAltitude)
	assert.Equal(t, "NF1", p.SUA.NFDCID)
	assert.Equal(t, time.Date(2021, 5, 14, 22, 0, 0, 0, time.UTC), p.SUA.EndTime)
	assert.Equal(t, p.SUA.EndTime, p.ExpirationTime)
}

func TestCRL(t *testing.T) {
	s := newTestSynthesizer()
	msg := &l1assembly.Message{
		Station:      "45.0~-90.0",
		ReceivedTime: rcvd,
		CRL: &fisb.CRLFrame{
			ProductID: 8,
			RangeNM:   100,
			Reports: []fisb.CRLEntry{
				{YearOrMonth: 1, ReportNumber: 6733, TextFlag: true, GraphicsFlag: true},
				{YearOrMonth: 1, ReportNumber: 6800, TextFlag: true},
			},
		},
	}

	products, err := s.Process(msg)
	require.NoError(t, err)
	require.Len(t, products, 1)
	p := products[0]

	assert.Equal(t, "CRL_8", p.Type)
	assert.Equal(t, "CRL-8-45.0~-90.0", p.UniqueName)
	assert.Equal(t, 100, p.RangeNM)
	assert.Equal(t, []string{"1-6733/TG", "1-6800/TO"}, p.Reports)
	assert.True(t, p.NoDigest)
	assert.Equal(t, rcvd.Add(20*time.Minute), p.ExpirationTime)
}

func TestCRLSkipsStuckReports(t *testing.T) {
	s := newTestSynthesizer()
	msg := &l1assembly.Message{
		Station:      "st",
		ReceivedTime: rcvd,
		CRL: &fisb.CRLFrame{
			ProductID: 12,
			Reports: []fisb.CRLEntry{
				{YearOrMonth: 20, ReportNumber: 7489, TextFlag: true},
				{YearOrMonth: 21, ReportNumber: 5, TextFlag: true},
			},
		},
	}

	products, err := s.Process(msg)
	require.NoError(t, err)
	assert.Equal(t, []string{"21-5/TO"}, products[0].Reports)
	assert.Equal(t, rcvd.Add(10*time.Minute), products[0].ExpirationTime)
}

func TestServiceStatus(t *testing.T) {
	s := newTestSynthesizer()
	msg := &l1assembly.Message{
		Station:       "45.0~-90.0",
		ReceivedTime:  rcvd,
		ServiceStatus: &fisb.ServiceStatusFrame{Traffic: []string{"a1b2c3", "0a0b0c/1"}},
	}

	products, err := s.Process(msg)
	require.NoError(t, err)
	require.Len(t, products, 1)
	p := products[0]

	assert.Equal(t, "SERVICE_STATUS", p.Type)
	assert.Equal(t, "45.0~-90.0", p.UniqueName)
	assert.Equal(t, []string{"a1b2c3", "0a0b0c/1"}, p.Traffic)
	assert.Equal(t, rcvd.Add(40*time.Second), p.ExpirationTime)
}

func TestTwgoSanityDrops(t *testing.T) {
	s := newTestSynthesizer()
	msg := &l1assembly.Message{
		ReceivedTime: rcvd,
		APDU: &fisb.APDU{
			ProductID: 13,
			TWGO: &fisb.TWGOPayload{
				RecordFormat:         2,
				RecordReferencePoint: 7, // reserved, standard says ignore
				Text:                 []fisb.TextRecord{{ReportStatus: 1, Text: "SUA"}},
			},
		},
	}
	products, err := s.Process(msg)
	require.NoError(t, err)
	assert.Empty(t, products)
}
