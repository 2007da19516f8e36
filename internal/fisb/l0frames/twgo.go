package l0frames

import (
	"fmt"

	"github.com/fisb-tools/fisb978/internal/fisb"
	"github.com/fisb-tools/fisb978/internal/fisb/dlac"
)

// decodeTWGO decodes a text-with-graphic-overlay payload: a 6-byte
// header followed by text records or graphic overlay records.
func decodeTWGO(ba []byte, productID int) (*fisb.TWGOPayload, error) {
	if len(ba) < 6 {
		return nil, fmt.Errorf("TWGO payload too short: %d bytes", len(ba))
	}

	p := &fisb.TWGOPayload{
		RecordFormat:         int(ba[0]&0xF0) >> 4,
		Location:             dlac.Decode(ba, 2, 3, false),
		RecordCount:          int(ba[1]&0xF0) >> 4,
		RecordReferencePoint: int(ba[5]),
	}

	var err error
	switch p.RecordFormat {
	case 2:
		p.Text, err = decodeTextRecords(ba[6:], p.RecordCount)
	case 8:
		p.Graphics, err = decodeGraphicRecords(ba[6:], p.RecordCount, productID)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func decodeTextRecords(ba []byte, count int) ([]fisb.TextRecord, error) {
	records := make([]fisb.TextRecord, 0, count)
	ros := 0
	for i := 0; i < count; i++ {
		if ros+5 > len(ba) {
			return nil, fmt.Errorf("text record %d truncated at offset %d", i, ros)
		}
		length := int(ba[ros])<<8 | int(ba[ros+1])
		if length < 5 || ros+length > len(ba) {
			return nil, fmt.Errorf("text record %d: bad length %d", i, length)
		}
		rec := fisb.TextRecord{
			ReportNumber: int(ba[ros+2])<<6 | int(ba[ros+3])>>2,
			ReportYear:   int(ba[ros+3]&0x03)<<5 | int(ba[ros+4]&0xF8)>>3,
			ReportStatus: int(ba[ros+4]&0x04) >> 2,
		}
		// Cancelled reports carry no body.
		if rec.ReportStatus == 1 {
			rec.Text = dlac.Decode(ba, ros+5, length-5, false)
		}
		records = append(records, rec)
		ros += length
	}
	return records, nil
}

func decodeGraphicRecords(ba []byte, count, productID int) ([]fisb.GraphicRecord, error) {
	records := make([]fisb.GraphicRecord, 0, count)
	os := 0
	for i := 0; i < count; i++ {
		if os+5 > len(ba) {
			return nil, fmt.Errorf("graphic record %d truncated at offset %d", i, os)
		}
		ros := os

		rec := fisb.GraphicRecord{
			OverlayRecordLength: int(ba[ros])<<2 | int(ba[ros+1]&0xC0)>>6,
			ReportNumber:        int(ba[ros+1]&0x3F)<<8 | int(ba[ros+2]),
			ReportYear:          int(ba[ros+3]) >> 1,
			StartYearOffset:     int(ba[ros+3]&0x01)<<1 | int(ba[ros+4]&0x80)>>7,
			EndYearOffset:       int(ba[ros+4]&0x60) >> 5,
			OverlayRecordID:     int(ba[ros+4]&0x1E)>>1 + 1,
			LabelFlag:           int(ba[ros+4] & 0x01),
		}

		ros = os + 5
		if rec.LabelFlag == 0 {
			ros += 2
		} else {
			rec.ObjectLabel = dlac.Decode(ba, ros, 9, false)
			ros += 9
		}

		rec.ElementFlag = int(ba[ros]&0x80) >> 7
		rec.QualFlag = int(ba[ros]&0x40) >> 6
		rec.ParamFlag = int(ba[ros]&0x20) >> 5
		rec.ObjectElement = int(ba[ros] & 0x1F)
		ros++

		rec.ObjectType = int(ba[ros]&0xF0) >> 4
		rec.ObjectStatus = int(ba[ros] & 0x0F)
		ros++

		// Object qualifiers only apply to G-AIRMET.
		if productID == fisb.ProductGAIRMET && rec.QualFlag == 1 {
			rec.ObjectQualifiers = []byte{ba[ros], ba[ros+1], ba[ros+2]}
			ros += 3
		}

		// Parameter fields are ignored per the standard but still
		// occupy space.
		if rec.ParamFlag == 1 {
			ros += 2
		}

		rec.ApplicabilityOptions = int(ba[ros]&0xC0) >> 6
		rec.DateTimeFormat = int(ba[ros]&0x30) >> 4
		rec.GeometryOptions = int(ba[ros] & 0x0F)
		ros++

		rec.OverlayOperator = int(ba[ros]&0xC0) >> 6
		if rec.OverlayOperator >= 2 {
			return nil, fmt.Errorf("graphic record %d: unimplemented overlay operator %d", i, rec.OverlayOperator)
		}
		if rec.GeometryOptions != 0 {
			rec.VerticesCount = int(ba[ros]&0x3F) + 1
		}
		ros++

		if rec.ApplicabilityOptions == 1 || rec.ApplicabilityOptions == 3 {
			rec.HasStart = true
			switch rec.DateTimeFormat {
			case 1:
				rec.StartMonth, rec.StartDay = int(ba[ros]), int(ba[ros+1])
				rec.StartHour, rec.StartMinute = int(ba[ros+2]), int(ba[ros+3])
				ros += 4
			case 2:
				rec.StartDay = int(ba[ros])
				rec.StartHour, rec.StartMinute = int(ba[ros+1]), int(ba[ros+2])
				ros += 3
			case 3:
				rec.StartHour, rec.StartMinute = int(ba[ros]), int(ba[ros+1])
				ros += 2
			}
		}
		if rec.ApplicabilityOptions == 2 || rec.ApplicabilityOptions == 3 {
			rec.HasStop = true
			switch rec.DateTimeFormat {
			case 1:
				rec.StopMonth, rec.StopDay = int(ba[ros]), int(ba[ros+1])
				rec.StopHour, rec.StopMinute = int(ba[ros+2]), int(ba[ros+3])
				ros += 4
			case 2:
				rec.StopDay = int(ba[ros])
				rec.StopHour, rec.StopMinute = int(ba[ros+1]), int(ba[ros+2])
				ros += 3
			case 3:
				rec.StopHour, rec.StopMinute = int(ba[ros]), int(ba[ros+1])
				ros += 2
			}
		}

		for v := 0; v < rec.VerticesCount; v++ {
			switch rec.GeometryOptions {
			case 7, 8:
				if ros+14 > len(ba) {
					return nil, fmt.Errorf("graphic record %d: circular prism vertex truncated", i)
				}
				rec.Vertices = append(rec.Vertices, decode14ByteVertex(ba[ros:]))
				ros += 14
			case 3, 4, 9, 10, 11, 12:
				if ros+6 > len(ba) {
					return nil, fmt.Errorf("graphic record %d: vertex truncated", i)
				}
				rec.Vertices = append(rec.Vertices, decode6ByteVertex(ba[ros:]))
				ros += 6
			default:
				return nil, fmt.Errorf("graphic record %d: unknown vertex type %d", i, rec.GeometryOptions)
			}
		}

		os += rec.OverlayRecordLength
		records = append(records, rec)
	}
	return records, nil
}

// decode6ByteVertex returns [lon, lat, altitude-ft]. Altitude is
// broadcast in hundreds of feet.
func decode6ByteVertex(ba []byte) []float64 {
	lonRaw := int(ba[0])<<11 | int(ba[1])<<3 | int(ba[2]&0xE0)>>5
	latRaw := int(ba[2]&0x1F)<<14 | int(ba[3])<<6 | int(ba[4]&0xFC)>>2
	alt := int(ba[4]&0x03)<<8 | int(ba[5])
	lon, lat := rawToLonLat(lonRaw, latRaw, Geo19Bits)
	return []float64{lon, lat, float64(alt * 100)}
}

// decode14ByteVertex returns the circular prism tuple
// [lonBot, latBot, lonTop, latTop, zBot-ft, zTop-ft, rMajor-nm,
// rMinor-nm, alpha].
func decode14ByteVertex(ba []byte) []float64 {
	lonBotRaw := int(ba[0])<<10 | int(ba[1])<<2 | int(ba[2]&0xC0)>>6
	latBotRaw := int(ba[2]&0x3F)<<12 | int(ba[3])<<4 | int(ba[4]&0xF0)>>4
	lonTopRaw := int(ba[4]&0x0F)<<14 | int(ba[5])<<6 | int(ba[6]&0xFC)>>2
	latTopRaw := int(ba[6]&0x03)<<16 | int(ba[7])<<8 | int(ba[8])

	lonBot, latBot := rawToLonLat(lonBotRaw, latBotRaw, Geo18Bits)
	lonTop, latTop := rawToLonLat(lonTopRaw, latTopRaw, Geo18Bits)

	zBot := int(ba[9]&0xFE) >> 1
	zTop := int(ba[9]&0x01)<<6 | int(ba[10]&0xFC)>>2
	rMajor := int(ba[10]&0x03)<<7 | int(ba[11]&0xFE)>>1
	rMinor := int(ba[11]&0x01)<<8 | int(ba[12])
	alpha := int(ba[13])

	return []float64{
		lonBot, latBot, lonTop, latTop,
		float64(zBot * 500), float64(zTop * 500),
		float64(rMajor) * 0.2, float64(rMinor) * 0.2,
		float64(alpha),
	}
}
