// Package l0frames parses raw 978 MHz ground uplink messages into
// typed packets and frames: the 8-byte uplink header, APDU product
// payloads (TWGO records, global image blocks, DLAC text), current
// report lists, and service status frames.
package l0frames

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/fisb-tools/fisb978/internal/fisb"
)

// Uplink messages are always 432 bytes: 8 header + 424 application.
const uplinkLength = 432

// headerLength is the ground uplink header size in bytes.
const headerLength = 8

var (
	// ErrShortPacket reports an uplink payload under 432 bytes.
	ErrShortPacket = errors.New("uplink payload shorter than 432 bytes")
	// ErrBadLine reports a capture line that does not follow the
	// "+<hex>;...;t=<secs>;" form.
	ErrBadLine = errors.New("malformed capture line")
)

// ParseLine splits one capture line of the form
//
//	+<hexpayload>;rs=<n>;rssi=<f>;t=<epoch-secs>;
//
// into the raw payload bytes and the receive timestamp. Attribute
// fields other than t= are tolerated and ignored.
func ParseLine(line string) ([]byte, time.Time, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "+") {
		return nil, time.Time{}, fmt.Errorf("%w: missing + prefix", ErrBadLine)
	}
	fields := strings.Split(strings.TrimPrefix(line, "+"), ";")
	if len(fields) < 2 {
		return nil, time.Time{}, fmt.Errorf("%w: no attribute fields", ErrBadLine)
	}

	raw, err := hex.DecodeString(fields[0])
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("%w: %v", ErrBadLine, err)
	}

	var rcvd time.Time
	for _, f := range fields[1:] {
		if !strings.HasPrefix(f, "t=") {
			continue
		}
		secs, err := strconv.ParseFloat(strings.TrimPrefix(f, "t="), 64)
		if err != nil {
			return nil, time.Time{}, fmt.Errorf("%w: bad t= field: %v", ErrBadLine, err)
		}
		rcvd = time.UnixMilli(int64(math.Round(secs * 1000))).UTC()
	}
	if rcvd.IsZero() {
		return nil, time.Time{}, fmt.Errorf("%w: missing t= field", ErrBadLine)
	}
	return raw, rcvd, nil
}

// DecodePacket decodes a full 432-byte uplink payload received at rcvd.
// Frames that fail to decode are skipped with a diagnostic; the header
// fields are always returned when the payload is long enough.
func DecodePacket(raw []byte, rcvd time.Time) (*fisb.Packet, error) {
	if len(raw) < uplinkLength {
		return nil, fmt.Errorf("%w: got %d", ErrShortPacket, len(raw))
	}

	pkt := decodeUplinkHeader(raw, rcvd)
	if !pkt.AppDataValid {
		return pkt, nil
	}

	for off := headerLength; off < uplinkLength-1; {
		frameLen := int(raw[off])<<1 | int(raw[off+1]&0x80)>>7
		if frameLen == 0 {
			break
		}
		frameType := int(raw[off+1] & 0x0F)
		end := off + 2 + frameLen
		if end > uplinkLength {
			Diagf("frame at offset %d overruns payload (len %d)", off, frameLen)
			break
		}
		body := raw[off+2 : end]

		frame, err := decodeFrame(frameType, body)
		if err != nil {
			Diagf("station %s: frame type %d: %v", pkt.Station, frameType, err)
		} else if frame != nil {
			pkt.Frames = append(pkt.Frames, *frame)
		}
		off = end
	}
	return pkt, nil
}

// decodeUplinkHeader pulls apart the 8-byte ground uplink header.
func decodeUplinkHeader(ba []byte, rcvd time.Time) *fisb.Packet {
	rawLat := int(ba[0])<<15 | int(ba[1])<<7 | int(ba[2])>>1
	rawLon := int(ba[2]&0x01)<<23 | int(ba[3])<<15 | int(ba[4])<<7 | int(ba[5])>>1
	lon, lat := rawToLonLat(rawLon, rawLat, Geo24Bits)

	slotID := int(ba[6] & 0x1F)
	tisbID := int(ba[7]&0xF0) >> 4

	secsPastMidnight := rcvd.Hour()*3600 + rcvd.Minute()*60 + rcvd.Second()
	channel := slotID - secsPastMidnight%32
	if channel < 0 {
		channel += 32
	}

	return &fisb.Packet{
		Station:          StationName(lat, lon),
		Latitude:         lat,
		Longitude:        lon,
		PositionValid:    ba[5]&0x01 != 0,
		AppDataValid:     ba[6]&0x20 != 0,
		UTCCoupled:       ba[6]&0x80 != 0,
		SlotID:           slotID,
		TransmissionSlot: slotID + 1,
		MSO:              slotID * 22,
		MSOUTCMs:         float64(slotID*22)*0.25 + 6.0,
		DataChannel:      channel + 1,
		TISBSiteID:       tisbID,
		TISBSiteTier:     fisb.TISBTierLookup[hexDigit(tisbID)],
		ReceivedTime:     rcvd,
	}
}

// StationName builds the station identity from its broadcast position,
// latitude first.
func StationName(lat, lon float64) string {
	return formatCoord(lat) + "~" + formatCoord(lon)
}

func formatCoord(v float64) string {
	s := strconv.FormatFloat(v, 'f', 6, 64)
	s = strings.TrimRight(s, "0")
	if strings.HasSuffix(s, ".") {
		s += "0"
	}
	return s
}

func hexDigit(v int) byte {
	const digits = "0123456789ABCDEF"
	return digits[v&0x0F]
}

func decodeFrame(frameType int, body []byte) (*fisb.Frame, error) {
	switch frameType {
	case fisb.FrameTypeAPDU:
		apdu, err := decodeAPDU(body)
		if err != nil {
			return nil, err
		}
		return &fisb.Frame{FrameType: frameType, APDU: apdu}, nil
	case fisb.FrameTypeCRL:
		crl, err := decodeCRLFrame(body)
		if err != nil {
			return nil, err
		}
		return &fisb.Frame{FrameType: frameType, CRL: crl}, nil
	case fisb.FrameTypeServiceStatus:
		ss, err := decodeServiceStatusFrame(body)
		if err != nil {
			return nil, err
		}
		return &fisb.Frame{FrameType: frameType, ServiceStatus: ss}, nil
	default:
		// Reserved frame types are carried but not decoded.
		return &fisb.Frame{FrameType: frameType}, nil
	}
}
