package l0frames

import (
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildUplink assembles a 432-byte uplink payload with the given header
// fields and frame bytes appended after the 8-byte header.
func buildUplink(t *testing.T, rawLat, rawLon, slot, tisb int, frames []byte) []byte {
	t.Helper()
	ba := make([]byte, uplinkLength)
	ba[0] = byte(rawLat >> 15)
	ba[1] = byte(rawLat >> 7)
	ba[2] = byte(rawLat&0x7F) << 1
	ba[2] |= byte(rawLon >> 23 & 0x01)
	ba[3] = byte(rawLon >> 15)
	ba[4] = byte(rawLon >> 7)
	ba[5] = byte(rawLon&0x7F)<<1 | 0x01 // position valid
	ba[6] = 0x80 | 0x20 | byte(slot)    // utc coupled, app data valid
	ba[7] = byte(tisb) << 4
	require.LessOrEqual(t, len(frames), uplinkLength-headerLength)
	copy(ba[headerLength:], frames)
	return ba
}

func TestDecodeUplinkHeader(t *testing.T) {
	// 45N 90W with slot 5 at a TIS-B high-power site.
	rawLat := int(45.0 / 360.0 * (1 << 24))
	rawLon := int(270.0 / 360.0 * (1 << 24))
	rcvd := time.Date(2021, 5, 14, 7, 15, 37, 0, time.UTC)

	pkt, err := DecodePacket(buildUplink(t, rawLat, rawLon, 5, 11, nil), rcvd)
	require.NoError(t, err)

	assert.Equal(t, 45.0, pkt.Latitude)
	assert.Equal(t, -90.0, pkt.Longitude)
	assert.Equal(t, "45.0~-90.0", pkt.Station)
	assert.True(t, pkt.PositionValid)
	assert.True(t, pkt.AppDataValid)
	assert.True(t, pkt.UTCCoupled)
	assert.Equal(t, 5, pkt.SlotID)
	assert.Equal(t, 6, pkt.TransmissionSlot)
	assert.Equal(t, 110, pkt.MSO)
	assert.InDelta(t, 33.5, pkt.MSOUTCMs, 1e-9)
	assert.Equal(t, 11, pkt.TISBSiteID)
	assert.Equal(t, "low tier", pkt.TISBSiteTier)

	// 07:15:37 -> 26137 s past midnight, 26137 % 32 = 25.
	// slot 5 - 25 wraps to 12, channel 13.
	assert.Equal(t, 13, pkt.DataChannel)
}

func TestDecodePacketSkipsReservedFrames(t *testing.T) {
	// One reserved frame (type 5, length 3) then a terminating zero
	// length. Length 3 encodes as 0x01 / high bit of the next byte.
	frames := []byte{0x01, 0x80 | 0x05, 0xAA, 0xBB, 0xCC, 0x00, 0x00}

	pkt, err := DecodePacket(buildUplink(t, 0, 0, 0, 0, frames), time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, pkt.Frames, 1)
	assert.Equal(t, 5, pkt.Frames[0].FrameType)
	assert.Nil(t, pkt.Frames[0].APDU)
}

func TestDecodePacketShort(t *testing.T) {
	_, err := DecodePacket(make([]byte, 100), time.Now().UTC())
	assert.ErrorIs(t, err, ErrShortPacket)
}

func TestParseLine(t *testing.T) {
	raw := make([]byte, uplinkLength)
	for i := range raw {
		raw[i] = byte(i)
	}
	line := fmt.Sprintf("+%s;rs=3;rssi=-14.2;t=1620976537.250;", hex.EncodeToString(raw))

	got, rcvd, err := ParseLine(line)
	require.NoError(t, err)
	assert.Equal(t, raw, got)
	assert.Equal(t, time.Date(2021, 5, 14, 7, 15, 37, 250e6, time.UTC), rcvd)
}

func TestParseLineRejectsGarbage(t *testing.T) {
	for _, line := range []string{
		"no prefix;t=12;",
		"+zzzz;t=12;",
		"+00ff;",
		"+00ff;t=abc;",
	} {
		_, _, err := ParseLine(line)
		assert.ErrorIs(t, err, ErrBadLine, "line %q", line)
	}
}
