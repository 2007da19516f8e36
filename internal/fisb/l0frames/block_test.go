package l0frames

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fisb-tools/fisb978/internal/fisb"
)

func blockHeader(blockNumber, scale, elementID int) []byte {
	b0 := byte(elementID)<<7 | byte(scale)<<4 | byte(blockNumber>>16&0x0F)
	return []byte{b0, byte(blockNumber >> 8), byte(blockNumber)}
}

func TestDecodeNEXRADRunLength(t *testing.T) {
	// 128 bins: 96 of value 3 (runs of 32) then 32 of value 0.
	payload := blockHeader(1420, 0, 1)
	for i := 0; i < 3; i++ {
		payload = append(payload, 31<<3|3)
	}
	payload = append(payload, 31<<3|0)

	b, err := decodeGlobalBlock(payload, fisb.ProductNEXRADRegion)
	require.NoError(t, err)
	assert.Equal(t, 1420, b.BlockNumber)
	assert.Equal(t, 0, b.ScaleFactor)
	require.Len(t, b.Bins, 128)
	assert.Equal(t, byte(3), b.Bins[0])
	assert.Equal(t, byte(3), b.Bins[95])
	assert.Equal(t, byte(0), b.Bins[96])
}

func TestDecodeTurbExtendedRun(t *testing.T) {
	// 0xE prefix promotes the next byte to the run length: 100 bins of
	// value 7, then 28 of value 2 (runs of 16 + 12).
	payload := blockHeader(9000, 1, 1)
	payload = append(payload, 0xE0|7, 99, 15<<4|2, 11<<4|2)

	b, err := decodeGlobalBlock(payload, fisb.ProductTurbLow)
	require.NoError(t, err)
	assert.Equal(t, 1, b.ScaleFactor) // forced medium resolution
	require.Len(t, b.Bins, 128)
	assert.Equal(t, byte(7), b.Bins[99])
	assert.Equal(t, byte(2), b.Bins[100])
}

func TestDecodeIcingRunLength(t *testing.T) {
	payload := blockHeader(2000, 1, 1)
	payload = append(payload, 127, 0x5A, 0, 0x12) // 128 + 1 overruns

	_, err := decodeGlobalBlock(payload, fisb.ProductIcingLow)
	assert.Error(t, err)

	payload = blockHeader(2000, 1, 1)
	payload = append(payload, 127, 0x5A) // exactly 128
	b, err := decodeGlobalBlock(payload, fisb.ProductIcingLow)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(b.Bins, bytes.Repeat([]byte{0x5A}, 128)))
}

func TestDecodeLightningFiller(t *testing.T) {
	// 0xF8F8F8F8 is the 32-bins-each filler for an all-empty block.
	payload := blockHeader(100, 0, 1)
	payload = append(payload, 0xF8, 0xF8, 0xF8, 0xF8)

	b, err := decodeGlobalBlock(payload, fisb.ProductLightning)
	require.NoError(t, err)
	require.Len(t, b.Bins, 128)
	// Positive polarity with zero strikes reads as empty.
	assert.Equal(t, byte(0), b.Bins[0])
}

func TestDecodeEmptyBlockBitmap(t *testing.T) {
	// Bitmap length 1: 4 bits from the header byte high nibble then 8
	// more, LSB first.
	payload := blockHeader(500, 0, 0)
	payload = append(payload, 0x01|0x50, 0x81) // high nibble 0101, byte 10000001

	b, err := decodeGlobalBlock(payload, fisb.ProductNEXRADCONUS)
	require.NoError(t, err)
	assert.Equal(t, 0, b.ElementID)
	assert.Equal(t, "101010000001", b.EmptyBlocks)
	assert.Empty(t, b.Bins)
}
