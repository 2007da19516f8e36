package l2products

import (
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fisb-tools/fisb978/internal/fisb"
	"github.com/fisb-tools/fisb978/internal/fisb/l1assembly"
)

func TestAltBlockNumber(t *testing.T) {
	tests := []struct {
		name        string
		blockNumber int
		scaleFactor int
		want        int
	}{
		{"high res origin", 0, 0, 0},
		{"high res mid latitude", 276640, 0, 614340},
		{"medium res origin", 1800, 1, 0},
		{"medium res row 10", 24325, 1, 10005},
		{"low res origin", 3600, 2, 0},
		{"low res row 3", 15768, 2, 3002},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, altBlockNumber(tc.blockNumber, tc.scaleFactor))
		})
	}
}

func countingBins() []byte {
	bins := make([]byte, 128)
	for i := range bins {
		bins[i] = byte(i)
	}
	return bins
}

func TestNormalizeBinsBelow60(t *testing.T) {
	bins := countingBins()
	above60, halves := normalizeBins(614340, 0, bins)
	assert.False(t, above60)
	require.Len(t, halves, 1)
	assert.Equal(t, bins, halves[0])
}

func TestNormalizeBinsAbove60Split(t *testing.T) {
	above60, halves := normalizeBins(900000, 0, countingBins())
	require.True(t, above60)
	require.Len(t, halves, 2)
	left, right := halves[0], halves[1]
	require.Len(t, left, 128)
	require.Len(t, right, 128)

	// The left half starts at bin 16 of the source row, the right half
	// at bin 0, and every pixel is doubled to restore full width.
	assert.Equal(t, []byte{16, 16, 17, 17}, left[:4])
	assert.Equal(t, []byte{0, 0, 1, 1}, right[:4])
	// Second source row starts at 32: its left half begins with bin 48.
	assert.Equal(t, []byte{48, 48}, left[32:34])
}

func blockMessage(productID int, block *fisb.GlobalBlock) *l1assembly.Message {
	return &l1assembly.Message{
		Station:      "45.0~-90.0",
		ReceivedTime: rcvd,
		APDU: &fisb.APDU{
			ProductID: productID,
			Hour:      7, Minute: 10,
			Block: block,
		},
	}
}

func TestRegionalNEXRADBlock(t *testing.T) {
	s := newTestSynthesizer()
	bins := countingBins()
	msg := blockMessage(fisb.ProductNEXRADRegion, &fisb.GlobalBlock{
		BlockNumber: 276640,
		ElementID:   1,
		Bins:        bins,
	})

	products, err := s.Process(msg)
	require.NoError(t, err)
	require.Len(t, products, 1)
	p := products[0]

	event := time.Date(2021, 5, 14, 7, 10, 0, 0, time.UTC)
	assert.Equal(t, fisb.TypeNEXRADRegional, p.Type)
	assert.Equal(t, "NR-"+event.Format(time.RFC3339), p.UniqueName)
	assert.Equal(t, 614340, p.AltBlockNumber)
	assert.Equal(t, hex.EncodeToString(bins), p.Bins)
	assert.True(t, p.NoDigest)
	require.NotNil(t, p.ObservationTime)
	assert.Equal(t, event, *p.ObservationTime)
	assert.Equal(t, event.Add(75*time.Minute), p.ExpirationTime)
}

func TestTurbulenceBlockNaming(t *testing.T) {
	s := newTestSynthesizer()
	msg := blockMessage(fisb.ProductTurbLow, &fisb.GlobalBlock{
		BlockNumber:   1800,
		ScaleFactor:   1,
		ElementID:     1,
		AltitudeLevel: 8000,
		Bins:          countingBins(),
	})

	products, err := s.Process(msg)
	require.NoError(t, err)
	require.Len(t, products, 1)
	p := products[0]

	assert.Equal(t, "TURBULENCE_08000", p.Type)
	assert.Equal(t, "T8000-2021-05-14T07:10:00Z", p.UniqueName)
	// Forecast products carry a valid time, not an observation time.
	require.NotNil(t, p.ValidTime)
	assert.Nil(t, p.ObservationTime)
	assert.Equal(t, p.ValidTime.Add(105*time.Minute), p.ExpirationTime)
}

func TestBlockAbove60FansOut(t *testing.T) {
	s := newTestSynthesizer()
	msg := blockMessage(fisb.ProductNEXRADRegion, &fisb.GlobalBlock{
		BlockNumber: 405000, // row 900, the first above 60 degrees
		ElementID:   1,
		Bins:        countingBins(),
	})

	products, err := s.Process(msg)
	require.NoError(t, err)
	require.Len(t, products, 2)

	assert.Equal(t, 900000, products[0].AltBlockNumber)
	assert.Equal(t, 900001, products[1].AltBlockNumber)

	left, err := hex.DecodeString(products[0].Bins)
	require.NoError(t, err)
	right, err := hex.DecodeString(products[1].Bins)
	require.NoError(t, err)
	assert.Equal(t, []byte{16, 16}, left[:2])
	assert.Equal(t, []byte{0, 0}, right[:2])
}

func TestEmptyBlockRunList(t *testing.T) {
	s := newTestSynthesizer()
	msg := blockMessage(fisb.ProductNEXRADCONUS, &fisb.GlobalBlock{
		BlockNumber: 1000,
		ElementID:   0,
		EmptyBlocks: "101",
	})

	products, err := s.Process(msg)
	require.NoError(t, err)
	require.Len(t, products, 3, "header block plus the two flagged ones")

	var altBNs []int
	for _, p := range products {
		altBNs = append(altBNs, p.AltBlockNumber)
		assert.Equal(t, emptyBins, p.Bins)
	}
	assert.Equal(t, []int{2100, 2101, 2103}, altBNs)
}

func TestEmptyBlocksAbove60MediumRes(t *testing.T) {
	s := newTestSynthesizer()
	msg := blockMessage(fisb.ProductNEXRADCONUS, &fisb.GlobalBlock{
		BlockNumber: 407250,
		ScaleFactor: 1,
		ElementID:   0,
		EmptyBlocks: "1",
	})

	products, err := s.Process(msg)
	require.NoError(t, err)
	// Two wire blocks, each split into a column pair above 60 degrees.
	require.Len(t, products, 4)
	for i := 0; i < len(products); i += 2 {
		assert.Equal(t, products[i].AltBlockNumber+1, products[i+1].AltBlockNumber)
		assert.Equal(t, emptyBins, products[i].Bins)
	}
}
