package l2products

// Gridded image products arrive as 128-bin blocks addressed by a block
// number that winds around the globe. Block numbers are rewritten here
// into row*1000+column form so that blocks stacking north-south share a
// column, which is what the curator's raster assembly wants. Bins are
// hex encoded onto the product.

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/fisb-tools/fisb978/internal/fisb"
)

// emptyBins is the hex encoding of 128 zero-value bins.
var emptyBins = hex.EncodeToString(make([]byte, 128))

// altBlockNumber rewrites a wire block number as row*1000+column. Rows
// are 1-arc-minute latitude bands counted from the equator; columns
// count from the prime meridian, always below 450 at every resolution
// (high resolution has 450 blocks per row, medium 90, low 50).
func altBlockNumber(blockNumber, scaleFactor int) int {
	offset, div := 0, 1
	switch scaleFactor {
	case 1:
		offset, div = 1800, 5
	case 2:
		offset, div = 3600, 9
	}
	span := offset + 450
	row := (blockNumber - offset) / span
	col := (blockNumber - offset) % span / div
	return row*1000 + col
}

// normalizeBins splits a block above 60 degrees latitude into left and
// right halves with each bin doubled. Above 60 degrees only even block
// numbers are broadcast at double width; splitting restores the rule
// that same-numbered columns stack vertically. Returns the bins
// unchanged for blocks below 60 degrees.
func normalizeBins(altBN, scaleFactor int, bins []byte) (above60 bool, halves [][]byte) {
	row := altBN / 1000
	switch scaleFactor {
	case 0:
		if row < 900 {
			return false, [][]byte{bins}
		}
	case 1:
		if row < 180 {
			return false, [][]byte{bins}
		}
	default:
		if row < 100 {
			return false, [][]byte{bins}
		}
	}

	if bins == nil {
		// Empty-block caller only wants the above-60 answer.
		return true, nil
	}

	left := make([]byte, 0, 128)
	right := make([]byte, 0, 128)
	for i := 0; i < 4; i++ {
		for j := 0; j < 16; j++ {
			l := bins[i*32+j+16]
			r := bins[i*32+j]
			left = append(left, l, l)
			right = append(right, r, r)
		}
	}
	return true, [][]byte{left, right}
}

// blockProductInfo resolves the per-product message type, unique-name
// prefix, and expiration for an image block.
func (s *Synthesizer) blockProductInfo(productID int, block *fisb.GlobalBlock) (name, abbr string, ttl time.Duration, isForecast bool, err error) {
	switch productID {
	case fisb.ProductNEXRADRegion:
		return fisb.TypeNEXRADRegional, "NR", s.cfg.RegionalNEXRADExpiration, false, nil
	case fisb.ProductNEXRADCONUS:
		return fisb.TypeNEXRADCONUS, "NC", s.cfg.CONUSNEXRADExpiration, false, nil
	case fisb.ProductTurbLow, fisb.ProductTurbHigh:
		return fmt.Sprintf("TURBULENCE_%05d", block.AltitudeLevel),
			fmt.Sprintf("T%d", block.AltitudeLevel), s.cfg.TurbulenceExpiration, true, nil
	case fisb.ProductIcingLow, fisb.ProductIcingHigh:
		return fmt.Sprintf("ICING_%05d", block.AltitudeLevel),
			fmt.Sprintf("I%d", block.AltitudeLevel), s.cfg.IcingExpiration, true, nil
	case fisb.ProductCloudTops:
		return fisb.TypeCloudTops, "CT", s.cfg.CloudTopsExpiration, true, nil
	case fisb.ProductLightning:
		return fisb.TypeLightning, "LGT", s.cfg.LightningExpiration, false, nil
	}
	return "", "", 0, false, fmt.Errorf("product %d is not an image block product", productID)
}

// synthesizeBlock turns one global block frame into image block
// products. Usually one message; empty-block run lists and blocks
// above 60 degrees latitude fan out into several.
func (s *Synthesizer) synthesizeBlock(a *fisb.APDU, rcvd time.Time) ([]*fisb.Product, error) {
	block := a.Block
	if block == nil {
		return nil, fmt.Errorf("product %d frame has no block payload", a.ProductID)
	}

	// Every block of one image shares a single event time; a newer
	// event time is a different image. For observations it is the
	// observation time, for forecasts the valid time.
	eventTime := FromAPDUHourMin(rcvd, a.Hour, a.Minute, true)

	name, abbr, ttl, isForecast, err := s.blockProductInfo(a.ProductID, block)
	if err != nil {
		return nil, err
	}
	expire := eventTime.Add(ttl)
	uniqueName := abbr + "-" + eventTime.Format(time.RFC3339)

	base := func(altBN int, bins []byte) *fisb.Product {
		p := &fisb.Product{
			Type:           name,
			UniqueName:     uniqueName,
			AltBlockNumber: altBN,
			ScaleFactor:    block.ScaleFactor,
			Bins:           hex.EncodeToString(bins),
			NoDigest:       true,
			ReceivedTime:   rcvd,
			ExpirationTime: expire,
		}
		if isForecast {
			p.ValidTime = &eventTime
		} else {
			p.ObservationTime = &eventTime
		}
		return p
	}

	if block.ElementID == 0 {
		return s.emptyBlocks(block, base), nil
	}

	altBN := altBlockNumber(block.BlockNumber, block.ScaleFactor)
	above60, halves := normalizeBins(altBN, block.ScaleFactor, block.Bins)

	out := []*fisb.Product{base(altBN, halves[0])}
	if above60 {
		out = append(out, base(altBN+1, halves[1]))
	}
	return out, nil
}

// emptyBlocks expands an empty-block run list into zero-filled block
// messages, one per flagged block (two above 60 degrees).
func (s *Synthesizer) emptyBlocks(block *fisb.GlobalBlock, base func(int, []byte) *fisb.Product) []*fisb.Product {
	// The header block itself is empty too.
	bitmap := "1" + block.EmptyBlocks

	incr := 1
	switch block.ScaleFactor {
	case 1:
		incr = 5
	case 2:
		incr = 9
	}

	var out []*fisb.Product
	bn := block.BlockNumber
	for _, bit := range bitmap {
		if bit == '1' {
			altBN := altBlockNumber(bn, block.ScaleFactor)
			p := base(altBN, nil)
			p.Bins = emptyBins
			out = append(out, p)

			if above60, _ := normalizeBins(altBN, block.ScaleFactor, nil); above60 {
				twin := *p
				twin.AltBlockNumber = altBN + 1
				out = append(out, &twin)
			}
		}

		// Above 60 degrees medium resolution skips the odd numbers.
		if bn >= 405000 && block.ScaleFactor == 1 {
			bn += 2
		} else {
			bn += incr
		}
	}
	return out
}
