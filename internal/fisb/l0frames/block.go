package l0frames

import (
	"fmt"

	"github.com/fisb-tools/fisb978/internal/fisb"
)

// binsPerBlock is the bin count of every global block product.
const binsPerBlock = 128

// decodeGlobalBlock decodes a global block representation payload for
// the gridded image products (NEXRAD, icing, turbulence, cloud tops,
// lightning).
func decodeGlobalBlock(ba []byte, productID int) (*fisb.GlobalBlock, error) {
	if len(ba) < 4 {
		return nil, fmt.Errorf("global block payload too short: %d bytes", len(ba))
	}

	b := &fisb.GlobalBlock{
		BlockNumber: int(ba[0]&0x0F)<<16 | int(ba[1])<<8 | int(ba[2]),
		ElementID:   int(ba[0]&0x80) >> 7,
	}

	productSpecific := int(ba[0]&0x70) >> 4
	switch productID {
	case fisb.ProductNEXRADRegion, fisb.ProductNEXRADCONUS,
		fisb.ProductCloudTops, fisb.ProductLightning:
		b.ScaleFactor = productSpecific & 0x03
	case fisb.ProductIcingLow, fisb.ProductIcingHigh,
		fisb.ProductTurbLow, fisb.ProductTurbHigh:
		b.ScaleFactor = 1 // always medium resolution
		b.AltitudeLevel = productSpecific * 2000
		if productID == fisb.ProductIcingLow || productID == fisb.ProductTurbLow {
			b.AltitudeLevel += 2000
		} else {
			b.AltitudeLevel += 18000
		}
	default:
		return nil, fmt.Errorf("product %d is not a global block product", productID)
	}

	if b.ElementID == 0 {
		b.EmptyBlocks = emptyBlockBitmap(ba)
		return b, nil
	}

	var err error
	switch productID {
	case fisb.ProductNEXRADRegion, fisb.ProductNEXRADCONUS:
		b.Bins, err = nexradRunLength(ba[3:])
	case fisb.ProductTurbLow, fisb.ProductTurbHigh, fisb.ProductCloudTops:
		b.Bins, err = turbRunLength(ba[3:])
	case fisb.ProductIcingLow, fisb.ProductIcingHigh:
		b.Bins, err = icingRunLength(ba[3:])
	case fisb.ProductLightning:
		b.Bins, err = lightningRunLength(ba[3:])
	}
	if err != nil {
		return nil, fmt.Errorf("product %d block %d: %w", productID, b.BlockNumber, err)
	}
	return b, nil
}

// emptyBlockBitmap expands the empty-block bitmap into a string of '1'
// and '0' characters, one per block following the header block (which
// is itself implied empty). Bits come LSB first within each byte.
func emptyBlockBitmap(ba []byte) string {
	length := int(ba[3] & 0x0F)
	bits := make([]byte, 0, 4+length*8)
	bits = appendBitsLSB(bits, ba[3]>>4, 4)
	for i := 0; i < length && 4+i < len(ba); i++ {
		bits = appendBitsLSB(bits, ba[4+i], 8)
	}
	return string(bits)
}

func appendBitsLSB(dst []byte, b byte, n int) []byte {
	for i := 0; i < n; i++ {
		if b&0x01 != 0 {
			dst = append(dst, '1')
		} else {
			dst = append(dst, '0')
		}
		b >>= 1
	}
	return dst
}

// nexradRunLength expands single-byte runs: high 5 bits are the run
// length minus one, low 3 bits the intensity value.
func nexradRunLength(ba []byte) ([]byte, error) {
	bins := make([]byte, 0, binsPerBlock)
	for i := 0; ; i++ {
		if i >= len(ba) {
			return nil, fmt.Errorf("ran out of data at %d bins", len(bins))
		}
		count := int(ba[i]&0xF8)>>3 + 1
		value := ba[i] & 0x07
		for j := 0; j < count; j++ {
			bins = append(bins, value)
		}
		if len(bins) == binsPerBlock {
			return bins, nil
		}
		if len(bins) > binsPerBlock {
			return nil, fmt.Errorf("more than %d bins", binsPerBlock)
		}
	}
}

// turbRunLength expands turbulence and cloud-top runs. The high nibble
// is the run length minus one, except 0xE which promotes the next byte
// to a run length.
func turbRunLength(ba []byte) ([]byte, error) {
	bins := make([]byte, 0, binsPerBlock)
	for i := 0; ; {
		if i >= len(ba) {
			return nil, fmt.Errorf("ran out of data at %d bins", len(bins))
		}
		value := ba[i] & 0x0F
		count := int(ba[i]&0xF0)>>4 + 1
		if ba[i]&0xF0 == 0xE0 {
			if i+1 >= len(ba) {
				return nil, fmt.Errorf("truncated extended run at %d bins", len(bins))
			}
			count = int(ba[i+1]) + 1
			i += 2
		} else {
			i++
		}
		for j := 0; j < count; j++ {
			bins = append(bins, value)
		}
		if len(bins) == binsPerBlock {
			return bins, nil
		}
		if len(bins) > binsPerBlock {
			return nil, fmt.Errorf("more than %d bins", binsPerBlock)
		}
	}
}

// icingRunLength expands two-byte runs: count byte then value byte
// (ddsssppp: SLD probability, severity, probability).
func icingRunLength(ba []byte) ([]byte, error) {
	bins := make([]byte, 0, binsPerBlock)
	for i := 0; ; i += 2 {
		if i+1 >= len(ba) {
			return nil, fmt.Errorf("ran out of data at %d bins", len(bins))
		}
		count := int(ba[i]) + 1
		value := ba[i+1]
		for j := 0; j < count; j++ {
			bins = append(bins, value)
		}
		if len(bins) == binsPerBlock {
			return bins, nil
		}
		if len(bins) > binsPerBlock {
			return nil, fmt.Errorf("more than %d bins", binsPerBlock)
		}
	}
}

// lightningRunLength expands single-byte lightning runs: high nibble is
// the run length minus one, bit 3 the polarity, low 3 bits the strike
// count. 0xF8 is the undocumented 32-bin filler seen in the wild.
func lightningRunLength(ba []byte) ([]byte, error) {
	bins := make([]byte, 0, binsPerBlock)
	for i := 0; ; i++ {
		if i >= len(ba) {
			return nil, fmt.Errorf("ran out of data at %d bins", len(bins))
		}
		val := ba[i]
		strikes := val & 0x07
		polarity := (val & 0x08) >> 3
		count := int(val&0xF0)>>4 + 1

		if strikes == 0 && polarity == 1 && val == 0xF8 {
			count += 16
		}

		value := val & 0x0F
		// Zero strikes with positive polarity carries no strike data.
		if value == 0x08 {
			value = 0
		}
		for j := 0; j < count; j++ {
			bins = append(bins, value)
		}
		if len(bins) == binsPerBlock {
			if i+1 != len(ba) {
				return nil, fmt.Errorf("%d bins with %d bytes unread", binsPerBlock, len(ba)-i-1)
			}
			return bins, nil
		}
		if len(bins) > binsPerBlock {
			return nil, fmt.Errorf("more than %d bins", binsPerBlock)
		}
	}
}
