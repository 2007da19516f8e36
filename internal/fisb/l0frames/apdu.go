package l0frames

import (
	"encoding/hex"
	"fmt"

	"github.com/fisb-tools/fisb978/internal/fisb"
	"github.com/fisb-tools/fisb978/internal/fisb/dlac"
)

// bitReader reads big-endian bit fields out of a byte slice.
type bitReader struct {
	ba  []byte
	pos int // bit index
}

func (r *bitReader) take(n int) int {
	v := 0
	for i := 0; i < n; i++ {
		byteIdx := r.pos / 8
		v <<= 1
		if byteIdx < len(r.ba) && r.ba[byteIdx]&(0x80>>(r.pos%8)) != 0 {
			v |= 1
		}
		r.pos++
	}
	return v
}

// decodeAPDU decodes an APDU frame body. The header is variable length:
// month and day ride along only when the time option asks for them, and
// the 28-bit segmentation block only when the segmentation flag is set.
func decodeAPDU(ba []byte) (*fisb.APDU, error) {
	if len(ba) < 5 {
		return nil, fmt.Errorf("APDU body too short: %d bytes", len(ba))
	}

	r := &bitReader{ba: ba}
	r.take(3) // reserved A/G/P flags
	a := &fisb.APDU{
		ProductID: r.take(11),
	}
	a.SegFlag = r.take(1) == 1
	a.TimeOption = r.take(2)

	if a.TimeOption >= 1 {
		a.Month = r.take(4)
		a.Day = r.take(5)
	}
	a.Hour = r.take(5)
	a.Minute = r.take(6)

	if a.SegFlag {
		a.ProductFileID = r.take(10)
		a.ProductFileLength = r.take(9)
		a.APDUNumber = r.take(9) // 1-based
	}

	if !fisb.ValidProductIDs[a.ProductID] {
		return nil, fmt.Errorf("unknown APDU product id %d", a.ProductID)
	}

	payloadStart := (r.pos-1)/8 + 1
	if payloadStart > len(ba) {
		return nil, fmt.Errorf("APDU payload start %d past body length %d", payloadStart, len(ba))
	}
	payload := ba[payloadStart:]

	// Segmented payloads cannot be decoded until reassembly; keep the
	// raw bytes for L1.
	if a.SegFlag {
		a.Contents = hex.EncodeToString(payload)
		return a, nil
	}

	switch {
	case a.ProductID == fisb.ProductGenericText:
		a.Contents = dlac.Decode(payload, 0, len(payload), false)
	case a.ProductID >= 8 && a.ProductID <= 17:
		twgo, err := decodeTWGO(payload, a.ProductID)
		if err != nil {
			return nil, err
		}
		a.TWGO = twgo
	default:
		block, err := decodeGlobalBlock(payload, a.ProductID)
		if err != nil {
			return nil, err
		}
		a.Block = block
	}
	return a, nil
}

// DecodeTWGOPayload re-decodes reassembled segment bytes as one TWGO
// payload. Used by the L1 unsegmenter.
func DecodeTWGOPayload(ba []byte, productID int) (*fisb.TWGOPayload, error) {
	return decodeTWGO(ba, productID)
}
