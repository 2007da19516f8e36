package l0frames

import (
	"fmt"

	"github.com/fisb-tools/fisb978/internal/fisb"
	"github.com/fisb-tools/fisb978/internal/fisb/dlac"
)

// decodeCRLFrame decodes a current report list frame: a 4- or 7-byte
// header followed by up to 138 three-byte report entries.
func decodeCRLFrame(ba []byte) (*fisb.CRLFrame, error) {
	if len(ba) < 4 {
		return nil, fmt.Errorf("CRL frame too short: %d bytes", len(ba))
	}

	c := &fisb.CRLFrame{
		ProductID: int(ba[0])<<3 | int(ba[1]&0xE0)>>5,
		RangeNM:   int(ba[2]) * 5,
		TFRNOTAM:  ba[1]&0x10 != 0,
		Overflow:  ba[1]&0x02 != 0,
	}

	var count, offset int
	if ba[1]&0x01 != 0 {
		c.LocationFlag = true
		c.LocationID = dlac.Decode(ba, 3, 3, false)
		count = int(ba[6])
		offset = 7
	} else {
		count = int(ba[3])
		offset = 4
	}

	if offset+count*3 > len(ba) {
		return nil, fmt.Errorf("CRL frame: %d reports overrun %d bytes", count, len(ba))
	}

	for i := 0; i < count; i++ {
		o := offset + i*3
		c.Reports = append(c.Reports, fisb.CRLEntry{
			YearOrMonth:  int(ba[o] & 0x7F),
			ReportNumber: int(ba[o+1]&0x3F)<<8 | int(ba[o+2]),
			TextFlag:     ba[o+1]&0x80 != 0,
			GraphicsFlag: ba[o+1]&0x40 != 0,
		})
	}
	return c, nil
}
