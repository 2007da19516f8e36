package l0frames

import (
	"fmt"

	"github.com/fisb-tools/fisb978/internal/fisb"
)

// decodeServiceStatusFrame decodes the aircraft list a station is
// providing TIS-B services for: 4-byte entries of flags plus a 24-bit
// ICAO address. Entries with a nonzero address qualifier get a
// "/<qualifier>" suffix so each form tracks independently.
func decodeServiceStatusFrame(ba []byte) (*fisb.ServiceStatusFrame, error) {
	if len(ba)%4 != 0 {
		return nil, fmt.Errorf("service status frame length %d not a multiple of 4", len(ba))
	}

	ss := &fisb.ServiceStatusFrame{}
	for i := 0; i+3 < len(ba); i += 4 {
		addr := int(ba[i+1])<<16 | int(ba[i+2])<<8 | int(ba[i+3])
		qualifier := int(ba[i] & 0x07)

		entry := fmt.Sprintf("%06x", addr)
		if qualifier != 0 {
			entry = fmt.Sprintf("%s/%d", entry, qualifier)
		}
		ss.Traffic = append(ss.Traffic, entry)
	}
	return ss, nil
}
