package l1assembly

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/fisb-tools/fisb978/internal/fisb"
	"github.com/fisb-tools/fisb978/internal/fisb/l0frames"
)

// twgoSegmentHeader is the 6-byte TWGO header repeated at the front of
// every segment after the first.
const twgoSegmentHeader = 6

// segmentSet accumulates the pieces of one segmented product file.
type segmentSet struct {
	segments [][]byte
	received int
	lastSeen time.Time
}

// Unsegmenter reassembles segmented APDUs. Product files are keyed by
// product id and product file id; slots fill as segments arrive in any
// order, and the completed byte stream is re-decoded as a single TWGO
// payload.
type Unsegmenter struct {
	table map[string]*segmentSet
	ttl   time.Duration
}

// NewUnsegmenter builds an unsegmenter whose partial files expire after
// ttl without a new segment.
func NewUnsegmenter(ttl time.Duration) *Unsegmenter {
	return &Unsegmenter{
		table: make(map[string]*segmentSet),
		ttl:   ttl,
	}
}

// Add stores one segment. When the segment completes its product file
// the reassembled APDU is returned with the segmentation fields
// cleared; otherwise the return is nil.
func (u *Unsegmenter) Add(a *fisb.APDU, now time.Time) (*fisb.APDU, error) {
	key := fmt.Sprintf("S%d-%d", a.ProductID, a.ProductFileID)

	set := u.table[key]
	if set == nil {
		set = &segmentSet{segments: make([][]byte, a.ProductFileLength)}
		u.table[key] = set
	}
	set.lastSeen = now

	idx := a.APDUNumber - 1
	if idx < 0 || idx >= len(set.segments) {
		return nil, fmt.Errorf("segment %d out of range for %s (length %d)",
			a.APDUNumber, key, len(set.segments))
	}
	if set.segments[idx] != nil {
		// Duplicate transmission of a segment we already hold.
		return nil, nil
	}

	raw, err := hex.DecodeString(a.Contents)
	if err != nil {
		return nil, fmt.Errorf("segment %d of %s: %w", a.APDUNumber, key, err)
	}
	set.segments[idx] = raw
	set.received++
	if set.received < len(set.segments) {
		return nil, nil
	}

	// Complete: the first segment keeps its TWGO header, later
	// segments repeat it and get it stripped.
	var whole []byte
	for i, seg := range set.segments {
		if i == 0 {
			whole = append(whole, seg...)
			continue
		}
		if len(seg) < twgoSegmentHeader {
			delete(u.table, key)
			return nil, fmt.Errorf("segment %d of %s shorter than its header", i+1, key)
		}
		whole = append(whole, seg[twgoSegmentHeader:]...)
	}
	delete(u.table, key)

	twgo, err := l0frames.DecodeTWGOPayload(whole, a.ProductID)
	if err != nil {
		return nil, fmt.Errorf("reassembled %s: %w", key, err)
	}

	out := *a
	out.SegFlag = false
	out.ProductFileLength = 0
	out.APDUNumber = 0
	out.Contents = ""
	out.TWGO = twgo
	Diagf("reassembled %s from %d segments", key, len(set.segments))
	return &out, nil
}

// Expunge drops partial product files that have gone stale.
func (u *Unsegmenter) Expunge(now time.Time) {
	for key, set := range u.table {
		if now.Sub(set.lastSeen) > u.ttl {
			Diagf("expunging stale segment set %s (%d of %d received)",
				key, set.received, len(set.segments))
			delete(u.table, key)
		}
	}
}
