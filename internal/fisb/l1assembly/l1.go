package l1assembly

import (
	"time"

	"github.com/fisb-tools/fisb978/internal/fisb"
)

// Default lifetimes for partial state. Segmented files retransmit
// within minutes; TWGO reports can sit unpaired for hours.
const (
	DefaultSegmentTTL = time.Hour
	DefaultTWGOTTL    = 12 * time.Hour
)

// expungeInterval is how often the partial-state tables are swept.
const expungeInterval = time.Minute

// Assembler is the L1 stage: it reassembles segmented APDUs, pairs
// TWGO halves, and passes everything else through with its packet
// context attached. Not safe for concurrent use; the pipeline runs one
// assembler per stream.
type Assembler struct {
	unsegmenter *Unsegmenter
	matcher     *TwgoMatcher
	lastSweep   time.Time
}

// NewAssembler builds an assembler with the default TTLs.
func NewAssembler() *Assembler {
	return &Assembler{
		unsegmenter: NewUnsegmenter(DefaultSegmentTTL),
		matcher:     NewTwgoMatcher(DefaultTWGOTTL),
	}
}

// Process runs one packet through the stage and returns the messages
// ready for L2. Frame-level failures are logged and skipped so one bad
// frame cannot drop its packet siblings.
func (asm *Assembler) Process(pkt *fisb.Packet) []*Message {
	var out []*Message

	for i := range pkt.Frames {
		frame := &pkt.Frames[i]
		switch frame.FrameType {
		case fisb.FrameTypeAPDU:
			msg, err := asm.processAPDU(frame.APDU, pkt)
			if err != nil {
				Diagf("station %s: %v", pkt.Station, err)
				continue
			}
			if msg != nil {
				out = append(out, msg)
			}
		case fisb.FrameTypeCRL:
			out = append(out, &Message{
				Station:      pkt.Station,
				ReceivedTime: pkt.ReceivedTime,
				CRL:          frame.CRL,
			})
		case fisb.FrameTypeServiceStatus:
			out = append(out, &Message{
				Station:      pkt.Station,
				ReceivedTime: pkt.ReceivedTime,
				ServiceStatus: frame.ServiceStatus,
			})
		}
	}

	if pkt.ReceivedTime.Sub(asm.lastSweep) >= expungeInterval {
		asm.lastSweep = pkt.ReceivedTime
		asm.unsegmenter.Expunge(pkt.ReceivedTime)
		asm.matcher.Expunge(pkt.ReceivedTime)
	}
	return out
}

func (asm *Assembler) processAPDU(a *fisb.APDU, pkt *fisb.Packet) (*Message, error) {
	if a == nil {
		return nil, nil
	}

	if a.SegFlag {
		whole, err := asm.unsegmenter.Add(a, pkt.ReceivedTime)
		if err != nil || whole == nil {
			return nil, err
		}
		a = whole
	}

	// Products with both text and graphic halves go through the
	// pairing table. SUA is text-only and G-AIRMET graphics-only, so
	// they pass straight through, as do generic text and image blocks.
	if fisb.TWGOProductIDs[a.ProductID] {
		return asm.matcher.Match(a, pkt.Station, pkt.ReceivedTime)
	}

	msg := &Message{
		Station:      pkt.Station,
		ReceivedTime: pkt.ReceivedTime,
		APDU:         a,
	}
	if a.TWGO != nil {
		msg.Location = a.TWGO.Location
	}
	return msg, nil
}
