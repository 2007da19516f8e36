// Package l1assembly turns L0 frames into whole messages: it
// reassembles segmented APDUs and pairs the text and graphic halves of
// TWGO reports, holding partial state until the missing half arrives.
package l1assembly

import (
	"time"

	"github.com/fisb-tools/fisb978/internal/fisb"
)

// Message is the unit handed to L2: one whole frame with its packet
// context attached. Exactly one of APDU, CRL, or ServiceStatus is set.
// For matched TWGO products the paired halves ride in Text and
// Graphics and the APDU carries only header context.
type Message struct {
	Station      string
	ReceivedTime time.Time

	APDU          *fisb.APDU
	CRL           *fisb.CRLFrame
	ServiceStatus *fisb.ServiceStatusFrame

	// Set for TWGO products that passed through the matcher.
	Location string
	Text     *fisb.TextRecord
	Graphics []fisb.GraphicRecord
}

// ProductID returns the APDU product id, or 0 for non-APDU messages.
func (m *Message) ProductID() int {
	if m.APDU == nil {
		return 0
	}
	return m.APDU.ProductID
}
