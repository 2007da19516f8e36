package l1assembly

import (
	"fmt"
	"time"

	"github.com/fisb-tools/fisb978/internal/fisb"
)

// matchEntry is the stored state for one TWGO report.
type matchEntry struct {
	text     *fisb.TextRecord
	graphics []fisb.GraphicRecord
	location string
	lastSeen time.Time
}

// TwgoMatcher pairs the text and graphic halves of TWGO reports. Text
// is forwarded as soon as it arrives; graphics wait until their text
// half exists, then the combined report is forwarded. Changed text
// invalidates any stored graphics, since the overlay may no longer
// describe the new wording.
type TwgoMatcher struct {
	table map[string]*matchEntry
	ttl   time.Duration
}

// NewTwgoMatcher builds a matcher whose stored reports expire after ttl
// without a retransmission.
func NewTwgoMatcher(ttl time.Duration) *TwgoMatcher {
	return &TwgoMatcher{
		table: make(map[string]*matchEntry),
		ttl:   ttl,
	}
}

// reportKey identifies one report across its text and graphic halves.
// TMOA and TRA repeat report numbers across months, so the APDU month
// participates.
func reportKey(productID, year, number int, location string, month int) string {
	if location == "" {
		location = "X"
	}
	return fmt.Sprintf("%d-%d-%d-%s-%d", productID, year, number, location, month)
}

// Match feeds one TWGO APDU through the pairing table. The returned
// message is nil when nothing should be forwarded yet.
func (m *TwgoMatcher) Match(a *fisb.APDU, station string, rcvd time.Time) (*Message, error) {
	twgo := a.TWGO
	if twgo == nil {
		return nil, fmt.Errorf("product %d frame has no TWGO payload", a.ProductID)
	}

	switch twgo.RecordFormat {
	case 8:
		return m.matchGraphics(a, station, rcvd)
	case 2:
		return m.matchText(a, station, rcvd)
	default:
		// Reserved record formats are dropped.
		return nil, nil
	}
}

func (m *TwgoMatcher) matchGraphics(a *fisb.APDU, station string, rcvd time.Time) (*Message, error) {
	twgo := a.TWGO
	if len(twgo.Graphics) == 0 {
		return nil, fmt.Errorf("product %d graphic payload with no records", a.ProductID)
	}

	first := twgo.Graphics[0]
	key := reportKey(a.ProductID, first.ReportYear, first.ReportNumber, twgo.Location, a.Month)

	entry := m.table[key]
	if entry == nil {
		entry = &matchEntry{}
		m.table[key] = entry
	}
	entry.graphics = twgo.Graphics
	entry.location = twgo.Location
	entry.lastSeen = rcvd

	// Graphics without their text half wait in the table.
	if entry.text == nil {
		Tracef("graphics for %s buffered awaiting text", key)
		return nil, nil
	}
	return m.emit(a, station, rcvd, entry), nil
}

func (m *TwgoMatcher) matchText(a *fisb.APDU, station string, rcvd time.Time) (*Message, error) {
	twgo := a.TWGO
	if len(twgo.Text) != 1 {
		return nil, fmt.Errorf("product %d text payload with %d records, want 1",
			a.ProductID, len(twgo.Text))
	}
	rec := twgo.Text[0]
	key := reportKey(a.ProductID, rec.ReportYear, rec.ReportNumber, twgo.Location, a.Month)

	// Cancellations forward unconditionally and clear any state.
	if rec.ReportStatus == 0 {
		delete(m.table, key)
		return &Message{
			Station:      station,
			ReceivedTime: rcvd,
			APDU:         a,
			Location:     twgo.Location,
			Text:         &rec,
		}, nil
	}

	// An empty active report is a keep-alive. Only the NOTAM product
	// forwards them: a renewed TFR keeps its geometry alive that way.
	if rec.Text == "" && a.ProductID != fisb.ProductNOTAM {
		return nil, nil
	}

	entry := m.table[key]
	if entry == nil {
		entry = &matchEntry{}
		m.table[key] = entry
	}

	changed := entry.text != nil && entry.text.Text != rec.Text
	if changed {
		// The stored overlay belonged to the old wording.
		Diagf("text for %s changed, dropping stored graphics", key)
		entry.graphics = nil
	}
	entry.text = &rec
	entry.location = twgo.Location
	entry.lastSeen = rcvd

	return m.emit(a, station, rcvd, entry), nil
}

func (m *TwgoMatcher) emit(a *fisb.APDU, station string, rcvd time.Time, entry *matchEntry) *Message {
	msg := &Message{
		Station:      station,
		ReceivedTime: rcvd,
		APDU:         a,
		Location:     entry.location,
		Text:         entry.text,
	}
	if entry.graphics != nil {
		msg.Graphics = entry.graphics
	}
	return msg
}

// Expunge drops reports not retransmitted within the TTL.
func (m *TwgoMatcher) Expunge(now time.Time) {
	for key, entry := range m.table {
		if now.Sub(entry.lastSeen) > m.ttl {
			delete(m.table, key)
		}
	}
}
