// Package l3dedup suppresses retransmissions. FIS-B repeats every
// report on a fixed schedule; the filter remembers a digest of each
// product it has passed and drops later copies that hash the same, so
// downstream consumers mostly see changes. An unchanged report is still
// re-forwarded once per refresh floor as a heartbeat against silent
// store loss. Products whose lifecycle the curator tracks through a
// current report list bypass the filter untouched.
package l3dedup

import (
	"sync"
	"time"

	"github.com/fisb-tools/fisb978/internal/fisb"
	"github.com/fisb-tools/fisb978/internal/fisb/clock"
)

// Config sets the digest table lifecycle.
type Config struct {
	// ExpireAfter is the refresh floor: a duplicate arriving this long
	// after the product was last forwarded goes through again, so the
	// curator keeps hearing from long-lived unchanged reports. Entries
	// idle past the floor are also swept from the table. The slowest
	// image products retransmit every 15 minutes, so it must
	// comfortably exceed that.
	ExpireAfter time.Duration

	// ExpungeEvery is how often the table sweep runs.
	ExpungeEvery time.Duration

	// StorePIREPs enables deduplication of PIREPs. They retransmit
	// often enough that filtering saves real downstream work, at the
	// cost of expiring them here instead of at the curator.
	StorePIREPs bool
}

// DefaultConfig returns the filter lifecycle defaults.
func DefaultConfig() Config {
	return Config{
		ExpireAfter:  45 * time.Minute,
		ExpungeEvery: 10 * time.Minute,
	}
}

// Filter is the L3 stage. Safe for concurrent use.
type Filter struct {
	cfg   Config
	clock clock.Clock

	mu         sync.Mutex
	sent       map[string]time.Time // digest -> last forwarded
	lastSweep  time.Time
	duplicates int64
}

// NewFilter builds a filter. A nil clk uses the system clock.
func NewFilter(cfg Config, clk clock.Clock) *Filter {
	if clk == nil {
		clk = clock.System{}
	}
	f := &Filter{
		cfg:   cfg,
		clock: clk,
		sent:  make(map[string]time.Time),
	}
	f.lastSweep = clk.Now()
	return f
}

// ShouldSend reports whether p is new (or changed) and should continue
// downstream. Bypassed types always pass.
func (f *Filter) ShouldSend(p *fisb.Product) bool {
	if bypass(p.Type, f.cfg.StorePIREPs) {
		return true
	}

	digest := p.Digest()
	now := f.clock.Now()

	f.mu.Lock()
	defer f.mu.Unlock()

	if now.Sub(f.lastSweep) > f.cfg.ExpungeEvery {
		f.sweepLocked(now)
		f.lastSweep = now
	}

	if last, dup := f.sent[digest]; dup && now.Sub(last) < f.cfg.ExpireAfter {
		f.duplicates++
		Tracef("duplicate %s %s", p.Type, p.UniqueName)
		return false
	}
	// New, changed, or past the refresh floor. The floor counts from
	// this forward, not from the duplicates suppressed since.
	f.sent[digest] = now
	return true
}

// Suppressed returns how many duplicates have been dropped so far.
func (f *Filter) Suppressed() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.duplicates
}

func (f *Filter) sweepLocked(now time.Time) {
	before := len(f.sent)
	for digest, last := range f.sent {
		if now.Sub(last) > f.cfg.ExpireAfter {
			delete(f.sent, digest)
		}
	}
	Diagf("digest sweep: %d -> %d entries", before, len(f.sent))
}

// bypass reports whether a message type skips deduplication entirely.
// TWGO reports live and die by their CRL, so every retransmission must
// reach the curator to refresh them; CRLs and service status change on
// nearly every transmission and dedup would just churn the table.
func bypass(msgType string, storePIREPs bool) bool {
	switch msgType {
	case fisb.TypeUnavailable, fisb.TypeServiceStatus,
		fisb.TypeNOTAM, fisb.TypeAIRMET, fisb.TypeSIGMET,
		fisb.TypeWST, fisb.TypeCWA:
		return true
	case fisb.TypePIREP:
		return !storePIREPs
	}
	if msgType == fisb.TypeGAIRMET || len(msgType) > 4 && msgType[:4] == "CRL_" {
		return true
	}
	return false
}
