package l0frames

import (
	"math"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/fisb-tools/fisb978/internal/fisb"
)

// RSRTracker accumulates per-station packet counts and periodically
// emits a reception success rate report over a sliding window.
type RSRTracker struct {
	windowSecs int
	everySecs  int

	// useSiteRate compares against the nominal uplink rate of the
	// station's TIS-B site id; otherwise the best observed second in
	// the window stands in for the expected rate.
	useSiteRate bool

	counts   map[int64]map[string]int // second -> station -> packets
	siteRate map[string]int           // station -> expected packets/sec

	firstSec int64
	lastCalc int64
}

// NewRSRTracker builds a tracker that reports every everySecs seconds
// over a windowSecs sliding window.
func NewRSRTracker(windowSecs, everySecs int, useSiteRate bool) *RSRTracker {
	return &RSRTracker{
		windowSecs:  windowSecs,
		everySecs:   everySecs,
		useSiteRate: useSiteRate,
		counts:      make(map[int64]map[string]int),
		siteRate:    make(map[string]int),
	}
}

// Record counts one received packet.
func (t *RSRTracker) Record(pkt *fisb.Packet) {
	sec := pkt.ReceivedTime.Unix()
	if t.firstSec == 0 {
		t.firstSec = sec
	}
	m := t.counts[sec]
	if m == nil {
		m = make(map[string]int)
		t.counts[sec] = m
	}
	m[pkt.Station]++
	t.siteRate[pkt.Station] = fisb.ExpectedPacketsPerSecond(pkt.TISBSiteID)
}

// Report emits an RSR product if one is due at now, and sweeps counts
// that have left the window. Returns nil between reports and until a
// full window has accumulated.
func (t *RSRTracker) Report(now time.Time) *fisb.Product {
	sec := now.Unix()

	// Sweep seconds that can no longer contribute.
	for s := range t.counts {
		if sec-s > int64(t.windowSecs)+2 {
			delete(t.counts, s)
		}
	}

	if t.firstSec == 0 || sec-t.firstSec <= int64(t.windowSecs) {
		return nil
	}
	if t.lastCalc != 0 && sec-t.lastCalc < int64(t.everySecs) {
		return nil
	}
	t.lastCalc = sec

	// Per-station counts for each second of the window.
	perStation := make(map[string][]float64)
	for s := sec - int64(t.windowSecs); s < sec; s++ {
		for station, n := range t.counts[s] {
			perStation[station] = append(perStation[station], float64(n))
		}
	}
	if len(perStation) == 0 {
		return nil
	}

	stations := make(map[string]fisb.RSRStat, len(perStation))
	for station, secCounts := range perStation {
		received := int(floats.Sum(secCounts))
		expected := t.siteRate[station]
		if !t.useSiteRate || expected == 0 {
			expected = int(floats.Max(secCounts))
		}
		pct := 0
		if expected > 0 {
			// A station can beat its nominal site rate; cap at 100.
			pct = min(100, int(math.Round(float64(received)/float64(expected*t.windowSecs)*100)))
		}
		stations[station] = fisb.RSRStat{
			Received: received,
			Expected: expected,
			Percent:  pct,
		}
	}

	return &fisb.Product{
		Type:           fisb.TypeRSR,
		UniqueName:     fisb.TypeRSR,
		ReceivedTime:   now,
		ExpirationTime: now.Add(time.Duration(t.everySecs+10) * time.Second),
		Stations:       stations,
		NoDigest:       true,
	}
}
