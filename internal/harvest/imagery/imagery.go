// Package imagery assembles gridded FIS-B products (radar, turbulence,
// icing, cloud tops, lightning) from their block messages and renders
// them as georeferenced PNGs.
package imagery

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/alitto/pond"

	"github.com/fisb-tools/fisb978/internal/fisb"
)

// Sink is where assembled image messages and legends land. The
// curator's store satisfies it.
type Sink interface {
	Upsert(p *fisb.Product) (bool, error)
	Delete(msgType, uniqueName string) (bool, error)
	PutLegend(product string, legend any, now time.Time) error
}

// Config tunes the image life cycle.
type Config struct {
	// Dir receives the rendered PNG and world files.
	Dir string
	// QuietPeriod delays rendering until no new blocks have arrived
	// for this long. Zero renders on every maintenance pass.
	QuietPeriod time.Duration
	// Smooth bilinearly doubles rendered images.
	Smooth bool
	// Workers sizes the render pool.
	Workers  int
	Palettes PaletteOptions
}

type binEntry struct {
	bins     []byte
	official time.Time
}

// imageState tracks one assembling image.
type imageState struct {
	name  string
	files []string

	hasData        bool
	fileCreation   time.Time
	lastChanged    time.Time
	newestOfficial time.Time
	oldestOfficial time.Time

	revertAfter     time.Duration
	maxLatency      time.Duration
	usesObservation bool
	scale           int

	bins map[int]binEntry
}

// Manager owns every image state and the render pool.
type Manager struct {
	cfg  Config
	pal  *Palettes
	sink Sink
	pool *pond.WorkerPool

	images map[string]*imageState
}

// imageNames lists every image product assembled from blocks. Icing
// and turbulence come in 2000 ft layers from 2000 to 24000.
func imageNames() []string {
	names := []string{
		fisb.TypeNEXRADRegional, fisb.TypeNEXRADCONUS,
		fisb.TypeCloudTops, fisb.TypeLightning,
	}
	for alt := 2000; alt <= 24000; alt += 2000 {
		names = append(names, fmt.Sprintf("ICING_%05d", alt))
	}
	for alt := 2000; alt <= 24000; alt += 2000 {
		names = append(names, fmt.Sprintf("TURBULENCE_%05d", alt))
	}
	return names
}

// NewManager builds the manager, removing any image files left from a
// previous run so the directory starts consistent with the store.
func NewManager(cfg Config, sink Sink) (*Manager, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create image dir: %w", err)
	}

	m := &Manager{
		cfg:    cfg,
		pal:    BuildPalettes(cfg.Palettes),
		sink:   sink,
		pool:   pond.New(cfg.Workers, 64),
		images: make(map[string]*imageState),
	}
	for _, name := range imageNames() {
		m.images[name] = m.newState(name)
		if err := m.removeImage(name); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Close drains the render pool.
func (m *Manager) Close() {
	m.pool.StopAndWait()
}

// StoreLegends writes the legend rows for every palette.
func (m *Manager) StoreLegends(now time.Time) error {
	for name, pal := range m.pal.LegendNames() {
		if err := m.sink.PutLegend(name, pal.LegendRows(), now); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) newState(name string) *imageState {
	st := &imageState{
		name:  name,
		bins:  make(map[int]binEntry),
		scale: 1,
	}

	// Observations (radar, lightning) tolerate 10 minutes of latency
	// between oldest and newest blocks and revert to no-data after 75
	// minutes; forecast products carry no latency and revert after 105.
	switch name {
	case fisb.TypeNEXRADRegional, fisb.TypeNEXRADCONUS, fisb.TypeLightning:
		st.revertAfter = 75 * time.Minute
		st.maxLatency = 10 * time.Minute
		st.usesObservation = true
	default:
		st.revertAfter = 105 * time.Minute
	}
	switch name {
	case fisb.TypeNEXRADRegional, fisb.TypeLightning, fisb.TypeCloudTops:
		st.scale = 0
	}

	for _, v := range m.variantsFor(name) {
		st.files = append(st.files, filepath.Join(m.cfg.Dir, name+v.suffix+".png"))
	}
	return st
}

type variant struct {
	suffix  string
	palette Palette
	extract func(byte) int
}

func simpleByte(b byte) int { return int(b) }

func (m *Manager) variantsFor(name string) []variant {
	switch {
	case strings.HasPrefix(name, "ICING"):
		return []variant{
			{"_SLD", m.pal.IcingSLD, func(b byte) int { return int(b>>6) & 0x03 }},
			{"_SEV", m.pal.IcingSEV, func(b byte) int { return int(b>>3) & 0x07 }},
			{"_PRB", m.pal.IcingPRB, func(b byte) int { return int(b) & 0x07 }},
		}
	case strings.HasPrefix(name, "TURBULENCE"):
		return []variant{{"", m.pal.Turb, simpleByte}}
	case strings.HasPrefix(name, "NEXRAD"):
		return []variant{{"", m.pal.Radar, simpleByte}}
	case name == fisb.TypeCloudTops:
		return []variant{{"", m.pal.CloudTop, simpleByte}}
	case name == fisb.TypeLightning:
		return []variant{
			{"_ALL", m.pal.Lightning, func(b byte) int { return int(b) & 0x07 }},
			{"_POS", m.pal.Lightning, func(b byte) int {
				if b&0x08 != 0 {
					return int(b) & 0x07
				}
				return 0
			}},
		}
	}
	return nil
}

// Report returns a text summary of every assembling image: the event
// time span of its blocks, when it last changed, and how old the
// rendered file is. Replay dumps write this next to the copied PNGs.
func (m *Manager) Report(now time.Time) string {
	var b strings.Builder
	for _, name := range imageNames() {
		st := m.images[name]
		if !st.hasData {
			continue
		}
		fmt.Fprintf(&b, "%s\n", name)
		label := "valid_time"
		if st.usesObservation {
			label = "observation_time"
		}
		fmt.Fprintf(&b, "  %s: %s\n", label, st.oldestOfficial.UTC().Format(time.RFC3339))
		fmt.Fprintf(&b, "  newest_data: %s\n", st.newestOfficial.UTC().Format(time.RFC3339))
		if st.fileCreation.IsZero() {
			fmt.Fprintf(&b, "  image_age: not rendered\n")
		} else {
			age := now.Sub(st.fileCreation)
			fmt.Fprintf(&b, "  image_age: %02d:%02d\n",
				int(age.Minutes()), int(age.Seconds())%60)
		}
		fmt.Fprintf(&b, "  last_changed: %s\n", st.lastChanged.UTC().Format(time.RFC3339))
	}
	return b.String()
}

// removeImage deletes the rendered files and the stored IMAGE message
// for one product.
func (m *Manager) removeImage(name string) error {
	st := m.images[name]
	for _, f := range st.files {
		for _, path := range []string{f, strings.TrimSuffix(f, ".png") + ".pgw"} {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return err
			}
		}
	}
	_, err := m.sink.Delete(fisb.TypeImage, name)
	return err
}

// Process folds one block message into its image. now is the curator's
// clock, which may be virtual during replay.
func (m *Manager) Process(p *fisb.Product, now time.Time) error {
	st, ok := m.images[p.Type]
	if !ok {
		return fmt.Errorf("no image product %q", p.Type)
	}

	official := p.ValidTime
	if st.usesObservation {
		official = p.ObservationTime
	}
	if official == nil {
		return fmt.Errorf("%s block without an event time", p.Type)
	}

	bins, err := hex.DecodeString(p.Bins)
	if err != nil || len(bins) != 128 {
		return fmt.Errorf("%s block %d: malformed bins", p.Type, p.AltBlockNumber)
	}

	if prev, ok := st.bins[p.AltBlockNumber]; ok {
		if prev.official.Equal(*official) && string(prev.bins) == string(bins) {
			// Retransmission of data we already hold.
			return nil
		}
	}

	if official.After(st.newestOfficial) {
		st.newestOfficial = *official
		// A newer event time starts a new image. Only the latency
		// tolerant products may keep older blocks around.
		if st.maxLatency == 0 {
			st.bins = make(map[int]binEntry)
		}
	}

	st.lastChanged = now
	st.bins[p.AltBlockNumber] = binEntry{bins: bins, official: *official}
	st.hasData = true
	return nil
}

// PeriodicUpdate evicts stale blocks, expires images, and renders any
// image whose data changed and has gone quiet.
func (m *Manager) PeriodicUpdate(now time.Time) error {
	type renderResult struct {
		st     *imageState
		ext    extent
		oldest time.Time
		err    error
	}

	var (
		resMu   sync.Mutex
		results []renderResult
	)
	group := m.pool.Group()

	for _, name := range imageNames() {
		st := m.images[name]
		if !st.hasData {
			continue
		}

		// Latency and no-data eviction.
		oldestActive := st.newestOfficial
		anyChanges := false
		for bn, entry := range st.bins {
			drop := false
			if st.maxLatency > 0 {
				if st.newestOfficial.Sub(entry.official) >= st.maxLatency {
					drop = true
				} else if entry.official.Before(oldestActive) {
					oldestActive = entry.official
				}
			}
			if now.Sub(entry.official) >= st.revertAfter {
				drop = true
			}
			if drop {
				delete(st.bins, bn)
				anyChanges = true
			}
		}
		st.oldestOfficial = oldestActive
		if anyChanges {
			st.lastChanged = now
		}

		if len(st.bins) == 0 {
			if err := m.removeImage(name); err != nil {
				return err
			}
			m.images[name] = m.newState(name)
			continue
		}

		// Render only when something changed since the last file and
		// the data has gone quiet.
		if m.cfg.QuietPeriod > 0 && now.Sub(st.lastChanged) < m.cfg.QuietPeriod {
			continue
		}
		if !st.lastChanged.After(st.fileCreation) {
			continue
		}

		// Snapshot for the render pool; Process may mutate st.bins
		// before the group drains.
		snapshot := make(map[int]binEntry, len(st.bins))
		for bn, e := range st.bins {
			snapshot[bn] = e
		}
		ext := computeExtent(snapshot, st.scale)
		oldest := st.oldestOfficial
		variants := m.variantsFor(name)
		files := st.files

		stCopy := st
		group.Submit(func() {
			var firstErr error
			for i, v := range variants {
				img := renderImage(snapshot, ext, v.palette, v.extract)
				if m.cfg.Smooth {
					img = scaleBilinear(img)
				}
				if err := writeImageFiles(files[i], img, ext); err != nil && firstErr == nil {
					firstErr = err
				}
			}
			resMu.Lock()
			results = append(results, renderResult{st: stCopy, ext: ext, oldest: oldest, err: firstErr})
			resMu.Unlock()
		})
	}
	group.Wait()

	for _, r := range results {
		if r.err != nil {
			Opsf("render %s: %v", r.st.name, r.err)
			continue
		}
		msg := &fisb.Product{
			Type:           fisb.TypeImage,
			UniqueName:     r.st.name,
			BoundingBox:    r.ext.bbox,
			NoDigest:       true,
			ReceivedTime:   now,
			ExpirationTime: r.oldest.Add(r.st.revertAfter),
		}
		if r.st.usesObservation {
			t := r.oldest
			msg.ObservationTime = &t
		} else {
			t := r.oldest
			msg.ValidTime = &t
		}
		if _, err := m.sink.Upsert(msg); err != nil {
			return err
		}
		r.st.fileCreation = now
	}
	return nil
}
