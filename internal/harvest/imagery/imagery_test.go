package imagery

import (
	"encoding/hex"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fisb-tools/fisb978/internal/fisb"
)

var start = time.Date(2021, 5, 14, 7, 15, 0, 0, time.UTC)

type fakeSink struct {
	upserts []*fisb.Product
	deletes []string
	legends map[string]any
}

func newFakeSink() *fakeSink {
	return &fakeSink{legends: make(map[string]any)}
}

func (f *fakeSink) Upsert(p *fisb.Product) (bool, error) {
	f.upserts = append(f.upserts, p)
	return true, nil
}

func (f *fakeSink) Delete(msgType, uniqueName string) (bool, error) {
	f.deletes = append(f.deletes, msgType+"/"+uniqueName)
	return false, nil
}

func (f *fakeSink) PutLegend(product string, legend any, now time.Time) error {
	f.legends[product] = legend
	return nil
}

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		Dir:     t.TempDir(),
		Workers: 1,
		Palettes: PaletteOptions{
			MapConfiguration: 2,
			RadarMap:         1,
			CloudTopMap:      4,
			NotIncluded:      color.NRGBA{R: 0xEC, G: 0xDA, B: 0x96, A: 0xFF},
		},
	}
}

func newTestManager(t *testing.T, cfg Config, sink Sink) *Manager {
	t.Helper()
	m, err := NewManager(cfg, sink)
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

// block builds one image block product with every bin set to value.
func block(imgType string, altBN int, official time.Time, value byte) *fisb.Product {
	bins := make([]byte, 128)
	for i := range bins {
		bins[i] = value
	}
	p := &fisb.Product{
		Type:           imgType,
		UniqueName:     "NR-" + official.Format(time.RFC3339),
		AltBlockNumber: altBN,
		Bins:           hex.EncodeToString(bins),
		NoDigest:       true,
		ReceivedTime:   official,
		ExpirationTime: official.Add(75 * time.Minute),
	}
	switch imgType {
	case fisb.TypeNEXRADRegional, fisb.TypeNEXRADCONUS, fisb.TypeLightning:
		p.ObservationTime = &official
	default:
		p.ValidTime = &official
	}
	return p
}

func TestProcessAndRender(t *testing.T) {
	sink := newFakeSink()
	cfg := testConfig(t)
	m := newTestManager(t, cfg, sink)

	require.NoError(t, m.Process(block(fisb.TypeNEXRADRegional, 600338, start, 3), start))
	require.NoError(t, m.Process(block(fisb.TypeNEXRADRegional, 600339, start, 5), start))
	require.NoError(t, m.PeriodicUpdate(start.Add(time.Minute)))

	pngPath := filepath.Join(cfg.Dir, "NEXRAD_REGIONAL.png")
	_, err := os.Stat(pngPath)
	require.NoError(t, err, "rendered PNG exists")
	_, err = os.Stat(filepath.Join(cfg.Dir, "NEXRAD_REGIONAL.pgw"))
	require.NoError(t, err, "world file exists")

	require.Len(t, sink.upserts, 1)
	msg := sink.upserts[0]
	assert.Equal(t, fisb.TypeImage, msg.Type)
	assert.Equal(t, fisb.TypeNEXRADRegional, msg.UniqueName)
	require.NotNil(t, msg.ObservationTime)
	assert.Equal(t, start, *msg.ObservationTime)
	assert.Equal(t, start.Add(75*time.Minute), msg.ExpirationTime)
	require.Len(t, msg.BoundingBox, 4)

	// Nothing changed, so a second pass renders nothing new.
	require.NoError(t, m.PeriodicUpdate(start.Add(2*time.Minute)))
	assert.Len(t, sink.upserts, 1)
}

func TestQuietPeriodDefersRender(t *testing.T) {
	sink := newFakeSink()
	cfg := testConfig(t)
	cfg.QuietPeriod = 10 * time.Second
	m := newTestManager(t, cfg, sink)

	require.NoError(t, m.Process(block(fisb.TypeNEXRADRegional, 600338, start, 3), start))

	require.NoError(t, m.PeriodicUpdate(start.Add(5*time.Second)))
	assert.Empty(t, sink.upserts, "render held while data is arriving")

	require.NoError(t, m.PeriodicUpdate(start.Add(11*time.Second)))
	assert.Len(t, sink.upserts, 1)
}

func TestRetransmittedBlockIgnored(t *testing.T) {
	sink := newFakeSink()
	m := newTestManager(t, testConfig(t), sink)

	b := block(fisb.TypeNEXRADRegional, 600338, start, 3)
	require.NoError(t, m.Process(b, start))
	require.NoError(t, m.PeriodicUpdate(start.Add(time.Minute)))
	require.Len(t, sink.upserts, 1)

	// The same block again does not mark the image changed.
	require.NoError(t, m.Process(b, start.Add(2*time.Minute)))
	require.NoError(t, m.PeriodicUpdate(start.Add(3*time.Minute)))
	assert.Len(t, sink.upserts, 1)
}

func TestNewerForecastReplacesImage(t *testing.T) {
	sink := newFakeSink()
	m := newTestManager(t, testConfig(t), sink)

	require.NoError(t, m.Process(block(fisb.TypeCloudTops, 600338, start, 2), start))
	require.NoError(t, m.Process(block(fisb.TypeCloudTops, 600339, start, 2), start))
	assert.Len(t, m.images[fisb.TypeCloudTops].bins, 2)

	// A newer valid time wipes the previous forecast's blocks.
	require.NoError(t, m.Process(
		block(fisb.TypeCloudTops, 600340, start.Add(time.Hour), 4), start.Add(time.Hour)))
	assert.Len(t, m.images[fisb.TypeCloudTops].bins, 1)
}

func TestRadarLatencyEviction(t *testing.T) {
	sink := newFakeSink()
	m := newTestManager(t, testConfig(t), sink)

	require.NoError(t, m.Process(block(fisb.TypeNEXRADRegional, 600338, start, 3), start))
	require.NoError(t, m.Process(
		block(fisb.TypeNEXRADRegional, 600339, start.Add(11*time.Minute), 5), start.Add(11*time.Minute)))

	// Radar keeps older blocks across observation times, but only up
	// to 10 minutes behind the newest.
	st := m.images[fisb.TypeNEXRADRegional]
	assert.Len(t, st.bins, 2)
	require.NoError(t, m.PeriodicUpdate(start.Add(12*time.Minute)))
	assert.Len(t, st.bins, 1)
	assert.Equal(t, start.Add(11*time.Minute), st.oldestOfficial)
}

func TestRevertToNoData(t *testing.T) {
	sink := newFakeSink()
	m := newTestManager(t, testConfig(t), sink)

	require.NoError(t, m.Process(block(fisb.TypeNEXRADRegional, 600338, start, 3), start))
	require.NoError(t, m.PeriodicUpdate(start.Add(time.Minute)))
	require.Len(t, sink.upserts, 1)

	// 75 minutes without fresher data expires the whole image.
	require.NoError(t, m.PeriodicUpdate(start.Add(76*time.Minute)))
	assert.False(t, m.images[fisb.TypeNEXRADRegional].hasData)
	assert.Contains(t, sink.deletes, "IMAGE/NEXRAD_REGIONAL")
}

func TestIcingRendersThreeVariants(t *testing.T) {
	sink := newFakeSink()
	cfg := testConfig(t)
	m := newTestManager(t, cfg, sink)

	require.NoError(t, m.Process(block("ICING_08000", 480100, start, 0x5A), start))
	require.NoError(t, m.PeriodicUpdate(start.Add(time.Minute)))

	for _, suffix := range []string{"_SLD", "_SEV", "_PRB"} {
		_, err := os.Stat(filepath.Join(cfg.Dir, "ICING_08000"+suffix+".png"))
		assert.NoError(t, err, "ICING_08000%s.png", suffix)
	}
}

func TestProcessRejectsUnknownType(t *testing.T) {
	m := newTestManager(t, testConfig(t), newFakeSink())
	err := m.Process(block("NEXRAD_MARS", 600338, start, 1), start)
	assert.Error(t, err)
}

func TestStoreLegends(t *testing.T) {
	sink := newFakeSink()
	m := newTestManager(t, testConfig(t), sink)

	require.NoError(t, m.StoreLegends(start))
	for _, name := range []string{"RADAR", "TURBULENCE", "CLOUDTOP", "LIGHTNING",
		"ICING_SLD", "ICING_SEV", "ICING_PRB"} {
		assert.Contains(t, sink.legends, name)
	}

	rows := sink.legends["RADAR"].([]LegendRow)
	require.NotEmpty(t, rows)
	last := rows[len(rows)-1]
	assert.Equal(t, 255, last.Value)
	assert.Equal(t, "#ecda96", last.Color)
	assert.Equal(t, "Not Incl", last.Label)
}

func TestPaletteSelection(t *testing.T) {
	opts := PaletteOptions{
		MapConfiguration: 2,
		RadarMap:         1,
		CloudTopMap:      4,
		NotIncluded:      color.NRGBA{R: 0xEC, G: 0xDA, B: 0x96, A: 0xFF},
	}
	p := BuildPalettes(opts)

	// Radar map 1 uses cyan for the 5-20 dBZ band.
	assert.Equal(t, uint32(0x00fffe), p.Radar[1].RGB)
	// Cloud top map 4 peaks at the orange ramp.
	assert.Equal(t, uint32(0xffa232), p.CloudTop[7].RGB)
	// Show-no-data paints no-data bins the not-included color, opaque.
	assert.Equal(t, uint32(0xecda96), p.Turb[15].RGB)
	assert.Equal(t, uint8(255), p.Turb[15].Alpha)

	// Testing configuration forces the regression palettes with
	// everything opaque.
	testing_ := PaletteOptions{MapConfiguration: 1, NotIncluded: opts.NotIncluded}
	tp := BuildPalettes(testing_)
	assert.Equal(t, uint32(0x00ff35), tp.Radar[1].RGB)
	assert.Equal(t, uint8(255), tp.Radar[0].Alpha)
	assert.Equal(t, uint32(0x0000ff), tp.Turb[1].RGB)
}

func TestBinGeometry(t *testing.T) {
	latBin, longBin := splitBinNum(600338)
	assert.Equal(t, 600, latBin)
	assert.Equal(t, 338, longBin)

	// High resolution: 4 rows of 1 arc minute per block, 32 columns of
	// 1.5 arc minutes, 450 blocks per revolution.
	lat, lon := binCorner(600, 338, cornerUL, 0)
	assert.InDelta(t, float64(601*4)/60.0, lat, 1e-9)
	assert.InDelta(t, -float64((450-338)*32)*1.5/60.0, lon, 1e-9)

	lat, lon = binCorner(600, 338, cornerLR, 0)
	assert.InDelta(t, float64(600*4)/60.0, lat, 1e-9)
	assert.InDelta(t, -float64((450-338)*32-32)*1.5/60.0, lon, 1e-9)

	ext := computeExtent(map[int]binEntry{
		600338: {}, 600339: {}, 601338: {},
	}, 0)
	assert.Equal(t, 64, ext.width)
	assert.Equal(t, 8, ext.height)
	require.Len(t, ext.bbox, 4)
	assert.Greater(t, ext.bbox[cornerUL][0], ext.bbox[cornerLL][0], "UL above LL")
	assert.Less(t, ext.bbox[cornerUL][1], ext.bbox[cornerUR][1], "UL west of UR")
}
