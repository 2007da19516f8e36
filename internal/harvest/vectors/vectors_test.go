package vectors

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/fisb-tools/fisb978/internal/fisb"
	"github.com/fisb-tools/fisb978/internal/harvest/store"
)

var start = time.Date(2021, 5, 14, 7, 15, 0, 0, time.UTC)

func testStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "vectors.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func put(t *testing.T, st *store.Store, p *fisb.Product) {
	t.Helper()
	p.ReceivedTime = start
	p.ExpirationTime = start.Add(time.Hour)
	if _, err := st.Upsert(p); err != nil {
		t.Fatalf("Upsert %s/%s: %v", p.Type, p.UniqueName, err)
	}
}

// readDump loads one dump file into an id -> WKT map.
func readDump(t *testing.T, dir, name string) map[string]string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("read %s: %v", name, err)
	}
	out := make(map[string]string)
	for _, line := range strings.Split(strings.TrimRight(string(data), "\n"), "\n") {
		id, wkt, ok := strings.Cut(line, "\t")
		if !ok {
			t.Fatalf("%s: malformed row %q", name, line)
		}
		out[id] = wkt
	}
	return out
}

func TestDumpNOTAMPoint(t *testing.T) {
	st := testStore(t)
	put(t, st, &fisb.Product{
		Type: fisb.TypeNOTAM, UniqueName: "21-1234", Subtype: "D",
		ProductID: fisb.ProductNOTAM,
		Geometry: []fisb.Geometry{
			{Type: "POINT", Coordinates: [][]float64{{-86.295, 39.717}}},
		},
	})

	dir := t.TempDir()
	if err := Dump(st, dir); err != nil {
		t.Fatalf("Dump: %v", err)
	}
	rows := readDump(t, dir, "V-NOTAM-D-PT.csv")
	if got := rows["21-1234"]; got != "POINT(-86.295 39.717)" {
		t.Errorf("WKT = %q, want POINT(-86.295 39.717)", got)
	}
}

func TestDumpSIGWXAltitudeBand(t *testing.T) {
	st := testStore(t)
	put(t, st, &fisb.Product{
		Type: fisb.TypeAIRMET, UniqueName: "2-1", ProductID: fisb.ProductAIRMET,
		Geometry: []fisb.Geometry{{
			Type: "POLYGON",
			Coordinates: [][]float64{
				{-86, 39}, {-85, 39}, {-85, 40},
			},
			Altitudes: &fisb.AltitudeBand{Bottom: 0, BottomRef: "MSL", Top: 12000, TopRef: "MSL"},
		}},
	})

	dir := t.TempDir()
	if err := Dump(st, dir); err != nil {
		t.Fatalf("Dump: %v", err)
	}
	rows := readDump(t, dir, "V-AIRMET-PG.csv")
	want := "POLYGON((-86 39,-85 39,-85 40,-86 39))" // open ring closed
	if got := rows["2-1/0:12000"]; got != want {
		t.Errorf("WKT = %q, want %q", got, want)
	}
}

func TestDumpGAIRMETElement(t *testing.T) {
	st := testStore(t)
	put(t, st, &fisb.Product{
		Type: fisb.TypeGAIRMET, UniqueName: "9-3-0", ProductID: fisb.ProductGAIRMET,
		Geometry: []fisb.Geometry{{
			Type:        "POLYLINE",
			Coordinates: [][]float64{{-86, 39}, {-85, 40}},
			Element:     "TURB",
			Altitudes:   &fisb.AltitudeBand{Bottom: 2000, Top: 24000},
		}},
	})

	dir := t.TempDir()
	if err := Dump(st, dir); err != nil {
		t.Fatalf("Dump: %v", err)
	}
	rows := readDump(t, dir, "V-G_AIRMET-LS.csv")
	if got := rows["9-3-0/TURB-2000:24000"]; got != "LINESTRING(-86 39,-85 40)" {
		t.Errorf("WKT = %q, want LINESTRING(-86 39,-85 40)", got)
	}
}

func TestDumpCircleBecomesPolygon(t *testing.T) {
	st := testStore(t)
	put(t, st, &fisb.Product{
		Type: fisb.TypeNOTAM, UniqueName: "1-2001", Subtype: "TFR",
		ProductID: fisb.ProductNOTAM,
		Geometry: []fisb.Geometry{
			{Type: "CIRCLE", Center: []float64{-86.0, 39.7}, RadiusNM: 10},
		},
	})

	dir := t.TempDir()
	if err := Dump(st, dir); err != nil {
		t.Fatalf("Dump: %v", err)
	}
	rows := readDump(t, dir, "V-NOTAM-TFR-PG.csv")
	wkt := rows["1-2001"]
	if !strings.HasPrefix(wkt, "POLYGON((") || !strings.HasSuffix(wkt, "))") {
		t.Fatalf("WKT = %q, want a polygon", wkt)
	}
	coords := strings.Split(wkt[len("POLYGON(("):len(wkt)-2], ",")
	if len(coords) != 33 {
		t.Fatalf("got %d rim points, want 33 (32 segments plus closure)", len(coords))
	}
	if coords[0] != coords[32] {
		t.Error("ring is not closed")
	}
	// First rim point is due north of the center.
	lonStr, latStr, _ := strings.Cut(coords[0], " ")
	lon, _ := strconv.ParseFloat(lonStr, 64)
	lat, _ := strconv.ParseFloat(latStr, 64)
	if lon < -86.001 || lon > -85.999 {
		t.Errorf("north rim longitude = %v, want about -86", lon)
	}
	if lat < 39.86 || lat > 39.88 {
		t.Errorf("north rim latitude = %v, want about 39.867", lat)
	}
}

func TestDumpNumbersMultipleGeometries(t *testing.T) {
	st := testStore(t)
	put(t, st, &fisb.Product{
		Type: fisb.TypeNOTAM, UniqueName: "21-7", Subtype: "D",
		ProductID: fisb.ProductNOTAM,
		Geometry: []fisb.Geometry{
			{Type: "POINT", Coordinates: [][]float64{{-86, 39}}},
			{Type: "POINT", Coordinates: [][]float64{{-85, 40}}},
		},
	})

	dir := t.TempDir()
	if err := Dump(st, dir); err != nil {
		t.Fatalf("Dump: %v", err)
	}
	rows := readDump(t, dir, "V-NOTAM-D-PT.csv")
	want := map[string]string{
		"21-7/1": "POINT(-86 39)",
		"21-7/2": "POINT(-85 40)",
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestDumpPIREPFromGeoJSON(t *testing.T) {
	st := testStore(t)
	gj, _ := json.Marshal(map[string]any{
		"type": "FeatureCollection",
		"features": []any{map[string]any{
			"type": "Feature",
			"geometry": map[string]any{
				"type":        "Point",
				"coordinates": []float64{-86.295, 39.717},
			},
			"properties": map[string]any{"id": "PIREP-8271"},
		}},
	})
	put(t, st, &fisb.Product{
		Type: fisb.TypePIREP, UniqueName: "PIREP-8271",
		ReportType: "UA", Station: "IND",
		PIREP:   map[string]string{"ov": "IND", "tm": "1845"},
		GeoJSON: gj,
	})

	dir := t.TempDir()
	if err := Dump(st, dir); err != nil {
		t.Fatalf("Dump: %v", err)
	}
	rows := readDump(t, dir, "V-PIREP-PT.csv")
	if got := rows["UA-IND-1845"]; got != "POINT(-86.295 39.717)" {
		t.Errorf("WKT = %q, want POINT(-86.295 39.717)", got)
	}
}

func TestDumpRemovesStaleFiles(t *testing.T) {
	st := testStore(t)
	dir := t.TempDir()
	stale := filepath.Join(dir, "V-NOTAM-D-PT.csv")
	if err := os.WriteFile(stale, []byte("old\tPOINT(0 0)\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := Dump(st, dir); err != nil {
		t.Fatalf("Dump: %v", err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale dump file survived")
	}
}

func TestDumpSkipsProductsWithoutGeometry(t *testing.T) {
	st := testStore(t)
	put(t, st, &fisb.Product{
		Type: fisb.TypeMETAR, UniqueName: "KSLN",
		Contents: "METAR KSLN 141453Z ...",
	})

	dir := t.TempDir()
	if err := Dump(st, dir); err != nil {
		t.Fatalf("Dump: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("got %d dump files, want none", len(entries))
	}
}
