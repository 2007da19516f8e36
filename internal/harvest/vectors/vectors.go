// Package vectors dumps the vector products on hand as WKT CSV files,
// one file per product family and geometry kind. GIS tools load the
// files directly, which makes them the fastest way to eyeball what a
// ground station is actually broadcasting.
package vectors

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/fisb-tools/fisb978/internal/fisb"
	"github.com/fisb-tools/fisb978/internal/harvest/location"
	"github.com/fisb-tools/fisb978/internal/harvest/store"
)

// circleSegments is how many points approximate a CIRCLE record.
const circleSegments = 32

// vectorTypes are the stored message types that can carry geometry.
var vectorTypes = []string{
	fisb.TypeNOTAM,
	fisb.TypeAIRMET,
	fisb.TypeSIGMET,
	fisb.TypeWST,
	fisb.TypeCWA,
	fisb.TypeGAIRMET,
	fisb.TypePIREP,
	fisb.TypeMETAR,
	fisb.TypeTAF,
	fisb.TypeWinds06,
	fisb.TypeWinds12,
	fisb.TypeWinds24,
}

type row struct {
	id  string
	wkt string
}

// Dump writes V-<family>-<PT|PG|LS>.csv files into dir, one tab
// separated id/WKT row per geometry. Stale V-*.csv files from an
// earlier dump are removed first.
func Dump(st *store.Store, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	stale, err := filepath.Glob(filepath.Join(dir, "V-*.csv"))
	if err != nil {
		return err
	}
	for _, f := range stale {
		if err := os.Remove(f); err != nil {
			return err
		}
	}

	files := make(map[string][]row)
	total := 0
	for _, typ := range vectorTypes {
		products, err := st.ListByType(typ)
		if err != nil {
			return err
		}
		for _, p := range products {
			total += addProduct(files, p)
		}
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		rows := files[name]
		sort.Slice(rows, func(i, j int) bool { return rows[i].id < rows[j].id })
		var b strings.Builder
		for _, r := range rows {
			b.WriteString(r.id)
			b.WriteByte('\t')
			b.WriteString(r.wkt)
			b.WriteByte('\n')
		}
		if err := os.WriteFile(filepath.Join(dir, name), []byte(b.String()), 0644); err != nil {
			return err
		}
	}
	Diagf("dumped %d vectors into %d files under %s", total, len(files), dir)
	return nil
}

// addProduct appends one row per geometry of p and returns how many it
// added. Products without usable geometry contribute nothing.
func addProduct(files map[string][]row, p *fisb.Product) int {
	geoms := p.Geometry
	if len(geoms) == 0 {
		geoms = p.ContentsGraphics
	}
	if len(geoms) == 0 {
		geoms = geometriesFromGeoJSON(p.GeoJSON)
	}

	added := 0
	for i, g := range geoms {
		kind, wkt := toWKT(g)
		if wkt == "" {
			continue
		}
		id := rowID(p, g)
		if len(geoms) > 1 {
			id += "/" + strconv.Itoa(i+1)
		}
		name := "V-" + family(p) + "-" + kind + ".csv"
		files[name] = append(files[name], row{id: id, wkt: wkt})
		added++
	}
	return added
}

// family names the output file a product's rows belong to. NOTAMs
// split by subtype so TFRs land in their own file.
func family(p *fisb.Product) string {
	if p.Type == fisb.TypeNOTAM && p.Subtype != "" {
		return "NOTAM-" + p.Subtype
	}
	return p.Type
}

// rowID builds the per-row identifier. SIGWX products carry their
// altitude band, G-AIRMETs add the element, and PIREPs are keyed by
// report type, station, and report time since their unique names are
// synthetic.
func rowID(p *fisb.Product, g fisb.Geometry) string {
	switch p.Type {
	case fisb.TypeAIRMET, fisb.TypeSIGMET, fisb.TypeWST, fisb.TypeCWA:
		if g.Altitudes != nil {
			return fmt.Sprintf("%s/%d:%d", p.UniqueName, g.Altitudes.Bottom, g.Altitudes.Top)
		}
	case fisb.TypeGAIRMET:
		if g.Altitudes != nil {
			return fmt.Sprintf("%s/%s-%d:%d",
				p.UniqueName, g.Element, g.Altitudes.Bottom, g.Altitudes.Top)
		}
		if g.Element != "" {
			return p.UniqueName + "/" + g.Element
		}
	case fisb.TypePIREP:
		tm := p.PIREP["tm"]
		if p.ReportType != "" || tm != "" {
			return p.ReportType + "-" + p.Station + "-" + tm
		}
	}
	return p.UniqueName
}

// toWKT renders one geometry record, returning the file kind suffix
// (PT, PG, or LS) and the WKT text. CIRCLE records become polygons.
func toWKT(g fisb.Geometry) (kind, wkt string) {
	switch g.Type {
	case "POINT":
		if len(g.Coordinates) == 0 || len(g.Coordinates[0]) < 2 {
			return "", ""
		}
		return "PT", "POINT(" + coordText(g.Coordinates[0]) + ")"
	case "POLYGON":
		ring := closeRing(g.Coordinates)
		if len(ring) < 4 {
			return "", ""
		}
		return "PG", "POLYGON((" + coordList(ring) + "))"
	case "POLYLINE":
		if len(g.Coordinates) < 2 {
			return "", ""
		}
		return "LS", "LINESTRING(" + coordList(g.Coordinates) + ")"
	case "CIRCLE":
		if len(g.Center) < 2 || g.RadiusNM <= 0 {
			return "", ""
		}
		return "PG", "POLYGON((" + coordList(circleToPolygon(g.Center, g.RadiusNM)) + "))"
	}
	return "", ""
}

// closeRing repeats the first coordinate at the end when the broadcast
// ring is open; WKT polygons must close.
func closeRing(coords [][]float64) [][]float64 {
	if len(coords) < 3 {
		return coords
	}
	first, last := coords[0], coords[len(coords)-1]
	if first[0] == last[0] && first[1] == last[1] {
		return coords
	}
	out := make([][]float64, 0, len(coords)+1)
	out = append(out, coords...)
	return append(out, first)
}

// circleToPolygon walks the circle's rim in circleSegments great-circle
// steps and closes the ring.
func circleToPolygon(center []float64, radiusNM float64) [][]float64 {
	coords := make([][]float64, 0, circleSegments+1)
	for i := 0; i < circleSegments; i++ {
		bearing := float64(i) * 360.0 / circleSegments
		lon, lat := location.Destination(center[0], center[1], bearing, radiusNM)
		coords = append(coords, []float64{lon, lat})
	}
	return append(coords, coords[0])
}

func coordText(c []float64) string {
	return strconv.FormatFloat(c[0], 'g', -1, 64) + " " +
		strconv.FormatFloat(c[1], 'g', -1, 64)
}

func coordList(coords [][]float64) string {
	parts := make([]string, 0, len(coords))
	for _, c := range coords {
		if len(c) < 2 {
			continue
		}
		parts = append(parts, coordText(c))
	}
	return strings.Join(parts, ",")
}

// geoJSONDoc is the slice of a FeatureCollection the dump needs.
type geoJSONDoc struct {
	Features []struct {
		Geometry struct {
			Type        string          `json:"type"`
			Coordinates json.RawMessage `json:"coordinates"`
		} `json:"geometry"`
	} `json:"features"`
}

// geometriesFromGeoJSON converts the geojson attached by location
// enrichment back into geometry records so enriched PIREPs and text
// weather dump alongside the graphic products.
func geometriesFromGeoJSON(raw json.RawMessage) []fisb.Geometry {
	if len(raw) == 0 {
		return nil
	}
	var doc geoJSONDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil
	}
	var out []fisb.Geometry
	for _, f := range doc.Features {
		switch f.Geometry.Type {
		case "Point":
			var c []float64
			if json.Unmarshal(f.Geometry.Coordinates, &c) == nil && len(c) >= 2 {
				out = append(out, fisb.Geometry{Type: "POINT", Coordinates: [][]float64{c}})
			}
		case "LineString":
			var c [][]float64
			if json.Unmarshal(f.Geometry.Coordinates, &c) == nil && len(c) >= 2 {
				out = append(out, fisb.Geometry{Type: "POLYLINE", Coordinates: c})
			}
		case "Polygon":
			var c [][][]float64
			if json.Unmarshal(f.Geometry.Coordinates, &c) == nil && len(c) > 0 {
				out = append(out, fisb.Geometry{Type: "POLYGON", Coordinates: c[0]})
			}
		}
	}
	return out
}
