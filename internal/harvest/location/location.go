// Package location resolves text weather stations and PIREP /OV
// clauses to coordinates. Station, navaid, and reporting point data
// comes from a CSV file that carries the magnetic declination of each
// point, so the magnetic bearings pilots report can be converted to
// true bearings before plotting.
package location

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"

	"github.com/fisb-tools/fisb978/internal/fisb"
)

// Compass direction names to degrees.
var bearingNames = map[string]float64{
	"NORTH": 0, "SOUTH": 180, "EAST": 90, "WEST": 270,
	"N": 0, "S": 180, "E": 90, "W": 270,
	"NE": 45, "NW": 315, "SE": 135, "SW": 225,
	"NORTHEAST": 45, "NORTHWEST": 315, "SOUTHEAST": 135, "SOUTHWEST": 225,
	"NNE": 22.5, "ENE": 67.5, "ESE": 112.5, "SSE": 157.5,
	"SSW": 202.5, "WSW": 247.5, "WNW": 292.5, "NNW": 337.5,
}

var (
	// 'xxxxN xxxxxW' latitude/longitude reports.
	latLongRE = regexp.MustCompile(`^([34][0-9]{3})N ([0-9]{5})W$`)

	// '10SSE OF IND' style distance and compass direction.
	distDirRE = regexp.MustCompile(`^([0-9]{1,2}) ?((NM|SM|M|MILE) )?` +
		`(NORTH|SOUTH|EAST|WEST|N|S|E|W|NE|NW|SE|SW|NORTHEAST|NORTHWEST|` +
		`SOUTHEAST|SOUTHWEST|NNE|ENE|ESE|SSE|SSW|WSW|WNW|NNW)` +
		`( (OF )?([A-Z0-9]{3,5}))?$`)

	// Ident with optional 3-digit bearing and 3-digit distance, like
	// 'IND270020'. By far the most common form.
	identBearingDistRE = regexp.MustCompile(
		`^(?:(OV|OVER|OVR)?( |-))?([A-Z0-9]{3,5})? ?(([0-9]{3}) ?([0-9]{3}))*$`)

	// Same but a 2-digit distance, for entries like 'IND05020' that
	// should have been 'IND050020'.
	identBearingDist2RE = regexp.MustCompile(
		`^(?:(OV|OVER|OVR)?( |-))?([A-Z0-9]{3,5})? ?(([0-9]{3}) ?([0-9]{2}))*$`)
)

// point is a located ident. Coordinates are [longitude, latitude].
type point struct {
	lon, lat    float64
	declination float64
}

// DB is the in-memory location database. Lookups follow ident length:
// 5 characters can only be a reporting point, 3 tries navaids before
// airports, 3 or 4 tries airports.
type DB struct {
	wx       map[string]point
	airports map[string]point
	navaids  map[string]point
	points   map[string]point

	// Resolved text weather geojson by station. A site sees the same
	// few hundred stations over and over.
	wxCache map[string]json.RawMessage
}

// LoadFile reads the location CSV from disk.
func LoadFile(path string) (*DB, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	db, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	Diagf("loaded %d wx, %d airports, %d navaids, %d reporting points from %s",
		len(db.wx), len(db.airports), len(db.navaids), len(db.points), path)
	return db, nil
}

// Load reads location records. Each row is
// kind,ident,longitude,latitude,declination with kind one of WX,
// AIRPORT, NAVAID, or DESIGNATED_POINT. Declination is degrees, west
// negative.
func Load(r io.Reader) (*DB, error) {
	db := &DB{
		wx:       make(map[string]point),
		airports: make(map[string]point),
		navaids:  make(map[string]point),
		points:   make(map[string]point),
		wxCache:  make(map[string]json.RawMessage),
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 5
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if line == 1 && rec[0] == "kind" {
			continue
		}
		lon, err1 := strconv.ParseFloat(rec[2], 64)
		lat, err2 := strconv.ParseFloat(rec[3], 64)
		decl, err3 := strconv.ParseFloat(rec[4], 64)
		if err1 != nil || err2 != nil || err3 != nil {
			return nil, fmt.Errorf("line %d: bad coordinates for %q", line, rec[1])
		}
		p := point{lon: lon, lat: lat, declination: decl}
		switch rec[0] {
		case "WX":
			db.wx[rec[1]] = p
		case "AIRPORT":
			db.airports[rec[1]] = p
		case "NAVAID":
			db.navaids[rec[1]] = p
		case "DESIGNATED_POINT":
			db.points[rec[1]] = p
		default:
			return nil, fmt.Errorf("line %d: unknown kind %q", line, rec[0])
		}
	}
	return db, nil
}

// EnrichTextWx attaches a geojson point for METAR, TAF, and winds
// products whose station is in the WX table. Returns true if the
// product was augmented.
func (db *DB) EnrichTextWx(p *fisb.Product) bool {
	if cached, ok := db.wxCache[p.UniqueName]; ok {
		p.GeoJSON = cached
		return true
	}
	station, ok := db.wx[p.UniqueName]
	if !ok {
		return false
	}
	gj := makeGeoJSON("Point", []float64{station.lon, station.lat}, map[string]any{
		"name": p.UniqueName,
		"id":   p.UniqueName,
	})
	db.wxCache[p.UniqueName] = gj
	p.GeoJSON = gj
	return true
}

// EnrichPIREP tries to resolve the /OV clause of a PIREP to a point or
// route and attach it as geojson. Returns false when nothing matched;
// the caller decides whether to log the report for study.
func (db *DB) EnrichPIREP(p *fisb.Product) bool {
	ov, ok := p.PIREP["ov"]
	if !ok || ov == "" {
		return false
	}
	station := p.Station

	// A dash means a route of two or more points.
	if strings.Contains(ov, "-") {
		if db.resolveRoute(p, ov, station) {
			return true
		}
	}
	if coords := db.matchIdentBearingDistance(ov, station); coords != nil {
		p.GeoJSON = makeGeoJSON("Point", coords, map[string]any{"id": p.UniqueName})
		return true
	}
	if db.resolveDistDirFromIdent(p, ov, station) {
		return true
	}
	if resolveLatLong(p, ov) {
		return true
	}
	return db.resolveTextHints(p, ov, station)
}

// resolveRoute handles /OV entries like 'HUF-IND-TYQ170020'. All legs
// must resolve or the route is rejected.
func (db *DB) resolveRoute(p *fisb.Product, ov, station string) bool {
	legs := strings.Split(ov, "-")
	coords := make([][]float64, 0, len(legs))
	for _, leg := range legs {
		c := db.matchIdentBearingDistance(leg, station)
		if c == nil {
			return false
		}
		coords = append(coords, c)
	}
	p.GeoJSON = makeGeoJSON("LineString", coords, map[string]any{"id": p.UniqueName})
	return true
}

// matchIdentBearingDistance resolves the ident-with-optional-bearing
// form. Returns [longitude, latitude] or nil.
func (db *DB) matchIdentBearingDistance(ov, station string) []float64 {
	m := identBearingDistRE.FindStringSubmatch(ov)
	if m == nil {
		m = identBearingDist2RE.FindStringSubmatch(ov)
	}
	if m == nil {
		return nil
	}

	ident := m[3]
	if ident == "" {
		ident = station
	}
	magBearing, nm := -1.0, 0.0
	if m[5] != "" {
		b, _ := strconv.Atoi(m[5])
		d, _ := strconv.Atoi(m[6])
		magBearing, nm = float64(b), float64(d)
	}
	return db.resolve(ident, magBearing, nm)
}

// resolveDistDirFromIdent handles '10 S BOS' style entries, the second
// most common form. Directions here are compass names.
func (db *DB) resolveDistDirFromIdent(p *fisb.Product, ov, station string) bool {
	m := distDirRE.FindStringSubmatch(ov)
	if m == nil {
		return false
	}
	nm, _ := strconv.ParseFloat(m[1], 64)
	if m[3] == "SM" {
		nm *= 0.86897624
	}
	magBearing := bearingNames[m[4]]
	ident := m[7]
	if ident == "" {
		ident = station
	}
	coords := db.resolve(ident, magBearing, nm)
	if coords == nil {
		return false
	}
	p.GeoJSON = makeGeoJSON("Point", coords, map[string]any{"id": p.UniqueName})
	return true
}

// resolveLatLong handles /OV entries carrying the position directly,
// like '3943N 08623W'.
func resolveLatLong(p *fisb.Product, ov string) bool {
	m := latLongRE.FindStringSubmatch(ov)
	if m == nil {
		return false
	}
	latRaw, _ := strconv.ParseFloat(m[1], 64)
	lonRaw, _ := strconv.ParseFloat(m[2], 64)
	lat := round6(latRaw / 100.0)
	lon := -round6(lonRaw / 100.0)
	p.GeoJSON = makeGeoJSON("Point", []float64{lon, lat}, map[string]any{"id": p.UniqueName})
	return true
}

// resolveTextHints catches phrases that put the report at the station
// itself.
func (db *DB) resolveTextHints(p *fisb.Product, ov, station string) bool {
	atStation := strings.HasPrefix(ov, "RUNWAY") ||
		strings.HasPrefix(ov, "RWY") ||
		strings.HasPrefix(ov, "FINAL") ||
		strings.HasPrefix(ov, "ON FINAL") ||
		strings.HasPrefix(ov, "SHORT FINAL") ||
		ov == "DURD" || ov == "DURC"
	if !atStation {
		return false
	}
	coords := db.resolve(station, -1, 0)
	if coords == nil {
		return false
	}
	p.GeoJSON = makeGeoJSON("Point", coords, map[string]any{"id": p.UniqueName})
	return true
}

// resolve looks up an ident and applies an optional magnetic bearing
// and distance. A bearing of -1 means at the point itself. /OV fields
// carry assorted trash, so silly bearings and distances are rejected.
func (db *DB) resolve(ident string, magBearing, nm float64) []float64 {
	if !couldBeIdent(ident) {
		return nil
	}
	if magBearing != -1 {
		if magBearing < 0 || magBearing > 360 {
			return nil
		}
		if nm < 0 || nm >= 400 {
			return nil
		}
	}

	pt, ok := db.findIdent(ident)
	if !ok {
		return nil
	}

	lon, lat := pt.lon, pt.lat
	if magBearing != -1 {
		lon, lat = Destination(lon, lat, magneticToTrue(magBearing, pt.declination), nm)
	}
	return []float64{round6(lon), round6(lat)}
}

// findIdent searches the tables an ident of this length could live in.
func (db *DB) findIdent(ident string) (point, bool) {
	ident = strings.TrimSpace(ident)
	switch len(ident) {
	case 5:
		pt, ok := db.points[ident]
		return pt, ok
	case 3:
		if pt, ok := db.navaids[ident]; ok {
			return pt, true
		}
		pt, ok := db.airports[ident]
		return pt, ok
	case 4:
		pt, ok := db.airports[ident]
		return pt, ok
	}
	return point{}, false
}

// couldBeIdent rejects all-numeric strings; idents need at least one
// letter.
func couldBeIdent(ident string) bool {
	for _, c := range ident {
		if c >= 'A' && c <= 'Z' {
			return true
		}
	}
	return false
}

// magneticToTrue converts a magnetic bearing to true given the local
// declination (west negative). Result is normalized to [0, 360).
func magneticToTrue(magBearing, declination float64) float64 {
	t := magBearing + declination
	if t >= 360 {
		t -= 360
	} else if t < 0 {
		t += 360
	}
	return t
}

const (
	earthRadiusM = 6371008.8
	metersPerNM  = 1852.001
)

// Destination returns the point nm nautical miles from the origin on
// the given true bearing, by the spherical direct formula.
func Destination(lon, lat, trueBearing, nm float64) (lon2, lat2 float64) {
	origin := s2.LatLngFromDegrees(lat, lon)
	d := nm * metersPerNM / earthRadiusM
	brg := trueBearing * math.Pi / 180
	lat1 := origin.Lat.Radians()
	lon1 := origin.Lng.Radians()

	sinLat2 := math.Sin(lat1)*math.Cos(d) + math.Cos(lat1)*math.Sin(d)*math.Cos(brg)
	rLat2 := math.Asin(sinLat2)
	rLon2 := lon1 + math.Atan2(
		math.Sin(brg)*math.Sin(d)*math.Cos(lat1),
		math.Cos(d)-math.Sin(lat1)*sinLat2)

	dest := s2.LatLng{Lat: s1.Angle(rLat2), Lng: s1.Angle(rLon2)}.Normalized()
	return dest.Lng.Degrees(), dest.Lat.Degrees()
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// makeGeoJSON builds a single-feature FeatureCollection. coords is
// []float64 for a Point or [][]float64 for a LineString.
func makeGeoJSON(geomType string, coords any, properties map[string]any) json.RawMessage {
	doc := map[string]any{
		"type": "FeatureCollection",
		"features": []any{map[string]any{
			"type": "Feature",
			"geometry": map[string]any{
				"type":        geomType,
				"coordinates": coords,
			},
			"properties": properties,
		}},
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return nil
	}
	return b
}
