package l2products

// The overlay records that arrive from L1 are close to the wire format:
// vertex lists capped at 64 points, altitudes folded into every vertex,
// and the occasional TRA/TMOA altitude-override pair. This file turns
// them into the geometry records that ride on products: one record per
// shape, with a single coordinate list and an altitude band.

import (
	"fmt"
	"time"

	"github.com/fisb-tools/fisb978/internal/fisb"
)

// objectElements maps the wire object element code to its name.
var objectElements = []string{
	"TFR", "TURB", "LLWS", "SFC", "ICING", "FRZLVL", "IFR", "MTN",
}

// altitudeAndGeoType maps an overlay geometry option to the altitude
// reference and shape it encodes.
func altitudeAndGeoType(opts int) (altType, geoType string, err error) {
	switch opts {
	case 3:
		return "MSL", "POLYGON", nil
	case 4:
		return "AGL", "POLYGON", nil
	case 7:
		return "MSL", "CIRCLE", nil
	case 8:
		return "AGL", "CIRCLE", nil
	case 9:
		return "AGL", "POINT", nil
	case 10:
		return "MSL", "POINT", nil
	case 11:
		return "MSL", "POLYLINE", nil
	case 12:
		return "AGL", "POLYLINE", nil
	}
	return "", "", fmt.Errorf("overlay geometry option %d not implemented", opts)
}

// qualifierConditions decodes the three G-AIRMET object qualifier bytes
// into condition names.
func qualifierConditions(q []byte) []string {
	if len(q) < 3 {
		return nil
	}
	var out []string
	if q[0]&0x80 != 0 {
		out = append(out, "UNSPCFD")
	}
	if q[1]&0x01 != 0 {
		out = append(out, "ASH")
	}
	byte2 := []struct {
		mask byte
		name string
	}{
		{0x80, "DUST"}, {0x40, "CLOUDS"}, {0x20, "BLSNOW"}, {0x10, "SMOKE"},
		{0x08, "HAZE"}, {0x04, "FOG"}, {0x02, "MIST"}, {0x01, "PCPN"},
	}
	for _, b := range byte2 {
		if q[2]&b.mask != 0 {
			out = append(out, b.name)
		}
	}
	return out
}

// workRecord is one overlay record flowing through the merge passes.
// overrideAlts carries a TRA/TMOA altitude pair past the shape dispatch.
type workRecord struct {
	rec          fisb.GraphicRecord
	vertices     [][]float64
	overrideAlts *fisb.AltitudeBand
}

// ProcessGeometry converts overlay records into product geometry. ref
// anchors any partial start/stop dates the records carry; productID
// selects the TRA/TMOA altitude-override pass.
func ProcessGeometry(records []fisb.GraphicRecord, ref time.Time, productID int) ([]fisb.Geometry, error) {
	work := splitPointsAndCircles(records)
	work, err := mergePolyRecords(work)
	if err != nil {
		return nil, err
	}
	if productID == fisb.ProductNOTAMTRA || productID == fisb.ProductNOTAMTMOA {
		work, err = mergeOverlayOperator(work)
		if err != nil {
			return nil, err
		}
	}

	out := make([]fisb.Geometry, 0, len(work))
	for i := range work {
		g, err := buildGeometry(&work[i], ref)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

// splitPointsAndCircles gives every point and circle vertex its own
// record. Multi-vertex circles are rare but broadcast.
func splitPointsAndCircles(records []fisb.GraphicRecord) []workRecord {
	out := make([]workRecord, 0, len(records))
	for i := range records {
		rec := records[i]
		switch rec.GeometryOptions {
		case 7, 8, 9, 10:
			for _, v := range rec.Vertices {
				out = append(out, workRecord{rec: rec, vertices: [][]float64{v}})
			}
		default:
			out = append(out, workRecord{rec: rec, vertices: rec.Vertices})
		}
	}
	return out
}

// mergePolyRecords joins polygons and polylines that overflowed the
// 64-vertex record limit back into single records.
func mergePolyRecords(work []workRecord) ([]workRecord, error) {
	if len(work) <= 1 {
		return work, nil
	}

	var out []workRecord
	for i := 0; i < len(work); i++ {
		cur := work[i]
		switch cur.rec.GeometryOptions {
		case 3, 4: // polygon
			for i+1 < len(work) && work[i+1].rec.GeometryOptions == cur.rec.GeometryOptions {
				merged, ok := appendPolygon(cur.vertices, work[i+1].vertices)
				if !ok {
					break
				}
				cur.vertices = merged
				i++
			}
		case 11, 12: // polyline
			for i+1 < len(work) && work[i+1].rec.GeometryOptions == cur.rec.GeometryOptions {
				merged, ok := appendPolyline(cur.vertices, work[i+1].vertices)
				if !ok {
					break
				}
				cur.vertices = merged
				i++
			}
		}
		out = append(out, cur)
	}
	return out, nil
}

func sameVertex(a, b []float64) bool {
	return a[0] == b[0] && a[1] == b[1] && a[2] == b[2]
}

// appendPolyline joins two polyline pieces when the first ends where
// the second begins, dropping the shared point.
func appendPolyline(cur, next [][]float64) ([][]float64, bool) {
	if len(cur) == 0 || len(next) == 0 || !sameVertex(cur[len(cur)-1], next[0]) {
		return nil, false
	}
	out := make([][]float64, 0, len(cur)+len(next)-1)
	out = append(out, cur[:len(cur)-1]...)
	out = append(out, next...)
	return out, true
}

// appendPolygon joins two polygon pieces when the first does not close
// its ring. Rings restart when a second altitude layer begins, so the
// closure check tracks the current ring's origin.
func appendPolygon(cur, next [][]float64) ([][]float64, bool) {
	if len(cur) == 0 || len(next) == 0 {
		return nil, false
	}
	start := cur[0]
	complete := false
	for _, v := range cur[1:] {
		if sameVertex(v, start) {
			complete = true
		} else if complete {
			// A new altitude layer opens a fresh ring.
			start = v
			complete = false
		}
	}
	if complete {
		return nil, false
	}

	out := make([][]float64, 0, len(cur)+len(next))
	if sameVertex(cur[len(cur)-1], next[0]) {
		// Some multi-record polygons duplicate the joint like a
		// polyline would.
		out = append(out, cur[:len(cur)-1]...)
	} else {
		out = append(out, cur...)
	}
	out = append(out, next...)
	return out, true
}

// mergeOverlayOperator handles the TRA/TMOA overlay operator 1 pair:
// two records carrying the same shape at two altitude references,
// collapsed into one record with an altitude override.
func mergeOverlayOperator(work []workRecord) ([]workRecord, error) {
	if len(work) != 2 || work[0].rec.OverlayOperator != 1 {
		return work, nil
	}

	altType0, geoType0, err := altitudeAndGeoType(work[0].rec.GeometryOptions)
	if err != nil {
		return nil, err
	}
	altType1, geoType1, err := altitudeAndGeoType(work[1].rec.GeometryOptions)
	if err != nil {
		return nil, err
	}
	if geoType0 != geoType1 {
		return nil, fmt.Errorf("overlay operator pair mixes %s and %s", geoType0, geoType1)
	}
	if len(work[0].vertices) != len(work[1].vertices) {
		return nil, fmt.Errorf("overlay operator pair has %d and %d vertices",
			len(work[0].vertices), len(work[1].vertices))
	}

	switch geoType0 {
	case "POLYGON":
		work[0].overrideAlts = &fisb.AltitudeBand{
			Top:       int(work[0].vertices[0][2]),
			TopRef:    altType0,
			Bottom:    int(work[1].vertices[0][2]),
			BottomRef: altType1,
		}
	case "CIRCLE":
		// The second record only moves the bottom altitude.
		v := append([]float64(nil), work[0].vertices[0]...)
		v[4] = work[1].vertices[0][4]
		work[0].vertices = [][]float64{v}
	default:
		return nil, fmt.Errorf("overlay operator pair on %s", geoType0)
	}
	return work[:1], nil
}

// buildGeometry fills the common fields from the record, then the
// shape-specific ones from its vertex list.
func buildGeometry(w *workRecord, ref time.Time) (fisb.Geometry, error) {
	rec := &w.rec
	altType, geoType, err := altitudeAndGeoType(rec.GeometryOptions)
	if err != nil {
		return fisb.Geometry{}, err
	}

	g := fisb.Geometry{
		Type:      geoType,
		Altitudes: &fisb.AltitudeBand{TopRef: altType, BottomRef: altType},
	}

	// Start/stop appear per the applicability options; only the full
	// month/day/hour/minute and the hours-of-day formats are broadcast.
	appOpt := rec.ApplicabilityOptions
	if appOpt == 1 || appOpt == 3 {
		switch rec.DateTimeFormat {
		case 1:
			t := ComponentsReferenced(ref, rec.StartMonth, rec.StartDay, rec.StartHour, rec.StartMinute)
			g.StartTime = &t
		case 3:
			g.DailyStart = fmt.Sprintf("%02d%02d", rec.StartHour, rec.StartMinute)
		}
	}
	if appOpt == 2 || appOpt == 3 {
		switch rec.DateTimeFormat {
		case 1:
			t := ComponentsReferenced(ref, rec.StopMonth, rec.StopDay, rec.StopHour, rec.StopMinute)
			g.StopTime = &t
		case 3:
			g.DailyStop = fmt.Sprintf("%02d%02d", rec.StopHour, rec.StopMinute)
		}
	}

	if rec.ObjectStatus == 13 {
		g.Cancelled = true
	}
	if rec.ElementFlag != 0 && rec.ObjectElement < len(objectElements) {
		g.Element = objectElements[rec.ObjectElement]
	}
	if rec.LabelFlag == 1 {
		g.AirportID = rec.ObjectLabel
	}
	if rec.QualFlag == 1 {
		g.Conditions = qualifierConditions(rec.ObjectQualifiers)
	}

	switch geoType {
	case "POINT":
		err = fillPoint(&g, w.vertices)
	case "CIRCLE":
		err = fillCircle(&g, w.vertices)
	default:
		err = fillPolygonPolyline(&g, w.vertices)
	}
	if err != nil {
		return fisb.Geometry{}, err
	}

	if w.overrideAlts != nil {
		g.Altitudes = w.overrideAlts
	}
	return g, nil
}

func fillPoint(g *fisb.Geometry, vertices [][]float64) error {
	if len(vertices) != 1 || len(vertices[0]) < 3 {
		return fmt.Errorf("point record with %d vertices", len(vertices))
	}
	v := vertices[0]
	g.Altitudes.Top = int(v[2])
	g.Center = []float64{v[0], v[1]}
	return nil
}

// fillCircle handles the one circular prism shape seen in the wild: a
// plain cylinder. Ellipses and slanted prisms are rejected.
func fillCircle(g *fisb.Geometry, vertices [][]float64) error {
	if len(vertices) != 1 {
		return fmt.Errorf("circle record with %d vertices", len(vertices))
	}
	v := vertices[0]
	if len(v) < 9 {
		return fmt.Errorf("circle vertex with %d elements", len(v))
	}
	if v[0] != v[2] || v[1] != v[3] || v[8] != 0 || v[6] != v[7] {
		return fmt.Errorf("circular prism is not a plain cylinder")
	}
	g.Altitudes.Top = int(v[5])
	g.Altitudes.Bottom = int(v[4])
	g.Center = []float64{v[0], v[1]}
	g.RadiusNM = v[6]
	return nil
}

// fillPolygonPolyline factors the per-vertex altitudes out of the
// coordinate list. The FAA sometimes sends the same ring twice, once
// per altitude; the rings must match and there can be at most two.
func fillPolygonPolyline(g *fisb.Geometry, vertices [][]float64) error {
	byAlt := make(map[float64][][]float64)
	var altOrder []float64
	for _, v := range vertices {
		if len(v) < 3 {
			return fmt.Errorf("vertex with %d elements", len(v))
		}
		alt := v[2]
		if _, seen := byAlt[alt]; !seen {
			altOrder = append(altOrder, alt)
		}
		byAlt[alt] = append(byAlt[alt], []float64{v[0], v[1]})
	}

	switch len(altOrder) {
	case 1:
		g.Altitudes.Top = int(altOrder[0])
	case 2:
		// The higher altitude is always sent first.
		g.Altitudes.Top = int(altOrder[0])
		g.Altitudes.Bottom = int(altOrder[1])
		a, b := byAlt[altOrder[0]], byAlt[altOrder[1]]
		if len(a) != len(b) {
			return fmt.Errorf("altitude layers have %d and %d vertices", len(a), len(b))
		}
		for i := range a {
			if a[i][0] != b[i][0] || a[i][1] != b[i][1] {
				return fmt.Errorf("altitude layers diverge at vertex %d", i)
			}
		}
	default:
		return fmt.Errorf("%d altitudes in one vertex list", len(altOrder))
	}

	g.Coordinates = byAlt[altOrder[0]]
	return nil
}

// latestStopTime reports the latest stop time across the geometry and
// whether every record carries one.
func latestStopTime(geo []fisb.Geometry) (time.Time, bool) {
	var latest time.Time
	for i := range geo {
		if geo[i].StopTime == nil {
			return time.Time{}, false
		}
		if geo[i].StopTime.After(latest) {
			latest = *geo[i].StopTime
		}
	}
	return latest, len(geo) > 0
}

// twgoExpiration picks an expiration for a TWGO product: the NOTAM's
// own end of validity when present, otherwise the latest geometry stop
// time when every record has one, otherwise the default hold past the
// last reception.
func (c Config) twgoExpiration(geo []fisb.Geometry, rcvd time.Time, notamExp *time.Time) time.Time {
	if !c.BypassTWGOSmartExpiration {
		if notamExp != nil {
			return *notamExp
		}
		if latest, ok := latestStopTime(geo); ok {
			return latest
		}
	}
	return rcvd.Add(c.TWGODefaultExpiration)
}
