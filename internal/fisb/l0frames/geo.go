package l0frames

import "math"

// Degrees per LSB for the raw angular encodings used on the wire.
const (
	Geo24Bits = 360.0 / (1 << 24)
	Geo19Bits = 360.0 / (1 << 19)
	Geo18Bits = 360.0 / (1 << 18)
)

// rawToLonLat converts raw angular units to longitude/latitude in
// degrees, truncated to 6 decimal places (GPS-grade precision).
func rawToLonLat(rawLon, rawLat int, bitFactor float64) (lon, lat float64) {
	lon = float64(rawLon) * bitFactor
	if lon > 180 {
		lon -= 360
	}
	lat = float64(rawLat) * bitFactor
	if lat > 90 {
		lat -= 180
	}
	return round6(lon), round6(lat)
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
