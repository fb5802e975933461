package geo

import (
	"math"

	"github.com/twpayne/go-polyline"
)

// earthRadiusMeters is the spherical Earth radius used by the Haversine formula.
const earthRadiusMeters = 6371000

// DistanceMeters calculates the great-circle distance between two points in
// meters using the Haversine formula. It is pure and symmetric; the distance
// from a point to itself is exactly 0.
func DistanceMeters(a, b Point) float64 {
	if a.Lat == b.Lat && a.Lng == b.Lng {
		return 0
	}

	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dlat := (b.Lat - a.Lat) * math.Pi / 180
	dlng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dlng/2)*math.Sin(dlng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusMeters * c
}

// DecodePolyline decodes an encoded polyline string (5-bit groups, 0x20
// continuation bit, zig-zag signed deltas, 1e5 scale) into a point sequence.
//
// Decoding is best-effort: an empty string yields an empty sequence, and
// malformed input yields the points decoded before the bad byte. Callers
// treat a short or empty result as "no route data", never as a hard error,
// so no error is returned.
func DecodePolyline(encoded string) []Point {
	points := []Point{}
	buf := []byte(encoded)

	// Each coordinate after the first is encoded as a signed delta from its
	// predecessor, so decoding carries running sums.
	var lat, lng float64
	for len(buf) > 0 {
		coord, rest, err := polyline.DecodeCoord(buf)
		if err != nil || len(coord) < 2 {
			break
		}
		lat += coord[0]
		lng += coord[1]
		p := Point{Lat: lat, Lng: lng}
		if !p.Valid() {
			break
		}
		points = append(points, p)
		buf = rest
	}

	return points
}

// EncodePolyline encodes a point sequence into the polyline wire format
// decoded by DecodePolyline. Coordinates are rounded to 1e-5 precision.
func EncodePolyline(points []Point) string {
	coords := make([][]float64, len(points))
	for i, p := range points {
		coords[i] = []float64{p.Lat, p.Lng}
	}
	return string(polyline.EncodeCoords(coords))
}
