package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistanceMeters(t *testing.T) {
	// One degree of longitude on the equator is ~111.2km
	origin := Point{Lat: 0, Lng: 0}
	oneDegreeEast := Point{Lat: 0, Lng: 1}

	distance := DistanceMeters(origin, oneDegreeEast)
	assert.InDelta(t, 111195, distance, 111195*0.01, "One equatorial degree should be ~111.2km")

	// Real-world fixture: Angels Camp to Murphys, ~11.0km
	angelsCamp := Point{Lat: 38.0675, Lng: -120.5436}
	murphys := Point{Lat: 38.1391, Lng: -120.4561}
	assert.InDelta(t, 11046, DistanceMeters(angelsCamp, murphys), 100)
}

func TestDistanceMeters_Identity(t *testing.T) {
	points := []Point{
		{Lat: 0, Lng: 0},
		{Lat: 38.0675, Lng: -120.5436},
		{Lat: -89.9, Lng: 179.9},
	}
	for _, p := range points {
		assert.Equal(t, 0.0, DistanceMeters(p, p), "Distance from point to itself should be 0")
	}
}

func TestDistanceMeters_Symmetry(t *testing.T) {
	a := Point{Lat: 38.0675, Lng: -120.5436}
	b := Point{Lat: 38.1391, Lng: -120.4561}

	assert.InDelta(t, DistanceMeters(a, b), DistanceMeters(b, a), 1e-9)
}

func TestDecodePolyline(t *testing.T) {
	// Canonical polyline fixture from the encoding documentation
	points := DecodePolyline("_p~iF~ps|U_ulLnnqC_mqNvxq`@")
	require.Len(t, points, 3)

	assert.InDelta(t, 38.5, points[0].Lat, 1e-5)
	assert.InDelta(t, -120.2, points[0].Lng, 1e-5)
	assert.InDelta(t, 40.7, points[1].Lat, 1e-5)
	assert.InDelta(t, -120.95, points[1].Lng, 1e-5)
	assert.InDelta(t, 43.252, points[2].Lat, 1e-5)
	assert.InDelta(t, -126.453, points[2].Lng, 1e-5)
}

func TestDecodePolyline_Empty(t *testing.T) {
	points := DecodePolyline("")
	require.NotNil(t, points)
	assert.Empty(t, points, "Empty string should decode to an empty sequence")
}

func TestDecodePolyline_Malformed(t *testing.T) {
	// A dangling continuation bit at the end: the valid prefix should still
	// decode, the trailing garbage is dropped.
	prefix := EncodePolyline([]Point{
		{Lat: 38.06750, Lng: -120.54360},
		{Lat: 38.13910, Lng: -120.45610},
	})
	points := DecodePolyline(prefix + "_")
	require.Len(t, points, 2, "Valid prefix should decode despite trailing garbage")
	assert.InDelta(t, 38.13910, points[1].Lat, 1e-5)
	assert.InDelta(t, -120.45610, points[1].Lng, 1e-5)

	// Pure garbage never raises, just yields nothing useful.
	garbage := DecodePolyline("_")
	assert.Empty(t, garbage)
}

func TestPolylineRoundTrip(t *testing.T) {
	route := []Point{
		{Lat: 38.06750, Lng: -120.54360},
		{Lat: 38.10000, Lng: -120.50000},
		{Lat: 38.13910, Lng: -120.45610},
		{Lat: -33.86880, Lng: 151.20930},
	}

	decoded := DecodePolyline(EncodePolyline(route))
	require.Len(t, decoded, len(route))
	for i := range route {
		assert.InDelta(t, route[i].Lat, decoded[i].Lat, 1e-5)
		assert.InDelta(t, route[i].Lng, decoded[i].Lng, 1e-5)
	}
}

func TestPointValid(t *testing.T) {
	assert.True(t, Point{Lat: 38.0675, Lng: -120.5436}.Valid())
	assert.True(t, Point{Lat: -90, Lng: 180}.Valid())
	assert.False(t, Point{Lat: 91, Lng: 0}.Valid())
	assert.False(t, Point{Lat: 0, Lng: -181}.Valid())
}
