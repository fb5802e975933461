// Package route classifies a traveler's position against a planned route.
package route

import (
	"math"

	"github.com/stipator/stipator/internal/lib/geo"
)

// DefaultThresholdMeters is the fallback deviation threshold when a user has
// not configured one. ThresholdPresets are the values offered in settings.
const DefaultThresholdMeters = 500

// ThresholdPresets lists the recommended deviation threshold choices in meters.
var ThresholdPresets = []float64{200, 500, 800}

// Route is the traveler's planned path as an ordered point sequence. An empty
// route is valid and disables deviation checking: "no known route" is not the
// same as "deviating".
type Route []geo.Point

// Classification is the result of checking a position against a route.
type Classification struct {
	Deviating       bool      `json:"deviating"`
	NearestPoint    geo.Point `json:"nearest_point"`
	NearestDistance float64   `json:"nearest_distance"`
	NearestIndex    int       `json:"nearest_index"`
}

// Classify finds the route vertex nearest to current and reports whether the
// traveler is farther than thresholdMeters from it. Ties go to the lowest
// index. An empty route always classifies as not deviating, with an infinite
// nearest distance and index -1.
//
// This is a nearest-vertex approximation rather than a segment projection;
// directions providers emit dense enough polylines that vertex spacing stays
// well under any usable threshold.
func Classify(current geo.Point, r Route, thresholdMeters float64) Classification {
	if len(r) == 0 {
		return Classification{
			Deviating:       false,
			NearestDistance: math.Inf(1),
			NearestIndex:    -1,
		}
	}

	nearest := Classification{
		NearestPoint:    r[0],
		NearestDistance: geo.DistanceMeters(current, r[0]),
		NearestIndex:    0,
	}
	for i := 1; i < len(r); i++ {
		if d := geo.DistanceMeters(current, r[i]); d < nearest.NearestDistance {
			nearest.NearestPoint = r[i]
			nearest.NearestDistance = d
			nearest.NearestIndex = i
		}
	}

	nearest.Deviating = nearest.NearestDistance > thresholdMeters
	return nearest
}
