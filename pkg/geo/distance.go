// Package geo provides geographic helpers for trial matching: great-circle
// distance between coordinates and a small geocoding table for common US
// metro areas.
package geo

import (
	"math"
)

// EarthRadiusMiles is the mean radius of the Earth in miles.
const EarthRadiusMiles = 3958.8

// Distance computes the great-circle distance in miles between two points
// given in decimal degrees, using the Haversine formula. Inputs are not
// range-checked; out-of-range coordinates propagate through the math.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lon1Rad := lon1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	lon2Rad := lon2 * math.Pi / 180

	dLat := lat2Rad - lat1Rad
	dLon := lon2Rad - lon1Rad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusMiles * c
}
