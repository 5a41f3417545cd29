// Package geo provides the distance math used by stop and position lookups.
package geo

import "math"

const earthRadiusM = 6371000.0

// HaversineM returns the great-circle distance in meters between two
// (lng, lat) points.
func HaversineM(lng1, lat1, lng2, lat2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusM * c
}

// BoundingBox returns the lat/lng half-widths in degrees covering a radius in
// meters around the given latitude. The longitude delta widens toward the
// poles; the cosine is clamped to keep it finite.
func BoundingBox(lat, meters float64) (deltaLat, deltaLng float64) {
	deltaLat = meters / 111000.0
	latRad := lat * math.Pi / 180
	deltaLng = meters / (111000.0 * math.Max(math.Cos(latRad), 0.000001))
	return deltaLat, deltaLng
}
