// Package geo holds the coordinate type and great-circle math shared by the
// proximity search paths.
package geo

import "math"

// Point is a WGS84 coordinate. JSON wire payloads carry coordinates as a
// [lng, lat] pair, so Point only appears in internal structures.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Mean Earth radius in kilometers.
const earthRadiusKM = 6371.0

// Distance returns the great-circle distance between p1 and p2 in
// kilometers using the haversine formula.
func Distance(p1, p2 Point) float64 {
	lat1Rad := p1.Lat * math.Pi / 180
	lat2Rad := p2.Lat * math.Pi / 180
	deltaLat := (p2.Lat - p1.Lat) * math.Pi / 180
	deltaLng := (p2.Lng - p1.Lng) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLng/2)*math.Sin(deltaLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKM * c
}

// RoundKM rounds a distance to one decimal place, the precision shown to
// users and carried on nearby results.
func RoundKM(km float64) float64 {
	return math.Round(km*10) / 10
}
