// Package geodist provides great-circle distance between WGS-84 coordinates.
package geodist

import "math"

// earthRadiusKM is the mean Earth radius (IUGG).
const earthRadiusKM = 6371.0088

// Kilometers returns the great-circle distance in kilometers between two
// points given as (latitude, longitude) in degrees, using the haversine
// formula.
func Kilometers(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	sinPhi := math.Sin(dPhi / 2)
	sinLambda := math.Sin(dLambda / 2)

	a := sinPhi*sinPhi + math.Cos(phi1)*math.Cos(phi2)*sinLambda*sinLambda
	return 2 * earthRadiusKM * math.Asin(math.Min(1, math.Sqrt(a)))
}
