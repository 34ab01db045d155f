package geo

import (
	"math"
	"math/rand"
)

// EarthRadiusKM is the mean radius of the Earth in kilometers.
const EarthRadiusKM = 6371.0

// HaversineKM computes the great-circle distance in kilometers between two
// coordinate pairs using the haversine formula.
//
// Parameters:
//   - lat1, lng1: first point in degrees
//   - lat2, lng2: second point in degrees
//
// Returns the distance in kilometers. Identical points return 0.
func HaversineKM(lat1, lng1, lat2, lng2 float64) float64 {
	const degToRad = math.Pi / 180.0

	dLat := (lat2 - lat1) * degToRad
	dLng := (lng2 - lng1) * degToRad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*degToRad)*math.Cos(lat2*degToRad)*
			math.Sin(dLng/2)*math.Sin(dLng/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKM * c
}

// Jitter displaces a coordinate pair by a random offset of up to radiusM
// meters. Item coordinates are jittered once before persistence so that a
// report never stores the exact point where an owner lost something.
//
// The offset is drawn uniformly from a disc: a uniform angle plus a
// sqrt-distributed radius, so displaced points do not cluster at the center.
//
// Parameters:
//   - lat, lng: original point in degrees
//   - radiusM: maximum displacement in meters; 0 or negative returns the input unchanged
//
// Returns the jittered latitude and longitude.
func Jitter(lat, lng float64, radiusM float64) (float64, float64) {
	if radiusM <= 0 {
		return lat, lng
	}

	angle := rand.Float64() * 2 * math.Pi
	dist := math.Sqrt(rand.Float64()) * radiusM

	// Convert the meter offset to degrees. Longitude degrees shrink with
	// latitude, guarded near the poles.
	dLat := (dist * math.Cos(angle)) / 111320.0
	cosLat := math.Cos(lat * math.Pi / 180.0)
	if math.Abs(cosLat) < 1e-6 {
		cosLat = 1e-6
	}
	dLng := (dist * math.Sin(angle)) / (111320.0 * cosLat)

	newLat := lat + dLat
	newLng := lng + dLng

	if newLat > 90 {
		newLat = 90
	} else if newLat < -90 {
		newLat = -90
	}
	if newLng > 180 {
		newLng -= 360
	} else if newLng < -180 {
		newLng += 360
	}

	return newLat, newLng
}
