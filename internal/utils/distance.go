package utils

import (
	"math"
)

// CalculateDistance returns the great-circle distance in kilometers between
// two coordinates.
func CalculateDistance(lat1, lng1, lat2, lng2 float64) float64 {
	return haversineDistance(lat1, lng1, lat2, lng2)
}

func haversineDistance(lat1, lng1, lat2, lng2 float64) float64 {
	// Convert to radians
	lat1Rad := lat1 * math.Pi / 180
	lng1Rad := lng1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	lng2Rad := lng2 * math.Pi / 180

	// Differences
	dLat := lat2Rad - lat1Rad
	dLng := lng2Rad - lng1Rad

	// Haversine formula
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKM * c
}

// EstimateETAMinutes converts a distance into a travel-time estimate at the
// assumed average ambulance speed. Rounds up so the estimate never
// understates travel time; 0 km is 0 minutes.
func EstimateETAMinutes(distanceKM float64) int {
	if distanceKM <= 0 {
		return 0
	}

	timeHours := distanceKM / AverageSpeedKMH
	timeMinutes := timeHours * 60

	return int(math.Ceil(timeMinutes))
}

func IsWithinRadius(centerLat, centerLng, pointLat, pointLng, radiusKM float64) bool {
	distance := CalculateDistance(centerLat, centerLng, pointLat, pointLng)
	return distance <= radiusKM
}

// CalculateBearing returns the initial heading from the first coordinate to
// the second, in degrees clockwise from north. Used for map marker rotation.
func CalculateBearing(lat1, lng1, lat2, lng2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	dLng := (lng2 - lng1) * math.Pi / 180

	y := math.Sin(dLng) * math.Cos(lat2Rad)
	x := math.Cos(lat1Rad)*math.Sin(lat2Rad) - math.Sin(lat1Rad)*math.Cos(lat2Rad)*math.Cos(dLng)

	bearing := math.Atan2(y, x) * 180 / math.Pi
	bearing = math.Mod(bearing+360, 360)

	return bearing
}
