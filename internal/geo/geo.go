package geo

import (
	"math"

	"github.com/example/companion-matching/internal/models"
)

const EarthRadiusMeters = 6371000.0

// Haversine distance in meters
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusMeters * c
}

// Distance is Haversine over two coordinates.
func Distance(a, b models.Coord) float64 {
	if a == b {
		return 0
	}
	return Haversine(a.Lat, a.Lng, b.Lat, b.Lng)
}

// Midpoint averages latitude and longitude. This is not the geodesic
// midpoint; at city scale the error is a few meters, which is below POI
// search resolution. It is wrong across the antimeridian.
func Midpoint(a, b models.Coord) models.Coord {
	return models.Coord{Lng: (a.Lng + b.Lng) / 2, Lat: (a.Lat + b.Lat) / 2}
}

func toRad(deg float64) float64 { return deg * math.Pi / 180 }
