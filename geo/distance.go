package geo

import (
	"math"

	"github.com/paulmach/orb"

	"github.com/bitmark-inc/geoquest-agent/schema"
)

// EarthRadius in meters
const EarthRadius = 6371000.0

// Distance returns the great-circle distance in meters between two points
// using the haversine formula.
func Distance(a, b orb.Point) float64 {
	lat1 := a.Lat() * math.Pi / 180
	lat2 := b.Lat() * math.Pi / 180
	deltaLat := (b.Lat() - a.Lat()) * math.Pi / 180
	deltaLng := (b.Lon() - a.Lon()) * math.Pi / 180

	h := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*
			math.Sin(deltaLng/2)*math.Sin(deltaLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadius * c
}

// DistanceBetween is Distance for schema locations.
func DistanceBetween(a, b schema.Location) float64 {
	return Distance(a.Point(), b.Point())
}

// Offset moves a location north and east by the given meters. Used to place
// points at a known distance from a center.
func Offset(loc schema.Location, northMeters, eastMeters float64) schema.Location {
	dLat := northMeters / EarthRadius * 180 / math.Pi
	dLng := eastMeters / (EarthRadius * math.Cos(loc.Latitude*math.Pi/180)) * 180 / math.Pi
	return schema.Location{
		Latitude:  loc.Latitude + dLat,
		Longitude: loc.Longitude + dLng,
	}
}
