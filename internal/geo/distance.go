package geo

import (
	"math"

	"github.com/onnwee/swipestack/internal/profile"
)

const (
	// EarthRadiusKm is the mean Earth radius used by DistanceKm.
	EarthRadiusKm = 6371.0
	// KmPerMile converts statute miles to kilometers.
	KmPerMile = 1.60934
)

// DistanceKm returns the haversine great-circle distance between a and b.
func DistanceKm(a, b profile.Coordinates) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	if h > 1 {
		h = 1
	}
	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(h))
}

// ToKm converts a distance value in the given unit to kilometers.
func ToKm(value float64, unit profile.DistanceUnit) float64 {
	if unit == profile.UnitMiles {
		return value * KmPerMile
	}
	return value
}

// LimitKm returns the limit expressed in kilometers. The unlimited and
// country-level sentinels are returned unchanged.
func LimitKm(l profile.DistanceLimit) profile.DistanceLimit {
	if l.Kind != profile.DistanceLimited {
		return l
	}
	return profile.DistanceLimit{
		Kind:  profile.DistanceLimited,
		Value: ToKm(l.Value, l.Unit),
		Unit:  profile.UnitKilometers,
	}
}
