// Package geo resolves location text to coordinates, measures great-circle
// distance and normalizes distance preferences to kilometers.
package geo

import (
	"strings"

	"github.com/onnwee/swipestack/internal/profile"
)

// LogPrecision is the geohash length used when a location has to appear in
// logs. Five characters is a cell of roughly 5 km.
const LogPrecision = 5

const base32 = "0123456789bcdefghjkmnpqrstuvwxyz"

// Encode encodes latitude and longitude into a geohash of the given length.
func Encode(lat, lng float64, precision int) string {
	if precision < 1 {
		precision = LogPrecision
	}

	latLo, latHi := -90.0, 90.0
	lngLo, lngHi := -180.0, 180.0

	var out strings.Builder
	out.Grow(precision)

	var ch byte
	bit := 0
	evenBit := true
	for out.Len() < precision {
		if evenBit {
			mid := (lngLo + lngHi) / 2
			if lng > mid {
				ch |= 1 << (4 - bit)
				lngLo = mid
			} else {
				lngHi = mid
			}
		} else {
			mid := (latLo + latHi) / 2
			if lat > mid {
				ch |= 1 << (4 - bit)
				latLo = mid
			} else {
				latHi = mid
			}
		}
		evenBit = !evenBit
		if bit++; bit == 5 {
			out.WriteByte(base32[ch])
			bit, ch = 0, 0
		}
	}
	return out.String()
}

// Cell returns a coarse geohash for coordinates so they can be logged
// without exposing a user's position. Unknown coordinates yield "".
func Cell(c profile.Coordinates) string {
	if !c.Known() {
		return ""
	}
	return Encode(c.Lat, c.Lng, LogPrecision)
}
