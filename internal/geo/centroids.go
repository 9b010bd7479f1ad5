package geo

import (
	"strings"

	"github.com/onnwee/swipestack/internal/profile"
)

// CentroidConfidence is the confidence assigned to country-centroid
// fallbacks.
const CentroidConfidence = 0.3

type centroid struct {
	code     string
	names    []string
	lat, lng float64
}

// Approximate geographic centroids used when the geocoder is unavailable.
var centroids = []centroid{
	{"us", []string{"united states", "usa", "united states of america", "america"}, 39.8283, -98.5795},
	{"ca", []string{"canada"}, 56.1304, -106.3468},
	{"mx", []string{"mexico"}, 23.6345, -102.5528},
	{"br", []string{"brazil", "brasil"}, -14.2350, -51.9253},
	{"ar", []string{"argentina"}, -38.4161, -63.6167},
	{"co", []string{"colombia"}, 4.5709, -74.2973},
	{"cl", []string{"chile"}, -35.6751, -71.5430},
	{"gb", []string{"united kingdom", "uk", "great britain", "england", "scotland", "wales"}, 55.3781, -3.4360},
	{"ie", []string{"ireland"}, 53.1424, -7.6921},
	{"fr", []string{"france"}, 46.2276, 2.2137},
	{"de", []string{"germany", "deutschland"}, 51.1657, 10.4515},
	{"es", []string{"spain", "españa"}, 40.4637, -3.7492},
	{"pt", []string{"portugal"}, 39.3999, -8.2245},
	{"it", []string{"italy", "italia"}, 41.8719, 12.5674},
	{"nl", []string{"netherlands", "holland"}, 52.1326, 5.2913},
	{"be", []string{"belgium"}, 50.5039, 4.4699},
	{"ch", []string{"switzerland"}, 46.8182, 8.2275},
	{"at", []string{"austria"}, 47.5162, 14.5501},
	{"se", []string{"sweden"}, 60.1282, 18.6435},
	{"no", []string{"norway"}, 60.4720, 8.4689},
	{"dk", []string{"denmark"}, 56.2639, 9.5018},
	{"fi", []string{"finland"}, 61.9241, 25.7482},
	{"pl", []string{"poland"}, 51.9194, 19.1451},
	{"gr", []string{"greece"}, 39.0742, 21.8243},
	{"tr", []string{"turkey", "türkiye"}, 38.9637, 35.2433},
	{"ru", []string{"russia", "russian federation"}, 61.5240, 105.3188},
	{"ua", []string{"ukraine"}, 48.3794, 31.1656},
	{"ng", []string{"nigeria"}, 9.0820, 8.6753},
	{"gh", []string{"ghana"}, 7.9465, -1.0232},
	{"ke", []string{"kenya"}, -0.0236, 37.9062},
	{"za", []string{"south africa"}, -30.5595, 22.9375},
	{"eg", []string{"egypt"}, 26.8206, 30.8025},
	{"ma", []string{"morocco"}, 31.7917, -7.0926},
	{"ae", []string{"united arab emirates", "uae"}, 23.4241, 53.8478},
	{"sa", []string{"saudi arabia"}, 23.8859, 45.0792},
	{"il", []string{"israel"}, 31.0461, 34.8516},
	{"in", []string{"india"}, 20.5937, 78.9629},
	{"pk", []string{"pakistan"}, 30.3753, 69.3451},
	{"cn", []string{"china"}, 35.8617, 104.1954},
	{"jp", []string{"japan"}, 36.2048, 138.2529},
	{"kr", []string{"south korea", "korea"}, 35.9078, 127.7669},
	{"ph", []string{"philippines"}, 12.8797, 121.7740},
	{"id", []string{"indonesia"}, -0.7893, 113.9213},
	{"th", []string{"thailand"}, 15.8700, 100.9925},
	{"vn", []string{"vietnam", "viet nam"}, 14.0583, 108.2772},
	{"sg", []string{"singapore"}, 1.3521, 103.8198},
	{"au", []string{"australia"}, -25.2744, 133.7751},
	{"nz", []string{"new zealand"}, -40.9006, 174.8860},
}

var centroidIndex = func() map[string]profile.Coordinates {
	idx := make(map[string]profile.Coordinates, len(centroids)*3)
	for _, c := range centroids {
		coords := profile.Coordinates{Lat: c.lat, Lng: c.lng, Confidence: CentroidConfidence}
		idx[c.code] = coords
		for _, n := range c.names {
			idx[n] = coords
		}
	}
	return idx
}()

// CountryCentroid returns the approximate centroid of a country given its
// name or ISO 3166-1 alpha-2 code.
func CountryCentroid(country string) (profile.Coordinates, bool) {
	c, ok := centroidIndex[NormalizeLocation(country)]
	return c, ok
}

// SameCountry reports whether two country fields name the same country,
// accepting a mix of names and ISO codes.
func SameCountry(a, b string) bool {
	na, nb := NormalizeLocation(a), NormalizeLocation(b)
	if na == "" || nb == "" {
		return false
	}
	if na == nb {
		return true
	}
	ca, okA := centroidIndex[na]
	cb, okB := centroidIndex[nb]
	return okA && okB && ca == cb
}

// countryOf guesses the country component of free-form location text, which
// is conventionally the last comma-separated segment.
func countryOf(locationText string) string {
	parts := strings.Split(locationText, ",")
	return strings.TrimSpace(parts[len(parts)-1])
}
