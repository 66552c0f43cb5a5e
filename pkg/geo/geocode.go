package geo

import (
	"strings"
)

// cityCoordinates maps common US metro areas to coordinates. A production
// deployment would sit behind a real geocoding service; this table covers the
// cities the dashboard ships demo data for.
var cityCoordinates = []struct {
	keys []string
	lat  float64
	lon  float64
}{
	{[]string{"boston"}, 42.3601, -71.0589},
	{[]string{"new york", "nyc"}, 40.7128, -74.0060},
	{[]string{"los angeles"}, 34.0522, -118.2437},
	{[]string{"chicago"}, 41.8781, -87.6298},
	{[]string{"houston"}, 29.7604, -95.3698},
	{[]string{"philadelphia"}, 39.9526, -75.1652},
	{[]string{"phoenix"}, 33.4484, -112.0740},
	{[]string{"san francisco"}, 37.7749, -122.4194},
	{[]string{"seattle"}, 47.6062, -122.3321},
	{[]string{"miami"}, 25.7617, -80.1918},
}

// Coordinates resolves an address string such as "Boston, MA" against the
// built-in city table. The boolean reports whether the address was recognized.
func Coordinates(address string) (lat, lon float64, ok bool) {
	addr := strings.ToLower(address)

	for _, city := range cityCoordinates {
		for _, key := range city.keys {
			if strings.Contains(addr, key) {
				return city.lat, city.lon, true
			}
		}
	}

	return 0, 0, false
}
