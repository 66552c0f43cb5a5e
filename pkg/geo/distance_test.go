package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistance(t *testing.T) {
	tests := []struct {
		name      string
		lat1      float64
		lon1      float64
		lat2      float64
		lon2      float64
		expected  float64
		tolerance float64
	}{
		{"Identical points", 42.3601, -71.0589, 42.3601, -71.0589, 0, 0.001},
		{"Boston to New York", 42.3601, -71.0589, 40.7128, -74.0060, 190, 5},
		{"Los Angeles to San Francisco", 34.0522, -118.2437, 37.7749, -122.4194, 347, 5},
		{"Antipodal-ish span", 0, 0, 0, 180, 12436, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Distance(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			assert.InDelta(t, tt.expected, got, tt.tolerance)
		})
	}
}

func TestDistance_Symmetric(t *testing.T) {
	forward := Distance(42.3601, -71.0589, 25.7617, -80.1918)
	reverse := Distance(25.7617, -80.1918, 42.3601, -71.0589)

	assert.InDelta(t, forward, reverse, 1e-9)
}

func TestCoordinates(t *testing.T) {
	tests := []struct {
		name    string
		address string
		wantLat float64
		wantLon float64
		wantOK  bool
	}{
		{"Boston with state", "Boston, MA", 42.3601, -71.0589, true},
		{"Case insensitive", "SEATTLE, WA", 47.6062, -122.3321, true},
		{"NYC alias", "nyc", 40.7128, -74.0060, true},
		{"Unknown city", "Springfield, IL", 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lat, lon, ok := Coordinates(tt.address)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.InDelta(t, tt.wantLat, lat, 0.001)
				assert.InDelta(t, tt.wantLon, lon, 0.001)
			}
		})
	}
}
