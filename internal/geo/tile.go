// Package geo converts geotile keys into coordinates.
package geo

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// LatLng is a tile centroid.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// TileToLatLng converts a "z/x/y" geotile key to the centroid of the tile.
func TileToLatLng(key string) (LatLng, error) {
	parts := strings.Split(key, "/")
	if len(parts) != 3 {
		return LatLng{}, fmt.Errorf("invalid geotile key %q", key)
	}
	z, err := strconv.Atoi(parts[0])
	if err != nil {
		return LatLng{}, fmt.Errorf("invalid geotile zoom in %q", key)
	}
	x, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return LatLng{}, fmt.Errorf("invalid geotile x in %q", key)
	}
	y, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return LatLng{}, fmt.Errorf("invalid geotile y in %q", key)
	}

	n := math.Exp2(float64(z))
	lng := (x+0.5)/n*360 - 180
	lat := math.Atan(math.Sinh(math.Pi*(1-2*(y+0.5)/n))) * 180 / math.Pi
	return LatLng{Lat: lat, Lng: lng}, nil
}
