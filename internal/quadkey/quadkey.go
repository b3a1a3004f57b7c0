// Package quadkey converts between WGS-84 coordinates and Bing Maps tile
// quadkeys. A quadkey is the base-4 string obtained by interleaving the
// bits of a tile's Y and X coordinates at a fixed level of detail; the
// string's length equals the level, and a tile's quadkey is prefixed by its
// parent's.
package quadkey

import (
	"fmt"
	"math"
)

// LevelDetail is the zoom level used for crisis-analytics tiles. At level
// 14 a tile spans roughly 2.4 km at the equator.
const LevelDetail = 14

// MaxLatitude is the latitude bound of the square web-mercator projection;
// inputs are clipped to it to avoid the singularity at the poles.
const MaxLatitude = 85.05112878

const tileSize = 256

// Tile identifies one Bing tile: its quadkey and the coordinates of the
// tile's pixel center.
type Tile struct {
	Key string
	Lat float64
	Lon float64
}

// Encode returns the tile containing (lat, lon) at LevelDetail.
func Encode(lat, lon float64) Tile {
	return EncodeLevel(lat, lon, LevelDetail)
}

// EncodeLevel returns the tile containing (lat, lon) at the given level.
func EncodeLevel(lat, lon float64, level int) Tile {
	lat = clip(lat, -MaxLatitude, MaxLatitude)
	lon = clip(lon, -180, 180)

	sinLat := math.Sin(lat * math.Pi / 180)
	mapSize := float64(tileSize) * math.Exp2(float64(level))

	pixelX := (lon + 180) / 360 * mapSize
	pixelY := (0.5 - math.Log((1+sinLat)/(1-sinLat))/(4*math.Pi)) * mapSize

	max := int(math.Exp2(float64(level))) - 1
	tileX := clipInt(int(math.Floor(pixelX/tileSize)), 0, max)
	tileY := clipInt(int(math.Floor(pixelY/tileSize)), 0, max)

	centerLat, centerLon := tileCenter(tileX, tileY, level)
	return Tile{
		Key: tileToKey(tileX, tileY, level),
		Lat: centerLat,
		Lon: centerLon,
	}
}

// Decode parses a quadkey string back into its tile. The round trip
// EncodeLevel(Decode(k).Lat, Decode(k).Lon, len(k)).Key == k holds for
// every valid key.
func Decode(key string) (Tile, error) {
	if key == "" {
		return Tile{}, fmt.Errorf("quadkey: empty key")
	}
	var tileX, tileY int
	for _, c := range key {
		tileX <<= 1
		tileY <<= 1
		switch c {
		case '0':
		case '1':
			tileX |= 1
		case '2':
			tileY |= 1
		case '3':
			tileX |= 1
			tileY |= 1
		default:
			return Tile{}, fmt.Errorf("quadkey: invalid digit %q in %q", c, key)
		}
	}
	lat, lon := tileCenter(tileX, tileY, len(key))
	return Tile{Key: key, Lat: lat, Lon: lon}, nil
}

// tileToKey interleaves tileY (even positions) with tileX (odd positions)
// and reads the bit pairs as base-4 digits, most significant first.
func tileToKey(tileX, tileY, level int) string {
	buf := make([]byte, level)
	for i := level; i > 0; i-- {
		var digit byte
		mask := 1 << (i - 1)
		if tileX&mask != 0 {
			digit++
		}
		if tileY&mask != 0 {
			digit += 2
		}
		buf[level-i] = '0' + digit
	}
	return string(buf)
}

// tileCenter inverts the projection at the tile's pixel center.
func tileCenter(tileX, tileY, level int) (lat, lon float64) {
	mapSize := float64(tileSize) * math.Exp2(float64(level))

	pixelX := float64(tileX)*tileSize + tileSize/2
	pixelY := float64(tileY)*tileSize + tileSize/2

	x := clip(pixelX, 0, mapSize)/mapSize - 0.5
	y := 0.5 - clip(pixelY, 0, mapSize)/mapSize

	lat = 90 - 360*math.Atan(math.Exp(-y*2*math.Pi))/math.Pi
	lon = 360 * x
	return lat, lon
}

func clip(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

func clipInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
