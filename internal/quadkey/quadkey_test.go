package quadkey

import (
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_KnownPoint(t *testing.T) {
	tile := Encode(8.4052, -82.842)

	require.Len(t, tile.Key, LevelDetail)
	for _, c := range tile.Key {
		assert.Contains(t, "0123", string(c))
	}

	// The tile center must sit within half a level-14 tile of the input
	// (about 0.011 degrees of longitude at the equator).
	halfTileDeg := 360 / math.Exp2(LevelDetail) / 2
	assert.InDelta(t, -82.842, tile.Lon, halfTileDeg+1e-9)
	assert.InDelta(t, 8.4052, tile.Lat, halfTileDeg+1e-9)
}

func TestEncode_RoundTripThroughTileCenter(t *testing.T) {
	rng := rand.New(rand.NewSource(21))
	for i := 0; i < 5000; i++ {
		lat := rng.Float64()*2*MaxLatitude - MaxLatitude
		lon := rng.Float64()*360 - 180

		tile := Encode(lat, lon)
		again := Encode(tile.Lat, tile.Lon)
		if tile.Key != again.Key {
			t.Fatalf("round trip failed for (%v, %v): %s != %s", lat, lon, tile.Key, again.Key)
		}
	}
}

func TestEncode_RoundTripAllLevels(t *testing.T) {
	for level := 1; level <= 23; level++ {
		tile := EncodeLevel(8.4052, -82.842, level)
		require.Len(t, tile.Key, level)
		again := EncodeLevel(tile.Lat, tile.Lon, level)
		assert.Equal(t, tile.Key, again.Key, "level %d", level)
	}
}

func TestDecode_InvertsEncode(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	for i := 0; i < 2000; i++ {
		lat := rng.Float64()*160 - 80
		lon := rng.Float64()*360 - 180

		tile := Encode(lat, lon)
		decoded, err := Decode(tile.Key)
		require.NoError(t, err)
		assert.Equal(t, tile.Key, decoded.Key)
		assert.InDelta(t, tile.Lat, decoded.Lat, 1e-9)
		assert.InDelta(t, tile.Lon, decoded.Lon, 1e-9)
	}
}

func TestDecode_Invalid(t *testing.T) {
	_, err := Decode("")
	assert.Error(t, err)

	_, err = Decode("0123x")
	assert.Error(t, err)
}

func TestEncode_ClipsPolarLatitudes(t *testing.T) {
	north := Encode(89.9, 10)
	clipped := Encode(MaxLatitude, 10)
	assert.Equal(t, clipped.Key, north.Key)

	south := Encode(-89.9, 10)
	clippedS := Encode(-MaxLatitude, 10)
	assert.Equal(t, clippedS.Key, south.Key)
}

func TestEncode_ParentPrefixProperty(t *testing.T) {
	// A tile's quadkey starts with the quadkey of its parent tile.
	for level := 2; level <= LevelDetail; level++ {
		child := EncodeLevel(8.4052, -82.842, level)
		parent := EncodeLevel(8.4052, -82.842, level-1)
		assert.True(t, strings.HasPrefix(child.Key, parent.Key),
			"level %d key %s not prefixed by %s", level, child.Key, parent.Key)
	}
}

func TestEncode_QuadrantDigits(t *testing.T) {
	// Level 1 splits the world into four tiles.
	assert.Equal(t, "0", EncodeLevel(40, -90, 1).Key)  // northwest
	assert.Equal(t, "1", EncodeLevel(40, 90, 1).Key)   // northeast
	assert.Equal(t, "2", EncodeLevel(-40, -90, 1).Key) // southwest
	assert.Equal(t, "3", EncodeLevel(-40, 90, 1).Key)  // southeast
}
