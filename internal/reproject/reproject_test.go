package reproject

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

func TestProj4_Known(t *testing.T) {
	def, err := Proj4(32614)
	require.NoError(t, err)
	assert.Contains(t, def, "+zone=14")
}

func TestProj4_Unknown(t *testing.T) {
	_, err := Proj4(999999)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EPSG:999999")
}

func TestIsGeographic(t *testing.T) {
	assert.True(t, IsGeographic(4326))
	assert.False(t, IsGeographic(32614))
}

func TestNew_SameSystemIsIdentity(t *testing.T) {
	tr, err := New(32614, 32614, "")
	require.NoError(t, err)
	assert.True(t, tr.Identity())

	p := geom.NewPointFlat(geom.XY, []float64{10, 20})
	out, err := tr.Apply(p)
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 20}, out.FlatCoords())
}

func TestApply_WGS84ToUTM14(t *testing.T) {
	tr, err := New(4326, 32614, "")
	require.NoError(t, err)
	assert.False(t, tr.Identity())
	assert.Equal(t, "EPSG:4326->EPSG:32614", tr.String())

	// Zócalo, Mexico City.
	p := geom.NewPointFlat(geom.XY, []float64{-99.1332, 19.4326})
	out, err := tr.Apply(p)
	require.NoError(t, err)

	xy := out.FlatCoords()
	assert.InDelta(t, 486000, xy[0], 2000)
	assert.InDelta(t, 2148800, xy[1], 2000)
	assert.Equal(t, 32614, out.SRID())
}

func TestApply_Nil(t *testing.T) {
	tr, err := New(4326, 32614, "")
	require.NoError(t, err)
	out, err := tr.Apply(nil)
	require.NoError(t, err)
	assert.Nil(t, out)
}
