package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiv(t *testing.T) {
	tests := []struct {
		name    string
		num     float64
		den     float64
		want    float64
		missing bool
	}{
		{name: "regular", num: 1800, den: 1000, want: 1.8},
		{name: "zero numerator", num: 0, den: 10, want: 0},
		{name: "zero denominator", num: 5, den: 0, missing: true},
		{name: "missing numerator", num: Missing, den: 10, missing: true},
		{name: "infinite denominator", num: 1, den: math.Inf(1), missing: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Div(tt.num, tt.den)
			if tt.missing {
				assert.True(t, IsMissing(got))
				return
			}
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestOrZero(t *testing.T) {
	assert.Equal(t, 0.0, OrZero(Missing))
	assert.Equal(t, 2.5, OrZero(2.5))
}

func TestNewBlock_DerivedValuesMissing(t *testing.T) {
	b := NewBlock(3, "b3", nil, 100, Record{})
	assert.True(t, IsMissing(b.Indices.FSI))
	assert.True(t, IsMissing(b.Indices.GSI))
	assert.True(t, IsMissing(b.Parcels.Count))
	assert.Equal(t, 0.0, b.Footprint.Area)
	assert.Equal(t, 3, b.Index)
}

func TestLayer_HasField(t *testing.T) {
	l := &Layer{Fields: []string{"manzana_id", "CVEGEO"}}
	assert.True(t, l.HasField("CVEGEO"))
	assert.False(t, l.HasField("cvegeo"))
	var nilLayer *Layer
	assert.Equal(t, 0, nilLayer.Len())
}
