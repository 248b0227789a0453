package model

import (
	"github.com/twpayne/go-geom"
)

// Block is a city block (manzana): the container every feature is attributed to.
// Blocks are created once per input row and enriched in place by the
// aggregation, indicator and classification stages.
type Block struct {
	Index        int
	ID           string
	Geom         geom.T
	Area         float64
	Municipality string
	Source       Record

	Footprint FootprintStats
	Cadastre  CadastreStats
	Parcels   ParcelStats
	Indices   Indicators
	Typology  Typology
	Streets   *StreetStats
}

// FootprintStats holds building footprint coverage (B).
type FootprintStats struct {
	// Area is the area of the geometric union of all footprint pieces inside the block.
	Area float64
	// RawArea is the naive sum of per-footprint intersection areas.
	RawArea float64
	Pieces  int
}

// CadastreStats holds values summed from cadastral points (F).
type CadastreStats struct {
	BuiltArea     float64
	LandArea      float64
	PropertyCount int
	// Levels is the mean declared number of levels of the attributed points.
	Levels float64
}

// ParcelStats holds parcel counts and areas; fields stay Missing when the
// corresponding parcel layer was not provided.
type ParcelStats struct {
	Count     float64
	AreaTotal float64
	AreaMean  float64
}

// Indicators are the Space Matrix ratios of a block.
type Indicators struct {
	FSI    float64
	GSI    float64
	L      float64
	OSR    float64
	DQFlag int
}

// Typology is the classification result of a block.
type Typology struct {
	BaseCode    string
	BaseName    string
	Code        string
	Name        string
	DataQuality bool
	Boundary    bool
	Reason      string
}

// StreetStats holds length-weighted street segment metrics of a block.
// Values are keyed by output column name.
type StreetStats struct {
	Length  float64
	Values  map[string]float64
	Rescued bool
}

// NewBlock returns a block with every derived value set to Missing.
func NewBlock(index int, id string, g geom.T, area float64, src Record) *Block {
	return &Block{
		Index:  index,
		ID:     id,
		Geom:   g,
		Area:   area,
		Source: src,
		Cadastre: CadastreStats{
			Levels: Missing,
		},
		Parcels: ParcelStats{
			Count:     Missing,
			AreaTotal: Missing,
			AreaMean:  Missing,
		},
		Indices: Indicators{
			FSI: Missing,
			GSI: Missing,
			L:   Missing,
			OSR: Missing,
		},
	}
}
