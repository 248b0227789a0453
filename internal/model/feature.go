package model

import (
	"github.com/twpayne/go-geom"
)

// FeatureKind identifies the source layer of a feature.
type FeatureKind string

// Feature kinds.
const (
	KindFootprint      FeatureKind = "footprint"
	KindCadastralPoint FeatureKind = "cadastral_point"
	KindParcelCentroid FeatureKind = "parcel_centroid"
	KindParcel         FeatureKind = "parcel"
	KindSegment        FeatureKind = "segment"
)

// Feature is a fine-grained spatial feature. Numeric attributes that are
// absent or unparsable are Missing.
type Feature struct {
	Index     int
	Kind      FeatureKind
	Geom      geom.T
	BuiltArea float64
	LandArea  float64
	Levels    float64
	Hazard    int
	Values    map[string]float64
}

// NewFeature returns a feature with every numeric attribute Missing.
func NewFeature(index int, kind FeatureKind, g geom.T) *Feature {
	return &Feature{
		Index:     index,
		Kind:      kind,
		Geom:      g,
		BuiltArea: Missing,
		LandArea:  Missing,
		Levels:    Missing,
	}
}

// MatchMethod records how a feature was attributed.
type MatchMethod string

// Match methods, in the order the attributor tries them.
const (
	MatchContained MatchMethod = "contained"
	MatchNearest   MatchMethod = "nearest"
	MatchRescue    MatchMethod = "rescue"
	MatchNone      MatchMethod = "unmatched"
	// MatchSkipped marks features without a usable geometry.
	MatchSkipped MatchMethod = "skipped"
)

// Attribution pairs a feature with at most one block. Block is -1 when the
// feature could not be attributed within any radius.
type Attribution struct {
	Feature  int
	Block    int
	Distance float64
	Method   MatchMethod
}

// Matched reports whether the feature was assigned to a block.
func (a Attribution) Matched() bool {
	return a.Block >= 0
}
