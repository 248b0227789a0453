// Package model defines the records that flow through the space matrix pipeline:
// vector layers read from disk, the city blocks that act as aggregation containers,
// the fine-grained features attributed to them, and the attribution results.
package model

import (
	"github.com/twpayne/go-geom"
)

// Record is a single row of a vector layer.
type Record struct {
	FID   int64
	Geom  geom.T
	Props map[string]any
}

// Layer is a named vector layer with its attribute columns in source order.
type Layer struct {
	Name    string
	SRID    int
	Fields  []string
	Records []Record
}

// Len returns the number of records in the layer.
func (l *Layer) Len() int {
	if l == nil {
		return 0
	}
	return len(l.Records)
}

// HasField reports whether the layer carries the given attribute column.
func (l *Layer) HasField(name string) bool {
	for _, f := range l.Fields {
		if f == name {
			return true
		}
	}
	return false
}

// Column is an output attribute column: a name plus a declared type that the
// GeoPackage and CSV writers use for the table schema and formatting.
type Column struct {
	Name string
	Type ColumnType
}

// ColumnType is the storage type of an output column.
type ColumnType int

// Column types.
const (
	ColumnText ColumnType = iota
	ColumnReal
	ColumnInteger
)

// SQLType returns the GeoPackage (SQLite) declared type.
func (t ColumnType) SQLType() string {
	switch t {
	case ColumnReal:
		return "REAL"
	case ColumnInteger:
		return "INTEGER"
	default:
		return "TEXT"
	}
}

// Table is an in-memory result table with optional geometry, ready to be
// written as a GeoPackage layer, CSV mirror or database table.
type Table struct {
	Name    string
	SRID    int
	Columns []Column
	Rows    [][]any
	Geoms   []geom.T
}

// HasGeometry reports whether the table carries a geometry per row.
func (t *Table) HasGeometry() bool {
	return len(t.Geoms) > 0
}
