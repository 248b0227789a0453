// Package schema maps the column names found in source layers onto the
// canonical field keys the pipeline works with. Lookups happen once, at load
// time; downstream code only sees canonical keys.
package schema

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/spacematrix/internal/model"
)

// Canonical field keys.
const (
	BlockID       = "block_id"
	CVEGEO        = "cvegeo"
	BuiltArea     = "built_area"
	LandArea      = "land_area"
	Levels        = "levels"
	Hazard        = "hazard"
	Temperature   = "temperature"
	FSI           = "fsi"
	GSI           = "gsi"
	L             = "l"
	OSR           = "osr"
	PropertyCount = "n_props"
)

// Field describes one canonical field and the source column names that may
// carry it, in preference order.
type Field struct {
	Key     string
	Aliases []string
}

// Registry is an indexed collection of canonical fields.
type Registry struct {
	Fields []Field
	byKey  map[string]*Field
}

// NewRegistry creates a Registry with indexed lookups.
func NewRegistry(fields []Field) *Registry {
	r := &Registry{
		Fields: fields,
		byKey:  make(map[string]*Field, len(fields)),
	}
	for i := range r.Fields {
		r.byKey[r.Fields[i].Key] = &r.Fields[i]
	}
	return r
}

// DefaultFields returns the built-in aliases for the Mexico City sources.
func DefaultFields() []Field {
	return []Field{
		{Key: BlockID, Aliases: []string{"manzana_id", "id_manzana", "cve_manzana"}},
		{Key: CVEGEO, Aliases: []string{"CVEGEO", "cve_geo", "cvegeo_mza"}},
		{Key: BuiltArea, Aliases: []string{"superficie_construccion", "sup_const_tot_m2", "sup_construccion", "sup_const", "area_construida"}},
		{Key: LandArea, Aliases: []string{"superficie_terreno", "sup_terreno_tot_m2", "sup_terreno", "area_terreno"}},
		{Key: Levels, Aliases: []string{"niveles", "num_niveles", "levels", "pisos"}},
		{Key: Hazard, Aliases: []string{"peligro_cat", "hazard_cat"}},
		{Key: Temperature, Aliases: []string{"Ta_mean", "ta_media"}},
		{Key: FSI, Aliases: []string{"FSI"}},
		{Key: GSI, Aliases: []string{"GSI"}},
		{Key: L, Aliases: []string{"L_equiv", "L"}},
		{Key: OSR, Aliases: []string{"OSR"}},
		{Key: PropertyCount, Aliases: []string{"n_props"}},
	}
}

// NewDefaultRegistry builds the default registry. Configured aliases take
// precedence over the built-in ones for the same key; unknown keys become
// new fields.
func NewDefaultRegistry(overrides map[string][]string) *Registry {
	fields := DefaultFields()
	index := make(map[string]int, len(fields))
	for i, f := range fields {
		index[f.Key] = i
	}

	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if i, ok := index[k]; ok {
			fields[i].Aliases = append(append([]string(nil), overrides[k]...), fields[i].Aliases...)
			continue
		}
		fields = append(fields, Field{Key: k, Aliases: overrides[k]})
	}
	return NewRegistry(fields)
}

// ByKey returns the field for key, or nil if not found.
func (r *Registry) ByKey(key string) *Field {
	return r.byKey[key]
}

// Resolve returns the source column of layer that carries key, trying each
// alias in order and comparing normalized names.
func (r *Registry) Resolve(layer *model.Layer, key string) (string, bool) {
	f := r.byKey[key]
	if f == nil || layer == nil {
		return "", false
	}
	normalized := make(map[string]string, len(layer.Fields))
	for _, col := range layer.Fields {
		n := Normalize(col)
		if _, dup := normalized[n]; !dup {
			normalized[n] = col
		}
	}
	for _, alias := range f.Aliases {
		if col, ok := normalized[Normalize(alias)]; ok {
			return col, true
		}
	}
	return "", false
}

// Require is Resolve for mandatory fields; a missing column yields a
// *MissingFieldError.
func (r *Registry) Require(layer *model.Layer, key string) (string, error) {
	if col, ok := r.Resolve(layer, key); ok {
		return col, nil
	}
	var aliases []string
	if f := r.byKey[key]; f != nil {
		aliases = f.Aliases
	}
	name := ""
	if layer != nil {
		name = layer.Name
	}
	return "", &MissingFieldError{Layer: name, Field: key, Aliases: aliases}
}

// MissingFieldError reports a required field absent from a layer.
type MissingFieldError struct {
	Layer   string
	Field   string
	Aliases []string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("schema: layer %q has no %s column (tried: %s)",
		e.Layer, e.Field, strings.Join(e.Aliases, ", "))
}

var foldAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize folds a column name for comparison: accents stripped, lower
// case, spaces and hyphens turned into underscores.
func Normalize(name string) string {
	out, _, err := transform.String(foldAccents, name)
	if err != nil {
		out = name
	}
	out = strings.ToLower(strings.TrimSpace(out))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(out)
}
