package classify

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/spacematrix/internal/model"
)

// Reserved typology codes.
const (
	CodeNoData        = "00"
	CodeIndeterminate = "10"
	CodeNoCadastre    = "0P"
)

// Diagnostic reasons attached to non-exact results.
const (
	ReasonNoCadastre = "FSI=0 & GSI>0 & n_props=0"
	ReasonTolerance  = "Reclasificada por tolerancia"
)

// Range is a closed interval.
type Range struct {
	Lo float64 `yaml:"lo"`
	Hi float64 `yaml:"hi"`
}

// Contains reports whether x lies in the interval grown by eps on both
// sides. Missing values are never contained.
func (r Range) Contains(x, eps float64) bool {
	if model.IsMissing(x) {
		return false
	}
	return x >= r.Lo-eps && x <= r.Hi+eps
}

// Rule binds a typology code to intervals on GSI, FSI and L.
type Rule struct {
	Code string
	GSI  Range
	FSI  Range
	L    Range
}

// Match reports whether the observation falls inside every interval, each
// grown by the matching tolerance.
func (r Rule) Match(fsi, gsi, l float64, tol Tolerance) bool {
	return r.GSI.Contains(gsi, tol.GSI) && r.FSI.Contains(fsi, tol.FSI) && r.L.Contains(l, tol.L)
}

// Bounds returns the rule as a flat (GSI lo, GSI hi, FSI lo, FSI hi, L lo,
// L hi) tuple.
func (r Rule) Bounds() []float64 {
	return []float64{r.GSI.Lo, r.GSI.Hi, r.FSI.Lo, r.FSI.Hi, r.L.Lo, r.L.Hi}
}

func (r Rule) validate() error {
	for _, x := range []struct {
		name string
		rng  Range
	}{{"gsi", r.GSI}, {"fsi", r.FSI}, {"l", r.L}} {
		if x.rng.Lo > x.rng.Hi {
			return eris.Errorf("classify: rule %s: %s range [%g, %g] is inverted", r.Code, x.name, x.rng.Lo, x.rng.Hi)
		}
	}
	return nil
}

// Tolerance is the per-indicator widening used for boundary reclassification.
type Tolerance struct {
	GSI float64 `yaml:"EPS_G"`
	FSI float64 `yaml:"EPS_F"`
	L   float64 `yaml:"EPS_L"`
}

// DefaultTolerance returns the stock widening.
func DefaultTolerance() Tolerance {
	return Tolerance{GSI: 0.02, FSI: 0.10, L: 0.5}
}

// Category names a typology code.
type Category struct {
	Code        string
	Name        string
	Description string
}

// DefaultCatalog returns the typology catalog in code order.
func DefaultCatalog() []Category {
	return []Category{
		{CodeNoData, "Sin datos", "FSI/GSI faltantes o GSI ≤ 0."},
		{"01", "Pabellón abierto", "Edificios aislados con mucha área libre; baja altura (1–3 pisos)."},
		{"02", "Fila / Adosada baja", "Casas en hilera/adosadas; baja altura; pequeñas áreas libres."},
		{"03", "Perímetro bajo", "Manzana cerrada con patio interior; altura baja (1–3)."},
		{"04", "Perímetro medio", "Perímetro más alto/denso; 3–6 pisos."},
		{"05", "Perímetro denso", "Cobertura muy alta; altura media; calles/patios estrechos."},
		{"06", "Barras", "Bloques lineales separados; 4–8 pisos; áreas abiertas entre ellos."},
		{"07", "Torre en parque", "Torres altas en entorno abierto; 6–12 pisos; mucha ventilación."},
		{"08", "Supercompacta alta", "Basamento + torres; compacidad y densidad muy altas; 6–12 pisos."},
		{"09", "Continuo compacto bajo", "Cobertura casi total pero 1–2 pisos; calles muy cerradas."},
		{CodeIndeterminate, "Mixto / indeterminado", "Mezcla o fuera de los rangos anteriores."},
		{CodeNoCadastre, "0 propiedad (sin catastro)", "GSI>0, FSI=0 y n_props=0: sin predios asociados a la manzana."},
	}
}

// DefaultRules returns the rule table in code order.
func DefaultRules() []Rule {
	rule := func(code string, gLo, gHi, fLo, fHi, lLo, lHi float64) Rule {
		return Rule{Code: code, GSI: Range{gLo, gHi}, FSI: Range{fLo, fHi}, L: Range{lLo, lHi}}
	}
	return []Rule{
		rule("01", 0.10, 0.30, 0.2, 1.0, 1.0, 3.0),
		rule("02", 0.30, 0.50, 0.5, 1.5, 1.0, 3.0),
		rule("03", 0.50, 0.70, 0.8, 2.0, 1.0, 3.0),
		rule("04", 0.50, 0.70, 1.5, 4.0, 3.0, 6.0),
		rule("05", 0.70, 0.90, 2.0, 5.0, 3.0, 6.0),
		rule("06", 0.30, 0.55, 1.5, 3.5, 4.0, 8.0),
		rule("07", 0.15, 0.35, 2.5, 6.0, 6.0, 12.0),
		rule("08", 0.60, 0.90, 4.0, 8.0, 6.0, 12.0),
		rule("09", 0.70, 0.90, 0.8, 1.5, 1.0, 2.0),
	}
}

// DefaultPriority lists rule codes from most to least specific.
func DefaultPriority() []string {
	return []string{"08", "07", "06", "05", "04", "03", "09", "02", "01"}
}
