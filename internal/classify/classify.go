// Package classify assigns every block exactly one Space Matrix typology
// code from an ordered table of interval rules.
package classify

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/spacematrix/internal/config"
	"github.com/sells-group/spacematrix/internal/model"
)

// Classifier matches (FSI, GSI, L) observations against rules in priority
// order.
type Classifier struct {
	ordered []Rule
	names   map[string]string
	catalog []Category
	tol     Tolerance
}

// New creates a classifier. Every rule must appear exactly once in
// priority, and every code in priority must have a rule.
func New(rules []Rule, priority []string, catalog []Category, tol Tolerance) (*Classifier, error) {
	if tol.GSI < 0 || tol.FSI < 0 || tol.L < 0 {
		return nil, eris.New("classify: tolerances must be >= 0")
	}
	byCode := make(map[string]Rule, len(rules))
	for _, r := range rules {
		if err := r.validate(); err != nil {
			return nil, err
		}
		switch r.Code {
		case CodeNoData, CodeIndeterminate, CodeNoCadastre:
			return nil, eris.Errorf("classify: code %s is reserved", r.Code)
		}
		if _, dup := byCode[r.Code]; dup {
			return nil, eris.Errorf("classify: duplicate rule %s", r.Code)
		}
		byCode[r.Code] = r
	}

	ordered := make([]Rule, 0, len(priority))
	seen := make(map[string]bool, len(priority))
	for _, code := range priority {
		r, ok := byCode[code]
		if !ok {
			return nil, eris.Errorf("classify: priority lists unknown rule %s", code)
		}
		if seen[code] {
			return nil, eris.Errorf("classify: rule %s listed twice in priority", code)
		}
		seen[code] = true
		ordered = append(ordered, r)
	}
	if len(ordered) != len(byCode) {
		var missing []string
		for code := range byCode {
			if !seen[code] {
				missing = append(missing, code)
			}
		}
		sort.Strings(missing)
		return nil, eris.Errorf("classify: rules missing from priority: %s", strings.Join(missing, ", "))
	}

	names := make(map[string]string, len(catalog))
	for _, c := range catalog {
		names[c.Code] = c.Name
	}
	return &Classifier{ordered: ordered, names: names, catalog: catalog, tol: tol}, nil
}

// Default returns the stock classifier.
func Default() *Classifier {
	c, err := New(DefaultRules(), DefaultPriority(), DefaultCatalog(), DefaultTolerance())
	if err != nil {
		panic(err)
	}
	return c
}

// FromConfig builds a classifier from the stock tables with configured
// tolerances, rule overrides and priority applied. A configured rule
// replaces the stock rule with the same code or adds a new one; a new rule
// must then be listed in the configured priority.
func FromConfig(cfg config.ClassifyConfig) (*Classifier, error) {
	rules := DefaultRules()
	catalog := DefaultCatalog()
	index := make(map[string]int, len(rules))
	for i, r := range rules {
		index[r.Code] = i
	}

	for _, rc := range cfg.Rules {
		r, err := ruleFromConfig(rc)
		if err != nil {
			return nil, err
		}
		if i, ok := index[r.Code]; ok {
			rules[i] = r
		} else {
			index[r.Code] = len(rules)
			rules = append(rules, r)
		}
		if rc.Name != "" {
			catalog = setName(catalog, rc.Code, rc.Name)
		}
	}

	priority := cfg.Priority
	if len(priority) == 0 {
		priority = DefaultPriority()
	}
	tol := Tolerance{GSI: cfg.EpsGSI, FSI: cfg.EpsFSI, L: cfg.EpsL}
	return New(rules, priority, catalog, tol)
}

func ruleFromConfig(rc config.RuleConfig) (Rule, error) {
	pair := func(name string, v []float64) (Range, error) {
		if len(v) != 2 {
			return Range{}, eris.Errorf("classify: rule %s: %s needs [min, max], got %v", rc.Code, name, v)
		}
		return Range{Lo: v[0], Hi: v[1]}, nil
	}
	if strings.TrimSpace(rc.Code) == "" {
		return Rule{}, eris.New("classify: rule without code")
	}
	g, err := pair("gsi", rc.GSI)
	if err != nil {
		return Rule{}, err
	}
	f, err := pair("fsi", rc.FSI)
	if err != nil {
		return Rule{}, err
	}
	l, err := pair("l", rc.L)
	if err != nil {
		return Rule{}, err
	}
	return Rule{Code: rc.Code, GSI: g, FSI: f, L: l}, nil
}

func setName(catalog []Category, code, name string) []Category {
	for i := range catalog {
		if catalog[i].Code == code {
			catalog[i].Name = name
			return catalog
		}
	}
	// keep the reserved trailing entries last
	out := make([]Category, 0, len(catalog)+1)
	for _, c := range catalog {
		if c.Code == CodeIndeterminate {
			out = append(out, Category{Code: code, Name: name})
		}
		out = append(out, c)
	}
	return out
}

// Input is one observation. Missing values are allowed everywhere.
type Input struct {
	FSI           float64
	GSI           float64
	L             float64
	PropertyCount float64
}

// Classify returns exactly one typology for in:
//
//   - 00 when FSI or GSI is missing or GSI <= 0
//   - the first rule in priority order containing (GSI, FSI, L)
//   - 0P when nothing matches, FSI is 0, GSI > 0 and no property is linked
//   - the first rule matching with widened intervals, flagged as boundary
//   - 10 otherwise
//
// L falls back to FSI/GSI when missing.
func (c *Classifier) Classify(in Input) model.Typology {
	base := c.exact(in)
	t := model.Typology{BaseCode: base, Code: base}

	if base == CodeIndeterminate {
		switch {
		case in.FSI == 0 && in.GSI > 0 && model.OrZero(in.PropertyCount) == 0:
			t.Code = CodeNoCadastre
			t.DataQuality = true
			t.Reason = ReasonNoCadastre
		default:
			if code, ok := c.match(in, c.tol); ok {
				t.Code = code
				t.Boundary = true
				t.Reason = ReasonTolerance
			}
		}
	}
	t.BaseName = c.Name(t.BaseCode)
	t.Name = c.Name(t.Code)
	return t
}

func (c *Classifier) exact(in Input) string {
	if model.IsMissing(in.FSI) || model.IsMissing(in.GSI) || in.GSI <= 0 {
		return CodeNoData
	}
	if code, ok := c.match(in, Tolerance{}); ok {
		return code
	}
	return CodeIndeterminate
}

func (c *Classifier) match(in Input, tol Tolerance) (string, bool) {
	l := in.L
	if model.IsMissing(l) {
		l = in.FSI / in.GSI
	}
	for _, r := range c.ordered {
		if r.Match(in.FSI, in.GSI, l, tol) {
			return r.Code, true
		}
	}
	return "", false
}

// Name returns the catalog name of code, or "Desconocida" for unknown codes.
func (c *Classifier) Name(code string) string {
	if n, ok := c.names[code]; ok {
		return n
	}
	return "Desconocida"
}

// Catalog returns the typology catalog.
func (c *Classifier) Catalog() []Category {
	return c.catalog
}

// Rules returns the rules in priority order.
func (c *Classifier) Rules() []Rule {
	return c.ordered
}

// Tolerance returns the boundary widening.
func (c *Classifier) Tolerance() Tolerance {
	return c.tol
}

// Summary audits a classification run.
type Summary struct {
	Total              int
	IndeterminateBase  int
	IndeterminateFinal int
	NoCadastre         int
	Reclassified       int
	ByCode             map[string]int
}

// Metrics returns the summary as ordered (metric, value) pairs.
func (s Summary) Metrics() [][2]any {
	return [][2]any{
		{"total_rows", s.Total},
		{"mixto_base_n", s.IndeterminateBase},
		{"mixto_final_n", s.IndeterminateFinal},
		{"0P_n (" + ReasonNoCadastre + ")", s.NoCadastre},
		{"reclasificados_por_tolerancia_n", s.Reclassified},
	}
}

// Apply classifies every block in place.
func (c *Classifier) Apply(blocks []*model.Block) Summary {
	s := Summary{Total: len(blocks), ByCode: make(map[string]int)}
	for _, b := range blocks {
		b.Typology = c.Classify(Input{
			FSI:           b.Indices.FSI,
			GSI:           b.Indices.GSI,
			L:             b.Indices.L,
			PropertyCount: float64(b.Cadastre.PropertyCount),
		})
		s.ByCode[b.Typology.Code]++
		if b.Typology.BaseCode == CodeIndeterminate {
			s.IndeterminateBase++
		}
		switch b.Typology.Code {
		case CodeIndeterminate:
			s.IndeterminateFinal++
		case CodeNoCadastre:
			s.NoCadastre++
		}
		if b.Typology.Boundary {
			s.Reclassified++
		}
	}

	zap.L().With(zap.String("component", "classify")).Info("blocks classified",
		zap.Int("total", s.Total),
		zap.Int("indeterminate_base", s.IndeterminateBase),
		zap.Int("indeterminate_final", s.IndeterminateFinal),
		zap.Int("no_cadastre", s.NoCadastre),
		zap.Int("reclassified", s.Reclassified),
	)
	return s
}

// Params is the audit record of the classifier parameters.
type Params struct {
	Ranges     map[string][]float64 `yaml:"ranges"`
	Priority   []string             `yaml:"priority"`
	Tolerances Tolerance            `yaml:"tolerancias"`
	Catalog    map[string]string    `yaml:"catalogo"`
}

// Params returns the parameters in effect.
func (c *Classifier) Params() Params {
	p := Params{
		Ranges:     make(map[string][]float64, len(c.ordered)),
		Priority:   make([]string, 0, len(c.ordered)),
		Tolerances: c.tol,
		Catalog:    make(map[string]string, len(c.catalog)),
	}
	for _, r := range c.ordered {
		p.Ranges[r.Code] = r.Bounds()
		p.Priority = append(p.Priority, r.Code)
	}
	for _, cat := range c.catalog {
		p.Catalog[cat.Code] = cat.Name
	}
	return p
}
