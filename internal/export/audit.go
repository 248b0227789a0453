package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/spacematrix/internal/classify"
	"github.com/sells-group/spacematrix/internal/config"
)

// Params is the YAML audit of one run: the classifier parameters at the top
// level, followed by the spatial parameters that produced the indicators.
type Params struct {
	classify.Params `yaml:",inline"`

	CRS         config.CRSConfig           `yaml:"crs"`
	Attribution config.AttributionConfig   `yaml:"attribution"`
	Segments    *config.SegmentsConfig     `yaml:"segments,omitempty"`
	Inputs      map[string]config.LayerRef `yaml:"inputs,omitempty"`
}

// WriteParams writes the audit as YAML.
func WriteParams(path string, p Params) error {
	out, err := yaml.Marshal(p)
	if err != nil {
		return eris.Wrap(err, "export: marshal params")
	}
	return writeFile(path, out)
}

// WriteNote writes a markdown note documenting the typology scheme and the
// outcome of the run.
func WriteNote(path, tag string, c *classify.Classifier, s classify.Summary) error {
	var b strings.Builder
	tol := c.Tolerance()

	fmt.Fprintf(&b, "# Tipologías Space Matrix (%s)\n\n", tag)

	b.WriteString("## Parámetros\n\n")
	b.WriteString("| Código | GSI | FSI | L |\n|---|---|---|---|\n")
	for _, r := range c.Rules() {
		fmt.Fprintf(&b, "| %s | %g–%g | %g–%g | %g–%g |\n",
			r.Code, r.GSI.Lo, r.GSI.Hi, r.FSI.Lo, r.FSI.Hi, r.L.Lo, r.L.Hi)
	}
	codes := make([]string, 0, len(c.Rules()))
	for _, r := range c.Rules() {
		codes = append(codes, r.Code)
	}
	fmt.Fprintf(&b, "\nPrioridad: %s\n\n", strings.Join(codes, " > "))
	fmt.Fprintf(&b, "Tolerancias: EPS_G=%g, EPS_F=%g, EPS_L=%g\n\n", tol.GSI, tol.FSI, tol.L)

	b.WriteString("## Catálogo\n\n")
	for _, cat := range c.Catalog() {
		fmt.Fprintf(&b, "- **%s %s**: %s\n", cat.Code, cat.Name, cat.Description)
	}

	b.WriteString("\n## Resumen QA\n\n")
	for _, m := range s.Metrics() {
		fmt.Fprintf(&b, "- %s: %v\n", m[0], m[1])
	}

	b.WriteString("\n## Criterios\n\n")
	fmt.Fprintf(&b, "- %s: FSI o GSI faltante, o GSI ≤ 0.\n", classify.CodeNoData)
	fmt.Fprintf(&b, "- %s: %s; marcado con flag_mixto_dq.\n", classify.CodeNoCadastre, classify.ReasonNoCadastre)
	b.WriteString("- Reglas evaluadas en orden de prioridad; gana la primera que contiene (GSI, FSI, L).\n")
	b.WriteString("- L = FSI/GSI cuando L_equiv falta.\n")
	fmt.Fprintf(&b, "- Sin coincidencia exacta se amplían los rangos por las tolerancias; si coincide se marca flag_mixto_limite (%s).\n", classify.ReasonTolerance)
	fmt.Fprintf(&b, "- Sin coincidencia tras la tolerancia: %s.\n", classify.CodeIndeterminate)

	return writeFile(path, []byte(b.String()))
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "export: create directory for %s", path)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "export: write %s", path)
	}
	return nil
}
