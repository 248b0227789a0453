package export

import (
	"fmt"
	"path/filepath"
)

// Paths names every artifact of one run. All names derive from the output
// tag so runs with different parameters can share a directory.
type Paths struct {
	GPKG    string
	Layer   string
	CSV     string
	QC      string
	Summary string
	Params  string
	Note    string
}

// OutputPaths lays out the artifacts under dir. A non-empty gpkg redirects
// the result layer into that file instead of a new one.
func OutputPaths(dir, gpkg, tag string) Paths {
	p := Paths{
		GPKG:    filepath.Join(dir, fmt.Sprintf("manzanas_spacematrix_%s.gpkg", tag)),
		Layer:   "manzanas_" + tag,
		CSV:     filepath.Join(dir, fmt.Sprintf("manzanas_spacematrix_%s.csv", tag)),
		QC:      filepath.Join(dir, fmt.Sprintf("qc_por_mun_%s.csv", tag)),
		Summary: filepath.Join(dir, fmt.Sprintf("typology_summary_%s.csv", tag)),
		Params:  filepath.Join(dir, fmt.Sprintf("params_%s.yaml", tag)),
		Note:    filepath.Join(dir, fmt.Sprintf("typology_note_%s.md", tag)),
	}
	if gpkg != "" {
		p.GPKG = gpkg
	}
	return p
}
