// Package gpkg reads and writes OGC GeoPackage files (SQLite containers of
// named vector layers) using modernc.org/sqlite.
package gpkg

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// applicationID is the GeoPackage "GPKG" magic stored in PRAGMA application_id.
const applicationID = 0x47504B47

// userVersion identifies GeoPackage 1.2.
const userVersion = 10200

// LayerInfo describes a layer registered in gpkg_contents.
type LayerInfo struct {
	Name       string
	DataType   string
	SRID       int
	GeomColumn string
	Count      int64
}

// File is an open GeoPackage.
type File struct {
	path string
	db   *sql.DB
}

// Open opens an existing GeoPackage for reading.
func Open(path string) (*File, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, eris.Wrapf(err, "gpkg: stat %s", path)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrapf(err, "gpkg: open %s", path)
	}
	f := &File{path: path, db: db}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, eris.Wrapf(err, "gpkg: ping %s", path)
	}
	return f, nil
}

// create opens (or creates) a GeoPackage for writing and ensures the
// mandatory metadata tables exist.
func create(ctx context.Context, path string) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, eris.Wrapf(err, "gpkg: create directory for %s", path)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrapf(err, "gpkg: open %s", path)
	}
	// One connection keeps PRAGMAs and the write transaction on the same handle.
	db.SetMaxOpenConns(1)
	f := &File{path: path, db: db}
	if err := f.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return f, nil
}

// Path returns the file path.
func (f *File) Path() string { return f.path }

// Close closes the underlying database.
func (f *File) Close() error {
	return f.db.Close()
}

const metadataSchema = `
CREATE TABLE IF NOT EXISTS gpkg_spatial_ref_sys (
	srs_name                 TEXT NOT NULL,
	srs_id                   INTEGER PRIMARY KEY,
	organization             TEXT NOT NULL,
	organization_coordsys_id INTEGER NOT NULL,
	definition               TEXT NOT NULL,
	description              TEXT
);

CREATE TABLE IF NOT EXISTS gpkg_contents (
	table_name  TEXT NOT NULL PRIMARY KEY,
	data_type   TEXT NOT NULL,
	identifier  TEXT UNIQUE,
	description TEXT DEFAULT '',
	last_change DATETIME NOT NULL,
	min_x       DOUBLE,
	min_y       DOUBLE,
	max_x       DOUBLE,
	max_y       DOUBLE,
	srs_id      INTEGER,
	CONSTRAINT fk_gc_r_srs_id FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys(srs_id)
);

CREATE TABLE IF NOT EXISTS gpkg_geometry_columns (
	table_name         TEXT NOT NULL,
	column_name        TEXT NOT NULL,
	geometry_type_name TEXT NOT NULL,
	srs_id             INTEGER NOT NULL,
	z                  TINYINT NOT NULL,
	m                  TINYINT NOT NULL,
	CONSTRAINT pk_geom_cols PRIMARY KEY (table_name, column_name),
	CONSTRAINT fk_gc_tn FOREIGN KEY (table_name) REFERENCES gpkg_contents(table_name),
	CONSTRAINT fk_gc_srs FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys(srs_id)
);

INSERT OR IGNORE INTO gpkg_spatial_ref_sys VALUES
	('Undefined cartesian SRS', -1, 'NONE', -1, 'undefined', 'undefined cartesian coordinate reference system'),
	('Undefined geographic SRS', 0, 'NONE', 0, 'undefined', 'undefined geographic coordinate reference system');
`

func (f *File) migrate(ctx context.Context) error {
	for _, pragma := range []string{
		"PRAGMA application_id = 1196444487",
		"PRAGMA user_version = 10200",
	} {
		if _, err := f.db.ExecContext(ctx, pragma); err != nil {
			return eris.Wrapf(err, "gpkg: exec %s", pragma)
		}
	}
	if _, err := f.db.ExecContext(ctx, metadataSchema); err != nil {
		return eris.Wrap(err, "gpkg: create metadata tables")
	}
	return nil
}

// ensureSRS registers srid in gpkg_spatial_ref_sys when missing.
func (f *File) ensureSRS(ctx context.Context, srid int) error {
	if srid == 0 || srid == -1 {
		return nil
	}
	name, def := srsDefinition(srid)
	_, err := f.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO gpkg_spatial_ref_sys
			(srs_name, srs_id, organization, organization_coordsys_id, definition)
		VALUES (?, ?, 'EPSG', ?, ?)`, name, srid, srid, def)
	return eris.Wrapf(err, "gpkg: register srs %d", srid)
}

// Layers lists the layers registered in gpkg_contents, sorted by name.
func (f *File) Layers(ctx context.Context) ([]LayerInfo, error) {
	rows, err := f.db.QueryContext(ctx, `
		SELECT c.table_name, c.data_type, COALESCE(c.srs_id, 0), COALESCE(g.column_name, '')
		FROM gpkg_contents c
		LEFT JOIN gpkg_geometry_columns g ON g.table_name = c.table_name
		ORDER BY c.table_name`)
	if err != nil {
		return nil, eris.Wrapf(err, "gpkg: list layers in %s", f.path)
	}
	defer rows.Close()

	var layers []LayerInfo
	for rows.Next() {
		var li LayerInfo
		if err := rows.Scan(&li.Name, &li.DataType, &li.SRID, &li.GeomColumn); err != nil {
			return nil, eris.Wrap(err, "gpkg: scan layer row")
		}
		layers = append(layers, li)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "gpkg: iterate layers")
	}

	for i := range layers {
		q := "SELECT COUNT(*) FROM " + quoteIdent(layers[i].Name)
		if err := f.db.QueryRowContext(ctx, q).Scan(&layers[i].Count); err != nil {
			return nil, eris.Wrapf(err, "gpkg: count %s", layers[i].Name)
		}
	}
	return layers, nil
}

// Resolve returns the layer info for name. An empty name selects the only
// layer of a single-layer file. Unknown names produce a *LayerNotFoundError
// carrying the closest available name.
func (f *File) Resolve(ctx context.Context, name string) (LayerInfo, error) {
	layers, err := f.Layers(ctx)
	if err != nil {
		return LayerInfo{}, err
	}
	names := make([]string, len(layers))
	for i, l := range layers {
		names[i] = l.Name
		if l.Name == name {
			return l, nil
		}
	}
	if name == "" && len(layers) == 1 {
		return layers[0], nil
	}
	for _, l := range layers {
		if strings.EqualFold(l.Name, name) {
			return l, nil
		}
	}
	return LayerInfo{}, &LayerNotFoundError{
		Path:       f.path,
		Layer:      name,
		Available:  names,
		Suggestion: SuggestLayer(name, names),
	}
}

// quoteIdent quotes a SQLite identifier.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
