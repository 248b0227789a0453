package fetcher

import (
	"archive/zip"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var archiveTime = time.Date(2021, time.March, 5, 12, 0, 0, 0, time.UTC)

// writeArchive builds a ZIP whose entries carry archiveTime. Names ending in
// "/" become directory entries.
func writeArchive(t *testing.T, name string, entries map[string]string) string {
	t.Helper()
	zipPath := filepath.Join(t.TempDir(), name)
	f, err := os.Create(zipPath)
	require.NoError(t, err)

	w := zip.NewWriter(f)
	names := make([]string, 0, len(entries))
	for n := range entries {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fw, err := w.CreateHeader(&zip.FileHeader{Name: n, Method: zip.Deflate, Modified: archiveTime})
		require.NoError(t, err)
		_, err = fw.Write([]byte(entries[n]))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
	return zipPath
}

func TestExtractZIP_ShapefileBundle(t *testing.T) {
	zipPath := writeArchive(t, "09_ciudaddemexico.zip", map[string]string{
		"conjunto_de_datos/":        "",
		"conjunto_de_datos/09m.shp": "shp",
		"conjunto_de_datos/09m.dbf": "dbf",
		"conjunto_de_datos/09m.prj": "PROJCS[...]",
	})

	dest := t.TempDir()
	extracted, err := ExtractZIP(zipPath, dest)
	require.NoError(t, err)
	assert.Len(t, extracted, 3, "directory entries are not reported")

	data, err := os.ReadFile(filepath.Join(dest, "conjunto_de_datos", "09m.prj"))
	require.NoError(t, err)
	assert.Equal(t, "PROJCS[...]", string(data))

	got, err := PickMember(dest, "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dest, "conjunto_de_datos", "09m.shp"), got)
}

func TestExtractZIP_KeepsEntryTimes(t *testing.T) {
	zipPath := writeArchive(t, "catastro.zip", map[string]string{"catastro.csv": "cuenta,sup\n1,100\n"})

	dest := t.TempDir()
	_, err := ExtractZIP(zipPath, dest)
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(dest, "catastro.csv"))
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(archiveTime), "mtime %s", info.ModTime())
}

func TestPickMember(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"conjunto/09m.shp", "conjunto/09m.dbf", "conjunto/09e.shp", "docs/readme.txt", "catastro.csv"} {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	}

	tests := []struct {
		name    string
		member  string
		want    string
		wantErr string
	}{
		{name: "full path", member: "conjunto/09m.shp", want: "conjunto/09m.shp"},
		{name: "base name", member: "09e.shp", want: "conjunto/09e.shp"},
		{name: "missing", member: "09l.shp", wantErr: "not found"},
		{name: "several candidates", member: "", wantErr: "set member"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PickMember(dir, tt.member)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(dir, filepath.FromSlash(tt.want)), got)
		})
	}
}

func TestPickMember_Single(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manzanas.gpkg"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "LEEME.pdf"), []byte("x"), 0o644))

	got, err := PickMember(dir, "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "manzanas.gpkg"), got)
}

func TestPickMember_NoSupportedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "LEEME.pdf"), []byte("x"), 0o644))

	_, err := PickMember(dir, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no supported input file")
}

func TestExtractZIP_RejectsEscapingPath(t *testing.T) {
	zipPath := writeArchive(t, "hostil.zip", map[string]string{"../../fuera.csv": "x"})

	_, err := ExtractZIP(zipPath, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zip slip")
}

func TestExtractZIP_NotAnArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manzanas.zip")
	require.NoError(t, os.WriteFile(path, []byte("GPKG no es zip"), 0o644))

	_, err := ExtractZIP(path, t.TempDir())
	require.Error(t, err)
}
