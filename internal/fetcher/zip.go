package fetcher

import (
	"archive/zip"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// ExtractZIP extracts all files from a ZIP archive to the destination directory.
// Returns the list of extracted file paths.
func ExtractZIP(zipPath, destDir string) ([]string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, eris.Wrap(err, "zip: open archive")
	}
	defer r.Close() //nolint:errcheck

	var extracted []string
	for _, f := range r.File {
		dest, err := extractZIPEntry(f, destDir)
		if err != nil {
			return extracted, err
		}
		if dest != "" {
			extracted = append(extracted, dest)
		}
	}

	return extracted, nil
}

// supportedExts are the input formats the loader can open.
var supportedExts = map[string]bool{
	".gpkg":    true,
	".shp":     true,
	".geojson": true,
	".json":    true,
	".csv":     true,
	".txt":     true,
	".xlsx":    true,
}

// PickMember returns the path of member inside an extracted archive
// directory. member may be a slash path relative to the archive root or a
// bare file name. An empty member selects the only supported input file.
func PickMember(dir, member string) (string, error) {
	var candidates []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if member != "" {
			if rel == member || path.Base(rel) == member {
				candidates = append(candidates, p)
			}
			return nil
		}
		if supportedExts[strings.ToLower(filepath.Ext(rel))] {
			candidates = append(candidates, p)
		}
		return nil
	})
	if err != nil {
		return "", eris.Wrap(err, "zip: list extracted files")
	}
	sort.Strings(candidates)

	switch {
	case len(candidates) == 1:
		return candidates[0], nil
	case member != "" && len(candidates) == 0:
		return "", eris.Errorf("zip: member %q not found in archive", member)
	case member != "":
		return "", eris.Errorf("zip: member %q is ambiguous, use its full path", member)
	case len(candidates) == 0:
		return "", eris.New("zip: archive holds no supported input file")
	default:
		rels := make([]string, len(candidates))
		for i, c := range candidates {
			r, _ := filepath.Rel(dir, c)
			rels[i] = filepath.ToSlash(r)
		}
		return "", eris.Errorf("zip: archive holds several input files (%s); set member", strings.Join(rels, ", "))
	}
}

// extractZIPEntry extracts a single zip.File to the destination directory.
// Returns the extracted file path, or empty string for directories.
func extractZIPEntry(f *zip.File, destDir string) (string, error) {
	// Sanitize against zip slip
	destPath := filepath.Join(destDir, f.Name)
	if !strings.HasPrefix(filepath.Clean(destPath), filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", eris.Errorf("zip: illegal path %q (zip slip attempt)", f.Name)
	}

	if f.FileInfo().IsDir() {
		if err := os.MkdirAll(destPath, 0o755); err != nil {
			return "", eris.Wrap(err, "zip: create directory")
		}
		return "", nil
	}

	// Ensure parent directory exists
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", eris.Wrap(err, "zip: create parent directory")
	}

	rc, err := f.Open()
	if err != nil {
		return "", eris.Wrap(err, "zip: open entry")
	}
	defer rc.Close() //nolint:errcheck

	out, err := os.Create(destPath)
	if err != nil {
		return "", eris.Wrap(err, "zip: create file")
	}
	defer out.Close() //nolint:errcheck

	if _, err := io.Copy(out, rc); err != nil {
		return "", eris.Wrap(err, "zip: write file")
	}
	if err := out.Close(); err != nil {
		return "", eris.Wrap(err, "zip: close file")
	}
	if !f.Modified.IsZero() {
		if err := os.Chtimes(destPath, f.Modified, f.Modified); err != nil {
			return "", eris.Wrap(err, "zip: set file time")
		}
	}

	return destPath, nil
}
