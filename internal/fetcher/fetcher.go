// Package fetcher stages remote and archived inputs as local files so the
// loader only ever opens plain paths.
package fetcher

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Options configures a Stager.
type Options struct {
	CacheDir    string
	Timeout     time.Duration
	RatePerHost float64
	UserAgent   string
}

// Stager resolves configured input locations to local files. URLs are
// downloaded once into the cache directory and ZIP archives are extracted
// next to them. Concurrent requests for the same location share one
// download.
type Stager struct {
	cacheDir string
	http     *HTTPFetcher
	ftp      *FTPFetcher
	group    singleflight.Group
}

// NewStager creates a Stager.
func NewStager(opts Options) *Stager {
	if opts.CacheDir == "" {
		opts.CacheDir = ".spacematrix-cache"
	}
	return &Stager{
		cacheDir: opts.CacheDir,
		http: NewHTTPFetcher(HTTPOptions{
			UserAgent:   opts.UserAgent,
			Timeout:     opts.Timeout,
			RatePerHost: opts.RatePerHost,
		}),
		ftp: NewFTPFetcher(FTPOptions{Timeout: opts.Timeout}),
	}
}

// IsRemote reports whether location is an http(s) or ftp URL.
func IsRemote(location string) bool {
	u, err := url.Parse(location)
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "ftp":
		return true
	}
	return false
}

// Stage returns a local path for location. Plain local files are returned
// unchanged. member selects a file inside a ZIP archive; when empty the
// archive must hold exactly one supported input file.
func (s *Stager) Stage(ctx context.Context, location, member string) (string, error) {
	local := location
	if IsRemote(location) {
		v, err, _ := s.group.Do("get:"+location, func() (any, error) {
			return s.download(ctx, location)
		})
		if err != nil {
			return "", err
		}
		local = v.(string)
	}

	if !strings.EqualFold(filepath.Ext(local), ".zip") {
		if member != "" {
			return "", eris.Errorf("fetcher: member %q given but %s is not a ZIP archive", member, location)
		}
		return local, nil
	}

	v, err, _ := s.group.Do("zip:"+local, func() (any, error) {
		return s.unzip(local)
	})
	if err != nil {
		return "", err
	}
	return PickMember(v.(string), member)
}

func (s *Stager) download(ctx context.Context, location string) (string, error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", eris.Wrap(err, "fetcher: parse url")
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" {
		name = "download"
	}
	dest := filepath.Join(s.cacheDir, cacheKey(location), name)
	if info, err := os.Stat(dest); err == nil && info.Size() > 0 {
		zap.L().Debug("fetcher: cache hit", zap.String("url", location), zap.String("path", dest))
		return dest, nil
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", eris.Wrap(err, "fetcher: create cache dir")
	}

	start := time.Now()
	tmp := dest + ".part"
	var n int64
	if strings.EqualFold(u.Scheme, "ftp") {
		n, err = s.ftp.DownloadToFile(ctx, location, tmp)
	} else {
		n, err = s.http.DownloadToFile(ctx, location, tmp)
	}
	if err != nil {
		_ = os.Remove(tmp)
		return "", eris.Wrapf(err, "fetcher: download %s", location)
	}
	if err := os.Rename(tmp, dest); err != nil {
		return "", eris.Wrap(err, "fetcher: move download into cache")
	}

	zap.L().Info("fetcher: downloaded",
		zap.String("url", location),
		zap.String("path", dest),
		zap.Int64("bytes", n),
		zap.Duration("elapsed", time.Since(start)),
	)
	return dest, nil
}

// unzip extracts archive once into a directory keyed by its absolute path,
// size and modification time.
func (s *Stager) unzip(archive string) (string, error) {
	info, err := os.Stat(archive)
	if err != nil {
		return "", eris.Wrapf(err, "fetcher: stat %s", archive)
	}
	abs, err := filepath.Abs(archive)
	if err != nil {
		return "", eris.Wrap(err, "fetcher: resolve archive path")
	}
	key := cacheKey(fmt.Sprintf("file://%s#%d#%d", abs, info.Size(), info.ModTime().UnixNano()))
	dest := filepath.Join(s.cacheDir, "unzipped", key)
	if _, err := os.Stat(dest); err == nil {
		return dest, nil
	}

	tmp := dest + ".part"
	_ = os.RemoveAll(tmp)
	if err := os.MkdirAll(tmp, 0o755); err != nil {
		return "", eris.Wrap(err, "fetcher: create extraction dir")
	}
	files, err := ExtractZIP(archive, tmp)
	if err != nil {
		_ = os.RemoveAll(tmp)
		return "", err
	}
	if err := os.Rename(tmp, dest); err != nil {
		return "", eris.Wrap(err, "fetcher: move extracted archive into cache")
	}
	zap.L().Info("fetcher: archive extracted",
		zap.String("archive", archive),
		zap.String("dir", dest),
		zap.Int("files", len(files)),
	)
	return dest, nil
}

func cacheKey(location string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(location)).String()
}
