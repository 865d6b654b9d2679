package resources

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/Adda-Baaj/broker-scraper/internal/logger"
	"github.com/Adda-Baaj/broker-scraper/pkg/httpclient"
)

const (
	// DefaultBaseURL serves the nltk_data package archives.
	DefaultBaseURL = "https://raw.githubusercontent.com/nltk/nltk_data/gh-pages/packages"

	// Tokenizer holds the punkt tables (abbreviation list) used by word tokenization.
	Tokenizer = "tokenizers/punkt_tab"
	// Stopwords holds one stopword list per language.
	Stopwords = "corpora/stopwords"

	maxArchiveBytes = 64 << 20
)

// Resource names a language resource by its relative id (category/package).
// URL overrides the archive location derived from the base URL.
type Resource struct {
	ID  string `mapstructure:"id" yaml:"id" json:"id"`
	URL string `mapstructure:"url" yaml:"url" json:"url"`
}

// Defaults lists the resources keyword extraction needs.
func Defaults() []Resource {
	return []Resource{{ID: Tokenizer}, {ID: Stopwords}}
}

// Bootstrapper makes sure language resources exist on disk before parsing starts.
type Bootstrapper struct {
	dir         string
	searchPaths []string
	baseURL     string
	client      httpclient.Client
	log         logger.Logger
}

// NewBootstrapper builds a Bootstrapper that downloads into dir. dir is always searched last,
// after searchPaths.
func NewBootstrapper(dir string, searchPaths []string, baseURL string, client httpclient.Client, log logger.Logger) *Bootstrapper {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	return &Bootstrapper{
		dir:         dir,
		searchPaths: SearchPaths(dir, searchPaths),
		baseURL:     strings.TrimRight(baseURL, "/"),
		client:      client,
		log:         logger.Ensure(log),
	}
}

// SearchPaths returns extra followed by dir, without blanks or duplicates.
func SearchPaths(dir string, extra []string) []string {
	out := make([]string, 0, len(extra)+1)
	seen := make(map[string]struct{}, len(extra)+1)
	for _, p := range append(append([]string{}, extra...), dir) {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		clean := filepath.Clean(p)
		if _, ok := seen[clean]; ok {
			continue
		}
		seen[clean] = struct{}{}
		out = append(out, clean)
	}
	return out
}

// Paths returns the search path used for lookups.
func (b *Bootstrapper) Paths() []string {
	out := make([]string, len(b.searchPaths))
	copy(out, b.searchPaths)
	return out
}

// Find returns the location of id under the first search path that contains it.
func Find(paths []string, id string) (string, bool) {
	rel := filepath.FromSlash(strings.Trim(id, "/"))
	if rel == "" || rel == "." {
		return "", false
	}
	for _, p := range paths {
		candidate := filepath.Join(p, rel)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true
		}
	}
	return "", false
}

// EnsureAll ensures every resource in order.
func (b *Bootstrapper) EnsureAll(ctx context.Context, rs []Resource) {
	for _, r := range rs {
		b.Ensure(ctx, r)
	}
}

// Ensure downloads r when it is missing from the search path. Failures are logged, never returned:
// the keyword step for each article will report the missing resource instead.
func (b *Bootstrapper) Ensure(ctx context.Context, r Resource) {
	if loc, ok := Find(b.searchPaths, r.ID); ok {
		b.log.DebugObj("language resource present", "resource", map[string]any{
			"id":   r.ID,
			"path": loc,
		})
		return
	}

	if err := b.fetch(ctx, r); err != nil {
		b.log.WarnObj("language resource download failed", "resource_error", map[string]any{
			"id":    r.ID,
			"error": err.Error(),
		})
		return
	}
	b.log.InfoObj("language resource downloaded", "resource", map[string]any{
		"id":  r.ID,
		"dir": b.dir,
	})
}

func (b *Bootstrapper) archiveURL(r Resource) string {
	if u := strings.TrimSpace(r.URL); u != "" {
		return u
	}
	return b.baseURL + "/" + strings.Trim(r.ID, "/") + ".zip"
}

// fetch downloads the zip archive for r and unpacks it under dir/<category>.
func (b *Bootstrapper) fetch(ctx context.Context, r Resource) error {
	if b.client == nil {
		return fmt.Errorf("no http client configured")
	}
	if strings.TrimSpace(b.dir) == "" {
		return fmt.Errorf("resource directory is empty")
	}

	url := b.archiveURL(r)
	resp, err := b.client.Get(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", r.ID, err)
	}
	if !httpclient.IsSuccess(resp) {
		return fmt.Errorf("fetch %s returned status %d body: %s", r.ID, resp.StatusCode(), httpclient.Snippet(resp.Body()))
	}
	body := resp.Body()
	if len(body) > maxArchiveBytes {
		return fmt.Errorf("archive for %s exceeds %d bytes", r.ID, maxArchiveBytes)
	}

	dest := filepath.Join(b.dir, filepath.FromSlash(path.Dir(strings.Trim(r.ID, "/"))))
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("create resource dir: %w", err)
	}
	if err := unzip(body, dest); err != nil {
		return fmt.Errorf("unpack %s: %w", r.ID, err)
	}
	if _, ok := Find([]string{b.dir}, r.ID); !ok {
		return fmt.Errorf("archive for %s did not contain %s", r.ID, path.Base(r.ID))
	}
	return nil
}

// unzip extracts archive into dest, refusing entries that escape it.
func unzip(archive []byte, dest string) error {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return err
	}

	root := filepath.Clean(dest) + string(os.PathSeparator)
	for _, f := range zr.File {
		target := filepath.Join(dest, filepath.FromSlash(f.Name))
		if !strings.HasPrefix(target, root) {
			return fmt.Errorf("illegal path %q in archive", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := writeZipFile(f, target); err != nil {
			return err
		}
	}
	return nil
}

func writeZipFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, io.LimitReader(rc, maxArchiveBytes)); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
