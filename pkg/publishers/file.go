package publishers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Adda-Baaj/broker-scraper/internal/domain"
)

// filePublisher writes the run's articles as a JSON array to a local file.
type filePublisher struct {
	id   string
	path string
	log  Logger
}

func newFilePublisher(_ context.Context, cfg PublisherConfig, log Logger) (Publisher, error) {
	if cfg.File == nil || cfg.File.Path == "" {
		return nil, fmt.Errorf("publisher %q missing file path", cfg.ID)
	}
	return &filePublisher{id: cfg.ID, path: cfg.File.Path, log: ensureLogger(log)}, nil
}

func (p *filePublisher) ID() string   { return p.id }
func (p *filePublisher) Type() string { return TypeFile }

// Publish rewrites the file with a single article.
func (p *filePublisher) Publish(ctx context.Context, evt Event) error {
	return p.PublishBatch(ctx, []Event{evt})
}

// PublishBatch replaces the file contents with the batch's articles.
func (p *filePublisher) PublishBatch(_ context.Context, events []Event) error {
	data, err := EncodeArticles(articlesOf(events))
	if err != nil {
		return err
	}

	if dir := filepath.Dir(p.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, p.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", tmp, err)
	}

	p.log.InfoObj("Results saved", "publisher_file_written", map[string]any{
		"path":     p.path,
		"articles": len(events),
	})
	return nil
}

// EncodeArticles renders articles as a JSON array indented by four spaces with HTML and
// non-ASCII characters left unescaped.
func EncodeArticles(articles []domain.Article) ([]byte, error) {
	if articles == nil {
		articles = []domain.Article{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(articles); err != nil {
		return nil, fmt.Errorf("marshal articles: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
