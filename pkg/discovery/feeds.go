package discovery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/Adda-Baaj/broker-scraper/internal/domain"
	"github.com/Adda-Baaj/broker-scraper/internal/logger"
	"github.com/Adda-Baaj/broker-scraper/pkg/fetchcache"
	"github.com/Adda-Baaj/broker-scraper/pkg/httpclient"
)

// feedStrategy reads the RSS/Atom feeds a site advertises.
type feedStrategy struct {
	client httpclient.Client
	cache  *fetchcache.Cache
	log    logger.Logger
}

func newFeedStrategy(client httpclient.Client, cache *fetchcache.Cache, log logger.Logger) *feedStrategy {
	return &feedStrategy{client: client, cache: cache, log: logger.Ensure(log)}
}

func (s *feedStrategy) ID() string {
	return StrategyFeeds
}

// Discover takes item links from every known feed. Feed URLs found on the homepage are cached so
// a later run still has them when the homepage markup omits them.
func (s *feedStrategy) Discover(ctx context.Context, site *Site) ([]domain.ArticleRef, error) {
	key := "feeds:" + site.Domain
	feeds := site.FeedURLs
	if len(feeds) == 0 {
		feeds, _ = s.cache.Get(key)
	} else if err := s.cache.Put(key, feeds); err != nil {
		s.log.DebugObj("feed cache write failed", "cache_error", map[string]any{"key": key, "error": err.Error()})
	}

	var (
		refs []domain.ArticleRef
		errs []error
	)
	parser := gofeed.NewParser()
	for _, feedURL := range feeds {
		if ctx.Err() != nil {
			break
		}
		items, err := s.fetchFeed(ctx, parser, site, feedURL)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		refs = append(refs, items...)
	}
	return refs, errors.Join(errs...)
}

func (s *feedStrategy) fetchFeed(ctx context.Context, parser *gofeed.Parser, site *Site, feedURL string) ([]domain.ArticleRef, error) {
	resp, err := s.client.Get(ctx, feedURL, site.Headers())
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", feedURL, err)
	}
	if !httpclient.IsSuccess(resp) {
		return nil, fmt.Errorf("feed %s returned status %d body: %s", feedURL, resp.StatusCode(), httpclient.Snippet(resp.Body()))
	}

	feed, err := parser.Parse(bytes.NewReader(resp.Body()))
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", feedURL, err)
	}

	refs := make([]domain.ArticleRef, 0, len(feed.Items))
	for _, item := range feed.Items {
		u, ok := normalizeLink(item.Link, site.URL)
		if !ok || !sameSite(u, site.Domain) {
			continue
		}
		refs = append(refs, domain.ArticleRef{
			URL:         u.String(),
			Title:       strings.TrimSpace(item.Title),
			ImageURL:    itemImage(item),
			Keywords:    trimAll(item.Categories),
			PublishedAt: itemTime(item),
		})
	}
	return refs, nil
}

func itemTime(item *gofeed.Item) time.Time {
	switch {
	case item.PublishedParsed != nil:
		return *item.PublishedParsed
	case item.UpdatedParsed != nil:
		return *item.UpdatedParsed
	}
	return time.Time{}
}

func itemImage(item *gofeed.Item) string {
	if item.Image != nil && strings.TrimSpace(item.Image.URL) != "" {
		return strings.TrimSpace(item.Image.URL)
	}
	for _, enc := range item.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image/") {
			return strings.TrimSpace(enc.URL)
		}
	}
	return ""
}

func trimAll(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
