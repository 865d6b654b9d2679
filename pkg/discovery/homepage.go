package discovery

import (
	"context"
	"fmt"
	"strings"

	"github.com/gocolly/colly/v2"

	"github.com/Adda-Baaj/broker-scraper/internal/domain"
	"github.com/Adda-Baaj/broker-scraper/internal/logger"
	"github.com/Adda-Baaj/broker-scraper/pkg/fetchcache"
)

const maxPageBytes = 10 << 20

// homepageStrategy harvests article links from the homepage and a bounded set of category pages.
// It also records the feed URLs the homepage advertises for the feeds strategy.
type homepageStrategy struct {
	opts  Options
	cache *fetchcache.Cache
	log   logger.Logger
}

func newHomepageStrategy(opts Options, cache *fetchcache.Cache, log logger.Logger) *homepageStrategy {
	return &homepageStrategy{opts: opts, cache: cache, log: logger.Ensure(log)}
}

func (s *homepageStrategy) ID() string {
	return StrategyHomepage
}

func (s *homepageStrategy) collector(ctx context.Context) *colly.Collector {
	opts := []colly.CollectorOption{colly.MaxBodySize(maxPageBytes)}
	if ua := strings.TrimSpace(s.opts.UserAgent); ua != "" {
		opts = append(opts, colly.UserAgent(ua))
	}
	c := colly.NewCollector(opts...)
	if s.opts.Timeout > 0 {
		c.SetRequestTimeout(s.opts.Timeout)
	}
	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		if lang := strings.TrimSpace(s.opts.Language); lang != "" {
			r.Headers.Set("Accept-Language", lang)
		}
	})
	return c
}

// Discover visits the homepage first, then category pages in the order they were found.
func (s *homepageStrategy) Discover(ctx context.Context, site *Site) ([]domain.ArticleRef, error) {
	c := s.collector(ctx)

	var (
		refs       []domain.ArticleRef
		categories []string
		onHome     = true
		seen       = make(map[string]struct{})
		catSeen    = map[string]struct{}{site.URL.String(): {}}
		feedSeen   = make(map[string]struct{})
	)

	c.OnHTML("a[href]", func(e *colly.HTMLElement) {
		u, ok := normalizeLink(e.Request.AbsoluteURL(e.Attr("href")), nil)
		if !ok || !sameSite(u, site.Domain) {
			return
		}
		link := u.String()

		switch {
		case looksLikeArticle(u):
			if _, dup := seen[link]; dup {
				return
			}
			seen[link] = struct{}{}
			refs = append(refs, domain.ArticleRef{
				URL:   link,
				Title: strings.Join(strings.Fields(e.Text), " "),
			})
		case onHome && looksLikeCategory(u):
			if _, dup := catSeen[link]; dup {
				return
			}
			catSeen[link] = struct{}{}
			categories = append(categories, link)
		}
	})

	c.OnHTML(`link[rel="alternate"]`, func(e *colly.HTMLElement) {
		typ := strings.ToLower(e.Attr("type"))
		if !strings.Contains(typ, "rss") && !strings.Contains(typ, "atom") {
			return
		}
		feed := e.Request.AbsoluteURL(e.Attr("href"))
		if feed == "" {
			return
		}
		if _, dup := feedSeen[feed]; dup {
			return
		}
		feedSeen[feed] = struct{}{}
		site.FeedURLs = append(site.FeedURLs, feed)
	})

	if err := c.Visit(site.Raw); err != nil {
		return nil, fmt.Errorf("%w: visit %s: %v", ErrSiteUnreachable, site.Raw, err)
	}
	if err := ctx.Err(); err != nil {
		return refs, err
	}
	onHome = false
	categories = s.cachedCategories(site, categories)

	s.log.InfoObj("homepage crawled", "discovery", map[string]any{
		"site":       site.Raw,
		"links":      len(refs),
		"categories": len(categories),
		"feeds":      len(site.FeedURLs),
	})

	for i, cat := range categories {
		if i >= s.opts.MaxCategories || ctx.Err() != nil {
			break
		}
		if err := c.Visit(cat); err != nil {
			s.log.DebugObj("category page skipped", "discovery_error", map[string]any{
				"site":     site.Raw,
				"category": cat,
				"error":    err.Error(),
			})
		}
	}

	return refs, nil
}

// cachedCategories stores the category pages found on the homepage, or falls back to the last
// stored list when the homepage yielded none.
func (s *homepageStrategy) cachedCategories(site *Site, found []string) []string {
	key := "categories:" + site.Domain
	if len(found) == 0 {
		cached, _ := s.cache.Get(key)
		return cached
	}
	if err := s.cache.Put(key, found); err != nil {
		s.log.DebugObj("category cache write failed", "cache_error", map[string]any{"key": key, "error": err.Error()})
	}
	return found
}
