package discovery

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Adda-Baaj/broker-scraper/internal/domain"
	"github.com/Adda-Baaj/broker-scraper/internal/logger"
	"github.com/Adda-Baaj/broker-scraper/pkg/fetchcache"
	"github.com/Adda-Baaj/broker-scraper/pkg/httpclient"
)

type googleNewsSitemap struct {
	URLs []googleNewsURL `xml:"url"`
}

type googleNewsURL struct {
	Loc    string            `xml:"loc"`
	News   googleNewsDetail  `xml:"news"`
	Images []googleNewsImage `xml:"image"`
}

type sitemapIndex struct {
	Sitemaps []sitemapIndexEntry `xml:"sitemap"`
}

type sitemapIndexEntry struct {
	Loc string `xml:"loc"`
}

type googleNewsDetail struct {
	PublicationDate string `xml:"publication_date"`
	Keywords        string `xml:"keywords"`
	Title           string `xml:"title"`
}

type googleNewsImage struct {
	Loc   string `xml:"loc"`
	Title string `xml:"title"`
}

// isNews reports whether the entry carries a news:news block.
func (u googleNewsURL) isNews() bool {
	return u.News.Title != "" || u.News.PublicationDate != ""
}

// parseGoogleNewsSitemap parses the XML data into a slice of googleNewsURL structs.
func parseGoogleNewsSitemap(data []byte) ([]googleNewsURL, error) {
	var sitemap googleNewsSitemap
	if err := xml.Unmarshal(data, &sitemap); err != nil {
		return nil, err
	}
	return sitemap.URLs, nil
}

// parseSitemapIndex parses an XML sitemap index file and returns the nested sitemap URLs.
func parseSitemapIndex(data []byte) ([]string, error) {
	var index sitemapIndex
	if err := xml.Unmarshal(data, &index); err != nil {
		return nil, err
	}

	urls := make([]string, 0, len(index.Sitemaps))
	for _, entry := range index.Sitemaps {
		if loc := strings.TrimSpace(entry.Loc); loc != "" {
			urls = append(urls, loc)
		}
	}
	return urls, nil
}

// buildRefsFromSitemap converts sitemap entries into article refs. Plain (non-news) entries must
// also look like article URLs, since generic sitemaps list section pages too.
func buildRefsFromSitemap(site *Site, urls []googleNewsURL) []domain.ArticleRef {
	refs := make([]domain.ArticleRef, 0, len(urls))
	for _, entry := range urls {
		u, ok := normalizeLink(entry.Loc, site.URL)
		if !ok || !sameSite(u, site.Domain) {
			continue
		}
		if !entry.isNews() && !looksLikeArticle(u) {
			continue
		}

		refs = append(refs, domain.ArticleRef{
			URL:         u.String(),
			Title:       strings.TrimSpace(entry.News.Title),
			ImageURL:    firstImageURL(entry.Images),
			Keywords:    parseKeywords(entry.News.Keywords),
			PublishedAt: parsePublicationDate(entry.News.PublicationDate),
		})
	}
	return refs
}

// firstImageURL returns the first non-empty image URL from the list.
func firstImageURL(images []googleNewsImage) string {
	for _, img := range images {
		if loc := strings.TrimSpace(img.Loc); loc != "" {
			return loc
		}
	}
	return ""
}

// parseKeywords splits a comma-separated string of keywords into a slice of trimmed strings.
func parseKeywords(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	keywords := make([]string, 0, len(parts))
	for _, part := range parts {
		if kw := strings.TrimSpace(part); kw != "" {
			keywords = append(keywords, kw)
		}
	}

	if len(keywords) == 0 {
		return nil
	}
	return keywords
}

// parsePublicationDate accepts the W3C datetime forms news sitemaps use.
func parsePublicationDate(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}

	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04Z07:00", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}

// fetchSitemap retrieves the sitemap XML data from the given URL using the provided HTTP client.
func fetchSitemap(ctx context.Context, client httpclient.Client, url string, headers map[string]string) ([]byte, error) {
	resp, err := client.Get(ctx, url, headers)
	if err != nil {
		return nil, fmt.Errorf("fetch sitemap %s: %w", url, err)
	}

	body := resp.Body()
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("sitemap %s returned status %d body: %s", url, resp.StatusCode(), httpclient.Snippet(body))
	}

	return body, nil
}

// sitemapStrategy follows the sitemaps declared in robots.txt.
type sitemapStrategy struct {
	client  httpclient.Client
	cache   *fetchcache.Cache
	log     logger.Logger
	maxDocs int
}

func newSitemapStrategy(client httpclient.Client, cache *fetchcache.Cache, log logger.Logger, maxDocs int) *sitemapStrategy {
	if maxDocs <= 0 {
		maxDocs = DefaultOptions().MaxSitemaps
	}
	return &sitemapStrategy{client: client, cache: cache, log: logger.Ensure(log), maxDocs: maxDocs}
}

func (s *sitemapStrategy) ID() string {
	return StrategySitemaps
}

// sitemapWalk tracks one resolution of sitemap indexes into leaf documents.
type sitemapWalk struct {
	visited map[string]struct{}
	budget  int
	leaves  []string
	entries []googleNewsURL
}

// Discover resolves leaf sitemaps (cached between runs) and returns their entries. Leaf contents
// are always fetched fresh.
func (s *sitemapStrategy) Discover(ctx context.Context, site *Site) ([]domain.ArticleRef, error) {
	key := "sitemaps:" + site.Domain
	if leaves, ok := s.cache.Get(key); ok && len(leaves) > 0 {
		return s.fromLeaves(ctx, site, leaves)
	}

	roots, err := s.roots(ctx, site)
	if err != nil {
		return nil, err
	}

	walk := &sitemapWalk{visited: make(map[string]struct{}), budget: s.maxDocs}
	var firstErr error
	for _, root := range roots {
		if err := s.resolve(ctx, site, root, walk); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if len(walk.leaves) > 0 {
		if err := s.cache.Put(key, walk.leaves); err != nil {
			s.log.DebugObj("sitemap cache write failed", "cache_error", map[string]any{"key": key, "error": err.Error()})
		}
	}
	return buildRefsFromSitemap(site, walk.entries), firstErr
}

// roots lists the sitemaps robots.txt declares, falling back to /sitemap.xml.
func (s *sitemapStrategy) roots(ctx context.Context, site *Site) ([]string, error) {
	robots, err := site.Robots(ctx)
	if err != nil {
		return nil, err
	}
	if robots != nil && len(robots.Sitemaps) > 0 {
		return robots.Sitemaps, nil
	}
	return []string{site.Root() + "/sitemap.xml"}, nil
}

// resolve fetches url and either records it as a leaf with entries or follows it as an index.
func (s *sitemapStrategy) resolve(ctx context.Context, site *Site, url string, walk *sitemapWalk) error {
	url = strings.TrimSpace(url)
	if url == "" || walk.budget <= 0 || ctx.Err() != nil {
		return nil
	}
	if _, seen := walk.visited[url]; seen {
		return nil
	}
	walk.visited[url] = struct{}{}
	walk.budget--

	raw, err := fetchSitemap(ctx, s.client, url, site.Headers())
	if err != nil {
		return err
	}

	urls, err := parseGoogleNewsSitemap(raw)
	if err != nil {
		return fmt.Errorf("decode sitemap %s: %w", url, err)
	}
	if len(urls) > 0 {
		walk.leaves = append(walk.leaves, url)
		walk.entries = append(walk.entries, urls...)
		return nil
	}

	indexURLs, err := parseSitemapIndex(raw)
	if err != nil {
		return fmt.Errorf("decode sitemap index %s: %w", url, err)
	}
	var firstErr error
	for _, indexURL := range indexURLs {
		if err := s.resolve(ctx, site, indexURL, walk); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *sitemapStrategy) fromLeaves(ctx context.Context, site *Site, leaves []string) ([]domain.ArticleRef, error) {
	var (
		entries  []googleNewsURL
		firstErr error
	)
	for i, leaf := range leaves {
		if i >= s.maxDocs || ctx.Err() != nil {
			break
		}
		raw, err := fetchSitemap(ctx, s.client, leaf, site.Headers())
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		urls, err := parseGoogleNewsSitemap(raw)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("decode sitemap %s: %w", leaf, err)
			}
			continue
		}
		entries = append(entries, urls...)
	}
	return buildRefsFromSitemap(site, entries), firstErr
}
