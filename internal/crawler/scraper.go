package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/markusmobius/go-trafilatura"
	"golang.org/x/time/rate"

	"github.com/Adda-Baaj/broker-scraper/internal/domain"
	"github.com/Adda-Baaj/broker-scraper/internal/logger"
	"github.com/Adda-Baaj/broker-scraper/pkg/httpclient"
)

const maxHTMLBodyBytes = 5 << 20 // 5 MiB

// ErrNoContent is returned when an article page comes back empty or cannot be parsed at all.
var ErrNoContent = errors.New("article has no parsable content")

// KeywordExtractor derives keywords from an article's title and body.
type KeywordExtractor interface {
	ArticleKeywords(title, text string) ([]string, error)
}

// ScraperOptions configure article fetching.
type ScraperOptions struct {
	UserAgent    string
	Language     string
	RequestDelay time.Duration
}

// Scraper downloads single articles and turns them into records.
type Scraper struct {
	client   httpclient.Client
	keywords KeywordExtractor
	log      logger.Logger
	headers  map[string]string
	limiter  *rate.Limiter
}

// NewScraper creates a new Scraper with the given HTTP client, keyword extractor and logger.
func NewScraper(client httpclient.Client, keywords KeywordExtractor, log logger.Logger, opts ScraperOptions) *Scraper {
	if client == nil {
		client = httpclient.NewRestyClient(15 * time.Second)
	}
	s := &Scraper{
		client:   client,
		keywords: keywords,
		log:      logger.Ensure(log),
		headers:  httpclient.Headers(opts.UserAgent, opts.Language),
	}
	if opts.RequestDelay > 0 {
		s.limiter = rate.NewLimiter(rate.Every(opts.RequestDelay), 1)
	}
	return s
}

// Extract downloads, parses and keyword-tags one article. Any failure aborts only this article.
func (s *Scraper) Extract(ctx context.Context, ref domain.ArticleRef) (domain.Article, error) {
	pageURL, err := url.Parse(ref.URL)
	if err != nil || pageURL.Host == "" {
		return domain.Article{}, fmt.Errorf("invalid article url %q", ref.URL)
	}

	body, err := s.download(ctx, ref.URL)
	if err != nil {
		return domain.Article{}, fmt.Errorf("download: %w", err)
	}

	meta, err := parsePage(body, pageURL)
	if err != nil {
		return domain.Article{}, fmt.Errorf("parse: %w", err)
	}
	meta.applyHints(ref)

	var kws []string
	if s.keywords != nil {
		kws, err = s.keywords.ArticleKeywords(meta.Title, meta.Text)
		if err != nil {
			return domain.Article{}, fmt.Errorf("keywords: %w", err)
		}
	}

	return domain.Article{
		Link:        ref.URL,
		Title:       meta.Title,
		Text:        meta.Text,
		Author:      nonNil(meta.Authors),
		PublishDate: meta.PublishDate,
		Keywords:    nonNil(kws),
		Tags:        nonNil(meta.Tags),
		Thumbnail:   meta.ImageURL,
	}, nil
}

// download fetches the article HTML, waiting for the politeness limiter first.
func (s *Scraper) download(ctx context.Context, link string) ([]byte, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	s.log.DebugObj("downloading article", "scrape_start", map[string]any{"url": link})

	resp, err := s.client.Get(ctx, link, s.headers)
	if err != nil {
		return nil, fmt.Errorf("http fetch: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("status %d body: %s", resp.StatusCode(), httpclient.Snippet(resp.Body()))
	}

	body := resp.Body()
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, ErrNoContent
	}
	if len(body) > maxHTMLBodyBytes {
		s.log.InfoObj("html body truncated", "truncation", map[string]any{
			"url":      link,
			"original": len(body),
			"kept":     maxHTMLBodyBytes,
		})
		body = body[:maxHTMLBodyBytes]
	}
	return body, nil
}

// pageMeta holds the fields parsed from an article page.
type pageMeta struct {
	Title       string
	Text        string
	Authors     []string
	PublishDate *domain.Date
	Tags        []string
	ImageURL    string
}

// applyHints fills fields the page lacked from discovery hints.
func (pm *pageMeta) applyHints(ref domain.ArticleRef) {
	if pm.Title == "" {
		pm.Title = strings.TrimSpace(ref.Title)
	}
	if pm.ImageURL == "" && ref.ImageURL != "" {
		pm.ImageURL = resolveURL(ref.ImageURL, ref.URL)
	}
	if pm.PublishDate == nil && !ref.PublishedAt.IsZero() {
		d := domain.DateOf(ref.PublishedAt)
		pm.PublishDate = &d
	}
	if len(pm.Tags) == 0 {
		pm.Tags = uniqueFold(ref.Keywords)
	}
}

// parsePage extracts article fields from the HTML body. Body text comes from readability, with
// trafilatura as the fallback when readability finds nothing.
func parsePage(body []byte, pageURL *url.URL) (pageMeta, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return pageMeta{}, fmt.Errorf("parse html: %w", err)
	}

	var (
		readable readability.Article
		fallback *trafilatura.ExtractResult
	)
	readable, readErr := readability.FromReader(bytes.NewReader(body), pageURL)
	text := cleanText(readable.TextContent)
	if readErr != nil || text == "" {
		res, trafErr := trafilatura.Extract(bytes.NewReader(body), trafilatura.Options{
			OriginalURL:     pageURL,
			ExcludeComments: true,
		})
		if trafErr != nil && readErr != nil {
			return pageMeta{}, fmt.Errorf("%w: readability: %v; trafilatura: %v", ErrNoContent, readErr, trafErr)
		}
		if trafErr == nil && res != nil {
			fallback = res
			text = cleanText(res.ContentText)
		}
	}

	pm := pageMeta{Text: text}

	pm.Title = firstNonEmpty(
		metaContent(doc, `meta[property="og:title"]`),
		readable.Title,
		doc.Find("title").First().Text(),
		doc.Find("h1").First().Text(),
		fallbackTitle(fallback),
	)
	pm.Title = strings.Join(strings.Fields(pm.Title), " ")

	pm.Authors = extractAuthors(doc, readable.Byline)
	if len(pm.Authors) == 0 && fallback != nil {
		pm.Authors = splitAuthors(fallback.Metadata.Author)
	}

	if t, ok := extractPublishDate(doc, pageURL); ok {
		d := domain.DateOf(t)
		pm.PublishDate = &d
	} else if readable.PublishedTime != nil && !readable.PublishedTime.IsZero() {
		d := domain.DateOf(*readable.PublishedTime)
		pm.PublishDate = &d
	} else if fallback != nil && !fallback.Metadata.Date.IsZero() {
		d := domain.DateOf(fallback.Metadata.Date)
		pm.PublishDate = &d
	}

	pm.Tags = extractTags(doc)
	if len(pm.Tags) == 0 && fallback != nil {
		pm.Tags = uniqueFold(fallback.Metadata.Tags)
	}

	image := firstNonEmpty(
		metaContent(doc, `meta[property="og:image"]`),
		metaContent(doc, `meta[name="twitter:image"]`),
		metaContent(doc, `meta[property="twitter:image"]`),
		attr(doc, `link[rel="image_src"]`, "href"),
		metaContent(doc, `meta[itemprop="image"]`),
		readable.Image,
		fallbackImage(fallback),
	)
	pm.ImageURL = resolveURL(image, pageURL.String())

	return pm, nil
}

func fallbackTitle(res *trafilatura.ExtractResult) string {
	if res == nil {
		return ""
	}
	return res.Metadata.Title
}

func fallbackImage(res *trafilatura.ExtractResult) string {
	if res == nil {
		return ""
	}
	return res.Metadata.Image
}

// metaContent returns the trimmed content attribute of the first node matching sel.
func metaContent(doc *goquery.Document, sel string) string {
	return attr(doc, sel, "content")
}

func attr(doc *goquery.Document, sel, name string) string {
	if node := doc.Find(sel).First(); node.Length() > 0 {
		if val, ok := node.Attr(name); ok {
			return strings.TrimSpace(val)
		}
	}
	return ""
}

// cleanText trims every line and collapses runs of blank lines into a single paragraph break.
func cleanText(raw string) string {
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	paragraphs := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			paragraphs = append(paragraphs, line)
		}
	}
	return strings.Join(paragraphs, "\n\n")
}

// firstNonEmpty returns the first non-empty string from the given values.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// resolveURL resolves a possibly relative URL against a base URL.
func resolveURL(raw, base string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if parsed.IsAbs() {
		return parsed.String()
	}

	baseURL, err := url.Parse(base)
	if err != nil {
		return raw
	}

	return baseURL.ResolveReference(parsed).String()
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
