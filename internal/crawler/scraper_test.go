package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/Adda-Baaj/broker-scraper/internal/domain"
	"github.com/Adda-Baaj/broker-scraper/pkg/nlp"
)

const articleHTML = `<!doctype html>
<html lang="en">
<head>
  <title>Central bank holds rates | Example News</title>
  <meta property="og:title" content="Central bank holds rates steady">
  <meta name="author" content="By Jane Doe and John Roe">
  <meta property="article:published_time" content="2024-05-01T09:30:00+05:30">
  <meta property="article:tag" content="Markets">
  <meta property="article:tag" content="Banks">
  <meta name="news_keywords" content="markets, RBI">
  <meta property="og:image" content="/img/lead.jpg">
</head>
<body>
  <header><nav><a href="/">Home</a> <a href="/markets">Markets</a></nav></header>
  <article>
    <h1>Central bank holds rates steady</h1>
    <p>The central bank kept its benchmark rate unchanged on Wednesday, citing sticky inflation in food prices and a steady recovery in rural demand across the country this quarter.</p>
    <p>Economists had broadly expected the pause. The central bank said it would stay focused on bringing inflation back to target while supporting growth, and signalled that rate cuts were unlikely before the monsoon.</p>
    <p>Bond yields eased slightly after the decision, while bank shares rose as traders bet that lending margins would hold up through the rest of the fiscal year and credit growth would remain strong.</p>
    <p>The rate decision was unanimous, the central bank said, with all six members of the committee voting to keep rates on hold and to maintain the current stance on liquidity for now.</p>
    <p>Tags: <a rel="tag" href="/tag/rates">Rates</a></p>
  </article>
  <footer>Copyright Example News</footer>
</body>
</html>`

const bareArticleHTML = `<!doctype html>
<html><head><title>Oil prices slide</title></head>
<body><article>
<p>Oil prices slid for a third straight session on Tuesday as traders weighed rising inventories against expectations of steady demand from refiners heading into the summer driving season.</p>
<p>Brent crude futures fell nearly one percent while the benchmark for domestic crude posted a similar decline, extending losses from earlier in the week as supply concerns eased.</p>
</article></body></html>`

func newArticleServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/markets/2024/05/01/central-bank-holds-rates", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, articleHTML)
	})
	mux.HandleFunc("/world/oil-prices-slide", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, bareArticleHTML)
	})
	mux.HandleFunc("/empty", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testKeywords() *nlp.KeywordExtractor {
	return nlp.NewKeywordExtractor([]string{"the", "a", "and", "its", "on", "in", "to", "of", "it", "that", "with", "for", "as", "while", "had", "was", "would", "be", "at", "this"}, nil)
}

func TestScraperExtractParsesMetadata(t *testing.T) {
	srv := newArticleServer(t)
	s := NewScraper(nil, testKeywords(), nil, ScraperOptions{})

	link := srv.URL + "/markets/2024/05/01/central-bank-holds-rates"
	got, err := s.Extract(context.Background(), domain.ArticleRef{URL: link, Title: "anchor text"})
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}

	if got.Link != link {
		t.Fatalf("Link = %q, want %q", got.Link, link)
	}
	if got.Title != "Central bank holds rates steady" {
		t.Fatalf("Title = %q", got.Title)
	}
	if !strings.Contains(got.Text, "kept its benchmark rate unchanged") {
		t.Fatalf("Text missing body paragraph: %q", got.Text)
	}
	if want := []string{"Jane Doe", "John Roe"}; !reflect.DeepEqual(got.Author, want) {
		t.Fatalf("Author = %v, want %v", got.Author, want)
	}
	if got.PublishDate == nil || got.PublishDate.String() != "2024-05-01" {
		t.Fatalf("PublishDate = %v, want 2024-05-01", got.PublishDate)
	}
	if want := []string{"Markets", "Banks", "RBI", "Rates"}; !reflect.DeepEqual(got.Tags, want) {
		t.Fatalf("Tags = %v, want %v", got.Tags, want)
	}
	if got.Thumbnail != srv.URL+"/img/lead.jpg" {
		t.Fatalf("Thumbnail = %q", got.Thumbnail)
	}
	if len(got.Keywords) < 5 || got.Keywords[0] != "steady" {
		t.Fatalf("Keywords = %v, want title keywords first", got.Keywords)
	}
	if !got.Valid() {
		t.Fatalf("expected extracted article to be valid")
	}
}

func TestScraperExtractUsesHintsForMissingFields(t *testing.T) {
	srv := newArticleServer(t)
	s := NewScraper(nil, testKeywords(), nil, ScraperOptions{})

	published := time.Date(2024, 4, 30, 23, 0, 0, 0, time.UTC)
	got, err := s.Extract(context.Background(), domain.ArticleRef{
		URL:         srv.URL + "/world/oil-prices-slide",
		ImageURL:    "/img/oil.jpg",
		Keywords:    []string{"Oil", "Commodities"},
		PublishedAt: published,
	})
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}

	if got.Title != "Oil prices slide" {
		t.Fatalf("Title = %q", got.Title)
	}
	if got.PublishDate == nil || got.PublishDate.String() != "2024-04-30" {
		t.Fatalf("PublishDate = %v, want 2024-04-30", got.PublishDate)
	}
	if got.Thumbnail != srv.URL+"/img/oil.jpg" {
		t.Fatalf("Thumbnail = %q", got.Thumbnail)
	}
	if want := []string{"Oil", "Commodities"}; !reflect.DeepEqual(got.Tags, want) {
		t.Fatalf("Tags = %v, want %v", got.Tags, want)
	}
	if got.Author == nil {
		t.Fatalf("Author should be an empty list, not nil")
	}
}

func TestScraperExtractFailures(t *testing.T) {
	srv := newArticleServer(t)
	s := NewScraper(nil, testKeywords(), nil, ScraperOptions{})

	cases := map[string]string{
		"not found":   srv.URL + "/missing",
		"empty body":  srv.URL + "/empty",
		"invalid url": "not a url",
	}
	for name, link := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Extract(context.Background(), domain.ArticleRef{URL: link}); err == nil {
				t.Fatalf("expected error for %s", link)
			}
		})
	}

	if _, err := s.Extract(context.Background(), domain.ArticleRef{URL: srv.URL + "/empty"}); !errors.Is(err, ErrNoContent) {
		t.Fatalf("empty body err = %v, want ErrNoContent", err)
	}
}

func TestScraperExtractKeywordResourceFailure(t *testing.T) {
	srv := newArticleServer(t)
	kw := nlp.Load([]string{t.TempDir()}, "en")
	s := NewScraper(nil, kw, nil, ScraperOptions{})

	_, err := s.Extract(context.Background(), domain.ArticleRef{URL: srv.URL + "/world/oil-prices-slide"})
	if !errors.Is(err, nlp.ErrResourceUnavailable) {
		t.Fatalf("err = %v, want ErrResourceUnavailable", err)
	}
}

func TestScraperRequestDelayHonoursContext(t *testing.T) {
	srv := newArticleServer(t)
	s := NewScraper(nil, testKeywords(), nil, ScraperOptions{RequestDelay: time.Hour})

	ref := domain.ArticleRef{URL: srv.URL + "/world/oil-prices-slide"}
	if _, err := s.Extract(context.Background(), ref); err != nil {
		t.Fatalf("first Extract error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := s.Extract(ctx, ref); err == nil {
		t.Fatalf("expected second Extract to fail while waiting on the delay")
	}
}

func TestExtractPublishDateFromURL(t *testing.T) {
	cases := []struct {
		path string
		want string
		ok   bool
	}{
		{"/markets/2024/05/01/stocks-rally", "2024-05-01", true},
		{"/news/2023-11-9-budget-preview", "2023-11-09", true},
		{"/world/oil-prices-slide", "", false},
	}
	for _, tc := range cases {
		u, _ := url.Parse("https://example.com" + tc.path)
		doc := mustDoc(t, "<html><head></head><body></body></html>")
		got, ok := extractPublishDate(doc, u)
		if ok != tc.ok {
			t.Fatalf("%s: ok = %v, want %v", tc.path, ok, tc.ok)
		}
		if ok && domain.DateOf(got).String() != tc.want {
			t.Fatalf("%s: date = %s, want %s", tc.path, domain.DateOf(got), tc.want)
		}
	}
}

func mustDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}
	return doc
}

func TestSplitAuthors(t *testing.T) {
	cases := map[string][]string{
		"By Jane Doe":                        {"Jane Doe"},
		"Written by Jane Doe, John Roe":      {"Jane Doe", "John Roe"},
		"Alexandra Singh & Ravi Kumar":       {"Alexandra Singh", "Ravi Kumar"},
		"Updated 12 May 2024":                nil,
		"":                                   nil,
		"Reporter | Desk":                    {"Reporter", "Desk"},
		"a very long line that is not a name": nil,
	}
	for in, want := range cases {
		if got := splitAuthors(in); !reflect.DeepEqual(got, want) {
			t.Fatalf("splitAuthors(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestCleanText(t *testing.T) {
	in := "  First   line \n\n\n   \nSecond\tline  \r\n"
	if got, want := cleanText(in), "First line\n\nSecond line"; got != want {
		t.Fatalf("cleanText = %q, want %q", got, want)
	}
}

func TestResolveURL(t *testing.T) {
	if got := resolveURL("/a.jpg", "https://example.com/news/x"); got != "https://example.com/a.jpg" {
		t.Fatalf("resolveURL relative = %q", got)
	}
	if got := resolveURL("https://cdn.example.com/a.jpg", "https://example.com/"); got != "https://cdn.example.com/a.jpg" {
		t.Fatalf("resolveURL absolute = %q", got)
	}
	if got := resolveURL("", "https://example.com/"); got != "" {
		t.Fatalf("resolveURL empty = %q", got)
	}
}
