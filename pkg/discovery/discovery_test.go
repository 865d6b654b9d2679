package discovery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/Adda-Baaj/broker-scraper/pkg/fetchcache"
	"github.com/Adda-Baaj/broker-scraper/pkg/httpclient"
)

func newNewsSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	var base string

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `<html><head>
<link rel="alternate" type="application/rss+xml" href="/rss.xml">
</head><body>
<a href="/markets">Markets</a>
<a href="/markets/2024/05/01/stocks-rally">Stocks   rally</a>
<a href="/about">About</a>
<a href="https://other.example.org/one-two-three-four">Elsewhere</a>
</body></html>`)
	})
	mux.HandleFunc("/markets", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
<a href="/markets/bank-shares-climb-on-rate-cut-hopes">Bank shares</a>
<a href="/markets/2024/05/01/stocks-rally">Stocks rally</a>
</body></html>`)
	})
	mux.HandleFunc("/rss.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprintf(w, `<?xml version="1.0"?>
<rss version="2.0"><channel><title>Site</title>
<item><title>Inflation cools</title><link>%[1]s/economy/2024/04/30/inflation-cools</link>
<pubDate>Tue, 30 Apr 2024 10:00:00 GMT</pubDate><category>Economy</category></item>
<item><title>Bank shares</title><link>%[1]s/markets/bank-shares-climb-on-rate-cut-hopes</link></item>
</channel></rss>`, base)
	})
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "User-agent: *\nDisallow: /private/\nSitemap: %s/sitemap_index.xml\n", base)
	})
	mux.HandleFunc("/sitemap_index.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<?xml version="1.0"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
<sitemap><loc>%s/news-sitemap.xml</loc></sitemap>
</sitemapindex>`, base)
	})
	mux.HandleFunc("/news-sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<?xml version="1.0"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9" xmlns:news="http://www.google.com/schemas/sitemap-news/0.9">
<url><loc>%[1]s/world/oil-prices-slide</loc>
<news:news><news:publication_date>2024-05-02T08:00:00Z</news:publication_date><news:title>Oil prices slide</news:title><news:keywords>oil, energy</news:keywords></news:news></url>
<url><loc>%[1]s/private/secret-story-about-many-things</loc></url>
<url><loc>%[1]s/markets</loc></url>
</urlset>`, base)
	})

	srv := httptest.NewServer(mux)
	base = srv.URL
	return srv
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.Timeout = 5 * time.Second
	return opts
}

func TestDiscoverMergesStrategiesInOrder(t *testing.T) {
	srv := newNewsSite(t)
	defer srv.Close()

	d, err := New(httpclient.NewRestyClient(5*time.Second), nil, nil, testOptions())
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	refs, err := d.Discover(context.Background(), srv.URL+"/")
	if err != nil {
		t.Fatalf("Discover error: %v", err)
	}

	var got []string
	for _, r := range refs {
		got = append(got, r.URL[len(srv.URL):])
		if r.Site != srv.URL+"/" {
			t.Fatalf("ref site = %q", r.Site)
		}
	}
	want := []string{
		"/markets/2024/05/01/stocks-rally",
		"/markets/bank-shares-climb-on-rate-cut-hopes",
		"/economy/2024/04/30/inflation-cools",
		"/world/oil-prices-slide",
		"/private/secret-story-about-many-things",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("links = %v\nwant %v", got, want)
	}

	if refs[0].Title != "Stocks rally" {
		t.Fatalf("anchor title hint = %q", refs[0].Title)
	}
	if refs[2].PublishedAt.IsZero() || !reflect.DeepEqual(refs[2].Keywords, []string{"Economy"}) {
		t.Fatalf("feed hints missing: %+v", refs[2])
	}
	if refs[3].Title != "Oil prices slide" || !reflect.DeepEqual(refs[3].Keywords, []string{"oil", "energy"}) {
		t.Fatalf("sitemap hints missing: %+v", refs[3])
	}
}

func TestDiscoverRespectsRobots(t *testing.T) {
	srv := newNewsSite(t)
	defer srv.Close()

	opts := testOptions()
	opts.RespectRobots = true
	opts.Strategies = []string{StrategySitemaps}
	d, err := New(httpclient.NewRestyClient(5*time.Second), nil, nil, opts)
	if err != nil {
		t.Fatal(err)
	}
	refs, err := d.Discover(context.Background(), srv.URL+"/")
	if err != nil {
		t.Fatal(err)
	}
	if len(refs) != 1 || refs[0].URL != srv.URL+"/world/oil-prices-slide" {
		t.Fatalf("refs = %+v", refs)
	}
}

func TestSitemapLeavesAreCached(t *testing.T) {
	srv := newNewsSite(t)
	defer srv.Close()

	cache, err := fetchcache.Open(filepath.Join(t.TempDir(), "cache"), time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	defer cache.Close()

	opts := testOptions()
	opts.Strategies = []string{StrategySitemaps}
	d, err := New(httpclient.NewRestyClient(5*time.Second), cache, nil, opts)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.Discover(context.Background(), srv.URL+"/"); err != nil {
		t.Fatal(err)
	}

	leaves, ok := cache.Get("sitemaps:127.0.0.1")
	if !ok || !reflect.DeepEqual(leaves, []string{srv.URL + "/news-sitemap.xml"}) {
		t.Fatalf("cached leaves = %v, %v", leaves, ok)
	}
}

func TestDiscoverUnreachableSite(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	d, err := New(httpclient.NewRestyClient(5*time.Second), nil, nil, testOptions())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.Discover(context.Background(), srv.URL); !errors.Is(err, ErrSiteUnreachable) {
		t.Fatalf("Discover error = %v, want ErrSiteUnreachable", err)
	}
	if _, err := d.Discover(context.Background(), "not a url"); !errors.Is(err, ErrSiteUnreachable) {
		t.Fatalf("Discover(invalid) error = %v, want ErrSiteUnreachable", err)
	}
}

func TestNewRejectsUnknownStrategy(t *testing.T) {
	opts := testOptions()
	opts.Strategies = []string{"carrier-pigeon"}
	if _, err := New(nil, nil, nil, opts); err == nil {
		t.Fatalf("New should reject unknown strategies")
	}
}

func openCache(t *testing.T) *fetchcache.Cache {
	t.Helper()
	cache, err := fetchcache.Open(filepath.Join(t.TempDir(), "cache"), time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { cache.Close() })
	return cache
}

func TestHomepageCategoriesAreCached(t *testing.T) {
	srv := newNewsSite(t)
	defer srv.Close()
	cache := openCache(t)

	opts := testOptions()
	opts.Strategies = []string{StrategyHomepage}
	d, err := New(httpclient.NewRestyClient(5*time.Second), cache, nil, opts)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.Discover(context.Background(), srv.URL+"/"); err != nil {
		t.Fatal(err)
	}

	cats, ok := cache.Get("categories:127.0.0.1")
	if !ok || !reflect.DeepEqual(cats, []string{srv.URL + "/markets"}) {
		t.Fatalf("cached categories = %v, %v", cats, ok)
	}
}

func TestHomepageFallsBackToCachedCategories(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `<html><body><p>Scripted front page</p></body></html>`)
	})
	mux.HandleFunc("/business", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><a href="/business/2024/05/01/exporters-see-record-quarter">Exporters</a></body></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cache := openCache(t)
	if err := cache.Put("categories:127.0.0.1", []string{srv.URL + "/business"}); err != nil {
		t.Fatal(err)
	}

	opts := testOptions()
	opts.Strategies = []string{StrategyHomepage}
	d, err := New(httpclient.NewRestyClient(5*time.Second), cache, nil, opts)
	if err != nil {
		t.Fatal(err)
	}
	refs, err := d.Discover(context.Background(), srv.URL+"/")
	if err != nil {
		t.Fatal(err)
	}
	if len(refs) != 1 || refs[0].URL != srv.URL+"/business/2024/05/01/exporters-see-record-quarter" {
		t.Fatalf("refs = %+v", refs)
	}
}

func TestSitemapIndexContinuesPastFailingChild(t *testing.T) {
	mux := http.NewServeMux()
	var base string
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "User-agent: *\nSitemap: %s/sitemap_index.xml\n", base)
	})
	mux.HandleFunc("/sitemap_index.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<?xml version="1.0"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
<sitemap><loc>%[1]s/broken-sitemap.xml</loc></sitemap>
<sitemap><loc>%[1]s/news-sitemap.xml</loc></sitemap>
</sitemapindex>`, base)
	})
	mux.HandleFunc("/broken-sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusInternalServerError)
	})
	mux.HandleFunc("/news-sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<?xml version="1.0"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9" xmlns:news="http://www.google.com/schemas/sitemap-news/0.9">
<url><loc>%s/world/oil-prices-slide</loc>
<news:news><news:title>Oil prices slide</news:title></news:news></url>
</urlset>`, base)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	base = srv.URL

	site := &Site{Raw: srv.URL + "/", Domain: "127.0.0.1", client: httpclient.NewRestyClient(5 * time.Second)}
	site.URL, _ = url.Parse(site.Raw)

	refs, err := newSitemapStrategy(site.client, nil, nil, 10).Discover(context.Background(), site)
	if err == nil {
		t.Fatalf("expected the broken child to be reported")
	}
	if len(refs) != 1 || refs[0].URL != srv.URL+"/world/oil-prices-slide" {
		t.Fatalf("refs = %+v", refs)
	}
}
