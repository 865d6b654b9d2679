package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/Adda-Baaj/broker-scraper/internal/config"
	"github.com/Adda-Baaj/broker-scraper/internal/domain"
	"github.com/Adda-Baaj/broker-scraper/internal/processor"
	"github.com/Adda-Baaj/broker-scraper/pkg/discovery"
)

const homeHTML = `<html><body>
<a href="/markets/2024/05/01/central-bank-holds-rates">Central bank holds rates</a>
<a href="/world/2024/04/30/oil-prices-slide-again">Oil prices slide again</a>
<a href="/tech/2024/04/29/hp-unveils-new-laptops">HP unveils new laptops</a>
<a href="/world/2024/04/28/page-that-went-missing">Missing story</a>
<a href="https://elsewhere.example.com/2024/05/01/foreign-story">Foreign</a>
</body></html>`

func articlePage(title, date, body string) string {
	meta := ""
	if date != "" {
		meta = fmt.Sprintf(`<meta property="article:published_time" content="%s">`, date)
	}
	return fmt.Sprintf(`<html><head><title>%s</title>%s</head><body><article>
<h1>%s</h1>
<p>%s</p>
<p>%s</p>
</article></body></html>`, title, meta, title, body, body)
}

func newNewsSite(t *testing.T) *httptest.Server {
	t.Helper()
	pages := map[string]string{
		"/markets/2024/05/01/central-bank-holds-rates": articlePage("Central bank holds rates", "2024-05-01T10:00:00Z",
			"The central bank kept its benchmark rate unchanged on Wednesday, citing sticky food inflation and a steady rural recovery across the country."),
		"/world/2024/04/30/oil-prices-slide-again": articlePage("Oil prices slide again", "",
			"Oil prices slid for a third straight session as traders weighed rising inventories against expectations of steady summer demand from refiners."),
		"/tech/2024/04/29/hp-unveils-new-laptops": articlePage("HP unveils new laptops", "2024-04-29T08:00:00Z",
			"The company unveiled a refreshed range of business laptops with longer battery life and brighter displays for enterprise customers worldwide."),
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			fmt.Fprint(w, homeHTML)
			return
		}
		page, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, page)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeResources(t *testing.T, dir string) {
	t.Helper()
	files := map[string]string{
		"corpora/stopwords/english":                      "the\na\nand\nof\non\nin\nto\nas\nfor\nwith\nits\nfrom\nagainst\n",
		"tokenizers/punkt_tab/english/abbrev_types.txt": "u.s\ninc\n",
	}
	for rel, body := range files {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
}

func testConfig(t *testing.T, site string) config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.Websites = []string{site}
	cfg.Resources.Dir = filepath.Join(root, "nltk_data")
	cfg.Cache.Dir = filepath.Join(root, "cache")
	cfg.OutputFile = filepath.Join(root, "articles.json")
	cfg.Discovery.Strategies = []string{discovery.StrategyHomepage}
	cfg.Blocklist = processor.DefaultBlocklist()
	writeResources(t, cfg.Resources.Dir)
	return cfg
}

func TestRunScrapesFiltersAndSorts(t *testing.T) {
	srv := newNewsSite(t)
	cfg := testConfig(t, srv.URL+"/")

	res, err := New(cfg, nil, nil).Run(context.Background(), Overrides{})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}

	if res.Status != domain.StatusSuccess || res.TotalArticles != 2 {
		t.Fatalf("result = %s %d %q", res.Status, res.TotalArticles, res.Message)
	}
	if res.Message != "Successfully scraped 2 articles" {
		t.Fatalf("message = %q", res.Message)
	}
	if res.Articles[0].Link != srv.URL+"/world/2024/04/30/oil-prices-slide-again" {
		t.Fatalf("first article = %s, want the older oil story", res.Articles[0].Link)
	}
	if res.Articles[0].PublishDate == nil || res.Articles[0].PublishDate.String() != "2024-04-30" {
		t.Fatalf("date from url = %v", res.Articles[0].PublishDate)
	}
	if len(res.Articles[1].Keywords) == 0 {
		t.Fatalf("keywords missing for %s", res.Articles[1].Link)
	}
}

func TestRunHonoursOverrides(t *testing.T) {
	srv := newNewsSite(t)
	cfg := testConfig(t, "https://unused.invalid/")

	one := 1
	res, err := New(cfg, nil, nil).Run(context.Background(), Overrides{Websites: []string{srv.URL + "/"}, Count: &one})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.TotalArticles != 1 || res.Articles[0].Link != srv.URL+"/markets/2024/05/01/central-bank-holds-rates" {
		t.Fatalf("result = %+v", res)
	}
}

func TestRunUnreachableSiteYieldsNoArticles(t *testing.T) {
	srv := newNewsSite(t)
	cfg := testConfig(t, srv.URL+"/")
	srv.Close()

	res, err := New(cfg, nil, nil).Run(context.Background(), Overrides{})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.TotalArticles != 0 || res.Message != processor.MessageNoArticles || res.Articles == nil {
		t.Fatalf("result = %+v", res)
	}
}

func TestPublishWritesOutputFile(t *testing.T) {
	srv := newNewsSite(t)
	cfg := testConfig(t, srv.URL+"/")
	p := New(cfg, nil, nil)

	res, err := p.Run(context.Background(), Overrides{})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if err := p.Publish(context.Background(), res); err != nil {
		t.Fatalf("Publish error: %v", err)
	}

	raw, err := os.ReadFile(cfg.OutputFile)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	var got []domain.Article
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if len(got) != res.TotalArticles {
		t.Fatalf("file holds %d articles, want %d", len(got), res.TotalArticles)
	}
}

func TestPublishSkipsEmptyResult(t *testing.T) {
	cfg := testConfig(t, "https://unused.invalid/")
	empty := domain.Result{Status: domain.StatusSuccess, Message: processor.MessageNoArticles, Articles: []domain.Article{}}

	if err := New(cfg, nil, nil).Publish(context.Background(), empty); err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	if _, err := os.Stat(cfg.OutputFile); !os.IsNotExist(err) {
		t.Fatalf("output file written for empty result: %v", err)
	}
}

func TestClearCache(t *testing.T) {
	srv := newNewsSite(t)
	cfg := testConfig(t, srv.URL+"/")
	p := New(cfg, nil, nil)

	if _, err := p.Run(context.Background(), Overrides{}); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	removed, err := p.ClearCache()
	if err != nil || !removed {
		t.Fatalf("ClearCache = %v, %v; want true, nil", removed, err)
	}
	removed, err = p.ClearCache()
	if err != nil || removed {
		t.Fatalf("second ClearCache = %v, %v; want false, nil", removed, err)
	}
}
