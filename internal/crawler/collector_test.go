package crawler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/Adda-Baaj/broker-scraper/internal/domain"
)

type stubDiscoverer struct {
	links map[string][]domain.ArticleRef
	fail  map[string]error
	calls []string
}

func (s *stubDiscoverer) Discover(_ context.Context, site string) ([]domain.ArticleRef, error) {
	s.calls = append(s.calls, site)
	if err := s.fail[site]; err != nil {
		return nil, err
	}
	return s.links[site], nil
}

type stubExtractor struct {
	fail   map[string]bool
	calls  []string
	cancel context.CancelFunc
	stopAt int
}

func (s *stubExtractor) Extract(_ context.Context, ref domain.ArticleRef) (domain.Article, error) {
	s.calls = append(s.calls, ref.URL)
	if s.cancel != nil && len(s.calls) == s.stopAt {
		s.cancel()
	}
	if s.fail[ref.URL] {
		return domain.Article{}, errors.New("boom")
	}
	return domain.Article{Link: ref.URL, Title: "t " + ref.URL, Text: "body"}, nil
}

func refsFor(site string, n int) []domain.ArticleRef {
	refs := make([]domain.ArticleRef, 0, n)
	for i := 0; i < n; i++ {
		refs = append(refs, domain.ArticleRef{URL: fmt.Sprintf("%s/a%d", site, i), Site: site})
	}
	return refs
}

func TestCollectStopsAtPerSiteQuota(t *testing.T) {
	disc := &stubDiscoverer{links: map[string][]domain.ArticleRef{"https://a.test": refsFor("https://a.test", 10)}}
	ext := &stubExtractor{}
	c := NewCollector(disc, ext, nil)

	got := c.Collect(context.Background(), []string{"https://a.test"}, 3)

	if len(got) != 3 {
		t.Fatalf("records = %d, want 3", len(got))
	}
	if len(ext.calls) != 3 {
		t.Fatalf("extract calls = %d, want 3", len(ext.calls))
	}
}

func TestCollectFailuresDoNotCountTowardQuota(t *testing.T) {
	site := "https://a.test"
	disc := &stubDiscoverer{links: map[string][]domain.ArticleRef{site: refsFor(site, 6)}}
	ext := &stubExtractor{fail: map[string]bool{site + "/a0": true, site + "/a2": true}}
	c := NewCollector(disc, ext, nil)

	got := c.Collect(context.Background(), []string{site}, 3)

	var links []string
	for _, a := range got {
		links = append(links, a.Link)
	}
	if want := site + "/a1," + site + "/a3," + site + "/a4"; strings.Join(links, ",") != want {
		t.Fatalf("links = %v, want %s", links, want)
	}
	if len(ext.calls) != 5 {
		t.Fatalf("extract calls = %d, want 5", len(ext.calls))
	}
}

func TestCollectFewerLinksThanCount(t *testing.T) {
	site := "https://a.test"
	disc := &stubDiscoverer{links: map[string][]domain.ArticleRef{site: refsFor(site, 2)}}
	ext := &stubExtractor{}

	got := NewCollector(disc, ext, nil).Collect(context.Background(), []string{site}, 5)
	if len(got) != 2 || len(ext.calls) != 2 {
		t.Fatalf("records = %d calls = %d, want 2 and 2", len(got), len(ext.calls))
	}
}

func TestCollectSkipsFailedSiteAndKeepsOrder(t *testing.T) {
	a, b, c := "https://a.test", "https://b.test", "https://c.test"
	disc := &stubDiscoverer{
		links: map[string][]domain.ArticleRef{b: refsFor(b, 2), c: refsFor(c, 2)},
		fail:  map[string]error{a: errors.New("homepage unreachable")},
	}
	ext := &stubExtractor{}

	got := NewCollector(disc, ext, nil).Collect(context.Background(), []string{a, b, c}, 5)

	want := []string{b + "/a0", b + "/a1", c + "/a0", c + "/a1"}
	if len(got) != len(want) {
		t.Fatalf("records = %d, want %d", len(got), len(want))
	}
	for i, link := range want {
		if got[i].Link != link {
			t.Fatalf("record %d = %s, want %s", i, got[i].Link, link)
		}
	}
	if len(disc.calls) != 3 {
		t.Fatalf("discover calls = %v, want all three sites", disc.calls)
	}
}

func TestCollectNonPositiveCount(t *testing.T) {
	disc := &stubDiscoverer{}
	got := NewCollector(disc, &stubExtractor{}, nil).Collect(context.Background(), []string{"https://a.test"}, 0)
	if got == nil || len(got) != 0 {
		t.Fatalf("records = %v, want empty slice", got)
	}
	if len(disc.calls) != 0 {
		t.Fatalf("discover calls = %v, want none", disc.calls)
	}
}

func TestCollectStopsOnCancel(t *testing.T) {
	a, b := "https://a.test", "https://b.test"
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	disc := &stubDiscoverer{links: map[string][]domain.ArticleRef{a: refsFor(a, 5), b: refsFor(b, 5)}}
	ext := &stubExtractor{cancel: cancel, stopAt: 2}

	got := NewCollector(disc, ext, nil).Collect(ctx, []string{a, b}, 5)
	if len(got) != 2 {
		t.Fatalf("records = %d, want 2", len(got))
	}
	if len(disc.calls) != 1 {
		t.Fatalf("discover calls = %v, want only the first site", disc.calls)
	}
}
