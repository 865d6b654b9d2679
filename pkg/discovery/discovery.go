package discovery

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"

	"github.com/Adda-Baaj/broker-scraper/internal/domain"
	"github.com/Adda-Baaj/broker-scraper/internal/logger"
	"github.com/Adda-Baaj/broker-scraper/pkg/fetchcache"
	"github.com/Adda-Baaj/broker-scraper/pkg/httpclient"
)

// Strategy names accepted in Options.Strategies.
const (
	StrategyHomepage = "homepage"
	StrategyFeeds    = "feeds"
	StrategySitemaps = "sitemaps"
)

// ErrSiteUnreachable marks a failure that makes the whole site unusable.
var ErrSiteUnreachable = errors.New("site unreachable")

// Options tune how a site is crawled for article links.
type Options struct {
	Language      string
	UserAgent     string
	Timeout       time.Duration
	Strategies    []string
	MaxCategories int
	MaxSitemaps   int
	RespectRobots bool
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return Options{
		Language:      "en",
		UserAgent:     httpclient.DefaultUserAgent,
		Timeout:       15 * time.Second,
		Strategies:    []string{StrategyHomepage, StrategyFeeds, StrategySitemaps},
		MaxCategories: 10,
		MaxSitemaps:   5,
	}
}

// Strategy harvests article links from one kind of source on a site.
type Strategy interface {
	ID() string
	Discover(ctx context.Context, site *Site) ([]domain.ArticleRef, error)
}

// Site carries per-crawl state shared between strategies.
type Site struct {
	Raw      string
	URL      *url.URL
	Domain   string
	FeedURLs []string

	headers     map[string]string
	client      httpclient.Client
	robotsOnce  sync.Once
	robots      *robotstxt.RobotsData
	robotsError error
}

// Root returns scheme://host of the site.
func (s *Site) Root() string {
	return s.URL.Scheme + "://" + s.URL.Host
}

// Headers returns the request headers used for this site.
func (s *Site) Headers() map[string]string {
	return s.headers
}

// Robots fetches and parses robots.txt once per crawl.
func (s *Site) Robots(ctx context.Context) (*robotstxt.RobotsData, error) {
	s.robotsOnce.Do(func() {
		resp, err := s.client.Get(ctx, s.Root()+"/robots.txt", s.headers)
		if err != nil {
			s.robotsError = fmt.Errorf("fetch robots.txt: %w", err)
			return
		}
		s.robots, s.robotsError = robotstxt.FromStatusAndBytes(resp.StatusCode(), resp.Body())
		if s.robotsError != nil {
			s.robotsError = fmt.Errorf("parse robots.txt: %w", s.robotsError)
		}
	})
	return s.robots, s.robotsError
}

// Discoverer enumerates candidate article links for a site by running its strategies in order.
type Discoverer struct {
	client     httpclient.Client
	log        logger.Logger
	opts       Options
	strategies []Strategy
}

// New builds a Discoverer. cache may be nil.
func New(client httpclient.Client, cache *fetchcache.Cache, log logger.Logger, opts Options) (*Discoverer, error) {
	if client == nil {
		client = httpclient.NewRestyClient(opts.Timeout)
	}
	log = logger.Ensure(log)
	if len(opts.Strategies) == 0 {
		opts.Strategies = DefaultOptions().Strategies
	}

	reg := newStrategyRegistry(
		newHomepageStrategy(opts, cache, log),
		newFeedStrategy(client, cache, log),
		newSitemapStrategy(client, cache, log, opts.MaxSitemaps),
	)

	strategies := make([]Strategy, 0, len(opts.Strategies))
	for _, name := range opts.Strategies {
		st, err := reg.StrategyFor(name)
		if err != nil {
			return nil, err
		}
		strategies = append(strategies, st)
	}

	return &Discoverer{client: client, log: log, opts: opts, strategies: strategies}, nil
}

// Discover returns the site's article links in strategy order, first occurrence wins.
// Only an ErrSiteUnreachable failure aborts the site; other strategy failures are logged.
func (d *Discoverer) Discover(ctx context.Context, siteURL string) ([]domain.ArticleRef, error) {
	site, err := d.newSite(siteURL)
	if err != nil {
		return nil, err
	}

	var refs []domain.ArticleRef
	seen := make(map[string]struct{})

	for _, st := range d.strategies {
		if err := ctx.Err(); err != nil {
			return refs, err
		}

		found, err := st.Discover(ctx, site)
		if err != nil {
			if errors.Is(err, ErrSiteUnreachable) {
				return nil, err
			}
			d.log.WarnObj("discovery strategy failed", "discovery_error", map[string]any{
				"site":     siteURL,
				"strategy": st.ID(),
				"error":    err.Error(),
			})
		}

		added := 0
		for _, ref := range found {
			key := ref.URL
			if _, dup := seen[key]; dup {
				continue
			}
			if d.opts.RespectRobots && !d.allowed(ctx, site, ref.URL) {
				continue
			}
			seen[key] = struct{}{}
			ref.Site = siteURL
			refs = append(refs, ref)
			added++
		}

		d.log.DebugObj("discovery strategy finished", "discovery", map[string]any{
			"site":     siteURL,
			"strategy": st.ID(),
			"found":    len(found),
			"added":    added,
		})
	}

	return refs, nil
}

func (d *Discoverer) allowed(ctx context.Context, site *Site, link string) bool {
	robots, err := site.Robots(ctx)
	if err != nil || robots == nil {
		return true
	}
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	return robots.TestAgent(u.EscapedPath(), d.opts.UserAgent)
}

func (d *Discoverer) newSite(raw string) (*Site, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("%w: invalid site url %q", ErrSiteUnreachable, raw)
	}
	return &Site{
		Raw:     raw,
		URL:     u,
		Domain:  registrableDomain(u.Hostname()),
		headers: httpclient.Headers(d.opts.UserAgent, d.opts.Language),
		client:  d.client,
	}, nil
}

type strategyRegistry struct {
	strategies map[string]Strategy
}

// newStrategyRegistry indexes strategies by id.
func newStrategyRegistry(strategies ...Strategy) *strategyRegistry {
	reg := &strategyRegistry{strategies: make(map[string]Strategy, len(strategies))}
	for _, s := range strategies {
		if s == nil {
			continue
		}
		reg.strategies[strings.ToLower(strings.TrimSpace(s.ID()))] = s
	}
	return reg
}

// StrategyFor selects a strategy by name.
func (r *strategyRegistry) StrategyFor(name string) (Strategy, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, fmt.Errorf("strategy name is empty")
	}
	if s, ok := r.strategies[key]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("no discovery strategy registered for %q", name)
}
