package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Adda-Baaj/broker-scraper/internal/config"
	"github.com/Adda-Baaj/broker-scraper/internal/crawler"
	"github.com/Adda-Baaj/broker-scraper/internal/domain"
	"github.com/Adda-Baaj/broker-scraper/internal/logger"
	"github.com/Adda-Baaj/broker-scraper/internal/processor"
	"github.com/Adda-Baaj/broker-scraper/pkg/discovery"
	"github.com/Adda-Baaj/broker-scraper/pkg/fetchcache"
	"github.com/Adda-Baaj/broker-scraper/pkg/httpclient"
	"github.com/Adda-Baaj/broker-scraper/pkg/nlp"
	"github.com/Adda-Baaj/broker-scraper/pkg/publishers"
	"github.com/Adda-Baaj/broker-scraper/pkg/resources"
)

// Overrides replace configured inputs for a single run. Nil fields keep the configured value.
type Overrides struct {
	Websites    []string `json:"websites"`
	Count       *int     `json:"count"`
	MaxArticles *int     `json:"max_articles"`
}

// Pipeline runs the scrape end to end: resources, discovery, extraction, post-processing.
type Pipeline struct {
	cfg    config.Config
	client httpclient.Client
	log    logger.Logger
	now    func() time.Time
}

// New builds a Pipeline. client may be nil.
func New(cfg config.Config, client httpclient.Client, log logger.Logger) *Pipeline {
	if client == nil {
		client = httpclient.NewRestyClient(cfg.HTTPTimeout)
	}
	return &Pipeline{cfg: cfg, client: client, log: logger.Ensure(log), now: time.Now}
}

// Config returns the configuration the pipeline runs with.
func (p *Pipeline) Config() config.Config {
	return p.cfg
}

// Run scrapes every configured site and returns the filtered, sorted and bounded result.
// Per-site and per-article failures are logged and skipped. A cancelled context yields the result
// for whatever was collected. Only a broken discovery setup is returned as an error.
func (p *Pipeline) Run(ctx context.Context, ov Overrides) (domain.Result, error) {
	sites, count, maxArticles := p.inputs(ov)
	started := p.now()

	p.log.InfoObj("scrape started", "pipeline_start", map[string]any{
		"sites":        len(sites),
		"count":        count,
		"max_articles": maxArticles,
	})

	boot := resources.NewBootstrapper(p.cfg.Resources.Dir, p.cfg.Resources.SearchPaths, p.cfg.Resources.BaseURL, p.client, p.log)
	boot.EnsureAll(ctx, p.cfg.Resources.Items)

	keywords := nlp.Load(boot.Paths(), p.cfg.Language)
	if err := keywords.Err(); err != nil {
		p.log.WarnObj("keyword resources unavailable, articles will fail extraction", "resource_error", map[string]any{
			"error": err.Error(),
		})
	}

	cache, err := fetchcache.Open(p.cfg.Cache.Dir, p.cfg.Cache.TTL)
	if err != nil {
		p.log.WarnObj("discovery cache disabled", "cache_error", map[string]any{
			"dir":   p.cfg.Cache.Dir,
			"error": err.Error(),
		})
		cache = nil
	}
	defer cache.Close()

	disc, err := discovery.New(p.client, cache, p.log, p.cfg.DiscoveryOptions())
	if err != nil {
		return domain.Result{}, fmt.Errorf("build discoverer: %w", err)
	}
	scraper := crawler.NewScraper(p.client, keywords, p.log, crawler.ScraperOptions{
		UserAgent:    p.cfg.UserAgent,
		Language:     p.cfg.Language,
		RequestDelay: p.cfg.RequestDelay,
	})

	records := crawler.NewCollector(disc, scraper, p.log).Collect(ctx, sites, count)
	if err := ctx.Err(); err != nil {
		p.log.WarnObj("scrape interrupted, processing partial records", "pipeline_interrupted", map[string]any{
			"records": len(records),
			"error":   err.Error(),
		})
	}

	result := processor.New(p.cfg.Blocklist, p.log).Process(records, maxArticles)

	p.log.InfoObj(result.Message, "pipeline_done", map[string]any{
		"collected": len(records),
		"kept":      result.TotalArticles,
		"elapsed":   p.now().Sub(started).String(),
	})
	return result, nil
}

func (p *Pipeline) inputs(ov Overrides) ([]string, int, int) {
	sites := p.cfg.Websites
	if len(ov.Websites) > 0 {
		sites = make([]string, 0, len(ov.Websites))
		for _, s := range ov.Websites {
			if s = strings.TrimSpace(s); s != "" {
				sites = append(sites, s)
			}
		}
	}
	count := p.cfg.Count
	if ov.Count != nil {
		count = *ov.Count
	}
	maxArticles := p.cfg.MaxArticles
	if ov.MaxArticles != nil {
		maxArticles = *ov.MaxArticles
	}
	return sites, count, maxArticles
}

// Publish delivers the result's articles to the configured sinks, or to the output file when no
// publishers file is set. Nothing is published for an empty result.
func (p *Pipeline) Publish(ctx context.Context, result domain.Result) error {
	if result.TotalArticles == 0 {
		p.log.InfoObj(result.Message, "publish_skipped", map[string]any{})
		return nil
	}

	cfgs, err := p.publisherConfigs()
	if err != nil {
		return err
	}

	pubs, buildErr := publishers.BuildAll(ctx, publishers.DefaultRegistry(), cfgs, p.log)
	defer publishers.CloseAll(pubs, p.log)

	events := publishers.NewEvents(result.Articles, p.now())
	if err := publishers.PublishAll(ctx, pubs, events, p.log); err != nil {
		return err
	}
	return buildErr
}

func (p *Pipeline) publisherConfigs() ([]publishers.PublisherConfig, error) {
	if strings.TrimSpace(p.cfg.PublishersFile) == "" {
		return []publishers.PublisherConfig{publishers.DefaultFileConfig(p.cfg.OutputFile)}, nil
	}
	reg, err := publishers.LoadRegistry(p.cfg.PublishersFile)
	if err != nil {
		return nil, fmt.Errorf("load publishers: %w", err)
	}
	return reg.Enabled(), nil
}

// ClearCache removes the discovery cache directory. It reports whether a cache existed.
func (p *Pipeline) ClearCache() (bool, error) {
	return fetchcache.Clear(p.cfg.Cache.Dir, p.log)
}
