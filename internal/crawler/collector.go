package crawler

import (
	"context"

	"github.com/Adda-Baaj/broker-scraper/internal/domain"
	"github.com/Adda-Baaj/broker-scraper/internal/logger"
)

// Collector walks sites one at a time and extracts up to a per-site quota of articles.
type Collector struct {
	discoverer LinkDiscoverer
	extractor  ArticleExtractor
	log        logger.Logger
}

// NewCollector wires a Collector from its discovery and extraction collaborators.
func NewCollector(discoverer LinkDiscoverer, extractor ArticleExtractor, log logger.Logger) *Collector {
	return &Collector{
		discoverer: discoverer,
		extractor:  extractor,
		log:        logger.Ensure(log),
	}
}

// Collect returns the extracted records in site order, then discovery order. A site whose discovery
// fails is skipped; an article whose extraction fails is skipped and does not count toward count.
// Extraction stops for a site once count records succeeded. A cancelled context ends the walk early
// and the records gathered so far are returned.
func (c *Collector) Collect(ctx context.Context, sites []string, count int) []domain.Article {
	records := make([]domain.Article, 0)
	if count <= 0 {
		c.log.WarnObj("per-site count is not positive, nothing to collect", "collect_skipped", map[string]any{
			"count": count,
		})
		return records
	}

	for _, site := range sites {
		if ctx.Err() != nil {
			break
		}

		refs, err := c.discoverer.Discover(ctx, site)
		if err != nil {
			c.log.ErrorObj("Error processing website", "site_error", map[string]any{
				"site":  site,
				"error": err.Error(),
			})
			continue
		}
		c.log.InfoObj("Links from "+site, "site_links", map[string]any{
			"site":  site,
			"links": len(refs),
		})

		taken := 0
		for _, ref := range refs {
			if taken >= count || ctx.Err() != nil {
				break
			}

			article, err := c.extractor.Extract(ctx, ref)
			if err != nil {
				c.log.WarnObj("Failed to process article", "article_error", map[string]any{
					"site":  site,
					"url":   ref.URL,
					"error": err.Error(),
				})
				continue
			}

			records = append(records, article)
			taken++
		}

		c.log.InfoObj("site collected", "collect_progress", map[string]any{
			"site":      site,
			"collected": taken,
			"total":     len(records),
		})
	}

	c.log.InfoObj("collection finished", "collect_done", map[string]any{
		"sites": len(sites),
		"total": len(records),
	})
	return records
}
