package crawler

import (
	"context"

	"github.com/Adda-Baaj/broker-scraper/internal/domain"
)

// LinkDiscoverer enumerates candidate article links for a site.
type LinkDiscoverer interface {
	Discover(ctx context.Context, siteURL string) ([]domain.ArticleRef, error)
}

// ArticleExtractor downloads and parses a single article.
type ArticleExtractor interface {
	Extract(ctx context.Context, ref domain.ArticleRef) (domain.Article, error)
}
