package publishers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/Adda-Baaj/broker-scraper/internal/domain"
	"github.com/Adda-Baaj/broker-scraper/internal/logger"
)

// Logger is the structured logger publishers report through.
type Logger = logger.Logger

func ensureLogger(log Logger) Logger {
	return logger.Ensure(log)
}

// Event wraps one scraped article for delivery downstream.
type Event struct {
	ID        string         `json:"id"`
	Site      string         `json:"site"`
	ScrapedAt time.Time      `json:"scraped_at"`
	Article   domain.Article `json:"article"`
}

// Publisher delivers events to a single sink.
type Publisher interface {
	ID() string
	Type() string
	Publish(ctx context.Context, evt Event) error
}

// BatchPublisher is implemented by sinks that deliver a whole run at once.
type BatchPublisher interface {
	Publisher
	PublishBatch(ctx context.Context, events []Event) error
}

// NewEvents wraps articles into events sharing one scrape timestamp.
func NewEvents(articles []domain.Article, scrapedAt time.Time) []Event {
	events := make([]Event, 0, len(articles))
	for _, a := range articles {
		events = append(events, Event{
			ID:        uuid.NewString(),
			Site:      siteOf(a.Link),
			ScrapedAt: scrapedAt.UTC(),
			Article:   a,
		})
	}
	return events
}

func siteOf(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func articlesOf(events []Event) []domain.Article {
	out := make([]domain.Article, 0, len(events))
	for _, evt := range events {
		out = append(out, evt.Article)
	}
	return out
}

// PublishAll fans events out to every publisher. A failing sink is logged and skipped; the joined
// failures are returned once all sinks have been tried.
func PublishAll(ctx context.Context, pubs []Publisher, events []Event, log Logger) error {
	log = ensureLogger(log)
	if len(events) == 0 || len(pubs) == 0 {
		return nil
	}

	var errs []error
	for _, pub := range pubs {
		if err := publishOne(ctx, pub, events); err != nil {
			log.ErrorObj("publisher failed", "publisher_error", map[string]any{
				"publisher": pub.ID(),
				"type":      pub.Type(),
				"error":     err.Error(),
			})
			errs = append(errs, fmt.Errorf("publisher %s: %w", pub.ID(), err))
			continue
		}
		log.InfoObj("publisher delivered events", "publisher_delivery", map[string]any{
			"publisher": pub.ID(),
			"type":      pub.Type(),
			"events":    len(events),
		})
	}
	return errors.Join(errs...)
}

func publishOne(ctx context.Context, pub Publisher, events []Event) error {
	if bp, ok := pub.(BatchPublisher); ok {
		return bp.PublishBatch(ctx, events)
	}

	failed := 0
	var firstErr error
	for _, evt := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := pub.Publish(ctx, evt); err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d events failed: %w", failed, len(events), firstErr)
	}
	return nil
}

// CloseAll releases publishers that hold connections.
func CloseAll(pubs []Publisher, log Logger) {
	log = ensureLogger(log)
	for _, pub := range pubs {
		c, ok := pub.(io.Closer)
		if !ok {
			continue
		}
		if err := c.Close(); err != nil {
			log.WarnObj("publisher close failed", "publisher_close_error", map[string]any{
				"publisher": pub.ID(),
				"error":     err.Error(),
			})
		}
	}
}
