package publishers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Adda-Baaj/broker-scraper/pkg/httpclient"
)

// httpPublisher posts events as JSON to a generic webhook.
type httpPublisher struct {
	id      string
	url     string
	method  string
	headers map[string]string
	client  httpclient.Client
	log     Logger
}

// newHTTPPublisher builds an HTTP sink from config.
func newHTTPPublisher(_ context.Context, cfg PublisherConfig, log Logger) (Publisher, error) {
	if cfg.HTTP == nil {
		return nil, fmt.Errorf("publisher %q missing http configuration", cfg.ID)
	}

	headers := map[string]string{"Content-Type": "application/json"}
	for k, v := range cfg.HTTP.Headers {
		headers[k] = v
	}

	return &httpPublisher{
		id:      cfg.ID,
		url:     cfg.HTTP.URL,
		method:  cfg.HTTP.Method,
		headers: headers,
		client:  httpclient.NewRestyClient(time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second),
		log:     ensureLogger(log),
	}, nil
}

func (p *httpPublisher) ID() string   { return p.id }
func (p *httpPublisher) Type() string { return TypeHTTP }

// Publish sends a single event.
func (p *httpPublisher) Publish(ctx context.Context, evt Event) error {
	return p.send(ctx, evt, 1)
}

// PublishBatch sends the whole run as one JSON array.
func (p *httpPublisher) PublishBatch(ctx context.Context, events []Event) error {
	return p.send(ctx, events, len(events))
}

func (p *httpPublisher) send(ctx context.Context, payload any, count int) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal events: %w", err)
	}

	resp, err := p.client.Send(ctx, p.method, p.url, p.headers, body)
	if err != nil {
		return fmt.Errorf("http publish: %w", err)
	}
	if !httpclient.IsSuccess(resp) {
		return fmt.Errorf("http publish returned status %d body: %s", resp.StatusCode(), httpclient.Snippet(resp.Body()))
	}

	p.log.DebugObj("http publisher delivered events", "publisher_http_delivery", map[string]any{
		"url":    p.url,
		"status": resp.StatusCode(),
		"events": count,
	})
	return nil
}
