package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultUserAgent is a browser-like identity; several news sites reject obvious bots.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

// Response is the subset of a resty response the scraper reads.
type Response interface {
	StatusCode() int
	Body() []byte
}

// Client performs HTTP requests on behalf of discovery, extraction, resources and publishers.
type Client interface {
	Get(ctx context.Context, url string, headers map[string]string) (Response, error)
	Send(ctx context.Context, method, url string, headers map[string]string, body []byte) (Response, error)
}

type restyClient struct {
	rc *resty.Client
}

// NewRestyClient returns a Client backed by resty with the given per-request timeout.
func NewRestyClient(timeout time.Duration) Client {
	rc := resty.New().
		SetTimeout(timeout).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(10)).
		SetHeader("User-Agent", DefaultUserAgent)
	return &restyClient{rc: rc}
}

// Get issues a GET request with the provided headers.
func (c *restyClient) Get(ctx context.Context, url string, headers map[string]string) (Response, error) {
	return c.Send(ctx, http.MethodGet, url, headers, nil)
}

// Send issues a request with an optional body.
func (c *restyClient) Send(ctx context.Context, method, url string, headers map[string]string, body []byte) (Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	req := c.rc.R().SetContext(ctx).SetHeaders(headers)
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(strings.ToUpper(method), url)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", strings.ToUpper(method), url, err)
	}
	return resp, nil
}

// IsSuccess reports whether resp carries a 2xx status.
func IsSuccess(resp Response) bool {
	return resp != nil && resp.StatusCode() >= 200 && resp.StatusCode() < 300
}

// Snippet returns a trimmed, bounded excerpt of a response body for error messages.
func Snippet(body []byte) string {
	const maxLen = 512
	s := strings.TrimSpace(string(body))
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	if s == "" {
		return "<empty>"
	}
	return s
}

// Headers builds the request headers sent to news sites.
func Headers(userAgent, language string) map[string]string {
	headers := map[string]string{
		"Accept": "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	}
	if ua := strings.TrimSpace(userAgent); ua != "" {
		headers["User-Agent"] = ua
	}
	if lang := strings.TrimSpace(language); lang != "" {
		headers["Accept-Language"] = lang
	}
	return headers
}
