package upstream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aussiebroadwan/policygate/internal/gateway/domain"
)

const (
	defaultTimeout                 = 5 * time.Second
	defaultResponseBodyLimit int64 = 4 << 20 // 4 MiB
)

// HTTPDoer is satisfied by *http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client performs JSON GETs against the provider's base URL.
type Client struct {
	BaseURL              string
	HTTP                 HTTPDoer
	Timeout              time.Duration
	MaxResponseBodyBytes int64
	UserAgent            string
}

// NewClient parses baseURL and fills in defaults.
func NewClient(baseURL string, doer HTTPDoer, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("upstream: parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("upstream: base url %q must be absolute", baseURL)
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if doer == nil {
		doer = &http.Client{}
	}
	return &Client{
		BaseURL:              u.String(),
		HTTP:                 doer,
		Timeout:              timeout,
		MaxResponseBodyBytes: defaultResponseBodyLimit,
		UserAgent:            "policygate",
	}, nil
}

// Get fetches path (already escaped) with the given query and returns the
// body of a 2xx response. A 404 is ResourceNotFound. Every other failure,
// timeouts included, comes back as a plain error for the breaker to count.
func (c *Client) Get(ctx context.Context, path string, query url.Values, resource string) ([]byte, error) {
	target := c.BaseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("upstream: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	res, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream: GET %s: %w", target, err)
	}
	defer res.Body.Close()

	limit := c.MaxResponseBodyBytes
	if limit <= 0 {
		limit = defaultResponseBodyLimit
	}

	switch {
	case res.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, limit))
		return nil, domain.ErrResourceNotFound(resource)
	case res.StatusCode < 200 || res.StatusCode > 299:
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, limit))
		return nil, fmt.Errorf("upstream: GET %s: unexpected status %d", target, res.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("upstream: read body: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("upstream: response body exceeds limit of %d bytes", limit)
	}
	return body, nil
}
