// Package eodhd fetches end-of-day prices and FX rates from eodhd.com and
// writes them into a quote store.
package eodhd

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/mwestra/folio/date"
)

// APIKeyEnv is the environment variable holding the eodhd.com API key.
const APIKeyEnv = "EODHD_API_KEY"

// APIKeyFromEnv returns the API key from the environment, empty if unset.
func APIKeyFromEnv() string { return os.Getenv(APIKeyEnv) }

const defaultBaseURL = "https://eodhd.com/api"

// Client talks to the eodhd.com REST API. Responses are cached on disk and
// expire daily, so re-running an update within a day costs no quota.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a different API root. For tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient replaces the caching HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// New returns a Client with the daily-expiring disk cache installed.
func New(apiKey string, log zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		log:     log.With().Str("component", "eodhd").Logger(),
	}
	c.http = &http.Client{Transport: &diskCache{base: http.DefaultTransport, log: c.log}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// getJSON performs a GET and decodes the JSON response into data.
func (c *Client) getJSON(ctx context.Context, addr string, data any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s%s: %s", req.URL.Host, req.URL.Path, resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, data)
}

// diskCache caches HTTP responses on disk. The cache key includes today's
// date, so entries expire at midnight.
type diskCache struct {
	base http.RoundTripper
	log  zerolog.Logger
}

func (c *diskCache) RoundTrip(req *http.Request) (*http.Response, error) {
	key := fmt.Sprintf("%x", sha1.Sum([]byte(date.Today().String()+" "+req.Method+" "+req.URL.String())))
	file := filepath.Join(os.TempDir(), "eodhd-"+key)

	if content, err := os.ReadFile(file); err == nil {
		if resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(content)), req); err == nil {
			return resp, nil
		}
	}

	resp, err := c.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	c.log.Debug().Str("host", req.URL.Host).Str("path", req.URL.Path).Str("status", resp.Status).Msg("fetch")
	if resp.StatusCode >= 300 {
		return resp, nil
	}
	if content, err := httputil.DumpResponse(resp, true); err == nil {
		if err := os.WriteFile(file, content, 0o600); err != nil {
			c.log.Warn().Err(err).Msg("cache write failed, ignored")
		}
	}
	return resp, nil
}
