// Package datacommons resolves coordinates to Data Commons places and pulls
// socio-economic statistics for them.
package datacommons

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/greengrowth/internal/resilience"
)

const (
	defaultBaseURL = "https://api.datacommons.org"

	// coordinateProperty resolves a "lat#lng" node to the places containing it.
	coordinateProperty = "<-geoCoordinate->dcid"
)

// ErrNoAPIKey is returned by Client calls when no key is configured.
var ErrNoAPIKey = eris.New("datacommons: api key not configured")

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second limit. A non-positive rate
// disables throttling.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), int(math.Max(1, rps)))
	}
}

// WithRetry enables retries of transient failures. Clients make a single
// attempt by default.
func WithRetry(p resilience.Policy) Option {
	return func(c *Client) {
		c.retry = p
	}
}

// Client calls the Data Commons REST v2 API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      resilience.Policy
}

var _ API = (*Client)(nil)

// NewClient creates a Client. An empty key yields a client whose calls fail
// with ErrNoAPIKey.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    rate.NewLimiter(5, 5),
		retry:      resilience.NoRetry(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HasKey reports whether an API key is configured.
func (c *Client) HasKey() bool {
	return c.apiKey != ""
}

// Resolve returns the raw resolve response for a coordinate.
func (c *Client) Resolve(ctx context.Context, lat, lng float64) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("nodes", fmt.Sprintf("%g#%g", lat, lng))
	q.Set("property", coordinateProperty)

	return c.do(ctx, http.MethodGet, "/v2/resolve?"+q.Encode(), nil)
}

type observationRequest struct {
	Date     string   `json:"date"`
	Variable dcidList `json:"variable"`
	Entity   dcidList `json:"entity"`
	Select   []string `json:"select"`
}

type dcidList struct {
	DCIDs []string `json:"dcids"`
}

// Observations returns the raw latest-observation response for every
// variable and entity in a single call.
func (c *Client) Observations(ctx context.Context, variables, entities []string) (json.RawMessage, error) {
	body := observationRequest{
		Date:     "LATEST",
		Variable: dcidList{DCIDs: variables},
		Entity:   dcidList{DCIDs: entities},
		Select:   []string{"entity", "variable", "value", "date"},
	}
	return c.do(ctx, http.MethodPost, "/v2/observation", body)
}

func (c *Client) do(ctx context.Context, method, path string, in any) (json.RawMessage, error) {
	if !c.HasKey() {
		return nil, ErrNoAPIKey
	}

	var payload []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, eris.Wrap(err, "datacommons: encode request")
		}
		payload = b
	}

	endpoint := strings.SplitN(path, "?", 2)[0]
	p := c.retry
	if p.OnRetry == nil {
		p.OnRetry = resilience.RetryLogger("datacommons", endpoint)
	}
	return resilience.DoVal(ctx, p, func(ctx context.Context) (json.RawMessage, error) {
		return c.send(ctx, method, path, endpoint, payload)
	})
}

func (c *Client) send(ctx context.Context, method, path, endpoint string, payload []byte) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "datacommons: rate limit")
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, eris.Wrap(err, "datacommons: create request")
	}
	req.Header.Set("X-API-Key", c.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "datacommons: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "datacommons: read body")
	}
	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("datacommons: %s returned status %d", endpoint, resp.StatusCode)
		return nil, resilience.ForStatus(err, resp.StatusCode)
	}
	if !json.Valid(body) {
		return nil, eris.New("datacommons: response is not valid json")
	}
	return body, nil
}
