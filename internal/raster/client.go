package raster

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/greengrowth/internal/resilience"
)

// API paths relative to the backend base URL.
const (
	pathSessions  = "/v1/sessions"
	pathReduce    = "/v1/reduceRegion"
	pathMapReduce = "/v1/mapReduceRegion"
	pathSample    = "/v1/stratifiedSample"
	pathTiles     = "/v1/maps"
	pathExports   = "/v1/exports"
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client. Timeouts belong here: the gateway
// itself never cancels a running query.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithProject sets the cloud project the session is opened against. When
// empty the backend falls back to its default credentials.
func WithProject(project string) Option {
	return func(c *Client) {
		c.project = project
	}
}

// WithAPIKey sets the bearer token sent with every request.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
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
		burst := int(math.Max(1, rps))
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithRetry enables retries of transient backend failures. Clients make a
// single attempt by default.
func WithRetry(p resilience.Policy) Option {
	return func(c *Client) {
		c.retry = p
	}
}

// Client implements Gateway over the backend's JSON HTTP API. A Client is
// meant to be shared process-wide.
type Client struct {
	baseURL    string
	project    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      resilience.Policy

	mu          sync.Mutex
	initialized bool
	session     string
}

var _ Gateway = (*Client)(nil)

// NewClient creates a Client for the backend at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 120 * time.Second},
		limiter:    rate.NewLimiter(10, 10),
		retry:      resilience.NoRetry(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Init opens the backend session. It is safe to call from many goroutines:
// the first successful call opens the session and later calls are no-ops.
// A failed attempt leaves the client uninitialized so the next call tries
// again.
func (c *Client) Init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		return nil
	}

	var resp struct {
		Session string `json:"session"`
	}
	if err := c.do(ctx, pathSessions, map[string]string{"project": c.project}, &resp, ""); err != nil {
		zap.L().Error("raster: session init failed",
			zap.String("project", c.project),
			zap.Error(err),
		)
		return eris.Wrap(err, "raster: init session")
	}

	c.session = resp.Session
	c.initialized = true
	zap.L().Info("raster: session initialized", zap.String("project", c.project))
	return nil
}

// Initialized reports whether Init has completed successfully.
func (c *Client) Initialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialized
}

func (c *Client) call(ctx context.Context, path string, in, out any) error {
	if err := c.Init(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	return c.do(ctx, path, in, out, session)
}

func (c *Client) do(ctx context.Context, path string, in, out any, session string) error {
	body, err := json.Marshal(in)
	if err != nil {
		return eris.Wrapf(err, "raster: encode %s", path)
	}

	p := c.retry
	if p.OnRetry == nil {
		p.OnRetry = resilience.RetryLogger("raster", path)
	}
	respBody, err := resilience.DoVal(ctx, p, func(ctx context.Context) ([]byte, error) {
		return c.post(ctx, path, body, session)
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return eris.Wrapf(err, "raster: parse %s response", path)
	}
	return nil
}

// post sends one request. 429 and 5xx responses come back as transient
// errors.
func (c *Client) post(ctx context.Context, path string, body []byte, session string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "raster: rate limit")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrapf(err, "raster: build request %s", path)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if session != "" {
		req.Header.Set("X-Session", session)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "raster: request %s", path)
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrapf(err, "raster: read body %s", path)
	}

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("raster: %s returned status %d: %s", path, resp.StatusCode, truncate(string(respBody), 200))
		return nil, resilience.ForStatus(err, resp.StatusCode)
	}
	return respBody, nil
}

// ReduceRegion implements Gateway.
func (c *Client) ReduceRegion(ctx context.Context, req ReduceRequest) (map[string]*float64, error) {
	if req.MaxPixels == 0 {
		req.MaxPixels = DefaultMaxPixels
	}
	var resp struct {
		Values map[string]*float64 `json:"values"`
	}
	if err := c.call(ctx, pathReduce, req, &resp); err != nil {
		return nil, err
	}
	if resp.Values == nil {
		resp.Values = map[string]*float64{}
	}
	return resp.Values, nil
}

// MapReduceRegion implements Gateway.
func (c *Client) MapReduceRegion(ctx context.Context, req MapReduceRequest) ([]DatedValue, error) {
	if req.MaxPixels == 0 {
		req.MaxPixels = DefaultMaxPixels
	}
	var resp struct {
		Features []struct {
			Properties struct {
				Date  string   `json:"date"`
				Value *float64 `json:"value"`
			} `json:"properties"`
		} `json:"features"`
	}
	if err := c.call(ctx, pathMapReduce, req, &resp); err != nil {
		return nil, err
	}

	out := make([]DatedValue, 0, len(resp.Features))
	for _, f := range resp.Features {
		out = append(out, DatedValue{Date: f.Properties.Date, Value: f.Properties.Value})
	}
	return out, nil
}

type sampleFeature struct {
	Geometry   *geojson.Geometry `json:"geometry"`
	Properties map[string]any    `json:"properties"`
}

// StratifiedSample implements Gateway. Features without a point geometry are
// skipped.
func (c *Client) StratifiedSample(ctx context.Context, req SampleRequest) ([]Sample, error) {
	var resp struct {
		Features []sampleFeature `json:"features"`
	}
	if err := c.call(ctx, pathSample, req, &resp); err != nil {
		return nil, err
	}

	out := make([]Sample, 0, len(resp.Features))
	for _, f := range resp.Features {
		s, ok := toSample(f, req.ClassBand)
		if !ok {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func toSample(f sampleFeature, classBand string) (Sample, bool) {
	if f.Geometry == nil {
		return Sample{}, false
	}
	g, err := f.Geometry.Decode()
	if err != nil {
		zap.L().Debug("raster: skip undecodable sample geometry", zap.Error(err))
		return Sample{}, false
	}
	pt, ok := g.(*geom.Point)
	if !ok || pt.Empty() {
		return Sample{}, false
	}

	s := Sample{Lat: pt.Y(), Lng: pt.X()}
	if v, ok := f.Properties[classBand].(float64); ok {
		class := int(v)
		s.Class = &class
	}
	return s, true
}

// TileURL implements Gateway.
func (c *Client) TileURL(ctx context.Context, req TileRequest) (string, error) {
	var resp struct {
		MapID     string `json:"map_id"`
		URLFormat string `json:"url_format"`
	}
	if err := c.call(ctx, pathTiles, req, &resp); err != nil {
		return "", err
	}
	if resp.URLFormat == "" {
		return "", eris.Errorf("raster: map %q has no url format", resp.MapID)
	}
	return resp.URLFormat, nil
}

// SubmitExport implements Gateway.
func (c *Client) SubmitExport(ctx context.Context, req ExportRequest) (*ExportTask, error) {
	var task ExportTask
	if err := c.call(ctx, pathExports, req, &task); err != nil {
		return nil, err
	}
	if task.ID == "" {
		return nil, eris.New("raster: export accepted without a task id")
	}
	return &task, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
