package raster

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/sells-group/greengrowth/internal/resilience"
)

func newTestClient(t *testing.T, mux *http.ServeMux) (*Client, *atomic.Int32) {
	t.Helper()

	var sessions atomic.Int32
	mux.HandleFunc(pathSessions, func(w http.ResponseWriter, r *http.Request) {
		sessions.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"session":"sess-1"}`)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL+"/", WithProject("demo-project"), WithAPIKey("k"))
	c.limiter = rate.NewLimiter(rate.Inf, 1)
	return c, &sessions
}

func testRegion(t *testing.T) Region {
	t.Helper()
	r, err := NewRegion(40.7128, -74.0060, 8046)
	require.NoError(t, err)
	return r
}

func TestNewRegion_Validation(t *testing.T) {
	_, err := NewRegion(91, 0, 100)
	assert.Error(t, err)
	_, err = NewRegion(0, -181, 100)
	assert.Error(t, err)
	_, err = NewRegion(0, 0, 0)
	assert.Error(t, err)

	r, err := NewRegion(33.7, -84.4, 8046)
	require.NoError(t, err)
	assert.InDelta(t, -84.4, r.Center().X(), 1e-9)
	assert.InDelta(t, 33.7, r.Center().Y(), 1e-9)
}

func TestRegion_MarshalJSON(t *testing.T) {
	b, err := json.Marshal(testRegion(t))
	require.NoError(t, err)

	var got struct {
		Geometry struct {
			Type        string    `json:"type"`
			Coordinates []float64 `json:"coordinates"`
		} `json:"geometry"`
		BufferM float64 `json:"buffer_m"`
	}
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, "Point", got.Geometry.Type)
	assert.Equal(t, []float64{-74.0060, 40.7128}, got.Geometry.Coordinates)
	assert.Equal(t, 8046.0, got.BufferM)
}

func TestWindow(t *testing.T) {
	now := time.Date(2025, 4, 15, 12, 0, 0, 0, time.UTC)
	w := TrailingDays(now, 30)
	assert.Equal(t, time.Date(2025, 3, 16, 12, 0, 0, 0, time.UTC), w.Start)
	assert.True(t, w.Contains(w.Start))
	assert.False(t, w.Contains(now))

	m := TrailingMonths(now, 6)
	assert.Equal(t, time.Date(2024, 10, 15, 12, 0, 0, 0, time.UTC), m.Start)
}

func TestCollection_BuildersDoNotMutate(t *testing.T) {
	r := testRegion(t)
	base := NewCollection("COPERNICUS/S2_SR_HARMONIZED")
	filtered := base.FilterBounds(r).FilterLessThan("CLOUDY_PIXEL_PERCENTAGE", 30)
	other := filtered.FilterLessThan("CLOUDY_PIXEL_PERCENTAGE", 10)

	assert.Empty(t, base.Filters)
	assert.Len(t, filtered.Filters, 2)
	assert.Len(t, other.Filters, 3)
	assert.Equal(t, 30.0, *filtered.Filters[1].Value)
}

func TestImage_ExpressionJSON(t *testing.T) {
	r := testRegion(t)
	img := NewCollection("S2").Median().NormalizedDifference("B8", "B4").Rename("NDVI").Clip(r)

	b, err := json.Marshal(img)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, OpClip, got["op"])
	rename := got["inputs"].([]any)[0].(map[string]any)
	assert.Equal(t, OpRename, rename["op"])
	assert.Equal(t, "NDVI", rename["args"].(map[string]any)["name"])
}

func TestClient_ReduceRegion(t *testing.T) {
	mux := http.NewServeMux()
	var gotSession, gotAuth string
	var gotReq ReduceRequest
	mux.HandleFunc(pathReduce, func(w http.ResponseWriter, r *http.Request) {
		gotSession = r.Header.Get("X-Session")
		gotAuth = r.Header.Get("Authorization")
		var raw map[string]any
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &raw)
		gotReq.Reducer = Reducer(raw["reducer"].(string))
		gotReq.MaxPixels = raw["max_pixels"].(float64)
		_, _ = io.WriteString(w, `{"values":{"NDVI":0.42,"other":null}}`)
	})
	c, sessions := newTestClient(t, mux)

	vals, err := c.ReduceRegion(context.Background(), ReduceRequest{
		Image:   NewCollection("S2").Median(),
		Reducer: ReducerMean,
		Region:  testRegion(t),
		ScaleM:  500,
	})
	require.NoError(t, err)
	require.NotNil(t, vals["NDVI"])
	assert.InDelta(t, 0.42, *vals["NDVI"], 1e-9)
	assert.Nil(t, vals["other"])
	assert.Equal(t, "sess-1", gotSession)
	assert.Equal(t, "Bearer k", gotAuth)
	assert.Equal(t, ReducerMean, gotReq.Reducer)
	assert.Equal(t, DefaultMaxPixels, gotReq.MaxPixels)
	assert.Equal(t, int32(1), sessions.Load())
	assert.True(t, c.Initialized())
}

func TestClient_ReduceRegion_EmptyValues(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(pathReduce, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{}`)
	})
	c, _ := newTestClient(t, mux)

	vals, err := c.ReduceRegion(context.Background(), ReduceRequest{Region: testRegion(t)})
	require.NoError(t, err)
	assert.NotNil(t, vals)
	assert.Empty(t, vals)
}

func TestClient_BackendError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(pathReduce, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":"Computation timed out."}`)
	})
	c, _ := newTestClient(t, mux)

	_, err := c.ReduceRegion(context.Background(), ReduceRequest{Region: testRegion(t)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.Contains(t, err.Error(), "Computation timed out")
}

func TestClient_MapReduceRegion(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(pathMapReduce, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"type":"FeatureCollection","features":[
			{"type":"Feature","geometry":null,"properties":{"date":"2025-02-10","value":0.21}},
			{"type":"Feature","geometry":null,"properties":{"date":"2025-01-05","value":null}}
		]}`)
	})
	c, _ := newTestClient(t, mux)

	got, err := c.MapReduceRegion(context.Background(), MapReduceRequest{
		Collection: NewCollection("S2"),
		Image:      Each().NormalizedDifference("B8", "B4"),
		Band:       "NDVI",
		Reducer:    ReducerMean,
		Region:     testRegion(t),
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2025-02-10", got[0].Date)
	assert.InDelta(t, 0.21, *got[0].Value, 1e-9)
	assert.Nil(t, got[1].Value)
}

func TestClient_StratifiedSample(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(pathSample, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"type":"FeatureCollection","features":[
			{"type":"Feature","geometry":{"type":"Point","coordinates":[-74.01,40.71]},"properties":{"class":1}},
			{"type":"Feature","geometry":{"type":"Point","coordinates":[-74.02,40.72]},"properties":{"class":0}},
			{"type":"Feature","geometry":null,"properties":{"class":1}},
			{"type":"Feature","geometry":{"type":"Point","coordinates":[-74.03,40.73]},"properties":{}}
		]}`)
	})
	c, _ := newTestClient(t, mux)

	got, err := c.StratifiedSample(context.Background(), SampleRequest{
		ClassBand: "class",
		NumPoints: 15,
		Region:    testRegion(t),
		ScaleM:    250,
	})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.InDelta(t, 40.71, got[0].Lat, 1e-9)
	assert.InDelta(t, -74.01, got[0].Lng, 1e-9)
	require.NotNil(t, got[0].Class)
	assert.Equal(t, 1, *got[0].Class)
	assert.Equal(t, 0, *got[1].Class)
	assert.Nil(t, got[2].Class)
}

func TestClient_TileURL(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(pathTiles, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var raw map[string]any
		_ = json.Unmarshal(body, &raw)
		vis := raw["vis"].(map[string]any)
		if vis["palette"] == nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = io.WriteString(w, `{"map_id":"m1","url_format":"https://tiles.example/m1/{z}/{x}/{y}"}`)
	})
	c, _ := newTestClient(t, mux)

	lo, hi := 0.0, 1.0
	url, err := c.TileURL(context.Background(), TileRequest{
		Vis: Visualization{Min: &lo, Max: &hi, Palette: []string{"white", "green"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "https://tiles.example/m1/{z}/{x}/{y}", url)
}

func TestClient_TileURL_MissingFormat(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(pathTiles, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"map_id":"m1"}`)
	})
	c, _ := newTestClient(t, mux)

	_, err := c.TileURL(context.Background(), TileRequest{})
	assert.Error(t, err)
}

func TestClient_SubmitExport(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(pathExports, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"task_id":"T-123","state":"READY"}`)
	})
	c, _ := newTestClient(t, mux)

	task, err := c.SubmitExport(context.Background(), ExportRequest{Description: "ndvi_history"})
	require.NoError(t, err)
	assert.Equal(t, "T-123", task.ID)
	assert.Equal(t, "READY", task.State)
}

func TestClient_InitOnceUnderConcurrency(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(pathReduce, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"values":{"NDVI":0.1}}`)
	})
	c, sessions := newTestClient(t, mux)
	region := testRegion(t)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.ReduceRegion(context.Background(), ReduceRequest{Region: region})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), sessions.Load())
}

func TestClient_InitRetriesAfterFailure(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != pathSessions {
			http.NotFound(w, r)
			return
		}
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"session":"s2"}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithRetry(resilience.NoRetry()))
	c.limiter = rate.NewLimiter(rate.Inf, 1)

	err := c.Init(context.Background())
	require.Error(t, err)
	assert.False(t, c.Initialized())

	require.NoError(t, c.Init(context.Background()))
	assert.True(t, c.Initialized())
	require.NoError(t, c.Init(context.Background()))
	assert.Equal(t, int32(2), attempts.Load())
}

func TestClient_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc(pathReduce, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = io.WriteString(w, `{"values":{"NDVI":0.31}}`)
	})
	c, _ := newTestClient(t, mux)
	c.retry = resilience.Policy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}

	vals, err := c.ReduceRegion(context.Background(), ReduceRequest{
		Image:   NewCollection("S2").Median(),
		Reducer: ReducerMean,
		Region:  testRegion(t),
		ScaleM:  500,
	})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	require.NotNil(t, vals["NDVI"])
	assert.InDelta(t, 0.31, *vals["NDVI"], 1e-9)
}

func TestClient_DoesNotRetryClientError(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc(pathExports, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	})
	c, _ := newTestClient(t, mux)

	_, err := c.SubmitExport(context.Background(), ExportRequest{Description: "x", Region: testRegion(t)})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_SingleAttemptByDefault(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc(pathReduce, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"values":{"NDVI":0.5}}`)
	})
	c, _ := newTestClient(t, mux)

	_, err := c.ReduceRegion(context.Background(), ReduceRequest{
		Image:   NewCollection("S2").Median(),
		Reducer: ReducerMean,
		Region:  testRegion(t),
		ScaleM:  500,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
	assert.Equal(t, int32(1), calls.Load())
}

func TestWithRateLimit_NonPositiveIsUnlimited(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(pathReduce, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"values":{"NDVI":0.5}}`)
	})
	c, _ := newTestClient(t, mux)
	WithRateLimit(0)(c)
	assert.Equal(t, rate.Inf, c.limiter.Limit())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for range 3 {
		_, err := c.ReduceRegion(ctx, ReduceRequest{Region: testRegion(t)})
		require.NoError(t, err)
	}
}
