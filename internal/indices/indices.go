// Package indices turns raster backend queries into the scalar metrics the
// classifier consumes: regional NDVI, newly built area and NDVI history.
package indices

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/greengrowth/internal/raster"
	"github.com/sells-group/greengrowth/internal/signal"
)

// Catalog collections and bands.
const (
	CollectionSentinel2    = "COPERNICUS/S2_SR_HARMONIZED"
	CollectionDynamicWorld = "GOOGLE/DYNAMICWORLD/V1"

	PropertyCloudyPct = "CLOUDY_PIXEL_PERCENTAGE"

	BandNIR   = "B8"
	BandRed   = "B4"
	BandNDVI  = "NDVI"
	BandBuilt = "built"
	BandLabel = "label"
	BandClass = "class"

	historyDateFormat = "YYYY-MM-dd"
)

// Tile palettes.
var (
	PaletteVegetation   = []string{"white", "green"}
	PaletteConstruction = []string{"#FF4500"}
)

// VegetationResult is the outcome of a recent-vegetation query. NDVI is nil
// when no cloud-free observation exists in the window.
type VegetationResult struct {
	NDVI    *float64
	TileURL *string
	Points  []signal.GeoPoint
}

// ConstructionResult is the outcome of a new-construction query.
type ConstructionResult struct {
	SquareMeters float64
	Hectares     float64
	TileURL      *string
}

// Option configures a Computer.
type Option func(*Computer)

// WithClock overrides the clock used for trailing windows.
func WithClock(now func() time.Time) Option {
	return func(c *Computer) {
		c.now = now
	}
}

// Computer issues index queries against a raster gateway.
type Computer struct {
	gw  raster.Gateway
	th  signal.Thresholds
	now func() time.Time
}

// NewComputer creates a Computer bound to a thresholds profile.
func NewComputer(gw raster.Gateway, th signal.Thresholds, opts ...Option) *Computer {
	c := &Computer{
		gw:  gw,
		th:  th,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Thresholds returns the profile the Computer was built with.
func (c *Computer) Thresholds() signal.Thresholds {
	return c.th
}

// Region builds the analysis region around a coordinate.
func (c *Computer) Region(lat, lng float64) (raster.Region, error) {
	return raster.NewRegion(lat, lng, c.th.RadiusM)
}

func (c *Computer) sentinel(region raster.Region, w raster.Window) raster.Collection {
	return raster.NewCollection(CollectionSentinel2).
		FilterBounds(region).
		FilterDate(w).
		FilterLessThan(PropertyCloudyPct, c.th.CloudCeilingPct)
}

// RecentVegetation computes the mean NDVI over the trailing recent window,
// a clipped NDVI tile and, when the mean clears the medium breakpoint, a
// stratified sample of lawn pixels near built land.
func (c *Computer) RecentVegetation(ctx context.Context, region raster.Region) (*VegetationResult, error) {
	w := raster.TrailingDays(c.now(), c.th.RecentDays)

	ndvi := c.sentinel(region, w).Median().
		NormalizedDifference(BandNIR, BandRed).
		Rename(BandNDVI)

	stats, err := c.gw.ReduceRegion(ctx, raster.ReduceRequest{
		Image:   ndvi,
		Reducer: raster.ReducerMean,
		Region:  region,
		ScaleM:  c.th.IndexScaleM,
	})
	if err != nil {
		return nil, eris.Wrap(err, "indices: reduce ndvi")
	}

	res := &VegetationResult{
		NDVI:   stats[BandNDVI],
		Points: []signal.GeoPoint{},
	}

	lo, hi := 0.0, 1.0
	tile, err := c.gw.TileURL(ctx, raster.TileRequest{
		Image: ndvi.Clip(region),
		Vis:   raster.Visualization{Min: &lo, Max: &hi, Palette: PaletteVegetation},
	})
	if err != nil {
		return nil, eris.Wrap(err, "indices: ndvi tile")
	}
	res.TileURL = &tile

	if res.NDVI != nil && *res.NDVI > c.th.NDVIMedium {
		points, err := c.lawnPoints(ctx, region, w, ndvi)
		if err != nil {
			return nil, err
		}
		res.Points = points
	}

	zap.L().Debug("indices: recent vegetation",
		zap.Any("ndvi", res.NDVI),
		zap.Int("points", len(res.Points)),
	)
	return res, nil
}

// lawnPoints samples pixels that are green and within the dilation radius of
// built land, keeping only the positive class.
func (c *Computer) lawnPoints(ctx context.Context, region raster.Region, w raster.Window, ndvi raster.Image) ([]signal.GeoPoint, error) {
	built := raster.NewCollection(CollectionDynamicWorld).
		FilterBounds(region).
		FilterDate(w).
		Median().
		Select(BandBuilt).
		Gt(c.th.BuiltProbability)

	nearBuilt := built.FocalMax(c.th.DilationPixels)
	lawn := ndvi.Gt(c.th.LawnNDVI).And(nearBuilt.Eq(1)).Rename(BandClass)

	samples, err := c.gw.StratifiedSample(ctx, raster.SampleRequest{
		Image:     lawn,
		ClassBand: BandClass,
		NumPoints: c.th.SampleCount,
		Region:    region,
		ScaleM:    c.th.SampleScaleM,
	})
	if err != nil {
		return nil, eris.Wrap(err, "indices: sample lawn pixels")
	}

	points := make([]signal.GeoPoint, 0, len(samples))
	for _, s := range samples {
		if s.Class == nil || *s.Class != 1 {
			continue
		}
		points = append(points, signal.GeoPoint{Lat: s.Lat, Lng: s.Lng})
	}
	return points, nil
}

func (c *Computer) builtMask(region raster.Region, dw signal.DateWindow) (raster.Image, error) {
	start, end, err := dw.Bounds()
	if err != nil {
		return raster.Image{}, err
	}
	return raster.NewCollection(CollectionDynamicWorld).
		FilterBounds(region).
		FilterDate(raster.Window{Start: start, End: end}).
		Select(BandLabel).
		Mode().
		Eq(float64(c.th.BuiltLabel)), nil
}

// NewConstruction measures land classified as built in the current window
// but not in the past window. A tile of the new pixels is requested only when
// the area reaches the medium breakpoint.
func (c *Computer) NewConstruction(ctx context.Context, region raster.Region) (*ConstructionResult, error) {
	then, err := c.builtMask(region, c.th.PastWindow)
	if err != nil {
		return nil, eris.Wrap(err, "indices: past window")
	}
	now, err := c.builtMask(region, c.th.CurrentWindow)
	if err != nil {
		return nil, eris.Wrap(err, "indices: current window")
	}

	fresh := now.GtImage(then).Rename(BandClass).Clip(region)

	stats, err := c.gw.ReduceRegion(ctx, raster.ReduceRequest{
		Image:   fresh.Multiply(raster.PixelArea()),
		Reducer: raster.ReducerSum,
		Region:  region,
		ScaleM:  c.th.AreaScaleM,
	})
	if err != nil {
		return nil, eris.Wrap(err, "indices: reduce built area")
	}

	res := &ConstructionResult{}
	if v := stats[BandClass]; v != nil {
		res.SquareMeters = *v
		res.Hectares = signal.SquareMetersToHectares(*v)
	}

	if res.Hectares >= c.th.HectaresMedium {
		tile, err := c.gw.TileURL(ctx, raster.TileRequest{
			Image: fresh.UpdateMask(fresh),
			Vis:   raster.Visualization{Palette: PaletteConstruction},
		})
		if err != nil {
			return nil, eris.Wrap(err, "indices: construction tile")
		}
		res.TileURL = &tile
	}

	zap.L().Debug("indices: new construction",
		zap.Float64("hectares", res.Hectares),
		zap.Bool("tile", res.TileURL != nil),
	)
	return res, nil
}

// History returns the per-image NDVI series over the trailing history window.
func (c *Computer) History(ctx context.Context, region raster.Region) ([]HistoryPoint, error) {
	w := raster.TrailingMonths(c.now(), c.th.HistoryMonths)

	values, err := c.gw.MapReduceRegion(ctx, raster.MapReduceRequest{
		Collection: c.sentinel(region, w),
		Image:      raster.Each().NormalizedDifference(BandNIR, BandRed).Rename(BandNDVI),
		Band:       BandNDVI,
		Reducer:    raster.ReducerMean,
		Region:     region,
		ScaleM:     c.th.IndexScaleM,
		DateFormat: historyDateFormat,
	})
	if err != nil {
		return nil, eris.Wrap(err, "indices: ndvi history")
	}

	raw := make([]RawObservation, 0, len(values))
	for _, v := range values {
		raw = append(raw, RawObservation{Date: v.Date, NDVI: v.Value})
	}
	return BuildHistory(raw), nil
}

// ExportHistory submits the history table for the region to the backend
// batch pool.
func (c *Computer) ExportHistory(ctx context.Context, region raster.Region, description string) (*raster.ExportTask, error) {
	w := raster.TrailingMonths(c.now(), c.th.HistoryMonths)

	task, err := c.gw.SubmitExport(ctx, raster.ExportRequest{
		Description: description,
		Collection:  c.sentinel(region, w),
		Image:       raster.Each().NormalizedDifference(BandNIR, BandRed).Rename(BandNDVI),
		Band:        BandNDVI,
		Region:      region,
		ScaleM:      c.th.IndexScaleM,
		Destination: "table",
	})
	if err != nil {
		return nil, eris.Wrap(err, "indices: submit export")
	}
	return task, nil
}
