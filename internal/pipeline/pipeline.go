// Package pipeline composes index computation, classification and location
// enrichment into the public store analyses.
package pipeline

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/greengrowth/internal/advisor"
	"github.com/sells-group/greengrowth/internal/datacommons"
	"github.com/sells-group/greengrowth/internal/indices"
	"github.com/sells-group/greengrowth/internal/raster"
	"github.com/sells-group/greengrowth/internal/signal"
	"github.com/sells-group/greengrowth/internal/store"
)

// ExtractionStatus is reported when an export job is accepted.
const ExtractionStatus = "Job submitted to Earth Engine batch pool"

// IndexComputer computes raster metrics for a region.
type IndexComputer interface {
	Region(lat, lng float64) (raster.Region, error)
	RecentVegetation(ctx context.Context, region raster.Region) (*indices.VegetationResult, error)
	NewConstruction(ctx context.Context, region raster.Region) (*indices.ConstructionResult, error)
	History(ctx context.Context, region raster.Region) ([]indices.HistoryPoint, error)
	ExportHistory(ctx context.Context, region raster.Region, description string) (*raster.ExportTask, error)
}

// ContextResolver returns location context for a coordinate and never fails.
type ContextResolver interface {
	LocationContext(ctx context.Context, lat, lng float64) datacommons.LocationContext
}

// ActionWriter writes stocking actions and never fails.
type ActionWriter interface {
	StockingAction(ctx context.Context, req advisor.ActionRequest) string
}

// Analysis is a classified signal for a store plus its location context.
type Analysis struct {
	signal.Signal
	LocationContext   datacommons.LocationContext `json:"location_context"`
	ThresholdsVersion string                      `json:"thresholds_version,omitempty"`
}

// ExtractionAck acknowledges a submitted export job.
type ExtractionAck struct {
	Status string `json:"status"`
	TaskID string `json:"task_id"`
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithInlineActions makes analyses fill stocking_action with the advisor
// instead of leaving it null for a separate request.
func WithInlineActions(enabled bool) Option {
	return func(p *Pipeline) {
		p.inlineActions = enabled
	}
}

// Pipeline runs analyses for stores.
type Pipeline struct {
	indices       IndexComputer
	resolver      ContextResolver
	advisor       ActionWriter
	th            signal.Thresholds
	inlineActions bool
}

// New creates a Pipeline.
func New(ix IndexComputer, resolver ContextResolver, writer ActionWriter, th signal.Thresholds, opts ...Option) *Pipeline {
	p := &Pipeline{
		indices:  ix,
		resolver: resolver,
		advisor:  writer,
		th:       th,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AnalyzeSeasonal classifies recent vegetation around the store, then looks
// up its location context. Raster failures are returned and skip the lookup;
// enrichment failures leave an empty context.
func (p *Pipeline) AnalyzeSeasonal(ctx context.Context, st store.Store) (*Analysis, error) {
	return p.analyze(ctx, st, signal.KindSeasonal, func(ctx context.Context, region raster.Region) (signal.Signal, error) {
		veg, err := p.indices.RecentVegetation(ctx, region)
		if err != nil {
			return signal.Signal{}, err
		}
		return signal.ClassifySeasonal(p.th, veg.NDVI, veg.TileURL, veg.Points), nil
	})
}

// AnalyzeGrowth classifies new construction around the store between the
// two comparison windows.
func (p *Pipeline) AnalyzeGrowth(ctx context.Context, st store.Store) (*Analysis, error) {
	return p.analyze(ctx, st, signal.KindGrowth, func(ctx context.Context, region raster.Region) (signal.Signal, error) {
		built, err := p.indices.NewConstruction(ctx, region)
		if err != nil {
			return signal.Signal{}, err
		}
		return signal.ClassifyGrowth(p.th, built.Hectares, built.TileURL), nil
	})
}

type classifyFunc func(ctx context.Context, region raster.Region) (signal.Signal, error)

func (p *Pipeline) analyze(ctx context.Context, st store.Store, kind signal.Kind, classify classifyFunc) (*Analysis, error) {
	log := zap.L().With(
		zap.String("store_id", st.ID),
		zap.String("store", st.Name),
		zap.String("analysis", string(kind)),
	)
	log.Info("pipeline: analyzing")

	region, err := p.indices.Region(st.Lat, st.Lng)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: %s region", kind)
	}

	sig, err := classify(ctx, region)
	if err != nil {
		err = eris.Wrapf(err, "pipeline: %s analysis for store %s", kind, st.ID)
		log.Error("pipeline: analysis failed", zap.Error(err))
		return nil, err
	}

	// Enrichment runs only once the primary result exists.
	locCtx := p.locationContext(ctx, st)

	if p.inlineActions {
		sig = sig.WithStockingAction(p.GenerateStockingAction(ctx, advisor.ActionRequest{
			StoreName:       st.Name,
			SignalType:      string(sig.Type),
			Metric:          sig.Metric,
			MarketSignal:    sig.MarketSignal,
			ActionCategory:  sig.ActionCategory(),
			LocationContext: locCtx,
		}))
	}

	log.Info("pipeline: analysis complete",
		zap.String("intensity", string(sig.Intensity)),
		zap.String("metric", sig.Metric),
		zap.Int("geo_points", len(sig.GeoPoints)),
	)

	return &Analysis{
		Signal:            sig,
		LocationContext:   locCtx,
		ThresholdsVersion: p.th.Version,
	}, nil
}

// History returns the store's NDVI series. No classification or enrichment.
func (p *Pipeline) History(ctx context.Context, st store.Store) ([]indices.HistoryPoint, error) {
	region, err := p.indices.Region(st.Lat, st.Lng)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: history region")
	}
	points, err := p.indices.History(ctx, region)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: history for store %s", st.ID)
	}
	return points, nil
}

// LocationContext returns enrichment for the store, empty on any failure.
func (p *Pipeline) LocationContext(ctx context.Context, st store.Store) datacommons.LocationContext {
	return p.locationContext(ctx, st)
}

func (p *Pipeline) locationContext(ctx context.Context, st store.Store) datacommons.LocationContext {
	if p.resolver == nil {
		return datacommons.LocationContext{}
	}
	lc := p.resolver.LocationContext(ctx, st.Lat, st.Lng)
	if lc == nil {
		return datacommons.LocationContext{}
	}
	return lc
}

// GenerateStockingAction writes a recommendation for a signal. The action
// category is derived from the market signal when not given.
func (p *Pipeline) GenerateStockingAction(ctx context.Context, req advisor.ActionRequest) string {
	if req.ActionCategory == "" {
		req.ActionCategory = signal.ActionCategoryFor(req.MarketSignal)
	}
	if p.advisor == nil {
		return advisor.FallbackAction
	}
	return p.advisor.StockingAction(ctx, req)
}

// TriggerExtraction submits the store's NDVI history export to the backend
// batch pool.
func (p *Pipeline) TriggerExtraction(ctx context.Context, st store.Store) (*ExtractionAck, error) {
	region, err := p.indices.Region(st.Lat, st.Lng)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: extraction region")
	}

	task, err := p.indices.ExportHistory(ctx, region, exportDescription(st))
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: extraction for store %s", st.ID)
	}

	zap.L().Info("pipeline: extraction submitted",
		zap.String("store_id", st.ID),
		zap.String("task_id", task.ID),
	)
	return &ExtractionAck{Status: ExtractionStatus, TaskID: task.ID}, nil
}

func exportDescription(st store.Store) string {
	id := st.ID
	if id == "" {
		id = fmt.Sprintf("%.4f_%.4f", st.Lat, st.Lng)
	}
	return "ndvi_history_" + id
}
