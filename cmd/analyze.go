package main

import (
	"context"
	"encoding/json"
	"io"
	ossignal "os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/greengrowth/internal/pipeline"
	"github.com/sells-group/greengrowth/internal/store"
)

var (
	analyzeLat     float64
	analyzeLng     float64
	analyzeStoreID string
	batchLimit     int
	batchWorkers   int
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run signal analyses for a location or the store catalog",
}

// storeRunFunc runs one operation for a resolved store and returns the value
// printed as JSON.
type storeRunFunc func(ctx context.Context, p *pipeline.Pipeline, st store.Store) (any, error)

func newStoreCommand(use, short string, run storeRunFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := ossignal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			env, err := initEnv(ctx, "analyze")
			if err != nil {
				return err
			}
			defer env.Close()

			st, err := resolveTarget(ctx, env.Catalog, analyzeStoreID, analyzeLat, analyzeLng, cmd.Flags().Changed("lat") && cmd.Flags().Changed("lng"))
			if err != nil {
				return err
			}

			out, err := run(ctx, env.Pipeline, st)
			if err != nil {
				return err
			}
			return writeJSONTo(cmd.OutOrStdout(), out)
		},
	}
}

var analyzeSeasonalCmd = newStoreCommand("seasonal", "Classify recent vegetation around a store",
	func(ctx context.Context, p *pipeline.Pipeline, st store.Store) (any, error) {
		return p.AnalyzeSeasonal(ctx, st)
	})

var analyzeGrowthCmd = newStoreCommand("growth", "Classify new construction around a store",
	func(ctx context.Context, p *pipeline.Pipeline, st store.Store) (any, error) {
		return p.AnalyzeGrowth(ctx, st)
	})

var analyzeHistoryCmd = newStoreCommand("history", "Print the NDVI history around a store",
	func(ctx context.Context, p *pipeline.Pipeline, st store.Store) (any, error) {
		return p.History(ctx, st)
	})

var analyzeContextCmd = newStoreCommand("context", "Print demographic context for a store",
	func(ctx context.Context, p *pipeline.Pipeline, st store.Store) (any, error) {
		return p.LocationContext(ctx, st), nil
	})

var analyzeExtractCmd = newStoreCommand("extract", "Submit an NDVI history export job for a store",
	func(ctx context.Context, p *pipeline.Pipeline, st store.Store) (any, error) {
		return p.TriggerExtraction(ctx, st)
	})

var analyzeBatchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Analyze every catalog store and print JSON lines",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := ossignal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "analyze")
		if err != nil {
			return err
		}
		defer env.Close()

		stores, err := env.Catalog.List(ctx)
		if err != nil {
			return eris.Wrap(err, "list stores")
		}

		workers := batchWorkers
		if workers <= 0 {
			workers = cfg.Batch.MaxConcurrentStores
		}
		return processBatch(ctx, stores, batchLimit, workers, cmd.OutOrStdout(), analyzeBoth(env.Pipeline))
	},
}

func init() {
	for _, c := range []*cobra.Command{analyzeSeasonalCmd, analyzeGrowthCmd, analyzeHistoryCmd, analyzeContextCmd, analyzeExtractCmd} {
		c.Flags().Float64Var(&analyzeLat, "lat", 0, "latitude of the location")
		c.Flags().Float64Var(&analyzeLng, "lng", 0, "longitude of the location")
		c.Flags().StringVar(&analyzeStoreID, "store", "", "catalog store id")
		analyzeCmd.AddCommand(c)
	}

	analyzeBatchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max number of stores to analyze (0 = all)")
	analyzeBatchCmd.Flags().IntVar(&batchWorkers, "concurrency", 0, "concurrent stores (default from config)")
	analyzeCmd.AddCommand(analyzeBatchCmd)

	rootCmd.AddCommand(analyzeCmd)
}

// resolveTarget returns the catalog store for id, or an ad-hoc store at the
// given coordinates.
func resolveTarget(ctx context.Context, cat store.Catalog, id string, lat, lng float64, haveCoords bool) (store.Store, error) {
	if id != "" {
		st, err := cat.Get(ctx, id)
		if err != nil {
			return store.Store{}, eris.Wrapf(err, "lookup store %s", id)
		}
		return *st, nil
	}
	if !haveCoords {
		return store.Store{}, eris.New("either --store or both --lat and --lng are required")
	}
	st := store.Store{ID: "adhoc", Name: "Ad-hoc location", Lat: lat, Lng: lng}
	if err := st.Validate(); err != nil {
		return store.Store{}, err
	}
	return st, nil
}

// batchRecord is one JSON line of batch output.
type batchRecord struct {
	StoreID  string             `json:"store_id"`
	Name     string             `json:"name"`
	Seasonal *pipeline.Analysis `json:"seasonal,omitempty"`
	Growth   *pipeline.Analysis `json:"growth,omitempty"`
	Error    string             `json:"error,omitempty"`
}

// batchFunc analyzes one store.
type batchFunc func(ctx context.Context, st store.Store) (batchRecord, error)

func analyzeBoth(p *pipeline.Pipeline) batchFunc {
	return func(ctx context.Context, st store.Store) (batchRecord, error) {
		rec := batchRecord{StoreID: st.ID, Name: st.Name}
		seasonal, err := p.AnalyzeSeasonal(ctx, st)
		if err != nil {
			return rec, err
		}
		growth, err := p.AnalyzeGrowth(ctx, st)
		if err != nil {
			return rec, err
		}
		rec.Seasonal = seasonal
		rec.Growth = growth
		return rec, nil
	}
}

// processBatch applies limit, then analyzes stores concurrently, writing one
// JSON line per store to out. A failed store is reported in its line and
// does not stop the batch.
func processBatch(ctx context.Context, stores []store.Store, limit, concurrency int, out io.Writer, analyze batchFunc) error {
	if len(stores) == 0 {
		zap.L().Info("no stores in catalog")
		return nil
	}
	if limit > 0 && len(stores) > limit {
		stores = stores[:limit]
	}
	if concurrency < 1 {
		concurrency = 1
	}

	zap.L().Info("processing batch",
		zap.Int("stores", len(stores)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var (
		mu                sync.Mutex
		enc               = json.NewEncoder(out)
		succeeded, failed atomic.Int64
	)

	for _, st := range stores {
		g.Go(func() error {
			log := zap.L().With(zap.String("store_id", st.ID))

			rec, err := analyze(gctx, st)
			if err != nil {
				failed.Add(1)
				log.Error("store analysis failed", zap.Error(err))
				rec = batchRecord{StoreID: st.ID, Name: st.Name, Error: err.Error()}
			} else {
				succeeded.Add(1)
			}

			mu.Lock()
			defer mu.Unlock()
			if err := enc.Encode(rec); err != nil {
				return eris.Wrap(err, "write batch record")
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "batch processing")
	}

	zap.L().Info("batch complete",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return nil
}

func writeJSONTo(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "write output")
}
