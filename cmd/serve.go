package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	ossignal "os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/greengrowth/internal/advisor"
	"github.com/sells-group/greengrowth/internal/datacommons"
	"github.com/sells-group/greengrowth/internal/indices"
	"github.com/sells-group/greengrowth/internal/pipeline"
	"github.com/sells-group/greengrowth/internal/store"
)

const welcomeMessage = "Welcome to the GreenGrowth API (Stateless)"

var servePort int

// analyzer is the part of the pipeline the HTTP API depends on.
type analyzer interface {
	AnalyzeSeasonal(ctx context.Context, st store.Store) (*pipeline.Analysis, error)
	AnalyzeGrowth(ctx context.Context, st store.Store) (*pipeline.Analysis, error)
	History(ctx context.Context, st store.Store) ([]indices.HistoryPoint, error)
	LocationContext(ctx context.Context, st store.Store) datacommons.LocationContext
	GenerateStockingAction(ctx context.Context, req advisor.ActionRequest) string
	TriggerExtraction(ctx context.Context, st store.Store) (*pipeline.ExtractionAck, error)
}

var _ analyzer = (*pipeline.Pipeline)(nil)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := ossignal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		// Warm the raster session; requests retry on their own if this fails.
		if err := env.Raster.Init(ctx); err != nil {
			zap.L().Warn("raster session init failed, will retry on first request", zap.Error(err))
		}

		router := buildRouter(env.Pipeline, env.Catalog, cfg.Server.StaticDir)
		return startServer(ctx, router, resolvePort(servePort, cfg.Server.Port))
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// resolvePort returns the flag port when set, otherwise the config port.
func resolvePort(flagPort, cfgPort int) int {
	if flagPort != 0 {
		return flagPort
	}
	return cfgPort
}

// startServer serves handler on port until ctx is cancelled.
func startServer(ctx context.Context, handler http.Handler, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zap.L().Info("starting server", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "server listen")
	}
	return nil
}

// buildRouter registers every API route. staticDir is served as a
// single-page frontend when it exists.
func buildRouter(a analyzer, cat store.Catalog, staticDir string) http.Handler {
	r := chi.NewRouter()
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	h := &handlers{analyzer: a, catalog: cat}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"message": welcomeMessage})
		})
		r.Get("/stores", h.listStores)
		r.Get("/stores/{id}", h.getStore)
		r.Post("/analyze/seasonal", h.analyzeSeasonal)
		r.Post("/analyze/growth", h.analyzeGrowth)
		r.Post("/analyze/history", h.history)
		r.Post("/context", h.locationContext)
		r.Post("/trigger_extraction", h.triggerExtraction)
		r.Post("/generate_stocking_action", h.generateStockingAction)
	})

	if staticDir != "" {
		if info, err := os.Stat(staticDir); err == nil && info.IsDir() {
			r.Get("/*", spaHandler(staticDir))
		}
	}

	return r
}

type handlers struct {
	analyzer analyzer
	catalog  store.Catalog
}

// storeRequest is the body accepted by the per-store routes.
type storeRequest struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Address string   `json:"address"`
	Lat     *float64 `json:"lat"`
	Lng     *float64 `json:"lng"`
}

func decodeStore(r *http.Request) (store.Store, error) {
	var req storeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return store.Store{}, eris.Wrap(err, "invalid request body")
	}
	if req.Lat == nil || req.Lng == nil {
		return store.Store{}, eris.New("lat and lng are required")
	}
	st := store.Store{ID: req.ID, Name: req.Name, Address: req.Address, Lat: *req.Lat, Lng: *req.Lng}
	if err := st.Validate(); err != nil {
		return store.Store{}, err
	}
	return st, nil
}

func (h *handlers) listStores(w http.ResponseWriter, r *http.Request) {
	stores, err := h.catalog.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, stores)
}

func (h *handlers) getStore(w http.ResponseWriter, r *http.Request) {
	st, err := h.catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *handlers) analyzeSeasonal(w http.ResponseWriter, r *http.Request) {
	h.analyze(w, r, h.analyzer.AnalyzeSeasonal)
}

func (h *handlers) analyzeGrowth(w http.ResponseWriter, r *http.Request) {
	h.analyze(w, r, h.analyzer.AnalyzeGrowth)
}

func (h *handlers) analyze(w http.ResponseWriter, r *http.Request, fn func(context.Context, store.Store) (*pipeline.Analysis, error)) {
	st, err := decodeStore(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	res, err := fn(r.Context(), st)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) history(w http.ResponseWriter, r *http.Request) {
	st, err := decodeStore(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	points, err := h.analyzer.History(r.Context(), st)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, points)
}

// locationContext answers {} rather than an error for any failure.
func (h *handlers) locationContext(w http.ResponseWriter, r *http.Request) {
	st, err := decodeStore(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, h.analyzer.LocationContext(r.Context(), st))
}

func (h *handlers) triggerExtraction(w http.ResponseWriter, r *http.Request) {
	st, err := decodeStore(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ack, err := h.analyzer.TriggerExtraction(r.Context(), st)
	if err != nil {
		writeError(w, http.StatusInternalServerError, eris.Wrap(err, "export job submission failed"))
		return
	}
	writeJSON(w, http.StatusOK, ack)
}

func (h *handlers) generateStockingAction(w http.ResponseWriter, r *http.Request) {
	var req advisor.ActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, eris.Wrap(err, "invalid request body"))
		return
	}
	if req.StoreName == "" || req.SignalType == "" || req.MarketSignal == "" {
		writeError(w, http.StatusBadRequest, eris.New("store_name, signal_type and market_signal are required"))
		return
	}
	action := h.analyzer.GenerateStockingAction(r.Context(), req)
	writeJSON(w, http.StatusOK, map[string]string{"stocking_action": action})
}

// spaHandler serves files from dir, falling back to index.html.
func spaHandler(dir string) http.HandlerFunc {
	fs := http.FileServer(http.Dir(dir))
	return func(w http.ResponseWriter, r *http.Request) {
		path := filepath.Join(dir, filepath.Clean("/"+r.URL.Path))
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			fs.ServeHTTP(w, r)
			return
		}
		http.ServeFile(w, r, filepath.Join(dir, "index.html"))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"detail": err.Error()})
}

// requestLogger tags each request with an X-Request-ID and logs it on
// completion.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		zap.L().Info("http request",
			zap.String("request_id", reqID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}
