package datacommons

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
)

// Statistical variables fetched by default.
var DefaultVariables = []string{
	"Count_Person",
	"Median_Income_Person",
	"UnemploymentRate_Person",
}

// LocationContext holds the resolved "dcid" and one numeric entry per
// variable that had data. It is empty when enrichment failed.
type LocationContext map[string]any

// DCID returns the resolved place id, if any.
func (lc LocationContext) DCID() string {
	s, _ := lc["dcid"].(string)
	return s
}

// API is the subset of Client used by Resolver.
type API interface {
	HasKey() bool
	Resolve(ctx context.Context, lat, lng float64) (json.RawMessage, error)
	Observations(ctx context.Context, variables, entities []string) (json.RawMessage, error)
}

// Resolver builds location context for coordinates.
type Resolver struct {
	api       API
	variables []string
}

// NewResolver creates a Resolver. A nil or empty variables list uses
// DefaultVariables.
func NewResolver(api API, variables []string) *Resolver {
	if len(variables) == 0 {
		variables = DefaultVariables
	}
	return &Resolver{api: api, variables: append([]string{}, variables...)}
}

// LocationContext resolves the coordinate to a place and returns its latest
// statistics. It never fails: a missing key, transport errors and
// unresolvable coordinates all return an empty context.
func (r *Resolver) LocationContext(ctx context.Context, lat, lng float64) LocationContext {
	out := LocationContext{}

	if r == nil || r.api == nil || !r.api.HasKey() {
		zap.L().Warn("datacommons: api key not configured, skipping location context")
		return out
	}

	resolved, err := r.api.Resolve(ctx, lat, lng)
	if err != nil {
		zap.L().Error("datacommons: resolve failed",
			zap.Float64("lat", lat),
			zap.Float64("lng", lng),
			zap.Error(err),
		)
		return out
	}

	dcid, ok := SelectCandidate(CandidatesFrom(resolved))
	if !ok {
		zap.L().Info("datacommons: no place for coordinate",
			zap.Float64("lat", lat),
			zap.Float64("lng", lng),
		)
		return out
	}
	zap.L().Info("datacommons: resolved place",
		zap.Float64("lat", lat),
		zap.Float64("lng", lng),
		zap.String("dcid", dcid),
	)

	obs, err := r.api.Observations(ctx, r.variables, []string{dcid})
	if err != nil {
		zap.L().Error("datacommons: observations failed", zap.String("dcid", dcid), zap.Error(err))
		return out
	}

	out["dcid"] = dcid
	for name, v := range ExtractMetrics(obs, dcid, r.variables) {
		out[name] = v
	}
	return out
}
