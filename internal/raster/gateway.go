// Package raster is the client side of the raster analytics backend: it builds
// image expressions and submits zonal statistics, sampling, tile and export
// requests against a region.
package raster

import "context"

// Reducer aggregates pixel values over a region.
type Reducer string

// Reducers.
const (
	ReducerMean Reducer = "mean"
	ReducerSum  Reducer = "sum"
)

// DefaultMaxPixels bounds the pixel count of a single reduction.
const DefaultMaxPixels = 1e9

// ReduceRequest computes a zonal statistic of Image over Region.
type ReduceRequest struct {
	Image     Image   `json:"image"`
	Reducer   Reducer `json:"reducer"`
	Region    Region  `json:"region"`
	ScaleM    float64 `json:"scale_m"`
	MaxPixels float64 `json:"max_pixels"`
}

// MapReduceRequest maps Image (written in terms of Each()) over every image
// in Collection and reduces Band over Region per image.
type MapReduceRequest struct {
	Collection Collection `json:"collection"`
	Image      Image      `json:"image"`
	Band       string     `json:"band"`
	Reducer    Reducer    `json:"reducer"`
	Region     Region     `json:"region"`
	ScaleM     float64    `json:"scale_m"`
	MaxPixels  float64    `json:"max_pixels"`
	DateFormat string     `json:"date_format"`
}

// DatedValue is one per-image result of a MapReduceRequest. Value is nil when
// the image had no valid pixels in the region.
type DatedValue struct {
	Date  string
	Value *float64
}

// SampleRequest draws a stratified sample of a classified image.
type SampleRequest struct {
	Image     Image   `json:"image"`
	ClassBand string  `json:"class_band"`
	NumPoints int     `json:"num_points"`
	Region    Region  `json:"region"`
	ScaleM    float64 `json:"scale_m"`
}

// Sample is a sampled location and the class found there. Class is nil if
// the backend omitted the class property.
type Sample struct {
	Lat   float64
	Lng   float64
	Class *int
}

// Visualization styles a tile layer.
type Visualization struct {
	Min     *float64 `json:"min,omitempty"`
	Max     *float64 `json:"max,omitempty"`
	Palette []string `json:"palette,omitempty"`
}

// TileRequest asks for a map tile URL template for Image.
type TileRequest struct {
	Image Image         `json:"image"`
	Vis   Visualization `json:"vis"`
}

// ExportRequest submits a batch table export.
type ExportRequest struct {
	Description string     `json:"description"`
	Collection  Collection `json:"collection"`
	Image       Image      `json:"image"`
	Band        string     `json:"band"`
	Region      Region     `json:"region"`
	ScaleM      float64    `json:"scale_m"`
	Destination string     `json:"destination"`
}

// ExportTask acknowledges a submitted export.
type ExportTask struct {
	ID    string `json:"task_id"`
	State string `json:"state"`
}

// Gateway is the set of backend operations the signal pipeline needs.
type Gateway interface {
	// ReduceRegion returns band name → value. A nil value means the reducer
	// produced nothing (for example a fully clouded window).
	ReduceRegion(ctx context.Context, req ReduceRequest) (map[string]*float64, error)
	MapReduceRegion(ctx context.Context, req MapReduceRequest) ([]DatedValue, error)
	StratifiedSample(ctx context.Context, req SampleRequest) ([]Sample, error)
	TileURL(ctx context.Context, req TileRequest) (string, error)
	SubmitExport(ctx context.Context, req ExportRequest) (*ExportTask, error)
}
