package signal

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// DateLayout is the layout of every date in a thresholds profile.
const DateLayout = "2006-01-02"

// DateWindow is a half-open [Start, End) date interval written as YYYY-MM-DD.
type DateWindow struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

// Bounds parses the window into UTC times.
func (w DateWindow) Bounds() (time.Time, time.Time, error) {
	start, err := time.Parse(DateLayout, w.Start)
	if err != nil {
		return time.Time{}, time.Time{}, eris.Wrapf(err, "signal: parse window start %q", w.Start)
	}
	end, err := time.Parse(DateLayout, w.End)
	if err != nil {
		return time.Time{}, time.Time{}, eris.Wrapf(err, "signal: parse window end %q", w.End)
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, eris.Errorf("signal: window %s..%s is empty", w.Start, w.End)
	}
	return start, end, nil
}

// Thresholds holds every constant that shapes classification output. Changing
// any value changes results, so profiles carry a Version that is reported with
// each analysis.
type Thresholds struct {
	Version string `yaml:"version"`

	RadiusM         float64 `yaml:"radius_m"`
	CloudCeilingPct float64 `yaml:"cloud_ceiling_pct"`

	NDVIHigh   float64 `yaml:"ndvi_high"`
	NDVIMedium float64 `yaml:"ndvi_medium"`

	LawnNDVI         float64 `yaml:"lawn_ndvi"`
	BuiltProbability float64 `yaml:"built_probability"`
	BuiltLabel       int     `yaml:"built_label"`
	DilationPixels   int     `yaml:"dilation_pixels"`
	SampleCount      int     `yaml:"sample_count"`

	HectaresExtreme float64 `yaml:"hectares_extreme"`
	HectaresMedium  float64 `yaml:"hectares_medium"`

	IndexScaleM  float64 `yaml:"index_scale_m"`
	AreaScaleM   float64 `yaml:"area_scale_m"`
	SampleScaleM float64 `yaml:"sample_scale_m"`

	RecentDays    int        `yaml:"recent_days"`
	HistoryMonths int        `yaml:"history_months"`
	PastWindow    DateWindow `yaml:"past_window"`
	CurrentWindow DateWindow `yaml:"current_window"`
}

// DefaultThresholds returns the production profile.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Version:          "2025.1",
		RadiusM:          8046,
		CloudCeilingPct:  30,
		NDVIHigh:         0.4,
		NDVIMedium:       0.2,
		LawnNDVI:         0.3,
		BuiltProbability: 0.2,
		BuiltLabel:       6,
		DilationPixels:   10,
		SampleCount:      15,
		HectaresExtreme:  1000,
		HectaresMedium:   400,
		IndexScaleM:      500,
		AreaScaleM:       10,
		SampleScaleM:     250,
		RecentDays:       30,
		HistoryMonths:    6,
		PastWindow:       DateWindow{Start: "2020-06-01", End: "2020-09-01"},
		CurrentWindow:    DateWindow{Start: "2025-06-01", End: "2025-09-01"},
	}
}

// LoadThresholds reads a YAML profile from path. Keys missing from the file
// keep their default values.
func LoadThresholds(path string) (Thresholds, error) {
	th := DefaultThresholds()

	data, err := os.ReadFile(path)
	if err != nil {
		return Thresholds{}, eris.Wrapf(err, "signal: read thresholds %s", path)
	}
	if err := yaml.Unmarshal(data, &th); err != nil {
		return Thresholds{}, eris.Wrapf(err, "signal: parse thresholds %s", path)
	}
	if err := th.Validate(); err != nil {
		return Thresholds{}, err
	}
	return th, nil
}

// Validate reports the first inconsistency in the profile.
func (th Thresholds) Validate() error {
	switch {
	case th.Version == "":
		return eris.New("signal: thresholds version is required")
	case th.RadiusM <= 0:
		return eris.New("signal: radius_m must be > 0")
	case th.NDVIMedium >= th.NDVIHigh:
		return eris.Errorf("signal: ndvi_medium (%.2f) must be below ndvi_high (%.2f)", th.NDVIMedium, th.NDVIHigh)
	case th.NDVIHigh > 1 || th.NDVIMedium < -1:
		return eris.New("signal: ndvi breakpoints must lie in [-1, 1]")
	case th.HectaresMedium >= th.HectaresExtreme:
		return eris.Errorf("signal: hectares_medium (%.1f) must be below hectares_extreme (%.1f)", th.HectaresMedium, th.HectaresExtreme)
	case th.SampleCount <= 0:
		return eris.New("signal: sample_count must be > 0")
	case th.IndexScaleM <= 0 || th.AreaScaleM <= 0 || th.SampleScaleM <= 0:
		return eris.New("signal: reduce scales must be > 0")
	case th.RecentDays <= 0 || th.HistoryMonths <= 0:
		return eris.New("signal: recent_days and history_months must be > 0")
	}
	if _, _, err := th.PastWindow.Bounds(); err != nil {
		return err
	}
	if _, _, err := th.CurrentWindow.Bounds(); err != nil {
		return err
	}
	return nil
}
