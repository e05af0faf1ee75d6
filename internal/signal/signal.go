// Package signal classifies raster-derived scalars into discrete market signals.
package signal

// Kind names the analysis a Signal came from.
type Kind string

// Signal kinds.
const (
	KindSeasonal Kind = "Seasonal"
	KindGrowth   Kind = "Growth"
)

// Intensity is the severity tier of a Signal.
type Intensity string

// Intensity tiers, lowest first.
const (
	IntensityLow     Intensity = "Low"
	IntensityMedium  Intensity = "Medium"
	IntensityHigh    Intensity = "High"
	IntensityExtreme Intensity = "Extreme"
)

// GeoPoint is a sampled coordinate that belongs to a classified category.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Signal is a classified market signal. Values are built by the Classify
// functions and never mutated afterwards; use WithStockingAction to derive a
// copy carrying generated text.
type Signal struct {
	Type           Kind       `json:"type"`
	Metric         string     `json:"metric"`
	MarketSignal   string     `json:"market_signal"`
	StockingAction *string    `json:"stocking_action"`
	Intensity      Intensity  `json:"intensity"`
	TileURL        *string    `json:"tile_url"`
	GeoPoints      []GeoPoint `json:"geo_points"`
}

// Action categories handed to the stocking-action writer.
const (
	ActionOutdoorSeasonal  = "outdoor/seasonal push"
	ActionSpringTransition = "spring transition push"
	ActionIndoorWinter     = "indoor/winter push"
	ActionNewBuild         = "new-build/contractor push"
	ActionMaintenance      = "maintenance/repair push"
)

// ActionCategory returns the merchandising category implied by the signal.
func (s Signal) ActionCategory() string {
	switch s.Type {
	case KindSeasonal:
		switch s.Intensity {
		case IntensityHigh:
			return ActionOutdoorSeasonal
		case IntensityMedium:
			return ActionSpringTransition
		default:
			return ActionIndoorWinter
		}
	case KindGrowth:
		if s.Intensity == IntensityLow {
			return ActionMaintenance
		}
		return ActionNewBuild
	}
	return ""
}

// WithStockingAction returns a copy of s with the stocking action set.
func (s Signal) WithStockingAction(action string) Signal {
	out := s
	out.StockingAction = &action
	out.GeoPoints = append([]GeoPoint{}, s.GeoPoints...)
	return out
}

// ActionCategoryFor maps a market signal text produced by the classifier
// back to its action category. Unknown texts return "".
func ActionCategoryFor(marketSignal string) string {
	switch marketSignal {
	case SignalGrassActive:
		return ActionOutdoorSeasonal
	case SignalSpringTransition:
		return ActionSpringTransition
	case SignalWinterConditions:
		return ActionIndoorWinter
	case SignalMajorBuild, SignalNewStructures:
		return ActionNewBuild
	case SignalNoSignificantGrow:
		return ActionMaintenance
	}
	return ""
}
