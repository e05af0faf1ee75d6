package signal

import "fmt"

// Market signal texts.
const (
	SignalGrassActive       = "Grass is heavily active"
	SignalSpringTransition  = "Spring transition detected"
	SignalWinterConditions  = "Winter conditions"
	SignalMajorBuild        = "Major residential subdivisions or commercial build"
	SignalNewStructures     = "New residential or commercial structures popping up"
	SignalNoSignificantGrow = "No significant new structures in the window"
)

// ClassifySeasonal maps a regional NDVI mean to a Seasonal signal. Rules are
// evaluated in order and the first match wins:
//   - ndvi > NDVIHigh: High
//   - ndvi > NDVIMedium: Medium
//   - otherwise, including a nil ndvi: Low
//
// Geo points are only kept for the Medium and High tiers.
func ClassifySeasonal(th Thresholds, ndvi *float64, tileURL *string, points []GeoPoint) Signal {
	s := Signal{
		Type:      KindSeasonal,
		TileURL:   copyString(tileURL),
		GeoPoints: []GeoPoint{},
	}

	switch {
	case ndvi != nil && *ndvi > th.NDVIHigh:
		s.Intensity = IntensityHigh
		s.Metric = fmt.Sprintf("High Vegetation Active (NDVI %.2f)", *ndvi)
		s.MarketSignal = SignalGrassActive
		s.GeoPoints = append(s.GeoPoints, points...)
	case ndvi != nil && *ndvi > th.NDVIMedium:
		s.Intensity = IntensityMedium
		s.Metric = fmt.Sprintf("Vegetation Waking Up (NDVI %.2f)", *ndvi)
		s.MarketSignal = SignalSpringTransition
		s.GeoPoints = append(s.GeoPoints, points...)
	default:
		s.Intensity = IntensityLow
		s.Metric = "Dormant (NDVI n/a)"
		if ndvi != nil {
			s.Metric = fmt.Sprintf("Dormant (NDVI %.2f)", *ndvi)
		}
		s.MarketSignal = SignalWinterConditions
	}
	return s
}

// ClassifyGrowth maps hectares of new built land to a Growth signal:
//   - hectares > HectaresExtreme: Extreme
//   - hectares >= HectaresMedium: Medium
//   - otherwise: Low, without a tile overlay
func ClassifyGrowth(th Thresholds, hectares float64, tileURL *string) Signal {
	s := Signal{
		Type:      KindGrowth,
		GeoPoints: []GeoPoint{},
	}

	switch {
	case hectares > th.HectaresExtreme:
		s.Intensity = IntensityExtreme
		s.Metric = fmt.Sprintf("High Land Disturbance (%.1f Ha)", hectares)
		s.MarketSignal = SignalMajorBuild
		s.TileURL = copyString(tileURL)
	case hectares >= th.HectaresMedium:
		s.Intensity = IntensityMedium
		s.Metric = fmt.Sprintf("Active Construction (%.1f Ha)", hectares)
		s.MarketSignal = SignalNewStructures
		s.TileURL = copyString(tileURL)
	default:
		s.Intensity = IntensityLow
		s.Metric = fmt.Sprintf("Stable Grid (%.1f Ha)", hectares)
		s.MarketSignal = SignalNoSignificantGrow
	}
	return s
}

// SquareMetersToHectares converts an area in m² to hectares.
func SquareMetersToHectares(m2 float64) float64 {
	return m2 / 10000
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
