package indices

import (
	"math"
	"sort"
)

// RawObservation is one image-date and its regional NDVI, nil if the image
// had no valid pixels.
type RawObservation struct {
	Date string
	NDVI *float64
}

// HistoryPoint is a single entry in an NDVI time series.
type HistoryPoint struct {
	Date string  `json:"date"`
	NDVI float64 `json:"ndvi"`
}

// BuildHistory drops observations without a value, rounds the rest to three
// decimals and sorts them by date. Same-day observations are all kept.
func BuildHistory(raw []RawObservation) []HistoryPoint {
	out := make([]HistoryPoint, 0, len(raw))
	for _, r := range raw {
		if r.NDVI == nil {
			continue
		}
		out = append(out, HistoryPoint{Date: r.Date, NDVI: round3(*r.NDVI)})
	}

	// ISO dates sort lexically.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date < out[j].Date
	})
	return out
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
