package service

import "github.com/linkpulse/linkpulse/internal/app/model"

// defaultBaseline stands in when a link has no history in the lookback
// window, so spike math never divides or multiplies by zero.
const defaultBaseline = 1.0

// SpikeEvaluator decides whether a forecast predicts a traffic spike.
// Thresholds are global configuration, not per-link settings.
type SpikeEvaluator struct {
	minClicks  int64
	multiplier float64
}

// NewSpikeEvaluator builds an evaluator with the given thresholds.
func NewSpikeEvaluator(minClicks int64, multiplier float64) *SpikeEvaluator {
	return &SpikeEvaluator{minClicks: minClicks, multiplier: multiplier}
}

// Baseline is the arithmetic mean of hourly clicks over the supplied
// lookback stats.
func (e *SpikeEvaluator) Baseline(stats []model.HourlyClickStat) float64 {
	if len(stats) == 0 {
		return defaultBaseline
	}
	var total int64
	for i := range stats {
		total += stats[i].Clicks
	}
	return float64(total) / float64(len(stats))
}

// Evaluate scans points in chronological order and returns the first one
// that clears both thresholds (inclusive). One link yields at most one
// alert per cycle, for the earliest predicted spike. A miss is the common
// case, not an error.
func (e *SpikeEvaluator) Evaluate(points []model.ForecastPoint, baseline float64) (*model.ForecastPoint, bool) {
	for i := range points {
		p := &points[i]
		if p.PredictedClicks >= e.minClicks &&
			float64(p.PredictedClicks) >= baseline*e.multiplier {
			return p, true
		}
	}
	return nil, false
}
