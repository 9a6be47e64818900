package service

import (
	"testing"
	"time"

	"github.com/linkpulse/linkpulse/internal/app/model"
)

func points(clicks ...int64) []model.ForecastPoint {
	out := make([]model.ForecastPoint, len(clicks))
	base := time.Now()
	for i, c := range clicks {
		out[i] = model.ForecastPoint{
			Seq:             i,
			PredictedAt:     base.Add(time.Duration(i+1) * time.Hour),
			PredictedClicks: c,
		}
	}
	return out
}

func TestBaseline(t *testing.T) {
	e := NewSpikeEvaluator(50, 2.0)

	if got := e.Baseline(nil); got != defaultBaseline {
		t.Fatalf("empty history must use default baseline, got %v", got)
	}

	stats := []model.HourlyClickStat{
		{Clicks: 10},
		{Clicks: 20},
		{Clicks: 30},
	}
	if got := e.Baseline(stats); got != 20 {
		t.Fatalf("expected mean 20, got %v", got)
	}
}

func TestEvaluate_Thresholds(t *testing.T) {
	e := NewSpikeEvaluator(50, 2.0)

	// 45 is double the baseline but below the absolute floor.
	if _, ok := e.Evaluate(points(45), 10); ok {
		t.Fatal("45 with baseline 10 must not qualify (below minimum)")
	}

	// 55 clears both thresholds.
	p, ok := e.Evaluate(points(55), 10)
	if !ok {
		t.Fatal("55 with baseline 10 must qualify")
	}
	if p.PredictedClicks != 55 {
		t.Fatalf("expected the 55 point, got %d", p.PredictedClicks)
	}

	// Boundary: 120 == 60*2.0 exactly, thresholds are inclusive.
	if _, ok := e.Evaluate(points(120), 60); !ok {
		t.Fatal("120 with baseline 60 must qualify (inclusive boundary)")
	}

	// Above minimum but below the multiplied baseline.
	if _, ok := e.Evaluate(points(55), 40); ok {
		t.Fatal("55 with baseline 40 must not qualify (below 2x baseline)")
	}
}

func TestEvaluate_FirstQualifyingPointOnly(t *testing.T) {
	e := NewSpikeEvaluator(50, 2.0)

	p, ok := e.Evaluate(points(10, 80, 200, 90), 10)
	if !ok {
		t.Fatal("expected a qualifying point")
	}
	if p.Seq != 1 || p.PredictedClicks != 80 {
		t.Fatalf("expected the earliest spike (seq 1, 80 clicks), got seq %d, %d clicks", p.Seq, p.PredictedClicks)
	}
}

func TestEvaluate_NoSpike(t *testing.T) {
	e := NewSpikeEvaluator(50, 2.0)

	if _, ok := e.Evaluate(points(1, 2, 3), 10); ok {
		t.Fatal("quiet forecast must not qualify")
	}
	if _, ok := e.Evaluate(nil, 10); ok {
		t.Fatal("empty forecast must not qualify")
	}
}
