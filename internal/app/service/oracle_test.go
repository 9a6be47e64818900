package service

import (
	"context"
	"errors"
	"testing"
	"time"
)

type mockCompleter struct {
	completeFn func(ctx context.Context, prompt string) (string, error)
}

func (m *mockCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	if m.completeFn != nil {
		return m.completeFn(ctx, prompt)
	}
	return "", errors.New("not configured")
}

func TestParseSeries(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []float64
		ok   bool
	}{
		{
			name: "fenced json array",
			in:   "```json\n[3,3,3]\n```",
			want: []float64{3, 3, 3},
			ok:   true,
		},
		{
			name: "bare array",
			in:   "[1, 2, 3.5]",
			want: []float64{1, 2, 3.5},
			ok:   true,
		},
		{
			name: "array wrapped in prose",
			in:   "Prediction: here are the values [10,20,30] as requested",
			want: []float64{10, 20, 30},
			ok:   true,
		},
		{
			name: "refusal prose",
			in:   "I cannot comply",
			ok:   false,
		},
		{
			name: "empty array",
			in:   "[]",
			ok:   false,
		},
		{
			name: "non numeric array",
			in:   `["a","b"]`,
			ok:   false,
		},
		{
			name: "empty string",
			in:   "",
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseSeries(tt.in)
			if ok != tt.ok {
				t.Fatalf("ParseSeries(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			}
			if !tt.ok {
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d values, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("value %d: got %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestOracle_ForecastFencedReply(t *testing.T) {
	oracle := NewOracle(nil, &mockCompleter{
		completeFn: func(ctx context.Context, prompt string) (string, error) {
			return "```json\n[3,3,3]\n```", nil
		},
	}, 24)

	before := time.Now()
	points, err := oracle.Forecast(context.Background(), []int64{1, 2, 1, 2, 1, 2, 1, 2})
	if err != nil {
		t.Fatalf("Forecast returned error: %v", err)
	}
	if len(points) != 3 {
		t.Fatalf("expected 3 points, got %d", len(points))
	}

	for i, p := range points {
		if p.PredictedClicks != 3 {
			t.Fatalf("point %d: expected 3 clicks, got %d", i, p.PredictedClicks)
		}
		if p.Seq != i {
			t.Fatalf("point %d: expected seq %d, got %d", i, i, p.Seq)
		}
		expected := before.Add(time.Duration(i+1) * time.Hour)
		if diff := p.PredictedAt.Sub(expected); diff < 0 || diff > time.Minute {
			t.Fatalf("point %d: timestamp %v not ~%v ahead of invocation", i, p.PredictedAt, time.Duration(i+1)*time.Hour)
		}
	}
}

func TestOracle_ForecastRefusalYieldsNothing(t *testing.T) {
	oracle := NewOracle(nil, &mockCompleter{
		completeFn: func(ctx context.Context, prompt string) (string, error) {
			return "I cannot comply", nil
		},
	}, 24)

	points, err := oracle.Forecast(context.Background(), []int64{5, 6, 7})
	if err != nil {
		t.Fatalf("refusal must not surface an error, got %v", err)
	}
	if points != nil {
		t.Fatalf("expected no points, got %d", len(points))
	}
}

func TestOracle_ForecastInsufficientHistory(t *testing.T) {
	called := false
	oracle := NewOracle(nil, &mockCompleter{
		completeFn: func(ctx context.Context, prompt string) (string, error) {
			called = true
			return "[1,2,3]", nil
		},
	}, 24)

	points, err := oracle.Forecast(context.Background(), []int64{7})
	if err != nil || points != nil {
		t.Fatalf("expected (nil, nil) for short history, got (%v, %v)", points, err)
	}
	if called {
		t.Fatal("completer must not be called with insufficient history")
	}
}

func TestOracle_ForecastTransportError(t *testing.T) {
	oracle := NewOracle(nil, &mockCompleter{
		completeFn: func(ctx context.Context, prompt string) (string, error) {
			return "", errors.New("connection refused")
		},
	}, 24)

	points, err := oracle.Forecast(context.Background(), []int64{5, 6, 7})
	if err == nil {
		t.Fatal("expected transport error to be reported")
	}
	if points != nil {
		t.Fatal("expected no points on transport error")
	}
}

func TestOracle_ForecastClampsAndTruncates(t *testing.T) {
	oracle := NewOracle(nil, &mockCompleter{
		completeFn: func(ctx context.Context, prompt string) (string, error) {
			return "[-5, 2.4, 2.6, 10]", nil
		},
	}, 3)

	points, err := oracle.Forecast(context.Background(), []int64{1, 2, 3})
	if err != nil {
		t.Fatalf("Forecast returned error: %v", err)
	}
	if len(points) != 3 {
		t.Fatalf("expected truncation to horizon 3, got %d points", len(points))
	}
	if points[0].PredictedClicks != 0 {
		t.Fatalf("negative value must clamp to 0, got %d", points[0].PredictedClicks)
	}
	if points[1].PredictedClicks != 2 {
		t.Fatalf("2.4 must round to 2, got %d", points[1].PredictedClicks)
	}
	if points[2].PredictedClicks != 3 {
		t.Fatalf("2.6 must round to 3, got %d", points[2].PredictedClicks)
	}
}
