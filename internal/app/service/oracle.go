package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/linkpulse/linkpulse/config"
	"github.com/linkpulse/linkpulse/internal/app/model"
	"go.uber.org/zap"
)

// minSeriesPoints is the smallest history the oracle is asked about.
const minSeriesPoints = 2

// Completer is the raw text-generation capability behind the oracle. The
// reply is free-form text; nothing about its shape is trusted.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Oracle turns a link's hourly click history into a validated forecast.
//
// Forecast is best-effort: a nil slice with a nil error means no forecast
// is available this cycle (too little history, or the completer's reply
// was not usable). A non-nil error reports a transport problem only.
type Oracle struct {
	logger    *zap.Logger
	completer Completer
	horizon   int
}

// NewOracle builds an Oracle over the given completer.
func NewOracle(logger *zap.Logger, completer Completer, horizon int) *Oracle {
	if logger == nil {
		logger = zap.NewNop()
	}
	if horizon <= 0 {
		horizon = config.DefaultHorizonHours
	}
	return &Oracle{logger: logger, completer: completer, horizon: horizon}
}

// Forecast requests a prediction for the series (oldest value first) and
// returns horizon-bounded points stamped at now+1h, now+2h, ...
func (o *Oracle) Forecast(ctx context.Context, series []int64) ([]model.ForecastPoint, error) {
	if len(series) < minSeriesPoints {
		return nil, nil
	}

	reply, err := o.completer.Complete(ctx, buildPrompt(series, o.horizon))
	if err != nil {
		return nil, fmt.Errorf("oracle request: %w", err)
	}

	values, ok := ParseSeries(reply)
	if !ok || len(values) == 0 {
		o.logger.Debug("oracle reply not parsable", zap.String("reply", truncateForLog(reply)))
		return nil, nil
	}

	if len(values) > o.horizon {
		values = values[:o.horizon]
	}

	now := time.Now()
	points := make([]model.ForecastPoint, len(values))
	for i, v := range values {
		clicks := int64(math.Round(v))
		if clicks < 0 {
			clicks = 0
		}
		points[i] = model.ForecastPoint{
			Seq:             i,
			PredictedAt:     now.Add(time.Duration(i+1) * time.Hour),
			PredictedClicks: clicks,
		}
	}
	return points, nil
}

func buildPrompt(series []int64, horizon int) string {
	var b strings.Builder
	b.WriteString("You are a model trained for web traffic forecasting.\n")
	b.WriteString("Below is past hourly click data for a URL:\n\n")
	encoded, _ := json.Marshal(series)
	b.Write(encoded)
	fmt.Fprintf(&b, "\n\nPredict the next %d hourly click values.\n", horizon)
	b.WriteString("Return ONLY a JSON array of numbers, no text, no explanation.\n")
	b.WriteString("Output format EXAMPLE:\n[12,14,9,10]\n")
	return b.String()
}

var (
	fenceRe = regexp.MustCompile("(?i)```json|```")
	labelRe = regexp.MustCompile(`(?i)(Given|Prediction|Estimated|:)`)
	arrayRe = regexp.MustCompile(`(?s)\[.*?\]`)
)

// ParseSeries extracts a numeric array from free-form completer output.
// Code fences and known label prose are stripped first; the first
// bracketed run is then parsed as JSON. Malformed input yields (nil,
// false), never a panic.
func ParseSeries(text string) ([]float64, bool) {
	cleaned := fenceRe.ReplaceAllString(text, "")
	cleaned = labelRe.ReplaceAllString(cleaned, "")
	cleaned = strings.TrimSpace(cleaned)

	match := arrayRe.FindString(cleaned)
	if match == "" {
		return nil, false
	}

	var values []float64
	if err := json.Unmarshal([]byte(match), &values); err != nil {
		return nil, false
	}
	if len(values) == 0 {
		return nil, false
	}
	return values, true
}

func truncateForLog(s string) string {
	const limit = 256
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}

// chatCompleter calls an OpenAI-compatible chat-completions endpoint.
type chatCompleter struct {
	client   *http.Client
	endpoint string
	apiKey   string
	model    string
}

// NewChatCompleter builds the HTTP-backed Completer used in production.
func NewChatCompleter(cfg config.OracleConfig) Completer {
	return &chatCompleter{
		client:   &http.Client{Timeout: cfg.TimeoutDuration()},
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *chatCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call oracle endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("oracle endpoint returned status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read oracle response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode oracle response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("oracle response has no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}
