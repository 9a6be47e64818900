package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/linkpulse/linkpulse/internal/app/model"
)

type mockEmailSender struct {
	to      string
	subject string
	body    string
	err     error
}

func (m *mockEmailSender) Send(ctx context.Context, to, subject, body string) error {
	if m.err != nil {
		return m.err
	}
	m.to = to
	m.subject = subject
	m.body = body
	return nil
}

func TestSpikeAlerter_Alert(t *testing.T) {
	sender := &mockEmailSender{}
	alerter := NewSpikeAlerter(nil, sender, "https://lnk.ps/")

	owner := &model.User{ID: 1, Email: "owner@example.com"}
	link := &model.Link{ShortCode: "abc1234", DestinationURL: "https://example.com/page"}
	point := &model.ForecastPoint{
		PredictedAt:     time.Date(2026, 8, 29, 18, 0, 0, 0, time.UTC),
		PredictedClicks: 120,
	}

	if err := alerter.Alert(context.Background(), owner, link, point, 42.5); err != nil {
		t.Fatalf("Alert returned error: %v", err)
	}

	if sender.to != "owner@example.com" {
		t.Fatalf("expected alert to owner, got %q", sender.to)
	}
	if !strings.Contains(sender.subject, "abc1234") {
		t.Fatalf("subject must name the link, got %q", sender.subject)
	}
	for _, want := range []string{
		"https://lnk.ps/abc1234",
		"https://example.com/page",
		"120",
		"42.5",
	} {
		if !strings.Contains(sender.body, want) {
			t.Fatalf("body missing %q:\n%s", want, sender.body)
		}
	}
}

func TestSpikeAlerter_TransportFailure(t *testing.T) {
	sender := &mockEmailSender{err: errors.New("rejected")}
	alerter := NewSpikeAlerter(nil, sender, "https://lnk.ps")

	err := alerter.Alert(context.Background(),
		&model.User{Email: "owner@example.com"},
		&model.Link{ShortCode: "abc1234"},
		&model.ForecastPoint{PredictedAt: time.Now()},
		1.0,
	)
	if err == nil {
		t.Fatal("expected transport failure to be reported")
	}
}
