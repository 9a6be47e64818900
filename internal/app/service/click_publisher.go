package service

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/linkpulse/linkpulse/internal/app/model"
	"github.com/nats-io/nats.go"
)

// ClickPublisher publishes click events to NATS JetStream. The resolver
// calls it off the hot path; the consumer turns the stream into hourly
// buckets.
type ClickPublisher struct {
	js nats.JetStreamContext
}

// NewClickPublisher creates a new click event publisher.
func NewClickPublisher(js nats.JetStreamContext) *ClickPublisher {
	return &ClickPublisher{js: js}
}

// Publish emits one click observation for the given link.
func (p *ClickPublisher) Publish(linkCode, ip, userAgent string) error {
	event := model.ClickEvent{
		ID:        uuid.New().String(),
		LinkCode:  linkCode,
		IP:        ip,
		UserAgent: userAgent,
		Timestamp: time.Now().UTC(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	_, err = p.js.Publish(model.ClickStreamSubject, data)
	return err
}