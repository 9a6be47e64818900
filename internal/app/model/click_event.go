package model

import "time"

// ClickEvent represents a single resolved redirect, published to NATS and
// folded into HourlyClickStat buckets by the consumer.
type ClickEvent struct {
	ID        string    `json:"id"`
	LinkCode  string    `json:"link_code"`
	IP        string    `json:"ip"`
	UserAgent string    `json:"user_agent"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	ClickStreamName     = "CLICKS"
	ClickStreamSubject  = "clicks.events"
	ClickConsumerName   = "click-aggregator"
	ClickStreamMaxBytes = 1024 * 1024 * 100 // 100MB
)

// Bucket returns the (date, hour) aggregation key for the event in UTC.
func (e *ClickEvent) Bucket() (string, int) {
	ts := e.Timestamp.UTC()
	return ts.Format(StatDateLayout), ts.Hour()
}
