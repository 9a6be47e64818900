package model

import "time"

// Forecast is one pipeline run's prediction for a link. Forecasts are
// insert-only: a newer GeneratedAt supersedes an older forecast without
// touching it.
type Forecast struct {
	ID           uint            `db:"id" gorm:"primaryKey"`
	LinkCode     string          `db:"link_code" gorm:"size:32;not null;index:idx_forecast_link,priority:1"`
	GeneratedAt  time.Time       `db:"generated_at" gorm:"not null;index:idx_forecast_link,priority:2,sort:desc"`
	HorizonHours int             `db:"horizon_hours" gorm:"not null;default:24"`
	Points       []ForecastPoint `gorm:"foreignKey:ForecastID;constraint:OnDelete:CASCADE"`
	CreatedAt    time.Time       `db:"created_at" gorm:"autoCreateTime"`
}

// ForecastPoint is a single predicted hour. Seq preserves chronological
// order; PredictedClicks is never negative.
type ForecastPoint struct {
	ID              uint      `db:"id" gorm:"primaryKey"`
	ForecastID      uint      `db:"forecast_id" gorm:"not null;index"`
	Seq             int       `db:"seq" gorm:"not null"`
	PredictedAt     time.Time `db:"predicted_at" gorm:"not null"`
	PredictedClicks int64     `db:"predicted_clicks" gorm:"not null"`
}
