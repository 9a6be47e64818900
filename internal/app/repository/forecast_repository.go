package repository

import (
	"context"
	"errors"

	"github.com/linkpulse/linkpulse/internal/app/model"
	"gorm.io/gorm"
)

// ErrForecastNotFound signals that no forecast exists for the link.
var ErrForecastNotFound = errors.New("forecast not found")

// ForecastRepository defines the data access contract for stored forecasts.
// Forecasts are insert-only; a newer one supersedes without mutating or
// deleting its predecessors.
type ForecastRepository interface {
	Create(ctx context.Context, forecast *model.Forecast) error
	LatestByLinkCode(ctx context.Context, linkCode string) (*model.Forecast, error)
}

type forecastRepository struct {
	db *gorm.DB
}

// NewForecastRepository returns a GORM-backed ForecastRepository.
func NewForecastRepository(db *gorm.DB) ForecastRepository {
	return &forecastRepository{db: db}
}

func (r *forecastRepository) Create(ctx context.Context, forecast *model.Forecast) error {
	return r.db.WithContext(ctx).Create(forecast).Error
}

func (r *forecastRepository) LatestByLinkCode(ctx context.Context, linkCode string) (*model.Forecast, error) {
	var forecast model.Forecast
	if err := r.db.WithContext(ctx).
		Where("link_code = ?", linkCode).
		Order("generated_at DESC").
		Preload("Points", func(db *gorm.DB) *gorm.DB {
			return db.Order("seq ASC")
		}).
		First(&forecast).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrForecastNotFound
		}
		return nil, err
	}
	return &forecast, nil
}
