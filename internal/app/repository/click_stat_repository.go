package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/linkpulse/linkpulse/internal/app/model"
	"gorm.io/gorm"
)

// ClickStatRepository defines the data access contract for hourly click
// buckets. The forecast pipeline only reads; the click consumer writes
// through IncrementBucket.
type ClickStatRepository interface {
	Series(ctx context.Context, linkCode string) ([]model.HourlyClickStat, error)
	Window(ctx context.Context, linkCode string, since time.Time) ([]model.HourlyClickStat, error)
	IncrementBucket(ctx context.Context, linkCode, statDate string, hour int) error
}

type clickStatRepository struct {
	db   *gorm.DB
	pool *pgxpool.Pool
}

// NewClickStatRepository returns a ClickStatRepository backed by GORM for
// reads and a pgx pool for the upsert write path.
func NewClickStatRepository(db *gorm.DB, pool *pgxpool.Pool) ClickStatRepository {
	return &clickStatRepository{db: db, pool: pool}
}

// Series returns every bucket for a link, oldest first.
func (r *clickStatRepository) Series(ctx context.Context, linkCode string) ([]model.HourlyClickStat, error) {
	var result []model.HourlyClickStat
	if err := r.db.WithContext(ctx).
		Where("link_code = ?", linkCode).
		Order("stat_date ASC, hour ASC").
		Find(&result).Error; err != nil {
		return nil, err
	}
	return result, nil
}

// Window returns the buckets recorded since the given instant, oldest first.
func (r *clickStatRepository) Window(ctx context.Context, linkCode string, since time.Time) ([]model.HourlyClickStat, error) {
	var result []model.HourlyClickStat
	if err := r.db.WithContext(ctx).
		Where("link_code = ? AND created_at >= ?", linkCode, since).
		Order("stat_date ASC, hour ASC").
		Find(&result).Error; err != nil {
		return nil, err
	}
	return result, nil
}

// IncrementBucket adds one click to a (link, date, hour) bucket, creating
// it if needed. The ON CONFLICT arm makes the increment atomic under
// concurrent consumers; the unique index on the three key columns is the
// arbiter.
func (r *clickStatRepository) IncrementBucket(ctx context.Context, linkCode, statDate string, hour int) error {
	const q = `
		INSERT INTO hourly_click_stats (link_code, stat_date, hour, clicks, created_at, updated_at)
		VALUES ($1, $2, $3, 1, NOW(), NOW())
		ON CONFLICT (link_code, stat_date, hour)
		DO UPDATE SET clicks = hourly_click_stats.clicks + 1, updated_at = NOW()`

	_, err := r.pool.Exec(ctx, q, linkCode, statDate, hour)
	return err
}
