package model

import "time"

// StatDateLayout is the calendar-date key format for hourly buckets.
const StatDateLayout = "2006-01-02"

// HourlyClickStat is one hourly click bucket for a link. The composite
// unique index guarantees at most one row per (link, date, hour); the
// click consumer's upsert relies on it. The forecast pipeline only reads
// these rows.
type HourlyClickStat struct {
	ID        uint      `db:"id" gorm:"primaryKey"`
	LinkCode  string    `db:"link_code" gorm:"size:32;not null;uniqueIndex:idx_link_date_hour,priority:1"`
	StatDate  string    `db:"stat_date" gorm:"size:10;not null;uniqueIndex:idx_link_date_hour,priority:2"`
	Hour      int       `db:"hour" gorm:"not null;uniqueIndex:idx_link_date_hour,priority:3"`
	Clicks    int64     `db:"clicks" gorm:"not null;default:0"`
	CreatedAt time.Time `db:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `db:"updated_at" gorm:"autoUpdateTime"`
}

// BucketStart returns the UTC instant at which this bucket's hour begins.
func (s *HourlyClickStat) BucketStart() (time.Time, error) {
	day, err := time.ParseInLocation(StatDateLayout, s.StatDate, time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	return day.Add(time.Duration(s.Hour) * time.Hour), nil
}
