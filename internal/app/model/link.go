package model

import "time"

// Link describes the core short-link entity stored in Postgres.
//
// ShortCode is immutable once assigned; the primary-key constraint is what
// guarantees allocation uniqueness under concurrent inserts. ClickCount is
// only ever incremented by the resolver, via a store-side atomic update.
// Active flips to false when the link expires or is deleted and is never
// set back to true.
type Link struct {
	ShortCode      string     `db:"short_code" gorm:"primaryKey;size:32"`
	DestinationURL string     `db:"destination_url" gorm:"type:text;not null"`
	OwnerID        *uint      `db:"owner_id" gorm:"index"`
	ExpiresAt      *time.Time `db:"expires_at" gorm:"index"`
	ClickCount     int64      `db:"click_count" gorm:"not null;default:0"`
	Active         bool       `db:"active" gorm:"not null;default:true;index"`
	CreatedAt      time.Time  `db:"created_at" gorm:"autoCreateTime"`
	UpdatedAt      time.Time  `db:"updated_at" gorm:"autoUpdateTime"`
}

// Expired reports whether the link's expiry instant has passed.
func (l *Link) Expired(now time.Time) bool {
	return l.ExpiresAt != nil && !now.Before(*l.ExpiresAt)
}
