package model

import "time"

// User is a link owner. Authentication lives outside this service; the
// entity exists so spike alerts have a recipient address.
type User struct {
	ID        uint      `db:"id" gorm:"primaryKey"`
	Name      string    `db:"name" gorm:"size:128"`
	Email     string    `db:"email" gorm:"size:255;uniqueIndex"`
	CreatedAt time.Time `db:"created_at" gorm:"autoCreateTime"`
}
