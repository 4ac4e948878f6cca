package models

import "time"

// RefreshToken stores an issued refresh token. The record id is what clients hold;
// the token carries its own expiry.
type RefreshToken struct {
	ID        string    `gorm:"primarykey;type:varchar(36)" json:"id"`
	UserID    uint64    `gorm:"not null;index" json:"user_id"`
	Token     string    `gorm:"type:text;not null" json:"-"`
	CreatedAt time.Time `json:"created"`
}
