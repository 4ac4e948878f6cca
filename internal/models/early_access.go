package models

import "time"

// EarlyAccess marks an email as already authorized for early access.
type EarlyAccess struct {
	ID        uint64    `gorm:"primarykey" json:"id"`
	Email     string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	CreatedAt time.Time `json:"created_at"`
}
