package models

import "time"

// PasswordReset holds a one-time reset code. It is redeemable until ExpiresAt.
type PasswordReset struct {
	ID        uint64    `gorm:"primarykey" json:"id"`
	ResetCode string    `gorm:"type:varchar(16);not null;index" json:"resetCode"`
	Email     string    `gorm:"type:varchar(255);not null" json:"email"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expired"`
	CreatedAt time.Time `json:"created_at"`
}

// SignUpCode holds the code emailed when a signup is initiated.
type SignUpCode struct {
	ID         uint64    `gorm:"primarykey" json:"id"`
	SignUpCode string    `gorm:"type:varchar(16);not null;index" json:"signUpCode"`
	Email      string    `gorm:"type:varchar(255);not null;index" json:"email"`
	ExpiresAt  time.Time `gorm:"not null;index" json:"expired"`
	CreatedAt  time.Time `json:"created_at"`
}
