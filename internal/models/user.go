package models

import (
	"time"

	"gorm.io/datatypes"
)

type User struct {
	ID                    uint64                      `gorm:"primarykey;autoIncrement:false" json:"_id"`
	Username              string                      `gorm:"type:varchar(50);uniqueIndex;not null" json:"username"`
	Email                 string                      `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	PasswordHash          string                      `gorm:"type:varchar(255);not null" json:"-"`
	HasActiveSubscription bool                        `gorm:"not null;default:false" json:"hasActiveSubscription"`
	ProfileImageObj       string                      `gorm:"type:text" json:"profileImageObj,omitempty"`
	SignUpDate            time.Time                   `gorm:"not null" json:"signUpDate"`
	CurrentLoginStreak    int                         `gorm:"not null;default:1" json:"currentLoginStreak"`
	WeeklyLoginStreak     int                         `gorm:"not null;default:1" json:"weeklyLoginStreak"`
	DaysThisYear          int                         `gorm:"not null;default:1" json:"daysInApolloThisYear"`
	LoggedDays            datatypes.JSONSlice[string] `json:"loggedDays"`
	CreatedAt             time.Time                   `json:"-"`
	UpdatedAt             time.Time                   `json:"-"`
}
