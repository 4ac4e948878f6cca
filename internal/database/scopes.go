package database

import (
	"gorm.io/gorm"

	"github.com/yukikurage/apollo-api/internal/utils"
)

// Paginate applies pagination to a GORM query
func Paginate(params utils.PaginationParams) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Offset(params.Offset).Limit(params.Limit)
	}
}

// Visible restricts a post query to posts that have not been soft-deleted
func Visible(db *gorm.DB) *gorm.DB {
	return db.Where("posts.visibility = ?", true)
}

// NewestFirst orders posts by creation date, most recent first
func NewestFirst(db *gorm.DB) *gorm.DB {
	return db.Order("posts.date_created DESC").Order("posts.id DESC")
}
