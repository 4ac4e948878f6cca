package repository

import (
	"time"

	"github.com/yukikurage/apollo-api/internal/models"
	"github.com/yukikurage/apollo-api/internal/utils"
	"gorm.io/gorm"
)

// SequenceRepository allocates sequential ids.
type SequenceRepository interface {
	// Next returns the next id for the named sequence inside tx.
	// A missing counter is seeded from MAX(id) of table.
	Next(tx *gorm.DB, name, table string) (uint64, error)
}

// UserRepository defines the interface for user data access
type UserRepository interface {
	// CreateWithNextID allocates the next user id and creates the user in one transaction.
	CreateWithNextID(user *models.User) error

	// FindByID finds a user by ID
	FindByID(id uint64) (*models.User, error)

	// FindByUsername finds a user by username
	FindByUsername(username string) (*models.User, error)

	// FindByEmail finds a user by email
	FindByEmail(email string) (*models.User, error)

	// UpdateFields updates the given columns of a user
	UpdateFields(id uint64, fields map[string]interface{}) error

	// SaveStreak persists the streak columns of user
	SaveStreak(user *models.User) error
}

// PostFilter holds filtering options for listing posts
type PostFilter struct {
	BookmarkedBy *uint64
	Chords       []string
	Pagination   utils.PaginationParams
}

// PostRepository defines the interface for post data access
type PostRepository interface {
	// CreateWithNextID allocates the next post id and creates the post with its chord index.
	CreateWithNextID(post *models.Post) error

	// FindByID finds a post by ID with likes and bookmarks preloaded
	FindByID(id uint64) (*models.Post, error)

	// SetVisibility flips the soft-delete flag of a post
	SetVisibility(id uint64, visible bool) error

	// ListVisible lists visible posts newest first
	ListVisible(filter PostFilter) ([]models.Post, error)

	AddLike(postID, userID uint64) error
	RemoveLike(postID, userID uint64) error
	AddBookmark(postID, userID uint64) error
	RemoveBookmark(postID, userID uint64) error
}

// CodeRepository stores one-time signup and password reset codes
type CodeRepository interface {
	CreateSignUpCode(code *models.SignUpCode) error

	// FindValidSignUpCode finds an unexpired signup code issued to email
	FindValidSignUpCode(code, email string, now time.Time) (*models.SignUpCode, error)

	CreatePasswordReset(reset *models.PasswordReset) error

	// FindValidPasswordReset finds an unexpired password reset code
	FindValidPasswordReset(code string, now time.Time) (*models.PasswordReset, error)

	// DeleteExpired removes codes that expired before now and reports how many were removed
	DeleteExpired(now time.Time) (int64, error)
}

// RefreshTokenRepository stores issued refresh tokens
type RefreshTokenRepository interface {
	Create(token *models.RefreshToken) error
	FindByID(id string) (*models.RefreshToken, error)
}

// EarlyAccessRepository records emails granted early access
type EarlyAccessRepository interface {
	Exists(email string) (bool, error)
	Create(record *models.EarlyAccess) error
}
