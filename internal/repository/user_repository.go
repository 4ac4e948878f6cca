package repository

import (
	"errors"
	"fmt"

	"github.com/yukikurage/apollo-api/internal/models"
	"gorm.io/gorm"
)

// GormUserRepository is a GORM implementation of UserRepository
type GormUserRepository struct {
	db        *gorm.DB
	sequences SequenceRepository
}

var (
	// ErrAllocateUserID is returned when the id sequence could not be advanced.
	ErrAllocateUserID = errors.New("user repository: allocate id failed")
	// ErrCreateUser is returned when inserting the user fails inside the signup transaction.
	ErrCreateUser = errors.New("user repository: create user failed")
)

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *gorm.DB, sequences SequenceRepository) UserRepository {
	return &GormUserRepository{db: db, sequences: sequences}
}

// CreateWithNextID allocates an id and creates the user atomically.
func (r *GormUserRepository) CreateWithNextID(user *models.User) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		id, err := r.sequences.Next(tx, models.SequenceUsers, "users")
		if err != nil {
			return fmt.Errorf("%w: %v", ErrAllocateUserID, err)
		}
		user.ID = id

		if err := tx.Create(user).Error; err != nil {
			return fmt.Errorf("%w: %v", ErrCreateUser, err)
		}
		return nil
	})
}

// FindByID finds a user by ID
func (r *GormUserRepository) FindByID(id uint64) (*models.User, error) {
	var user models.User
	if err := r.db.First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByUsername finds a user by username
func (r *GormUserRepository) FindByUsername(username string) (*models.User, error) {
	var user models.User
	if err := r.db.Where("username = ?", username).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByEmail finds a user by email
func (r *GormUserRepository) FindByEmail(email string) (*models.User, error) {
	var user models.User
	if err := r.db.Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *GormUserRepository) UpdateFields(id uint64, fields map[string]interface{}) error {
	return r.db.Model(&models.User{}).Where("id = ?", id).Updates(fields).Error
}

func (r *GormUserRepository) SaveStreak(user *models.User) error {
	return r.db.Model(user).
		Select("current_login_streak", "weekly_login_streak", "days_this_year", "logged_days").
		Updates(user).Error
}
