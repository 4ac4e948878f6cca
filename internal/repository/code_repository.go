package repository

import (
	"time"

	"github.com/yukikurage/apollo-api/internal/models"
	"gorm.io/gorm"
)

// GormCodeRepository is a GORM implementation of CodeRepository
type GormCodeRepository struct {
	db *gorm.DB
}

// NewCodeRepository creates a new CodeRepository
func NewCodeRepository(db *gorm.DB) CodeRepository {
	return &GormCodeRepository{db: db}
}

func (r *GormCodeRepository) CreateSignUpCode(code *models.SignUpCode) error {
	return r.db.Create(code).Error
}

// FindValidSignUpCode returns the newest matching code that has not expired.
func (r *GormCodeRepository) FindValidSignUpCode(code, email string, now time.Time) (*models.SignUpCode, error) {
	var record models.SignUpCode
	err := r.db.
		Where("sign_up_code = ? AND email = ? AND expires_at > ?", code, email, now).
		Order("expires_at DESC").
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *GormCodeRepository) CreatePasswordReset(reset *models.PasswordReset) error {
	return r.db.Create(reset).Error
}

// FindValidPasswordReset returns the newest matching reset code that has not expired.
func (r *GormCodeRepository) FindValidPasswordReset(code string, now time.Time) (*models.PasswordReset, error) {
	var record models.PasswordReset
	err := r.db.
		Where("reset_code = ? AND expires_at > ?", code, now).
		Order("expires_at DESC").
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// DeleteExpired purges both code tables in one transaction.
func (r *GormCodeRepository) DeleteExpired(now time.Time) (int64, error) {
	var deleted int64
	err := r.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Where("expires_at <= ?", now).Delete(&models.SignUpCode{})
		if result.Error != nil {
			return result.Error
		}
		deleted += result.RowsAffected

		result = tx.Where("expires_at <= ?", now).Delete(&models.PasswordReset{})
		if result.Error != nil {
			return result.Error
		}
		deleted += result.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}
