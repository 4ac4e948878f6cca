package repository

import (
	"github.com/yukikurage/apollo-api/internal/models"
	"gorm.io/gorm"
)

// GormEarlyAccessRepository is a GORM implementation of EarlyAccessRepository
type GormEarlyAccessRepository struct {
	db *gorm.DB
}

// NewEarlyAccessRepository creates a new EarlyAccessRepository
func NewEarlyAccessRepository(db *gorm.DB) EarlyAccessRepository {
	return &GormEarlyAccessRepository{db: db}
}

func (r *GormEarlyAccessRepository) Exists(email string) (bool, error) {
	var count int64
	if err := r.db.Model(&models.EarlyAccess{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *GormEarlyAccessRepository) Create(record *models.EarlyAccess) error {
	return r.db.Create(record).Error
}
