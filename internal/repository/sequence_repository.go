package repository

import (
	"fmt"

	"github.com/yukikurage/apollo-api/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormSequenceRepository is a GORM implementation of SequenceRepository
type GormSequenceRepository struct{}

// NewSequenceRepository creates a new SequenceRepository
func NewSequenceRepository() SequenceRepository {
	return &GormSequenceRepository{}
}

// Next increments the counter first so the row stays write-locked until tx ends.
func (r *GormSequenceRepository) Next(tx *gorm.DB, name, table string) (uint64, error) {
	incremented, err := r.increment(tx, name)
	if err != nil {
		return 0, err
	}

	if !incremented {
		var max uint64
		if err := tx.Table(table).Select("COALESCE(MAX(id), 0)").Scan(&max).Error; err != nil {
			return 0, fmt.Errorf("failed to read max id of %s: %w", table, err)
		}

		seed := models.Sequence{Name: name, Value: max}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
			return 0, fmt.Errorf("failed to seed sequence %s: %w", name, err)
		}

		if incremented, err = r.increment(tx, name); err != nil {
			return 0, err
		}
		if !incremented {
			return 0, fmt.Errorf("sequence %s is missing after seeding", name)
		}
	}

	var seq models.Sequence
	if err := tx.Where("name = ?", name).Take(&seq).Error; err != nil {
		return 0, fmt.Errorf("failed to read sequence %s: %w", name, err)
	}
	return seq.Value, nil
}

func (r *GormSequenceRepository) increment(tx *gorm.DB, name string) (bool, error) {
	result := tx.Model(&models.Sequence{}).
		Where("name = ?", name).
		UpdateColumn("value", gorm.Expr("value + ?", 1))
	if result.Error != nil {
		return false, fmt.Errorf("failed to increment sequence %s: %w", name, result.Error)
	}
	return result.RowsAffected > 0, nil
}
