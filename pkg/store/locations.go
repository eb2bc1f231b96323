package store

import (
	"context"

	"gorm.io/gorm"

	"github.com/arcafs/arca/pkg/models"
)

// ============================================
// LOCATION OPERATIONS
// ============================================

func (s *GORMStore) GetLocation(ctx context.Context, name string) (*models.Location, error) {
	return getByField[models.Location](s.db, ctx, "name", name, models.ErrLocationNotFound)
}

func (s *GORMStore) GetLocationByID(ctx context.Context, id uint) (*models.Location, error) {
	return getByField[models.Location](s.db, ctx, "id", id, models.ErrLocationNotFound)
}

func (s *GORMStore) GetDefaultLocation(ctx context.Context) (*models.Location, error) {
	var loc models.Location
	err := s.db.WithContext(ctx).Where("is_default = ?", true).First(&loc).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrNoDefaultLocation)
	}
	return &loc, nil
}

func (s *GORMStore) ListLocations(ctx context.Context) ([]*models.Location, error) {
	return listAll[models.Location](s.db, ctx, "name ASC")
}

func (s *GORMStore) CreateLocation(ctx context.Context, loc *models.Location) error {
	if err := models.ValidateLocationName(loc.Name); err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if loc.IsDefault {
			if err := clearDefaultLocation(tx); err != nil {
				return err
			}
		}
		if err := tx.Create(loc).Error; err != nil {
			if isUniqueConstraintError(err) {
				return models.ErrDuplicateLocation
			}
			return err
		}
		return nil
	})
}

func (s *GORMStore) SetDefaultLocation(ctx context.Context, name string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var loc models.Location
		if err := tx.Where("name = ?", name).First(&loc).Error; err != nil {
			return convertNotFoundError(err, models.ErrLocationNotFound)
		}
		if loc.IsDefault {
			return nil
		}
		if err := clearDefaultLocation(tx); err != nil {
			return err
		}
		return tx.Model(&models.Location{}).
			Where("id = ?", loc.ID).
			Update("is_default", true).Error
	})
}

func clearDefaultLocation(tx *gorm.DB) error {
	return tx.Model(&models.Location{}).
		Where("is_default = ?", true).
		Update("is_default", false).Error
}
