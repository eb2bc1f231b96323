package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/arcafs/arca/pkg/models"
)

// ============================================
// MULTIPART UPLOAD OPERATIONS
// ============================================

func (s *GORMStore) CreateMultipartUpload(ctx context.Context, upload *models.MultipartObject, file *models.FileInstance) error {
	if upload.UploadID == "" {
		upload.UploadID = uuid.New().String()
	}
	now := time.Now()
	upload.CreatedAt = now
	upload.UpdatedAt = now
	file.CreatedAt = now
	file.UpdatedAt = now

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(file).Error; err != nil {
			return err
		}
		upload.FileID = file.ID
		return tx.Omit("File").Create(upload).Error
	})
}

func (s *GORMStore) GetMultipartUpload(ctx context.Context, uploadID string) (*models.MultipartObject, error) {
	return getByField[models.MultipartObject](s.db, ctx, "upload_id", uploadID, models.ErrUploadNotFound, "File")
}

func (s *GORMStore) ListMultipartUploads(ctx context.Context, bucketID string) ([]*models.MultipartObject, error) {
	var uploads []*models.MultipartObject
	err := s.db.WithContext(ctx).
		Preload("File").
		Where("bucket_id = ? AND completed = ?", bucketID, false).
		Order("created_at ASC").
		Find(&uploads).Error
	if err != nil {
		return nil, err
	}
	return uploads, nil
}

func (s *GORMStore) ListExpiredUploads(ctx context.Context, before time.Time, limit int) ([]*models.MultipartObject, error) {
	q := s.db.WithContext(ctx).
		Preload("File").
		Where("completed = ? AND created_at < ?", false, before).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var uploads []*models.MultipartObject
	if err := q.Find(&uploads).Error; err != nil {
		return nil, err
	}
	return uploads, nil
}

func (s *GORMStore) UpsertPart(ctx context.Context, part *models.Part) error {
	now := time.Now()
	part.CreatedAt = now
	part.UpdatedAt = now

	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "upload_id"}, {Name: "part_number"}},
		DoUpdates: clause.AssignmentColumns([]string{"checksum", "start_byte", "end_byte", "updated_at"}),
	}).Create(part).Error
}

func (s *GORMStore) DeletePart(ctx context.Context, uploadID string, partNumber int64) error {
	return s.db.WithContext(ctx).
		Where("upload_id = ? AND part_number = ?", uploadID, partNumber).
		Delete(&models.Part{}).Error
}

func (s *GORMStore) ListParts(ctx context.Context, uploadID string, limit int, marker int64) ([]models.Part, error) {
	q := s.db.WithContext(ctx).
		Where("upload_id = ? AND part_number > ?", uploadID, marker).
		Order("part_number ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var parts []models.Part
	if err := q.Find(&parts).Error; err != nil {
		return nil, err
	}
	return parts, nil
}

func (s *GORMStore) CountParts(ctx context.Context, uploadID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&models.Part{}).
		Where("upload_id = ?", uploadID).
		Count(&n).Error
	return n, err
}

func (s *GORMStore) CompleteMultipartUpload(ctx context.Context, uploadID string) error {
	result := s.db.WithContext(ctx).
		Model(&models.MultipartObject{}).
		Where("upload_id = ? AND completed = ?", uploadID, false).
		Updates(map[string]any{
			"completed":  true,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := s.GetMultipartUpload(ctx, uploadID); err != nil {
			return err
		}
		return models.ErrMultipartAlreadyCompleted
	}
	return nil
}

func (s *GORMStore) DeleteMultipartUpload(ctx context.Context, uploadID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("upload_id = ?", uploadID).Delete(&models.Part{}).Error; err != nil {
			return err
		}
		result := tx.Where("upload_id = ?", uploadID).Delete(&models.MultipartObject{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return models.ErrUploadNotFound
		}
		return nil
	})
}
