package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/arcafs/arca/pkg/models"
)

// ============================================
// BUCKET OPERATIONS
// ============================================

func (s *GORMStore) GetBucket(ctx context.Context, id string) (*models.Bucket, error) {
	return getByField[models.Bucket](s.db, ctx, "id", id, models.ErrBucketNotFound, "DefaultLocation")
}

func (s *GORMStore) ListBuckets(ctx context.Context) ([]*models.Bucket, error) {
	var buckets []*models.Bucket
	err := s.db.WithContext(ctx).
		Preload("DefaultLocation").
		Where("deleted = ?", false).
		Order("created_at ASC").
		Find(&buckets).Error
	if err != nil {
		return nil, err
	}
	return buckets, nil
}

func (s *GORMStore) CreateBucket(ctx context.Context, bucket *models.Bucket) (string, error) {
	if bucket.ID == "" {
		bucket.ID = uuid.New().String()
	}
	now := time.Now()
	bucket.CreatedAt = now
	bucket.UpdatedAt = now

	if err := s.db.WithContext(ctx).Create(bucket).Error; err != nil {
		return "", err
	}
	return bucket.ID, nil
}

func (s *GORMStore) UpdateBucketLimits(ctx context.Context, id string, quotaSize, maxFileSize *int64) error {
	result := s.db.WithContext(ctx).
		Model(&models.Bucket{}).
		Where("id = ? AND deleted = ?", id, false).
		Updates(map[string]any{
			"quota_size":    quotaSize,
			"max_file_size": maxFileSize,
			"updated_at":    time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrBucketNotFound
	}
	return nil
}

func (s *GORMStore) SetBucketLock(ctx context.Context, id string, locked bool) error {
	result := s.db.WithContext(ctx).
		Model(&models.Bucket{}).
		Where("id = ? AND deleted = ?", id, false).
		Updates(map[string]any{
			"locked":     locked,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrBucketNotFound
	}
	return nil
}

func (s *GORMStore) MarkBucketDeleted(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).
		Model(&models.Bucket{}).
		Where("id = ? AND deleted = ?", id, false).
		Updates(map[string]any{
			"deleted":    true,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrBucketNotFound
	}
	return nil
}

func (s *GORMStore) ReserveBucketSpace(ctx context.Context, id string, delta int64, quota *int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var bucket models.Bucket
		if err := s.locking(tx).Where("id = ?", id).First(&bucket).Error; err != nil {
			return convertNotFoundError(err, models.ErrBucketNotFound)
		}
		if bucket.Deleted {
			return models.ErrBucketDeleted
		}
		if bucket.Locked {
			return models.ErrBucketLocked
		}
		if quota != nil && bucket.Size+delta > *quota {
			return fmt.Errorf("%w: %d bytes requested, %d of %d byte quota available",
				models.ErrFileSize, delta, *quota-bucket.Size, *quota)
		}
		return tx.Model(&models.Bucket{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"size":       gorm.Expr("size + ?", delta),
				"updated_at": time.Now(),
			}).Error
	})
}

func (s *GORMStore) AdjustBucketSize(ctx context.Context, id string, delta int64) error {
	result := s.db.WithContext(ctx).
		Model(&models.Bucket{}).
		Where("id = ?", id).
		Updates(map[string]any{
			// portable across SQLite and PostgreSQL, unlike MAX/GREATEST
			"size":       gorm.Expr("CASE WHEN size + ? < 0 THEN 0 ELSE size + ? END", delta, delta),
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrBucketNotFound
	}
	return nil
}

func (s *GORMStore) GetBucketStats(ctx context.Context, id string) (objects, versions int64, err error) {
	db := s.db.WithContext(ctx)

	err = db.Model(&models.ObjectVersion{}).
		Where("bucket_id = ? AND is_head = ? AND file_id IS NOT NULL", id, true).
		Count(&objects).Error
	if err != nil {
		return 0, 0, err
	}

	err = db.Model(&models.ObjectVersion{}).
		Where("bucket_id = ?", id).
		Count(&versions).Error
	if err != nil {
		return 0, 0, err
	}

	return objects, versions, nil
}

// ============================================
// BUCKET TAG OPERATIONS
// ============================================

func (s *GORMStore) GetBucketTags(ctx context.Context, bucketID string) ([]models.BucketTag, error) {
	var tags []models.BucketTag
	err := s.db.WithContext(ctx).
		Where("bucket_id = ?", bucketID).
		Order("key ASC").
		Find(&tags).Error
	if err != nil {
		return nil, err
	}
	return tags, nil
}

func (s *GORMStore) SetBucketTags(ctx context.Context, bucketID string, tags map[string]string) error {
	if len(tags) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var bucket models.Bucket
		if err := tx.Select("id").Where("id = ?", bucketID).First(&bucket).Error; err != nil {
			return convertNotFoundError(err, models.ErrBucketNotFound)
		}
		for key, value := range tags {
			tag := models.BucketTag{BucketID: bucketID, Key: key, Value: value}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "bucket_id"}, {Name: "key"}},
				DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
			}).Create(&tag).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *GORMStore) DeleteBucketTags(ctx context.Context, bucketID string, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Where("bucket_id = ? AND key IN ?", bucketID, keys).
		Delete(&models.BucketTag{}).Error
}
