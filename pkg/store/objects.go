package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/arcafs/arca/pkg/models"
)

// ============================================
// OBJECT VERSION OPERATIONS
// ============================================

func (s *GORMStore) GetHeadVersion(ctx context.Context, bucketID, key string) (*models.ObjectVersion, error) {
	var version models.ObjectVersion
	err := s.db.WithContext(ctx).
		Preload("File").
		Where("bucket_id = ? AND key = ? AND is_head = ?", bucketID, key, true).
		First(&version).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrObjectNotFound)
	}
	return &version, nil
}

func (s *GORMStore) GetVersion(ctx context.Context, bucketID, key, versionID string) (*models.ObjectVersion, error) {
	var version models.ObjectVersion
	err := s.db.WithContext(ctx).
		Preload("File").
		Where("bucket_id = ? AND key = ? AND version_id = ?", bucketID, key, versionID).
		First(&version).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrVersionNotFound)
	}
	return &version, nil
}

func (s *GORMStore) ListHeads(ctx context.Context, bucketID string, opts ListObjectsOptions) ([]*models.ObjectVersion, error) {
	q := s.db.WithContext(ctx).
		Preload("File").
		Where("bucket_id = ? AND is_head = ?", bucketID, true)
	if !opts.WithDeleteMarkers {
		q = q.Where("file_id IS NOT NULL")
	}
	q = applyListOptions(q, opts)

	var versions []*models.ObjectVersion
	if err := q.Order("key ASC").Find(&versions).Error; err != nil {
		return nil, err
	}
	return versions, nil
}

func (s *GORMStore) ListVersions(ctx context.Context, bucketID string, opts ListObjectsOptions) ([]*models.ObjectVersion, error) {
	q := s.db.WithContext(ctx).
		Preload("File").
		Where("bucket_id = ?", bucketID)
	q = applyListOptions(q, opts)

	var versions []*models.ObjectVersion
	if err := q.Order("key ASC, created_at DESC, version_id DESC").Find(&versions).Error; err != nil {
		return nil, err
	}
	return versions, nil
}

func (s *GORMStore) ListKeyVersions(ctx context.Context, bucketID, key string) ([]*models.ObjectVersion, error) {
	var versions []*models.ObjectVersion
	err := s.db.WithContext(ctx).
		Preload("File").
		Where("bucket_id = ? AND key = ?", bucketID, key).
		Order("created_at DESC, version_id DESC").
		Find(&versions).Error
	if err != nil {
		return nil, err
	}
	return versions, nil
}

func (s *GORMStore) SetHeadVersion(ctx context.Context, version *models.ObjectVersion) error {
	if version.VersionID == "" {
		version.VersionID = uuid.New().String()
	}
	version.IsHead = true
	now := time.Now()
	version.CreatedAt = now
	version.UpdatedAt = now

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&models.ObjectVersion{}).
			Where("bucket_id = ? AND key = ? AND is_head = ?", version.BucketID, version.Key, true).
			Updates(map[string]any{
				"is_head":    false,
				"updated_at": now,
			}).Error
		if err != nil {
			return err
		}
		return tx.Omit("File").Create(version).Error
	})
	if err != nil {
		// The partial head index rejects the insert when another writer
		// promoted a head between our demote and create.
		if isUniqueConstraintError(err) {
			return models.ErrStaleUpdate
		}
		return err
	}
	return nil
}

func (s *GORMStore) DeleteVersion(ctx context.Context, bucketID, key, versionID string) (*models.ObjectVersion, error) {
	var deleted models.ObjectVersion
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Preload("File").
			Where("bucket_id = ? AND key = ? AND version_id = ?", bucketID, key, versionID).
			First(&deleted).Error
		if err != nil {
			return convertNotFoundError(err, models.ErrVersionNotFound)
		}

		err = tx.Where("version_id = ?", versionID).
			Delete(&models.ObjectVersionTag{}).Error
		if err != nil {
			return err
		}

		err = tx.Where("bucket_id = ? AND key = ? AND version_id = ?", bucketID, key, versionID).
			Delete(&models.ObjectVersion{}).Error
		if err != nil {
			return err
		}

		if !deleted.IsHead {
			return nil
		}

		// Promote the most recent remaining version, if any.
		var next models.ObjectVersion
		err = tx.Where("bucket_id = ? AND key = ?", bucketID, key).
			Order("created_at DESC, version_id DESC").
			First(&next).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		return tx.Model(&models.ObjectVersion{}).
			Where("bucket_id = ? AND key = ? AND version_id = ?", bucketID, key, next.VersionID).
			Updates(map[string]any{
				"is_head":    true,
				"updated_at": time.Now(),
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return &deleted, nil
}

func (s *GORMStore) SnapshotBucket(ctx context.Context, srcBucketID, destBucketID string) (count, totalSize int64, err error) {
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var heads []*models.ObjectVersion
		err := tx.Preload("File").
			Where("bucket_id = ? AND is_head = ? AND file_id IS NOT NULL", srcBucketID, true).
			Find(&heads).Error
		if err != nil {
			return err
		}

		now := time.Now()
		for _, head := range heads {
			dup := models.ObjectVersion{
				BucketID:  destBucketID,
				Key:       head.Key,
				VersionID: uuid.New().String(),
				FileID:    head.FileID,
				Mimetype:  head.Mimetype,
				IsHead:    true,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := tx.Omit("File").Create(&dup).Error; err != nil {
				return err
			}
			count++
			if head.File != nil {
				totalSize += head.File.Size
			}
		}

		return tx.Model(&models.Bucket{}).
			Where("id = ?", destBucketID).
			Updates(map[string]any{
				"size":       gorm.Expr("size + ?", totalSize),
				"updated_at": now,
			}).Error
	})
	if err != nil {
		return 0, 0, err
	}
	return count, totalSize, nil
}

func (s *GORMStore) RelinkFile(ctx context.Context, oldFileID, newFileID string) (int64, error) {
	result := s.db.WithContext(ctx).
		Model(&models.ObjectVersion{}).
		Where("file_id = ?", oldFileID).
		Updates(map[string]any{
			"file_id":    newFileID,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// ============================================
// OBJECT VERSION TAG OPERATIONS
// ============================================

func (s *GORMStore) GetVersionTags(ctx context.Context, versionID string) ([]models.ObjectVersionTag, error) {
	var tags []models.ObjectVersionTag
	err := s.db.WithContext(ctx).
		Where("version_id = ?", versionID).
		Order("key ASC").
		Find(&tags).Error
	if err != nil {
		return nil, err
	}
	return tags, nil
}

func (s *GORMStore) SetVersionTags(ctx context.Context, versionID string, tags map[string]string) error {
	if len(tags) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		err := tx.Model(&models.ObjectVersion{}).
			Where("version_id = ?", versionID).
			Count(&n).Error
		if err != nil {
			return err
		}
		if n == 0 {
			return models.ErrVersionNotFound
		}
		for key, value := range tags {
			tag := models.ObjectVersionTag{VersionID: versionID, Key: key, Value: value}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "version_id"}, {Name: "key"}},
				DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
			}).Create(&tag).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *GORMStore) DeleteVersionTags(ctx context.Context, versionID string, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Where("version_id = ? AND key IN ?", versionID, keys).
		Delete(&models.ObjectVersionTag{}).Error
}

// applyListOptions narrows a version query by prefix, marker and limit.
func applyListOptions(q *gorm.DB, opts ListObjectsOptions) *gorm.DB {
	if opts.Prefix != "" {
		q = q.Where("key LIKE ? ESCAPE '\\'", escapeLike(opts.Prefix)+"%")
	}
	if opts.Marker != "" {
		q = q.Where("key > ?", opts.Marker)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	return q
}

// escapeLike escapes LIKE wildcards so prefixes match literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
