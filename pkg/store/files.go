package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/arcafs/arca/pkg/models"
)

// Subqueries guarding file instance deletion. An instance is referenced
// while any object version points at it or any multipart upload is still
// assembling into it.
const (
	noVersionRefs   = "NOT EXISTS (SELECT 1 FROM object_versions WHERE object_versions.file_id = file_instances.id)"
	noMultipartRefs = "NOT EXISTS (SELECT 1 FROM multipart_objects WHERE multipart_objects.file_id = file_instances.id)"
)

// ============================================
// FILE INSTANCE OPERATIONS
// ============================================

func (s *GORMStore) CreateFileInstance(ctx context.Context, file *models.FileInstance) (string, error) {
	if file.ID == "" {
		file.ID = uuid.New().String()
	}
	now := time.Now()
	file.CreatedAt = now
	file.UpdatedAt = now

	if err := s.db.WithContext(ctx).Create(file).Error; err != nil {
		return "", err
	}
	return file.ID, nil
}

func (s *GORMStore) GetFileInstance(ctx context.Context, id string) (*models.FileInstance, error) {
	return getByField[models.FileInstance](s.db, ctx, "id", id, models.ErrFileNotFound)
}

func (s *GORMStore) GetFileInstanceByURI(ctx context.Context, uri string) (*models.FileInstance, error) {
	return getByField[models.FileInstance](s.db, ctx, "uri", uri, models.ErrFileNotFound)
}

func (s *GORMStore) MarkFileStored(ctx context.Context, file *models.FileInstance) error {
	result := s.db.WithContext(ctx).
		Model(&models.FileInstance{}).
		Where("id = ? AND (checksum IS NULL OR checksum = '')", file.ID).
		Updates(map[string]any{
			"uri":             file.URI,
			"storage_backend": file.StorageBackend,
			"storage_class":   file.StorageClass,
			"size":            file.Size,
			"checksum":        file.Checksum,
			"readable":        true,
			"writable":        false,
			"updated_at":      time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		// Either the instance is gone or its checksum is already frozen.
		if _, err := s.GetFileInstance(ctx, file.ID); err != nil {
			return err
		}
		return models.ErrFileInstanceAlreadySet
	}
	return nil
}

func (s *GORMStore) SetFileCheckResult(ctx context.Context, id string, ok *bool, at time.Time) error {
	// A nil ok is stored as NULL: the content could not be found, so neither
	// pass nor fail applies.
	result := s.db.WithContext(ctx).
		Model(&models.FileInstance{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_check":    ok,
			"last_check_at": at,
			"updated_at":    time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrFileNotFound
	}
	return nil
}

func (s *GORMStore) UpdateFileLocation(ctx context.Context, id, uri, storageBackend, storageClass string) error {
	result := s.db.WithContext(ctx).
		Model(&models.FileInstance{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"uri":             uri,
			"storage_backend": storageBackend,
			"storage_class":   storageClass,
			"updated_at":      time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrFileNotFound
	}
	return nil
}

func (s *GORMStore) DeleteFileInstance(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).
		Where("id = ?", id).
		Where(noVersionRefs).
		Where(noMultipartRefs).
		Delete(&models.FileInstance{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := s.GetFileInstance(ctx, id); err != nil {
			return err
		}
		return models.ErrFileInUse
	}
	return nil
}

func (s *GORMStore) ListOrphanedFiles(ctx context.Context, before time.Time, limit int) ([]*models.FileInstance, error) {
	q := s.db.WithContext(ctx).
		Where("created_at < ?", before).
		Where(noVersionRefs).
		Where(noMultipartRefs).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var files []*models.FileInstance
	if err := q.Find(&files).Error; err != nil {
		return nil, err
	}
	return files, nil
}

func (s *GORMStore) CountReadableFiles(ctx context.Context) (count, totalSize int64, err error) {
	row := struct {
		N     int64
		Total int64
	}{}
	err = s.db.WithContext(ctx).
		Model(&models.FileInstance{}).
		Select("COUNT(*) AS n, COALESCE(SUM(size), 0) AS total").
		Where("readable = ?", true).
		Scan(&row).Error
	if err != nil {
		return 0, 0, err
	}
	return row.N, row.Total, nil
}

func (s *GORMStore) ListFilesForVerification(ctx context.Context, checkedBefore time.Time, limit int) ([]*models.FileInstance, error) {
	q := s.db.WithContext(ctx).
		Where("readable = ?", true).
		Where("last_check_at IS NULL OR last_check_at < ?", checkedBefore).
		// never-checked instances first, then least recently checked
		Order("(last_check_at IS NULL) DESC, last_check_at ASC, created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var files []*models.FileInstance
	if err := q.Find(&files).Error; err != nil {
		return nil, err
	}
	return files, nil
}
