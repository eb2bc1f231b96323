package models

import (
	"fmt"
	"time"
)

// MultipartObject tracks an in-progress chunked upload. The final size is
// fixed at creation: size = last_part_number*chunk_size + last_part_size,
// with 0 < last_part_size <= chunk_size. Parts are numbered from zero and
// every part except the last must be exactly chunk_size bytes.
type MultipartObject struct {
	UploadID       string       `gorm:"primaryKey;size:36" json:"id"`
	BucketID       string       `gorm:"not null;size:36;index:idx_multipart_bucket_key,priority:1" json:"-"`
	Key            string       `gorm:"not null;size:255;index:idx_multipart_bucket_key,priority:2" json:"key"`
	FileID         string       `gorm:"not null;size:36;index" json:"-"`
	File           FileInstance `gorm:"foreignKey:FileID" json:"-"`
	ChunkSize      int64        `gorm:"not null" json:"chunk_size"`
	Size           int64        `gorm:"not null" json:"size"`
	LastPartNumber int64        `gorm:"not null" json:"-"`
	LastPartSize   int64        `gorm:"not null" json:"-"`
	Completed      bool         `gorm:"not null;default:false" json:"completed"`
	CreatedAt      time.Time    `gorm:"autoCreateTime" json:"created"`
	UpdatedAt      time.Time    `gorm:"autoUpdateTime" json:"updated"`
}

// TableName returns the table name for GORM
func (MultipartObject) TableName() string {
	return "multipart_objects"
}

// SplitParts derives the part layout for a multipart upload of size bytes
// cut into chunkSize pieces. When size is an exact multiple of chunkSize the
// last part absorbs a full chunk rather than being empty.
func SplitParts(size, chunkSize int64) (lastPartNumber, lastPartSize int64) {
	lastPartNumber = size / chunkSize
	lastPartSize = size % chunkSize
	if lastPartSize == 0 {
		lastPartNumber--
		lastPartSize = chunkSize
	}
	return lastPartNumber, lastPartSize
}

// NewMultipartObject computes the part layout for the given total size and
// chunk size. Bounds on the chunk size and part count are enforced by the
// caller against configured limits; this only rejects sizes that cannot be
// split at all.
func NewMultipartObject(uploadID, bucketID, key, fileID string, size, chunkSize int64) (*MultipartObject, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: part size must be positive", ErrMultipartInvalidChunkSize)
	}
	if size <= 0 {
		return nil, fmt.Errorf("%w: upload size must be positive", ErrMultipartInvalidSize)
	}
	lastNum, lastSize := SplitParts(size, chunkSize)
	return &MultipartObject{
		UploadID:       uploadID,
		BucketID:       bucketID,
		Key:            key,
		FileID:         fileID,
		ChunkSize:      chunkSize,
		Size:           size,
		LastPartNumber: lastNum,
		LastPartSize:   lastSize,
	}, nil
}

// PartCount returns the total number of parts in the upload.
func (m *MultipartObject) PartCount() int64 {
	return m.LastPartNumber + 1
}

// ExpectedPartSize returns the exact byte size part partNumber must have.
func (m *MultipartObject) ExpectedPartSize(partNumber int64) (int64, error) {
	if partNumber < 0 || partNumber > m.LastPartNumber {
		return 0, fmt.Errorf("%w: part %d out of range 0-%d",
			ErrMultipartInvalidPartNumber, partNumber, m.LastPartNumber)
	}
	if partNumber == m.LastPartNumber {
		return m.LastPartSize, nil
	}
	return m.ChunkSize, nil
}

// PartRange returns the byte range [start, end) part partNumber occupies in
// the assembled file.
func (m *MultipartObject) PartRange(partNumber int64) (start, end int64, err error) {
	size, err := m.ExpectedPartSize(partNumber)
	if err != nil {
		return 0, 0, err
	}
	start = partNumber * m.ChunkSize
	return start, start + size, nil
}

// Expired reports whether the upload has outlived the given lifetime without
// completing.
func (m *MultipartObject) Expired(now time.Time, lifetime time.Duration) bool {
	if m.Completed {
		return false
	}
	return now.Sub(m.CreatedAt) > lifetime
}

// Part is one uploaded chunk of a multipart upload. Re-uploading a part
// number replaces the previous record.
type Part struct {
	UploadID   string    `gorm:"primaryKey;size:36" json:"-"`
	PartNumber int64     `gorm:"primaryKey" json:"part_number"`
	Checksum   string    `gorm:"size:255" json:"checksum,omitempty"`
	StartByte  int64     `gorm:"not null" json:"start_byte"`
	EndByte    int64     `gorm:"not null" json:"end_byte"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated"`
}

// TableName returns the table name for GORM
func (Part) TableName() string {
	return "parts"
}

// Size returns the byte length of the part.
func (p *Part) Size() int64 {
	return p.EndByte - p.StartByte
}
