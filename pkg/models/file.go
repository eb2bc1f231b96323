package models

import (
	"strings"
	"time"
)

// FileInstance is one stored copy of content. Instances begin writable and
// unreadable; persisting the content flips them to readable and freezes the
// checksum. The URI is nullable so an instance can be allocated before the
// backend assigns it a place.
type FileInstance struct {
	ID             string     `gorm:"primaryKey;size:36" json:"id"`
	URI            *string    `gorm:"uniqueIndex;size:255" json:"uri,omitempty"`
	StorageBackend string     `gorm:"size:32" json:"storage_backend,omitempty"`
	StorageClass   string     `gorm:"size:2" json:"storage_class,omitempty"`
	Size           int64      `gorm:"not null;default:0" json:"size"`
	Checksum       string     `gorm:"size:255" json:"checksum,omitempty"`
	Readable       bool       `gorm:"not null;default:false" json:"readable"`
	Writable       bool       `gorm:"not null;default:true" json:"writable"`
	LastCheckAt    *time.Time `json:"last_check_at,omitempty"`
	LastCheck      *bool      `json:"last_check,omitempty"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated"`
}

// TableName returns the table name for GORM
func (FileInstance) TableName() string {
	return "file_instances"
}

// ChecksumAlgorithm returns the algorithm prefix of the stored checksum,
// or an empty string when no checksum is set.
func (f *FileInstance) ChecksumAlgorithm() string {
	algo, _, ok := strings.Cut(f.Checksum, ":")
	if !ok {
		return ""
	}
	return algo
}

// ChecksumHex returns the hex digest of the stored checksum without the
// algorithm prefix.
func (f *FileInstance) ChecksumHex() string {
	_, hex, ok := strings.Cut(f.Checksum, ":")
	if !ok {
		return f.Checksum
	}
	return hex
}

// MarkStored records the outcome of a successful content write. The checksum
// is set exactly once; the instance becomes readable and stops accepting
// writes.
func (f *FileInstance) MarkStored(uri string, size int64, checksum string) error {
	if f.Checksum != "" {
		return ErrFileInstanceAlreadySet
	}
	f.URI = &uri
	f.Size = size
	f.Checksum = checksum
	f.Readable = true
	f.Writable = false
	return nil
}

// Deletable reports whether the instance content may be removed. Readable
// instances are only removed when forced, because object versions may still
// point at them.
func (f *FileInstance) Deletable(force bool) bool {
	return f.Writable || force
}
