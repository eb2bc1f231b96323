package models

import "time"

// Bucket is a container of objects. Size is denormalized and counts every
// stored version, including non-head history, so quota checks never scan the
// object table. Quota and per-file limits are nullable; nil means the
// instance-wide configured limit applies alone.
type Bucket struct {
	ID                  string   `gorm:"primaryKey;size:36" json:"id"`
	DefaultLocationID   uint     `gorm:"not null;index" json:"-"`
	DefaultLocation     Location `gorm:"foreignKey:DefaultLocationID" json:"-"`
	DefaultStorageClass string   `gorm:"not null;size:2" json:"-"`
	Size                int64    `gorm:"not null;default:0" json:"size"`
	QuotaSize           *int64   `json:"quota_size"`
	MaxFileSize         *int64   `json:"max_file_size"`
	Locked              bool     `gorm:"not null;default:false" json:"locked"`
	Deleted             bool     `gorm:"not null;default:false" json:"-"`
	CreatedAt           time.Time `gorm:"autoCreateTime" json:"created"`
	UpdatedAt           time.Time `gorm:"autoUpdateTime" json:"updated"`
}

// TableName returns the table name for GORM
func (Bucket) TableName() string {
	return "buckets"
}

// Active reports whether the bucket accepts reads and writes at all.
func (b *Bucket) Active() bool {
	return !b.Deleted
}

// Mutable reports whether the bucket accepts content changes.
func (b *Bucket) Mutable() bool {
	return !b.Deleted && !b.Locked
}

// QuotaLeft returns the remaining quota in bytes, or nil when the bucket has
// no quota.
func (b *Bucket) QuotaLeft() *int64 {
	if b.QuotaSize == nil {
		return nil
	}
	left := *b.QuotaSize - b.Size
	if left < 0 {
		left = 0
	}
	return &left
}

// FitsQuota reports whether adding size bytes stays within the bucket quota.
// Exact fits are accepted.
func (b *Bucket) FitsQuota(size int64) bool {
	if b.QuotaSize == nil {
		return true
	}
	return b.Size+size <= *b.QuotaSize
}

// BucketTag is a key/value annotation on a bucket. Keys are unique per
// bucket; setting an existing key replaces its value.
type BucketTag struct {
	BucketID  string    `gorm:"primaryKey;size:36" json:"-"`
	Key       string    `gorm:"primaryKey;size:255" json:"key"`
	Value     string    `gorm:"not null;type:text" json:"value"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"-"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"-"`
}

// TableName returns the table name for GORM
func (BucketTag) TableName() string {
	return "bucket_tags"
}
