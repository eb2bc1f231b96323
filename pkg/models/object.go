package models

import "time"

// ObjectVersion binds a key in a bucket to a file instance. Many versions
// share a (bucket, key); exactly one of them is the head, enforced by a
// partial unique index so two concurrent writers cannot both win. A version
// with no file instance is a delete marker.
type ObjectVersion struct {
	BucketID  string        `gorm:"primaryKey;size:36;index:idx_object_versions_head,unique,where:is_head,priority:1" json:"-"`
	Key       string        `gorm:"primaryKey;size:255;index:idx_object_versions_head,unique,where:is_head,priority:2" json:"key"`
	VersionID string        `gorm:"primaryKey;size:36" json:"version_id"`
	FileID    *string       `gorm:"size:36;index" json:"-"`
	File      *FileInstance `gorm:"foreignKey:FileID" json:"-"`
	Mimetype  string        `gorm:"size:255" json:"mimetype,omitempty"`
	IsHead    bool          `gorm:"column:is_head;not null;default:false" json:"is_head"`
	CreatedAt time.Time     `gorm:"autoCreateTime" json:"created"`
	UpdatedAt time.Time     `gorm:"autoUpdateTime" json:"updated"`
}

// TableName returns the table name for GORM
func (ObjectVersion) TableName() string {
	return "object_versions"
}

// IsDeleteMarker reports whether this version records a deletion instead of
// content.
func (v *ObjectVersion) IsDeleteMarker() bool {
	return v.FileID == nil
}

// Size returns the content size, or zero for delete markers and versions
// loaded without their file instance.
func (v *ObjectVersion) Size() int64 {
	if v.File == nil {
		return 0
	}
	return v.File.Size
}

// ObjectVersionTag is a key/value annotation on a single object version.
// Keys are unique per version; setting an existing key replaces its value.
type ObjectVersionTag struct {
	VersionID string    `gorm:"primaryKey;size:36" json:"-"`
	Key       string    `gorm:"primaryKey;size:255" json:"key"`
	Value     string    `gorm:"not null;type:text" json:"value"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"-"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"-"`
}

// TableName returns the table name for GORM
func (ObjectVersionTag) TableName() string {
	return "object_version_tags"
}
