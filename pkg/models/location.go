package models

import (
	"fmt"
	"regexp"
	"time"
)

// MaxLocationNameLength bounds the location slug.
const MaxLocationNameLength = 20

var locationNameRe = regexp.MustCompile(`^[a-z][a-z0-9-]+$`)

// Location is a named storage root. New file instances are placed under the
// URI of the bucket's default location; at most one location is flagged as
// the instance-wide default, enforced by a partial unique index.
type Location struct {
	ID             uint      `gorm:"primaryKey" json:"-"`
	Name           string    `gorm:"uniqueIndex;not null;size:20" json:"name"`
	URI            string    `gorm:"not null;size:255" json:"uri"`
	IsDefault      bool      `gorm:"column:is_default;not null;default:false;index:idx_locations_default,unique,where:is_default" json:"default"`
	StorageBackend string    `gorm:"not null;size:32" json:"storage_backend"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated"`
}

// TableName returns the table name for GORM
func (Location) TableName() string {
	return "locations"
}

// ValidateLocationName checks the location slug format: lowercase ASCII
// letters, digits and dashes, starting with a letter, at most 20 characters.
func ValidateLocationName(name string) error {
	if len(name) < 2 || len(name) > MaxLocationNameLength {
		return fmt.Errorf("%w: name must be 2-%d characters", ErrInvalidLocation, MaxLocationNameLength)
	}
	if !locationNameRe.MatchString(name) {
		return fmt.Errorf("%w: name must match %s", ErrInvalidLocation, locationNameRe.String())
	}
	return nil
}
