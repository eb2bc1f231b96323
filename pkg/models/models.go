// Package models defines the catalog entities: storage locations, buckets,
// object versions, file instances, multipart uploads and their tags.
// Persistence lives in pkg/store; these types carry only the data and the
// pure rules that need no database.
package models

// AllModels returns instances of all models for auto-migration
func AllModels() []any {
	return []any{
		&Location{},
		&Bucket{},
		&BucketTag{},
		&FileInstance{},
		&ObjectVersion{},
		&ObjectVersionTag{},
		&MultipartObject{},
		&Part{},
	}
}
