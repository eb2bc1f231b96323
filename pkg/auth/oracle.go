package auth

import (
	"context"
	"errors"
	"fmt"
)

// ErrPermissionDenied is returned by oracles for denied actions. The API
// layer maps it to 404 (existence hiding) or 401/403 depending on config.
var ErrPermissionDenied = errors.New("permission denied")

// Action names an operation submitted to the authorization oracle.
type Action string

// The fixed action set. Object writes and multipart initiation fall under
// BucketUpdate: creating content is a mutation of the bucket.
const (
	ActionLocationUpdate       Action = "location-update"
	ActionBucketRead           Action = "bucket-read"
	ActionBucketReadVersions   Action = "bucket-read-versions"
	ActionBucketUpdate         Action = "bucket-update"
	ActionBucketListMultiparts Action = "bucket-listmultiparts"
	ActionObjectRead           Action = "object-read"
	ActionObjectReadVersion    Action = "object-read-version"
	ActionObjectDelete         Action = "object-delete"
	ActionObjectDeleteVersion  Action = "object-delete-version"
	ActionMultipartRead        Action = "multipart-read"
	ActionMultipartDelete      Action = "multipart-delete"
)

// Target identifies what an action applies to. Unused fields stay empty:
// a bucket-level action carries only Bucket, a version-level one adds Key
// and VersionID, a multipart one UploadID.
type Target struct {
	Bucket    string
	Key       string
	VersionID string
	UploadID  string
}

// Oracle decides whether a principal may perform an action on a target.
// A nil return allows the operation.
type Oracle interface {
	Authorize(ctx context.Context, principal Principal, action Action, target Target) error
}

// AllowAll permits every action. Used when authentication is disabled.
type AllowAll struct{}

func (AllowAll) Authorize(ctx context.Context, principal Principal, action Action, target Target) error {
	return nil
}

// readActions are permitted to every authenticated role.
var readActions = map[Action]bool{
	ActionBucketRead:           true,
	ActionBucketReadVersions:   true,
	ActionBucketListMultiparts: true,
	ActionObjectRead:           true,
	ActionObjectReadVersion:    true,
	ActionMultipartRead:        true,
}

// writeActions are additionally permitted to writers. Location management
// and permanent version deletion stay admin-only.
var writeActions = map[Action]bool{
	ActionBucketUpdate:    true,
	ActionObjectDelete:    true,
	ActionMultipartDelete: true,
}

// RoleOracle authorizes by the principal's role: admins may do everything,
// writers read and mutate content, readers only read.
type RoleOracle struct{}

func (RoleOracle) Authorize(ctx context.Context, principal Principal, action Action, target Target) error {
	switch principal.Role {
	case RoleAdmin:
		return nil
	case RoleWriter:
		if readActions[action] || writeActions[action] {
			return nil
		}
	case RoleReader:
		if readActions[action] {
			return nil
		}
	}
	return fmt.Errorf("%w: %s may not %s", ErrPermissionDenied, principal.Subject, action)
}

// Compile-time oracle checks.
var (
	_ Oracle = AllowAll{}
	_ Oracle = RoleOracle{}
)
