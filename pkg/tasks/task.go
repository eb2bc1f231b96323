// Package tasks runs background maintenance for the object store.
//
// It combines a durable BadgerDB-backed queue with a worker pool and a
// ticker-driven scheduler. Tasks survive restarts: a claimed task whose
// worker dies is requeued once its claim goes stale, and failed tasks are
// retried with exponential backoff until their attempt budget runs out.
package tasks

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Task kinds understood by the worker pool. A handler must be registered for
// every kind that can appear in the queue; tasks with no handler are dropped.
const (
	KindVerifyChecksum       = "verify_checksum"
	KindScheduleVerification = "schedule_checksum_verification"
	KindMigrateFile          = "migrate_file"
	KindRemoveFileData       = "remove_file_data"
	KindClearOrphanedFiles   = "clear_orphaned_files"
	KindRemoveExpiredUploads = "remove_expired_multipartobjects"
	KindMergeMultipart       = "merge_multipartobject"
)

// Task is one unit of queued work. The payload is opaque to the queue and
// decoded by the handler registered for the kind. Attempts counts how many
// times the task has been handed to a handler, including the current run.
type Task struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Attempts   int             `json:"attempts"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// NewTask builds a task envelope for the given kind. A nil payload enqueues
// an empty envelope; anything else is JSON-marshaled.
func NewTask(kind string, payload any) (*Task, error) {
	t := &Task{
		ID:         uuid.New().String(),
		Kind:       kind,
		EnqueuedAt: time.Now().UTC(),
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %w", kind, err)
		}
		t.Payload = data
	}
	return t, nil
}

// VerifyChecksumPayload asks for one file instance to be re-hashed and the
// result recorded. Pessimistic additionally fails the task when the content
// is missing; Throws propagates backend errors instead of logging them.
type VerifyChecksumPayload struct {
	FileID      string `json:"file_id"`
	Pessimistic bool   `json:"pessimistic,omitempty"`
	Throws      bool   `json:"throws,omitempty"`
}

// ScheduleVerificationPayload tunes one fixity scheduling pass. Zero values
// fall back to the configured defaults. When MaxSize is set the batch is
// sliced by bytes instead of file count.
type ScheduleVerificationPayload struct {
	Frequency     time.Duration `json:"frequency,omitempty"`
	BatchInterval time.Duration `json:"batch_interval,omitempty"`
	MaxCount      int           `json:"max_count,omitempty"`
	MaxSize       int64         `json:"max_size,omitempty"`
}

// MigrateFilePayload moves the content of one file instance to another
// location and repoints every referencing object version at the copy.
type MigrateFilePayload struct {
	SrcID           string `json:"src_id"`
	LocationName    string `json:"location_name"`
	PostFixityCheck bool   `json:"post_fixity_check,omitempty"`
}

// RemoveFileDataPayload deletes one unreferenced file instance and its blob.
// Force also removes readable instances, which are otherwise kept.
type RemoveFileDataPayload struct {
	FileID string `json:"file_id"`
	Force  bool   `json:"force,omitempty"`
}

// ClearOrphanedFilesPayload sweeps for unreferenced file instances and
// schedules their removal.
type ClearOrphanedFilesPayload struct {
	Force bool `json:"force,omitempty"`
}

// MergeMultipartPayload assembles a completed multipart upload into its
// final blob and publishes the resulting object version.
type MergeMultipartPayload struct {
	UploadID string `json:"upload_id"`
}
