package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/arcafs/arca/internal/logger"
)

// ============================================================================
// Database Key Namespace Design
// ============================================================================
//
// The queue lives in a BadgerDB key-value store. Pending keys embed the
// not-before timestamp as zero-padded nanoseconds, so a prefix scan over "p/"
// walks tasks in due order and the first key tells whether anything is due at
// all.
//
// Data Type      Prefix   Key Format                    Value Type
// =========================================================================
// Pending task   "p/"     p/<unixNanos %020d>/<id>      Task (JSON)
// Active task    "a/"     a/<id>                        activeEntry (JSON)
//
// Claiming moves a task from "p/" to "a/" in a single transaction, so a task
// is always in exactly one of the two namespaces. Active entries record when
// they were claimed; entries older than the claim timeout are swept back to
// pending, which is how work survives a crashed worker.

const (
	prefixPending = "p/"
	prefixActive  = "a/"

	// runAtDigits is the fixed width of the timestamp key segment. Twenty
	// digits hold any int64 nanosecond value.
	runAtDigits = 20
)

// keyPending generates a key for a pending task: "p/<runAt>/<id>"
func keyPending(runAt time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%s%0*d/%s", prefixPending, runAtDigits, runAt.UnixNano(), id))
}

// keyActive generates a key for a claimed task: "a/<id>"
func keyActive(id string) []byte {
	return []byte(prefixActive + id)
}

// parsePendingKey extracts the runAt timestamp from a pending key.
func parsePendingKey(key []byte) (time.Time, error) {
	if len(key) < len(prefixPending)+runAtDigits+1 {
		return time.Time{}, fmt.Errorf("malformed pending key %q", key)
	}
	nanos, err := strconv.ParseInt(string(key[len(prefixPending):len(prefixPending)+runAtDigits]), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed pending key %q: %w", key, err)
	}
	return time.Unix(0, nanos), nil
}

// activeEntry is the stored form of a claimed task.
type activeEntry struct {
	Task      *Task     `json:"task"`
	ClaimedAt time.Time `json:"claimed_at"`
}

func encodeTask(t *Task) ([]byte, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("failed to encode task: %w", err)
	}
	return data, nil
}

func decodeTask(data []byte) (*Task, error) {
	var t Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to decode task: %w", err)
	}
	return &t, nil
}

func encodeActiveEntry(e *activeEntry) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode active entry: %w", err)
	}
	return data, nil
}

func decodeActiveEntry(data []byte) (*activeEntry, error) {
	var e activeEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to decode active entry: %w", err)
	}
	return &e, nil
}

// QueueConfig holds the durable queue settings.
type QueueConfig struct {
	// Path is the BadgerDB directory. Ignored when InMemory is set.
	Path string `mapstructure:"path" json:"path" yaml:"path"`

	// InMemory keeps the queue in RAM, losing durability. Used in tests.
	InMemory bool `mapstructure:"in_memory" json:"in_memory" yaml:"in_memory"`

	// MaxAttempts is how many times a task may run before it is dropped.
	MaxAttempts int `mapstructure:"max_attempts" json:"max_attempts" yaml:"max_attempts"`

	// RetryBackoff is the delay before the second attempt; it doubles per
	// attempt up to MaxBackoff.
	RetryBackoff time.Duration `mapstructure:"retry_backoff" json:"retry_backoff" yaml:"retry_backoff"`
	MaxBackoff   time.Duration `mapstructure:"max_backoff" json:"max_backoff" yaml:"max_backoff"`

	// ClaimTimeout is how long a claimed task may sit unfinished before it
	// is assumed lost and requeued.
	ClaimTimeout time.Duration `mapstructure:"claim_timeout" json:"claim_timeout" yaml:"claim_timeout"`
}

// DefaultQueueConfig returns the queue defaults.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		Path:         "queue",
		MaxAttempts:  5,
		RetryBackoff: 30 * time.Second,
		MaxBackoff:   10 * time.Minute,
		ClaimTimeout: 15 * time.Minute,
	}
}

// Queue is a durable task queue on top of BadgerDB.
//
// Thread safety: all operations run inside BadgerDB transactions and are safe
// for concurrent use. Concurrent Claim calls may collide on the same task;
// the loser observes a conflict and simply claims nothing.
type Queue struct {
	db  *badgerdb.DB
	cfg QueueConfig
}

// OpenQueue opens (creating if needed) the queue database at cfg.Path.
func OpenQueue(cfg QueueConfig) (*Queue, error) {
	def := DefaultQueueConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = def.RetryBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.ClaimTimeout <= 0 {
		cfg.ClaimTimeout = def.ClaimTimeout
	}

	var opts badgerdb.Options
	if cfg.InMemory {
		opts = badgerdb.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			cfg.Path = def.Path
		}
		opts = badgerdb.DefaultOptions(cfg.Path)
	}
	// Badger logs through its own logger by default; route everything
	// through ours instead.
	opts = opts.WithLogger(badgerLogger{})

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open task queue: %w", err)
	}
	return &Queue{db: db, cfg: cfg}, nil
}

// Config returns the effective queue configuration.
func (q *Queue) Config() QueueConfig {
	return q.cfg
}

// Enqueue adds a task to run as soon as a worker is free.
func (q *Queue) Enqueue(ctx context.Context, t *Task) error {
	return q.EnqueueAt(ctx, t, time.Now())
}

// EnqueueAt adds a task that must not run before runAt.
func (q *Queue) EnqueueAt(ctx context.Context, t *Task, runAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t == nil || t.ID == "" || t.Kind == "" {
		return fmt.Errorf("task needs an id and a kind")
	}

	data, err := encodeTask(t)
	if err != nil {
		return err
	}

	err = q.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(keyPending(runAt, t.ID), data)
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue %s task: %w", t.Kind, err)
	}

	logger.Debug("task enqueued", "kind", t.Kind, "task", t.ID, "runAt", runAt.Format(time.RFC3339))
	return nil
}

// Claim pops the earliest due pending task, records it as active and returns
// it with its attempt counter already incremented. Returns (nil, nil) when
// nothing is due.
func (q *Queue) Claim(ctx context.Context, now time.Time) (*Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var claimed *Task

	err := q.db.Update(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(prefixPending)

		it := txn.NewIterator(opts)
		defer it.Close()

		it.Rewind()
		if !it.Valid() {
			return nil
		}

		item := it.Item()
		key := item.KeyCopy(nil)

		runAt, err := parsePendingKey(key)
		if err != nil {
			return err
		}
		if runAt.After(now) {
			// Keys sort by runAt, so nothing else is due either.
			return nil
		}

		var task *Task
		err = item.Value(func(val []byte) error {
			task, err = decodeTask(val)
			return err
		})
		if err != nil {
			return err
		}

		task.Attempts++
		entry, err := encodeActiveEntry(&activeEntry{Task: task, ClaimedAt: now})
		if err != nil {
			return err
		}
		if err := txn.Delete(key); err != nil {
			return err
		}
		if err := txn.Set(keyActive(task.ID), entry); err != nil {
			return err
		}
		claimed = task
		return nil
	})
	if err == badgerdb.ErrConflict {
		// Another claimer won the race.
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim task: %w", err)
	}
	return claimed, nil
}

// Ack removes a finished task from the active set.
func (q *Queue) Ack(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return q.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete(keyActive(id))
	})
}

// Fail records a failed attempt. The task is rescheduled with exponential
// backoff while attempts remain and dropped once the budget is spent.
func (q *Queue) Fail(ctx context.Context, t *Task, cause error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if t.Attempts >= q.cfg.MaxAttempts {
		logger.Error("task failed permanently, dropping",
			"kind", t.Kind,
			"task", t.ID,
			"attempts", t.Attempts,
			"error", cause)
		return q.Ack(ctx, t.ID)
	}

	delay := q.backoff(t.Attempts)
	runAt := time.Now().Add(delay)

	data, err := encodeTask(t)
	if err != nil {
		return err
	}
	err = q.db.Update(func(txn *badgerdb.Txn) error {
		if err := txn.Delete(keyActive(t.ID)); err != nil {
			return err
		}
		return txn.Set(keyPending(runAt, t.ID), data)
	})
	if err != nil {
		return fmt.Errorf("failed to reschedule task %s: %w", t.ID, err)
	}

	logger.Warn("task failed, rescheduled",
		"kind", t.Kind,
		"task", t.ID,
		"attempt", t.Attempts,
		"maxAttempts", q.cfg.MaxAttempts,
		"retryIn", delay.String(),
		"error", cause)
	return nil
}

// backoff returns the delay before the attempt following the given one.
func (q *Queue) backoff(attempts int) time.Duration {
	delay := q.cfg.RetryBackoff
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= q.cfg.MaxBackoff {
			return q.cfg.MaxBackoff
		}
	}
	return delay
}

// release puts a claimed task back at the front of the pending set without
// counting the aborted attempt. Used when the pool stops before a claimed
// task reaches a worker.
func (q *Queue) release(ctx context.Context, t *Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.Attempts--
	data, err := encodeTask(t)
	if err != nil {
		return err
	}
	return q.db.Update(func(txn *badgerdb.Txn) error {
		if err := txn.Delete(keyActive(t.ID)); err != nil {
			return err
		}
		return txn.Set(keyPending(time.Now(), t.ID), data)
	})
}

// RequeueStale moves active entries older than the claim timeout back to
// pending and returns how many were moved. Attempt counters are preserved, so
// a task that keeps killing its worker still runs out of attempts.
func (q *Queue) RequeueStale(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	cutoff := now.Add(-q.cfg.ClaimTimeout)

	// Collect first, then move, so the write transaction stays small.
	var stale []*activeEntry
	err := q.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(prefixActive)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				entry, err := decodeActiveEntry(val)
				if err != nil {
					return err
				}
				if entry.ClaimedAt.Before(cutoff) {
					stale = append(stale, entry)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to scan active tasks: %w", err)
	}
	if len(stale) == 0 {
		return 0, nil
	}

	var moved int
	err = q.db.Update(func(txn *badgerdb.Txn) error {
		for _, entry := range stale {
			data, err := encodeTask(entry.Task)
			if err != nil {
				return err
			}
			if err := txn.Delete(keyActive(entry.Task.ID)); err != nil {
				return err
			}
			if err := txn.Set(keyPending(now, entry.Task.ID), data); err != nil {
				return err
			}
			moved++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to requeue stale tasks: %w", err)
	}

	for _, entry := range stale {
		logger.Warn("requeued stale task",
			"kind", entry.Task.Kind,
			"task", entry.Task.ID,
			"claimedAt", entry.ClaimedAt.Format(time.RFC3339))
	}
	return moved, nil
}

// PendingCount returns the number of pending tasks.
func (q *Queue) PendingCount(ctx context.Context) (int, error) {
	return q.countPrefix(ctx, prefixPending)
}

// ActiveCount returns the number of claimed tasks.
func (q *Queue) ActiveCount(ctx context.Context) (int, error) {
	return q.countPrefix(ctx, prefixActive)
}

func (q *Queue) countPrefix(ctx context.Context, prefix string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var count int
	err := q.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Healthcheck verifies the queue database is operational.
func (q *Queue) Healthcheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := q.db.View(func(txn *badgerdb.Txn) error {
		return nil
	})
	if err != nil {
		return fmt.Errorf("queue healthcheck failed: %w", err)
	}
	return nil
}

// Close closes the queue database.
func (q *Queue) Close() error {
	return q.db.Close()
}

// badgerLogger adapts Badger's log output to the process logger. Badger is
// chatty at INFO during compaction, so its INFO goes to our DEBUG.
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...any) {
	logger.Error("badger: " + fmt.Sprintf(format, args...))
}

func (badgerLogger) Warningf(format string, args ...any) {
	logger.Warn("badger: " + fmt.Sprintf(format, args...))
}

func (badgerLogger) Infof(format string, args ...any) {
	logger.Debug("badger: " + fmt.Sprintf(format, args...))
}

func (badgerLogger) Debugf(format string, args ...any) {
	logger.Debug("badger: " + fmt.Sprintf(format, args...))
}
