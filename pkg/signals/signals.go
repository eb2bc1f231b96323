// Package signals fans domain events out to in-process listeners.
//
// The engine emits an event when object content is served or destroyed;
// metrics and logging subscribe at startup. Listeners run synchronously on
// the emitting goroutine, so they must be cheap and must not block.
package signals

import (
	"sync"
	"time"
)

// Kind names a domain event.
type Kind string

const (
	// FileDownloaded fires after a download stream has been opened.
	FileDownloaded Kind = "file-downloaded"

	// FileDeleted fires when an object is logically deleted (delete marker)
	// or a version is hard-deleted. Hard deletes carry the file id.
	FileDeleted Kind = "file-deleted"
)

// Event describes what happened and to which object. Fields that do not
// apply stay empty: a delete-marker event has no FileID and no Size.
type Event struct {
	Kind      Kind
	Bucket    string
	Key       string
	VersionID string
	FileID    string
	Size      int64
	At        time.Time
}

// Listener receives events. It must not call back into the hub's On method
// from inside the callback.
type Listener func(Event)

// Hub is a registry of listeners keyed by event kind.
type Hub struct {
	mu        sync.RWMutex
	listeners map[Kind][]Listener
}

// NewHub returns an empty hub. A nil *Hub is also valid: On and Emit are
// no-ops, so wiring signals stays optional.
func NewHub() *Hub {
	return &Hub{listeners: make(map[Kind][]Listener)}
}

// On registers a listener for one event kind. Listeners cannot be removed;
// they live as long as the process.
func (h *Hub) On(kind Kind, l Listener) {
	if h == nil || l == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners[kind] = append(h.listeners[kind], l)
}

// Emit delivers an event to every listener registered for its kind, in
// registration order. The timestamp is filled in when the caller left it
// zero. Listeners are invoked outside the hub lock.
func (h *Hub) Emit(e Event) {
	if h == nil {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	h.mu.RLock()
	targets := h.listeners[e.Kind]
	h.mu.RUnlock()

	for _, l := range targets {
		l(e)
	}
}
