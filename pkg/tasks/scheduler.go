package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/arcafs/arca/internal/logger"
)

// Scheduler enqueues recurring task kinds on fixed intervals. It only feeds
// the queue; execution and retry stay with the pool, so a slow sweep simply
// piles up behind itself and drains later.
type Scheduler struct {
	queue *Queue

	mu      sync.Mutex
	entries []scheduleEntry
	wg      sync.WaitGroup
	stopCh  chan struct{}
	started bool
}

type scheduleEntry struct {
	kind    string
	every   time.Duration
	payload any
}

// NewScheduler creates a scheduler feeding the given queue.
func NewScheduler(q *Queue) *Scheduler {
	return &Scheduler{
		queue:  q,
		stopCh: make(chan struct{}),
	}
}

// Add registers a recurring kind. Must be called before Start.
func (s *Scheduler) Add(kind string, every time.Duration, payload any) {
	if every <= 0 {
		panic("tasks: schedule interval must be positive for kind " + kind)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, scheduleEntry{kind: kind, every: every, payload: payload})
}

// Start launches one ticker goroutine per registered entry.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	entries := s.entries
	s.mu.Unlock()

	for _, e := range entries {
		logger.Info("Scheduling periodic task", "kind", e.kind, "every", e.every.String())
		s.wg.Add(1)
		go s.tick(e)
	}
}

// Stop halts the tickers and waits for them to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
}

func (s *Scheduler) tick(e scheduleEntry) {
	defer s.wg.Done()

	ticker := time.NewTicker(e.every)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.enqueue(e)
		}
	}
}

func (s *Scheduler) enqueue(e scheduleEntry) {
	task, err := NewTask(e.kind, e.payload)
	if err != nil {
		logger.Error("failed to build periodic task", "kind", e.kind, "error", err)
		return
	}
	if err := s.queue.Enqueue(context.Background(), task); err != nil {
		logger.Error("failed to enqueue periodic task", "kind", e.kind, "error", err)
	}
}
