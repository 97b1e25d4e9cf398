package sched

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/stanza/internal/logging"
	"github.com/aretw0/stanza/pkg/domain"
	"github.com/aretw0/stanza/pkg/ports"
)

// ResumeFunc is invoked when a scheduled execution becomes due. The handler
// restores the item's snapshot and continues document execution at the block
// after the originating WAIT.
type ResumeFunc func(ctx context.Context, item domain.ScheduledExecution)

// Scheduler is the durable wait queue. Items persist through the injected
// SchedulerStore so a process restart neither loses nor duplicates a wakeup:
// short delays get a per-item timer, longer ones are caught by a periodic
// sweep that compares wall clock to the fire time.
//
// Store writes are serialized behind a single mutex (single-writer
// discipline) so concurrently-scheduled items from different documents are
// never lost or interleaved incorrectly.
type Scheduler struct {
	store  ports.SchedulerStore
	clock  func() time.Time
	logger *slog.Logger

	sweepEvery   time.Duration
	timerHorizon time.Duration

	mu       sync.Mutex
	resume   ResumeFunc
	timers   map[string]*time.Timer
	inflight map[string]struct{}
	running  bool

	stop chan struct{}
	wg   sync.WaitGroup
}

// Option configures the Scheduler.
type Option func(*Scheduler)

// WithClock injects a time source. Tests use a fake clock.
func WithClock(clock func() time.Time) Option {
	return func(s *Scheduler) {
		s.clock = clock
	}
}

// WithLogger configures structured logging.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithSweepInterval tunes the periodic scan. Items due within the interval
// also get a dedicated timer for precision.
func WithSweepInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		s.sweepEvery = d
		s.timerHorizon = d
	}
}

// New creates a scheduler over a durable store.
func New(store ports.SchedulerStore, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:        store,
		clock:        time.Now,
		logger:       logging.NewNop(),
		sweepEvery:   30 * time.Second,
		timerHorizon: 30 * time.Second,
		timers:       make(map[string]*time.Timer),
		inflight:     make(map[string]struct{}),
		stop:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start loads pending items from the store and begins the sweep loop.
// Items whose fire time already passed (e.g. across a restart or a forward
// clock jump) fire on the first sweep rather than being skipped.
func (s *Scheduler) Start(ctx context.Context, resume ResumeFunc) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.resume = resume
	s.running = true
	s.mu.Unlock()

	if err := s.Sweep(ctx); err != nil {
		return err
	}

	s.wg.Add(1)
	go s.loop(ctx)
	return nil
}

// Stop halts the sweep loop and any armed timers.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	for key, timer := range s.timers {
		timer.Stop()
		delete(s.timers, key)
	}
	close(s.stop)
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.logger.Error("scheduler sweep failed", "err", err)
			}
		}
	}
}

// Schedule persists a new item and arms a timer if it is due soon.
// Saving is idempotent on the durable key, so re-executing a WAIT after a
// crash cannot duplicate the wakeup.
func (s *Scheduler) Schedule(ctx context.Context, item domain.ScheduledExecution) error {
	item.Status = domain.SchedulePending

	s.mu.Lock()
	err := s.store.Save(ctx, item)
	s.mu.Unlock()
	if err != nil {
		return &domain.SchedulerPersistenceError{
			DocumentID: item.DocumentID,
			BlockID:    item.BlockID,
			Err:        err,
		}
	}

	s.logger.Debug("wait scheduled",
		"document", item.DocumentID, "block", item.BlockID, "fire_at", item.FireAtEpoch)
	s.arm(ctx, item)
	return nil
}

// CancelDocument removes every pending item of a document and disarms its
// timers. Used when a document is closed or cancelled.
func (s *Scheduler) CancelDocument(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, timer := range s.timers {
		if keyBelongsTo(key, documentID) {
			timer.Stop()
			delete(s.timers, key)
		}
	}
	return s.store.DeleteForDocument(ctx, documentID)
}

// Pending lists the items still awaiting execution.
func (s *Scheduler) Pending(ctx context.Context) ([]domain.ScheduledExecution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.LoadPending(ctx)
}

// Sweep compares the wall clock to every pending fire time, firing due items
// and arming timers for those due within the horizon.
func (s *Scheduler) Sweep(ctx context.Context) error {
	s.mu.Lock()
	items, err := s.store.LoadPending(ctx)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	now := s.clock()
	for _, item := range items {
		if item.FireAtEpoch <= now.Unix() {
			s.fire(ctx, item)
		} else {
			s.arm(ctx, item)
		}
	}
	return nil
}

func (s *Scheduler) arm(ctx context.Context, item domain.ScheduledExecution) {
	delay := time.Duration(item.FireAtEpoch-s.clock().Unix()) * time.Second
	if delay <= 0 {
		s.fire(ctx, item)
		return
	}
	if delay > s.timerHorizon {
		return // the periodic sweep will pick it up
	}

	key := item.Key()
	s.mu.Lock()
	if !s.running && s.resume == nil {
		s.mu.Unlock()
		return
	}
	if _, exists := s.timers[key]; exists {
		s.mu.Unlock()
		return
	}
	s.timers[key] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, key)
		s.mu.Unlock()
		s.fire(ctx, item)
	})
	s.mu.Unlock()
}

// fire transitions one item Pending -> Due -> Executed and removes it.
// The inflight set guarantees fire-once within the process even if a timer
// and a sweep race; deletion from the store guarantees it across restarts.
func (s *Scheduler) fire(ctx context.Context, item domain.ScheduledExecution) {
	key := item.Key()

	s.mu.Lock()
	if _, busy := s.inflight[key]; busy {
		s.mu.Unlock()
		return
	}
	s.inflight[key] = struct{}{}
	resume := s.resume
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.inflight, key)
		s.mu.Unlock()
	}()

	item.Status = domain.ScheduleDue
	s.logger.Debug("wait due", "document", item.DocumentID, "block", item.BlockID)

	if resume != nil {
		resume(ctx, item)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.MarkExecuted(ctx, item.ID); err != nil {
		s.logger.Error("failed to mark item executed", "id", item.ID, "err", err)
		return
	}
	if err := s.store.Delete(ctx, item.ID); err != nil {
		s.logger.Error("failed to delete executed item", "id", item.ID, "err", err)
	}
}

func keyBelongsTo(key, documentID string) bool {
	return len(key) > len(documentID) && key[:len(documentID)] == documentID && key[len(documentID)] == '|'
}
