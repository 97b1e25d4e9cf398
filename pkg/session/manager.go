// Package session serializes access to running documents. Every host
// interaction (render, submit, choose, scheduled resume) for one document
// goes through the same lock, so block execution never interleaves.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/stanza/internal/logging"
	"github.com/aretw0/stanza/internal/runtime"
	"github.com/aretw0/stanza/pkg/domain"
	"github.com/aretw0/stanza/pkg/ports"
)

// Canceller removes a document's pending scheduled waits.
type Canceller interface {
	CancelDocument(ctx context.Context, documentID string) error
}

// RunnerFactory builds a runner for a newly opened document.
type RunnerFactory func(doc *domain.Document) *runtime.Runner

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager orchestrates document access, ensuring safe concurrent operations.
// It uses reference counting to garbage collect unused locks.
type Manager struct {
	newRunner RunnerFactory

	mu      sync.Mutex
	locks   map[string]*lockEntry
	docs    map[string]*domain.Document
	runners map[string]*runtime.Runner

	canceller Canceller
	locker    ports.DocumentLocker
	logger    *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking for multi-process deployments.
func WithLocker(locker ports.DocumentLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithCanceller wires the scheduler so closing a document also cancels its
// pending waits.
func WithCanceller(c Canceller) Option {
	return func(m *Manager) {
		m.canceller = c
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a session manager. The factory decides how runners are
// assembled (clock, scheduler, binder, hooks).
func NewManager(factory RunnerFactory, opts ...Option) *Manager {
	m := &Manager{
		newRunner: factory,
		locks:     make(map[string]*lockEntry),
		docs:      make(map[string]*domain.Document),
		runners:   make(map[string]*runtime.Runner),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register makes a compiled document available for execution.
func (m *Manager) Register(doc *domain.Document) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[doc.ID] = doc
}

// Documents lists the registered document IDs.
func (m *Manager) Documents() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.docs))
	for id := range m.docs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Render runs a full document pass.
func (m *Manager) Render(ctx context.Context, documentID string) (domain.RenderTree, error) {
	var tree domain.RenderTree
	err := m.withLock(ctx, documentID, func(ctx context.Context, r *runtime.Runner) error {
		var err error
		tree, err = r.Run(ctx)
		return err
	})
	return tree, err
}

// Submit applies a form submission and returns the refreshed render tree.
func (m *Manager) Submit(ctx context.Context, documentID, blockID string, values map[string]any) (domain.RenderTree, error) {
	var tree domain.RenderTree
	err := m.withLock(ctx, documentID, func(ctx context.Context, r *runtime.Runner) error {
		var err error
		tree, err = r.Submit(ctx, blockID, values)
		return err
	})
	return tree, err
}

// Choose applies a navigation choice and returns the refreshed render tree
// along with the chosen option's navigation target.
func (m *Manager) Choose(ctx context.Context, documentID, blockID, label string) (domain.RenderTree, string, error) {
	var tree domain.RenderTree
	var target string
	err := m.withLock(ctx, documentID, func(ctx context.Context, r *runtime.Runner) error {
		var err error
		tree, target, err = r.Choose(ctx, blockID, label)
		return err
	})
	return tree, target, err
}

// Resume continues a document from a fired wait. Wired as the scheduler's
// resume callback.
func (m *Manager) Resume(ctx context.Context, item domain.ScheduledExecution) (domain.RenderTree, error) {
	var tree domain.RenderTree
	err := m.withLock(ctx, item.DocumentID, func(ctx context.Context, r *runtime.Runner) error {
		var err error
		tree, err = r.Resume(ctx, item)
		return err
	})
	return tree, err
}

// Close drops a document's runner and cancels its pending waits. The
// document stays registered and can be opened fresh.
func (m *Manager) Close(ctx context.Context, documentID string) error {
	return m.withLock(ctx, documentID, func(ctx context.Context, _ *runtime.Runner) error {
		m.mu.Lock()
		delete(m.runners, documentID)
		m.mu.Unlock()

		if m.canceller != nil {
			if err := m.canceller.CancelDocument(ctx, documentID); err != nil {
				return fmt.Errorf("failed to cancel scheduled waits: %w", err)
			}
		}
		return nil
	})
}

// Runner exposes the live runner of a document, creating it on first use.
// Callers that mutate state must go through the Manager's methods instead.
func (m *Manager) Runner(documentID string) (*runtime.Runner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runnerLocked(documentID)
}

func (m *Manager) runnerLocked(documentID string) (*runtime.Runner, error) {
	if r, ok := m.runners[documentID]; ok {
		return r, nil
	}
	doc, ok := m.docs[documentID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrDocumentNotFound, documentID)
	}
	r := m.newRunner(doc)
	m.runners[documentID] = r
	return r, nil
}

// acquire gets or creates a lock entry and increments its reference count.
func (m *Manager) acquire(documentID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[documentID]
	if !exists {
		entry = &lockEntry{}
		m.locks[documentID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry at zero.
func (m *Manager) release(documentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[documentID]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, documentID)
	}
}

// withLock executes fn while holding the per-document lock (and the
// distributed lock when configured).
func (m *Manager) withLock(ctx context.Context, documentID string, fn func(context.Context, *runtime.Runner) error) error {
	entry := m.acquire(documentID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(documentID)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, documentID, 30*time.Second)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				m.logger.Warn("failed to release distributed lock (will expire via TTL)",
					"document_id", documentID,
					"err", err,
				)
			}
		}()
	}

	runner, err := m.Runner(documentID)
	if err != nil {
		return err
	}
	return fn(ctx, runner)
}
