// Package stanza wires the document runtime, scheduler and session layer
// into a single engine that hosts can embed or serve over HTTP.
package stanza

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/aretw0/stanza/internal/binder"
	"github.com/aretw0/stanza/internal/logging"
	"github.com/aretw0/stanza/internal/runtime"
	"github.com/aretw0/stanza/internal/sched"
	"github.com/aretw0/stanza/pkg/adapters/docfile"
	"github.com/aretw0/stanza/pkg/adapters/memory"
	"github.com/aretw0/stanza/pkg/domain"
	"github.com/aretw0/stanza/pkg/ports"
	"github.com/aretw0/stanza/pkg/session"
)

// Version is the engine version reported by the CLI and the HTTP info endpoint.
const Version = "0.3.0"

// ResumeHandler receives the render tree produced when a timer fires and the
// owning document is re-executed. Hosts use it to push updates to clients.
type ResumeHandler func(ctx context.Context, documentID string, tree domain.RenderTree)

// Engine is the top-level entry point. It owns the session manager that
// serializes access per document, and the scheduler that makes timed waits
// survive restarts.
type Engine struct {
	sessions  *session.Manager
	scheduler *sched.Scheduler
	store     ports.SchedulerStore
	source    ports.TableSource
	locker    ports.DocumentLocker
	hooks     domain.LifecycleHooks
	onResume  ResumeHandler
	logger    *slog.Logger
	clock     func() time.Time
	sweep     time.Duration

	// Name identifies the loaded document set, derived from the source
	// directory when one is given.
	Name string
}

// Option configures the Engine.
type Option func(*Engine)

// WithLogger sets the structured logger. Defaults to a no-op logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock overrides the time source. Tests use this to pin TIME, DATE and
// DAY and to control when timers fire.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithSchedulerStore sets the persistence backend for scheduled waits.
// Defaults to an in-memory store, which does not survive restarts.
func WithSchedulerStore(store ports.SchedulerStore) Option {
	return func(e *Engine) {
		if store != nil {
			e.store = store
		}
	}
}

// WithTableSource attaches a read-only table source. Documents that declare
// bindings in their frontmatter read rows through it under the db namespace.
func WithTableSource(source ports.TableSource) Option {
	return func(e *Engine) { e.source = source }
}

// WithDocumentLocker adds a distributed lock held around every document
// mutation, for deployments running more than one engine instance.
func WithDocumentLocker(locker ports.DocumentLocker) Option {
	return func(e *Engine) { e.locker = locker }
}

// WithLifecycleHooks registers observers for block execution and wait
// scheduling. Combine several with observability.Chain.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) { e.hooks = hooks }
}

// WithResumeHandler registers a callback invoked after a fired wait
// re-executes its document.
func WithResumeHandler(h ResumeHandler) Option {
	return func(e *Engine) { e.onResume = h }
}

// WithSweepInterval sets how often the scheduler re-reads the store for
// pending items. Zero keeps the default.
func WithSweepInterval(d time.Duration) Option {
	return func(e *Engine) { e.sweep = d }
}

// New builds an Engine. When docsPath is non-empty every .yaml/.yml document
// under it is compiled and registered; compile errors fail construction.
// Documents can also be registered later with Register.
func New(docsPath string, opts ...Option) (*Engine, error) {
	e := &Engine{
		logger: logging.NewNop(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.store == nil {
		e.store = memory.NewStore()
	}

	schedOpts := []sched.Option{
		sched.WithLogger(e.logger),
		sched.WithClock(e.clock),
	}
	if e.sweep > 0 {
		schedOpts = append(schedOpts, sched.WithSweepInterval(e.sweep))
	}
	e.scheduler = sched.New(e.store, schedOpts...)

	bind := binder.New(e.source, binder.WithLogger(e.logger))
	factory := func(doc *domain.Document) *runtime.Runner {
		return runtime.NewRunner(doc,
			runtime.WithLogger(e.logger.With("document", doc.ID)),
			runtime.WithClock(e.clock),
			runtime.WithBinder(bind),
			runtime.WithWaiter(e.scheduler),
			runtime.WithHooks(e.hooks),
		)
	}

	sessOpts := []session.Option{
		session.WithLogger(e.logger),
		session.WithCanceller(e.scheduler),
	}
	if e.locker != nil {
		sessOpts = append(sessOpts, session.WithLocker(e.locker))
	}
	e.sessions = session.NewManager(factory, sessOpts...)

	if docsPath != "" {
		docs, err := docfile.LoadDir(docsPath)
		if err != nil {
			return nil, fmt.Errorf("loading documents: %w", err)
		}
		for _, doc := range docs {
			e.sessions.Register(doc)
		}
		e.Name = filepath.Base(docsPath)
	}

	return e, nil
}

// Register adds a compiled document to the engine. A document with the same
// ID replaces the previous one; its runner state is kept until Close.
func (e *Engine) Register(doc *domain.Document) {
	e.sessions.Register(doc)
}

// Documents lists the IDs of all registered documents, sorted.
func (e *Engine) Documents() []string {
	return e.sessions.Documents()
}

// Start recovers pending waits from the store and begins firing timers.
// It must be called before scheduled waits can resume. Safe to call once.
func (e *Engine) Start(ctx context.Context) error {
	return e.scheduler.Start(ctx, e.resume)
}

// Stop halts the scheduler. Pending items stay in the store and are
// recovered by the next Start.
func (e *Engine) Stop() {
	e.scheduler.Stop()
}

// Render executes a full pass over the document and returns its fragments.
func (e *Engine) Render(ctx context.Context, documentID string) (domain.RenderTree, error) {
	return e.sessions.Render(ctx, documentID)
}

// Submit validates and applies a form submission, then re-renders.
// Validation failures return a *domain.ValidationError and leave state
// untouched.
func (e *Engine) Submit(ctx context.Context, documentID, blockID string, values map[string]any) (domain.RenderTree, error) {
	return e.sessions.Submit(ctx, documentID, blockID, values)
}

// Choose applies a navigation choice by visible label, then re-renders.
// The second return value is the chosen option's navigation target.
func (e *Engine) Choose(ctx context.Context, documentID, blockID, label string) (domain.RenderTree, string, error) {
	return e.sessions.Choose(ctx, documentID, blockID, label)
}

// Close discards a document's runner state and cancels its pending waits.
func (e *Engine) Close(ctx context.Context, documentID string) error {
	return e.sessions.Close(ctx, documentID)
}

// Pending reports the waits currently persisted in the scheduler store.
func (e *Engine) Pending(ctx context.Context) ([]domain.ScheduledExecution, error) {
	return e.scheduler.Pending(ctx)
}

// Sessions exposes the session manager, for hosts that mount their own
// transport on top of it.
func (e *Engine) Sessions() *session.Manager {
	return e.sessions
}

func (e *Engine) resume(ctx context.Context, item domain.ScheduledExecution) {
	tree, err := e.sessions.Resume(ctx, item)
	if err != nil {
		e.logger.Error("resume failed",
			"document", item.DocumentID,
			"block", item.BlockID,
			"error", err)
		return
	}
	e.logger.Info("wait resumed", "document", item.DocumentID, "block", item.BlockID)
	if e.onResume != nil {
		e.onResume(ctx, item.DocumentID, tree)
	}
}
