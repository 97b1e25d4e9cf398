// Package runtime executes compiled documents: it walks the block list in
// order, applies state mutations, produces the render tree, and hands
// suspended continuations to the scheduler.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/stanza/internal/binder"
	"github.com/aretw0/stanza/internal/logging"
	"github.com/aretw0/stanza/internal/state"
	"github.com/aretw0/stanza/pkg/domain"
)

// Waiter is the scheduler surface the runtime needs.
type Waiter interface {
	Schedule(ctx context.Context, item domain.ScheduledExecution) error
}

// Runner drives one document. It owns the variable store; all host
// interactions (render, form submit, nav choice, scheduled resume) go
// through it. Not safe for concurrent use; the session layer serializes
// access per document.
type Runner struct {
	doc    *domain.Document
	store  *state.Store
	binder *binder.Binder
	waiter Waiter
	hooks  domain.LifecycleHooks
	logger *slog.Logger
	clock  func() time.Time

	declared    map[string]bool // STATE block IDs already executed (one-shot)
	waitPending map[string]bool // WAIT block IDs with a wakeup already scheduled
	waitDone    map[string]bool // WAIT block IDs whose wakeup has fired
	seeded      bool
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger configures structured logging.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// WithClock injects a time source for system variables and wait schedules.
func WithClock(clock func() time.Time) Option {
	return func(r *Runner) { r.clock = clock }
}

// WithBinder attaches a database binder for the frontmatter bind list.
func WithBinder(b *binder.Binder) Option {
	return func(r *Runner) { r.binder = b }
}

// WithWaiter attaches a scheduler for WAIT blocks. Without one, WAIT blocks
// report a diagnostic instead of suspending.
func WithWaiter(w Waiter) Option {
	return func(r *Runner) { r.waiter = w }
}

// WithHooks attaches lifecycle callbacks.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(r *Runner) { r.hooks = hooks }
}

// NewRunner creates a runner over a compiled document.
func NewRunner(doc *domain.Document, opts ...Option) *Runner {
	r := &Runner{
		doc:         doc,
		store:       state.New(),
		logger:      logging.NewNop(),
		clock:       time.Now,
		declared:    make(map[string]bool),
		waitPending: make(map[string]bool),
		waitDone:    make(map[string]bool),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Store exposes the variable environment, mainly for tests and the
// presentation layer.
func (r *Runner) Store() *state.Store { return r.store }

// Document returns the document under execution.
func (r *Runner) Document() *domain.Document { return r.doc }

// Run executes a full document pass from the top and returns the render
// tree. Repeat passes keep accumulated state: STATE blocks only initialize
// on their first execution.
func (r *Runner) Run(ctx context.Context) (domain.RenderTree, error) {
	r.beginPass(ctx)

	tree := domain.RenderTree{}
	if _, err := r.execBlocks(ctx, r.doc.Blocks, 0, nil, &tree); err != nil {
		return nil, err
	}
	return tree, nil
}

// Submit validates and applies a form submission, then re-runs the document.
// Validation is all-or-nothing: any invalid field leaves state untouched and
// returns a ValidationError listing every failure.
func (r *Runner) Submit(ctx context.Context, blockID string, values map[string]any) (domain.RenderTree, error) {
	block := findBlock(r.doc.Blocks, blockID)
	if block == nil || block.Form == nil {
		return nil, fmt.Errorf("document %q has no form block %q", r.doc.ID, blockID)
	}
	if err := r.applyForm(block.Form, values); err != nil {
		return nil, err
	}
	r.logger.Debug("form submitted", "document", r.doc.ID, "block", blockID)
	return r.Run(ctx)
}

// Choose selects a navigation option by its label, applies the choice's
// mutations atomically, and re-runs the document. It reports the choice's
// navigation target alongside the refreshed tree. A guarded-off or unknown
// label is rejected without touching state.
func (r *Runner) Choose(ctx context.Context, blockID, label string) (domain.RenderTree, string, error) {
	block := findBlock(r.doc.Blocks, blockID)
	if block == nil || block.Nav == nil {
		return nil, "", fmt.Errorf("document %q has no nav block %q", r.doc.ID, blockID)
	}
	target, err := r.applyChoice(block.Nav, label)
	if err != nil {
		return nil, "", err
	}
	r.logger.Debug("nav choice applied", "document", r.doc.ID, "block", blockID, "label", label, "target", target)
	tree, err := r.Run(ctx)
	if err != nil {
		return nil, "", err
	}
	return tree, target, nil
}

// Resume restores a scheduled continuation and executes from the block after
// the originating WAIT, returning the render tree of the resumed pass.
func (r *Runner) Resume(ctx context.Context, item domain.ScheduledExecution) (domain.RenderTree, error) {
	cont, err := decodeContinuation(item.Snapshot)
	if err != nil {
		return nil, err
	}
	if err := r.store.Restore(cont.State); err != nil {
		return nil, err
	}
	// The restored snapshot already carries every STATE initialization and
	// frontmatter variable that ran before the wait.
	r.seeded = true
	delete(r.waitPending, item.BlockID)
	r.waitDone[item.BlockID] = true

	r.beginPass(ctx)
	r.fireWaitHook(ctx, item)

	tree := domain.RenderTree{}
	if _, err := r.resumeAt(ctx, r.doc.Blocks, cont.Cursor, nil, &tree); err != nil {
		return nil, err
	}
	r.logger.Info("document resumed", "document", r.doc.ID, "block", item.BlockID)
	return tree, nil
}

// beginPass refreshes system variables so one pass observes a consistent
// instant. Database bindings load once for the session: repeat passes and
// restored continuations keep the arrays read on first execution.
func (r *Runner) beginPass(ctx context.Context) {
	if !r.seeded {
		r.seeded = true
		for name, raw := range r.doc.Frontmatter.Variables {
			v, err := domain.FromGo(raw)
			if err != nil {
				continue // rejected at compile time
			}
			if err := r.store.Declare(name, v, state.OwnerUser); err != nil {
				r.logger.Warn("frontmatter variable skipped", "name", name, "err", err)
			}
		}
	}
	r.store.RefreshSystem(r.clock())
	if r.binder != nil && len(r.doc.Frontmatter.Bind) > 0 {
		if _, bound := r.store.Get(binder.DBRoot); !bound {
			r.binder.Bind(ctx, r.doc.Frontmatter.Bind, r.store)
		}
	}
}

func (r *Runner) fireWaitHook(ctx context.Context, item domain.ScheduledExecution) {
	if r.hooks.OnWaitFired == nil {
		return
	}
	r.hooks.OnWaitFired(ctx, &domain.WaitEvent{
		EventBase: domain.EventBase{
			Timestamp:  r.clock(),
			Type:       domain.EventWaitFired,
			DocumentID: r.doc.ID,
		},
		BlockID:     item.BlockID,
		FireAtEpoch: item.FireAtEpoch,
	})
}

// findBlock locates a block by ID anywhere in the tree.
func findBlock(blocks []domain.Block, id string) *domain.Block {
	for i := range blocks {
		if blocks[i].ID == id {
			return &blocks[i]
		}
		if blocks[i].If != nil {
			for bi := range blocks[i].If.Branches {
				if found := findBlock(blocks[i].If.Branches[bi].Body, id); found != nil {
					return found
				}
			}
			if found := findBlock(blocks[i].If.Else, id); found != nil {
				return found
			}
		}
	}
	return nil
}

func branchBody(ifb *domain.IfBlock, branch int) []domain.Block {
	if branch >= 0 && branch < len(ifb.Branches) {
		return ifb.Branches[branch].Body
	}
	return ifb.Else
}
