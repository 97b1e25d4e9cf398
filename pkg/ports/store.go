package ports

import (
	"context"

	"github.com/aretw0/stanza/pkg/domain"
)

// SchedulerStore defines the durable persistence capability behind the wait
// queue. This allows embedded-file, SQL, Redis, or in-memory test doubles to
// be interchangeable.
//
// Implementations must be idempotent on Save for the item's durable key
// (DocumentID, BlockID, FireAtEpoch) so a restart never duplicates a wakeup.
type SchedulerStore interface {
	// Save persists a pending item. Saving an item whose durable key already
	// exists is a no-op.
	Save(ctx context.Context, item domain.ScheduledExecution) error

	// LoadPending returns all items still awaiting execution, ordered by
	// fire time.
	LoadPending(ctx context.Context) ([]domain.ScheduledExecution, error)

	// MarkExecuted transitions an item to the executed status.
	// Returns domain.ErrScheduleNotFound for unknown IDs.
	MarkExecuted(ctx context.Context, id string) error

	// Delete removes an item once it is executed or cancelled.
	Delete(ctx context.Context, id string) error

	// DeleteForDocument removes every pending item belonging to a document.
	// Used when a document is closed or cancelled.
	DeleteForDocument(ctx context.Context, documentID string) error
}
