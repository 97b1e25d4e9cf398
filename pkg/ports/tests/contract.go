// Package tests holds the behavioral contract every SchedulerStore adapter
// must satisfy. Adapter test files call RunSchedulerStoreContract with a
// factory for a fresh store.
package tests

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/stanza/pkg/domain"
	"github.com/aretw0/stanza/pkg/ports"
)

// Factory creates a fresh, empty store for one subtest.
type Factory func(t *testing.T) ports.SchedulerStore

// RunSchedulerStoreContract exercises the full SchedulerStore contract.
func RunSchedulerStoreContract(t *testing.T, factory Factory) {
	ctx := context.Background()

	item := func(id, doc, block string, fireAt int64) domain.ScheduledExecution {
		return domain.ScheduledExecution{
			ID:          id,
			DocumentID:  doc,
			BlockID:     block,
			FireAtEpoch: fireAt,
			Snapshot:    []byte(`{"state":null,"cursor":[{"block":0,"branch":-1}]}`),
			Status:      domain.SchedulePending,
		}
	}

	t.Run("save and load ordered by fire time", func(t *testing.T) {
		store := factory(t)
		require.NoError(t, store.Save(ctx, item("b", "doc", "w2", 2000)))
		require.NoError(t, store.Save(ctx, item("a", "doc", "w1", 1000)))
		require.NoError(t, store.Save(ctx, item("c", "doc", "w3", 3000)))

		items, err := store.LoadPending(ctx)
		require.NoError(t, err)
		require.Len(t, items, 3)
		assert.Equal(t, "a", items[0].ID)
		assert.Equal(t, "b", items[1].ID)
		assert.Equal(t, "c", items[2].ID)
		assert.Equal(t, []byte(`{"state":null,"cursor":[{"block":0,"branch":-1}]}`), items[0].Snapshot)
	})

	t.Run("save is idempotent on the durable key", func(t *testing.T) {
		store := factory(t)
		first := item("first", "doc", "w1", 1000)
		duplicate := item("second", "doc", "w1", 1000)
		require.NoError(t, store.Save(ctx, first))
		require.NoError(t, store.Save(ctx, duplicate))

		items, err := store.LoadPending(ctx)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "first", items[0].ID)
	})

	t.Run("distinct fire times are distinct items", func(t *testing.T) {
		store := factory(t)
		require.NoError(t, store.Save(ctx, item("a", "doc", "w1", 1000)))
		require.NoError(t, store.Save(ctx, item("b", "doc", "w1", 2000)))

		items, err := store.LoadPending(ctx)
		require.NoError(t, err)
		assert.Len(t, items, 2)
	})

	t.Run("mark executed removes from pending", func(t *testing.T) {
		store := factory(t)
		require.NoError(t, store.Save(ctx, item("a", "doc", "w1", 1000)))
		require.NoError(t, store.MarkExecuted(ctx, "a"))

		items, err := store.LoadPending(ctx)
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("mark executed on unknown id", func(t *testing.T) {
		store := factory(t)
		err := store.MarkExecuted(ctx, "ghost")
		assert.ErrorIs(t, err, domain.ErrScheduleNotFound)
	})

	t.Run("delete frees the durable key", func(t *testing.T) {
		store := factory(t)
		require.NoError(t, store.Save(ctx, item("a", "doc", "w1", 1000)))
		require.NoError(t, store.Delete(ctx, "a"))

		// The same wait can be scheduled again after deletion.
		require.NoError(t, store.Save(ctx, item("b", "doc", "w1", 1000)))
		items, err := store.LoadPending(ctx)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "b", items[0].ID)
	})

	t.Run("delete for document leaves other documents alone", func(t *testing.T) {
		store := factory(t)
		require.NoError(t, store.Save(ctx, item("a", "doc1", "w1", 1000)))
		require.NoError(t, store.Save(ctx, item("b", "doc1", "w2", 2000)))
		require.NoError(t, store.Save(ctx, item("c", "doc2", "w1", 1500)))

		require.NoError(t, store.DeleteForDocument(ctx, "doc1"))

		items, err := store.LoadPending(ctx)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "c", items[0].ID)
	})
}
