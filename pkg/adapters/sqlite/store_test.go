package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/stanza/pkg/domain"
	"github.com/aretw0/stanza/pkg/ports"
	"github.com/aretw0/stanza/pkg/ports/tests"
)

func TestSchedulerStoreContract(t *testing.T) {
	tests.RunSchedulerStoreContract(t, func(t *testing.T) ports.SchedulerStore {
		store, err := Open(filepath.Join(t.TempDir(), "sched.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })
		return store
	})
}

func TestStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sched.db")
	ctx := context.Background()

	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, domain.ScheduledExecution{
		ID:          "a",
		DocumentID:  "doc",
		BlockID:     "w1",
		FireAtEpoch: 1000,
		Snapshot:    []byte(`{}`),
		Status:      domain.SchedulePending,
	}))
	require.NoError(t, store.Close())

	// Reopen stands in for a process restart.
	reopened, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	items, err := reopened.LoadPending(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "a", items[0].ID)
	assert.Equal(t, int64(1000), items[0].FireAtEpoch)
}
