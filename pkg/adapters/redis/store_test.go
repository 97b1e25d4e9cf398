package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/stanza/pkg/domain"
	"github.com/aretw0/stanza/pkg/ports"
	"github.com/aretw0/stanza/pkg/ports/tests"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewFromClient(client)
}

func TestSchedulerStoreContract(t *testing.T) {
	tests.RunSchedulerStoreContract(t, func(t *testing.T) ports.SchedulerStore {
		return newTestStore(t)
	})
}

func TestStorePrefixIsolation(t *testing.T) {
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	a := NewFromClient(client, WithPrefix("a:"))
	b := NewFromClient(client, WithPrefix("b:"))

	require.NoError(t, a.Save(ctx, domain.ScheduledExecution{
		ID: "x", DocumentID: "doc", BlockID: "w", FireAtEpoch: 100,
		Status: domain.SchedulePending,
	}))

	items, err := b.LoadPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}
