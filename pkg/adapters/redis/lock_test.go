package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockerMutualExclusion(t *testing.T) {
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	locker := NewLocker(client, "stanza:")
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "doc1", time.Minute)
	require.NoError(t, err)

	// A second acquisition must block until the first is released.
	blocked, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(blocked, "doc1", time.Minute)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, unlock(ctx))

	unlock2, err := locker.Lock(ctx, "doc1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, unlock2(ctx))
}

func TestLockerIndependentDocuments(t *testing.T) {
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	locker := NewLocker(client, "stanza:")
	ctx := context.Background()

	unlock1, err := locker.Lock(ctx, "doc1", time.Minute)
	require.NoError(t, err)
	unlock2, err := locker.Lock(ctx, "doc2", time.Minute)
	require.NoError(t, err)

	require.NoError(t, unlock1(ctx))
	require.NoError(t, unlock2(ctx))
}
