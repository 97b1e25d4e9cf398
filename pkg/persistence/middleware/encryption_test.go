package middleware_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/stanza/pkg/adapters/memory"
	"github.com/aretw0/stanza/pkg/domain"
	"github.com/aretw0/stanza/pkg/persistence/middleware"
	"github.com/aretw0/stanza/pkg/ports"
	portstests "github.com/aretw0/stanza/pkg/ports/tests"
)

func testKey() []byte {
	return bytes.Repeat([]byte{0x1f}, 32)
}

func item(snapshot string) domain.ScheduledExecution {
	return domain.ScheduledExecution{
		ID:          "item-1",
		DocumentID:  "quest",
		BlockID:     "steep",
		FireAtEpoch: 1700000000,
		Snapshot:    []byte(snapshot),
		Status:      domain.SchedulePending,
	}
}

func TestEncryptionRoundTrip(t *testing.T) {
	inner := memory.NewStore()
	store := middleware.Wrap(inner, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey: testKey(),
	}))

	snapshot := `{"state":{"gold":100},"cursor":[{"block":1,"branch":-1}]}`
	require.NoError(t, store.Save(context.Background(), item(snapshot)))

	// The inner store must only ever see ciphertext.
	raw, err := inner.LoadPending(context.Background())
	require.NoError(t, err)
	require.Len(t, raw, 1)
	assert.NotContains(t, string(raw[0].Snapshot), "gold")
	assert.Contains(t, string(raw[0].Snapshot), "__encrypted__")

	// Reading through the middleware restores the plain snapshot.
	items, err := store.LoadPending(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.JSONEq(t, snapshot, string(items[0].Snapshot))
}

func TestEncryptionKeyRotation(t *testing.T) {
	oldKey := bytes.Repeat([]byte{0x2a}, 32)
	inner := memory.NewStore()

	oldStore := middleware.Wrap(inner, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey: oldKey,
	}))
	require.NoError(t, oldStore.Save(context.Background(), item(`{"v":1}`)))

	rotated := middleware.Wrap(inner, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey:    testKey(),
		FallbackKeys: [][]byte{oldKey},
	}))
	items, err := rotated.LoadPending(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.JSONEq(t, `{"v":1}`, string(items[0].Snapshot))
}

func TestEncryptionWrongKeyFails(t *testing.T) {
	inner := memory.NewStore()
	writer := middleware.Wrap(inner, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey: testKey(),
	}))
	require.NoError(t, writer.Save(context.Background(), item(`{"v":1}`)))

	reader := middleware.Wrap(inner, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey: bytes.Repeat([]byte{0x3c}, 32),
	}))
	_, err := reader.LoadPending(context.Background())
	assert.Error(t, err)
}

func TestEncryptionPlainSnapshotPassesThrough(t *testing.T) {
	inner := memory.NewStore()
	require.NoError(t, inner.Save(context.Background(), item(`{"v":1}`)))

	store := middleware.Wrap(inner, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey: testKey(),
	}))
	items, err := store.LoadPending(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.JSONEq(t, `{"v":1}`, string(items[0].Snapshot))
}

func TestEncryptionShortKeyPanics(t *testing.T) {
	assert.Panics(t, func() {
		middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short")})
	})
}

func TestEncryptedStoreSatisfiesContract(t *testing.T) {
	portstests.RunSchedulerStoreContract(t, func(t *testing.T) ports.SchedulerStore {
		return middleware.Wrap(memory.NewStore(), middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
			ActiveKey: testKey(),
		}))
	})
}
