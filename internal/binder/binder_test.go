package binder

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/stanza/internal/state"
	"github.com/aretw0/stanza/pkg/adapters/memory"
	"github.com/aretw0/stanza/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingSource struct{}

func (failingSource) Select(ctx context.Context, table string) ([]map[string]any, error) {
	return nil, errors.New("connection refused")
}

func TestBind(t *testing.T) {
	source := memory.NewSource(map[string][]map[string]any{
		"npc": {
			{"name": "Ada", "hp": 12},
			{"name": "Bo", "hp": 7},
			{"name": "Cy", "hp": 9},
		},
	})
	store := state.New()
	New(source).Bind(context.Background(), []string{"npc"}, store)

	t.Run("rows become typed objects", func(t *testing.T) {
		v := store.ResolveString("$db.npc[1].name")
		assert.Equal(t, domain.String("Bo"), v)
		assert.Equal(t, domain.Number(7), store.ResolveString("$db.npc[1].hp"))
	})

	t.Run("wildcard projection has row count length", func(t *testing.T) {
		arr, ok := store.ResolveString("$db.npc[*].name").(domain.Array)
		require.True(t, ok)
		assert.Len(t, arr, 3)
	})

	t.Run("out of range row is null", func(t *testing.T) {
		assert.Equal(t, domain.Null{}, store.ResolveString("$db.npc[5]"))
	})

	t.Run("bindings are read-only", func(t *testing.T) {
		err := store.Set("db", domain.NewObject())
		var target *domain.AssignmentTargetError
		assert.ErrorAs(t, err, &target)
	})
}

func TestBindMissingTable(t *testing.T) {
	store := state.New()
	New(memory.NewSource(nil)).Bind(context.Background(), []string{"ghost"}, store)

	arr, ok := store.ResolveString("$db.ghost").(domain.Array)
	require.True(t, ok)
	assert.Len(t, arr, 0)
}

func TestBindUnreachableSource(t *testing.T) {
	store := state.New()
	New(failingSource{}).Bind(context.Background(), []string{"npc"}, store)

	// Offline documents stay renderable.
	arr, ok := store.ResolveString("$db.npc").(domain.Array)
	require.True(t, ok)
	assert.Len(t, arr, 0)
}

func TestBindNilSource(t *testing.T) {
	store := state.New()
	New(nil).Bind(context.Background(), []string{"npc"}, store)

	arr, ok := store.ResolveString("$db.npc").(domain.Array)
	require.True(t, ok)
	assert.Len(t, arr, 0)
}
