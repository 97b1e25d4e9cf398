package session

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/stanza/internal/compile"
	"github.com/aretw0/stanza/internal/runtime"
	"github.com/aretw0/stanza/pkg/domain"
)

func counterDoc(t *testing.T) *domain.Document {
	t.Helper()
	doc, err := compile.Document("counter", domain.Frontmatter{}, []map[string]any{
		{"kind": "state", "name": "n", "value": 0},
		{"kind": "set", "target": "n", "op": "+=", "value": 1},
		{"kind": "panel", "items": []map[string]any{{"label": "N", "path": "n"}}},
	})
	require.NoError(t, err)
	return doc
}

func newManager(t *testing.T, opts ...Option) *Manager {
	t.Helper()
	return NewManager(func(doc *domain.Document) *runtime.Runner {
		return runtime.NewRunner(doc)
	}, opts...)
}

func TestRenderUnknownDocument(t *testing.T) {
	m := newManager(t)
	_, err := m.Render(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
}

func TestRunnerIsReusedAcrossCalls(t *testing.T) {
	m := newManager(t)
	m.Register(counterDoc(t))
	ctx := context.Background()

	for range 3 {
		_, err := m.Render(ctx, "counter")
		require.NoError(t, err)
	}
	r, err := m.Runner("counter")
	require.NoError(t, err)
	n, _ := r.Store().Get("n")
	assert.Equal(t, domain.Number(3), n, "state accumulates on the same runner")
}

func TestCloseDropsRunnerAndCancelsWaits(t *testing.T) {
	cancelled := make([]string, 0, 1)
	m := newManager(t, WithCanceller(cancellerFunc(func(_ context.Context, id string) error {
		cancelled = append(cancelled, id)
		return nil
	})))
	m.Register(counterDoc(t))
	ctx := context.Background()

	_, err := m.Render(ctx, "counter")
	require.NoError(t, err)
	require.NoError(t, m.Close(ctx, "counter"))
	assert.Equal(t, []string{"counter"}, cancelled)

	// The next render starts from scratch.
	_, err = m.Render(ctx, "counter")
	require.NoError(t, err)
	r, err := m.Runner("counter")
	require.NoError(t, err)
	n, _ := r.Store().Get("n")
	assert.Equal(t, domain.Number(1), n)
}

func TestConcurrentRendersAreSerialized(t *testing.T) {
	m := newManager(t)
	m.Register(counterDoc(t))
	ctx := context.Background()

	const passes = 20
	var wg sync.WaitGroup
	for range passes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Render(ctx, "counter")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	r, err := m.Runner("counter")
	require.NoError(t, err)
	n, _ := r.Store().Get("n")
	assert.Equal(t, domain.Number(passes), n, "no pass may be lost to a race")
}

type cancellerFunc func(ctx context.Context, documentID string) error

func (f cancellerFunc) CancelDocument(ctx context.Context, documentID string) error {
	return f(ctx, documentID)
}
