// Package binder loads external read-only tables into the state store.
//
// Tables appear to documents as $db.<table>, an array of typed row objects.
// No query or filter DSL exists at this layer; filtering happens downstream
// through the path resolver and expression evaluator.
package binder

import (
	"context"
	"log/slog"

	"github.com/aretw0/stanza/internal/logging"
	"github.com/aretw0/stanza/internal/state"
	"github.com/aretw0/stanza/pkg/domain"
	"github.com/aretw0/stanza/pkg/ports"
)

// DBRoot is the state variable holding all bound tables.
const DBRoot = "db"

// Binder performs one synchronous whole-table read per bound table and
// caches the result for the document's session. Bindings never auto-refresh
// and are immutable to SET for the lifetime of the binding.
type Binder struct {
	source ports.TableSource
	logger *slog.Logger
}

// Option configures the Binder.
type Option func(*Binder)

// WithLogger configures structured logging.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Binder) {
		b.logger = logger
	}
}

// New creates a binder over a table-read capability. A nil source is
// allowed: every binding resolves to an empty array.
func New(source ports.TableSource, opts ...Option) *Binder {
	b := &Binder{source: source, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Bind loads the named tables into the store as $db.<table> arrays.
// A missing or unreachable source resolves to an empty array rather than
// failing, so offline documents remain renderable.
func (b *Binder) Bind(ctx context.Context, tables []string, store *state.Store) {
	db := domain.NewObject()
	for _, table := range tables {
		db.Set(table, b.load(ctx, table))
	}
	store.Bind(DBRoot, db)
}

func (b *Binder) load(ctx context.Context, table string) domain.Array {
	if b.source == nil {
		return domain.Array{}
	}
	rows, err := b.source.Select(ctx, table)
	if err != nil {
		b.logger.Warn("table read failed, binding empty array", "table", table, "err", err)
		return domain.Array{}
	}

	out := make(domain.Array, 0, len(rows))
	for i, row := range rows {
		value, err := domain.FromGo(mapToAny(row))
		if err != nil {
			b.logger.Warn("skipping unconvertible row", "table", table, "row", i, "err", err)
			continue
		}
		out = append(out, value)
	}
	return out
}

func mapToAny(m map[string]any) any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
