package ports

import "context"

// TableSource defines the read-only tabular data capability consumed by the
// database binder. Implementations (SQLite, in-memory fixtures, remote APIs)
// are interchangeable; the binder never filters or queries at this layer.
type TableSource interface {
	// Select performs one synchronous whole-table read.
	// A missing table should return (nil, nil) rather than an error so
	// offline documents remain renderable.
	Select(ctx context.Context, table string) ([]map[string]any, error)
}
