package memory

import (
	"context"
	"sync"
)

// Source implements ports.TableSource over fixed in-memory tables.
// Used in tests and for documents authored against static data.
type Source struct {
	mu     sync.RWMutex
	tables map[string][]map[string]any
}

// NewSource creates a source from a table map. A nil map is allowed.
func NewSource(tables map[string][]map[string]any) *Source {
	if tables == nil {
		tables = make(map[string][]map[string]any)
	}
	return &Source{tables: tables}
}

// AddTable registers or replaces a table.
func (s *Source) AddTable(name string, rows []map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[name] = rows
}

// Select returns all rows of a table. A missing table yields (nil, nil) so
// documents bound to it stay renderable with an empty array.
func (s *Source) Select(ctx context.Context, table string) ([]map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, ok := s.tables[table]
	if !ok {
		return nil, nil
	}
	out := make([]map[string]any, len(rows))
	copy(out, rows)
	return out, nil
}
