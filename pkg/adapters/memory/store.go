package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/aretw0/stanza/pkg/domain"
)

// Store implements ports.SchedulerStore in memory.
// Safe for concurrent use. Intended for tests and ephemeral hosts; items do
// not survive a process restart.
type Store struct {
	mu     sync.RWMutex
	items  map[string]domain.ScheduledExecution // by ID
	byKey  map[string]string                    // durable key -> ID
}

// NewStore creates a new in-memory scheduler store.
func NewStore() *Store {
	return &Store{
		items: make(map[string]domain.ScheduledExecution),
		byKey: make(map[string]string),
	}
}

// Save persists a pending item. Saving an existing durable key is a no-op.
func (s *Store) Save(ctx context.Context, item domain.ScheduledExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := item.Key()
	if _, exists := s.byKey[key]; exists {
		return nil
	}
	s.items[item.ID] = item
	s.byKey[key] = item.ID
	return nil
}

// LoadPending returns pending items ordered by fire time.
func (s *Store) LoadPending(ctx context.Context) ([]domain.ScheduledExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ScheduledExecution, 0, len(s.items))
	for _, item := range s.items {
		if item.Status == domain.SchedulePending || item.Status == domain.ScheduleDue {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FireAtEpoch != out[j].FireAtEpoch {
			return out[i].FireAtEpoch < out[j].FireAtEpoch
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// MarkExecuted transitions an item to the executed status.
func (s *Store) MarkExecuted(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return domain.ErrScheduleNotFound
	}
	item.Status = domain.ScheduleExecuted
	s.items[id] = item
	return nil
}

// Delete removes an item.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return nil
	}
	delete(s.byKey, item.Key())
	delete(s.items, id)
	return nil
}

// DeleteForDocument removes every item belonging to a document.
func (s *Store) DeleteForDocument(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, item := range s.items {
		if item.DocumentID == documentID {
			delete(s.byKey, item.Key())
			delete(s.items, id)
		}
	}
	return nil
}
