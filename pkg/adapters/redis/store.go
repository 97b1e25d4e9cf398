// Package redis provides a Redis-backed scheduler store and a distributed
// document lock, for deployments where several processes share the wait
// queue.
package redis

import (
	"context"
	"encoding/json"
	"fmt"

	backend "github.com/redis/go-redis/v9"

	"github.com/aretw0/stanza/pkg/domain"
)

// Store implements ports.SchedulerStore on Redis. Items are kept as JSON
// values, indexed by fire time in a ZSET, with a SETNX guard on the durable
// key so re-saving the same wait is a no-op.
type Store struct {
	client *backend.Client
	prefix string
}

type Option func(*Store)

// WithPrefix sets the key prefix for all scheduler keys.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a Redis store with its own client.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: "stanza:sched:",
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *Store) itemKey(id string) string     { return s.prefix + "item:" + id }
func (s *Store) dedupeKey(key string) string  { return s.prefix + "key:" + key }
func (s *Store) indexKey() string             { return s.prefix + "index" }
func (s *Store) docKey(documentID string) string {
	return s.prefix + "doc:" + documentID
}

// Save persists a pending item. Saving is idempotent on the durable
// (document, block, fire-at) key: a duplicate leaves the stored item intact.
func (s *Store) Save(ctx context.Context, item domain.ScheduledExecution) error {
	claimed, err := s.client.SetNX(ctx, s.dedupeKey(item.Key()), item.ID, 0).Result()
	if err != nil {
		return fmt.Errorf("redis error claiming durable key: %w", err)
	}
	if !claimed {
		return nil
	}

	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal scheduled item: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.itemKey(item.ID), data, 0)
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{
		Score:  float64(item.FireAtEpoch),
		Member: item.ID,
	})
	pipe.SAdd(ctx, s.docKey(item.DocumentID), item.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save scheduled item: %w", err)
	}
	return nil
}

// LoadPending returns pending items ordered by fire time.
func (s *Store) LoadPending(ctx context.Context) ([]domain.ScheduledExecution, error) {
	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list scheduled items: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.itemKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load scheduled items: %w", err)
	}

	items := make([]domain.ScheduledExecution, 0, len(values))
	for _, raw := range values {
		str, ok := raw.(string)
		if !ok {
			continue // removed between ZRANGE and MGET
		}
		var item domain.ScheduledExecution
		if err := json.Unmarshal([]byte(str), &item); err != nil {
			return nil, fmt.Errorf("failed to unmarshal scheduled item: %w", err)
		}
		if item.Status == domain.SchedulePending {
			items = append(items, item)
		}
	}
	return items, nil
}

// MarkExecuted transitions an item to executed.
func (s *Store) MarkExecuted(ctx context.Context, id string) error {
	item, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	item.Status = domain.ScheduleExecuted
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal scheduled item: %w", err)
	}
	if err := s.client.Set(ctx, s.itemKey(id), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to update scheduled item: %w", err)
	}
	return nil
}

// Delete removes an item and all its index entries.
func (s *Store) Delete(ctx context.Context, id string) error {
	item, err := s.load(ctx, id)
	if err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.itemKey(id))
	pipe.Del(ctx, s.dedupeKey(item.Key()))
	pipe.ZRem(ctx, s.indexKey(), id)
	pipe.SRem(ctx, s.docKey(item.DocumentID), id)
	_, err = pipe.Exec(ctx)
	return err
}

// DeleteForDocument removes every item belonging to a document.
func (s *Store) DeleteForDocument(ctx context.Context, documentID string) error {
	ids, err := s.client.SMembers(ctx, s.docKey(documentID)).Result()
	if err != nil {
		return fmt.Errorf("failed to list document items: %w", err)
	}
	for _, id := range ids {
		if err := s.Delete(ctx, id); err != nil && err != domain.ErrScheduleNotFound {
			return err
		}
	}
	return s.client.Del(ctx, s.docKey(documentID)).Err()
}

func (s *Store) load(ctx context.Context, id string) (domain.ScheduledExecution, error) {
	val, err := s.client.Get(ctx, s.itemKey(id)).Result()
	if err != nil {
		if err == backend.Nil {
			return domain.ScheduledExecution{}, domain.ErrScheduleNotFound
		}
		return domain.ScheduledExecution{}, fmt.Errorf("failed to get scheduled item: %w", err)
	}
	var item domain.ScheduledExecution
	if err := json.Unmarshal([]byte(val), &item); err != nil {
		return domain.ScheduledExecution{}, fmt.Errorf("failed to unmarshal scheduled item: %w", err)
	}
	return item, nil
}

// Close closes the redis client.
// Client exposes the underlying connection so hosts can share it with a
// Locker.
func (s *Store) Client() *backend.Client {
	return s.client
}

func (s *Store) Close() error {
	return s.client.Close()
}
