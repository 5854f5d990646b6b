// Package memstore is an in-process [store.Store] backed by maps.
//
// It is the default backend for tests and single-process deployments. Every
// record is deep-copied on the way in and out so callers never share state.
package memstore

import (
	"context"
	"sync"

	"github.com/MrEthical07/goGuard/store"
)

// Store is a mutex-guarded in-memory document store.
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]store.Record
}

// New returns an empty Store.
func New() *Store {
	return &Store{collections: make(map[string]map[string]store.Record)}
}

func (s *Store) Get(ctx context.Context, collection, key string) (store.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, store.Unavailable("get", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.collections[collection][key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *Store) Put(ctx context.Context, collection, key string, rec store.Record) error {
	if err := ctx.Err(); err != nil {
		return store.Unavailable("put", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	col, ok := s.collections[collection]
	if !ok {
		col = make(map[string]store.Record)
		s.collections[collection] = col
	}
	col[key] = store.Normalize(rec.Clone())
	return nil
}

func (s *Store) Create(ctx context.Context, collection, key string, rec store.Record) error {
	if err := ctx.Err(); err != nil {
		return store.Unavailable("create", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	col, ok := s.collections[collection]
	if !ok {
		col = make(map[string]store.Record)
		s.collections[collection] = col
	}
	if _, exists := col[key]; exists {
		return store.ErrConditionFailed
	}
	col[key] = store.Normalize(rec.Clone())
	return nil
}

func (s *Store) Update(ctx context.Context, collection, key string, fields store.Record, conds ...store.Predicate) error {
	if err := ctx.Err(); err != nil {
		return store.Unavailable("update", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.collections[collection][key]
	if !ok {
		return store.ErrNotFound
	}
	if !store.Match(current, conds) {
		return store.ErrConditionFailed
	}

	next := current.Clone()
	for k, v := range store.Normalize(fields.Clone()) {
		if v == nil {
			delete(next, k)
			continue
		}
		next[k] = v
	}
	s.collections[collection][key] = next
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, key string) error {
	if err := ctx.Err(); err != nil {
		return store.Unavailable("delete", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.collections[collection], key)
	return nil
}

func (s *Store) Query(ctx context.Context, collection string, preds []store.Predicate, order *store.Order) ([]store.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, store.Unavailable("query", err)
	}
	s.mu.RLock()
	out := make([]store.Record, 0)
	for _, rec := range s.collections[collection] {
		if store.Match(rec, preds) {
			out = append(out, rec.Clone())
		}
	}
	s.mu.RUnlock()

	store.SortRecords(out, order)
	return out, nil
}

// Len reports the number of records in collection.
func (s *Store) Len(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[collection])
}
