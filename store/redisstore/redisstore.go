// Package redisstore implements [store.Store] on Redis.
//
// Each record is a JSON document at prefix:collection:key. A per-collection
// set at prefix:collection:_keys indexes the keys so Query can enumerate a
// collection without SCAN. Conditional updates use WATCH/MULTI and retry on
// optimistic-lock conflicts.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MrEthical07/goGuard/store"
	"github.com/redis/go-redis/v9"
)

const (
	defaultPrefix     = "gg"
	defaultMaxRetries = 8
	mgetChunk         = 256
)

// Options configures a Store.
type Options struct {
	// Prefix namespaces every key. Default "gg".
	Prefix string
	// MaxRetries bounds optimistic-lock retries in Update. Default 8.
	MaxRetries int
}

// Store is a Redis-backed document store.
type Store struct {
	redis      redis.UniversalClient
	prefix     string
	maxRetries int
}

// New creates a Store over client.
func New(client redis.UniversalClient, opts Options) *Store {
	if opts.Prefix == "" {
		opts.Prefix = defaultPrefix
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	return &Store{redis: client, prefix: opts.Prefix, maxRetries: opts.MaxRetries}
}

func (s *Store) docKey(collection, key string) string {
	return s.prefix + ":" + collection + ":" + key
}

func (s *Store) indexKey(collection string) string {
	return s.prefix + ":" + collection + ":_keys"
}

func (s *Store) Get(ctx context.Context, collection, key string) (store.Record, error) {
	data, err := s.redis.Get(ctx, s.docKey(collection, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, store.ErrNotFound
		}
		return nil, store.Unavailable("get", err)
	}
	return decode(data)
}

func (s *Store) Put(ctx context.Context, collection, key string, rec store.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("redisstore: encode %s/%s: %w", collection, key, err)
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.docKey(collection, key), data, 0)
		pipe.SAdd(ctx, s.indexKey(collection), key)
		return nil
	})
	if err != nil {
		return store.Unavailable("put", err)
	}
	return nil
}

// Create watches the document key so a concurrent writer aborts the
// transaction, then re-checks existence on retry.
func (s *Store) Create(ctx context.Context, collection, key string, rec store.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("redisstore: encode %s/%s: %w", collection, key, err)
	}
	docKey := s.docKey(collection, key)

	txf := func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, docKey).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return store.ErrConditionFailed
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, docKey, data, 0)
			pipe.SAdd(ctx, s.indexKey(collection), key)
			return nil
		})
		return err
	}

	for i := 0; i < s.maxRetries; i++ {
		err := s.redis.Watch(ctx, txf, docKey)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, store.ErrConditionFailed):
			return err
		default:
			return store.Unavailable("create", err)
		}
	}
	return store.Unavailable("create", errors.New("optimistic lock retries exhausted"))
}

func (s *Store) Update(ctx context.Context, collection, key string, fields store.Record, conds ...store.Predicate) error {
	docKey := s.docKey(collection, key)

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, docKey).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return store.ErrNotFound
			}
			return err
		}
		current, err := decode(data)
		if err != nil {
			return err
		}
		if !store.Match(current, conds) {
			return store.ErrConditionFailed
		}

		for k, v := range fields {
			if v == nil {
				delete(current, k)
				continue
			}
			current[k] = v
		}
		next, err := json.Marshal(current)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, docKey, next, 0)
			return nil
		})
		return err
	}

	for i := 0; i < s.maxRetries; i++ {
		err := s.redis.Watch(ctx, txf, docKey)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrConditionFailed):
			return err
		default:
			return store.Unavailable("update", err)
		}
	}
	return store.Unavailable("update", errors.New("optimistic lock retries exhausted"))
}

func (s *Store) Delete(ctx context.Context, collection, key string) error {
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.docKey(collection, key))
		pipe.SRem(ctx, s.indexKey(collection), key)
		return nil
	})
	if err != nil {
		return store.Unavailable("delete", err)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, collection string, preds []store.Predicate, order *store.Order) ([]store.Record, error) {
	keys, err := s.redis.SMembers(ctx, s.indexKey(collection)).Result()
	if err != nil {
		return nil, store.Unavailable("query", err)
	}

	out := make([]store.Record, 0, len(keys))
	var stale []any
	for start := 0; start < len(keys); start += mgetChunk {
		end := start + mgetChunk
		if end > len(keys) {
			end = len(keys)
		}
		chunk := keys[start:end]
		docKeys := make([]string, len(chunk))
		for i, k := range chunk {
			docKeys[i] = s.docKey(collection, k)
		}

		values, err := s.redis.MGet(ctx, docKeys...).Result()
		if err != nil {
			return nil, store.Unavailable("query", err)
		}
		for i, v := range values {
			raw, ok := v.(string)
			if !ok {
				stale = append(stale, chunk[i])
				continue
			}
			rec, err := decode([]byte(raw))
			if err != nil {
				return nil, err
			}
			if store.Match(rec, preds) {
				out = append(out, rec)
			}
		}
	}

	// Index entries can outlive their documents when a DEL races a SADD.
	if len(stale) > 0 {
		_ = s.redis.SRem(ctx, s.indexKey(collection), stale...).Err()
	}

	store.SortRecords(out, order)
	return out, nil
}

func decode(data []byte) (store.Record, error) {
	var rec store.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("redisstore: decode record: %w", err)
	}
	return store.Normalize(rec), nil
}
