// Package storetest holds a behavioural suite every [store.Store] backend must pass.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/MrEthical07/goGuard/store"
)

// Run exercises newStore against the store contract. newStore must return an
// empty store each time it is called.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Helper()

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.Get(context.Background(), "c", "nope"); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		in := store.Record{
			"id":      "k1",
			"name":    "alpha",
			"enabled": true,
			"count":   int64(1700000000123),
			"tags":    []string{"a", "b"},
			"meta":    map[string]string{"x": "y"},
		}
		if err := s.Put(ctx, "c", "k1", in); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		out, err := s.Get(ctx, "c", "k1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if out.String("name") != "alpha" || !out.Bool("enabled") || out.Int64("count") != 1700000000123 {
			t.Fatalf("scalar fields did not round-trip: %#v", out)
		}
		if tags := out.Strings("tags"); len(tags) != 2 || tags[0] != "a" || tags[1] != "b" {
			t.Fatalf("list field did not round-trip: %#v", out["tags"])
		}
		if out.StringMap("meta")["x"] != "y" {
			t.Fatalf("map field did not round-trip: %#v", out["meta"])
		}
	})

	t.Run("GetReturnsCopy", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		if err := s.Put(ctx, "c", "k1", store.Record{"tags": []string{"a"}}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		first, _ := s.Get(ctx, "c", "k1")
		first.Strings("tags")[0] = "mutated"
		second, _ := s.Get(ctx, "c", "k1")
		if second.Strings("tags")[0] != "a" {
			t.Fatal("mutating a returned record changed stored state")
		}
	})

	t.Run("UpdateMissing", func(t *testing.T) {
		s := newStore(t)
		err := s.Update(context.Background(), "c", "nope", store.Record{"a": "b"})
		if !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("UpdateMergesAndRemoves", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		if err := s.Put(ctx, "c", "k1", store.Record{"a": "1", "b": "2"}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if err := s.Update(ctx, "c", "k1", store.Record{"a": "10", "b": nil, "c": int64(3)}); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		out, _ := s.Get(ctx, "c", "k1")
		if out.String("a") != "10" || out.Int64("c") != 3 {
			t.Fatalf("unexpected merged record %#v", out)
		}
		if _, ok := out["b"]; ok {
			t.Fatalf("expected field b removed, got %#v", out)
		}
	})

	t.Run("UpdateCondition", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		if err := s.Put(ctx, "c", "k1", store.Record{"version": int64(1)}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		err := s.Update(ctx, "c", "k1", store.Record{"version": int64(3)}, store.Eq("version", int64(2)))
		if !errors.Is(err, store.ErrConditionFailed) {
			t.Fatalf("expected ErrConditionFailed, got %v", err)
		}
		if err := s.Update(ctx, "c", "k1", store.Record{"version": int64(2)}, store.Eq("version", int64(1))); err != nil {
			t.Fatalf("conditional Update failed: %v", err)
		}
		out, _ := s.Get(ctx, "c", "k1")
		if out.Int64("version") != 2 {
			t.Fatalf("expected version 2, got %d", out.Int64("version"))
		}
	})

	t.Run("ConcurrentConditionalUpdateSingleWinner", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		if err := s.Put(ctx, "c", "k1", store.Record{"version": int64(0)}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}

		const workers = 8
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			winners int
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				err := s.Update(ctx, "c", "k1",
					store.Record{"version": int64(1), "winner": fmt.Sprint(i)},
					store.Eq("version", int64(0)))
				if err == nil {
					mu.Lock()
					winners++
					mu.Unlock()
				} else if !errors.Is(err, store.ErrConditionFailed) {
					t.Errorf("unexpected update error: %v", err)
				}
			}(i)
		}
		wg.Wait()
		if winners != 1 {
			t.Fatalf("expected exactly one winner, got %d", winners)
		}
	})

	t.Run("CreateIfAbsent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		if err := s.Create(ctx, "c", "k1", store.Record{"owner": "first"}); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		err := s.Create(ctx, "c", "k1", store.Record{"owner": "second"})
		if !errors.Is(err, store.ErrConditionFailed) {
			t.Fatalf("expected ErrConditionFailed, got %v", err)
		}
		out, err := s.Get(ctx, "c", "k1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if out.String("owner") != "first" {
			t.Fatalf("losing Create overwrote the record: %#v", out)
		}
		rows, err := s.Query(ctx, "c", []store.Predicate{store.Eq("owner", "first")}, nil)
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		if len(rows) != 1 {
			t.Fatalf("expected created record to be queryable, got %d rows", len(rows))
		}
	})

	t.Run("CreateAfterDelete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		if err := s.Create(ctx, "c", "k1", store.Record{"gen": int64(1)}); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if err := s.Delete(ctx, "c", "k1"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if err := s.Create(ctx, "c", "k1", store.Record{"gen": int64(2)}); err != nil {
			t.Fatalf("Create after Delete failed: %v", err)
		}
		out, _ := s.Get(ctx, "c", "k1")
		if out.Int64("gen") != 2 {
			t.Fatalf("expected gen 2, got %d", out.Int64("gen"))
		}
	})

	t.Run("ConcurrentCreateSingleWinner", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		const workers = 8
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			winners int
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				err := s.Create(ctx, "c", "k1", store.Record{"winner": fmt.Sprint(i)})
				if err == nil {
					mu.Lock()
					winners++
					mu.Unlock()
				} else if !errors.Is(err, store.ErrConditionFailed) {
					t.Errorf("unexpected create error: %v", err)
				}
			}(i)
		}
		wg.Wait()
		if winners != 1 {
			t.Fatalf("expected exactly one winner, got %d", winners)
		}
	})

	t.Run("DeleteIdempotent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		if err := s.Put(ctx, "c", "k1", store.Record{"a": "b"}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if err := s.Delete(ctx, "c", "k1"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if err := s.Delete(ctx, "c", "k1"); err != nil {
			t.Fatalf("second Delete failed: %v", err)
		}
		if _, err := s.Get(ctx, "c", "k1"); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("expected ErrNotFound after delete, got %v", err)
		}
	})

	t.Run("QueryFilterAndOrder", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		rows := []store.Record{
			{"id": "a", "user_id": "u1", "at": int64(30), "active": true},
			{"id": "b", "user_id": "u1", "at": int64(10), "active": true},
			{"id": "c", "user_id": "u1", "at": int64(20), "active": false},
			{"id": "d", "user_id": "u2", "at": int64(40), "active": true},
		}
		for _, r := range rows {
			if err := s.Put(ctx, "q", r.String("id"), r); err != nil {
				t.Fatalf("Put failed: %v", err)
			}
		}
		// Other collections never leak into a query.
		if err := s.Put(ctx, "other", "z", store.Record{"user_id": "u1"}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}

		got, err := s.Query(ctx, "q",
			[]store.Predicate{store.Eq("user_id", "u1"), store.Eq("active", true)},
			&store.Order{Field: "at", Desc: true})
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		if len(got) != 2 || got[0].String("id") != "a" || got[1].String("id") != "b" {
			t.Fatalf("unexpected query result %#v", got)
		}

		got, err = s.Query(ctx, "q", []store.Predicate{store.Lt("at", int64(25))}, &store.Order{Field: "at"})
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		if len(got) != 2 || got[0].String("id") != "b" || got[1].String("id") != "c" {
			t.Fatalf("unexpected range result %#v", got)
		}
	})

	t.Run("QueryEmptyCollection", func(t *testing.T) {
		s := newStore(t)
		got, err := s.Query(context.Background(), "empty", nil, nil)
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		if len(got) != 0 {
			t.Fatalf("expected no records, got %d", len(got))
		}
	})
}
