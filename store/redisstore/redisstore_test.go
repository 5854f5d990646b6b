package redisstore

import (
	"context"
	"errors"
	"testing"

	"github.com/MrEthical07/goGuard/store"
	"github.com/MrEthical07/goGuard/store/storetest"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

func TestRedisStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		_, rdb := newTestRedis(t)
		return New(rdb, Options{})
	})
}

func TestRedisStoreKeyLayout(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := New(rdb, Options{Prefix: "tst"})
	if err := s.Put(context.Background(), "sessions", "s1", store.Record{"user_id": "u1"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if !mr.Exists("tst:sessions:s1") {
		t.Fatal("expected document at tst:sessions:s1")
	}
	members, err := mr.Members("tst:sessions:_keys")
	if err != nil || len(members) != 1 || members[0] != "s1" {
		t.Fatalf("unexpected index members %v (%v)", members, err)
	}
}

func TestRedisStoreQueryDropsStaleIndexEntries(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := New(rdb, Options{})
	ctx := context.Background()
	_ = s.Put(ctx, "c", "a", store.Record{"id": "a"})
	_ = s.Put(ctx, "c", "b", store.Record{"id": "b"})
	mr.Del("gg:c:b")

	got, err := s.Query(ctx, "c", nil, nil)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(got) != 1 || got[0].String("id") != "a" {
		t.Fatalf("unexpected query result %v", got)
	}
	if ok, _ := mr.SIsMember("gg:c:_keys", "b"); ok {
		t.Fatal("expected stale index entry to be removed")
	}
}

func TestRedisStoreUnavailable(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := New(rdb, Options{})
	mr.Close()

	if _, err := s.Get(context.Background(), "c", "k"); !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if err := s.Update(context.Background(), "c", "k", store.Record{"a": "b"}); !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
