package redisstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type Store struct {
	rdb    *redis.Client
	prefix string
}

func New(addr, password string, db int) *Store {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Store{rdb: rdb, prefix: "snapq:"}
}

func NewFromClient(rdb *redis.Client) *Store {
	return &Store{rdb: rdb, prefix: "snapq:"}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error { return s.rdb.Close() }

func StatsKey(tenantID string) string { return "stats:" + tenantID }

// Get returns redis.Nil when the key is absent.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	return s.rdb.Get(ctx, s.prefix+key).Bytes()
}

func (s *Store) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	return s.rdb.Set(ctx, s.prefix+key, val, ttl).Err()
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, s.prefix+key).Err()
}

// Lookup is Get with the miss folded into ok.
func (s *Store) Lookup(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := s.Get(ctx, key)
	if IsMiss(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// IsMiss reports whether err means "not cached".
func IsMiss(err error) bool { return err == redis.Nil }
