// Package redisstore is the result cache: summaries keyed by input
// fingerprint, each with a TTL. The cache is never authoritative, so every
// failure degrades to a miss or a no-op and is only logged.
package redisstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const keyPrefix = "summary:"

type Store struct {
	rdb *redis.Client
	log zerolog.Logger
}

func New(addr, password string, db int, log zerolog.Logger) *Store {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	return NewWithClient(rdb, log)
}

func NewWithClient(rdb *redis.Client, log zerolog.Logger) *Store {
	return &Store{rdb: rdb, log: log.With().Str("component", "cache").Logger()}
}

func cacheKey(hash string) string { return keyPrefix + hash }

// Get returns the cached summary. A missing key, an expired key and an
// unreachable server all look the same to the caller.
func (s *Store) Get(ctx context.Context, hash string) (string, bool) {
	v, err := s.rdb.Get(ctx, cacheKey(hash)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warn().Err(err).Str("hash", hash).Msg("cache get failed, treating as miss")
		}
		return "", false
	}
	return v, true
}

// Set stores a summary with the given TTL. Last write wins.
func (s *Store) Set(ctx context.Context, hash, summary string, ttl time.Duration) {
	if err := s.rdb.Set(ctx, cacheKey(hash), summary, ttl).Err(); err != nil {
		s.log.Warn().Err(err).Str("hash", hash).Msg("cache set failed, skipping")
	}
}

// TTL reports the remaining lifetime of an entry; ok is false when the key
// is gone, has no expiry, or the server cannot be reached.
func (s *Store) TTL(ctx context.Context, hash string) (time.Duration, bool) {
	d, err := s.rdb.TTL(ctx, cacheKey(hash)).Result()
	if err != nil {
		s.log.Warn().Err(err).Str("hash", hash).Msg("cache ttl failed")
		return 0, false
	}
	// go-redis reports -2 for a missing key and -1 for no expiry
	if d <= 0 {
		return 0, false
	}
	return d, true
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}
