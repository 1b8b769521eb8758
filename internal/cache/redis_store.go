// Chainplay - Blockchain Game State Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chainplay

package cache

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Hash fields of a stored entry.
const (
	fieldValue      = "v"
	fieldCompressed = "c"
	fieldCreatedAt  = "ca"
	fieldAccessedAt = "la"
	fieldCount      = "n"
	fieldTTL        = "ttl"
	fieldSize       = "sz"
)

// touchScript reads an entry and bumps its access stats in one round trip.
// It never recreates a key that expired between the read and the update.
var touchScript = redis.NewScript(`
local v = redis.call('HGETALL', KEYS[1])
if #v == 0 then return v end
redis.call('HINCRBY', KEYS[1], 'n', 1)
redis.call('HSET', KEYS[1], 'la', ARGV[1])
return v
`)

// RedisConfig holds connection settings for the Redis store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Prefix namespaces every key, e.g. "chainplay:".
	Prefix string
}

// RedisStore keeps each entry as a hash with a native PEXPIRE, so Redis
// drops stale entries on its own.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// DialRedis connects and pings Redis.
func DialRedis(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return NewRedisStore(client, cfg.Prefix), nil
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key string, at time.Time) (*Entry, error) {
	raw, err := touchScript.Run(ctx, s.client, []string{s.prefix + key}, at.UnixNano()).Slice()
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	fields := make(map[string]string, len(raw)/2)
	for i := 0; i+1 < len(raw); i += 2 {
		name, _ := raw[i].(string)
		value, _ := raw[i+1].(string)
		fields[name] = value
	}

	e := &Entry{
		Key:          key,
		Value:        []byte(fields[fieldValue]),
		Compressed:   fields[fieldCompressed] == "1",
		CreatedAt:    parseUnixNano(fields[fieldCreatedAt]),
		TTL:          time.Duration(parseInt(fields[fieldTTL])) * time.Millisecond,
		AccessCount:  parseInt(fields[fieldCount]) + 1,
		LastAccessed: at,
		Size:         int(parseInt(fields[fieldSize])),
	}
	return e, nil
}

// Set implements Store.
func (s *RedisStore) Set(ctx context.Context, entry *Entry) error {
	k := s.prefix + entry.Key
	compressed := "0"
	if entry.Compressed {
		compressed = "1"
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, k)
		pipe.HSet(ctx, k,
			fieldValue, entry.Value,
			fieldCompressed, compressed,
			fieldCreatedAt, entry.CreatedAt.UnixNano(),
			fieldAccessedAt, entry.LastAccessed.UnixNano(),
			fieldCount, entry.AccessCount,
			fieldTTL, entry.TTL.Milliseconds(),
			fieldSize, entry.Size,
		)
		if entry.TTL > 0 {
			pipe.PExpire(ctx, k, entry.TTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set %s: %w", entry.Key, err)
	}
	return nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Del(ctx, s.prefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("redis delete %s: %w", key, err)
	}
	return n > 0, nil
}

// Keys implements Store. SCAN narrows by the pattern's literal prefix and
// each candidate is then matched with the same rules as the memory store.
func (s *RedisStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	var out []string
	iter := s.client.Scan(ctx, 0, s.prefix+literalPrefix(pattern)+"*", 500).Iterator()
	for iter.Next(ctx) {
		k := strings.TrimPrefix(iter.Val(), s.prefix)
		if Match(pattern, k) {
			out = append(out, k)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan %s: %w", pattern, err)
	}
	return out, nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func parseInt(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

func parseUnixNano(s string) time.Time {
	n := parseInt(s)
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

var _ Store = (*RedisStore)(nil)
