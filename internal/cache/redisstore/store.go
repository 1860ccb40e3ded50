package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/relojapp/offline-worker/internal/cache"
)

const (
	keyPrefix      = "offline:"
	generationsKey = keyPrefix + "generations"
)

// Store implements cache.Store backed by Redis. Generation membership is
// tracked in a set so Names never has to scan the keyspace.
type Store struct {
	client *redis.Client
}

// New constructs a Redis-backed cache store and verifies connectivity.
func New(rawURL string) (*Store, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Store{client: client}, nil
}

// Client returns the underlying redis client, shared with the broadcaster.
func (s *Store) Client() *redis.Client {
	return s.client
}

// Close terminates the underlying Redis client connections.
func (s *Store) Close() error {
	return s.client.Close()
}

// Open returns the named generation, registering the name if new.
func (s *Store) Open(ctx context.Context, name string) (cache.Generation, error) {
	if err := s.client.SAdd(ctx, generationsKey, name).Err(); err != nil {
		return nil, fmt.Errorf("register generation %q: %w", name, err)
	}
	return &generation{client: s.client, name: name}, nil
}

// Names enumerates every registered generation name.
func (s *Store) Names(ctx context.Context) ([]string, error) {
	names, err := s.client.SMembers(ctx, generationsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list generations: %w", err)
	}
	return names, nil
}

// Drop deletes a generation and all of its entries.
func (s *Store) Drop(ctx context.Context, name string) (bool, error) {
	removed, err := s.client.SRem(ctx, generationsKey, name).Result()
	if err != nil {
		return false, fmt.Errorf("unregister generation %q: %w", name, err)
	}

	gen := &generation{client: s.client, name: name}
	keys, err := gen.entryKeys(ctx)
	if err != nil {
		return removed > 0, err
	}
	if len(keys) > 0 {
		if err := s.client.Del(ctx, keys...).Err(); err != nil {
			return removed > 0, fmt.Errorf("delete generation %q entries: %w", name, err)
		}
	}

	return removed > 0 || len(keys) > 0, nil
}

type generation struct {
	client *redis.Client
	name   string
}

func (g *generation) entryKey(key string) string {
	return keyPrefix + g.name + ":" + key
}

func (g *generation) entryKeys(ctx context.Context) ([]string, error) {
	var (
		out    []string
		cursor uint64
	)
	pattern := keyPrefix + g.name + ":*"
	for {
		keys, next, err := g.client.Scan(ctx, cursor, pattern, 256).Result()
		if err != nil {
			return nil, fmt.Errorf("scan generation %q: %w", g.name, err)
		}
		out = append(out, keys...)
		if next == 0 {
			return out, nil
		}
		cursor = next
	}
}

// Match retrieves a stored response if present.
func (g *generation) Match(ctx context.Context, key string) (cache.Response, bool, error) {
	data, err := g.client.Get(ctx, g.entryKey(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return cache.Response{}, false, nil
		}
		return cache.Response{}, false, fmt.Errorf("redis get %q: %w", key, err)
	}

	var resp cache.Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return cache.Response{}, false, fmt.Errorf("decode cached response %q: %w", key, err)
	}

	return resp, true, nil
}

// Put stores a response snapshot. Entries carry no TTL: they live until the
// generation is dropped.
func (g *generation) Put(ctx context.Context, key string, resp cache.Response) error {
	if resp.CapturedAt.IsZero() {
		resp.CapturedAt = time.Now().UTC()
	}

	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode cached response %q: %w", key, err)
	}

	if err := g.client.Set(ctx, g.entryKey(key), data, 0).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}

	return nil
}

// Delete removes a single entry.
func (g *generation) Delete(ctx context.Context, key string) (bool, error) {
	n, err := g.client.Del(ctx, g.entryKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("redis del %q: %w", key, err)
	}
	return n > 0, nil
}

// Keys lists request identities stored in this generation.
func (g *generation) Keys(ctx context.Context) ([]string, error) {
	raw, err := g.entryKeys(ctx)
	if err != nil {
		return nil, err
	}

	prefix := keyPrefix + g.name + ":"
	out := make([]string, 0, len(raw))
	for _, k := range raw {
		out = append(out, k[len(prefix):])
	}
	return out, nil
}
