package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/relojapp/offline-worker/internal/cache"
)

// Store implements cache.Store entirely in memory. It backs Redis-less
// deployments and the test suite.
type Store struct {
	mu          sync.RWMutex
	generations map[string]*generation
}

// New constructs an empty in-memory cache store.
func New() *Store {
	return &Store{generations: make(map[string]*generation)}
}

// Open returns the named generation, creating it if absent.
func (s *Store) Open(_ context.Context, name string) (cache.Generation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	gen, ok := s.generations[name]
	if !ok {
		gen = &generation{entries: make(map[string]cache.Response)}
		s.generations[name] = gen
	}
	return gen, nil
}

// Names enumerates every generation name.
func (s *Store) Names(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.generations))
	for name := range s.generations {
		names = append(names, name)
	}
	return names, nil
}

// Drop deletes an entire generation.
func (s *Store) Drop(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.generations[name]
	delete(s.generations, name)
	return ok, nil
}

type generation struct {
	mu      sync.RWMutex
	entries map[string]cache.Response
}

func (g *generation) Match(_ context.Context, key string) (cache.Response, bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	resp, ok := g.entries[key]
	if !ok {
		return cache.Response{}, false, nil
	}
	return resp.Clone(), true, nil
}

func (g *generation) Put(_ context.Context, key string, resp cache.Response) error {
	if resp.CapturedAt.IsZero() {
		resp.CapturedAt = time.Now().UTC()
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.entries[key] = resp.Clone()
	return nil
}

func (g *generation) Delete(_ context.Context, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	_, ok := g.entries[key]
	delete(g.entries, key)
	return ok, nil
}

func (g *generation) Keys(context.Context) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	keys := make([]string, 0, len(g.entries))
	for k := range g.entries {
		keys = append(keys, k)
	}
	return keys, nil
}
