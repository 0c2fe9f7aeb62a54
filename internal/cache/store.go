package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	jsonpatch "github.com/evanphx/json-patch/v5"
)

const shardCount = 32

var (
	ErrMissingKey      = errors.New("cache: missing entity id")
	ErrInvalidDocument = errors.New("cache: invalid entity document")
)

// Mode selects how an incoming document combines with a stored one.
type Mode int

const (
	// ModeReplace stores the document as-is.
	ModeReplace Mode = iota
	// ModeMerge applies the document as a JSON merge patch over the stored
	// one; fields absent from the patch keep their values.
	ModeMerge
)

func (m Mode) String() string {
	switch m {
	case ModeReplace:
		return "replace"
	case ModeMerge:
		return "merge"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

type entry[T any] struct {
	doc   []byte
	value T
}

type shard[T any] struct {
	mu    sync.RWMutex
	items map[string]entry[T]
}

// Store is one entity category. Each entry keeps the JSON document it was
// built from so partial updates merge against the full record.
type Store[T any] struct {
	name    string
	enabled bool
	key     func(T) string
	shards  [shardCount]shard[T]
}

func NewStore[T any](name string, enabled bool, key func(T) string) *Store[T] {
	s := &Store[T]{name: name, enabled: enabled, key: key}
	for i := range s.shards {
		s.shards[i].items = make(map[string]entry[T])
	}
	return s
}

func (s *Store[T]) Name() string  { return s.name }
func (s *Store[T]) Enabled() bool { return s.enabled }

func (s *Store[T]) shardFor(id string) *shard[T] {
	return &s.shards[xxhash.Sum64String(id)%shardCount]
}

// Upsert applies doc under mode and returns the resulting entity. A disabled
// store decodes doc but keeps nothing.
func (s *Store[T]) Upsert(doc []byte, mode Mode) (T, error) {
	var zero T
	incoming, err := decode[T](doc)
	if err != nil {
		return zero, fmt.Errorf("%w: %s: %v", ErrInvalidDocument, s.name, err)
	}
	id := strings.TrimSpace(s.key(incoming))
	if id == "" {
		return zero, fmt.Errorf("%w: %s", ErrMissingKey, s.name)
	}
	if !s.enabled {
		return incoming, nil
	}

	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	next := entry[T]{doc: clone(doc), value: incoming}
	if cur, ok := sh.items[id]; ok && mode == ModeMerge {
		merged, err := jsonpatch.MergePatch(cur.doc, doc)
		if err != nil {
			return zero, fmt.Errorf("%w: %s id=%s: %v", ErrInvalidDocument, s.name, id, err)
		}
		value, err := decode[T](merged)
		if err != nil {
			return zero, fmt.Errorf("%w: %s id=%s: %v", ErrInvalidDocument, s.name, id, err)
		}
		next = entry[T]{doc: merged, value: value}
	}
	sh.items[id] = next
	return next.value, nil
}

func (s *Store[T]) Get(id string) (T, bool) {
	var zero T
	if !s.enabled {
		return zero, false
	}
	sh := s.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	e, ok := sh.items[id]
	if !ok {
		return zero, false
	}
	return e.value, true
}

// Doc returns a copy of the stored JSON document for id.
func (s *Store[T]) Doc(id string) ([]byte, bool) {
	if !s.enabled {
		return nil, false
	}
	sh := s.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	e, ok := sh.items[id]
	if !ok {
		return nil, false
	}
	return clone(e.doc), true
}

func (s *Store[T]) Remove(id string) (T, bool) {
	var zero T
	if !s.enabled {
		return zero, false
	}
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	e, ok := sh.items[id]
	if !ok {
		return zero, false
	}
	delete(sh.items, id)
	return e.value, true
}

// RemoveWhere drops every entry matching pred and returns how many went.
func (s *Store[T]) RemoveWhere(pred func(T) bool) int {
	if !s.enabled {
		return 0
	}
	removed := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for id, e := range sh.items {
			if pred(e.value) {
				delete(sh.items, id)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

func (s *Store[T]) Len() int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		n += len(sh.items)
		sh.mu.RUnlock()
	}
	return n
}

// All returns every entry ordered by id.
func (s *Store[T]) All() []T {
	type keyed struct {
		id    string
		value T
	}
	var items []keyed
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		for id, e := range sh.items {
			items = append(items, keyed{id: id, value: e.value})
		}
		sh.mu.RUnlock()
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].id < items[j].id
	})
	out := make([]T, len(items))
	for i, item := range items {
		out[i] = item.value
	}
	return out
}

func (s *Store[T]) Clear() {
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		clear(sh.items)
		sh.mu.Unlock()
	}
}

func decode[T any](doc []byte) (T, error) {
	var v T
	if len(doc) == 0 {
		return v, errors.New("empty document")
	}
	if err := json.Unmarshal(doc, &v); err != nil {
		return v, err
	}
	return v, nil
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}
