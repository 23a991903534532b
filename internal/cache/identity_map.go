// Package cache holds the identity maps repositories use to hand out a single
// live instance per stored row.
package cache

import (
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/spf13/cast"
)

// DefaultSize bounds each field's map when no size is configured.
const DefaultSize = 4096

// IdentityMap maps (field name, key value) to a live entity reference.
// Entries leave the map on explicit Remove or, once a field holds more than
// the configured size, by least-recent use. Callers receive the stored
// reference itself, so in-place mutation is visible to every holder.
type IdentityMap[T any] struct {
	mu     sync.Mutex
	size   int
	fields map[string]*lru.Cache[string, T]
}

// NewIdentityMap returns an empty map bounded to size entries per field.
func NewIdentityMap[T any](size int) *IdentityMap[T] {
	if size <= 0 {
		size = DefaultSize
	}
	return &IdentityMap[T]{size: size, fields: make(map[string]*lru.Cache[string, T])}
}

// Key renders one or more key parts into the map's string key. Composite
// keys keep their part order.
func Key(parts ...any) string {
	s := make([]string, len(parts))
	for i, p := range parts {
		s[i] = cast.ToString(p)
	}
	return strings.Join(s, "\x1f")
}

func (m *IdentityMap[T]) field(name string) *lru.Cache[string, T] {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.fields[name]
	if !ok {
		// size is always positive here, so New cannot fail
		c, _ = lru.New[string, T](m.size)
		m.fields[name] = c
	}
	return c
}

// Get returns the entity cached under field/key.
func (m *IdentityMap[T]) Get(field, key string) (T, bool) {
	return m.field(field).Get(key)
}

// Put caches v under field/key, replacing any previous entry.
func (m *IdentityMap[T]) Put(field, key string, v T) {
	m.field(field).Add(key, v)
}

// Remove evicts field/key. Removing an absent key is a no-op.
func (m *IdentityMap[T]) Remove(field, key string) {
	m.field(field).Remove(key)
}

// Len returns the number of entries cached for field.
func (m *IdentityMap[T]) Len(field string) int {
	return m.field(field).Len()
}

// Purge drops every entry of every field.
func (m *IdentityMap[T]) Purge() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.fields {
		c.Purge()
	}
}
