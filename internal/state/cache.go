// Package state holds the last known property values of each accessory.
package state

import (
	"sync"

	"github.com/nerrad567/c4-bridge/internal/device"
)

// Cache stores one snapshot per accessory UUID.
//
// Snapshots are copied on the way in and out so callers can never mutate
// cached state behind the cache's back.
type Cache struct {
	mu        sync.RWMutex
	snapshots map[string]device.Snapshot
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{snapshots: make(map[string]device.Snapshot)}
}

// Get returns a copy of the accessory's snapshot.
func (c *Cache) Get(uuid string) (device.Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s, ok := c.snapshots[uuid]
	if !ok {
		return nil, false
	}
	return s.Clone(), true
}

// Put replaces the accessory's snapshot wholesale.
func (c *Cache) Put(uuid string, s device.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s == nil {
		s = device.Snapshot{}
	}
	c.snapshots[uuid] = s.Clone()
}

// Field returns one cached property value.
func (c *Cache) Field(uuid, name string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s, ok := c.snapshots[uuid]
	if !ok {
		return nil, false
	}
	v, ok := s[name]
	return v, ok
}

// SetField updates one property in an existing snapshot. It reports false
// and does nothing when the accessory has no snapshot yet.
func (c *Cache) SetField(uuid, name string, v any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.snapshots[uuid]
	if !ok {
		return false
	}
	s[name] = v
	return true
}

// Delete drops the accessory's snapshot.
func (c *Cache) Delete(uuid string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.snapshots, uuid)
}

// Len returns the number of cached accessories.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.snapshots)
}
