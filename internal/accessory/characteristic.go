package accessory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/c4-bridge/internal/device"
)

// GetHandler produces a fresh value for a characteristic.
type GetHandler func(ctx context.Context) (any, error)

// SetHandler applies a new value before the characteristic stores it.
// Returning an error rejects the update.
type SetHandler func(ctx context.Context, v any) error

// Characteristic is one exposed property of an accessory.
//
// User writes and poll pushes share one path, Set: the value is normalised,
// the set handler runs, and on success the value is stored and listeners
// are notified if it changed. Poll pushes carry a SuppressWrites context so
// the handler can tell them apart.
type Characteristic struct {
	acc     *Accessory
	mapping device.Mapping

	mu        sync.RWMutex
	value     any
	hasValue  bool
	updatedAt time.Time
	onGet     GetHandler
	onSet     SetHandler
}

// Name returns the logical property name.
func (c *Characteristic) Name() string { return c.mapping.Name }

// Mapping returns the property's variable mapping.
func (c *Characteristic) Mapping() device.Mapping { return c.mapping }

// Props returns the declared constraints.
func (c *Characteristic) Props() device.Props { return c.mapping.Props }

// ReadOnly reports whether users may write the property.
func (c *Characteristic) ReadOnly() bool { return c.mapping.ReadOnly }

// OnGet binds the handler used by Get.
func (c *Characteristic) OnGet(h GetHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onGet = h
}

// OnSet binds the handler used by Set.
func (c *Characteristic) OnSet(h SetHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onSet = h
}

// Value returns the last stored value.
func (c *Characteristic) Value() (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value, c.hasValue
}

// UpdatedAt returns when the value last changed.
func (c *Characteristic) UpdatedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.updatedAt
}

// Get returns the property value, asking the get handler when one is bound.
func (c *Characteristic) Get(ctx context.Context) (any, error) {
	c.mu.RLock()
	h := c.onGet
	c.mu.RUnlock()

	if h == nil {
		if v, ok := c.Value(); ok {
			return v, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrNoValue, c.Name())
	}

	v, err := h(ctx)
	if err != nil {
		return nil, err
	}
	if c.store(v) {
		c.acc.emit(ctx, c.event(v, SourceRead))
	}
	return v, nil
}

// Set updates the property. Read-only properties only accept updates made
// under SuppressWrites.
func (c *Characteristic) Set(ctx context.Context, v any) error {
	nv, err := device.Normalize(c.mapping, v)
	if err != nil {
		return err
	}

	pushed := WritesSuppressed(ctx)
	if !pushed {
		if c.mapping.ReadOnly {
			return fmt.Errorf("%w: %s", device.ErrReadOnly, c.Name())
		}
		if err := device.CheckRange(c.mapping, nv); err != nil {
			return err
		}
	}

	c.mu.RLock()
	h := c.onSet
	c.mu.RUnlock()

	if h != nil {
		if err := h(ctx, nv); err != nil {
			return err
		}
	}

	if c.store(nv) {
		source := SourceUser
		if pushed {
			source = SourcePoll
		}
		c.acc.emit(ctx, c.event(nv, source))
	}
	return nil
}

// store saves v and reports whether it differs from the previous value.
func (c *Characteristic) store(v any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.hasValue && c.value == v {
		return false
	}
	c.value = v
	c.hasValue = true
	c.updatedAt = time.Now()
	return true
}

func (c *Characteristic) event(v any, source Source) Event {
	return Event{
		Accessory: c.acc,
		Property:  c.Name(),
		Value:     v,
		Source:    source,
		At:        time.Now(),
	}
}
