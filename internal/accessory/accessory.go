package accessory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/c4-bridge/internal/device"
)

// uuidNamespace scopes accessory UUIDs so they never collide with other
// name-based UUIDs.
var uuidNamespace = uuid.MustParse("8f0c2a4e-5d1b-4c57-9a3e-c4b71d9e2f60")

// NewUUID derives the stable accessory UUID for a device from its name,
// room and proxy ID. The same device always gets the same UUID.
func NewUUID(c device.Context) string {
	return uuid.NewSHA1(uuidNamespace, []byte(c.Name+c.Room+c.ProxyID)).String()
}

// Source says where a property update came from.
type Source string

// Update sources.
const (
	SourceUser Source = "user"
	SourcePoll Source = "poll"
	SourceRead Source = "read"
)

// Event describes a property value change.
type Event struct {
	Accessory *Accessory
	Property  string
	Value     any
	Source    Source
	At        time.Time
}

// Listener is notified after a property value changes.
type Listener func(ctx context.Context, ev Event)

// Accessory is one exposed device: its identity, archetype and one
// Characteristic per logical property.
type Accessory struct {
	UUID      string
	Context   device.Context
	Archetype device.Archetype

	chars  []*Characteristic
	byName map[string]*Characteristic

	mu        sync.RWMutex
	listeners []Listener
}

// New builds an accessory for a device context, with one characteristic per
// mapping of the archetype.
func New(c device.Context, a device.Archetype) *Accessory {
	acc := &Accessory{
		UUID:      NewUUID(c),
		Context:   c,
		Archetype: a,
		byName:    make(map[string]*Characteristic),
	}
	for _, m := range a.Mappings() {
		ch := &Characteristic{acc: acc, mapping: m}
		acc.chars = append(acc.chars, ch)
		acc.byName[m.Name] = ch
	}
	return acc
}

// DisplayName is the device name as shown to users.
func (a *Accessory) DisplayName() string {
	return a.Context.Name
}

// Characteristic returns the characteristic for a property name.
func (a *Accessory) Characteristic(name string) (*Characteristic, bool) {
	c, ok := a.byName[name]
	return c, ok
}

// Characteristics returns every characteristic in mapping order.
func (a *Accessory) Characteristics() []*Characteristic {
	out := make([]*Characteristic, len(a.chars))
	copy(out, a.chars)
	return out
}

// OnChange registers a listener for value changes on any characteristic.
func (a *Accessory) OnChange(l Listener) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners = append(a.listeners, l)
}

// Values returns the current value of every characteristic that has one.
func (a *Accessory) Values() map[string]any {
	out := make(map[string]any, len(a.chars))
	for _, c := range a.chars {
		if v, ok := c.Value(); ok {
			out[c.Name()] = v
		}
	}
	return out
}

func (a *Accessory) emit(ctx context.Context, ev Event) {
	a.mu.RLock()
	listeners := make([]Listener, len(a.listeners))
	copy(listeners, a.listeners)
	a.mu.RUnlock()

	for _, l := range listeners {
		l(ctx, ev)
	}
}
