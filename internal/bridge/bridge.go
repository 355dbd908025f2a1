package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/c4-bridge/internal/accessory"
	"github.com/nerrad567/c4-bridge/internal/device"
	"github.com/nerrad567/c4-bridge/internal/state"
)

// Options configures a Bridge.
type Options struct {
	// Controller is the controller client. Required.
	Controller Controller

	// Catalog resolves driver file names to archetypes. Required.
	Catalog *device.Catalog

	// Repository persists registered accessories. Optional; without it
	// accessories are rediscovered on every start.
	Repository accessory.Repository

	// Cache is the state cache. Optional; a new one is created if nil.
	Cache *state.Cache

	// PollInterval between refresh cycles. Zero disables polling.
	PollInterval time.Duration

	// PollConcurrency caps parallel fetches per cycle.
	PollConcurrency int

	// RefreshTimeout bounds the background refresh after a write.
	RefreshTimeout time.Duration

	// Logger is optional structured logger.
	Logger Logger
}

// Metrics summarises bridge activity.
type Metrics struct {
	Accessories  int                 `json:"accessories"`
	Cached       int                 `json:"cached"`
	Orchestrator OrchestratorMetrics `json:"orchestrator"`
	Poller       PollerStatus        `json:"poller"`
}

// Bridge exposes controller devices as accessories.
//
// Start restores persisted accessories, discovers new ones, and starts the
// poller. Every characteristic of a registered accessory reads through the
// cache and writes through the Orchestrator.
type Bridge struct {
	ctrl    Controller
	catalog *device.Catalog
	repo    accessory.Repository
	orch    *Orchestrator
	poller  *Poller
	logger  Logger

	mu          sync.RWMutex
	accessories []*accessory.Accessory
	byUUID      map[string]*accessory.Accessory

	listenersMu sync.RWMutex
	listeners   []accessory.Listener

	discoverMu sync.Mutex

	started  atomic.Bool
	stopOnce sync.Once
}

// New creates a bridge. It does not contact the controller until Start.
func New(opts Options) (*Bridge, error) {
	if opts.Controller == nil {
		return nil, ErrControllerRequired
	}
	if opts.Catalog == nil {
		return nil, ErrCatalogRequired
	}

	logger := loggerOrNoop(opts.Logger)
	b := &Bridge{
		ctrl:    opts.Controller,
		catalog: opts.Catalog,
		repo:    opts.Repository,
		logger:  logger,
		byUUID:  make(map[string]*accessory.Accessory),
	}
	b.orch = NewOrchestrator(opts.Controller, opts.Cache, OrchestratorOptions{
		RefreshTimeout: opts.RefreshTimeout,
		Logger:         logger,
	})
	b.poller = NewPoller(b.orch, b.Accessories, PollerOptions{
		Interval:    opts.PollInterval,
		Concurrency: opts.PollConcurrency,
		Logger:      logger,
	})
	return b, nil
}

// Start restores persisted accessories, runs discovery and starts polling.
// Discovery failure is logged, not returned, so restored accessories stay
// available while the controller is unreachable.
func (b *Bridge) Start(ctx context.Context) error {
	if !b.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	if err := b.restore(ctx); err != nil {
		return err
	}

	if n, err := b.Discover(ctx); err != nil {
		b.logger.Error("device discovery failed", "error", err)
	} else {
		b.logger.Info("device discovery complete", "added", n)
	}

	b.poller.Start(ctx)
	b.logger.Info("bridge started", "accessories", len(b.Accessories()))
	return nil
}

// Stop halts polling and waits for in-flight work.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.poller.Stop()
		b.orch.Close()
		b.logger.Info("bridge stopped")
	})
}

// restore re-creates persisted accessories. Records whose driver no longer
// matches an archetype are logged and skipped.
func (b *Bridge) restore(ctx context.Context) error {
	if b.repo == nil {
		return nil
	}
	recs, err := b.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading accessories: %w", err)
	}
	for _, rec := range recs {
		if _, err := b.register(rec.Context); err != nil {
			b.logger.Error("configuring accessory failed",
				"accessory", rec.Context.Name,
				"error", err,
			)
			continue
		}
		b.logger.Debug("accessory restored", "accessory", rec.Context.Name, "uuid", rec.UUID)
	}
	return nil
}

// Discover lists the controller's devices and registers every matched
// device that is not yet known. It returns the number added. Running it
// again against the same listing adds nothing.
func (b *Bridge) Discover(ctx context.Context) (int, error) {
	b.discoverMu.Lock()
	defer b.discoverMu.Unlock()

	entries, err := b.ctrl.GetDevices(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing devices: %w", err)
	}

	d := b.catalog.Discover(entries, b.knownContexts())
	for _, c := range d.Unmatched {
		b.logger.Error("no device type for driver",
			"device", c.Name,
			"room", c.Room,
			"driver", c.DriverFileName,
		)
	}

	added := 0
	for _, c := range d.New {
		acc, err := b.register(c)
		if err != nil {
			b.logger.Error("adding accessory failed", "device", c.Name, "error", err)
			continue
		}
		if b.repo != nil {
			if err := b.repo.Save(ctx, &accessory.Record{UUID: acc.UUID, Context: c}); err != nil {
				b.logger.Error("persisting accessory failed", "accessory", c.Name, "error", err)
			}
		}
		b.logger.Info("accessory added",
			"accessory", c.Name,
			"room", c.Room,
			"proxy_id", c.ProxyID,
			"uuid", acc.UUID,
		)
		added++
	}
	return added, nil
}

// register builds an accessory for c, binds its handlers and adds it to the
// registry. An accessory with the same UUID is returned unchanged.
func (b *Bridge) register(c device.Context) (*accessory.Accessory, error) {
	a, err := b.catalog.MustMatch(c.DriverFileName)
	if err != nil {
		return nil, err
	}

	uuid := accessory.NewUUID(c)
	b.mu.Lock()
	defer b.mu.Unlock()
	if existing, ok := b.byUUID[uuid]; ok {
		return existing, nil
	}

	acc := accessory.New(c, a)
	b.bind(acc)
	b.accessories = append(b.accessories, acc)
	b.byUUID[acc.UUID] = acc
	return acc, nil
}

// bind wires every characteristic to the orchestrator. Reads are served
// from the cache when a snapshot exists; read-only properties get no set
// handler.
func (b *Bridge) bind(acc *accessory.Accessory) {
	for _, c := range acc.Characteristics() {
		name := c.Name()
		c.OnGet(func(ctx context.Context) (any, error) {
			return b.orch.Read(ctx, acc, name, true)
		})
		if !c.ReadOnly() {
			c.OnSet(func(ctx context.Context, v any) error {
				return b.orch.Write(ctx, acc, name, v)
			})
		}
	}
	acc.OnChange(b.dispatch)
}

// Subscribe registers a listener for value changes on every accessory.
func (b *Bridge) Subscribe(l accessory.Listener) {
	b.listenersMu.Lock()
	defer b.listenersMu.Unlock()
	b.listeners = append(b.listeners, l)
}

func (b *Bridge) dispatch(ctx context.Context, ev accessory.Event) {
	b.listenersMu.RLock()
	listeners := make([]accessory.Listener, len(b.listeners))
	copy(listeners, b.listeners)
	b.listenersMu.RUnlock()

	for _, l := range listeners {
		l(ctx, ev)
	}
}

// Accessories returns the registered accessories in registration order.
func (b *Bridge) Accessories() []*accessory.Accessory {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*accessory.Accessory, len(b.accessories))
	copy(out, b.accessories)
	return out
}

// Accessory returns a registered accessory by UUID.
func (b *Bridge) Accessory(uuid string) (*accessory.Accessory, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	acc, ok := b.byUUID[uuid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", accessory.ErrNotFound, uuid)
	}
	return acc, nil
}

// Remove unregisters an accessory and forgets its state.
func (b *Bridge) Remove(ctx context.Context, uuid string) error {
	b.mu.Lock()
	acc, ok := b.byUUID[uuid]
	if ok {
		delete(b.byUUID, uuid)
		for i, a := range b.accessories {
			if a == acc {
				b.accessories = append(b.accessories[:i], b.accessories[i+1:]...)
				break
			}
		}
	}
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", accessory.ErrNotFound, uuid)
	}

	b.orch.Cache().Delete(uuid)
	if b.repo != nil {
		if err := b.repo.Delete(ctx, uuid); err != nil && !errors.Is(err, accessory.ErrNotFound) {
			return err
		}
	}
	b.logger.Info("accessory removed", "accessory", acc.DisplayName(), "uuid", uuid)
	return nil
}

// Refresh fetches one accessory from the controller and pushes the result
// to its characteristics, as a poll cycle would.
func (b *Bridge) Refresh(ctx context.Context, uuid string) (device.Snapshot, error) {
	acc, err := b.Accessory(uuid)
	if err != nil {
		return nil, err
	}
	snap, err := b.orch.FetchState(ctx, acc, false)
	if err != nil {
		return nil, err
	}
	b.poller.Apply(ctx, acc, snap)
	return snap, nil
}

// Orchestrator returns the bridge's orchestrator.
func (b *Bridge) Orchestrator() *Orchestrator {
	return b.orch
}

// Poller returns the bridge's poller.
func (b *Bridge) Poller() *Poller {
	return b.poller
}

// Metrics returns current bridge metrics.
func (b *Bridge) Metrics() Metrics {
	return Metrics{
		Accessories:  len(b.Accessories()),
		Cached:       b.orch.Cache().Len(),
		Orchestrator: b.orch.Metrics(),
		Poller:       b.poller.Status(),
	}
}

func (b *Bridge) knownContexts() []device.Context {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]device.Context, len(b.accessories))
	for i, a := range b.accessories {
		out[i] = a.Context
	}
	return out
}
