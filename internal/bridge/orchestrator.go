package bridge

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/c4-bridge/internal/accessory"
	"github.com/nerrad567/c4-bridge/internal/device"
	"github.com/nerrad567/c4-bridge/internal/state"
)

// Controller is the subset of the controller client the bridge uses.
type Controller interface {
	GetDevices(ctx context.Context) ([]device.RawDevice, error)
	GetVariables(ctx context.Context, proxyID string, variableIDs []string) (device.RawValues, error)
	SetVariable(ctx context.Context, proxyID, variableID, value string) error
}

// defaultRefreshTimeout bounds the background re-read after a write.
const defaultRefreshTimeout = 15 * time.Second

// OrchestratorOptions configures an Orchestrator.
type OrchestratorOptions struct {
	// RefreshTimeout bounds the background refresh after a write.
	// Zero uses 15 seconds.
	RefreshTimeout time.Duration

	// Logger is optional.
	Logger Logger
}

// OrchestratorMetrics counts orchestrator activity.
type OrchestratorMetrics struct {
	Fetches          uint64 `json:"fetches"`
	FetchErrors      uint64 `json:"fetch_errors"`
	Writes           uint64 `json:"writes"`
	WriteErrors      uint64 `json:"write_errors"`
	WritesDeduped    uint64 `json:"writes_deduped"`
	WritesSuppressed uint64 `json:"writes_suppressed"`
}

// Orchestrator reads and writes accessory properties through the controller.
//
// All fetches and writes for one accessory are serialised. Cached reads do
// not take the lock, so they never wait on a slow controller.
type Orchestrator struct {
	ctrl           Controller
	cache          *state.Cache
	logger         Logger
	refreshTimeout time.Duration

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	ctx       context.Context
	ctxCancel context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once

	fetches, fetchErrors            atomic.Uint64
	writes, writeErrors             atomic.Uint64
	writesDeduped, writesSuppressed atomic.Uint64
}

// NewOrchestrator creates an orchestrator over a controller and a cache.
func NewOrchestrator(ctrl Controller, cache *state.Cache, opts OrchestratorOptions) *Orchestrator {
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = defaultRefreshTimeout
	}
	if cache == nil {
		cache = state.NewCache()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		ctrl:           ctrl,
		cache:          cache,
		logger:         loggerOrNoop(opts.Logger),
		refreshTimeout: opts.RefreshTimeout,
		locks:          make(map[string]*sync.Mutex),
		ctx:            ctx,
		ctxCancel:      cancel,
	}
}

// Cache returns the state cache the orchestrator maintains.
func (o *Orchestrator) Cache() *state.Cache {
	return o.cache
}

// FetchState returns the accessory's snapshot. With useCached set, an
// existing snapshot is returned without contacting the controller;
// otherwise every mapped variable is fetched in one request, converted and
// stored as the new snapshot.
func (o *Orchestrator) FetchState(ctx context.Context, acc *accessory.Accessory, useCached bool) (device.Snapshot, error) {
	if useCached {
		if s, ok := o.cache.Get(acc.UUID); ok {
			return s, nil
		}
	}

	unlock := o.lock(acc.UUID)
	defer unlock()

	// A fetch that finished while we waited is as good as our own.
	if useCached {
		if s, ok := o.cache.Get(acc.UUID); ok {
			return s, nil
		}
	}
	return o.fetchLocked(ctx, acc)
}

func (o *Orchestrator) fetchLocked(ctx context.Context, acc *accessory.Accessory) (device.Snapshot, error) {
	o.fetches.Add(1)
	raw, err := o.ctrl.GetVariables(ctx, acc.Context.ProxyID, device.VariableIDs(acc.Archetype))
	if err != nil {
		o.fetchErrors.Add(1)
		return nil, fmt.Errorf("%w: %s: %w", ErrFetchFailed, acc.DisplayName(), err)
	}

	snap := device.ComputeState(acc.Archetype, raw)
	o.cache.Put(acc.UUID, snap)
	o.logger.Debug("state fetched",
		"accessory", acc.DisplayName(),
		"properties", len(snap),
	)
	return snap, nil
}

// Read returns one property value. Properties absent from the snapshot,
// such as a target temperature whose inputs are missing, return
// accessory.ErrNoValue.
func (o *Orchestrator) Read(ctx context.Context, acc *accessory.Accessory, name string, useCached bool) (any, error) {
	if _, ok := acc.Archetype.Mapping(name); !ok {
		return nil, fmt.Errorf("%w: %s", accessory.ErrUnknownProperty, name)
	}

	snap, err := o.FetchState(ctx, acc, useCached)
	if err != nil {
		return nil, err
	}
	v, ok := snap[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", accessory.ErrNoValue, acc.DisplayName(), name)
	}
	return v, nil
}

// Write sends a user change of one property to the controller.
//
// Writes made under accessory.SuppressWrites are acknowledged without
// effect. A value equal to the cached one is acknowledged without a remote
// call, which keeps paired properties (a light's state and level) from
// issuing duplicate writes. Otherwise the cache is updated first, the
// target variable is resolved against the snapshot, and the encoded value
// is sent. After every remote attempt the accessory is re-read in the
// background.
func (o *Orchestrator) Write(ctx context.Context, acc *accessory.Accessory, name string, v any) error {
	if accessory.WritesSuppressed(ctx) {
		o.writesSuppressed.Add(1)
		return nil
	}

	m, ok := acc.Archetype.Mapping(name)
	if !ok {
		return fmt.Errorf("%w: %s", accessory.ErrUnknownProperty, name)
	}
	if m.ReadOnly {
		return fmt.Errorf("%w: %s", device.ErrReadOnly, name)
	}
	nv, err := device.Normalize(m, v)
	if err != nil {
		return err
	}
	if err := device.CheckRange(m, nv); err != nil {
		return err
	}

	unlock := o.lock(acc.UUID)
	attempted, err := o.writeLocked(ctx, acc, m, nv)
	unlock()

	if attempted {
		o.refreshInBackground(acc)
	}
	return err
}

func (o *Orchestrator) writeLocked(ctx context.Context, acc *accessory.Accessory, m device.Mapping, v any) (bool, error) {
	if cur, ok := o.cache.Field(acc.UUID, m.Name); ok && cur == v {
		o.writesDeduped.Add(1)
		o.logger.Debug("write skipped, value unchanged",
			"accessory", acc.DisplayName(),
			"property", m.Name,
		)
		return false, nil
	}

	if _, ok := o.cache.Get(acc.UUID); !ok {
		if _, err := o.fetchLocked(ctx, acc); err != nil {
			o.logger.Warn("writing without state context",
				"accessory", acc.DisplayName(),
				"property", m.Name,
				"error", err,
			)
		} else if cur, ok := o.cache.Field(acc.UUID, m.Name); ok && cur == v {
			o.writesDeduped.Add(1)
			return false, nil
		}
	}

	before, hadSnapshot := o.cache.Get(acc.UUID)
	o.cache.SetField(acc.UUID, m.Name, v)
	snap, _ := o.cache.Get(acc.UUID)

	// Nothing was sent, so the optimistic field is restored.
	rollback := func() {
		if hadSnapshot {
			o.cache.Put(acc.UUID, before)
		}
	}
	id, err := device.ResolveVariableID(m, snap)
	if err != nil {
		rollback()
		return false, err
	}
	raw, err := m.Rule.ToController(v)
	if err != nil {
		rollback()
		return false, err
	}

	o.writes.Add(1)
	if err := o.ctrl.SetVariable(ctx, acc.Context.ProxyID, id, raw); err != nil {
		o.writeErrors.Add(1)
		o.logger.Error("set variable failed",
			"accessory", acc.DisplayName(),
			"property", m.Name,
			"variable", id,
			"error", err,
		)
		return true, fmt.Errorf("%w: %s.%s: %w", ErrWriteFailed, acc.DisplayName(), m.Name, err)
	}

	o.logger.Info("property set",
		"accessory", acc.DisplayName(),
		"property", m.Name,
		"variable", id,
		"value", v,
	)
	return true, nil
}

// refreshInBackground re-reads the accessory without blocking the caller.
// The result only replaces the cache; nothing is pushed.
func (o *Orchestrator) refreshInBackground(acc *accessory.Accessory) {
	if o.ctx.Err() != nil {
		return
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ctx, cancel := context.WithTimeout(o.ctx, o.refreshTimeout)
		defer cancel()
		if _, err := o.FetchState(ctx, acc, false); err != nil {
			o.logger.Warn("refresh after write failed",
				"accessory", acc.DisplayName(),
				"error", err,
			)
		}
	}()
}

// Wait blocks until outstanding background refreshes finish.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Close cancels outstanding background refreshes and waits for them.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		o.ctxCancel()
		o.wg.Wait()
	})
}

// Metrics returns a snapshot of the orchestrator counters.
func (o *Orchestrator) Metrics() OrchestratorMetrics {
	return OrchestratorMetrics{
		Fetches:          o.fetches.Load(),
		FetchErrors:      o.fetchErrors.Load(),
		Writes:           o.writes.Load(),
		WriteErrors:      o.writeErrors.Load(),
		WritesDeduped:    o.writesDeduped.Load(),
		WritesSuppressed: o.writesSuppressed.Load(),
	}
}

// lock acquires the accessory's mutex and returns its release.
func (o *Orchestrator) lock(uuid string) func() {
	o.locksMu.Lock()
	mu, ok := o.locks[uuid]
	if !ok {
		mu = &sync.Mutex{}
		o.locks[uuid] = mu
	}
	o.locksMu.Unlock()

	mu.Lock()
	return mu.Unlock
}
