package bridge

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/c4-bridge/internal/accessory"
	"github.com/nerrad567/c4-bridge/internal/device"
)

// PollState is the poller's lifecycle state.
type PollState int32

// Poller states. A running poller cycles Scheduled → Fetching → Applying →
// Scheduled. Stopped is terminal.
const (
	PollIdle PollState = iota
	PollScheduled
	PollFetching
	PollApplying
	PollStopped
)

// String returns the state name.
func (s PollState) String() string {
	switch s {
	case PollIdle:
		return "idle"
	case PollScheduled:
		return "scheduled"
	case PollFetching:
		return "fetching"
	case PollApplying:
		return "applying"
	case PollStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// defaultPollConcurrency caps concurrent fetches within one cycle.
const defaultPollConcurrency = 4

// PollerOptions configures a Poller.
type PollerOptions struct {
	// Interval between cycles. Zero or negative disables polling.
	Interval time.Duration

	// Concurrency caps parallel fetches per cycle. Zero uses 4.
	Concurrency int

	// Logger is optional.
	Logger Logger
}

// PollerStatus reports the poller's progress.
type PollerStatus struct {
	State      string        `json:"state"`
	Interval   time.Duration `json:"interval"`
	Cycles     uint64        `json:"cycles"`
	Failures   uint64        `json:"failures"`
	Skipped    uint64        `json:"skipped"`
	LastCycle  time.Time     `json:"last_cycle,omitempty"`
	LastLength time.Duration `json:"last_duration"`
}

// Poller periodically re-reads every accessory and pushes the values to its
// characteristics.
//
// Pushes are made under accessory.SuppressWrites so set handlers do not
// write them back to the controller. A failed fetch for one accessory is
// logged and skipped; the cycle and later cycles carry on. A tick that
// arrives while a cycle is still running is skipped.
type Poller struct {
	orch        *Orchestrator
	accessories func() []*accessory.Accessory
	interval    time.Duration
	concurrency int
	logger      Logger

	state   atomic.Int32
	running atomic.Bool

	done      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once

	cycles, failures, skipped atomic.Uint64

	lastMu     sync.RWMutex
	lastCycle  time.Time
	lastLength time.Duration
}

// NewPoller creates a poller over the accessories returned by source.
func NewPoller(orch *Orchestrator, source func() []*accessory.Accessory, opts PollerOptions) *Poller {
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultPollConcurrency
	}
	return &Poller{
		orch:        orch,
		accessories: source,
		interval:    opts.Interval,
		concurrency: opts.Concurrency,
		logger:      loggerOrNoop(opts.Logger),
		done:        make(chan struct{}),
	}
}

// Start begins periodic polling. With a non-positive interval the poller
// goes straight to Stopped.
func (p *Poller) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		if p.interval <= 0 {
			p.state.Store(int32(PollStopped))
			p.logger.Info("polling disabled")
			return
		}
		p.setState(PollScheduled)
		p.wg.Add(1)
		go p.loop(ctx)
		p.logger.Info("poller started", "interval", p.interval)
	})
}

// Stop ends polling. A cycle already in progress runs to completion, and
// Stop waits for it.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		close(p.done)
		p.state.Store(int32(PollStopped))
		p.wg.Wait()
		p.logger.Info("poller stopped")
	})
}

// State returns the current state.
func (p *Poller) State() PollState {
	return PollState(p.state.Load())
}

// Status returns the poller's counters and state.
func (p *Poller) Status() PollerStatus {
	p.lastMu.RLock()
	defer p.lastMu.RUnlock()
	return PollerStatus{
		State:      p.State().String(),
		Interval:   p.interval,
		Cycles:     p.cycles.Load(),
		Failures:   p.failures.Load(),
		Skipped:    p.skipped.Load(),
		LastCycle:  p.lastCycle,
		LastLength: p.lastLength,
	}
}

func (p *Poller) loop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.done:
			return
		case <-ticker.C:
			if !p.running.CompareAndSwap(false, true) {
				p.skipped.Add(1)
				p.logger.Debug("poll skipped, previous cycle still running")
				continue
			}
			p.wg.Add(1)
			go func() {
				defer p.wg.Done()
				defer p.running.Store(false)
				// Shutdown must not abort a cycle halfway through a push.
				p.RunCycle(context.WithoutCancel(ctx))
			}()
		}
	}
}

type pollResult struct {
	acc  *accessory.Accessory
	snap device.Snapshot
}

// RunCycle fetches every accessory and pushes the results. It is what each
// tick runs and may also be called directly.
func (p *Poller) RunCycle(ctx context.Context) {
	started := time.Now()
	accs := p.accessories()

	p.setState(PollFetching)
	results := make([]*pollResult, len(accs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, acc := range accs {
		i, acc := i, acc
		g.Go(func() error {
			snap, err := p.orch.FetchState(gctx, acc, false)
			if err != nil {
				p.failures.Add(1)
				p.logger.Warn("poll fetch failed",
					"accessory", acc.DisplayName(),
					"error", err,
				)
				return nil
			}
			results[i] = &pollResult{acc: acc, snap: snap}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // fetch errors are logged per accessory

	p.setState(PollApplying)
	for _, r := range results {
		if r != nil {
			p.Apply(ctx, r.acc, r.snap)
		}
	}

	p.cycles.Add(1)
	p.lastMu.Lock()
	p.lastCycle = started
	p.lastLength = time.Since(started)
	p.lastMu.Unlock()
	p.setState(PollScheduled)
}

// Apply pushes every value present in snap to the accessory's
// characteristics, in mapping order, without triggering writes.
func (p *Poller) Apply(ctx context.Context, acc *accessory.Accessory, snap device.Snapshot) {
	pushCtx, release := accessory.SuppressWrites(ctx)
	defer release()

	for _, c := range acc.Characteristics() {
		v, ok := snap[c.Name()]
		if !ok {
			continue
		}
		if err := c.Set(pushCtx, v); err != nil {
			p.logger.Warn("poll push rejected",
				"accessory", acc.DisplayName(),
				"property", c.Name(),
				"value", v,
				"error", err,
			)
		}
	}
}

// setState moves to s unless the poller has stopped.
func (p *Poller) setState(s PollState) {
	for {
		cur := p.state.Load()
		if PollState(cur) == PollStopped {
			return
		}
		if p.state.CompareAndSwap(cur, int32(s)) {
			return
		}
	}
}
