package audit

import (
	"context"
	"sync"

	"github.com/nerrad567/c4-bridge/internal/accessory"
)

// queueSize is the buffer for pending entries. Entries beyond it are dropped.
const queueSize = 256

// Logger is the structured logger used by the recorder.
type Logger interface {
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Recorder journals user writes from accessory events. Writes are queued and
// stored serially by one goroutine so event dispatch never waits on SQLite.
type Recorder struct {
	repo   Repository
	logger Logger
	queue  chan *Entry

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewRecorder creates a recorder writing to repo. logger may be nil.
func NewRecorder(repo Repository, logger Logger) *Recorder {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Recorder{
		repo:   repo,
		logger: logger,
		queue:  make(chan *Entry, queueSize),
		done:   make(chan struct{}),
	}
}

// Start launches the writer goroutine.
func (r *Recorder) Start(ctx context.Context) {
	r.startOnce.Do(func() {
		ctx, r.cancel = context.WithCancel(ctx)
		go r.drain(ctx)
	})
}

// Stop flushes queued entries and waits for the writer to exit.
func (r *Recorder) Stop() {
	r.stopOnce.Do(func() {
		if r.cancel == nil {
			return
		}
		r.cancel()
		<-r.done
	})
}

// HandleEvent is an accessory.Listener. Only user writes are journaled.
func (r *Recorder) HandleEvent(_ context.Context, ev accessory.Event) {
	if ev.Source != accessory.SourceUser {
		return
	}
	e := &Entry{
		UUID:      ev.Accessory.UUID,
		Accessory: ev.Accessory.DisplayName(),
		Property:  ev.Property,
		Value:     ev.Value,
		Source:    string(ev.Source),
		CreatedAt: ev.At,
	}

	select {
	case r.queue <- e:
	default:
		r.logger.Warn("audit queue full, dropping entry",
			"accessory", e.Accessory,
			"property", e.Property,
		)
	}
}

func (r *Recorder) drain(ctx context.Context) {
	defer close(r.done)
	for {
		select {
		case e := <-r.queue:
			r.store(e)
		case <-ctx.Done():
			for {
				select {
				case e := <-r.queue:
					r.store(e)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) store(e *Entry) {
	if err := r.repo.Create(context.Background(), e); err != nil {
		r.logger.Error("audit write failed",
			"uuid", e.UUID,
			"property", e.Property,
			"error", err,
		)
	}
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
