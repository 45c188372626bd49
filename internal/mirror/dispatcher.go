package mirror

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sujalbistaa/confessions/internal/models"
)

const (
	EventConfessionCreated = "confession_created"
	EventLikesUpdated      = "likes_updated"
)

type task struct {
	event      string
	confession models.Confession
}

// Dispatcher runs mirror calls off the request path on a fixed pool of
// workers. Each call is bounded by a timeout; when the queue is full the
// event is dropped.
type Dispatcher struct {
	mirror  Mirror
	log     *zap.Logger
	timeout time.Duration
	enabled bool

	tasks  chan task
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

type DispatcherOptions struct {
	Timeout time.Duration
	Workers int
	Queue   int
}

// NewDispatcher starts the workers. A Noop mirror starts none and every
// event is skipped.
func NewDispatcher(m Mirror, log *zap.Logger, opts DispatcherOptions) *Dispatcher {
	d := &Dispatcher{
		mirror:  m,
		log:     log.Named("mirror"),
		timeout: opts.Timeout,
	}
	if _, noop := m.(Noop); noop || m == nil {
		return d
	}

	d.enabled = true
	d.tasks = make(chan task, opts.Queue)
	for i := 0; i < opts.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

func (d *Dispatcher) ConfessionCreated(c models.Confession) {
	d.enqueue(task{event: EventConfessionCreated, confession: c})
}

func (d *Dispatcher) LikesUpdated(c models.Confession) {
	d.enqueue(task{event: EventLikesUpdated, confession: c})
}

func (d *Dispatcher) enqueue(t task) {
	if !d.enabled {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	select {
	case d.tasks <- t:
	default:
		d.log.Warn("mirror queue full, event dropped",
			zap.String("event", t.event),
			zap.Uint("confession_id", t.confession.ID))
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for t := range d.tasks {
		d.run(t)
	}
}

func (d *Dispatcher) run(t task) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	var err error
	switch t.event {
	case EventConfessionCreated:
		err = d.mirror.InsertConfession(ctx, t.confession)
	case EventLikesUpdated:
		err = d.mirror.UpdateLikes(ctx, t.confession)
	}
	if err != nil {
		d.log.Error("mirror sync failed",
			zap.String("event", t.event),
			zap.Uint("confession_id", t.confession.ID),
			zap.Error(err))
		return
	}
	d.log.Debug("mirror sync ok",
		zap.String("event", t.event),
		zap.Uint("confession_id", t.confession.ID))
}

// Close stops accepting events and waits for queued ones to finish, or for
// ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	if !d.enabled {
		return nil
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.tasks)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
