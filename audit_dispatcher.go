package goGuard

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// auditDispatcher hands persisted security events to a SecuritySink on a
// single background goroutine. Delivery order matches Emit order.
type auditDispatcher struct {
	sink       SecuritySink
	logger     *slog.Logger
	dropIfFull bool

	queue    chan SecurityEvent
	stop     chan struct{}
	finished chan struct{}
	stopOnce sync.Once

	dropped atomic.Uint64
	panics  atomic.Uint64
}

// newAuditDispatcher returns nil when auditing is disabled; every method
// accepts a nil receiver.
func newAuditDispatcher(cfg AuditConfig, sink SecuritySink, logger *slog.Logger) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	d := &auditDispatcher{
		sink:       sink,
		logger:     logger,
		dropIfFull: cfg.DropIfFull,
		queue:      make(chan SecurityEvent, max(cfg.BufferSize, 1)),
		stop:       make(chan struct{}),
		finished:   make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *auditDispatcher) run() {
	defer close(d.finished)
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ev)
		case <-d.stop:
			// Sends that race with Close may land after this drain and are lost.
			for n := len(d.queue); n > 0; n-- {
				d.deliver(<-d.queue)
			}
			return
		}
	}
}

// deliver keeps a panicking sink from taking the dispatcher down with it.
func (d *auditDispatcher) deliver(ev SecurityEvent) {
	defer func() {
		if r := recover(); r != nil {
			d.panics.Add(1)
			d.logger.Error("security sink panicked",
				"event_id", ev.ID,
				"event_type", ev.Type,
				"panic", r,
			)
		}
	}()
	d.sink.Emit(context.Background(), ev)
}

// Emit queues ev. With DropIfFull a full queue drops and counts the event;
// otherwise Emit waits for room, for ctx to end or for Close.
func (d *auditDispatcher) Emit(ctx context.Context, ev SecurityEvent) {
	if d == nil {
		return
	}
	select {
	case <-d.stop:
		return
	default:
	}

	if d.dropIfFull {
		select {
		case d.queue <- ev:
		default:
			d.dropped.Add(1)
		}
		return
	}

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case d.queue <- ev:
	case <-ctx.Done():
	case <-d.stop:
	}
}

// Close stops intake and returns once the queued events reached the sink.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.stopOnce.Do(func() { close(d.stop) })
	<-d.finished
}

func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

func (d *auditDispatcher) Panics() uint64 {
	if d == nil {
		return 0
	}
	return d.panics.Load()
}
