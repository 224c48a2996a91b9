package notify

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alejandrodnm/llmtrader/internal/domain"
	"github.com/alejandrodnm/llmtrader/internal/ports"
)

const (
	defaultQueueSize     = 256
	defaultNotifyTimeout = 10 * time.Second
)

// Dispatcher implementa ports.EventSink: encola eventos sin bloquear y los
// reparte a los notifiers desde una goroutine propia. Con la cola llena el
// evento se descarta.
type Dispatcher struct {
	notifiers []ports.Notifier
	queue     chan domain.Event
	timeout   time.Duration
	dropped   atomic.Int64

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewDispatcher crea un Dispatcher. queueSize <= 0 usa el valor por defecto.
// Llamar a Run para empezar a entregar.
func NewDispatcher(queueSize int, notifiers ...ports.Notifier) *Dispatcher {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Dispatcher{
		notifiers: notifiers,
		queue:     make(chan domain.Event, queueSize),
		timeout:   defaultNotifyTimeout,
		done:      make(chan struct{}),
	}
}

// Publish encola ev. Nunca bloquea.
func (d *Dispatcher) Publish(ev domain.Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	select {
	case d.queue <- ev:
	default:
		if n := d.dropped.Add(1); n == 1 || n%100 == 0 {
			slog.Warn("notify: queue full, dropping event", "kind", ev.Kind, "dropped", n)
		}
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Run entrega eventos hasta que se llame a Close y la cola se vacíe.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.done)
	for ev := range d.queue {
		d.deliver(ctx, ev)
	}
}

// Close deja de aceptar eventos y espera a que Run entregue los pendientes,
// como mucho hasta que ctx termine.
func (d *Dispatcher) Close(ctx context.Context) {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
	case <-ctx.Done():
	}
}

func (d *Dispatcher) deliver(ctx context.Context, ev domain.Event) {
	// Shutdown must not lose the last events of the pipeline.
	base := context.WithoutCancel(ctx)
	for _, n := range d.notifiers {
		nctx, cancel := context.WithTimeout(base, d.timeout)
		if err := n.Notify(nctx, ev); err != nil {
			slog.Warn("notifier error", "kind", ev.Kind, "err", err)
		}
		cancel()
	}
}
