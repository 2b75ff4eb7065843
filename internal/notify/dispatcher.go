package notify

import (
	"context"
	"log/slog"

	"github.com/iliyamo/grievance-portal/internal/queue"
)

// Dispatcher schedules lifecycle events for delivery.  Dispatch returns
// immediately; rendering and sending happen on the worker pool.
type Dispatcher struct {
	pool   *queue.Pool
	render *Renderer
	sink   Sink
	log    *slog.Logger
}

func NewDispatcher(r *Renderer, sink Sink, workers, queueSize int, log *slog.Logger) *Dispatcher {
	d := &Dispatcher{render: r, sink: sink, log: log.With("component", "notify")}
	d.pool = queue.NewPool(workers, queueSize, d.deliver, log)
	return d
}

// Start launches the workers.
func (d *Dispatcher) Start(ctx context.Context) { d.pool.Start(ctx) }

// Dispatch enqueues ev.  When the queue is full or closed the event is
// dropped with a warning.
func (d *Dispatcher) Dispatch(ev queue.Event) {
	if !d.pool.Enqueue(ev) {
		d.log.Warn("notify queue full, event dropped", "kind", ev.Kind, "grievance_id", ev.GrievanceID)
	}
}

// Close drains pending events.
func (d *Dispatcher) Close(ctx context.Context) error { return d.pool.Close(ctx) }

func (d *Dispatcher) deliver(ctx context.Context, ev queue.Event) error {
	for _, m := range d.render.Render(ev) {
		if !d.sink.Send(ctx, m) {
			d.log.Warn("notification not delivered", "kind", ev.Kind, "grievance_id", ev.GrievanceID, "to", m.To)
			continue
		}
		d.log.Info("notification sent", "kind", ev.Kind, "grievance_id", ev.GrievanceID, "to", m.To)
	}
	return nil
}
