// Package notify dispatches order events to downstream systems (kitchen displays,
// brokers, webhooks) after the order transaction has committed. Delivery is
// fire-and-forget: failures are logged and never reach the caller.
package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
)

// Event order lifecycle notification
type Event struct {
	Type           string    `json:"type"`
	RestaurantID   string    `json:"restaurant_id"`
	OrderID        string    `json:"order_id"`
	OrderNumber    string    `json:"order_number"`
	Status         string    `json:"status"`
	PreviousStatus string    `json:"previous_status,omitempty"`
	Version        int64     `json:"version"`
	Total          string    `json:"total,omitempty"`
	TableID        string    `json:"table_id,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// Notifier one delivery transport
type Notifier interface {
	Name() string
	Notify(ctx context.Context, ev Event) error
}

// Dispatcher fans an event out to every configured notifier in the background.
type Dispatcher struct {
	notifiers []Notifier
	timeout   time.Duration
	logger    *zap.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(logger *zap.Logger, notifiers ...Notifier) *Dispatcher {
	return &Dispatcher{
		notifiers: notifiers,
		timeout:   10 * time.Second,
		logger:    logger,
	}
}

// Dispatch returns immediately; delivery is detached from ctx cancellation.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		d.logger.Warn("Dispatcher closed, dropping order notification",
			zap.String("event", ev.Type),
			zap.String("order_id", ev.OrderID),
		)
		return
	}

	base := context.WithoutCancel(ctx)
	d.wg.Add(len(d.notifiers))
	for _, n := range d.notifiers {
		go func(n Notifier) {
			defer d.wg.Done()
			ctx, cancel := context.WithTimeout(base, d.timeout)
			defer cancel()
			if err := n.Notify(ctx, ev); err != nil {
				d.logger.Warn("Failed to deliver order notification",
					zap.String("transport", n.Name()),
					zap.String("event", ev.Type),
					zap.String("order_id", ev.OrderID),
					zap.Error(err),
				)
				return
			}
			d.logger.Debug("Order notification delivered",
				zap.String("transport", n.Name()),
				zap.String("event", ev.Type),
				zap.String("order_id", ev.OrderID),
			)
		}(n)
	}
}

// Close stops accepting events and blocks until in-flight deliveries finish.
// Dispatch after Close drops the event.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.wg.Wait()
}
