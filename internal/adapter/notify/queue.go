package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/cafe-pos/internal/core/domain"
	"github.com/rl1809/cafe-pos/internal/port"
)

var (
	ErrQueueFull   = errors.New("event queue full")
	ErrQueueClosed = errors.New("event queue closed")
)

const deliverTimeout = 5 * time.Second

// Queue decouples order operations from event delivery. Notify only
// enqueues; a pool of workers forwards events to the wrapped notifier.
type Queue struct {
	next   port.OrderNotifier
	events chan domain.OrderEvent
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewQueue(next port.OrderNotifier, size int, logger *zap.Logger) *Queue {
	return &Queue{
		next:   next,
		events: make(chan domain.OrderEvent, size),
		logger: logger.Named("event_queue"),
	}
}

// Start launches the delivery workers.
func (q *Queue) Start(workers int) {
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go func(id int) {
			defer q.wg.Done()
			q.workerLoop(id)
		}(i)
	}
	q.logger.Info("started event workers", zap.Int("workers", workers))
}

func (q *Queue) Notify(ctx context.Context, event domain.OrderEvent) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.events <- event:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting events and waits for the workers to drain the queue.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.events)
	q.mu.Unlock()

	q.wg.Wait()
	q.logger.Info("event workers stopped")
}

func (q *Queue) workerLoop(id int) {
	for event := range q.events {
		ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)

		if err := q.next.Notify(ctx, event); err != nil {
			q.logger.Warn("event delivery failed",
				zap.Int("worker", id),
				zap.String("event", string(event.Type)),
				zap.String("order_id", event.OrderID),
				zap.Error(err))
		} else {
			q.logger.Debug("event delivered",
				zap.Int("worker", id),
				zap.String("event", string(event.Type)),
				zap.String("order_id", event.OrderID))
		}

		cancel()
	}
}
