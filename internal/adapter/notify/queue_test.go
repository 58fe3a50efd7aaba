package notify

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/rl1809/cafe-pos/internal/core/domain"
)

type recordingNotifier struct {
	mu      sync.Mutex
	events  []domain.OrderEvent
	block   chan struct{}
	failFor string
}

func (r *recordingNotifier) Notify(ctx context.Context, e domain.OrderEvent) error {
	if r.block != nil {
		<-r.block
	}
	if e.OrderID == r.failFor {
		return errors.New("broker down")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestQueue_DeliversAllOnClose(t *testing.T) {
	next := &recordingNotifier{}
	q := NewQueue(next, 100, zap.NewNop())
	q.Start(4)

	for i := 0; i < 50; i++ {
		if err := q.Notify(context.Background(), domain.OrderEvent{Type: domain.OrderEventCreated, OrderID: "o"}); err != nil {
			t.Fatalf("notify %d: %v", i, err)
		}
	}
	q.Close()

	if got := next.count(); got != 50 {
		t.Errorf("expected 50 delivered events, got %d", got)
	}
}

func TestQueue_FullQueueRejects(t *testing.T) {
	next := &recordingNotifier{block: make(chan struct{})}
	q := NewQueue(next, 1, zap.NewNop())
	q.Start(1)

	// One event is held by the blocked worker, one fills the buffer.
	var full bool
	for i := 0; i < 5; i++ {
		if err := q.Notify(context.Background(), domain.OrderEvent{OrderID: "o"}); errors.Is(err, ErrQueueFull) {
			full = true
			break
		}
	}
	if !full {
		t.Error("expected ErrQueueFull once the buffer is exhausted")
	}

	close(next.block)
	q.Close()
}

func TestQueue_RejectsAfterClose(t *testing.T) {
	q := NewQueue(&recordingNotifier{}, 10, zap.NewNop())
	q.Start(1)
	q.Close()
	q.Close()

	if err := q.Notify(context.Background(), domain.OrderEvent{}); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("expected ErrQueueClosed, got %v", err)
	}
}

func TestQueue_DeliveryFailureDoesNotStopWorkers(t *testing.T) {
	next := &recordingNotifier{failFor: "bad"}
	q := NewQueue(next, 10, zap.NewNop())
	q.Start(1)

	q.Notify(context.Background(), domain.OrderEvent{OrderID: "bad"})
	q.Notify(context.Background(), domain.OrderEvent{OrderID: "good"})
	q.Close()

	if got := next.count(); got != 1 {
		t.Errorf("expected the good event to be delivered, got %d events", got)
	}
}
