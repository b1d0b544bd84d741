package auth

import (
	"context"
	"errors"
	"time"
)

// DeletionQueue holds session ids whose deletion failed so a worker can retry
// later. Delivery is best-effort; a lost id only means the row lingers until
// the expiry purge removes it.
type DeletionQueue interface {
	Enqueue(ctx context.Context, id string) error
	// Dequeue blocks until an id is available or ctx is done.
	Dequeue(ctx context.Context) (string, error)
}

// ErrQueueFull is returned when a bounded in-memory queue cannot accept more ids.
var ErrQueueFull = errors.New("deletion queue full")

// MemoryDeletionQueue is a bounded in-process queue.
type MemoryDeletionQueue struct {
	ids chan string
}

// NewMemoryDeletionQueue creates a queue holding up to capacity ids.
func NewMemoryDeletionQueue(capacity int) *MemoryDeletionQueue {
	if capacity <= 0 {
		capacity = 256
	}
	return &MemoryDeletionQueue{ids: make(chan string, capacity)}
}

// Enqueue adds id without blocking.
func (q *MemoryDeletionQueue) Enqueue(_ context.Context, id string) error {
	select {
	case q.ids <- id:
		return nil
	default:
		return ErrQueueFull
	}
}

// Dequeue waits for the next id.
func (q *MemoryDeletionQueue) Dequeue(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case id := <-q.ids:
		return id, nil
	}
}

// Len reports the number of pending ids.
func (q *MemoryDeletionQueue) Len() int {
	return len(q.ids)
}

// DrainDeletions consumes queue until ctx is cancelled, deleting each id. An id
// the store still fails to delete goes back on the queue before the backoff
// pause.
func (m *SessionManager) DrainDeletions(ctx context.Context, queue DeletionQueue, backoff time.Duration) error {
	if queue == nil {
		<-ctx.Done()
		return nil
	}
	if backoff <= 0 {
		backoff = time.Second
	}
	for {
		id, err := queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			m.logger.Error("dequeue session delete", "error", err)
			if !sleepContext(ctx, backoff) {
				return nil
			}
			continue
		}
		if _, err := m.store.Delete(ctx, id); err != nil {
			m.logger.Warn("retry session delete failed", "session_id", id, "error", err)
			// Requeue first so a shutdown during the pause keeps the id.
			if qerr := queue.Enqueue(context.WithoutCancel(ctx), id); qerr != nil {
				m.logger.Error("requeue session delete", "session_id", id, "error", qerr)
			}
			if !sleepContext(ctx, backoff) {
				return nil
			}
			continue
		}
		m.logger.Debug("session delete retried", "session_id", id)
	}
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
