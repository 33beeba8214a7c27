package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jason-s-yu/explorers/internal/models"
)

var ErrQueueFull = errors.New("event queue full")

// MemoryChat is a process-local chat history used when Redis is not configured.
type MemoryChat struct {
	mu    sync.Mutex
	rooms map[string][]models.Message
}

func NewMemoryChat() *MemoryChat {
	return &MemoryChat{rooms: make(map[string][]models.Message)}
}

func (m *MemoryChat) AppendMessage(_ context.Context, roomSlug string, msg models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := append(m.rooms[roomSlug], msg)
	if len(msgs) > maxStoredMessages {
		msgs = msgs[len(msgs)-maxStoredMessages:]
	}
	m.rooms[roomSlug] = msgs
	return nil
}

func (m *MemoryChat) RecentMessages(_ context.Context, roomSlug string, limit int) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.rooms[roomSlug]
	if limit <= 0 {
		return nil, nil
	}
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]models.Message(nil), msgs...), nil
}

// MemoryQueue is a bounded in-process entity event queue.
type MemoryQueue struct {
	ch chan models.EntityEventRecord
}

func NewMemoryQueue(size int) *MemoryQueue {
	return &MemoryQueue{ch: make(chan models.EntityEventRecord, size)}
}

// PublishEntityEvent enqueues rec without blocking.
func (q *MemoryQueue) PublishEntityEvent(_ context.Context, rec models.EntityEventRecord) error {
	select {
	case q.ch <- rec:
		return nil
	default:
		return ErrQueueFull
	}
}

// PopEntityEvent waits up to timeout for a record.
func (q *MemoryQueue) PopEntityEvent(ctx context.Context, timeout time.Duration) (*models.EntityEventRecord, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case rec := <-q.ch:
		return &rec, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *MemoryQueue) Len() int { return len(q.ch) }
