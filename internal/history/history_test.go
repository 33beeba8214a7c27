package history

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/jason-s-yu/explorers/internal/cache"
	"github.com/jason-s-yu/explorers/internal/database"
	"github.com/jason-s-yu/explorers/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func event(id string) models.EntityEventRecord {
	return models.EntityEventRecord{
		EntityID:  id,
		Schema:    models.SchemaRoom,
		EventType: "SEND_COMPLETE",
		Command:   models.CmdJoin,
		Timestamp: time.Now().UnixMilli(),
	}
}

func TestRecorderToHistorian(t *testing.T) {
	queue := cache.NewMemoryQueue(64)
	store := database.NewMemoryStore()
	logger := quietLogger()

	ctx, cancel := context.WithCancel(context.Background())
	rec := NewRecorder(queue, 16, logger)
	hist := NewHistorian(queue, store, Options{BatchSize: 3, FlushDelay: 20 * time.Millisecond}, logger)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); rec.Run(ctx) }()
	go func() { defer wg.Done(); hist.Run(ctx) }()

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		rec.Record(event(id))
	}

	require.Eventually(t, func() bool {
		return len(store.EntityEvents()) == 5
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	wg.Wait()

	got := store.EntityEvents()
	ids := make([]string, 0, len(got))
	for _, e := range got {
		ids = append(ids, e.EntityID)
	}
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, ids)
	assert.Equal(t, 5, hist.Written())
	assert.Zero(t, rec.Dropped())
}

func TestRecorderDropsWhenFull(t *testing.T) {
	rec := NewRecorder(cache.NewMemoryQueue(1), 2, quietLogger())
	for i := 0; i < 5; i++ {
		rec.Record(event("x"))
	}
	assert.EqualValues(t, 3, rec.Dropped())
}

type flakyWriter struct {
	mu    sync.Mutex
	fail  bool
	calls int
	rows  []models.EntityEventRecord
}

func (w *flakyWriter) InsertEntityEvents(_ context.Context, events []models.EntityEventRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if w.fail {
		return errors.New("database unavailable")
	}
	w.rows = append(w.rows, events...)
	return nil
}

func TestFlushKeepsBatchOnFailure(t *testing.T) {
	w := &flakyWriter{fail: true}
	h := NewHistorian(cache.NewMemoryQueue(1), w, Options{BatchSize: 10}, quietLogger())
	ctx := context.Background()

	h.append(ctx, event("a"))
	h.append(ctx, event("b"))
	h.Flush(ctx)
	assert.Equal(t, 0, h.Written())

	w.fail = false
	h.Flush(ctx)
	assert.Equal(t, 2, h.Written())
	assert.Len(t, w.rows, 2)

	h.Flush(ctx)
	assert.Equal(t, 2, w.calls)
}

func TestBacklogDropsOldestWhileWriterFails(t *testing.T) {
	w := &flakyWriter{fail: true}
	h := NewHistorian(cache.NewMemoryQueue(1), w, Options{BatchSize: 2, MaxPending: 4}, quietLogger())
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		h.append(ctx, event(id))
	}
	assert.Equal(t, 2, h.Dropped())

	w.mu.Lock()
	w.fail = false
	w.mu.Unlock()
	h.Flush(ctx)

	ids := make([]string, 0, len(w.rows))
	for _, r := range w.rows {
		ids = append(ids, r.EntityID)
	}
	assert.Equal(t, []string{"c", "d", "e", "f"}, ids)
}

func TestRunDrainsQueueOnShutdown(t *testing.T) {
	queue := cache.NewMemoryQueue(64)
	store := database.NewMemoryStore()
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, queue.PublishEntityEvent(ctx, event(id)))
	}

	hist := NewHistorian(queue, store, Options{BatchSize: 100, FlushDelay: time.Hour}, quietLogger())
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	hist.Run(cancelled)

	assert.Equal(t, 5, hist.Written())
	assert.Zero(t, queue.Len())
	assert.Len(t, store.EntityEvents(), 5)
}
