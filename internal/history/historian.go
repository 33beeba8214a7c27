package history

import (
	"context"
	"sync"
	"time"

	"github.com/jason-s-yu/explorers/internal/models"
	"github.com/sirupsen/logrus"
)

// Queue is the read side of the event queue. PopEntityEvent returns nil, nil
// when nothing arrived within timeout.
type Queue interface {
	PopEntityEvent(ctx context.Context, timeout time.Duration) (*models.EntityEventRecord, error)
}

// Writer persists a batch of events.
type Writer interface {
	InsertEntityEvents(ctx context.Context, events []models.EntityEventRecord) error
}

// Options tunes the batching of a Historian.
type Options struct {
	BatchSize  int
	FlushDelay time.Duration
	// PopTimeout bounds each blocking read so flushes and shutdown are not starved.
	PopTimeout time.Duration
	// MaxPending caps the events held while the writer keeps failing; the
	// oldest are dropped beyond it.
	MaxPending int
}

// shutdownDrain bounds how long Run keeps emptying the queue after cancellation.
const shutdownDrain = 5 * time.Second

// Historian pops entity events from a queue and writes them in batches.
type Historian struct {
	queue  Queue
	writer Writer
	opts   Options
	logger *logrus.Logger

	batchMu sync.Mutex
	batch   []models.EntityEventRecord
	written int
	dropped int
}

// NewHistorian builds a historian. Zero options fall back to a batch of 20,
// a flush every 500ms, a 3s pop timeout and 50 batches of pending events.
func NewHistorian(queue Queue, writer Writer, opts Options, logger *logrus.Logger) *Historian {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 20
	}
	if opts.FlushDelay <= 0 {
		opts.FlushDelay = 500 * time.Millisecond
	}
	if opts.PopTimeout <= 0 {
		opts.PopTimeout = 3 * time.Second
	}
	if opts.PopTimeout > opts.FlushDelay {
		opts.PopTimeout = opts.FlushDelay
	}
	if opts.MaxPending < opts.BatchSize {
		opts.MaxPending = 50 * opts.BatchSize
	}
	return &Historian{
		queue:  queue,
		writer: writer,
		opts:   opts,
		logger: logger,
		batch:  make([]models.EntityEventRecord, 0, opts.BatchSize),
	}
}

// Run reads the queue until ctx is cancelled, then empties what is left in
// the queue and flushes the final batch.
func (h *Historian) Run(ctx context.Context) {
	h.logger.WithFields(logrus.Fields{
		"batchSize":  h.opts.BatchSize,
		"flushDelay": h.opts.FlushDelay,
	}).Info("historian started")

	ticker := time.NewTicker(h.opts.FlushDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.drain()
			h.logger.WithField("written", h.Written()).Info("historian shutting down")
			return

		case <-ticker.C:
			h.Flush(ctx)

		default:
			rec, err := h.queue.PopEntityEvent(ctx, h.opts.PopTimeout)
			if err != nil {
				if ctx.Err() == nil {
					h.logger.WithError(err).Error("pop entity event")
				}
				continue
			}
			if rec == nil {
				continue
			}
			h.append(ctx, *rec)
		}
	}
}

// drain pops whatever is still queued after cancellation and writes it.
func (h *Historian) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownDrain)
	defer cancel()
	for ctx.Err() == nil {
		rec, err := h.queue.PopEntityEvent(ctx, 50*time.Millisecond)
		if err != nil || rec == nil {
			break
		}
		h.append(ctx, *rec)
	}
	h.Flush(context.Background())
}

func (h *Historian) append(ctx context.Context, rec models.EntityEventRecord) {
	h.batchMu.Lock()
	h.batch = append(h.batch, rec)
	if over := len(h.batch) - h.opts.MaxPending; over > 0 {
		h.batch = append(h.batch[:0], h.batch[over:]...)
		h.dropped += over
		h.logger.WithFields(logrus.Fields{
			"dropped": over,
			"pending": len(h.batch),
		}).Warn("entity event backlog full, dropping oldest")
	}
	full := len(h.batch) >= h.opts.BatchSize
	h.batchMu.Unlock()

	if full {
		h.Flush(ctx)
	}
}

// Flush writes the pending batch in one call. On failure the batch is kept
// for the next attempt.
func (h *Historian) Flush(ctx context.Context) {
	h.batchMu.Lock()
	defer h.batchMu.Unlock()

	if len(h.batch) == 0 {
		return
	}
	if err := h.writer.InsertEntityEvents(ctx, h.batch); err != nil {
		h.logger.WithError(err).WithField("pending", len(h.batch)).Error("flush entity events")
		return
	}
	h.written += len(h.batch)
	h.logger.WithField("count", len(h.batch)).Debug("flushed entity events")
	h.batch = h.batch[:0]
}

// Written is the number of events persisted so far.
func (h *Historian) Written() int {
	h.batchMu.Lock()
	defer h.batchMu.Unlock()
	return h.written
}

// Dropped is the number of events discarded because the backlog was full.
func (h *Historian) Dropped() int {
	h.batchMu.Lock()
	defer h.batchMu.Unlock()
	return h.dropped
}
