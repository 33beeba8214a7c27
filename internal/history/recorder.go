// Package history moves entity command outcomes from the live server to
// durable storage: the Recorder publishes them to a queue, the Historian pops
// the queue in batches and writes them to the database.
package history

import (
	"context"
	"sync/atomic"

	"github.com/jason-s-yu/explorers/internal/models"
	"github.com/sirupsen/logrus"
)

// Publisher is the write side of the event queue.
type Publisher interface {
	PublishEntityEvent(ctx context.Context, rec models.EntityEventRecord) error
}

// Recorder buffers entity events so entities never block on the queue.
type Recorder struct {
	pub     Publisher
	logger  *logrus.Logger
	pending chan models.EntityEventRecord
	dropped atomic.Int64
}

// NewRecorder returns a recorder that holds up to buffer unpublished events.
func NewRecorder(pub Publisher, buffer int, logger *logrus.Logger) *Recorder {
	if buffer <= 0 {
		buffer = 1024
	}
	return &Recorder{
		pub:     pub,
		logger:  logger,
		pending: make(chan models.EntityEventRecord, buffer),
	}
}

// Record queues rec. When the buffer is full the event is dropped and counted.
func (r *Recorder) Record(rec models.EntityEventRecord) {
	select {
	case r.pending <- rec:
	default:
		if n := r.dropped.Add(1); n%100 == 1 {
			r.logger.WithField("dropped", n).Warn("entity event buffer full, dropping events")
		}
	}
}

// Dropped is the number of events lost to a full buffer.
func (r *Recorder) Dropped() int64 { return r.dropped.Load() }

// Run publishes buffered events until ctx is cancelled, then drains what is left.
func (r *Recorder) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			r.drain()
			return
		case rec := <-r.pending:
			r.publish(ctx, rec)
		}
	}
}

func (r *Recorder) drain() {
	ctx := context.Background()
	for {
		select {
		case rec := <-r.pending:
			r.publish(ctx, rec)
		default:
			return
		}
	}
}

func (r *Recorder) publish(ctx context.Context, rec models.EntityEventRecord) {
	if err := r.pub.PublishEntityEvent(ctx, rec); err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"entityId": rec.EntityID,
			"command":  rec.Command,
		}).Error("publish entity event")
	}
}
