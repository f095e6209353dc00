// Package persist writes activity snapshots through to MySQL off the hot path.
package persist

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"eventwall/internal/models"

	"github.com/google/logger"
)

// Writer is the storage behind a Recorder.
type Writer interface {
	Save(ctx context.Context, s *Snapshot) error
	Delete(ctx context.Context, id string) error
}

type op struct {
	save     *Snapshot
	deleteID string
}

// Recorder queues committed snapshots and writes them from a single worker, so
// no database call ever runs while an activity is locked. When the queue is full
// saves are dropped; the next save of the same activity supersedes them anyway.
type Recorder struct {
	w       Writer
	ch      chan op
	done    chan struct{}
	dropped atomic.Int64
	timeout time.Duration
}

func NewRecorder(w Writer, queue int) *Recorder {
	return &Recorder{
		w:       w,
		ch:      make(chan op, queue),
		done:    make(chan struct{}),
		timeout: 5 * time.Second,
	}
}

type meta interface {
	Meta() *models.Activity
}

// Saved implements store.Sink.
func (r *Recorder) Saved(kind models.Kind, id string, snapshot any) {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		logger.Errorf("persist: encode %s %s: %v", kind, id, err)
		return
	}
	s := &Snapshot{ID: id, Kind: string(kind), Payload: payload, UpdatedAt: time.Now()}
	if m, ok := snapshot.(meta); ok {
		a := m.Meta()
		s.Code = a.Code
		s.Status = string(a.Status)
		s.Title = a.Title
		s.UpdatedAt = a.UpdatedAt
	}

	select {
	case r.ch <- op{save: s}:
	default:
		n := r.dropped.Add(1)
		logger.Warningf("persist: queue full, dropped snapshot of %s %s (%d dropped so far)", kind, id, n)
	}
}

// Deleted implements store.Sink. Deletes wait for room in the queue.
func (r *Recorder) Deleted(kind models.Kind, id string) {
	select {
	case r.ch <- op{deleteID: id}:
	case <-r.done:
		logger.Warningf("persist: recorder stopped, %s %s not deleted", kind, id)
	}
}

// Dropped reports how many saves were discarded because the queue was full.
func (r *Recorder) Dropped() int64 { return r.dropped.Load() }

// Run writes queued operations until ctx is done, then flushes what is left.
func (r *Recorder) Run(ctx context.Context) error {
	defer close(r.done)
	for {
		select {
		case o := <-r.ch:
			r.apply(o)
		case <-ctx.Done():
			for {
				select {
				case o := <-r.ch:
					r.apply(o)
				default:
					return nil
				}
			}
		}
	}
}

func (r *Recorder) apply(o op) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	var err error
	if o.save != nil {
		err = r.w.Save(ctx, o.save)
	} else {
		err = r.w.Delete(ctx, o.deleteID)
	}
	if err != nil {
		logger.Errorf("%+v", err)
	}
}
