// Package persistence implements the ordered persistence queue (C4): a
// single in-process FIFO of pending writes drained by one writer task,
// with head-of-line retry on failure. Lifecycle follows the teacher's
// running/done-channel/waitgroup pattern (internal/session.Manager).
package persistence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ibflow/ingestd/internal/models"
)

// JobKind discriminates what a Job carries.
type JobKind int

const (
	JobRealtimeBar JobKind = iota
	JobDailyBar
)

// Job is one pending write. Exactly one of CombinedBar/DailyBar is set,
// selected by Kind.
type Job struct {
	Kind        JobKind
	Symbol      string
	CombinedBar *models.CombinedBar
	DailyBar    *models.DailyBar
}

// Store is the persistence boundary the writer drains into. Implemented
// by internal/store's MySQL client; upserts are idempotent on primary
// key, which is what makes head-of-line retry safe without dedup.
type Store interface {
	UpsertRealtimeBar(ctx context.Context, bar *models.CombinedBar) error
	UpsertDailyBar(ctx context.Context, bar *models.DailyBar) error
}

// depthWarnThreshold is the queue depth above which Enqueue logs an
// error-level warning for each new job, without dropping anything.
const depthWarnThreshold = 5

// retryDelay is how long the writer waits before re-attempting the head
// job after a write failure, absent a fresh signal.
const retryDelay = 2 * time.Second

// Queue is the FIFO of pending Jobs plus the single writer task that
// drains it.
type Queue struct {
	store  Store
	logger *logrus.Entry

	mu      sync.Mutex
	jobs    []*Job
	signal  chan struct{}
	running bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewQueue creates a persistence queue backed by store.
func NewQueue(store Store, logger *logrus.Logger) *Queue {
	return &Queue{
		store:  store,
		logger: logger.WithField("component", "persistence"),
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Enqueue appends a job to the tail of the FIFO and wakes the writer.
func (q *Queue) Enqueue(job *Job) {
	q.mu.Lock()
	q.jobs = append(q.jobs, job)
	depth := len(q.jobs)
	q.mu.Unlock()

	if depth > depthWarnThreshold {
		q.logger.WithField("depth", depth).Error("persistence queue depth exceeds threshold")
	}
	q.wake()
}

func (q *Queue) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Depth returns the current queue length.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Start launches the writer task. It drains the FIFO while the queue is
// running OR non-empty, so Stop drains to completion before returning.
func (q *Queue) Start(ctx context.Context) error {
	if q.running {
		return fmt.Errorf("persistence queue already running")
	}
	q.running = true
	q.wg.Add(1)
	go q.writerLoop(ctx)
	return nil
}

// Stop signals the writer to finish draining and waits for it to exit.
func (q *Queue) Stop() {
	if !q.running {
		return
	}
	close(q.done)
	q.wg.Wait()
	q.running = false
}

func (q *Queue) writerLoop(ctx context.Context) {
	defer q.wg.Done()
	for {
		stopping := q.isStopping()

		attempted, ok := q.drainOnce(ctx)
		if !attempted {
			if stopping {
				return
			}
			select {
			case <-q.done:
			case <-q.signal:
			}
			continue
		}
		if !ok {
			if stopping {
				// done is already closed, so a select on it would return
				// immediately and busy-loop the retry; sleep unconditionally.
				time.Sleep(retryDelay)
			} else {
				select {
				case <-q.done:
				case <-q.signal:
				case <-time.After(retryDelay):
				}
			}
		}
	}
}

func (q *Queue) isStopping() bool {
	select {
	case <-q.done:
		return true
	default:
		return false
	}
}

// drainOnce attempts to write the head job, if any. attempted is false
// if the queue was empty; ok is false if the write failed and the head
// job stays in place for retry.
func (q *Queue) drainOnce(ctx context.Context) (attempted, ok bool) {
	q.mu.Lock()
	if len(q.jobs) == 0 {
		q.mu.Unlock()
		return false, false
	}
	head := q.jobs[0]
	q.mu.Unlock()

	var err error
	switch head.Kind {
	case JobRealtimeBar:
		err = q.store.UpsertRealtimeBar(ctx, head.CombinedBar)
	case JobDailyBar:
		err = q.store.UpsertDailyBar(ctx, head.DailyBar)
	}

	if err != nil {
		q.logger.WithError(err).WithField("symbol", head.Symbol).Error("persistence write failed, retrying head of queue")
		return true, false
	}

	q.mu.Lock()
	q.jobs = q.jobs[1:]
	q.mu.Unlock()
	return true, true
}
