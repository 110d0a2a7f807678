package dispatch

import (
	"context"
	"sync"

	"github.com/ShayCichocki/checkface/internal/latent"
	"github.com/ShayCichocki/checkface/internal/metrics"
)

// Submitter accepts image jobs. *Queue is the production implementation.
type Submitter interface {
	Submit(p latent.Proxy, label string) *Job
}

// Queue is an unbounded FIFO of jobs with many producers and one consumer.
// Producers never block.
type Queue struct {
	// mu protects items.
	mu sync.Mutex
	// items holds pending jobs, oldest first.
	items []*Job
	// notify holds a token while items may be non-empty.
	notify chan struct{}
	// metrics receives the queue depth; may be nil.
	metrics *metrics.Metrics
}

// NewQueue creates an empty queue.
func NewQueue(m *metrics.Metrics) *Queue {
	return &Queue{
		notify:  make(chan struct{}, 1),
		metrics: m,
	}
}

// Submit wraps the proxy in a new job, queues it and returns it.
func (q *Queue) Submit(p latent.Proxy, label string) *Job {
	job := NewJob(p, label)
	q.Push(job)
	return job
}

// Push appends an existing job.
func (q *Queue) Push(job *Job) {
	q.mu.Lock()
	q.items = append(q.items, job)
	n := len(q.items)
	q.mu.Unlock()

	q.metrics.SetQueueDepth(n)
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// TryPop removes the oldest job without blocking.
func (q *Queue) TryPop() (*Job, bool) {
	q.mu.Lock()
	if len(q.items) == 0 {
		q.mu.Unlock()
		return nil, false
	}
	job := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	n := len(q.items)
	q.mu.Unlock()

	q.metrics.SetQueueDepth(n)
	return job, true
}

// Pop blocks until a job is available or ctx is done.
func (q *Queue) Pop(ctx context.Context) (*Job, error) {
	for {
		if job, ok := q.TryPop(); ok {
			return job, nil
		}
		select {
		case <-q.notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// PopBatch blocks for the first job, then takes up to size-1 more that are
// already queued. It never waits for a batch to fill.
func (q *Queue) PopBatch(ctx context.Context, size int) ([]*Job, error) {
	if size < 1 {
		size = 1
	}
	first, err := q.Pop(ctx)
	if err != nil {
		return nil, err
	}
	batch := make([]*Job, 1, size)
	batch[0] = first
	for len(batch) < size {
		job, ok := q.TryPop()
		if !ok {
			break
		}
		batch = append(batch, job)
	}
	return batch, nil
}

// Len returns the number of queued jobs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

var _ Submitter = (*Queue)(nil)
