// Package dispatch funnels image requests from any number of goroutines into
// batched calls on the single-owner generative model.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/checkface/internal/latent"
)

// DefaultTimeout is how long a caller waits for its job by default.
const DefaultTimeout = 30 * time.Second

// ErrGenerationTimeout is returned when a job is not completed before the
// caller's deadline. The job may still complete later; the result is dropped.
var ErrGenerationTimeout = errors.New("generation timed out")

// Job is one image request. It is completed at most once, by the worker, and
// may be waited on by any number of goroutines.
type Job struct {
	// ID identifies the job in logs.
	ID string
	// Proxy is the latent to render.
	Proxy latent.Proxy
	// Label is a human readable description, usually the proxy name.
	Label string
	// Submitted is when the job entered the queue.
	Submitted time.Time

	once sync.Once
	done chan struct{}
	img  image.Image
}

// NewJob creates a job that has not been queued yet.
func NewJob(p latent.Proxy, label string) *Job {
	return &Job{
		ID:        uuid.New().String(),
		Proxy:     p,
		Label:     label,
		Submitted: time.Now(),
		done:      make(chan struct{}),
	}
}

// Complete stores the result and wakes every waiter. It returns false if the
// job was already completed.
func (j *Job) Complete(img image.Image) bool {
	completed := false
	j.once.Do(func() {
		j.img = img
		close(j.done)
		completed = true
	})
	return completed
}

// Done is closed once the job is completed.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Result returns the image if the job has been completed.
func (j *Job) Result() (image.Image, bool) {
	select {
	case <-j.done:
		return j.img, true
	default:
		return nil, false
	}
}

// Wait blocks until the job completes, timeout elapses or ctx is done.
func (j *Job) Wait(ctx context.Context, timeout time.Duration) (image.Image, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-j.done:
		return j.img, nil
	case <-timer.C:
		return nil, fmt.Errorf("%s after %s: %w", j.Label, timeout, ErrGenerationTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (j *Job) String() string {
	return fmt.Sprintf("job %s (%s)", j.ID[:8], j.Label)
}
