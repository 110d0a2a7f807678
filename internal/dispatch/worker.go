package dispatch

import (
	"context"
	"errors"
	"fmt"
	"image"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/ShayCichocki/checkface/internal/latent"
	"github.com/ShayCichocki/checkface/internal/metrics"
	"github.com/ShayCichocki/checkface/internal/model"
)

// DefaultBatchSize is the largest batch handed to the model by default.
const DefaultBatchSize = 10

// warmupSeed is rendered once before the worker reports ready.
const warmupSeed = 5

// WorkerConfig contains configuration for the batch worker.
type WorkerConfig struct {
	// BatchSize is the initial maximum batch size. It can be changed while
	// running with SetBatchSize.
	BatchSize int
	// Truncation is applied when expanding compact latents.
	Truncation latent.Truncation
	// Metrics receives batch counters; may be nil.
	Metrics *metrics.Metrics
	// Logger receives worker logs.
	Logger zerolog.Logger
}

// DefaultWorkerConfig returns the production defaults.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		BatchSize:  DefaultBatchSize,
		Truncation: latent.DefaultTruncation(),
		Logger:     zerolog.Nop(),
	}
}

// WorkerStats tracks worker statistics.
type WorkerStats struct {
	// Batches is the number of inference calls made, warm-up excluded.
	Batches int `json:"batches"`
	// Images is the number of jobs completed.
	Images int `json:"images"`
	// FailedBatches is the number of batches abandoned after an error.
	FailedBatches int `json:"failed_batches"`
	// LastBatchSize is the size of the most recent batch.
	LastBatchSize int `json:"last_batch_size"`
	// LastBatchDuration is how long the most recent batch took.
	LastBatchDuration time.Duration `json:"last_batch_duration"`
}

// Worker is the only consumer of the queue and the only goroutine that touches
// the model.
type Worker struct {
	model   model.Model
	queue   *Queue
	trunc   latent.Truncation
	metrics *metrics.Metrics
	log     zerolog.Logger

	batchSize atomic.Int64
	ready     chan struct{}

	// mu protects stats.
	mu    sync.RWMutex
	stats WorkerStats
}

// NewWorker creates a worker for m that drains q. Call Run to start it.
func NewWorker(m model.Model, q *Queue, cfg WorkerConfig) *Worker {
	w := &Worker{
		model:   m,
		queue:   q,
		trunc:   cfg.Truncation,
		metrics: cfg.Metrics,
		log:     cfg.Logger,
		ready:   make(chan struct{}),
	}
	w.SetBatchSize(cfg.BatchSize)
	return w
}

// SetBatchSize changes the maximum batch size from the next cycle on.
// Values below 1 select DefaultBatchSize.
func (w *Worker) SetBatchSize(n int) {
	if n < 1 {
		n = DefaultBatchSize
	}
	w.batchSize.Store(int64(n))
}

// BatchSize returns the current maximum batch size.
func (w *Worker) BatchSize() int {
	return int(w.batchSize.Load())
}

// Ready is closed once the model context is built and the warm-up batch ran.
func (w *Worker) Ready() <-chan struct{} {
	return w.ready
}

// Stats returns a copy of the current statistics.
func (w *Worker) Stats() WorkerStats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

// Run builds the model context, warms the model up and processes batches until
// ctx is done. A failed batch is logged and its jobs are left to time out; Run
// only returns early when the model reports ErrDeviceLost or cannot start.
func (w *Worker) Run(ctx context.Context) error {
	lctx, err := model.NewContext(w.model, w.trunc)
	if err != nil {
		return fmt.Errorf("build model context: %w", err)
	}

	start := time.Now()
	if _, err := w.render(lctx, []*Job{NewJob(latent.NewSeed(warmupSeed), "warmup")}); err != nil {
		return fmt.Errorf("warm-up inference: %w", err)
	}
	w.log.Info().Dur("took", time.Since(start)).Msg("generator warmed up")

	close(w.ready)

	for {
		batch, err := w.queue.PopBatch(ctx, w.BatchSize())
		if err != nil {
			w.log.Info().Msg("worker stopping")
			return nil
		}
		if err := w.processBatch(lctx, batch); errors.Is(err, model.ErrDeviceLost) {
			w.log.Error().Err(err).Msg("generator device lost")
			return err
		}
	}
}

// processBatch renders a batch and completes every job in order. On any error
// no job is completed.
func (w *Worker) processBatch(lctx *latent.Context, batch []*Job) error {
	start := time.Now()
	imgs, err := w.render(lctx, batch)
	took := time.Since(start)
	w.metrics.BatchDone(took, err)

	w.mu.Lock()
	w.stats.LastBatchSize = len(batch)
	w.stats.LastBatchDuration = took
	if err != nil {
		w.stats.FailedBatches++
	} else {
		w.stats.Batches++
		w.stats.Images += len(batch)
	}
	w.mu.Unlock()

	if err != nil {
		labels := make([]string, len(batch))
		for i, job := range batch {
			labels[i] = job.Label
		}
		w.log.Error().Err(err).Strs("jobs", labels).Msg("batch failed")
		return err
	}

	for i, job := range batch {
		job.Complete(imgs[i])
	}
	w.metrics.ImagesGenerated(len(batch))
	w.log.Debug().Int("size", len(batch)).Dur("took", took).Msg("batch done")
	return nil
}

// render resolves and expands every job, then runs one inference call.
// Panics from the model or a proxy are turned into errors.
func (w *Worker) render(lctx *latent.Context, batch []*Job) (imgs []image.Image, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in batch: %v\n%s", r, debug.Stack())
		}
	}()

	inputs := make([]latent.Vector, len(batch))
	for i, job := range batch {
		v, err := job.Proxy.Resolve(lctx)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", job.Label, err)
		}
		if inputs[i], err = lctx.Expand(v); err != nil {
			return nil, fmt.Errorf("expand %s: %w", job.Label, err)
		}
	}

	imgs, err = w.model.Infer(inputs)
	if err != nil {
		return nil, err
	}
	if len(imgs) != len(batch) {
		return nil, fmt.Errorf("model returned %d images for a batch of %d", len(imgs), len(batch))
	}
	return imgs, nil
}
