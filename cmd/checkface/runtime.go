package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ShayCichocki/checkface/internal/cache"
	"github.com/ShayCichocki/checkface/internal/config"
	"github.com/ShayCichocki/checkface/internal/dispatch"
	"github.com/ShayCichocki/checkface/internal/encoder"
	"github.com/ShayCichocki/checkface/internal/exec"
	"github.com/ShayCichocki/checkface/internal/logging"
	"github.com/ShayCichocki/checkface/internal/metrics"
	"github.com/ShayCichocki/checkface/internal/model"
	"github.com/ShayCichocki/checkface/internal/morph"
	"github.com/ShayCichocki/checkface/internal/store"
)

// runtime is the in-process service graph shared by serve and the offline
// render commands.
type runtime struct {
	cfg     *config.Config
	db      *store.DB
	metrics *metrics.Metrics
	queue   *dispatch.Queue
	worker  *dispatch.Worker
	images  *cache.Images
	morphs  *morph.Orchestrator
	encoder *encoder.Client
	log     zerolog.Logger

	cancel context.CancelFunc
	done   chan error
}

// startRuntime opens the store and starts the generator worker. The worker
// loads the model in the background; use waitReady before relying on it.
// Metrics may be nil.
func startRuntime(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (*runtime, error) {
	log := logging.For("runtime")

	db, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	var mdl model.Model
	switch cfg.Generator.Backend {
	case config.BackendRemote:
		mdl = model.NewRemote(cfg.Generator.RemoteURL, cfg.Generator.Timeout)
	default:
		mdl = model.NewProcedural(cfg.Generator.ImageSize)
	}

	q := dispatch.NewQueue(m)
	w := dispatch.NewWorker(mdl, q, dispatch.WorkerConfig{
		BatchSize:  cfg.Generator.BatchSize,
		Truncation: cfg.Truncation(),
		Metrics:    m,
		Logger:     logging.For("worker"),
	})

	layout := cache.Layout{Root: cfg.Data.Root}
	rt := &runtime{
		cfg:     cfg,
		db:      db,
		metrics: m,
		queue:   q,
		worker:  w,
		images: cache.NewImages(layout, q, cache.Options{
			Timeout: cfg.Generator.Timeout,
			Metrics: m,
			Logger:  logging.For("cache"),
		}),
		morphs: morph.New(layout, q, morph.Options{
			Timeout: cfg.Generator.Timeout,
			Runner:  exec.NewRunner(),
			FFmpeg:  cfg.FFmpeg.Path,
			Metrics: m,
			Logger:  logging.For("morph"),
		}),
		log:  log,
		done: make(chan error, 1),
	}
	if cfg.Encoder.URL != "" {
		rt.encoder = encoder.New(cfg.Encoder.URL, db, encoder.Options{
			Timeout: cfg.Encoder.Timeout,
			Metrics: m,
			Logger:  logging.For("encoder"),
		})
	}

	wctx, cancel := context.WithCancel(ctx)
	rt.cancel = cancel
	go func() {
		rt.done <- w.Run(wctx)
	}()

	log.Info().
		Str("backend", cfg.Generator.Backend).
		Str("data", cfg.Data.Root).
		Str("store", db.Path()).
		Int("batch_size", cfg.Generator.BatchSize).
		Msg("runtime started")
	return rt, nil
}

// waitReady blocks until the worker has loaded the model. A worker that
// exits first reports its error.
func (rt *runtime) waitReady(ctx context.Context) error {
	select {
	case <-rt.worker.Ready():
		return nil
	case err := <-rt.done:
		rt.done <- err
		if err == nil {
			err = errors.New("worker stopped before becoming ready")
		}
		return fmt.Errorf("start generator: %w", err)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the worker and closes the store. A worker error other than
// cancellation is returned.
func (rt *runtime) Close() error {
	rt.cancel()
	werr := <-rt.done
	if errors.Is(werr, context.Canceled) {
		werr = nil
	}
	return errors.Join(werr, rt.db.Close())
}
