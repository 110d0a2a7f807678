package cache

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/rs/zerolog"

	"github.com/ShayCichocki/checkface/internal/dispatch"
	"github.com/ShayCichocki/checkface/internal/latent"
	"github.com/ShayCichocki/checkface/internal/metrics"
	"github.com/ShayCichocki/checkface/internal/render"
)

// Options configures an Images cache.
type Options struct {
	// Timeout bounds the wait for each generated image.
	Timeout time.Duration
	// Metrics records hits and misses; may be nil.
	Metrics *metrics.Metrics
	// Logger receives cache logs.
	Logger zerolog.Logger
}

// Images serves single face images, generating them on a miss.
type Images struct {
	layout  Layout
	jobs    dispatch.Submitter
	timeout time.Duration
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// NewImages creates an image cache that submits misses to jobs.
func NewImages(layout Layout, jobs dispatch.Submitter, opts Options) *Images {
	if opts.Timeout <= 0 {
		opts.Timeout = dispatch.DefaultTimeout
	}
	return &Images{
		layout:  layout,
		jobs:    jobs,
		timeout: opts.Timeout,
		metrics: opts.Metrics,
		log:     opts.Logger,
	}
}

// Layout returns the directory layout.
func (c *Images) Layout() Layout { return c.layout }

// Path returns where the image for p would be cached.
func (c *Images) Path(p latent.Proxy, dim int, f render.Format) string {
	return c.layout.ImagePath(p, dim, f)
}

// Get returns the path of the cached image, generating and saving it first if
// it does not exist yet. Concurrent misses for the same image each generate it
// and the last write wins; the content is identical.
func (c *Images) Get(ctx context.Context, p latent.Proxy, dim int, f render.Format) (string, error) {
	if _, err := render.ParseFormat(string(f)); err != nil {
		return "", err
	}
	path := c.Path(p, dim, f)
	if render.Exists(path) {
		c.metrics.CacheLookup(true)
		return path, nil
	}
	c.metrics.CacheLookup(false)

	img, err := c.Generate(ctx, p)
	if err != nil {
		return "", err
	}
	if err := render.Save(path, img, dim, f); err != nil {
		return "", fmt.Errorf("save %s: %w", p.Name(), err)
	}
	c.log.Debug().Str("name", p.Name()).Int("dim", dim).Msg("image cached")
	return path, nil
}

// Generate submits one job for p and waits for the image, bypassing the cache.
func (c *Images) Generate(ctx context.Context, p latent.Proxy) (image.Image, error) {
	job := c.jobs.Submit(p, p.Name())
	return job.Wait(ctx, c.timeout)
}
