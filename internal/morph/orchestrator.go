package morph

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/ShayCichocki/checkface/internal/cache"
	"github.com/ShayCichocki/checkface/internal/dispatch"
	"github.com/ShayCichocki/checkface/internal/exec"
	"github.com/ShayCichocki/checkface/internal/latent"
	"github.com/ShayCichocki/checkface/internal/metrics"
	"github.com/ShayCichocki/checkface/internal/render"
)

// BoundaryDim is the size of the FROM.jpg and TO.jpg copies kept per pair.
const BoundaryDim = 1024

// ErrInvalidRequest is returned for frame counts or indices out of range.
var ErrInvalidRequest = errors.New("invalid morph request")

// Options configures an Orchestrator.
type Options struct {
	// Timeout bounds the wait for each generated frame.
	Timeout time.Duration
	// Runner runs ffmpeg for videos; defaults to exec.NewRunner().
	Runner exec.CommandRunner
	// FFmpeg is the ffmpeg binary; defaults to "ffmpeg".
	FFmpeg string
	// Metrics records ffmpeg time; may be nil.
	Metrics *metrics.Metrics
	// Logger receives orchestrator logs.
	Logger zerolog.Logger
}

// Orchestrator turns a pair of endpoints into frames, videos and previews,
// reusing anything already on disk.
type Orchestrator struct {
	layout  cache.Layout
	jobs    dispatch.Submitter
	timeout time.Duration
	runner  exec.CommandRunner
	ffmpeg  string
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// New creates an orchestrator writing under layout and submitting to jobs.
func New(layout cache.Layout, jobs dispatch.Submitter, opts Options) *Orchestrator {
	if opts.Timeout <= 0 {
		opts.Timeout = dispatch.DefaultTimeout
	}
	if opts.Runner == nil {
		opts.Runner = exec.NewRunner()
	}
	if opts.FFmpeg == "" {
		opts.FFmpeg = "ffmpeg"
	}
	return &Orchestrator{
		layout:  layout,
		jobs:    jobs,
		timeout: opts.Timeout,
		runner:  opts.Runner,
		ffmpeg:  opts.FFmpeg,
		metrics: opts.Metrics,
		log:     opts.Logger,
	}
}

// Request asks for some frames of a sequence.
type Request struct {
	From    latent.Proxy
	To      latent.Proxy
	Frames  int
	Dim     int
	Indices []int
	Shape   Shape
}

// FramesDir is <pair root>/frames/<shape> n<N>x<dim>.
func (o *Orchestrator) FramesDir(from, to latent.Proxy, s Shape, n, dim int) string {
	return filepath.Join(o.layout.MorphRoot(from, to), "frames", fmt.Sprintf("%s n%dx%d", s, n, dim))
}

// FramePaths returns the file for each requested index after mirroring,
// in request order.
func (o *Orchestrator) FramePaths(req Request) []string {
	dir := o.FramesDir(req.From, req.To, req.Shape, req.Frames, req.Dim)
	paths := make([]string, len(req.Indices))
	for k, i := range req.Indices {
		paths[k] = filepath.Join(dir, frameName(MirrorIndex(req.Shape, i, req.Frames)))
	}
	return paths
}

type pending struct {
	job  *dispatch.Job
	path string
	dim  int
	// optional writes are best effort
	optional bool
}

// Frames makes sure every requested frame exists and returns their paths in
// request order. Indices sharing a file are generated once. If every file is
// already present no job is submitted. A timeout on any frame aborts the
// request; frames written before it stay on disk.
func (o *Orchestrator) Frames(ctx context.Context, req Request) ([]string, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	paths := o.FramePaths(req)

	missing := false
	for _, p := range paths {
		if !render.Exists(p) {
			missing = true
			break
		}
	}
	if !missing {
		return paths, nil
	}

	root := o.layout.MorphRoot(req.From, req.To)
	fromImage := filepath.Join(root, "FROM.jpg")
	toImage := filepath.Join(root, "TO.jpg")
	label := fmt.Sprintf("from %s to %s", req.From.Name(), req.To.Name())

	var work []pending
	seen := make(map[string]bool, len(paths))
	for k, path := range paths {
		if seen[path] || render.Exists(path) {
			continue
		}
		seen[path] = true

		i := MirrorIndex(req.Shape, req.Indices[k], req.Frames)
		proxy := latent.NewLerp(req.From, req.To, BlendFraction(req.Shape, i, req.Frames))
		job := o.jobs.Submit(proxy, fmt.Sprintf("%s n%df%d", label, req.Frames, i))
		work = append(work, pending{job: job, path: path, dim: req.Dim})

		if i == 0 && !render.Exists(fromImage) {
			work = append(work, pending{job: job, path: fromImage, dim: BoundaryDim, optional: true})
		}
		if isEndpoint(req.Shape, i, req.Frames) && !render.Exists(toImage) {
			work = append(work, pending{job: job, path: toImage, dim: BoundaryDim, optional: true})
		}
	}

	start := time.Now()
	for _, w := range work {
		img, err := w.job.Wait(ctx, o.timeout)
		if err != nil {
			return nil, fmt.Errorf("morph %s: %w", label, err)
		}
		if err := render.Save(w.path, img, w.dim, render.JPEG); err != nil {
			if w.optional {
				o.log.Warn().Err(err).Str("path", w.path).Msg("could not save boundary image")
				continue
			}
			return nil, fmt.Errorf("save frame: %w", err)
		}
	}
	o.log.Info().
		Str("pair", label).
		Int("generated", len(seen)).
		Int("requested", len(paths)).
		Dur("took", time.Since(start)).
		Msg("morph frames ready")
	return paths, nil
}

// isEndpoint reports whether frame i shows the second endpoint exactly.
func isEndpoint(s Shape, i, n int) bool {
	if s == Linear {
		return i == n-1
	}
	return n%2 == 0 && 2*i == n
}

func validate(req Request) error {
	if req.From == nil || req.To == nil {
		return fmt.Errorf("%w: both endpoints are required", ErrInvalidRequest)
	}
	if !req.Shape.Valid() {
		return fmt.Errorf("%w: unknown shape %q", ErrInvalidRequest, req.Shape)
	}
	if req.Frames < 1 {
		return fmt.Errorf("%w: frame count %d", ErrInvalidRequest, req.Frames)
	}
	if req.Dim < 1 {
		return fmt.Errorf("%w: dimension %d", ErrInvalidRequest, req.Dim)
	}
	for _, i := range req.Indices {
		if i < 0 {
			return fmt.Errorf("%w: negative frame index %d", ErrInvalidRequest, i)
		}
	}
	return nil
}

// AllFrames returns the indices 0..n-1.
func AllFrames(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
