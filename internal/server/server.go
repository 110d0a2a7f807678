// Package server exposes faces, morphs and the encoder over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ShayCichocki/checkface/internal/cache"
	"github.com/ShayCichocki/checkface/internal/dispatch"
	"github.com/ShayCichocki/checkface/internal/encoder"
	"github.com/ShayCichocki/checkface/internal/latent"
	"github.com/ShayCichocki/checkface/internal/metrics"
	"github.com/ShayCichocki/checkface/internal/morph"
)

// Latents registers and loads stored latents.
type Latents interface {
	latent.Records
	Register(ctx context.Context, v latent.Vector) (uuid.UUID, error)
}

// Encoder turns an uploaded photo into a stored latent.
type Encoder interface {
	Encode(ctx context.Context, img []byte, tryAlign bool) (*encoder.Result, error)
}

// Generator reports the state of the batch worker. *dispatch.Worker
// implements it.
type Generator interface {
	Ready() <-chan struct{}
	Stats() dispatch.WorkerStats
	BatchSize() int
}

// Queue reports the number of waiting jobs.
type Queue interface {
	Len() int
}

// Options wires a Server to the rest of the service.
type Options struct {
	Images    *cache.Images
	Morphs    *morph.Orchestrator
	Latents   Latents
	Encoder   Encoder
	Generator Generator
	Queue     Queue
	// DefaultDim is used when a request has no valid dim; 300 if zero.
	DefaultDim int
	// Metrics times requests and, when ServeMetrics is set, is served at
	// /metrics on the same listener.
	Metrics      *metrics.Metrics
	ServeMetrics bool
	Logger       zerolog.Logger
}

// Server is the HTTP front end.
type Server struct {
	images     *cache.Images
	morphs     *morph.Orchestrator
	latents    Latents
	encoder    Encoder
	generator  Generator
	queue      Queue
	defaultDim int
	metrics    *metrics.Metrics
	log        zerolog.Logger
	mux        *http.ServeMux
}

// New builds a server and registers its routes.
func New(opts Options) *Server {
	if opts.DefaultDim == 0 {
		opts.DefaultDim = defaultDim
	}
	s := &Server{
		images:     opts.Images,
		morphs:     opts.Morphs,
		latents:    opts.Latents,
		encoder:    opts.Encoder,
		generator:  opts.Generator,
		queue:      opts.Queue,
		defaultDim: opts.DefaultDim,
		metrics:    opts.Metrics,
		log:        opts.Logger,
		mux:        http.NewServeMux(),
	}
	s.routes()
	if opts.ServeMetrics && opts.Metrics != nil {
		s.mux.Handle("GET /metrics", opts.Metrics.Handler())
	}
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /status/", s.handleStatus)
	s.mux.HandleFunc("GET /{$}", s.handleHome)
	s.mux.HandleFunc("GET /api/queue/", s.handleQueue)

	s.handle("GET /api/face/", "face", s.handleFace)
	s.handle("GET /api/hashdata/", "hashdata", s.handleHashData)
	s.handle("POST /api/registerlatent/", "registerlatent", s.handleRegisterLatent)
	s.handle("GET /api/gif/", "gif", s.handleVideo(morph.GIF))
	s.handle("GET /api/mp4/", "mp4", s.handleVideo(morph.MP4))
	s.handle("GET /api/webp/", "webp", s.handleVideo(morph.WebPAnim))
	s.handle("GET /api/linkpreview/", "linkpreview", s.handleLinkPreview)
	s.handle("GET /api/morphframe/", "morphframe", s.handleMorphFrame)
	s.handle("POST /api/encodeimage/", "encodeimage", s.handleEncodeImage)
	s.mux.HandleFunc("GET /api/encodeimage/", s.handleEncodeForm)
	s.handle("GET /api/{text}", "legacy", s.handleLegacy)
}

// handle registers a route that waits for the model, is timed, and maps
// returned errors onto status codes.
func (s *Server) handle(pattern, route string, h func(http.ResponseWriter, *http.Request) error) {
	s.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		defer func() { s.metrics.ObserveRequest(route, time.Since(start)) }()

		if !s.ready() {
			w.Header().Set("Retry-After", "5")
			http.Error(w, "model is loading", http.StatusServiceUnavailable)
			return
		}
		if err := h(w, r); err != nil {
			s.writeError(w, r, route, err)
		}
	})
}

func (s *Server) ready() bool {
	if s.generator == nil {
		return false
	}
	select {
	case <-s.generator.Ready():
		return true
	default:
		return false
	}
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	return serve(ctx, addr, s.mux, s.log)
}

// ServeMetrics serves m alone on addr until ctx is done.
func ServeMetrics(ctx context.Context, addr string, m *metrics.Metrics, log zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", m.Handler())
	return serve(ctx, addr, mux, log)
}

func serve(ctx context.Context, addr string, h http.Handler, log zerolog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}
