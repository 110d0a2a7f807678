package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/checkface/internal/config"
	"github.com/ShayCichocki/checkface/internal/logging"
	"github.com/ShayCichocki/checkface/internal/metrics"
	"github.com/ShayCichocki/checkface/internal/server"
)

var (
	serveAddr        string
	serveMetricsAddr string
	serveNoWatch     bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Start the generator worker and serve faces, morphs and the encoder over HTTP.

Requests arriving while the model is still loading are answered with 503.
Metrics are served on metrics.addr; set it to the same address as
server.addr (or to "") to expose /metrics on the API listener instead.

The configuration file is watched and generator.batch_size is applied
without a restart.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Override server.addr")
	serveCmd.Flags().StringVar(&serveMetricsAddr, "metrics-addr", "", "Override metrics.addr")
	serveCmd.Flags().BoolVar(&serveNoWatch, "no-watch", false, "Do not reload the config file on change")
}

func runServe() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}
	if serveMetricsAddr != "" {
		cfg.Metrics.Addr = serveMetricsAddr
	}

	ctx, stop := signalContext()
	defer stop()

	log := logging.For("serve")
	m := metrics.New()

	rt, err := startRuntime(ctx, cfg, m)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			log.Error().Err(err).Msg("shutdown")
		}
	}()

	sharedMetrics := cfg.Metrics.Addr == "" || cfg.Metrics.Addr == cfg.Server.Addr
	opts := server.Options{
		Images:       rt.images,
		Morphs:       rt.morphs,
		Latents:      rt.db,
		Generator:    rt.worker,
		Queue:        rt.queue,
		DefaultDim:   cfg.Images.DefaultDim,
		Metrics:      m,
		ServeMetrics: sharedMetrics,
		Logger:       logging.For("server"),
	}
	if rt.encoder != nil {
		opts.Encoder = rt.encoder
	}
	srv := server.New(opts)

	errc := make(chan error, 3)
	go func() {
		errc <- srv.ListenAndServe(ctx, cfg.Server.Addr)
	}()
	if !sharedMetrics {
		go func() {
			errc <- server.ServeMetrics(ctx, cfg.Metrics.Addr, m, logging.For("metrics"))
		}()
	}
	if !serveNoWatch {
		watchConfig(ctx, rt)
	}

	printStatus("✓", fmt.Sprintf("Listening on %s", cfg.Server.Addr), color.FgGreen)
	if !sharedMetrics {
		printStatus("✓", fmt.Sprintf("Metrics on %s", cfg.Metrics.Addr), color.FgGreen)
	}
	if path, err := rt.morphs.FFmpegPath(); err != nil {
		printStatus("⚠", "ffmpeg not found, /api/mp4/, /api/gif/ and /api/webp/ will fail", color.FgYellow)
		log.Warn().Err(err).Msg("video encoding unavailable")
	} else {
		log.Info().Str("ffmpeg", path).Msg("video encoding available")
	}
	if rt.encoder == nil {
		printStatus("⚠", "encoder.url not set, /api/encodeimage/ is disabled", color.FgYellow)
	}

	go func() {
		if err := rt.waitReady(ctx); err == nil {
			log.Info().Msg("generator ready")
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err := <-errc:
		if err != nil {
			return err
		}
	case err := <-rt.done:
		rt.done <- err
		if err != nil {
			printStatus("✗", "Generator stopped", color.FgRed)
			return err
		}
	}
	stop()
	return nil
}

// watchConfig applies batch size changes from the config file that is in
// effect. Other settings need a restart.
func watchConfig(ctx context.Context, rt *runtime) {
	log := logging.For("config")
	path := configPath
	if path == "" {
		path = config.GetProjectConfigPath()
	}
	if path == "" {
		path = config.GetUserConfigPath()
	}
	go func() {
		err := config.Watch(ctx, path, func(cfg *config.Config) {
			n := cfg.Generator.BatchSize
			if n < 1 || n == rt.worker.BatchSize() {
				return
			}
			rt.worker.SetBatchSize(n)
			log.Info().Int("batch_size", n).Str("path", path).Msg("batch size reloaded")
		}, func(err error) {
			log.Warn().Err(err).Str("path", path).Msg("config reload failed")
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Warn().Err(err).Str("path", path).Msg("config watch stopped")
		}
	}()
}
