package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/checkface/internal/tui"
)

var (
	topURL      string
	topInterval time.Duration
	topTimeout  time.Duration
)

var topCmd = &cobra.Command{
	Use:   "top",
	Short: "Watch the generator queue of a running server",
	Long: `Poll /api/queue/ on a running server and show queue depth, batch
throughput and worker health in a live terminal view.

Keys: r refreshes now, q quits.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTop()
	},
}

func init() {
	topCmd.Flags().StringVar(&topURL, "url", "", "Server base URL (default derived from server.addr)")
	topCmd.Flags().DurationVar(&topInterval, "interval", time.Second, "Poll interval")
	topCmd.Flags().DurationVar(&topTimeout, "timeout", 3*time.Second, "Per request timeout")
}

func runTop() error {
	target := topURL
	if target == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		target = baseURL(cfg.Server.Addr)
	}

	program, app := tui.NewMonitorProgram(target, tui.HTTPFetcher(target, topTimeout), topInterval)
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("monitor: %w", err)
	}
	return app.Err()
}

// baseURL turns a listen address such as ":8080" into a URL on localhost.
func baseURL(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "http://localhost" + addr
	}
	return "http://" + addr
}
