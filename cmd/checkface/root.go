package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/checkface/internal/config"
	"github.com/ShayCichocki/checkface/internal/logging"
)

var (
	configPath string
	dataRoot   string
)

var rootCmd = &cobra.Command{
	Use:   "checkface",
	Short: "Deterministic face generation service",
	Long: `Checkface turns any value into a face. The same input always yields the
same image: a seed, a text value or a registered latent is resolved to a
latent vector, rendered by the generator and cached on disk.

Run "checkface serve" to start the HTTP API, or use the face, morph and
warm commands to render artifacts straight into the cache.

Configuration is read from ~/.config/checkface/config.yaml and an optional
.checkface.yaml in the current directory or a parent. Every key can be
overridden with a CHECKFACE_ environment variable.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.ConfigureRuntime()
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Read configuration from this file only")
	rootCmd.PersistentFlags().StringVar(&dataRoot, "data", "", "Override data.root")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(faceCmd)
	rootCmd.AddCommand(morphCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(hashdataCmd)
	rootCmd.AddCommand(warmCmd)
	rootCmd.AddCommand(topCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig resolves the layered configuration plus command line overrides
// and validates the result.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFromPath(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if dataRoot != "" {
		cfg.Data.Root = dataRoot
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// printStatus prints a status line with a colored symbol.
func printStatus(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	c.Printf("%s ", symbol)
	fmt.Println(message)
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
