package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/checkface/internal/logging"
	"github.com/ShayCichocki/checkface/internal/warm"
)

var warmCmd = &cobra.Command{
	Use:   "warm <plan.yaml>",
	Short: "Pre-render the faces and morphs listed in a plan",
	Long: `Render every face and morph listed in a YAML plan into the cache, so the
first request for them is served from disk.

Example plan:

  faces:
    - seed: 42
    - value: alice@example.com
  dims: [300, 600]
  formats: [jpg, webp]
  morphs:
    - from: {seed: 1}
      to: {value: bob}
      kinds: [gif]
      preview_width: 1200

Entries that fail are reported and the run continues.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWarm(args[0])
	},
}

func runWarm(path string) error {
	plan, err := warm.Load(path)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()
	rt, err := startRuntime(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer rt.Close()
	if err := rt.waitReady(ctx); err != nil {
		return err
	}

	runner := &warm.Runner{
		Images:  rt.images,
		Morphs:  rt.morphs,
		Records: rt.db,
		Logger:  logging.For("warm"),
	}
	rep, err := runner.Run(ctx, plan)

	printStatus("✓", fmt.Sprintf("%d face(s), %d video(s), %d preview(s)", rep.Faces, rep.Videos, rep.Previews), color.FgGreen)
	if rep.Failed > 0 {
		printStatus("✗", fmt.Sprintf("%d failed", rep.Failed), color.FgRed)
	}
	return err
}
