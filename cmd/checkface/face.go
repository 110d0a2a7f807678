package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/checkface/internal/render"
)

var (
	faceDim    int
	faceFormat string
	faceOut    string
	faceRef    *refFlags
)

var faceCmd = &cobra.Command{
	Use:   "face [value]",
	Short: "Render a single face into the cache",
	Long: `Render a face with the in-process generator and print its cache path.

The face is chosen by --seed, --value or --guid; a positional argument is
shorthand for --value. A face that is already cached is not rendered again.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			if err := cmd.Flags().Set("value", args[0]); err != nil {
				return err
			}
		}
		return runFace(cmd)
	},
}

func init() {
	faceRef = newRefFlags(faceCmd, "", "face")
	faceCmd.Flags().IntVar(&faceDim, "dim", 0, "Output size in pixels (default images.default_dim)")
	faceCmd.Flags().StringVar(&faceFormat, "format", "jpg", "Output format: jpg or webp")
	faceCmd.Flags().StringVarP(&faceOut, "output", "o", "", "Also copy the image to this path")
}

func runFace(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	format, err := render.ParseFormat(faceFormat)
	if err != nil {
		return err
	}
	dim := faceDim
	if dim == 0 {
		dim = cfg.Images.DefaultDim
	}

	ctx, stop := signalContext()
	defer stop()
	rt, err := startRuntime(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	p, err := faceRef.proxy(ctx, cmd, rt.db)
	if err != nil {
		return err
	}
	if err := rt.waitReady(ctx); err != nil {
		return err
	}
	path, err := rt.images.Get(ctx, p, dim, format)
	if err != nil {
		return fmt.Errorf("render %s: %w", p.Name(), err)
	}

	if faceOut != "" {
		if err := copyFile(path, faceOut); err != nil {
			return err
		}
		printStatus("✓", fmt.Sprintf("%s -> %s", p.Name(), faceOut), color.FgGreen)
		return nil
	}
	fmt.Println(path)
	return nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(dst); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(dst, data, 0644)
}
