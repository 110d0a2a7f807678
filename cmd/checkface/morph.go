package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/checkface/internal/morph"
	"github.com/ShayCichocki/checkface/internal/warm"
)

var (
	morphKind     string
	morphFrames   int
	morphDim      int
	morphFPS      int
	morphKBitrate int
	morphWidth    int
	morphLinear   bool
	morphFromRef  *refFlags
	morphToRef    *refFlags
)

var morphCmd = &cobra.Command{
	Use:   "morph",
	Short: "Render a morph between two faces",
	Long: `Render a morph between two faces into the cache and print the result.

Kinds:
  gif, mp4, webp   an animated loop (mp4 and webp need ffmpeg)
  frames           the individual frames, one path per line
  preview          the side by side link preview card

Endpoints are chosen with --from-seed/--from-value/--from-guid and
--to-seed/--to-value/--to-guid.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMorph(cmd)
	},
}

func init() {
	morphFromRef = newRefFlags(morphCmd, "from-", "first face")
	morphToRef = newRefFlags(morphCmd, "to-", "second face")
	morphCmd.Flags().StringVar(&morphKind, "kind", "gif", "Output kind: gif, mp4, webp, frames or preview")
	morphCmd.Flags().IntVar(&morphFrames, "frames", warm.DefaultFrames, "Number of frames")
	morphCmd.Flags().IntVar(&morphDim, "dim", warm.DefaultDim, "Frame size in pixels")
	morphCmd.Flags().IntVar(&morphFPS, "fps", warm.DefaultFPS, "Frames per second")
	morphCmd.Flags().IntVar(&morphKBitrate, "kbitrate", warm.DefaultKBitrate, "Video bitrate in kbit/s")
	morphCmd.Flags().IntVar(&morphWidth, "width", warm.DefaultPreviewWidth, "Preview width in pixels")
	morphCmd.Flags().BoolVar(&morphLinear, "linear", false, "Linear one-way frames instead of the looping trig shape (frames only)")
}

func runMorph(cmd *cobra.Command) error {
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

	from, err := morphFromRef.proxy(ctx, cmd, rt.db)
	if err != nil {
		return err
	}
	to, err := morphToRef.proxy(ctx, cmd, rt.db)
	if err != nil {
		return err
	}
	if err := rt.waitReady(ctx); err != nil {
		return err
	}

	switch morphKind {
	case "frames":
		paths, err := rt.morphs.Frames(ctx, morph.Request{
			From:    from,
			To:      to,
			Frames:  morphFrames,
			Dim:     morphDim,
			Indices: morph.AllFrames(morphFrames),
			Shape:   morph.ShapeFor(morphLinear),
		})
		if err != nil {
			return err
		}
		for _, p := range paths {
			fmt.Println(p)
		}
		return nil
	case "preview":
		path, err := rt.morphs.LinkPreview(ctx, from, to, morphWidth)
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	}

	path, err := rt.morphs.Video(ctx, morph.VideoRequest{
		From:     from,
		To:       to,
		Kind:     morph.VideoKind(morphKind),
		Frames:   morphFrames,
		Dim:      morphDim,
		FPS:      morphFPS,
		KBitrate: morphKBitrate,
	})
	if err != nil {
		printStatus("✗", fmt.Sprintf("%s morph failed", morphKind), color.FgRed)
		return err
	}
	fmt.Println(path)
	return nil
}
