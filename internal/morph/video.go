package morph

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ShayCichocki/checkface/internal/latent"
	"github.com/ShayCichocki/checkface/internal/render"
)

// ErrFFmpeg is returned when ffmpeg fails to produce a video.
var ErrFFmpeg = errors.New("ffmpeg failed")

// VideoKind is an animated output format.
type VideoKind string

const (
	GIF      VideoKind = "gif"
	MP4      VideoKind = "mp4"
	WebPAnim VideoKind = "webp"
)

// MIME returns the content type served for the kind.
func (k VideoKind) MIME() string {
	switch k {
	case GIF:
		return "image/gif"
	case MP4:
		return "video/mp4"
	default:
		return "image/webp"
	}
}

// VideoRequest asks for a looping trig morph rendered as a video.
type VideoRequest struct {
	From     latent.Proxy
	To       latent.Proxy
	Kind     VideoKind
	Frames   int
	Dim      int
	FPS      int
	KBitrate int
}

// VideoPath returns where the video for req is cached.
func (o *Orchestrator) VideoPath(req VideoRequest) string {
	root := o.layout.MorphRoot(req.From, req.To)
	switch req.Kind {
	case GIF:
		return filepath.Join(root, "GIFs", fmt.Sprintf("n%df%dx%d.gif", req.Frames, req.FPS, req.Dim))
	case MP4:
		return filepath.Join(root, "mp4s", fmt.Sprintf("n%df%dx%dk%d.mp4", req.Frames, req.FPS, req.Dim, req.KBitrate))
	default:
		return filepath.Join(root, "webPs", fmt.Sprintf("n%df%dx%d.webp", req.Frames, req.FPS, req.Dim))
	}
}

// Video returns the cached video for req, rendering every frame and running
// ffmpeg over them when it does not exist yet.
func (o *Orchestrator) Video(ctx context.Context, req VideoRequest) (string, error) {
	switch req.Kind {
	case GIF, MP4, WebPAnim:
	default:
		return "", fmt.Errorf("%w: %q", render.ErrUnsupportedFormat, string(req.Kind))
	}
	if req.FPS < 1 {
		return "", fmt.Errorf("%w: fps %d", ErrInvalidRequest, req.FPS)
	}
	out := o.VideoPath(req)
	if render.Exists(out) {
		return out, nil
	}
	if _, err := o.FFmpegPath(); err != nil {
		return "", err
	}

	frames, err := o.Frames(ctx, Request{
		From:    req.From,
		To:      req.To,
		Frames:  req.Frames,
		Dim:     req.Dim,
		Indices: AllFrames(req.Frames),
		Shape:   Trig,
	})
	if err != nil {
		return "", err
	}
	if err := o.encode(ctx, frames, out, req); err != nil {
		return "", err
	}
	return out, nil
}

// FFmpegPath resolves the configured ffmpeg binary. Video checks it before
// rendering any frame.
func (o *Orchestrator) FFmpegPath() (string, error) {
	path, err := o.runner.LookPath(o.ffmpeg)
	if err != nil {
		return "", fmt.Errorf("%w: %s not found: %v", ErrFFmpeg, o.ffmpeg, err)
	}
	return path, nil
}

// encode writes a concat list for frames and runs ffmpeg into a temporary
// file that is renamed over out on success.
func (o *Orchestrator) encode(ctx context.Context, frames []string, out string, req VideoRequest) error {
	dir := filepath.Dir(out)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	list, err := os.CreateTemp(dir, "concat-*.txt")
	if err != nil {
		return err
	}
	defer os.Remove(list.Name())
	for _, f := range frames {
		abs, err := filepath.Abs(f)
		if err != nil {
			list.Close()
			return err
		}
		if _, err := fmt.Fprintf(list, "file '%s'\n", strings.ReplaceAll(abs, "'", `'\''`)); err != nil {
			list.Close()
			return err
		}
	}
	if err := list.Close(); err != nil {
		return err
	}

	ext := filepath.Ext(out)
	partial := strings.TrimSuffix(out, ext) + ".part" + ext
	defer os.Remove(partial)

	args := ffmpegArgs(req, list.Name(), partial)
	start := time.Now()
	output, err := o.runner.Run(ctx, "", o.ffmpeg, args...)
	took := time.Since(start)
	o.metrics.ObserveFFmpeg(took)
	if err != nil {
		return fmt.Errorf("%w: %v: %s", ErrFFmpeg, err, tail(output, 400))
	}
	if !render.Exists(partial) {
		return fmt.Errorf("%w: no output written for %s", ErrFFmpeg, filepath.Base(out))
	}
	if err := os.Rename(partial, out); err != nil {
		return err
	}
	o.log.Info().
		Str("file", out).
		Int("frames", len(frames)).
		Dur("took", took).
		Msg("video encoded")
	return nil
}

func ffmpegArgs(req VideoRequest, list, out string) []string {
	args := []string{"-r", strconv.Itoa(req.FPS), "-f", "concat", "-safe", "0", "-i", list}
	switch req.Kind {
	case GIF:
		args = append(args, "-filter_complex", "[0:v] split [a][b];[a] palettegen [p];[b][p] paletteuse")
	case MP4:
		args = append(args, "-b", strconv.Itoa(req.KBitrate)+"k", "-vcodec", "libx264")
	case WebPAnim:
		args = append(args, "-vcodec", "libwebp", "-loop", "0")
	}
	return append(args, "-y", out)
}

func tail(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		s = "..." + s[len(s)-n:]
	}
	return s
}
