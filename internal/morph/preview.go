package morph

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"path/filepath"

	"github.com/ShayCichocki/checkface/internal/dispatch"
	"github.com/ShayCichocki/checkface/internal/latent"
	"github.com/ShayCichocki/checkface/internal/render"
)

// Link previews are laid out on a 1200x628 reference canvas and scaled.
const (
	previewRefWidth  = 1200
	previewRefHeight = 628
)

// PreviewPath returns where the link preview of the given width is cached.
func (o *Orchestrator) PreviewPath(from, to latent.Proxy, width int) string {
	return filepath.Join(o.layout.MorphRoot(from, to), "linkPreviews", fmt.Sprintf("x%d.jpg", width))
}

// LinkPreview renders "from + to = midpoint" as a social media card, with the
// optional logo and site name assets from the data root.
func (o *Orchestrator) LinkPreview(ctx context.Context, from, to latent.Proxy, width int) (string, error) {
	if width < 1 {
		return "", fmt.Errorf("%w: preview width %d", ErrInvalidRequest, width)
	}
	out := o.PreviewPath(from, to, width)
	if render.Exists(out) {
		return out, nil
	}

	label := fmt.Sprintf("from %s to %s", from.Name(), to.Name())
	proxies := []latent.Proxy{from, to, latent.NewLerp(from, to, 0.5)}
	jobs := make([]*dispatch.Job, len(proxies))
	for i, p := range proxies {
		jobs[i] = o.jobs.Submit(p, fmt.Sprintf("%s preview%d", label, i))
	}
	imgs := make([]image.Image, len(jobs))
	for i, job := range jobs {
		img, err := job.Wait(ctx, o.timeout)
		if err != nil {
			return "", fmt.Errorf("link preview %s: %w", label, err)
		}
		imgs[i] = img
	}

	card := o.compose(width, imgs[0], imgs[1], imgs[2])
	if err := render.Save(out, card, 0, render.JPEG); err != nil {
		return "", fmt.Errorf("save link preview: %w", err)
	}
	return out, nil
}

func scaled(v float64, h int) float64 {
	return v * float64(h) / previewRefHeight
}

func (o *Orchestrator) compose(width int, from, to, mid image.Image) *image.RGBA {
	height := int(math.Round(previewRefHeight * float64(width) / previewRefWidth))
	faceDim := int(math.Round(scaled(300, height)))
	sumDim := int(math.Round(scaled(512, height)))

	card := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(card, card.Bounds(), image.White, image.Point{}, draw.Src)

	faceY := (height - faceDim) / 2
	if logo, err := render.Load(filepath.Join(o.layout.AssetsDir(), "preview-logo.png")); err == nil {
		paste(card, fitHeight(logo, int(scaled(150, height))), 0, 0)
	}
	if name, err := render.Load(filepath.Join(o.layout.AssetsDir(), "preview-sitename.png")); err == nil {
		paste(card, fitHeight(name, int(scaled(165, height))), 0, faceY+faceDim)
	}

	gaps := float64(width-2*faceDim-sumDim) * 0.5
	paste(card, render.Resize(from, faceDim), 0, faceY)
	paste(card, render.Resize(to, faceDim), faceDim+int(gaps), faceY)
	paste(card, render.Resize(mid, sumDim), width-sumDim, (height-sumDim)/2)

	lineWidth := math.Round(scaled(6, height))
	symbol := scaled(14, height)
	ch := float64(height / 2)

	plusX := float64(faceDim) + math.Floor(0.5*gaps)
	line(card, plusX, ch-symbol, plusX, ch+symbol, lineWidth)
	line(card, plusX-symbol, ch, plusX+symbol, ch, lineWidth)

	eqX := float64(width-sumDim) - 0.5*gaps
	eqH := math.Round(0.6 * symbol)
	line(card, eqX-symbol, ch-eqH, eqX+symbol, ch-eqH, lineWidth)
	line(card, eqX-symbol, ch+eqH, eqX+symbol, ch+eqH, lineWidth)
	return card
}

// fitHeight scales img to h pixels tall, keeping its aspect ratio.
func fitHeight(img image.Image, h int) image.Image {
	b := img.Bounds()
	if h < 1 || b.Dy() == 0 {
		return img
	}
	w := b.Dx() * h / b.Dy()
	return render.ResizeTo(img, w, h)
}

func paste(dst draw.Image, src image.Image, x, y int) {
	b := src.Bounds()
	draw.Draw(dst, image.Rect(x, y, x+b.Dx(), y+b.Dy()), src, b.Min, draw.Over)
}

// line draws an axis-aligned black stroke of the given width centred on the
// segment.
func line(dst draw.Image, x0, y0, x1, y1, width float64) {
	half := width / 2
	var r image.Rectangle
	if x0 == x1 {
		r = image.Rect(int(math.Round(x0-half)), int(math.Round(y0)), int(math.Round(x0+half)), int(math.Round(y1))+1)
	} else {
		r = image.Rect(int(math.Round(x0)), int(math.Round(y0-half)), int(math.Round(x1))+1, int(math.Round(y0+half)))
	}
	draw.Draw(dst, r, image.NewUniform(color.Black), image.Point{}, draw.Src)
}
