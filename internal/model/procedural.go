package model

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/ShayCichocki/checkface/internal/latent"
)

// DefaultImageSize is the edge length of images from the procedural backend.
const DefaultImageSize = 256

// Procedural is a deterministic stand-in for the network. Its mapping stage is a
// fixed per-layer mix of the compact input squashed through tanh, and synthesis
// draws a simple face whose colours and proportions come from the layers.
// Identical latents always produce identical pixels.
type Procedural struct {
	size int
}

// NewProcedural returns a backend rendering size x size images.
func NewProcedural(size int) *Procedural {
	if size <= 0 {
		size = DefaultImageSize
	}
	return &Procedural{size: size}
}

func (p *Procedural) InputDim() int { return latent.CompactDim }

// AverageExpanded is zero: tanh of a standard normal mix is centred.
func (p *Procedural) AverageExpanded() (latent.Vector, error) {
	return make(latent.Vector, latent.ExpandedDim), nil
}

func (p *Procedural) Expand(compact latent.Vector) (latent.Vector, error) {
	if len(compact) != latent.CompactDim {
		return nil, fmt.Errorf("%w: mapping input has length %d", latent.ErrMalformedLatent, len(compact))
	}
	out := make(latent.Vector, latent.ExpandedDim)
	for layer := 0; layer < latent.Layers; layer++ {
		shift := 1 + layer*37
		gain := 0.6 + 0.05*float64(layer)
		row := out.Layer(layer)
		for j := range row {
			a := compact[j]
			b := compact[(j+shift)%latent.CompactDim]
			row[j] = math.Tanh(gain * (a + 0.5*b))
		}
	}
	return out, nil
}

func (p *Procedural) Infer(batch []latent.Vector) ([]image.Image, error) {
	out := make([]image.Image, len(batch))
	for i, v := range batch {
		if len(v) != latent.ExpandedDim {
			return nil, fmt.Errorf("%w: synthesis input %d has length %d", latent.ErrMalformedLatent, i, len(v))
		}
		out[i] = p.draw(v)
	}
	return out, nil
}

// unit maps an expanded value in (-1, 1) onto [0, 1].
func unit(v latent.Vector, layer, idx int) float64 {
	x := 0.5 * (v[layer*latent.CompactDim+idx] + 1)
	return math.Max(0, math.Min(1, x))
}

func shade(base, spread, x float64) uint8 {
	return uint8(math.Round(255 * math.Max(0, math.Min(1, base+spread*(x-0.5)))))
}

func (p *Procedural) draw(v latent.Vector) image.Image {
	// coarse layers drive geometry, middle layers features, fine layers colour.
	faceW := 0.30 + 0.08*unit(v, 0, 0)
	faceH := 0.38 + 0.08*unit(v, 1, 1)
	eyeY := 0.42 + 0.06*unit(v, 2, 2)
	eyeGap := 0.10 + 0.06*unit(v, 3, 3)
	eyeR := 0.03 + 0.02*unit(v, 6, 4)
	mouthY := 0.66 + 0.06*unit(v, 4, 5)
	mouthW := 0.08 + 0.08*unit(v, 5, 6)
	smile := unit(v, 7, 7) - 0.5

	bg := color.RGBA{shade(0.5, 0.8, unit(v, 15, 8)), shade(0.5, 0.8, unit(v, 16, 9)), shade(0.5, 0.8, unit(v, 17, 10)), 255}
	tone := unit(v, 12, 11)
	skin := color.RGBA{shade(0.55+0.35*tone, 0.2, unit(v, 13, 12)), shade(0.40+0.35*tone, 0.2, unit(v, 13, 13)), shade(0.30+0.35*tone, 0.2, unit(v, 14, 14)), 255}
	iris := color.RGBA{shade(0.3, 0.6, unit(v, 9, 15)), shade(0.3, 0.6, unit(v, 10, 16)), shade(0.3, 0.6, unit(v, 11, 17)), 255}
	lips := color.RGBA{shade(0.6, 0.4, unit(v, 8, 18)), shade(0.25, 0.2, unit(v, 8, 19)), shade(0.3, 0.2, unit(v, 8, 20)), 255}

	img := image.NewRGBA(image.Rect(0, 0, p.size, p.size))
	n := float64(p.size)
	for y := 0; y < p.size; y++ {
		fy := (float64(y) + 0.5) / n
		for x := 0; x < p.size; x++ {
			fx := (float64(x) + 0.5) / n
			c := bg
			dx, dy := (fx-0.5)/faceW, (fy-0.5)/faceH
			if dx*dx+dy*dy <= 1 {
				c = skin
				for _, ex := range []float64{0.5 - eyeGap, 0.5 + eyeGap} {
					if math.Hypot(fx-ex, fy-eyeY) <= eyeR {
						c = iris
					}
				}
				mx := (fx - 0.5) / mouthW
				if math.Abs(mx) <= 1 {
					curve := mouthY + smile*0.04*(1-mx*mx)
					if math.Abs(fy-curve) <= 0.012 {
						c = lips
					}
				}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

var _ Model = (*Procedural)(nil)
