// Package warm pre-renders faces and morphs listed in a YAML plan so the first
// visitor does not pay for generation.
package warm

import (
	"errors"
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"

	"github.com/ShayCichocki/checkface/internal/latent"
	"github.com/ShayCichocki/checkface/internal/morph"
	"github.com/ShayCichocki/checkface/internal/render"
)

// Face references one latent by seed, text value or stored guid.
type Face struct {
	Seed  *uint32 `yaml:"seed,omitempty"`
	Value *string `yaml:"value,omitempty"`
	GUID  string  `yaml:"guid,omitempty"`
}

// Ref converts the entry to a latent reference.
func (f Face) Ref() latent.Ref {
	return latent.Ref{Seed: f.Seed, Text: f.Value, GUID: f.GUID}
}

// Morph describes the artifacts to render for one pair.
type Morph struct {
	From     Face     `yaml:"from"`
	To       Face     `yaml:"to"`
	Frames   int      `yaml:"frames"`
	Dim      int      `yaml:"dim"`
	FPS      int      `yaml:"fps"`
	KBitrate int      `yaml:"kbitrate"`
	Kinds    []string `yaml:"kinds"`
	// PreviewWidth renders a link preview when set.
	PreviewWidth int `yaml:"preview_width"`
}

// Plan is the content of a warm plan file.
type Plan struct {
	Faces   []Face   `yaml:"faces"`
	Dims    []int    `yaml:"dims"`
	Formats []string `yaml:"formats"`
	Morphs  []Morph  `yaml:"morphs"`
}

// Defaults applied to unset plan fields.
const (
	DefaultDim      = 300
	DefaultFrames   = 50
	DefaultFPS      = 16
	DefaultKBitrate = 2400

	DefaultPreviewWidth = 1200
)

// Load reads and validates a plan file.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a plan, fills defaults and validates it.
func Parse(data []byte) (*Plan, error) {
	var plan Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("parse warm plan: %w", err)
	}
	plan.applyDefaults()
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return &plan, nil
}

func (p *Plan) applyDefaults() {
	if len(p.Dims) == 0 {
		p.Dims = []int{DefaultDim}
	}
	if len(p.Formats) == 0 {
		p.Formats = []string{string(render.JPEG)}
	}
	for i := range p.Morphs {
		m := &p.Morphs[i]
		if m.Frames == 0 {
			m.Frames = DefaultFrames
		}
		if m.Dim == 0 {
			m.Dim = DefaultDim
		}
		if m.FPS == 0 {
			m.FPS = DefaultFPS
		}
		if m.KBitrate == 0 {
			m.KBitrate = DefaultKBitrate
		}
	}
}

// Validate checks formats, kinds and sizes without touching the store.
func (p *Plan) Validate() error {
	var errs []error
	for _, f := range p.Formats {
		if _, err := render.ParseFormat(f); err != nil {
			errs = append(errs, err)
		}
	}
	for _, d := range p.Dims {
		if d < 10 || d > 1024 {
			errs = append(errs, fmt.Errorf("dim %d outside [10, 1024]", d))
		}
	}
	for i, m := range p.Morphs {
		if m.Frames < 3 || m.Frames > 200 {
			errs = append(errs, fmt.Errorf("morph %d: frames %d outside [3, 200]", i, m.Frames))
		}
		for _, k := range m.Kinds {
			switch morph.VideoKind(k) {
			case morph.GIF, morph.MP4, morph.WebPAnim:
			default:
				errs = append(errs, fmt.Errorf("morph %d: %w: %q", i, render.ErrUnsupportedFormat, k))
			}
		}
	}
	return errors.Join(errs...)
}
