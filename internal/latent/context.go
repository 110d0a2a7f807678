package latent

import "fmt"

// Expander runs the mapping stage of the model, turning a compact latent into an
// expanded one without truncation.
type Expander interface {
	Expand(compact Vector) (Vector, error)
}

// Truncation controls the truncation trick applied on expansion. Layers below
// Cutoff are pulled toward the average expanded latent by Psi.
type Truncation struct {
	Psi      float64
	Cutoff   int
	Disabled bool
}

// DefaultTruncation returns the psi=0.7, cutoff=8 setting.
func DefaultTruncation() Truncation {
	return Truncation{Psi: 0.7, Cutoff: 8}
}

// Context carries the read-once model parameters needed to resolve mixed-shape
// proxies. It is built once after the model loads and never mutated; the expander
// it wraps must only be driven from the goroutine that owns the model.
type Context struct {
	inputDim   int
	average    Vector
	truncation Truncation
	expander   Expander
}

// NewContext builds a Context from the model's mapping function and parameters.
func NewContext(exp Expander, average Vector, inputDim int, t Truncation) (*Context, error) {
	if exp == nil {
		return nil, fmt.Errorf("new context: %w", ErrModelRequired)
	}
	if inputDim != CompactDim {
		return nil, fmt.Errorf("%w: model input dimension %d, expected %d", ErrMalformedLatent, inputDim, CompactDim)
	}
	if len(average) != ExpandedDim {
		return nil, fmt.Errorf("%w: average expanded latent has length %d", ErrMalformedLatent, len(average))
	}
	if t.Cutoff < 0 || t.Cutoff > Layers {
		return nil, fmt.Errorf("truncation cutoff %d outside [0, %d]", t.Cutoff, Layers)
	}
	return &Context{
		inputDim:   inputDim,
		average:    average.Clone(),
		truncation: t,
		expander:   exp,
	}, nil
}

// InputDim returns the model's compact input dimension.
func (c *Context) InputDim() int { return c.inputDim }

// Average returns a copy of the average expanded latent.
func (c *Context) Average() Vector { return c.average.Clone() }

// Truncation returns the configured truncation setting.
func (c *Context) Truncation() Truncation { return c.truncation }

// Expand maps a compact latent to expanded form and applies the context's
// truncation setting. Expanded input is returned unchanged.
func (c *Context) Expand(v Vector) (Vector, error) {
	return c.expand(v, c != nil && !c.truncation.Disabled)
}

// ExpandRaw is Expand without the truncation trick.
func (c *Context) ExpandRaw(v Vector) (Vector, error) {
	return c.expand(v, false)
}

func (c *Context) expand(v Vector, truncate bool) (Vector, error) {
	shape, err := ShapeOf(v)
	if err != nil {
		return nil, err
	}
	if shape == ShapeExpanded {
		return v, nil
	}
	if c == nil {
		return nil, ErrModelRequired
	}
	out, err := c.expander.Expand(v)
	if err != nil {
		return nil, fmt.Errorf("expand latent: %w", err)
	}
	if len(out) != ExpandedDim {
		return nil, fmt.Errorf("%w: mapping returned length %d", ErrMalformedLatent, len(out))
	}
	if truncate {
		out = c.Truncate(out)
	}
	return out, nil
}

// Truncate applies (w - avg) * coef + avg per layer, where coef is psi below the
// cutoff layer and 1 from the cutoff on.
func (c *Context) Truncate(v Vector) Vector {
	out := v.Clone()
	for layer := 0; layer < c.truncation.Cutoff && layer < Layers; layer++ {
		off := layer * CompactDim
		for j := 0; j < CompactDim; j++ {
			avg := c.average[off+j]
			out[off+j] = (out[off+j]-avg)*c.truncation.Psi + avg
		}
	}
	return out
}
