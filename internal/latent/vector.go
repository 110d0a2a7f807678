// Package latent implements the latent algebra used to address generated images.
//
// A latent is either compact (a 512 value "qlatent" fed to the mapping stage) or
// expanded (18 layers of 512 values, a "dlatent" fed straight to synthesis). The shape
// of a Vector is inferred from its length. Proxies describe where a latent comes from
// (a seed, a text hash, a stored record, or a blend of other proxies) and give every
// such description a deterministic name and shard path for the on-disk cache.
package latent

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

const (
	// CompactDim is the length of a compact latent and of each expanded layer.
	CompactDim = 512
	// Layers is the number of synthesis layers in an expanded latent.
	Layers = 18
	// ExpandedDim is the flattened length of an expanded latent.
	ExpandedDim = Layers * CompactDim
)

// Shape tags the two canonical latent shapes. The string values are the tags
// persisted by the record store.
type Shape string

const (
	ShapeCompact  Shape = "qlatent"
	ShapeExpanded Shape = "dlatent"
)

// Valid returns true if the shape is a known value.
func (s Shape) Valid() bool {
	switch s {
	case ShapeCompact, ShapeExpanded:
		return true
	default:
		return false
	}
}

// Vector is a flattened latent. Vectors are treated as immutable: every operation
// in this package returns a fresh slice.
type Vector []float64

// ShapeOf infers the shape of a vector from its length.
func ShapeOf(v Vector) (Shape, error) {
	switch len(v) {
	case CompactDim:
		return ShapeCompact, nil
	case ExpandedDim:
		return ShapeExpanded, nil
	default:
		return "", fmt.Errorf("%w: length %d is neither %d nor %dx%d",
			ErrMalformedLatent, len(v), CompactDim, Layers, CompactDim)
	}
}

// FromLayers flattens an 18x512 matrix or wraps a 512 row. Any other layout is
// rejected as malformed.
func FromLayers(rows [][]float64) (Vector, error) {
	if len(rows) == 1 && len(rows[0]) == CompactDim {
		return Vector(append([]float64(nil), rows[0]...)), nil
	}
	if len(rows) != Layers {
		return nil, fmt.Errorf("%w: expected %d layers, got %d", ErrMalformedLatent, Layers, len(rows))
	}
	out := make(Vector, 0, ExpandedDim)
	for i, row := range rows {
		if len(row) != CompactDim {
			return nil, fmt.Errorf("%w: layer %d has length %d", ErrMalformedLatent, i, len(row))
		}
		out = append(out, row...)
	}
	return out, nil
}

// Rows returns the vector as layers: one row for compact, 18 rows for expanded.
func (v Vector) Rows() [][]float64 {
	if len(v) <= CompactDim {
		return [][]float64{append([]float64(nil), v...)}
	}
	rows := make([][]float64, 0, len(v)/CompactDim)
	for off := 0; off+CompactDim <= len(v); off += CompactDim {
		rows = append(rows, append([]float64(nil), v[off:off+CompactDim]...))
	}
	return rows
}

// Layer returns a view of layer i of an expanded vector.
func (v Vector) Layer(i int) []float64 {
	return v[i*CompactDim : (i+1)*CompactDim]
}

// Clone returns a copy of v.
func (v Vector) Clone() Vector {
	return append(Vector(nil), v...)
}

// Float32s converts the vector for storage.
func (v Vector) Float32s() []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

// blend returns a*(1-p) + b*p. Both operands must have the same length.
func blend(a, b Vector, p float64) Vector {
	out := make(Vector, len(a))
	floats.ScaleTo(out, 1-p, a)
	floats.AddScaled(out, p, b)
	return out
}

// weightedSum returns sum(w[i]*vs[i]). All operands must have the same length.
func weightedSum(weights []float64, vs []Vector) Vector {
	out := make(Vector, len(vs[0]))
	for i, v := range vs {
		floats.AddScaled(out, weights[i], v)
	}
	return out
}
