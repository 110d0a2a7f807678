// Package morph renders frame sequences that blend one latent into another, and
// the videos and link previews built from them.
package morph

import (
	"fmt"
	"math"
)

// Shape selects the blend curve across a sequence.
type Shape string

const (
	// Linear goes from the first endpoint to the second, both included.
	Linear Shape = "linear"
	// Trig eases out to the second endpoint and back, stopping one frame short
	// of the start so the sequence loops.
	Trig Shape = "trig"
)

// ShapeFor returns Linear when linear is set and Trig otherwise.
func ShapeFor(linear bool) Shape {
	if linear {
		return Linear
	}
	return Trig
}

// Valid returns true if the shape is a known value.
func (s Shape) Valid() bool {
	return s == Linear || s == Trig
}

// BlendFraction is the weight of the second endpoint at frame i of n.
// Indices past the end follow the same formula.
func BlendFraction(s Shape, i, n int) float64 {
	if s == Linear {
		if n <= 1 {
			return 0
		}
		return float64(i) / float64(n-1)
	}
	theta := 2 * math.Pi * float64(i) / float64(n)
	return 1 - 0.5*(math.Sin(theta+math.Pi/2)+1)
}

// MirrorIndex maps frame i onto the frame with the same blend. Only even trig
// sequences are symmetric: there i in [n/2, n) becomes n-i.
func MirrorIndex(s Shape, i, n int) int {
	if s != Trig || n%2 != 0 {
		return i
	}
	if 2*i >= n && i < n {
		return n - i
	}
	return i
}

// frameName is img000.jpg style.
func frameName(i int) string {
	return fmt.Sprintf("img%03d.jpg", i)
}
