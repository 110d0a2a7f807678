package latent

import (
	"math"

	"gonum.org/v1/gonum/mathext/prng"
)

// gaussian reproduces numpy's legacy RandomState.randn stream: MT19937 doubles
// fed through the polar Box-Muller method, caching the second value of each pair.
// Matching that stream keeps seed-derived latents identical to the ones the
// reference model was explored with.
type gaussian struct {
	mt       *prng.MT19937
	hasGauss bool
	gauss    float64
}

func newSeededGaussian(seed uint32) *gaussian {
	mt := prng.NewMT19937()
	mt.Seed(uint64(seed))
	return &gaussian{mt: mt}
}

func newKeyedGaussian(keys []uint32) *gaussian {
	mt := prng.NewMT19937()
	mt.SeedFromKeys(keys)
	return &gaussian{mt: mt}
}

// double returns a 53-bit uniform value in [0, 1).
func (g *gaussian) double() float64 {
	a := g.mt.Uint32() >> 5
	b := g.mt.Uint32() >> 6
	return (float64(a)*67108864.0 + float64(b)) / 9007199254740992.0
}

func (g *gaussian) next() float64 {
	if g.hasGauss {
		g.hasGauss = false
		return g.gauss
	}
	var x1, x2, r2 float64
	for {
		x1 = 2.0*g.double() - 1.0
		x2 = 2.0*g.double() - 1.0
		r2 = x1*x1 + x2*x2
		if r2 < 1.0 && r2 != 0.0 {
			break
		}
	}
	f := math.Sqrt(-2.0 * math.Log(r2) / r2)
	g.gauss = f * x1
	g.hasGauss = true
	return f * x2
}

func (g *gaussian) vector(n int) Vector {
	out := make(Vector, n)
	for i := range out {
		out[i] = g.next()
	}
	return out
}
