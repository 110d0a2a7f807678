package server

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/ShayCichocki/checkface/internal/latent"
	"github.com/ShayCichocki/checkface/internal/morph"
	"github.com/ShayCichocki/checkface/internal/render"
)

// Query defaults and bounds. Values outside a range fall back to the default.
const (
	defaultDim = 300
	minDim     = 10
	maxDim     = 1024

	defaultFrames = 50
	minFrames     = 3
	maxFrames     = 200

	defaultFPS = 16
	minFPS     = 1
	maxFPS     = 100

	defaultKBitrate = 2400
	minKBitrate     = 100
	maxKBitrate     = 20000

	defaultPreviewWidth = 1200
	minPreviewWidth     = 100
	maxPreviewWidth     = 2400

	maxMulti    = 16
	maxMultiAbs = 2.0
)

// intParam parses name, falling back to def when it is missing, not a number
// or outside [min, max].
func intParam(q url.Values, name string, def, min, max int) int {
	n, err := strconv.Atoi(strings.TrimSpace(q.Get(name)))
	if err != nil || n < min || n > max {
		return def
	}
	return n
}

func boolParam(q url.Values, name string) bool {
	return strings.ToLower(q.Get(name)) == "true"
}

func (s *Server) dimParam(q url.Values) int {
	return intParam(q, "dim", s.defaultDim, minDim, maxDim)
}

func formatParam(q url.Values) (render.Format, error) {
	raw := q.Get("format")
	if raw == "" {
		return render.JPEG, nil
	}
	return render.ParseFormat(raw)
}

// refParam reads <prefix>value, <prefix>seed and <prefix>guid, each followed
// by suffix.
func refParam(q url.Values, prefix, suffix string) (latent.Ref, error) {
	var ref latent.Ref
	if v := q.Get(prefix + "guid" + suffix); v != "" {
		ref.GUID = v
	}
	if v := q.Get(prefix + "seed" + suffix); v != "" {
		seed, err := latent.ParseSeed(v)
		if err != nil {
			return ref, fmt.Errorf("seed must be a base 10 number: %w", err)
		}
		ref.Seed = &seed
	}
	if q.Has(prefix + "value" + suffix) {
		v := q.Get(prefix + "value" + suffix)
		ref.Text = &v
	}
	return ref, nil
}

func (s *Server) proxyParam(ctx context.Context, q url.Values, prefix string) (latent.Proxy, error) {
	ref, err := refParam(q, prefix, "")
	if err != nil {
		return nil, err
	}
	return ref.Proxy(ctx, s.latents)
}

// requestProxy reads a single face reference, or a weighted blend when
// num_multi is set: value<i>/seed<i>/guid<i> with amount<i> clamped to
// [-2, 2] and defaulting to 1/num_multi.
func (s *Server) requestProxy(ctx context.Context, q url.Values) (latent.Proxy, error) {
	n := intParam(q, "num_multi", 0, 0, maxMulti)
	if n == 0 {
		return s.proxyParam(ctx, q, "")
	}

	terms := make([]latent.Term, n)
	for i := range terms {
		suffix := strconv.Itoa(i)
		ref, err := refParam(q, "", suffix)
		if err != nil {
			return nil, err
		}
		p, err := ref.Proxy(ctx, s.latents)
		if err != nil {
			return nil, err
		}
		weight := 1.0 / float64(n)
		if raw := q.Get("amount" + suffix); raw != "" {
			w, err := strconv.ParseFloat(raw, 64)
			if err != nil || math.IsNaN(w) || math.IsInf(w, 0) {
				return nil, fmt.Errorf("%w: amount%d %q", errBadRequest, i, raw)
			}
			weight = max(-maxMultiAbs, min(maxMultiAbs, w))
		}
		terms[i] = latent.Term{Weight: weight, Proxy: p}
	}
	return latent.NewMultiLerp(terms)
}

func (s *Server) pairParam(ctx context.Context, q url.Values) (from, to latent.Proxy, err error) {
	if from, err = s.proxyParam(ctx, q, "from_"); err != nil {
		return nil, nil, err
	}
	if to, err = s.proxyParam(ctx, q, "to_"); err != nil {
		return nil, nil, err
	}
	return from, to, nil
}

func framesParam(q url.Values) int {
	return intParam(q, "num_frames", defaultFrames, minFrames, maxFrames)
}

func shapeParam(q url.Values) morph.Shape {
	return morph.ShapeFor(boolParam(q, "linear"))
}
