package warm

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ShayCichocki/checkface/internal/latent"
	"github.com/ShayCichocki/checkface/internal/morph"
	"github.com/ShayCichocki/checkface/internal/render"
)

// Images renders single faces. *cache.Images implements it.
type Images interface {
	Get(ctx context.Context, p latent.Proxy, dim int, f render.Format) (string, error)
}

// Morphs renders pair artifacts. *morph.Orchestrator implements it.
type Morphs interface {
	Video(ctx context.Context, req morph.VideoRequest) (string, error)
	LinkPreview(ctx context.Context, from, to latent.Proxy, width int) (string, error)
}

// Report counts what a run produced.
type Report struct {
	Faces    int
	Videos   int
	Previews int
	Failed   int
}

// Runner executes plans.
type Runner struct {
	Images  Images
	Morphs  Morphs
	Records latent.Records
	Logger  zerolog.Logger
}

// Run renders everything in plan. A failing entry is logged and counted and
// the run carries on; the joined errors are returned at the end. Run stops
// early only when ctx is done.
func (r *Runner) Run(ctx context.Context, plan *Plan) (Report, error) {
	var (
		rep  Report
		errs []error
	)
	fail := func(what string, err error) {
		rep.Failed++
		errs = append(errs, fmt.Errorf("%s: %w", what, err))
		r.Logger.Warn().Err(err).Str("entry", what).Msg("warm entry failed")
	}

	for _, face := range plan.Faces {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		p, err := face.Ref().Proxy(ctx, r.Records)
		if err != nil {
			fail(describe(face), err)
			continue
		}
		for _, dim := range plan.Dims {
			for _, raw := range plan.Formats {
				f, _ := render.ParseFormat(raw)
				if _, err := r.Images.Get(ctx, p, dim, f); err != nil {
					fail(fmt.Sprintf("%s %dpx %s", p.Name(), dim, f), err)
					continue
				}
				rep.Faces++
			}
		}
	}

	for _, m := range plan.Morphs {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		from, err := m.From.Ref().Proxy(ctx, r.Records)
		if err != nil {
			fail("from "+describe(m.From), err)
			continue
		}
		to, err := m.To.Ref().Proxy(ctx, r.Records)
		if err != nil {
			fail("to "+describe(m.To), err)
			continue
		}
		pair := fmt.Sprintf("from %s to %s", from.Name(), to.Name())
		for _, k := range m.Kinds {
			req := morph.VideoRequest{
				From:   from,
				To:     to,
				Kind:   morph.VideoKind(k),
				Frames: m.Frames,
				Dim:    m.Dim,
				FPS:    m.FPS,
			}
			if req.Kind == morph.MP4 {
				req.KBitrate = m.KBitrate
			}
			if _, err := r.Morphs.Video(ctx, req); err != nil {
				fail(pair+" "+k, err)
				continue
			}
			rep.Videos++
		}
		if m.PreviewWidth > 0 {
			if _, err := r.Morphs.LinkPreview(ctx, from, to, m.PreviewWidth); err != nil {
				fail(pair+" preview", err)
				continue
			}
			rep.Previews++
		}
	}

	r.Logger.Info().
		Int("faces", rep.Faces).
		Int("videos", rep.Videos).
		Int("previews", rep.Previews).
		Int("failed", rep.Failed).
		Msg("warm plan finished")
	return rep, errors.Join(errs...)
}

func describe(f Face) string {
	switch {
	case f.GUID != "":
		return "guid " + f.GUID
	case f.Seed != nil:
		return fmt.Sprintf("seed %d", *f.Seed)
	case f.Value != nil:
		return fmt.Sprintf("value %q", *f.Value)
	default:
		return "empty value"
	}
}
