package warm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/ShayCichocki/checkface/internal/latent"
	"github.com/ShayCichocki/checkface/internal/logging"
	"github.com/ShayCichocki/checkface/internal/morph"
	"github.com/ShayCichocki/checkface/internal/render"
)

type recordingImages struct {
	got []string
}

func (r *recordingImages) Get(ctx context.Context, p latent.Proxy, dim int, f render.Format) (string, error) {
	r.got = append(r.got, p.Name()+"/"+f.Ext())
	return "", nil
}

type recordingMorphs struct {
	videos   []morph.VideoRequest
	previews int
	fail     error
}

func (r *recordingMorphs) Video(ctx context.Context, req morph.VideoRequest) (string, error) {
	if r.fail != nil {
		return "", r.fail
	}
	r.videos = append(r.videos, req)
	return "", nil
}

func (r *recordingMorphs) LinkPreview(ctx context.Context, from, to latent.Proxy, width int) (string, error) {
	r.previews++
	return "", nil
}

type noRecords struct{}

func (noRecords) Latent(ctx context.Context, id uuid.UUID) (latent.Vector, error) {
	return nil, latent.ErrNotFound
}

const samplePlan = `
faces:
  - seed: 1
  - value: alice
dims: [64, 128]
formats: [jpg, webp]
morphs:
  - from: {seed: 1}
    to: {value: bob}
    frames: 10
    kinds: [gif, mp4]
    preview_width: 600
`

func TestParse(t *testing.T) {
	plan, err := Parse([]byte(samplePlan))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(plan.Faces) != 2 || *plan.Faces[0].Seed != 1 || *plan.Faces[1].Value != "alice" {
		t.Errorf("faces = %+v", plan.Faces)
	}
	m := plan.Morphs[0]
	if m.Dim != DefaultDim || m.FPS != DefaultFPS || m.KBitrate != DefaultKBitrate {
		t.Errorf("morph defaults not applied: %+v", m)
	}
}

func TestParse_Defaults(t *testing.T) {
	plan, err := Parse([]byte("faces:\n  - seed: 3\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(plan.Dims) != 1 || plan.Dims[0] != DefaultDim {
		t.Errorf("dims = %v", plan.Dims)
	}
	if len(plan.Formats) != 1 || plan.Formats[0] != "jpg" {
		t.Errorf("formats = %v", plan.Formats)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad format", "formats: [bmp]\n"},
		{"bad dim", "dims: [5]\n"},
		{"bad kind", "morphs:\n  - from: {seed: 1}\n    to: {seed: 2}\n    kinds: [avi]\n"},
		{"too many frames", "morphs:\n  - from: {seed: 1}\n    to: {seed: 2}\n    frames: 500\n"},
		{"not yaml", "faces: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.yaml)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestRun(t *testing.T) {
	plan, err := Parse([]byte(samplePlan))
	if err != nil {
		t.Fatal(err)
	}
	images := &recordingImages{}
	morphs := &recordingMorphs{}
	r := &Runner{Images: images, Morphs: morphs, Records: noRecords{}, Logger: logging.Nop()}

	rep, err := r.Run(context.Background(), plan)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if rep.Faces != 8 || rep.Videos != 2 || rep.Previews != 1 || rep.Failed != 0 {
		t.Errorf("report = %+v", rep)
	}
	if images.got[0] != "s1/jpg" || images.got[1] != "s1/webp" {
		t.Errorf("image order = %v", images.got[:2])
	}
	if morphs.videos[0].KBitrate != 0 || morphs.videos[1].KBitrate != DefaultKBitrate {
		t.Errorf("kbitrate only applies to mp4: %+v", morphs.videos)
	}
}

func TestRun_ContinuesPastFailures(t *testing.T) {
	plan, err := Parse([]byte(`
faces:
  - guid: ` + uuid.NewString() + `
  - seed: 2
morphs:
  - from: {seed: 1}
    to: {seed: 2}
    kinds: [webp]
`))
	if err != nil {
		t.Fatal(err)
	}
	images := &recordingImages{}
	morphs := &recordingMorphs{fail: morph.ErrFFmpeg}
	r := &Runner{Images: images, Morphs: morphs, Records: noRecords{}, Logger: logging.Nop()}

	rep, err := r.Run(context.Background(), plan)
	if !errors.Is(err, latent.ErrNotFound) || !errors.Is(err, morph.ErrFFmpeg) {
		t.Errorf("error = %v, want both failures joined", err)
	}
	if rep.Faces != 1 || rep.Failed != 2 {
		t.Errorf("report = %+v", rep)
	}
	if !strings.Contains(err.Error(), "guid") {
		t.Errorf("error does not name the entry: %v", err)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	plan, err := Parse([]byte("faces:\n  - seed: 1\n"))
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := &Runner{Images: &recordingImages{}, Morphs: &recordingMorphs{}, Logger: logging.Nop()}
	if _, err := r.Run(ctx, plan); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}
