package latent

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
)

func TestShapeOf(t *testing.T) {
	tests := []struct {
		n       int
		want    Shape
		wantErr bool
	}{
		{n: CompactDim, want: ShapeCompact},
		{n: ExpandedDim, want: ShapeExpanded},
		{n: 0, wantErr: true},
		{n: 513, wantErr: true},
		{n: 2 * CompactDim, wantErr: true},
	}
	for _, tt := range tests {
		got, err := ShapeOf(make(Vector, tt.n))
		if tt.wantErr {
			if !errors.Is(err, ErrMalformedLatent) {
				t.Errorf("ShapeOf(len %d) error = %v, want ErrMalformedLatent", tt.n, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ShapeOf(len %d) = %q, %v; want %q", tt.n, got, err, tt.want)
		}
	}
}

func TestFromLayers(t *testing.T) {
	rows := make([][]float64, Layers)
	for i := range rows {
		rows[i] = make([]float64, CompactDim)
		rows[i][0] = float64(i)
	}
	v, err := FromLayers(rows)
	if err != nil {
		t.Fatalf("FromLayers failed: %v", err)
	}
	if len(v) != ExpandedDim {
		t.Fatalf("len = %d, want %d", len(v), ExpandedDim)
	}
	if v.Layer(17)[0] != 17 {
		t.Errorf("Layer(17)[0] = %f, want 17", v.Layer(17)[0])
	}
	if got := v.Rows(); len(got) != Layers || got[3][0] != 3 {
		t.Errorf("Rows() round trip lost layer data")
	}

	single, err := FromLayers([][]float64{make([]float64, CompactDim)})
	if err != nil || len(single) != CompactDim {
		t.Errorf("single row: len %d, err %v", len(single), err)
	}

	rows[4] = rows[4][:10]
	if _, err := FromLayers(rows); !errors.Is(err, ErrMalformedLatent) {
		t.Errorf("short layer error = %v, want ErrMalformedLatent", err)
	}
}

func TestTruncate(t *testing.T) {
	c := newTestContext(t, &tileExpander{}, DefaultTruncation())
	v := make(Vector, ExpandedDim)
	for i := range v {
		v[i] = 1
	}
	out := c.Truncate(v)
	if got := out.Layer(0)[0]; math.Abs(got-0.7) > 1e-12 {
		t.Errorf("layer 0 = %f, want 0.7", got)
	}
	if got := out.Layer(7)[511]; math.Abs(got-0.7) > 1e-12 {
		t.Errorf("layer 7 = %f, want 0.7", got)
	}
	if got := out.Layer(8)[0]; got != 1 {
		t.Errorf("layer 8 = %f, want 1", got)
	}
	if v[0] != 1 {
		t.Error("Truncate modified its input")
	}
}

func TestContext_Expand(t *testing.T) {
	exp := &tileExpander{}
	c := newTestContext(t, exp, DefaultTruncation())
	compact := make(Vector, CompactDim)

	out, err := c.Expand(compact)
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}
	// layer 3 of the tile expansion is 3, pulled toward a zero average.
	if got := out.Layer(3)[0]; math.Abs(got-2.1) > 1e-12 {
		t.Errorf("truncated layer 3 = %f, want 2.1", got)
	}

	raw, err := c.ExpandRaw(compact)
	if err != nil {
		t.Fatalf("ExpandRaw failed: %v", err)
	}
	if got := raw.Layer(3)[0]; got != 3 {
		t.Errorf("raw layer 3 = %f, want 3", got)
	}

	already := make(Vector, ExpandedDim)
	same, err := c.Expand(already)
	if err != nil || &same[0] != &already[0] {
		t.Errorf("expanded input was not returned unchanged")
	}

	var nilCtx *Context
	if _, err := nilCtx.Expand(compact); !errors.Is(err, ErrModelRequired) {
		t.Errorf("nil context error = %v, want ErrModelRequired", err)
	}
}

func TestNewContext_Validation(t *testing.T) {
	if _, err := NewContext(nil, make(Vector, ExpandedDim), CompactDim, DefaultTruncation()); !errors.Is(err, ErrModelRequired) {
		t.Errorf("nil expander error = %v", err)
	}
	if _, err := NewContext(&tileExpander{}, make(Vector, 10), CompactDim, DefaultTruncation()); !errors.Is(err, ErrMalformedLatent) {
		t.Errorf("bad average error = %v", err)
	}
	if _, err := NewContext(&tileExpander{}, make(Vector, ExpandedDim), 256, DefaultTruncation()); !errors.Is(err, ErrMalformedLatent) {
		t.Errorf("bad input dim error = %v", err)
	}
	if _, err := NewContext(&tileExpander{}, make(Vector, ExpandedDim), CompactDim, Truncation{Psi: 0.7, Cutoff: 19}); err == nil {
		t.Error("expected error for cutoff past the last layer")
	}
}

func TestFileStem(t *testing.T) {
	if got := FileStem("s42"); got != "s42" {
		t.Errorf("FileStem(short) = %q", got)
	}
	long := "LERP_0.5_" + strings.Repeat("x", 300) + "_LERP"
	got := FileStem(long)
	if !strings.HasPrefix(got, "LERP_") || len(got) != len("LERP_")+64 {
		t.Errorf("FileStem(long) = %q", got)
	}
	if FileStem(long) != got {
		t.Error("FileStem is not deterministic")
	}
}

func TestFormatWeight(t *testing.T) {
	tests := map[float64]string{0: "0", 1: "1", 0.5: "0.5", 0.1: "0.1", -2: "-2", 1.0 / 3: "0.3333333333333333"}
	for in, want := range tests {
		if got := FormatWeight(in); got != want {
			t.Errorf("FormatWeight(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestDecodeJSON(t *testing.T) {
	flat := make([]float64, CompactDim)
	nested := make([][]float64, Layers)
	for i := range nested {
		nested[i] = make([]float64, CompactDim)
	}
	mustJSON := func(v any) json.RawMessage {
		b, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		return b
	}

	tests := []struct {
		name    string
		raw     json.RawMessage
		wantLen int
		wantErr bool
	}{
		{"flat compact", mustJSON(flat), CompactDim, false},
		{"flat expanded", mustJSON(make([]float64, ExpandedDim)), ExpandedDim, false},
		{"nested", mustJSON(nested), ExpandedDim, false},
		{"wrong length", mustJSON(make([]float64, 10)), 0, true},
		{"wrong layers", mustJSON(nested[:3]), 0, true},
		{"not numbers", json.RawMessage(`["a"]`), 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := DecodeJSON(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedLatent) {
					t.Fatalf("error = %v, want ErrMalformedLatent", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeJSON failed: %v", err)
			}
			if len(v) != tt.wantLen {
				t.Errorf("len = %d, want %d", len(v), tt.wantLen)
			}
		})
	}
}
