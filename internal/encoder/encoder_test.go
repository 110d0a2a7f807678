package encoder

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/ShayCichocki/checkface/internal/latent"
	"github.com/ShayCichocki/checkface/internal/logging"
	"github.com/ShayCichocki/checkface/internal/store"
)

func setupStore(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(store.DriverModernc, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate test db: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

// fakeEncoder answers like the encoder service and counts calls.
func fakeEncoder(t *testing.T, status int, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/api/encodeimage/" {
			t.Errorf("path = %s", r.URL.Path)
		}
		f, _, err := r.FormFile("usrimg")
		if err != nil {
			t.Errorf("usrimg missing: %v", err)
			return
		}
		data, _ := io.ReadAll(f)
		if string(data) != "jpegbytes" {
			t.Errorf("usrimg = %q", data)
		}
		if status != http.StatusOK {
			http.Error(w, "boom", status)
			return
		}
		rows := make([][]float64, latent.Layers)
		for i := range rows {
			rows[i] = make([]float64, latent.CompactDim)
			rows[i][0] = float64(i)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"dlatent":   rows,
			"did_align": r.FormValue("tryalign") == "True",
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRequestKey(t *testing.T) {
	tests := []struct {
		align bool
		want  string
	}{
		{false, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855-tryalign=False"},
		{true, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855-tryalign=True"},
	}
	for _, tt := range tests {
		if got := RequestKey(nil, tt.align); got != tt.want {
			t.Errorf("RequestKey(nil, %v) = %q, want %q", tt.align, got, tt.want)
		}
	}
}

func TestEncode_CachesByRequest(t *testing.T) {
	var calls atomic.Int32
	srv := fakeEncoder(t, http.StatusOK, &calls)
	db := setupStore(t)
	c := New(srv.URL, db, Options{Logger: logging.Nop()})
	ctx := context.Background()

	first, err := c.Encode(ctx, []byte("jpegbytes"), true)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if !first.DidAlign || first.Cached {
		t.Errorf("first result = %+v, want aligned and uncached", first)
	}

	rec, err := db.Get(ctx, first.GUID)
	if err != nil {
		t.Fatalf("registered latent missing: %v", err)
	}
	if rec.Shape != latent.ShapeExpanded || rec.Vector[latent.CompactDim] != 1 {
		t.Errorf("stored latent shape %s, layer 1 head %v", rec.Shape, rec.Vector[latent.CompactDim])
	}

	second, err := c.Encode(ctx, []byte("jpegbytes"), true)
	if err != nil {
		t.Fatalf("second Encode failed: %v", err)
	}
	if second.GUID != first.GUID || !second.Cached {
		t.Errorf("second result = %+v, want cached %s", second, first.GUID)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("encoder called %d times, want 1", n)
	}

	// A different alignment flag is a different request.
	third, err := c.Encode(ctx, []byte("jpegbytes"), false)
	if err != nil {
		t.Fatalf("third Encode failed: %v", err)
	}
	if third.GUID == first.GUID || third.DidAlign {
		t.Errorf("third result = %+v, want a new unaligned latent", third)
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("encoder called %d times, want 2", n)
	}
}

func TestEncode_Errors(t *testing.T) {
	var calls atomic.Int32
	failing := fakeEncoder(t, http.StatusInternalServerError, &calls)

	tests := []struct {
		name    string
		url     string
		img     []byte
		wantErr error
	}{
		{"service error", failing.URL, []byte("jpegbytes"), ErrExternalService},
		{"not configured", "", []byte("jpegbytes"), ErrExternalService},
		{"empty upload", failing.URL, nil, latent.ErrMalformedLatent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(tt.url, setupStore(t), Options{Logger: logging.Nop()})
			_, err := c.Encode(context.Background(), tt.img, false)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Encode error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
