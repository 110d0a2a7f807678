package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/checkface/internal/cache"
	"github.com/ShayCichocki/checkface/internal/dispatch"
	"github.com/ShayCichocki/checkface/internal/encoder"
	"github.com/ShayCichocki/checkface/internal/latent"
	"github.com/ShayCichocki/checkface/internal/logging"
	"github.com/ShayCichocki/checkface/internal/model"
	"github.com/ShayCichocki/checkface/internal/morph"
	"github.com/ShayCichocki/checkface/internal/render"
	"github.com/ShayCichocki/checkface/internal/store"
)

// fakeRunner stands in for ffmpeg and writes the output file.
type fakeRunner struct{}

func (fakeRunner) Run(ctx context.Context, workDir, name string, args ...string) ([]byte, error) {
	return nil, os.WriteFile(args[len(args)-1], []byte("video"), 0o644)
}

func (fakeRunner) LookPath(name string) (string, error) { return name, nil }

type fakeEncoder struct {
	res *encoder.Result
	err error
}

func (f *fakeEncoder) Encode(ctx context.Context, img []byte, tryAlign bool) (*encoder.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	res := *f.res
	res.DidAlign = tryAlign
	return &res, nil
}

// notReady never finishes loading.
type notReady struct{}

func (notReady) Ready() <-chan struct{}      { return make(chan struct{}) }
func (notReady) Stats() dispatch.WorkerStats { return dispatch.WorkerStats{} }
func (notReady) BatchSize() int              { return 1 }

type testEnv struct {
	srv    *httptest.Server
	worker *dispatch.Worker
	db     *store.DB
	enc    *fakeEncoder
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWith(t, model.NewProcedural(32))
}

func newTestEnvWith(t *testing.T, m model.Model) *testEnv {
	t.Helper()
	root := t.TempDir()

	db, err := store.Open(store.DriverModernc, filepath.Join(root, "checkface.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	q := dispatch.NewQueue(nil)
	cfg := dispatch.DefaultWorkerConfig()
	cfg.BatchSize = 4
	w := dispatch.NewWorker(m, q, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-errCh
	})
	select {
	case <-w.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not become ready")
	}

	layout := cache.Layout{Root: root}
	enc := &fakeEncoder{res: &encoder.Result{GUID: uuid.New()}}
	s := New(Options{
		Images:    cache.NewImages(layout, q, cache.Options{Timeout: 5 * time.Second, Logger: logging.Nop()}),
		Morphs:    morph.New(layout, q, morph.Options{Timeout: 5 * time.Second, Runner: fakeRunner{}, Logger: logging.Nop()}),
		Latents:   db,
		Encoder:   enc,
		Generator: w,
		Queue:     q,
		Logger:    logging.Nop(),
	})
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, worker: w, db: db, enc: enc}
}

func (e *testEnv) get(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(e.srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	return resp, buf.Bytes()
}

func decodeSize(t *testing.T, body []byte) image.Point {
	t.Helper()
	img, _, err := image.Decode(bytes.NewReader(body))
	if err != nil {
		t.Fatalf("decode image: %v", err)
	}
	return img.Bounds().Size()
}

func TestStatusAndHome(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.get(t, "/status/")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/status/ = %d", resp.StatusCode)
	}
	resp, body := env.get(t, "/")
	if resp.StatusCode != http.StatusOK || string(body) != "It works" {
		t.Errorf("/ = %d %q", resp.StatusCode, body)
	}
}

func TestNotReady(t *testing.T) {
	s := New(Options{Generator: notReady{}, Queue: dispatch.NewQueue(nil), Logger: logging.Nop()})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/face/?seed=1")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("face before ready = %d, want 503", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/api/queue/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var st QueueStatus
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if st.Ready {
		t.Error("queue status reports ready")
	}
}

func TestFace(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name     string
		path     string
		status   int
		mime     string
		wantSize int
	}{
		{"seed default dim", "/api/face/?seed=42", 200, "image/jpeg", 300},
		{"text with dim", "/api/face/?value=hello&dim=64", 200, "image/jpeg", 64},
		{"dim out of range falls back", "/api/face/?value=hello&dim=5000", 200, "image/jpeg", 300},
		{"webp", "/api/face/?seed=1&dim=40&format=WEBP", 200, "image/webp", 0},
		{"multi", "/api/face/?num_multi=2&seed0=1&value1=x&amount1=9&dim=32", 200, "image/jpeg", 32},
		{"unsupported format", "/api/face/?seed=1&format=bmp", 415, "", 0},
		{"bad seed", "/api/face/?seed=abc", 400, "", 0},
		{"bad guid", "/api/face/?guid=nope", 400, "", 0},
		{"unknown guid", "/api/face/?guid=" + uuid.NewString(), 404, "", 0},
		{"bad amount", "/api/face/?num_multi=1&seed0=1&amount0=lots", 400, "", 0},
		{"nan amount", "/api/face/?num_multi=2&seed0=1&seed1=2&amount0=NaN", 400, "", 0},
		{"inf amount", "/api/face/?num_multi=2&seed0=1&seed1=2&amount1=-Inf", 400, "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := env.get(t, tt.path)
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d (%s)", resp.StatusCode, tt.status, body)
			}
			if tt.mime != "" && resp.Header.Get("Content-Type") != tt.mime {
				t.Errorf("Content-Type = %q, want %q", resp.Header.Get("Content-Type"), tt.mime)
			}
			if tt.wantSize > 0 {
				if got := decodeSize(t, body); got != image.Pt(tt.wantSize, tt.wantSize) {
					t.Errorf("size = %v, want %d", got, tt.wantSize)
				}
			}
		})
	}
}

func TestFace_SecondRequestIsCached(t *testing.T) {
	env := newTestEnv(t)

	env.get(t, "/api/face/?seed=7&dim=20")
	before := env.worker.Stats().Images
	resp, _ := env.get(t, "/api/face/?seed=7&dim=20")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if after := env.worker.Stats().Images; after != before {
		t.Errorf("images generated went %d -> %d on a cached request", before, after)
	}
}

func TestLegacy(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.get(t, "/api/somebody")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d (%s)", resp.StatusCode, body)
	}
	if got := decodeSize(t, body); got != image.Pt(300, 300) {
		t.Errorf("size = %v, want 300x300", got)
	}
}

func TestHashData(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.get(t, "/api/hashdata/?seed=3")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var seeded struct {
		QLatent []float64 `json:"qlatent"`
		Seed    *uint32   `json:"seed"`
	}
	if err := json.Unmarshal(body, &seeded); err != nil {
		t.Fatal(err)
	}
	if len(seeded.QLatent) != latent.CompactDim || seeded.Seed == nil || *seeded.Seed != 3 {
		t.Errorf("seed response: len %d seed %v", len(seeded.QLatent), seeded.Seed)
	}

	_, body = env.get(t, "/api/hashdata/?value=")
	var text struct {
		Hash string `json:"hash"`
	}
	if err := json.Unmarshal(body, &text); err != nil {
		t.Fatal(err)
	}
	if text.Hash != "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855" {
		t.Errorf("hash = %q", text.Hash)
	}

	id, err := env.db.Register(context.Background(), make(latent.Vector, latent.ExpandedDim))
	if err != nil {
		t.Fatal(err)
	}
	_, body = env.get(t, "/api/hashdata/?guid="+id.String())
	var stored struct {
		DLatent [][]float64 `json:"dlatent"`
	}
	if err := json.Unmarshal(body, &stored); err != nil {
		t.Fatal(err)
	}
	if len(stored.DLatent) != latent.Layers {
		t.Errorf("dlatent rows = %d, want %d", len(stored.DLatent), latent.Layers)
	}
}

// workerOnlyModel counts Expand calls made from any goroutine other than the
// dispatch worker.
type workerOnlyModel struct {
	*model.Procedural
	outside atomic.Int64
}

func (m *workerOnlyModel) Expand(compact latent.Vector) (latent.Vector, error) {
	buf := make([]byte, 64<<10)
	if !strings.Contains(string(buf[:runtime.Stack(buf, false)]), "dispatch.(*Worker)") {
		m.outside.Add(1)
	}
	return m.Procedural.Expand(compact)
}

func TestHashData_NeverExpandsOutsideWorker(t *testing.T) {
	m := &workerOnlyModel{Procedural: model.NewProcedural(32)}
	env := newTestEnvWith(t, m)

	id, err := env.db.Register(context.Background(), make(latent.Vector, latent.ExpandedDim))
	if err != nil {
		t.Fatal(err)
	}
	mixed := "num_multi=2&guid0=" + id.String() + "&seed1=7"

	resp, _ := env.get(t, "/api/hashdata/?"+mixed)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("mixed hashdata status = %d, want 400", resp.StatusCode)
	}
	resp, _ = env.get(t, "/api/face/?"+mixed+"&dim=32")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("mixed face status = %d, want 200", resp.StatusCode)
	}
	if n := m.outside.Load(); n != 0 {
		t.Errorf("Expand called %d time(s) outside the worker", n)
	}
}

func TestHashData_NonFiniteAmount(t *testing.T) {
	env := newTestEnv(t)
	for _, amount := range []string{"NaN", "Inf", "-Inf"} {
		resp, _ := env.get(t, "/api/hashdata/?num_multi=2&seed0=1&seed1=2&amount0="+amount)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("amount0=%s status = %d, want 400", amount, resp.StatusCode)
		}
	}
	resp, body := env.get(t, "/api/hashdata/?num_multi=2&seed0=1&seed1=2&amount0=5")
	if resp.StatusCode != http.StatusOK || len(body) == 0 {
		t.Errorf("clamped amount status = %d, body %d bytes", resp.StatusCode, len(body))
	}
}

func TestWriteJSON_EncodeError(t *testing.T) {
	rec := httptest.NewRecorder()
	if err := writeJSON(rec, map[string]any{"x": math.NaN()}); err == nil {
		t.Fatal("expected error for NaN value")
	}
	if rec.Body.Len() != 0 {
		t.Errorf("body written on error: %q", rec.Body.String())
	}
}

func TestRegisterLatent(t *testing.T) {
	env := newTestEnv(t)

	post := func(body string) (*http.Response, string) {
		resp, err := http.Post(env.srv.URL+"/api/registerlatent/", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		var buf bytes.Buffer
		buf.ReadFrom(resp.Body)
		return resp, buf.String()
	}

	vec, _ := json.Marshal(map[string]any{"latent": make([]float64, latent.CompactDim)})
	resp, guid := post(string(vec))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("register = %d (%s)", resp.StatusCode, guid)
	}
	if _, err := uuid.Parse(guid); err != nil {
		t.Fatalf("response %q is not a guid", guid)
	}

	resp, _ = env.get(t, "/api/face/?dim=16&guid="+guid)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("face for registered latent = %d", resp.StatusCode)
	}

	for _, bad := range []string{`{"latent": [1, 2, 3]}`, `{}`, `not json`} {
		if resp, msg := post(bad); resp.StatusCode != http.StatusBadRequest {
			t.Errorf("register %s = %d (%s), want 400", bad, resp.StatusCode, msg)
		}
	}
}

func TestMorphFrame(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.get(t, "/api/morphframe/?from_seed=1&to_seed=2&num_frames=5&frame_num=2&dim=24&linear=true")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d (%s)", resp.StatusCode, body)
	}
	if got := decodeSize(t, body); got != image.Pt(24, 24) {
		t.Errorf("size = %v", got)
	}
}

func TestVideos(t *testing.T) {
	env := newTestEnv(t)
	for _, kind := range []morph.VideoKind{morph.GIF, morph.MP4, morph.WebPAnim} {
		t.Run(string(kind), func(t *testing.T) {
			resp, body := env.get(t, fmt.Sprintf("/api/%s/?from_value=a&to_value=b&num_frames=3&dim=16", kind))
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("status = %d (%s)", resp.StatusCode, body)
			}
			if resp.Header.Get("Content-Type") != kind.MIME() {
				t.Errorf("Content-Type = %q, want %q", resp.Header.Get("Content-Type"), kind.MIME())
			}
			if string(body) != "video" {
				t.Errorf("body = %q", body)
			}
		})
	}
}

func TestLinkPreview(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.get(t, "/api/linkpreview/?from_seed=1&to_seed=2&width=200")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d (%s)", resp.StatusCode, body)
	}
	if got := decodeSize(t, body); got.X != 200 {
		t.Errorf("width = %d, want 200", got.X)
	}
}

func TestEncodeImage(t *testing.T) {
	env := newTestEnv(t)

	upload := func(withFile bool) *http.Response {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		if withFile {
			part, _ := mw.CreateFormFile("usrimg", "me.jpg")
			part.Write([]byte("jpegbytes"))
		}
		mw.WriteField("tryalign", "TRUE")
		mw.Close()
		resp, err := http.Post(env.srv.URL+"/api/encodeimage/", mw.FormDataContentType(), &body)
		if err != nil {
			t.Fatal(err)
		}
		return resp
	}

	resp := upload(true)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var res struct {
		GUID     string `json:"guid"`
		DidAlign bool   `json:"did_align"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		t.Fatal(err)
	}
	if res.GUID != env.enc.res.GUID.String() || !res.DidAlign {
		t.Errorf("result = %+v", res)
	}

	resp = upload(false)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing file = %d, want 400", resp.StatusCode)
	}

	env.enc.err = fmt.Errorf("%w: status 500", encoder.ErrExternalService)
	resp = upload(true)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("encoder failure = %d, want 502", resp.StatusCode)
	}

	resp, body := env.get(t, "/api/encodeimage/")
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `name="usrimg"`) {
		t.Errorf("form = %d", resp.StatusCode)
	}
}

func TestQueue(t *testing.T) {
	env := newTestEnv(t)
	env.get(t, "/api/face/?seed=9&dim=12")

	resp, body := env.get(t, "/api/queue/")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var st QueueStatus
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatal(err)
	}
	if !st.Ready || st.BatchSize != 4 || st.Images < 1 {
		t.Errorf("queue status = %+v", st)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{latent.ErrMalformedLatent, 400},
		{fmt.Errorf("wrap: %w", latent.ErrInvalidSeed), 400},
		{morph.ErrInvalidRequest, 400},
		{latent.ErrModelRequired, 400},
		{latent.ErrNotFound, 404},
		{render.ErrUnsupportedFormat, 415},
		{encoder.ErrExternalService, 502},
		{morph.ErrFFmpeg, 502},
		{dispatch.ErrGenerationTimeout, 504},
		{model.ErrDeviceLost, 503},
		{errors.New("other"), 500},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
