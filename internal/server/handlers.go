package server

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/ShayCichocki/checkface/internal/encoder"
	"github.com/ShayCichocki/checkface/internal/latent"
	"github.com/ShayCichocki/checkface/internal/morph"
	"github.com/ShayCichocki/checkface/internal/render"
)

// Upload and request body limits.
const (
	maxLatentBody = 1 << 20
	maxUpload     = 32 << 20
)

//go:embed static/encode.html
var encodeForm []byte

// QueueStatus is the body of /api/queue/.
type QueueStatus struct {
	Queue         int     `json:"queue"`
	Ready         bool    `json:"ready"`
	BatchSize     int     `json:"batch_size"`
	Batches       int     `json:"batches"`
	Images        int     `json:"images"`
	FailedBatches int     `json:"failed_batches"`
	LastBatchSize int     `json:"last_batch_size"`
	LastBatchMS   float64 `json:"last_batch_ms"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, "It works")
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	status := QueueStatus{Ready: s.ready()}
	if s.queue != nil {
		status.Queue = s.queue.Len()
	}
	if s.generator != nil {
		st := s.generator.Stats()
		status.BatchSize = s.generator.BatchSize()
		status.Batches = st.Batches
		status.Images = st.Images
		status.FailedBatches = st.FailedBatches
		status.LastBatchSize = st.LastBatchSize
		status.LastBatchMS = float64(st.LastBatchDuration.Microseconds()) / 1000
	}
	if err := writeJSON(w, status); err != nil {
		s.log.Error().Err(err).Msg("encode queue status")
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleFace(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()
	p, err := s.requestProxy(r.Context(), q)
	if err != nil {
		return err
	}
	f, err := formatParam(q)
	if err != nil {
		return err
	}
	return s.serveFace(w, r, p, s.dimParam(q), f)
}

// handleLegacy serves /api/<text> as a 300px JPEG of the text's face.
func (s *Server) handleLegacy(w http.ResponseWriter, r *http.Request) error {
	return s.serveFace(w, r, latent.NewText(r.PathValue("text")), defaultDim, render.JPEG)
}

func (s *Server) serveFace(w http.ResponseWriter, r *http.Request, p latent.Proxy, dim int, f render.Format) error {
	path, err := s.images.Get(r.Context(), p, dim, f)
	if err != nil {
		return err
	}
	serveFile(w, r, path, f.MIME())
	return nil
}

func (s *Server) handleHashData(w http.ResponseWriter, r *http.Request) error {
	p, err := s.requestProxy(r.Context(), r.URL.Query())
	if err != nil {
		return err
	}
	// The model belongs to the worker; references that need the mapping
	// network fail with ErrModelRequired instead.
	v, err := p.Resolve(nil)
	if err != nil {
		return err
	}
	shape, err := latent.ShapeOf(v)
	if err != nil {
		return err
	}

	data := map[string]any{}
	if shape == latent.ShapeCompact {
		data[string(shape)] = []float64(v)
	} else {
		data[string(shape)] = v.Rows()
	}
	switch p := p.(type) {
	case *latent.Seed:
		data["seed"] = p.Value()
	case *latent.Text:
		data["hash"] = p.HashHex()
	}
	return writeJSON(w, data)
}

func (s *Server) handleRegisterLatent(w http.ResponseWriter, r *http.Request) error {
	var body struct {
		Latent json.RawMessage `json:"latent"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxLatentBody)).Decode(&body); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if len(body.Latent) == 0 {
		return fmt.Errorf("%w: latent is required", errBadRequest)
	}
	v, err := latent.DecodeJSON(body.Latent)
	if err != nil {
		return err
	}
	id, err := s.latents.Register(r.Context(), v)
	if err != nil {
		return err
	}
	s.log.Info().Str("guid", id.String()).Int("len", len(v)).Msg("latent registered")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, id.String())
	return nil
}

func (s *Server) handleVideo(kind morph.VideoKind) func(http.ResponseWriter, *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		q := r.URL.Query()
		from, to, err := s.pairParam(r.Context(), q)
		if err != nil {
			return err
		}
		req := morph.VideoRequest{
			From:   from,
			To:     to,
			Kind:   kind,
			Frames: framesParam(q),
			Dim:    s.dimParam(q),
			FPS:    intParam(q, "fps", defaultFPS, minFPS, maxFPS),
		}
		if kind == morph.MP4 {
			req.KBitrate = intParam(q, "kbitrate", defaultKBitrate, minKBitrate, maxKBitrate)
		}
		path, err := s.morphs.Video(r.Context(), req)
		if err != nil {
			return err
		}
		serveFile(w, r, path, kind.MIME())
		return nil
	}
}

func (s *Server) handleLinkPreview(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()
	from, to, err := s.pairParam(r.Context(), q)
	if err != nil {
		return err
	}
	width := intParam(q, "width", defaultPreviewWidth, minPreviewWidth, maxPreviewWidth)
	path, err := s.morphs.LinkPreview(r.Context(), from, to, width)
	if err != nil {
		return err
	}
	serveFile(w, r, path, render.JPEG.MIME())
	return nil
}

func (s *Server) handleMorphFrame(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()
	from, to, err := s.pairParam(r.Context(), q)
	if err != nil {
		return err
	}
	n := framesParam(q)
	paths, err := s.morphs.Frames(r.Context(), morph.Request{
		From:    from,
		To:      to,
		Frames:  n,
		Dim:     s.dimParam(q),
		Indices: []int{intParam(q, "frame_num", 0, 0, n)},
		Shape:   shapeParam(q),
	})
	if err != nil {
		return err
	}
	serveFile(w, r, paths[0], render.JPEG.MIME())
	return nil
}

func (s *Server) handleEncodeImage(w http.ResponseWriter, r *http.Request) error {
	if s.encoder == nil {
		return fmt.Errorf("%w: no encoder configured", encoder.ErrExternalService)
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
	file, _, err := r.FormFile("usrimg")
	if err != nil {
		return fmt.Errorf("%w: no file uploaded for usrimg", errBadRequest)
	}
	defer file.Close()
	img, err := io.ReadAll(file)
	if err != nil {
		return fmt.Errorf("%w: read upload: %v", errBadRequest, err)
	}
	if len(img) == 0 {
		return fmt.Errorf("%w: no file uploaded for usrimg", errBadRequest)
	}

	res, err := s.encoder.Encode(r.Context(), img, boolParam(r.Form, "tryalign"))
	if err != nil {
		return err
	}
	return writeJSON(w, res)
}

func (s *Server) handleEncodeForm(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(encodeForm)
}

// serveFile sends a cached artifact with range and conditional request support.
func serveFile(w http.ResponseWriter, r *http.Request, path, mime string) {
	w.Header().Set("Content-Type", mime)
	http.ServeFile(w, r, path)
}

// writeJSON encodes v before writing anything, so an encoding failure can
// still be reported with an error status.
func writeJSON(w http.ResponseWriter, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(append(data, '\n'))
	return nil
}
