package model

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ShayCichocki/checkface/internal/latent"
)

// Remote drives a network hosted in a sidecar process over HTTP.
//
//	GET  /info    -> {"input_dim": 512, "average_dlatent": [...]}
//	POST /expand  {"qlatent": [...]}    -> {"dlatent": [...]}
//	POST /infer   {"dlatents": [[...]]} -> {"images": ["<base64 png or jpeg>", ...]}
//
// A transport failure or a 503 from the sidecar is reported as ErrDeviceLost.
type Remote struct {
	baseURL string
	client  *http.Client

	infoOnce sync.Once
	info     remoteInfo
	infoErr  error
}

type remoteInfo struct {
	InputDim       int       `json:"input_dim"`
	AverageDlatent []float64 `json:"average_dlatent"`
}

// NewRemote creates a client for the sidecar at baseURL.
func NewRemote(baseURL string, timeout time.Duration) *Remote {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Remote{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (r *Remote) loadInfo() (remoteInfo, error) {
	r.infoOnce.Do(func() {
		r.infoErr = r.call(http.MethodGet, "/info", nil, &r.info)
	})
	return r.info, r.infoErr
}

// InputDim returns the sidecar's compact dimension, or 0 if it is unreachable.
func (r *Remote) InputDim() int {
	info, err := r.loadInfo()
	if err != nil {
		return 0
	}
	return info.InputDim
}

func (r *Remote) AverageExpanded() (latent.Vector, error) {
	info, err := r.loadInfo()
	if err != nil {
		return nil, fmt.Errorf("fetch average latent: %w", err)
	}
	return latent.Vector(info.AverageDlatent).Clone(), nil
}

func (r *Remote) Expand(compact latent.Vector) (latent.Vector, error) {
	var resp struct {
		Dlatent []float64 `json:"dlatent"`
	}
	if err := r.call(http.MethodPost, "/expand", map[string]any{"qlatent": compact}, &resp); err != nil {
		return nil, fmt.Errorf("expand: %w", err)
	}
	return latent.Vector(resp.Dlatent), nil
}

func (r *Remote) Infer(batch []latent.Vector) ([]image.Image, error) {
	var resp struct {
		Images []string `json:"images"`
	}
	if err := r.call(http.MethodPost, "/infer", map[string]any{"dlatents": batch}, &resp); err != nil {
		return nil, fmt.Errorf("infer: %w", err)
	}
	if len(resp.Images) != len(batch) {
		return nil, fmt.Errorf("infer: sidecar returned %d images for a batch of %d", len(resp.Images), len(batch))
	}
	out := make([]image.Image, len(resp.Images))
	for i, enc := range resp.Images {
		raw, err := base64.StdEncoding.DecodeString(enc)
		if err != nil {
			return nil, fmt.Errorf("infer: image %d: %w", i, err)
		}
		img, _, err := image.Decode(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("infer: decode image %d: %w", i, err)
		}
		out[i] = img
	}
	return out, nil
}

func (r *Remote) call(method, path string, body any, out any) error {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequest(method, r.baseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceLost, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusServiceUnavailable {
		return fmt.Errorf("%w: sidecar returned %s", ErrDeviceLost, resp.Status)
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sidecar %s %s: %s: %s", method, path, resp.Status, strings.TrimSpace(string(msg)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

var _ Model = (*Remote)(nil)
