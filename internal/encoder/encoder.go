// Package encoder proxies uploaded face photos to the external encoder service
// and registers the latent it returns. Results are cached by a digest of the
// request so the same upload is only encoded once.
package encoder

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ShayCichocki/checkface/internal/latent"
	"github.com/ShayCichocki/checkface/internal/metrics"
	"github.com/ShayCichocki/checkface/internal/store"
)

// ErrExternalService is returned when the encoder is unreachable, unconfigured
// or answers with an error.
var ErrExternalService = errors.New("encoder service error")

// Store is the persistence the client needs: latent registration and the
// request-keyed result cache.
type Store interface {
	Register(ctx context.Context, v latent.Vector) (uuid.UUID, error)
	store.EncodingStore
}

// Result is the outcome of encoding one upload.
type Result struct {
	GUID     uuid.UUID `json:"guid"`
	DidAlign bool      `json:"did_align"`
	// Cached is true when the result came from the request cache.
	Cached bool `json:"-"`
}

// Options configures a Client.
type Options struct {
	// Timeout bounds a single call to the encoder.
	Timeout time.Duration
	// Metrics counts encoded images; may be nil.
	Metrics *metrics.Metrics
	// Logger receives encoder logs.
	Logger zerolog.Logger
}

// Client talks to the encoder at a base URL.
type Client struct {
	endpoint string
	http     *http.Client
	store    Store
	metrics  *metrics.Metrics
	log      zerolog.Logger
}

// New creates a client for the encoder at baseURL. An empty baseURL yields a
// client whose uncached requests fail with ErrExternalService.
func New(baseURL string, st Store, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 120 * time.Second
	}
	endpoint := ""
	if baseURL != "" {
		endpoint = strings.TrimRight(baseURL, "/") + "/api/encodeimage/"
	}
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: opts.Timeout},
		store:    st,
		metrics:  opts.Metrics,
		log:      opts.Logger,
	}
}

// RequestKey identifies an encoding request: the SHA-256 of the image bytes and
// the alignment flag that was asked for, not the one the encoder reported.
func RequestKey(img []byte, tryAlign bool) string {
	sum := sha256.Sum256(img)
	return hex.EncodeToString(sum[:]) + "-tryalign=" + pyBool(tryAlign)
}

// Encode returns the stored latent for img, calling the encoder on a cache miss
// and registering the latent it produces.
func (c *Client) Encode(ctx context.Context, img []byte, tryAlign bool) (*Result, error) {
	if len(img) == 0 {
		return nil, fmt.Errorf("%w: empty upload", latent.ErrMalformedLatent)
	}
	key := RequestKey(img, tryAlign)

	cached, err := c.store.GetEncoding(ctx, key)
	switch {
	case err == nil:
		c.log.Debug().Str("key", key).Msg("encoding cache hit")
		return &Result{GUID: cached.LatentID, DidAlign: cached.DidAlign, Cached: true}, nil
	case !errors.Is(err, store.ErrNoEncoding):
		return nil, err
	}

	v, didAlign, err := c.call(ctx, img, tryAlign)
	if err != nil {
		return nil, err
	}
	c.metrics.ImageEncoded()

	id, err := c.store.Register(ctx, v)
	if err != nil {
		return nil, fmt.Errorf("register encoded latent: %w", err)
	}
	if err := c.store.PutEncoding(ctx, &store.Encoding{RequestKey: key, LatentID: id, DidAlign: didAlign}); err != nil {
		return nil, err
	}
	c.log.Info().Str("guid", id.String()).Bool("did_align", didAlign).Msg("image encoded")
	return &Result{GUID: id, DidAlign: didAlign}, nil
}

type encodeResponse struct {
	Dlatent  json.RawMessage `json:"dlatent"`
	DidAlign bool            `json:"did_align"`
}

func (c *Client) call(ctx context.Context, img []byte, tryAlign bool) (latent.Vector, bool, error) {
	if c.endpoint == "" {
		return nil, false, fmt.Errorf("%w: no encoder configured", ErrExternalService)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("usrimg", "usrimg")
	if err != nil {
		return nil, false, fmt.Errorf("build request: %w", err)
	}
	if _, err := part.Write(img); err != nil {
		return nil, false, fmt.Errorf("build request: %w", err)
	}
	if err := mw.WriteField("tryalign", pyBool(tryAlign)); err != nil {
		return nil, false, fmt.Errorf("build request: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, false, fmt.Errorf("build request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &body)
	if err != nil {
		return nil, false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrExternalService, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, false, fmt.Errorf("%w: status %d: %s", ErrExternalService, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out encodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, false, fmt.Errorf("%w: decode response: %v", ErrExternalService, err)
	}
	v, err := latent.DecodeJSON(out.Dlatent)
	if err != nil {
		return nil, false, err
	}
	return v, out.DidAlign, nil
}

func pyBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
