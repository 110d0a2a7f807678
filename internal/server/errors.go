package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/ShayCichocki/checkface/internal/dispatch"
	"github.com/ShayCichocki/checkface/internal/encoder"
	"github.com/ShayCichocki/checkface/internal/latent"
	"github.com/ShayCichocki/checkface/internal/model"
	"github.com/ShayCichocki/checkface/internal/morph"
	"github.com/ShayCichocki/checkface/internal/render"
)

// errBadRequest marks malformed query or form input.
var errBadRequest = errors.New("bad request")

// statusFor maps an error onto the HTTP status reported to the client.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, latent.ErrMalformedLatent),
		errors.Is(err, latent.ErrInvalidSeed),
		errors.Is(err, latent.ErrInvalidID),
		errors.Is(err, latent.ErrModelRequired),
		errors.Is(err, morph.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, latent.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, render.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, encoder.ErrExternalService),
		errors.Is(err, morph.ErrFFmpeg):
		return http.StatusBadGateway
	case errors.Is(err, dispatch.ErrGenerationTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, model.ErrDeviceLost):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, route string, err error) {
	if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
		// Client went away.
		return
	}
	status := statusFor(err)
	ev := s.log.Warn()
	if status >= http.StatusInternalServerError {
		ev = s.log.Error()
	}
	ev.Err(err).Str("route", route).Str("query", r.URL.RawQuery).Int("status", status).Msg("request failed")
	http.Error(w, err.Error(), status)
}
