package api

import (
	"context"
	"errors"
	"math"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/karelholub/article-recommender/internal/recommend"
)

const staleHeader = "X-Model-Stale"

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to marshal response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		s.logger.Debug().Err(err).Msg("failed to write response")
	}
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	s.respondJSON(w, status, errorResponse{Error: msg, RequestID: requestIDFrom(r.Context())})
}

// respondEngineError maps engine errors to status codes. Internal errors are
// logged and reported without detail.
func (s *Server) respondEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, recommend.ErrNotFound):
		s.respondError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, recommend.ErrInvalidInput):
		s.respondError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		s.respondError(w, r, http.StatusGatewayTimeout, "request timed out")
	default:
		s.logger.Error().Err(err).Str("request_id", requestIDFrom(r.Context())).Msg("request failed")
		s.respondError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func setStale(w http.ResponseWriter, stale bool) {
	if stale {
		w.Header().Set(staleHeader, "true")
	}
}

func round4(x float64) float64 {
	return math.Round(x*1e4) / 1e4
}
