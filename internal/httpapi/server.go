// Package httpapi exposes the vetting and matching entry points over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/spigell/partner-engine/internal/domain"
	"github.com/spigell/partner-engine/internal/logger"
	"github.com/spigell/partner-engine/internal/matching"
)

const (
	DefaultRequestTimeout = 60 * time.Second

	maxBodyBytes = 1 << 20
)

type Vetter interface {
	Vet(ctx context.Context, app *domain.Application) (*domain.VettingResult, error)
}

type Matcher interface {
	Match(ctx context.Context, in matching.Input) (*matching.Output, error)
}

type Server struct {
	vetter  Vetter
	matcher Matcher
	timeout time.Duration
	logger  *zap.Logger
}

func New(vetter Vetter, matcher Matcher, timeout time.Duration, logger *zap.Logger) *Server {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{vetter: vetter, matcher: matcher, timeout: timeout, logger: logger}
}

// Routes returns the router with all entry points mounted.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.accessLog)

	r.Get("/healthz", s.healthz)

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(s.timeout))
		r.Post("/applications/vet", s.vet)
		r.Post("/requests/match", s.match)
	})

	return r
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type vetRequest struct {
	ApplicationID string `json:"application_id"`
	domain.Application
}

type vetResponse struct {
	*domain.VettingResult
	Persisted bool `json:"persisted"`
}

func (s *Server) vet(w http.ResponseWriter, r *http.Request) {
	var body vetRequest
	if err := decode(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	app := body.Application
	if app.ID == "" {
		app.ID = body.ApplicationID
	}

	result, err := s.vetter.Vet(r.Context(), &app)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, vetResponse{VettingResult: result, Persisted: true})
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrPersist) && result != nil:
		s.logger.Warn("vetting result not persisted", zap.String(logger.FieldApplicationID, app.ID), zap.Error(err))
		writeJSON(w, http.StatusOK, vetResponse{VettingResult: result, Persisted: false})
	default:
		s.logger.Error("vetting failed", zap.String(logger.FieldApplicationID, app.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not vet application")
	}
}

func (s *Server) match(w http.ResponseWriter, r *http.Request) {
	var in matching.Input
	if err := decode(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	out, err := s.matcher.Match(r.Context(), in)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, out)
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		s.logger.Error("matching failed", zap.String(logger.FieldRequestID, in.RequestID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("http_request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func decode(w http.ResponseWriter, r *http.Request, out any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: malformed JSON body: %v", domain.ErrInvalidInput, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
