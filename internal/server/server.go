// Package server exposes the extraction ladder over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/hyperifyio/hal/internal/fetch"
	"github.com/hyperifyio/hal/internal/ladder"
	"github.com/hyperifyio/hal/internal/safety"
)

const maxRequestBytes = 1 << 20

// Browser runs one extraction. *app.App and *ladder.Ladder implement it.
type Browser interface {
	Browse(ctx context.Context, req ladder.Request) (ladder.Response, error)
}

// Server serves /health, the HTML form at / and POST /browse.
type Server struct {
	browser Browser
	log     zerolog.Logger
}

func NewServer(b Browser, logger zerolog.Logger) *Server {
	return &Server{browser: b, log: logger}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(hlog.NewHandler(s.log))
	r.Use(requestLogger)
	r.Use(hlog.AccessHandler(accessLog))
	r.Use(middleware.Recoverer)

	r.Get("/", s.ui)
	r.Get("/health", s.health)
	r.Post("/browse", s.browse)
	return r
}

// ListenAndServe serves until ctx is cancelled, then drains in-flight
// requests for up to shutdownGrace.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownGrace time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("listening")
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSONStatus(w, map[string]string{"status": "ok"}, http.StatusOK)
}

func (s *Server) ui(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, uiPage)
}

func (s *Server) browse(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(r.Body)
	if err != nil {
		writeDetail(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	resp, err := s.browser.Browse(r.Context(), req)
	if err != nil {
		status := StatusFor(err)
		if status == http.StatusInternalServerError {
			hlog.FromRequest(r).Error().Err(err).Str("url", req.URL).Msg("browse failed")
		}
		writeDetail(w, err.Error(), status)
		return
	}
	writeJSONStatus(w, resp, http.StatusOK)
}

func decodeRequest(body io.ReadCloser) (ladder.Request, error) {
	defer body.Close()
	var req ladder.Request
	if err := json.NewDecoder(io.LimitReader(body, maxRequestBytes)).Decode(&req); err != nil {
		return req, errors.New("invalid request body: " + err.Error())
	}
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		return req, errors.New("url is required")
	}
	mode, err := ladder.ParseMode(string(req.Mode))
	if err != nil {
		return req, err
	}
	req.Mode = mode
	return req, nil
}

// StatusFor maps a Browse error to an HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ladder.ErrInvalidMode):
		return http.StatusUnprocessableEntity
	case errors.Is(err, safety.ErrRejected):
		return http.StatusBadRequest
	case errors.Is(err, fetch.ErrFetchFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeDetail(w http.ResponseWriter, detail string, statusCode int) {
	writeJSONStatus(w, map[string]string{"detail": detail}, statusCode)
}

func writeJSONStatus(w http.ResponseWriter, value any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(value)
}

// requestLogger tags the request-scoped logger with chi's request id.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			l := zerolog.Ctx(r.Context())
			l.UpdateContext(func(c zerolog.Context) zerolog.Context {
				return c.Str("request_id", id)
			})
		}
		next.ServeHTTP(w, r)
	})
}

func accessLog(r *http.Request, status, size int, duration time.Duration) {
	if r.URL.Path == "/health" {
		return
	}
	hlog.FromRequest(r).Info().
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", status).
		Int("bytes", size).
		Dur("duration", duration).
		Msg("http request")
}
