// Package server exposes the pipeline over HTTP, SSE and websockets.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"f2b/internal/acquire"
	"f2b/internal/apperr"
	"f2b/internal/pipeline"
	"f2b/internal/store/artifact"
	"f2b/internal/types"
)

// Runner is the pipeline surface the handlers drive.
type Runner interface {
	Run(ctx context.Context, sourceURL string) (*types.Result, error)
	Stream(ctx context.Context, sourceURL string, emit pipeline.EmitFunc) (*types.Result, error)
}

type Server struct {
	runner       Runner
	metrics      http.Handler
	log          zerolog.Logger
	validate     *validator.Validate
	projectsRoot string
	artifacts    artifact.Store
}

type Option func(*Server)

// WithProjectsRoot confines /fetch-zip to archives under root.
func WithProjectsRoot(root string) Option {
	return func(s *Server) {
		if strings.TrimSpace(root) != "" {
			s.projectsRoot = root
		}
	}
}

// WithArtifacts serves mirrored archives when the local copy is gone.
func WithArtifacts(store artifact.Store) Option {
	return func(s *Server) { s.artifacts = store }
}

// New returns a Server. metrics may be nil.
func New(runner Runner, metrics http.Handler, log zerolog.Logger, opts ...Option) *Server {
	v := validator.New()
	_ = v.RegisterValidation("repo_url", func(fl validator.FieldLevel) bool {
		return acquire.ValidateURL(fl.Field().String()) == nil
	})
	s := &Server{runner: runner, metrics: metrics, log: log, validate: v, projectsRoot: "Projects"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GenerateRequest is the body of the generate endpoints.
type GenerateRequest struct {
	RepoURL string `json:"repo_url" validate:"required,repo_url"`
}

// FetchZipRequest names an archive by path, by project, or both. A project
// whose local archive is gone is served from the mirror.
type FetchZipRequest struct {
	ZipPath   string `json:"zip_path" validate:"required_without=ProjectID"`
	ProjectID string `json:"project_id" validate:"omitempty,uuid"`
}

type errorBody struct {
	StatusCode int    `json:"statuscode"`
	Error      string `json:"error"`
	Detail     string `json:"detail"`
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /generate", s.handleGenerate)
	mux.HandleFunc("POST /generate/stream", s.handleGenerateStream)
	mux.HandleFunc("GET /generate/ws", s.handleGenerateWS)
	mux.HandleFunc("GET /fetch-zip", s.handleFetchZip)
	mux.HandleFunc("POST /fetch-zip", s.handleFetchZip)
	mux.HandleFunc("GET /artifacts", s.handleListArtifacts)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	return cors(s.logRequests(mux))
}

func (s *Server) decodeGenerate(r *http.Request) (string, error) {
	var in GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		return "", apperr.InvalidInput("invalid json body")
	}
	in.RepoURL = strings.TrimSpace(in.RepoURL)
	if err := s.validate.Struct(in); err != nil {
		return "", apperr.InvalidInput("repo_url must be a GitHub repository URL")
	}
	return in.RepoURL, nil
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	url, err := s.decodeGenerate(r)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := s.runner.Run(r.Context(), url)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := apperr.StatusOf(err)
	writeJSON(w, status, errorBody{
		StatusCode: status,
		Error:      string(apperr.KindOf(err)),
		Detail:     apperr.MessageOf(err),
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush and Hijack keep SSE and websocket upgrades working behind the
// recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("server: hijack unsupported")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Vary", "Origin")
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
