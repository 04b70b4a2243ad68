// Package server exposes the vault over HTTP.
//
// The caller principal is taken from the X-Enclave-Principal header, which
// the authenticating front proxy sets after verifying the caller. Requests
// without it are treated as anonymous.
package server

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/roach88/enclave/internal/vault"
)

// PrincipalHeader carries the authenticated caller.
const PrincipalHeader = "X-Enclave-Principal"

const (
	defaultTimeout = 60 * time.Second
	maxBodyBytes   = 8 << 20
)

// Server holds the dependencies of the HTTP API.
type Server struct {
	router    *chi.Mux
	vault     *vault.Vault
	kdf       http.Handler
	log       *slog.Logger
	startTime time.Time
}

// Option configures the Server.
type Option func(*Server)

// WithKDFHandler mounts a key derivation service under /kdf (dev mode).
func WithKDFHandler(h http.Handler) Option {
	return func(s *Server) { s.kdf = h }
}

// WithLogger sets the request logger. Default discards.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// New builds a Server over v.
func New(v *vault.Vault, opts ...Option) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		vault:     v,
		log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes returns the configured http.Handler.
func (s *Server) Routes() http.Handler {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/health", s.handleHealth)

	if s.kdf != nil {
		r.Mount("/kdf", s.kdf)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(defaultTimeout))
		r.Use(limitBody)

		r.Get("/whoami", s.handleWhoAmI)

		r.Get("/notes", s.handleNotesList)
		r.Post("/notes", s.handleNoteCreate)
		r.Put("/notes/{id}", s.handleNoteUpdate)
		r.Delete("/notes/{id}", s.handleNoteDelete)
		r.Post("/notes/{id}/grantees/{principal}", s.handleGranteeAdd)
		r.Delete("/notes/{id}/grantees/{principal}", s.handleGranteeRemove)
		r.Post("/notes/{id}/key", s.handleNoteKey)

		r.Get("/keys/verification", s.handleVerificationKey)

		r.Get("/passports", s.handlePassportsList)
		r.Post("/passports", s.handlePassportCreate)
		r.Get("/passports/{id}", s.handlePassportGet)
		r.Delete("/passports/{id}", s.handlePassportDelete)
		r.Put("/passports/{id}/spec", s.handlePassportSpec)
		r.Put("/passports/{id}/endpoints", s.handlePassportEndpoints)
		r.Put("/passports/{id}/active", s.handlePassportActive)
		r.Get("/passports/{id}/memories", s.handleMemoriesList)
		r.Post("/passports/{id}/memories", s.handleMemoryAdd)
		r.Delete("/memories/{id}", s.handleMemoryDelete)

		r.Get("/tokens", s.handleTokensList)
		r.Post("/tokens", s.handleTokenCreate)
		r.Post("/tokens/{id}/revoke", s.handleTokenRevoke)
		r.Post("/tokens/{id}/verify", s.handleTokenVerify)

		r.Get("/jobs", s.handleJobsList)
		r.Post("/jobs", s.handleJobCreate)
		r.Get("/jobs/{id}", s.handleJobGet)
		r.Post("/jobs/{id}/advance", s.handleJobAdvance)
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		next.ServeHTTP(w, r)
	})
}

func caller(r *http.Request) string {
	return r.Header.Get(PrincipalHeader)
}
