// Package api exposes the contact safety pipeline as a small internal HTTP
// service for the discovery flow.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/totalaud/contact-safety/internal/discovery"
	"github.com/totalaud/contact-safety/internal/domain"
	"github.com/totalaud/contact-safety/internal/suppression"
	"github.com/totalaud/contact-safety/internal/verifier"
)

// ContactClassifier is the classification stage.
type ContactClassifier interface {
	Classify(c domain.Contact) domain.ClassificationResult
}

// SourceVerifier is the provenance stage.
type SourceVerifier interface {
	Verify(ctx context.Context, email, sourceURL string) domain.VerificationResult
	VerifyBatch(ctx context.Context, emails []string, sourceURL string) verifier.BatchResult
}

// SuppressionService is the do-not-contact list.
type SuppressionService interface {
	Check(ctx context.Context, email, userID string) domain.SuppressionCheck
	CheckBatch(ctx context.Context, emails []string, userID string) map[string]domain.SuppressionCheck
	Add(ctx context.Context, req suppression.NewEntry, userID string) bool
	ClearCache(ctx context.Context)
	Erase(ctx context.Context, email string) (int64, error)
	Recover(ctx context.Context, email string) ([]suppression.Disclosure, error)
}

// Screener runs the whole pipeline over a batch of candidates.
type Screener interface {
	Screen(ctx context.Context, candidates []discovery.Candidate, userID string) []discovery.Decision
}

// Deps are the services the handlers call.
type Deps struct {
	Classifier  ContactClassifier
	Verifier    SourceVerifier
	Suppression SuppressionService
	Gate        Screener
	Health      *HealthChecker
}

// Options tunes the HTTP surface.
type Options struct {
	// APIToken, when set, is required as a bearer token on /v1 routes.
	APIToken       string
	AllowedOrigins []string
	MaxBatchSize   int
}

// DefaultMaxBatchSize bounds batch endpoints.
const DefaultMaxBatchSize = 500

// Server represents the API server
type Server struct {
	handler http.Handler
	router  *chi.Mux
	server  *http.Server
}

// NewServer builds the router over deps.
func NewServer(deps Deps, opts Options) *Server {
	if opts.MaxBatchSize <= 0 {
		opts.MaxBatchSize = DefaultMaxBatchSize
	}
	h := &Handlers{deps: deps, maxBatch: opts.MaxBatchSize}
	router := SetupRoutes(h, deps.Health, opts)
	return &Server{
		handler: router,
		router:  router,
		server: &http.Server{
			Handler: router,
			// Page fetches are bounded by the verifier timeout; batch screens
			// can fetch several pages.
			ReadTimeout:       30 * time.Second,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      2 * time.Minute,
			IdleTimeout:       120 * time.Second,
		},
	}
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe(addr string) error {
	s.server.Addr = addr
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler returns the HTTP handler for testing
func (s *Server) Handler() http.Handler {
	return s.handler
}
