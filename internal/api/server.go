// Package api exposes the badge service over HTTP.
package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/capiscio/pledge-core/pkg/adminguard"
	"github.com/capiscio/pledge-core/pkg/badge"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxRequestBody bounds JSON bodies on public endpoints.
const maxRequestBody = 1 << 20

// Options configures a Server.
type Options struct {
	Service *badge.Service

	// Guard authenticates admin requests. Nil rejects every admin request.
	Guard *adminguard.Guard

	// Gatherer backs /metrics. Defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	Logger *slog.Logger
}

// Server routes HTTP requests to the badge service.
type Server struct {
	svc    *badge.Service
	guard  *adminguard.Guard
	logger *slog.Logger
	mux    *http.ServeMux
}

// New creates a Server and registers its routes.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		svc:    opts.Service,
		guard:  opts.Guard,
		logger: opts.Logger,
		mux:    http.NewServeMux(),
	}

	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	s.mux.HandleFunc("GET /.well-known/jwks.json", s.handleKeySet)

	s.mux.HandleFunc("GET /v1/pledges", s.handleListPledges)
	s.mux.Handle("POST /v1/pledges", s.admin(s.handleAddPledge))
	s.mux.HandleFunc("GET /v1/pledges/{id}", s.handleGetPledge)
	s.mux.HandleFunc("POST /v1/pledges/{id}/claims", s.handleClaim)
	s.mux.HandleFunc("GET /v1/pledges/{id}/holders", s.handleHolders)
	s.mux.HandleFunc("GET /v1/pledges/{id}/holders/{account}", s.handleHolderState)
	s.mux.Handle("POST /v1/pledges/{id}/revocations", s.admin(s.handleRevoke))
	s.mux.Handle("POST /v1/pledges/{id}/redemptions", s.admin(s.handleRedeem))
	s.mux.HandleFunc("POST /v1/transfers", s.handleTransfer)
	s.mux.HandleFunc("GET /v1/events", s.handleEvents)

	return s
}

// ServeHTTP implements http.Handler with request logging.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(rec, r)
	s.logger.Debug("request",
		"method", r.Method,
		"path", r.URL.Path,
		"status", rec.status,
		"duration", time.Since(start),
	)
}

// admin wraps h so it runs only for authenticated owner requests. The
// verified subject becomes the request's capability.
func (s *Server) admin(h func(http.ResponseWriter, *http.Request, badge.Capability)) http.Handler {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := adminguard.ClaimsFromContext(r.Context())
		h(w, r, badge.OwnerCapability(claims.Subject))
	})
	if s.guard == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, badge.NewError(badge.ErrCodeUnauthorized, "admin API is disabled"))
		})
	}
	return adminguard.Middleware(s.guard, s.writeAuthError)(inner)
}

func (s *Server) writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Info("admin authentication failed", "path", r.URL.Path, "error", err)
	if errors.Is(err, adminguard.ErrBodyTooLarge) {
		writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{Code: CodeBodyTooLarge, Message: err.Error()})
		return
	}
	writeError(w, badge.WrapError(badge.ErrCodeUnauthorized, "admin authentication failed", err))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
