// Package server exposes the load, organization and fleet services as a JSON
// HTTP API.
package server

import (
	"net/http"

	"connectrpc.com/authn"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/wolfeidau/loadboard/internal/apperr"
	"github.com/wolfeidau/loadboard/internal/fleet"
	httpmiddleware "github.com/wolfeidau/loadboard/internal/http"
	"github.com/wolfeidau/loadboard/internal/loads"
	"github.com/wolfeidau/loadboard/internal/logger"
	"github.com/wolfeidau/loadboard/internal/orgs"
)

// DefaultMaxBodyBytes bounds request bodies. It leaves room for a base64
// encoded signature image.
const DefaultMaxBodyBytes = 2 << 20

// Config holds the services and HTTP options of a Server.
type Config struct {
	Loads *loads.Service
	Orgs  *orgs.Service
	Fleet *fleet.Service

	// AuthFunc authenticates each request and returns an *auth.Identity.
	AuthFunc     authn.AuthFunc
	CORSOrigins  []string
	Tracing      bool
	MaxBodyBytes int64
	// TrustProxy takes the client address from X-Forwarded-For or X-Real-IP.
	TrustProxy bool
}

// Server routes API requests to the services.
type Server struct {
	loads        *loads.Service
	orgs         *orgs.Service
	fleet        *fleet.Service
	authFunc     authn.AuthFunc
	corsOrigins  []string
	tracing      bool
	maxBodyBytes int64
	trustProxy   bool
}

// NewServer creates a new server from cfg.
func NewServer(cfg Config) *Server {
	limit := cfg.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	return &Server{
		loads:        cfg.Loads,
		orgs:         cfg.Orgs,
		fleet:        cfg.Fleet,
		authFunc:     cfg.AuthFunc,
		corsOrigins:  cfg.CORSOrigins,
		tracing:      cfg.Tracing,
		maxBodyBytes: limit,
		trustProxy:   cfg.TrustProxy,
	}
}

// Handler returns the HTTP handler for the server
func (s *Server) Handler(log zerolog.Logger) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint for load balancer
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	s.registerOrgs(mux)
	s.registerLoads(mux)
	s.registerFleet(mux)

	var h http.Handler = mux
	h = s.limitBody(h)
	h = s.authenticate(h)
	h = logger.Requests(log)(h)
	h = httpmiddleware.ClientIPMiddleware(s.trustProxy)(h)
	h = s.withCORS(h)
	if s.tracing {
		h = otelhttp.NewHandler(h, "loadboard-api")
	}
	return h
}

// authenticate runs the auth func and stores the identity on the context.
// Failures are rendered in the API error format.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.authFunc == nil {
			next.ServeHTTP(w, r)
			return
		}

		info, err := s.authFunc(r.Context(), r)
		if err != nil {
			writeError(w, r, apperr.Unauthenticated(err.Error()))
			return
		}

		ctx := r.Context()
		if info != nil {
			ctx = authn.SetInfo(ctx, info)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
		next.ServeHTTP(w, r)
	})
}

// withCORS adds CORS support for browser clients.
func (s *Server) withCORS(h http.Handler) http.Handler {
	if len(s.corsOrigins) == 0 {
		return h
	}
	middleware := cors.New(cors.Options{
		AllowedOrigins: s.corsOrigins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodPut, http.MethodDelete,
		},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	})
	return middleware.Handler(h)
}
