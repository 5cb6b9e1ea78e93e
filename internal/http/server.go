// Package http exposes the budget ledger over a JSON API. Every /api route
// requires the configured bearer token; /shared routes are reachable with a
// share token alone.
package http

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"patrimonio/internal/cache"
	"patrimonio/internal/core"
	"patrimonio/internal/ledger"
	"patrimonio/internal/share"
)

// Store is the persistence surface the entity and building handlers use
// directly. Budget and share operations go through their services.
type Store interface {
	CreateEntity(ctx context.Context, name, description string) (core.Entity, error)
	GetEntity(ctx context.Context, entityID string) (core.Entity, error)
	ListEntities(ctx context.Context) ([]core.Entity, error)
	UpdateEntity(ctx context.Context, entityID, name, description string) error
	DeleteEntity(ctx context.Context, entityID string) error

	CreateBuilding(ctx context.Context, entityID, name, address string) (core.Building, error)
	GetBuilding(ctx context.Context, buildingID string) (core.Building, error)
	ListBuildingsByEntity(ctx context.Context, entityID string) ([]core.Building, error)
	UpdateBuilding(ctx context.Context, buildingID, name, address string) error
	DeleteBuilding(ctx context.Context, buildingID string) error
}

type Server struct {
	http.Server

	store    Store
	ledger   *ledger.Service
	shares   *share.Service
	apiToken string

	rateLimiter *rateLimiter

	// Grid responses keyed by owner ID and window; a write invalidates every
	// window variant for the owner by key prefix.
	gridCache    *cache.LRUCache[core.Grid]
	cacheManager *cache.Manager

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// server. An empty apiToken disables authentication; only do that in local
// development.
func NewServer(addr, apiToken string, store Store, ledgerSvc *ledger.Service, shareSvc *share.Service) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		store:       store,
		ledger:      ledgerSvc,
		shares:      shareSvc,
		apiToken:    apiToken,
		rateLimiter: newRateLimiter(),
		gridCache:   cache.NewLRUCache[core.Grid](200, 5*time.Minute),
	}

	s.cacheManager = cache.NewManager()
	s.cacheManager.Register(s.gridCache)
	s.cacheManager.StartCleanup(10 * time.Minute)

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)

	mux.HandleFunc("POST /api/entities", s.api(s.handleCreateEntity))
	mux.HandleFunc("GET /api/entities", s.api(s.handleListEntities))
	mux.HandleFunc("GET /api/entities/{id}", s.api(s.handleGetEntity))
	mux.HandleFunc("PUT /api/entities/{id}", s.api(s.handleUpdateEntity))
	mux.HandleFunc("DELETE /api/entities/{id}", s.api(s.handleDeleteEntity))

	mux.HandleFunc("POST /api/entities/{id}/buildings", s.api(s.handleCreateBuilding))
	mux.HandleFunc("GET /api/entities/{id}/buildings", s.api(s.handleListBuildings))
	mux.HandleFunc("GET /api/buildings/{id}", s.api(s.handleGetBuilding))
	mux.HandleFunc("PUT /api/buildings/{id}", s.api(s.handleUpdateBuilding))
	mux.HandleFunc("DELETE /api/buildings/{id}", s.api(s.handleDeleteBuilding))

	mux.HandleFunc("POST /api/buildings/{id}/budget", s.api(s.handleSaveBudget))
	mux.HandleFunc("GET /api/buildings/{id}/budget", s.api(s.handleBuildingGrid))
	mux.HandleFunc("GET /api/entities/{id}/budget", s.api(s.handleEntityGrid))

	mux.HandleFunc("POST /api/entities/{id}/share", s.api(s.handleIssueShare))
	mux.HandleFunc("DELETE /api/entities/{id}/share", s.api(s.handleRevokeShare))

	// Share links are the one unauthenticated data surface; the token in the
	// path is the whole credential.
	mux.HandleFunc("GET /shared/{token}", s.withSecurityHeaders(s.handleShared))

	return s
}

// api wraps a handler with the full middleware stack for authenticated
// routes.
func (s *Server) api(next http.HandlerFunc) http.HandlerFunc {
	return s.withSecurityHeaders(s.requireAuth(next))
}

// requireAuth checks the Authorization bearer token.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.apiToken == "" {
			next(w, r)
			return
		}
		header := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if len(header) <= len(prefix) || header[:len(prefix)] != prefix ||
			subtle.ConstantTimeCompare([]byte(header[len(prefix):]), []byte(s.apiToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid bearer token")
			return
		}
		next(w, r)
	}
}

// withSecurityHeaders adds security headers, rate limiting and request
// logging.
func (s *Server) withSecurityHeaders(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		clientIP := extractClientIP(r)

		requestID := generateRequestID()
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		r = r.WithContext(ctx)

		slog.InfoContext(ctx, "Request started",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"client_ip", clientIP,
			"user_agent", r.Header.Get("User-Agent"))

		// Rate limit mutating requests only; grid reads are cached anyway.
		if r.Method != http.MethodGet && !s.rateLimiter.allow(clientIP) {
			slog.WarnContext(ctx, "Rate limit exceeded", "client_ip", clientIP, "method", r.Method, "url", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests, try again later")
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Content-Security-Policy", "default-src 'none'")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		duration := time.Since(start)
		slog.InfoContext(ctx, "Request completed",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", duration.Milliseconds(),
			"client_ip", clientIP)
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Shutdown stops the background routines and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.cacheManager != nil {
			s.cacheManager.Stop()
		}
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func buildingCacheKey(buildingID string, window core.MonthRange) string {
	return "building|" + buildingID + "|" + window.From.Key() + "|" + window.To.Key()
}

func entityCacheKey(entityID string, window core.MonthRange) string {
	return "entity|" + entityID + "|" + window.From.Key() + "|" + window.To.Key()
}

func (s *Server) invalidateBuilding(buildingID string) {
	s.gridCache.InvalidatePrefix("building|" + buildingID + "|")
}

func (s *Server) invalidateEntity(entityID string) {
	s.gridCache.InvalidatePrefix("entity|" + entityID + "|")
}
