package core

import (
	"context"
	"net/http"
	"time"

	"github.com/klauspost/compress/gzhttp"

	"weatherforecast/internal/types"
)

// defaultRequestTimeout applies when the config leaves RequestTimeout unset.
const defaultRequestTimeout = 10 * time.Second

// defaultRedactedHeaders are masked in request logs.
var defaultRedactedHeaders = []string{
	"Authorization",
	"Cookie",
	"X-Api-Key",
}

// MountRoutes registers the global middleware chain, the domain routes and
// the health check. It must be called exactly once.
func (s *Server) MountRoutes() {
	s.registerGlobalMiddleware()

	s.router.NotFound(s.handleNotFound)
	s.router.MethodNotAllowed(s.handleMethodNotAllowed)

	for _, registrar := range s.RouteRegistrars {
		registrar(s.router)
	}

	s.router.Get("/health", s.HandleHealth)
}

// registerGlobalMiddleware applies middleware in strict order:
//
//  1. Recoverer       - outermost so every panic is caught.
//  2. ContextTimeout  - request deadline.
//  3. RequestID       - correlation ID for logs and error bodies.
//  4. SecurityHeaders - present on every response, including errors.
//  5. HTTPSRedirect   - plaintext is redirected before any work is done.
//  6. RequestLogger   - one structured line per request.
//  7. CORS
//  8. Metrics
//  9. RateLimit       - per client IP.
//  10. Compression    - innermost so upstream middleware sees plain status.
func (s *Server) registerGlobalMiddleware() {
	s.router.Use(s.Recoverer)
	s.router.Use(ContextTimeoutMiddleware(s.requestTimeout()))
	s.router.Use(RequestIDMiddleware)
	s.router.Use(SecurityHeadersMiddleware)
	s.router.Use(s.HTTPSRedirectMiddleware)
	s.router.Use(RequestLogger(s.Logger, defaultRedactedHeaders))
	s.router.Use(NewCORSMiddleware(s.corsAllowedOrigins()))
	s.router.Use(s.MetricsMiddleware)
	s.router.Use(s.RateLimit)
	s.router.Use(s.CompressionMiddleware)
}

func (s *Server) requestTimeout() time.Duration {
	if s.Config.Server.RequestTimeout > 0 {
		return s.Config.Server.RequestTimeout
	}
	return defaultRequestTimeout
}

func (s *Server) corsAllowedOrigins() []string {
	if len(s.Config.Security.CorsAllowedOrigins) > 0 {
		return s.Config.Security.CorsAllowedOrigins
	}
	return []string{"*"}
}

// ContextTimeoutMiddleware sets a deadline on the request context.
func ContextTimeoutMiddleware(duration time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), duration)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CompressionMiddleware gzips responses for clients that accept it. It is a
// pass-through when compression is disabled in config.
func (s *Server) CompressionMiddleware(next http.Handler) http.Handler {
	if !s.Config.Server.CompressionEnabled {
		return next
	}
	return gzhttp.GzipHandler(next)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	Error(w, r, types.NewAppError(types.ErrCodeNotFoundRoute, "no route matches "+r.URL.Path, nil))
}

func (s *Server) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	Error(w, r, types.NewAppError(types.ErrCodeMethodNotAllowed, r.Method+" is not allowed on "+r.URL.Path, nil))
}
