package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ovaphlow/cinelog/service-core-go/internal/session"
	"github.com/ovaphlow/cinelog/service-core-go/internal/user"
)

// loggingResponseWriter wraps http.ResponseWriter to capture status and size.
type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.status = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	if lrw.status == 0 {
		lrw.status = http.StatusOK
	}
	n, err := lrw.ResponseWriter.Write(b)
	lrw.size += n
	return n, err
}

// LoggingMiddleware logs every request at debug level. Cookies and
// Authorization headers are never logged.
func LoggingMiddleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lrw := &loggingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(lrw, r)
			status := lrw.status
			if status == 0 {
				status = http.StatusOK
			}
			logger.Debugw("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
				"status", status,
				"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
				"size", lrw.size,
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

// SecurityHeadersMiddleware sets common HTTP security headers.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "no-referrer-when-downgrade")
			w.Header().Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			if w.Header().Get("Content-Security-Policy") == "" {
				w.Header().Set("Content-Security-Policy", "default-src 'self'; object-src 'none'; base-uri 'self';")
			}
			// auth responses carry tokens
			w.Header().Set("Cache-Control", "no-store")
			if r.TLS != nil {
				w.Header().Set("Strict-Transport-Security", "max-age=2592000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CORSMiddleware echoes allow-listed origins with credentials enabled, since
// the auth tokens travel as cookies. Preflight requests end here.
func CORSMiddleware(origins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if _, ok := allowed[origin]; ok {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Deps is everything the router mounts.
type Deps struct {
	Users          *user.Handler
	Sessions       *session.Handler
	Metrics        http.Handler
	AllowedOrigins []string
}

// RegisterRoutes builds the chi router for the auth API.
func RegisterRoutes(logger *zap.SugaredLogger, d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(SecurityHeadersMiddleware())
	r.Use(CORSMiddleware(d.AllowedOrigins))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", d.Users.Register)
		r.Post("/auth/login", d.Sessions.Login)
		r.Post("/auth/logout", d.Sessions.Logout)
		r.Post("/auth/refresh", d.Sessions.Refresh)

		r.Group(func(r chi.Router) {
			r.Use(d.Sessions.RequireAuth)
			r.Get("/auth/me", d.Users.Me)
			r.Get("/sessions", d.Sessions.ListSessions)
			r.Delete("/sessions/{id}", d.Sessions.TerminateSession)
		})
	})
	return r
}
