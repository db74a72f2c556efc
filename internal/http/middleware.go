package httpapi

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/example/companion-matching/internal/observability"
)

const (
	headerRequestID = "X-Request-ID"
	// headerUserID carries the caller identity asserted by the fronting
	// gateway.
	headerUserID = "X-User-ID"
	maxUserIDLen = 128
)

type contextKey struct{}

// requestInfo travels with a request through the middleware chain. Handlers
// fill in what the access log should know about the outcome.
type requestInfo struct {
	RequestID string
	UserID    string
	// Degraded marks a meeting point built from estimates.
	Degraded bool
}

func (s *Server) registerMiddleware() {
	s.mux.Use(s.requestInfoMiddleware)
	s.mux.Use(s.observabilityMiddleware)
	s.mux.Use(s.recoverMiddleware)
}

// requestInfoMiddleware assigns the request ID and picks up the gateway
// identity. Both are echoed so a client can correlate its own logs.
func (s *Server) requestInfoMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info := &requestInfo{
			RequestID: strings.TrimSpace(r.Header.Get(headerRequestID)),
			UserID:    strings.TrimSpace(r.Header.Get(headerUserID)),
		}
		if info.RequestID == "" {
			info.RequestID = uuid.NewString()
		}
		if len(info.UserID) > maxUserIDLen {
			info.UserID = ""
		}
		w.Header().Set(headerRequestID, info.RequestID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, info)))
	})
}

func (s *Server) observabilityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		elapsed := time.Since(start)

		route, status := routeTemplate(r), strconv.Itoa(sw.status)
		observability.HTTPRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
		observability.HTTPRequestDuration.WithLabelValues(r.Method, route, status).Observe(elapsed.Seconds())

		args := []any{
			"method", r.Method,
			"route", route,
			"status", sw.status,
			"bytes", sw.bytes,
			"duration_ms", elapsed.Milliseconds(),
			"remote_addr", clientIP(r),
		}
		if info := infoFrom(r.Context()); info != nil {
			args = append(args, "request_id", info.RequestID)
			if info.UserID != "" {
				args = append(args, "user_id", info.UserID)
			}
			if info.Degraded {
				args = append(args, "degraded", true)
			}
		}
		s.logger.Info("http_request", args...)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", "error", rec, "route", routeTemplate(r), "request_id", requestID(r.Context()))
				s.writeJSON(w, r, http.StatusInternalServerError, envelope{Error: "internal error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

func infoFrom(ctx context.Context) *requestInfo {
	info, _ := ctx.Value(contextKey{}).(*requestInfo)
	return info
}

func requestID(ctx context.Context) string {
	if info := infoFrom(ctx); info != nil {
		return info.RequestID
	}
	return ""
}

// callerID is the gateway-asserted user, or "" outside the middleware.
func callerID(r *http.Request) string {
	if info := infoFrom(r.Context()); info != nil {
		return info.UserID
	}
	return ""
}

// markDegraded flags the request in the access log.
func markDegraded(r *http.Request, degraded bool) {
	if info := infoFrom(r.Context()); info != nil && degraded {
		info.Degraded = true
	}
}

func routeTemplate(r *http.Request) string {
	if current := mux.CurrentRoute(r); current != nil {
		if tmpl, err := current.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return r.URL.Path
}

// clientIP prefers the first X-Forwarded-For hop.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
