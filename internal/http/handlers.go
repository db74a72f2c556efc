package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/companion-matching/internal/matcher"
	"github.com/example/companion-matching/internal/models"
)

const (
	maxBodyBytes = 1 << 20
	readyTimeout = 2 * time.Second
)

// ReadyFunc reports whether backing services are reachable.
type ReadyFunc func(ctx context.Context) error

type Server struct {
	Matcher *matcher.Service
	Ready   ReadyFunc
	logger  *slog.Logger
	mux     *mux.Router
}

func NewServer(m *matcher.Service, ready ReadyFunc, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{Matcher: m, Ready: ready, logger: logger, mux: mux.NewRouter()}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.mux.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/intents", s.handleCreateIntent).Methods(http.MethodPost)
	api.HandleFunc("/companions/find", s.handleFindCompanions).Methods(http.MethodPost)
	api.HandleFunc("/meeting-point/suggest", s.handleSuggestMeetingPoint).Methods(http.MethodPost)
	api.HandleFunc("/meeting-point/refresh", s.handleRefreshMeetingPoint).Methods(http.MethodPost)
	api.HandleFunc("/maps/coordinates", s.handleCoordinates).Methods(http.MethodGet)
	api.HandleFunc("/maps/distance-time", s.handleDistanceTime).Methods(http.MethodGet)
	api.HandleFunc("/maps/autocomplete", s.handleAutocomplete).Methods(http.MethodGet)

	s.mux.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.mux.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet)
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

// envelope is the response body of every API route.
type envelope struct {
	Success bool   `json:"success"`
	Count   *int   `json:"count,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) handleCreateIntent(w http.ResponseWriter, r *http.Request) {
	var in models.TravelIntent
	if !s.decode(w, r, &in) {
		return
	}
	if in.UserID == "" {
		in.UserID = callerID(r)
	}
	created, err := s.Matcher.CreateIntent(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusCreated, envelope{Success: true, Data: created})
}

func (s *Server) handleFindCompanions(w http.ResponseWriter, r *http.Request) {
	var req matcher.FindRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.UserID == "" {
		req.UserID = callerID(r)
	}
	matches, err := s.Matcher.FindCandidates(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	n := len(matches)
	s.writeJSON(w, r, http.StatusOK, envelope{Success: true, Count: &n, Data: matches})
}

func (s *Server) handleSuggestMeetingPoint(w http.ResponseWriter, r *http.Request) {
	var req matcher.SuggestRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.UserID == "" {
		req.UserID = callerID(r)
	}
	res, err := s.Matcher.SuggestMeetingPoint(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	markDegraded(r, res.Degraded)
	s.writeJSON(w, r, http.StatusOK, envelope{Success: true, Data: res})
}

func (s *Server) handleRefreshMeetingPoint(w http.ResponseWriter, r *http.Request) {
	var req matcher.RefreshRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.Matcher.RefreshMeetingPoint(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	markDegraded(r, res.Degraded)
	s.writeJSON(w, r, http.StatusOK, envelope{Success: true, Data: res})
}

func (s *Server) handleCoordinates(w http.ResponseWriter, r *http.Request) {
	c, err := s.Matcher.Geocode(r.Context(), r.URL.Query().Get("address"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, envelope{Success: true, Data: c})
}

func (s *Server) handleDistanceTime(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	dt, err := s.Matcher.DistanceTime(r.Context(), q.Get("origin"), q.Get("destination"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, envelope{Success: true, Data: dt})
}

func (s *Server) handleAutocomplete(w http.ResponseWriter, r *http.Request) {
	out, err := s.Matcher.Autocomplete(r.Context(), r.URL.Query().Get("input"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	n := len(out)
	s.writeJSON(w, r, http.StatusOK, envelope{Success: true, Count: &n, Data: out})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()
		if err := s.Ready(ctx); err != nil {
			s.logger.Warn("not ready", "error", err.Error())
			http.Error(w, "store not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready"))
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, r, models.Invalid("", fmt.Sprintf("malformed JSON body: %v", err)))
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response failed", "method", r.Method, "path", r.URL.Path, "error", err.Error())
	}
}

// writeError maps validation failures to 400 and missing entities to 404.
// Anything else is logged and reported as a bare 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case models.IsValidation(err):
		s.writeJSON(w, r, http.StatusBadRequest, envelope{Error: err.Error()})
	case models.IsNotFound(err):
		s.writeJSON(w, r, http.StatusNotFound, envelope{Error: err.Error()})
	default:
		s.logger.Error("request failed", "route", routeTemplate(r), "request_id", requestID(r.Context()), "error", err.Error())
		s.writeJSON(w, r, http.StatusInternalServerError, envelope{Error: "internal error"})
	}
}
