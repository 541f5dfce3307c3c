package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/sp18-himanshu-chauhan2/trendsage/internal/store"
)

// Enqueuer schedules background ingestion for a query. Enqueue reports
// whether the job was accepted.
type Enqueuer interface {
	Enqueue(queryID string) bool
}

// Server provides the HTTP API.
type Server struct {
	store      store.Store
	dispatcher Enqueuer
	router     chi.Router
	port       int
}

// New creates a new HTTP server.
func New(s store.Store, dispatcher Enqueuer, port int, corsOrigins []string) *Server {
	if port == 0 {
		port = 8080
	}
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	srv := &Server{store: s, dispatcher: dispatcher, port: port}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", srv.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/queries", srv.handleCreateQuery)
		r.Get("/queries/{id}", srv.handleGetQuery)
		r.Get("/queries/{id}/results", srv.handleListResults)
		r.Post("/queries/{id}/subscriptions", srv.handleSubscribe)
		r.Delete("/queries/{id}/subscriptions/{subID}", srv.handleUnsubscribe)
		r.Get("/trends", srv.handleTrends)
	})
	srv.router = r

	return srv
}

// Router exposes the handler tree.
func (s *Server) Router() http.Handler {
	return s.router
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf(":%d", s.port)
	slog.Info("http server listening", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createQueryRequest struct {
	Industry  string `json:"industry"`
	Region    string `json:"region"`
	Persona   string `json:"persona"`
	DateRange string `json:"date_range"`
}

func (s *Server) handleCreateQuery(w http.ResponseWriter, r *http.Request) {
	var req createQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if req.Industry == "" || req.Region == "" || req.Persona == "" || req.DateRange == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "all parameters (industry, region, persona, date_range) are required",
		})
		return
	}

	q := &store.TrendQuery{
		ID:        uuid.NewString(),
		Industry:  req.Industry,
		Region:    req.Region,
		Persona:   req.Persona,
		DateRange: req.DateRange,
		Status:    store.StatusPending,
	}
	if err := s.store.CreateQuery(r.Context(), q); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	if !s.dispatcher.Enqueue(q.ID) {
		if err := s.store.SetQueryStatus(r.Context(), q.ID, store.StatusFailed); err != nil {
			slog.Error("mark rejected query failed", "query_id", q.ID, "error", err)
		}
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "ingestion queue is full, try again later",
		})
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message":  "trend query created, processing started",
		"query_id": q.ID,
		"status":   q.Status,
	})
}

func (s *Server) handleGetQuery(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	q, err := s.store.GetQuery(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "query not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	resp := map[string]any{
		"id":         q.ID,
		"industry":   q.Industry,
		"region":     q.Region,
		"persona":    q.Persona,
		"date_range": q.DateRange,
		"status":     q.Status,
		"created_at": q.CreatedAt,
		"updated_at": q.UpdatedAt,
	}

	switch q.Status {
	case store.StatusPending, store.StatusRunning:
		resp["detail"] = "not ready yet"
	case store.StatusFailed:
		resp["detail"] = "failed, please retry"
	case store.StatusCompleted:
		latest, err := s.store.MaxVersion(r.Context(), q.ID)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		results, err := s.store.ListResults(r.Context(), q.ID, latest)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		resp["results"] = results
		resp["latest_version"] = latest
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListResults(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := s.store.GetQuery(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "query not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	version := 0
	if v := r.URL.Query().Get("version"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "version must be a positive integer"})
			return
		}
		version = parsed
	} else {
		latest, err := s.store.MaxVersion(r.Context(), id)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		version = latest
	}

	var results []store.TrendResult
	if version > 0 {
		var err error
		results, err = s.store.ListResults(r.Context(), id, version)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"query_id": id,
		"version":  version,
		"results":  results,
		"count":    len(results),
	})
}

func (s *Server) handleTrends(w http.ResponseWriter, r *http.Request) {
	params := store.QueryParams{
		Industry:  r.URL.Query().Get("industry"),
		Region:    r.URL.Query().Get("region"),
		Persona:   r.URL.Query().Get("persona"),
		DateRange: r.URL.Query().Get("date_range"),
	}
	if params.Industry == "" || params.Region == "" || params.Persona == "" || params.DateRange == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "all parameters (industry, region, persona, date_range) are required",
		})
		return
	}

	q, err := s.store.FindLatestCompleted(r.Context(), params)
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusOK, map[string]any{"data": []store.TrendResult{}, "count": 0})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	latest, err := s.store.MaxVersion(r.Context(), q.ID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	results, err := s.store.ListResults(r.Context(), q.ID, latest)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"query_id": q.ID,
		"version":  latest,
		"data":     results,
		"count":    len(results),
	})
}

type subscribeRequest struct {
	Email string `json:"email"`
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := s.store.GetQuery(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "query not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "email is required"})
		return
	}

	sub := &store.Subscription{
		ID:      uuid.NewString(),
		QueryID: id,
		Email:   req.Email,
		Active:  true,
	}
	if err := s.store.CreateSubscription(r.Context(), sub); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusCreated, sub)
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	subID := chi.URLParam(r, "subID")

	err := s.store.DeactivateSubscription(r.Context(), subID)
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "subscription not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
