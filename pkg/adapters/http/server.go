// Package http serves the operational endpoints of a tsw daemon: health,
// Prometheus metrics, a read-only view of instances and their events, and a
// server-sent event stream of instance snapshots.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aretw0/tsw/internal/logging"
	"github.com/aretw0/tsw/pkg/domain"
	"github.com/aretw0/tsw/pkg/instances"
	"github.com/aretw0/tsw/pkg/ports"
)

// DefaultEventLimit caps /instances/{id}/events when no limit is given.
const DefaultEventLimit = 100

// Server holds the dependencies of the handlers.
type Server struct {
	store    ports.InstanceStore
	hub      *instances.Hub
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithHub enables GET /instances/{id}/stream.
func WithHub(h *instances.Hub) Option {
	return func(s *Server) {
		s.hub = h
	}
}

// WithGatherer sets the metrics source. Defaults to prometheus.DefaultGatherer.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewHandler creates the HTTP handler.
func NewHandler(store ports.InstanceStore, opts ...Option) http.Handler {
	s := &Server{
		store:    store,
		gatherer: prometheus.DefaultGatherer,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Get("/healthz", s.GetHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	r.Route("/instances", func(r chi.Router) {
		r.Get("/", s.ListInstances)
		r.Get("/{id}", s.GetInstance)
		r.Get("/{id}/events", s.ListEvents)
		if s.hub != nil {
			r.Get("/{id}/stream", s.StreamInstance)
		}
	})
	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetHealth handles GET /healthz.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListInstances handles GET /instances. The optional host query parameter
// restricts the list to one host.
func (s *Server) ListInstances(w http.ResponseWriter, r *http.Request) {
	var (
		list []*domain.Instance
		err  error
	)
	if host := r.URL.Query().Get("host"); host != "" {
		list, err = s.store.ListByHost(r.Context(), host)
	} else {
		list, err = s.store.List(r.Context())
	}
	if err != nil {
		s.fail(w, err)
		return
	}
	out := make([]*domain.Instance, 0, len(list))
	for _, inst := range list {
		out = append(out, inst.Public())
	}
	s.writeJSON(w, http.StatusOK, out)
}

// GetInstance handles GET /instances/{id}.
func (s *Server) GetInstance(w http.ResponseWriter, r *http.Request) {
	inst, err := s.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, inst.Public())
}

// ListEvents handles GET /instances/{id}/events?limit=N.
func (s *Server) ListEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	limit := DefaultEventLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	if _, err := s.store.Get(r.Context(), id); err != nil {
		s.fail(w, err)
		return
	}
	events, err := s.store.Events(r.Context(), id, limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	if events == nil {
		events = []*domain.Event{}
	}
	s.writeJSON(w, http.StatusOK, events)
}

// StreamInstance handles GET /instances/{id}/stream (SSE). The current record
// is sent first, then every published snapshot until the client disconnects.
func (s *Server) StreamInstance(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}
	id := chi.URLParam(r, "id")

	// Subscribe before loading so no snapshot falls between the two.
	sub := s.hub.SubscribeTopic(id)
	defer sub.Close()

	inst, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	if err := writeSnapshot(w, inst); err != nil {
		return
	}
	flusher.Flush()
	s.logger.Debug("SSE client connected", "instance_id", id)

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("SSE client disconnected", "instance_id", id)
			return
		case <-sub.Done():
			return
		case snap := <-sub.C():
			if err := writeSnapshot(w, snap); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSnapshot(w http.ResponseWriter, inst *domain.Instance) error {
	data, err := json.Marshal(inst.Public())
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: instance\ndata: %s\n\n", data)
	return err
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrInstanceNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	s.logger.Error("Request failed", "err", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("Failed to encode response", "err", err)
	}
}
