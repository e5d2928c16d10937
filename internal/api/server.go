// Package api exposes the thin read-side lookup surface over the
// persisted email documents.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nhle/onebox/internal/model"
	"github.com/nhle/onebox/internal/store"
)

const defaultSearchLimit = 100

// Server serves the read API: a health probe and email search.
type Server struct {
	bind   string
	store  store.Store
	logger *slog.Logger

	listener net.Listener
	server   *http.Server
}

// NewServer builds the read API server. Returns nil when no bind address
// is configured.
func NewServer(cfg model.APIConfig, st store.Store, logger *slog.Logger) *Server {
	bind := strings.TrimSpace(cfg.Bind)
	if bind == "" {
		return nil
	}

	srv := &Server{
		bind:   bind,
		store:  st,
		logger: logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", srv.handleHealth)
	mux.HandleFunc("/emails", srv.handleEmails)
	mux.HandleFunc("/notifications", srv.handleNotifications)

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

// Start begins serving and arranges shutdown when ctx is done.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", slog.String("error", err.Error()))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", slog.String("address", listener.Addr().String()))
	return nil
}

// Stop shuts the server down.
func (s *Server) Stop() {
	if s == nil || s.server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
}

// Handler returns the HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("OK"))
}

// handleEmails serves GET /emails?q=&account=&folder=&label=&limit=&offset=.
func (s *Server) handleEmails(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	filter := store.EmailFilter{Limit: defaultSearchLimit}

	params := r.URL.Query()
	if q := params.Get("q"); q != "" && q != "*" {
		filter.Query = &q
	}
	if account := params.Get("account"); account != "" {
		filter.Account = &account
	}
	if folder := params.Get("folder"); folder != "" {
		filter.Folder = &folder
	}
	if label := params.Get("label"); label != "" {
		filter.Label = &label
	}
	if raw := params.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = limit
	}
	if raw := params.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid offset")
			return
		}
		filter.Offset = offset
	}

	docs, err := s.store.SearchEmails(r.Context(), filter)
	if err != nil {
		s.logger.Error("email search failed", slog.String("error", err.Error()))
		s.writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	if docs == nil {
		docs = []model.EmailDocument{}
	}

	s.writeJSON(w, http.StatusOK, docs)
}

// handleNotifications serves GET /notifications?limit=.
func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	limit := defaultSearchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	notifications, err := s.store.GetNotifications(r.Context(), limit)
	if err != nil {
		s.logger.Error("notification query failed", slog.String("error", err.Error()))
		s.writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if notifications == nil {
		notifications = []model.Notification{}
	}

	s.writeJSON(w, http.StatusOK, notifications)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encoding response", slog.String("error", err.Error()))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
