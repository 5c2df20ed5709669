package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/lunavale/mnemo/internal/service"
	"github.com/lunavale/mnemo/pkg/memory"
)

// apiServer is the thin JSON transport over the memory service. Route
// definitions live here and nowhere else; all behaviour belongs to the
// service layer.
type apiServer struct {
	svc    *service.Service
	logger *slog.Logger
}

func newAPIServer(svc *service.Service, logger *slog.Logger) *apiServer {
	return &apiServer{svc: svc, logger: logger}
}

func (s *apiServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/turns", s.handleSaveTurn)
	mux.HandleFunc("POST /api/retrieve", s.handleRetrieve)
	mux.HandleFunc("GET /api/history/{user_id}", s.handleHistory)
	mux.HandleFunc("POST /api/rollup/{kind}", s.handleRollup)
	mux.HandleFunc("DELETE /api/memory/{user_id}", s.handleErase)
	return mux
}

// serve runs the API server until ctx is cancelled, then shuts it down
// gracefully.
func (s *apiServer) serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.logger.Info("api server listening", "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

type saveTurnRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	Text   string `json:"text"`
}

func (s *apiServer) handleSaveTurn(w http.ResponseWriter, r *http.Request) {
	var req saveTurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.UserID == "" || req.Text == "" {
		writeError(w, http.StatusBadRequest, "user_id and text are required")
		return
	}
	role := req.Role
	if role == "" {
		role = memory.RoleUser
	}
	if err := s.svc.SaveTurn(r.Context(), req.UserID, role, req.Text); err != nil {
		s.logger.Error("save turn failed", "user_id", req.UserID, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to save turn")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "ok"})
}

type retrieveRequest struct {
	UserID string `json:"user_id"`
	Query  string `json:"query"`
}

func (s *apiServer) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	var req retrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	// Degraded dependencies yield fewer memories, never an HTTP error.
	memories := s.svc.RetrieveContext(r.Context(), req.UserID, req.Query)
	writeJSON(w, http.StatusOK, map[string]any{"memories": memories})
}

type historyEntry struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

func (s *apiServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	turns, err := s.svc.RecentHistory(r.Context(), userID, 20)
	if err != nil {
		s.logger.Error("history read failed", "user_id", userID, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to read history")
		return
	}
	out := make([]historyEntry, 0, len(turns))
	for _, t := range turns {
		out = append(out, historyEntry{
			Role:      t.Role,
			Content:   t.Text,
			Timestamp: t.Timestamp.Format(time.DateTime),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *apiServer) handleRollup(w http.ResponseWriter, r *http.Request) {
	kind := memory.SummaryKind(r.PathValue("kind"))
	if !kind.IsValid() {
		writeError(w, http.StatusBadRequest, "kind must be week, month, or year")
		return
	}
	if err := s.svc.RunRollup(r.Context(), kind); err != nil {
		s.logger.Error("rollup failed", "kind", kind, "err", err)
		writeError(w, http.StatusInternalServerError, "rollup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *apiServer) handleErase(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	if err := s.svc.EraseUser(r.Context(), userID); err != nil {
		s.logger.Error("erase failed", "user_id", userID, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to erase user memory")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("response encode failed", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
