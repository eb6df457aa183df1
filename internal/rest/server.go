// Package rest exposes the quarantine store to operators over HTTP: list
// held messages, inspect one, and approve or discard it.
package rest

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"quarantine-proxy/internal/store"
)

// Server is the operator-facing REST surface over a *store.Store.
type Server struct {
	store  *store.Store
	logger *slog.Logger
	mux    *http.ServeMux
}

// NewServer builds a REST server backed by st.
func NewServer(st *store.Store, logger *slog.Logger) *Server {
	s := &Server{store: st, logger: logger, mux: http.NewServeMux()}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /quarantine", s.handleList)
	s.mux.HandleFunc("GET /quarantine/{id}", s.handleGet)
	s.mux.HandleFunc("POST /quarantine/{id}/approve", s.handleApprove)
	s.mux.HandleFunc("POST /quarantine/{id}/delete", s.handleDelete)
}

// metaView is the held message's inspected metadata, nested under "meta"
// in the wire shape.
type metaView struct {
	Sender  string  `json:"sender"`
	Subject string  `json:"subject"`
	Amount  float64 `json:"amount"`
}

// recordView is the JSON shape returned for a single held record. Content
// is base64-encoded automatically by encoding/json since it is a []byte.
type recordView struct {
	ID      string   `json:"id"`
	Meta    metaView `json:"meta"`
	Content []byte   `json:"content"`
	Status  string   `json:"status"`
}

func toView(rec *store.Record) recordView {
	return recordView{
		ID: rec.ID,
		Meta: metaView{
			Sender:  rec.Meta.Sender,
			Subject: rec.Meta.Subject,
			Amount:  rec.Meta.Amount,
		},
		Content: rec.Content,
		Status:  string(rec.Status),
	}
}

// handleList returns every held record keyed by id, per the documented
// "mapping id -> {...}" wire contract.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	records := s.store.List()
	views := make(map[string]recordView, len(records))
	for _, rec := range records {
		views[rec.ID] = toView(rec)
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, err := s.store.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, toView(rec))
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, err := s.store.Approve(id)
	if err != nil {
		s.writeTransitionError(w, err)
		return
	}
	s.logger.Info("quarantine approved", "id", id)
	writeJSON(w, http.StatusOK, toView(rec))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, err := s.store.Delete(id)
	if err != nil {
		s.writeTransitionError(w, err)
		return
	}
	s.logger.Info("quarantine deleted", "id", id)
	writeJSON(w, http.StatusOK, toView(rec))
}

func (s *Server) writeTransitionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, store.ErrNotHeld):
		writeError(w, http.StatusConflict, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
