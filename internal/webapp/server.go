// Package webapp exposes the CRM board and import endpoints over HTTP.
package webapp

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/mux"

	"flatbot/internal/scraper"
	"flatbot/internal/storage"
)

// Server serves the CRM API.
type Server struct {
	store   storage.Storage
	scraper *scraper.Scraper
	// mu serializes URL imports against the scrape loop and the bot.
	mu  *sync.Mutex
	log *slog.Logger
}

// New creates a Server.
func New(store storage.Storage, sc *scraper.Scraper, mu *sync.Mutex, log *slog.Logger) *Server {
	return &Server{store: store, scraper: sc, mu: mu, log: log}
}

// Router returns the HTTP router with all API routes registered.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/listings", s.handleListGrouped).Methods(http.MethodGet)
	api.HandleFunc("/listings", s.handleCreate).Methods(http.MethodPost)
	api.HandleFunc("/listings/import-url", s.handleImportURL).Methods(http.MethodPost)
	api.HandleFunc("/listings/reorder/{stage}", s.handleReorder).Methods(http.MethodPost)
	api.HandleFunc("/listings/{id:[0-9]+}", s.handleGet).Methods(http.MethodGet)
	api.HandleFunc("/listings/{id:[0-9]+}", s.handleUpdate).Methods(http.MethodPut)
	api.HandleFunc("/listings/{id:[0-9]+}", s.handleDelete).Methods(http.MethodDelete)
	api.HandleFunc("/listings/{id:[0-9]+}/stage", s.handleUpdateStage).Methods(http.MethodPatch)
	api.HandleFunc("/webhook/telegram", s.handleWebhook).Methods(http.MethodPost)

	return r
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
