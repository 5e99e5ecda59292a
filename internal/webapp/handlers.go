package webapp

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"flatbot/internal/model"
	"flatbot/internal/scraper"
	"flatbot/internal/storage"
)

// listingPayload is the request body for creating listings, shared by the
// manual-create and webhook endpoints.
type listingPayload struct {
	Title        string  `json:"title"`
	Price        string  `json:"price"`
	PriceValue   float64 `json:"price_value"`
	Rooms        string  `json:"rooms"`
	Size         string  `json:"size"`
	Floor        string  `json:"floor"`
	Description  string  `json:"description"`
	Thumbnail    string  `json:"thumbnail"`
	IdealistaURL string  `json:"idealista_url"`
	Notes        string  `json:"notes"`
	Priority     int     `json:"priority"`
	Stage        string  `json:"stage"`
	Source       string  `json:"source"`
}

func (p listingPayload) record() model.Listing {
	return model.Listing{
		Title:        p.Title,
		Price:        p.Price,
		PriceValue:   p.PriceValue,
		Rooms:        p.Rooms,
		Size:         p.Size,
		Floor:        p.Floor,
		Description:  p.Description,
		Thumbnail:    p.Thumbnail,
		IdealistaURL: scraper.NormalizeURL(p.IdealistaURL),
		Notes:        p.Notes,
		Priority:     p.Priority,
		Stage:        model.Stage(p.Stage),
		Source:       model.Source(p.Source),
	}
}

func (s *Server) handleListGrouped(w http.ResponseWriter, r *http.Request) {
	grouped, err := s.store.ListGroupedByStage(r.Context())
	if err != nil {
		s.log.Error("list listings", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list listings")
		return
	}
	s.writeJSON(w, http.StatusOK, grouped)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)

	listing, err := s.store.GetListing(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "listing not found")
		return
	}
	if err != nil {
		s.log.Error("get listing", "id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load listing")
		return
	}
	s.writeJSON(w, http.StatusOK, listing)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var payload listingPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.Title == "" {
		s.writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	rec := payload.record()
	if rec.IdealistaURL != "" {
		if existing, err := s.store.GetListingByURL(r.Context(), rec.IdealistaURL); err == nil {
			s.writeJSON(w, http.StatusConflict, map[string]any{
				"error": "listing with this URL already exists",
				"id":    existing.ID,
			})
			return
		}
	}

	if err := s.store.CreateListing(r.Context(), &rec); err != nil {
		if errors.Is(err, storage.ErrInvalidStage) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.log.Error("create listing", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to create listing")
		return
	}
	s.writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)

	var patch model.ListingPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	listing, err := s.store.UpdateListing(r.Context(), id, patch)
	if errors.Is(err, storage.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "listing not found")
		return
	}
	if err != nil {
		s.log.Error("update listing", "id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to update listing")
		return
	}
	s.writeJSON(w, http.StatusOK, listing)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)

	err := s.store.DeleteListing(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "listing not found")
		return
	}
	if err != nil {
		s.log.Error("delete listing", "id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to delete listing")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "deleted", "id": id})
}

func (s *Server) handleUpdateStage(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)

	var req struct {
		Stage    string `json:"stage"`
		Position int    `json:"position"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	listing, err := s.store.UpdateStage(r.Context(), id, model.Stage(req.Stage), req.Position)
	switch {
	case errors.Is(err, storage.ErrInvalidStage):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "listing not found")
	case err != nil:
		s.log.Error("update stage", "id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to update stage")
	default:
		s.writeJSON(w, http.StatusOK, listing)
	}
}

func (s *Server) handleReorder(w http.ResponseWriter, r *http.Request) {
	stage := model.Stage(mux.Vars(r)["stage"])

	var req struct {
		CardIDs []int64 `json:"card_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := s.store.ReorderColumn(r.Context(), stage, req.CardIDs)
	if errors.Is(err, storage.ErrInvalidStage) {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.log.Error("reorder column", "stage", stage, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to reorder column")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "reordered", "stage": stage})
}

func (s *Server) handleImportURL(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		s.writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	url := scraper.NormalizeURL(req.URL)
	if existing, err := s.store.GetListingByURL(r.Context(), url); err == nil {
		s.writeJSON(w, http.StatusConflict, map[string]any{
			"error": "listing already exists",
			"id":    existing.ID,
		})
		return
	}

	// Imports fetch the listing page, so they take the shared lock like any
	// other scraping trigger.
	s.mu.Lock()
	defer s.mu.Unlock()

	scraped, err := s.scraper.ScrapeListing(r.Context(), url)
	if err != nil {
		s.log.Error("import url", "url", url, "error", err)
		s.writeError(w, http.StatusBadGateway, "failed to parse listing URL")
		return
	}

	rec := scraped.Record()
	rec.Stage = model.StageToBeCommunicated
	rec.Source = model.SourceURLImport
	if err := s.store.CreateListing(r.Context(), &rec); err != nil {
		s.log.Error("create imported listing", "url", url, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to save listing")
		return
	}
	s.writeJSON(w, http.StatusCreated, rec)
}

// handleWebhook receives listings pushed by external chat integrations. It
// deliberately bypasses the seen-set: a webhook represents explicit human
// action, not fresh-scrape discovery.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var payload listingPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.Title == "" {
		s.writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	rec := payload.record()
	if rec.Source == "" {
		rec.Source = model.SourceTelegram
	}

	if rec.IdealistaURL != "" {
		if existing, err := s.store.GetListingByURL(r.Context(), rec.IdealistaURL); err == nil {
			s.writeJSON(w, http.StatusOK, map[string]any{"status": "duplicate", "id": existing.ID})
			return
		}
	}

	if err := s.store.CreateListing(r.Context(), &rec); err != nil {
		s.log.Error("webhook create", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to save listing")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "created", "id": rec.ID})
}
