// Package api exposes the directory management surface of the phonebook
// platform: sites, their field definitions, phonebooks and entries. The
// entitlement lifecycle is a Go API (vendors.EntitlementService) consumed
// by the embedding application, not an HTTP surface.
package api

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/triarom/voip-phonebook-go/internal/models"
	"github.com/triarom/voip-phonebook-go/internal/store"
)

// Router serves the directory management API. All routes require the
// platform API key; vendor connectors never talk to this surface.
type Router struct {
	store  *store.Store
	apiKey string
	logger zerolog.Logger
}

func NewRouter(st *store.Store, apiKey string, logger zerolog.Logger) *Router {
	return &Router{
		store:  st,
		apiKey: apiKey,
		logger: logger.With().Str("component", "api").Logger(),
	}
}

// Register mounts the management routes on mux.
func (r *Router) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/sites", r.auth(r.handleCreateSite))
	mux.HandleFunc("GET /api/sites/{id}/fields", r.auth(r.handleListFields))
	mux.HandleFunc("POST /api/sites/{id}/fields", r.auth(r.handleCreateField))
	mux.HandleFunc("GET /api/sites/{id}/phonebooks", r.auth(r.handleListPhonebooks))
	mux.HandleFunc("POST /api/sites/{id}/phonebooks", r.auth(r.handleCreatePhonebook))
	mux.HandleFunc("GET /api/phonebooks/{id}/entries", r.auth(r.handleListEntries))
	mux.HandleFunc("POST /api/phonebooks/{id}/entries", r.auth(r.handleAddEntry))
	mux.HandleFunc("GET /api/services", r.auth(r.handleListServices))
}

func (r *Router) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if r.apiKey == "" {
			http.Error(w, "management API disabled", http.StatusServiceUnavailable)
			return
		}
		key := req.Header.Get("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(key), []byte(r.apiKey)) != 1 {
			http.Error(w, "invalid API key", http.StatusUnauthorized)
			return
		}
		next(w, req)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (r *Router) fail(w http.ResponseWriter, err error) {
	r.logger.Error().Err(err).Msg("Management API request failed")
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

func (r *Router) handleCreateSite(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}
	site, err := r.store.CreateSite(body.Name)
	if err != nil {
		r.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, site)
}

func (r *Router) handleListFields(w http.ResponseWriter, req *http.Request) {
	fields, err := r.store.FieldsForSite(req.PathValue("id"))
	if err != nil {
		r.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fields)
}

func (r *Router) handleCreateField(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Name     string `json:"name"`
		Type     string `json:"type"`
		Required bool   `json:"required"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}
	if body.Type == "" {
		body.Type = "text"
	}
	field, err := r.store.CreateField(req.PathValue("id"), body.Name, body.Type, body.Required)
	if err != nil {
		r.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, field)
}

func (r *Router) handleListPhonebooks(w http.ResponseWriter, req *http.Request) {
	books, err := r.store.PhonebooksForSite(req.PathValue("id"))
	if err != nil {
		r.fail(w, err)
		return
	}
	if books == nil {
		books = []models.Phonebook{}
	}
	writeJSON(w, http.StatusOK, books)
}

func (r *Router) handleCreatePhonebook(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}
	book, err := r.store.CreatePhonebook(req.PathValue("id"), body.Name)
	if err != nil {
		r.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, book)
}

func (r *Router) handleListEntries(w http.ResponseWriter, req *http.Request) {
	entries, err := r.store.EntriesForPhonebook(req.PathValue("id"))
	if err != nil {
		r.fail(w, err)
		return
	}
	if entries == nil {
		entries = []models.PhonebookEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (r *Router) handleAddEntry(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Values map[string]string `json:"values"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil || len(body.Values) == 0 {
		http.Error(w, "values are required", http.StatusBadRequest)
		return
	}
	entry, err := r.store.AddEntry(req.PathValue("id"), body.Values)
	if err != nil {
		r.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (r *Router) handleListServices(w http.ResponseWriter, req *http.Request) {
	services, err := r.store.ListServices()
	if err != nil {
		r.fail(w, err)
		return
	}
	if services == nil {
		services = []*models.VendorService{}
	}
	writeJSON(w, http.StatusOK, services)
}
