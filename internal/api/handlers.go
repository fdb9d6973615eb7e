// Package api provides HTTP API handlers.
package api

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/eventparse/chrono/internal/cache"
	"github.com/eventparse/chrono/internal/config"
	"github.com/eventparse/chrono/internal/database"
	"github.com/eventparse/chrono/internal/ics"
	"github.com/eventparse/chrono/internal/llm"
	"github.com/eventparse/chrono/internal/models"
	"github.com/eventparse/chrono/internal/pipeline"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Handler contains all HTTP handlers.
type Handler struct {
	cfg      *config.Config
	orch     *pipeline.Orchestrator
	cache    *cache.Cache
	store    database.Store
	provider llm.Provider
}

// NewHandler creates a new handler.
func NewHandler(cfg *config.Config, orch *pipeline.Orchestrator, c *cache.Cache, store database.Store, provider llm.Provider) *Handler {
	return &Handler{
		cfg:      cfg,
		orch:     orch,
		cache:    c,
		store:    store,
		provider: provider,
	}
}

// HealthCheck returns the service health status, including whether the
// semantic backend is reachable.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	semantic := "disabled"
	if h.provider != nil {
		if h.provider.Available(r.Context()) {
			semantic = "available"
		} else {
			semantic = "unavailable"
		}
	}

	response := map[string]interface{}{
		"status":    "healthy",
		"version":   "1.0.0",
		"semantic":  semantic,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	writeJSON(w, http.StatusOK, response)
}

// ParseText handles event extraction requests.
func (h *Handler) ParseText(w http.ResponseWriter, r *http.Request) {
	var req models.ParseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "Text is required")
		return
	}
	if max := h.cfg.Server.MaxTextSize; max > 0 && len(req.Text) > max {
		writeError(w, http.StatusRequestEntityTooLarge, "Text exceeds maximum size")
		return
	}
	if req.Mode != "" && !validMode(req.Mode) {
		writeError(w, http.StatusBadRequest, "Invalid mode")
		return
	}

	resp := h.orch.Parse(r.Context(), req)
	writeJSON(w, http.StatusOK, resp)
}

// RenderICS renders a parsed event as an iCalendar document. The body is
// either {"event": {...}} for a pre-parsed event or {"text": "..."} to
// parse and render in one call.
func (h *Handler) RenderICS(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Event *models.ParsedEvent `json:"event,omitempty"`
		models.ParseRequest
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	event := req.Event
	if event == nil {
		if req.Text == "" {
			writeError(w, http.StatusBadRequest, "Either event or text is required")
			return
		}
		resp := h.orch.Parse(r.Context(), req.ParseRequest)
		event = &resp.Event
	}

	if event.Start == nil {
		writeError(w, http.StatusUnprocessableEntity, "Event has no start time")
		return
	}

	doc := ics.Render([]models.ParsedEvent{*event}, time.Now())
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="event.ics"`)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(doc))
}

// CacheStats returns hit/miss counters and entry count for the result cache.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.cache.Stats())
}

// CacheCleanup evicts expired entries and reports how many were removed.
func (h *Handler) CacheCleanup(w http.ResponseWriter, r *http.Request) {
	removed := h.cache.CleanupExpired()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"removed": removed,
	})
}

// GetAuditLogs returns paginated audit logs.
func (h *Handler) GetAuditLogs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}

	logs, err := h.store.GetAuditLogs(r.Context(), limit, offset)
	if err != nil {
		log.Error().Err(err).Msg("Failed to get audit logs")
		writeError(w, http.StatusInternalServerError, "Failed to get audit logs")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"logs":   logs,
		"limit":  limit,
		"offset": offset,
	})
}

// CreateAPIKey creates a new API key.
func (h *Handler) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name              string `json:"name"`
		RequestsPerMinute int    `json:"requests_per_minute"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Name is required")
		return
	}

	// Generate random API key
	keyBytes := make([]byte, 32)
	if _, err := rand.Read(keyBytes); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to generate key")
		return
	}
	rawKey := "chr_" + base64.URLEncoding.EncodeToString(keyBytes)

	// Hash for storage
	hash := sha256.Sum256([]byte(rawKey))
	keyHash := hex.EncodeToString(hash[:])

	if req.RequestsPerMinute <= 0 {
		req.RequestsPerMinute = 60
	}

	apiKey := &models.APIKey{
		ID:                uuid.New().String(),
		KeyHash:           keyHash,
		Name:              req.Name,
		RequestsPerMinute: req.RequestsPerMinute,
		CreatedAt:         time.Now(),
	}

	if err := h.store.CreateAPIKey(r.Context(), apiKey); err != nil {
		log.Error().Err(err).Msg("Failed to create API key")
		writeError(w, http.StatusInternalServerError, "Failed to create API key")
		return
	}

	// Return the raw key only once
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":                  apiKey.ID,
		"key":                 rawKey, // Only returned on creation
		"name":                apiKey.Name,
		"requests_per_minute": apiKey.RequestsPerMinute,
		"created_at":          apiKey.CreatedAt,
	})
}

// ListAPIKeys lists all API keys (without the actual keys).
func (h *Handler) ListAPIKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.store.ListAPIKeys(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list API keys")
		writeError(w, http.StatusInternalServerError, "Failed to list API keys")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"keys": keys,
	})
}

// DeleteAPIKey deletes an API key.
func (h *Handler) DeleteAPIKey(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "ID is required")
		return
	}

	if err := h.store.DeleteAPIKey(r.Context(), id); err != nil {
		log.Error().Err(err).Msg("Failed to delete API key")
		writeError(w, http.StatusInternalServerError, "Failed to delete API key")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func validMode(m models.ParseMode) bool {
	switch m {
	case models.ModeHybrid, models.ModePatternOnly, models.ModeSemanticOnly:
		return true
	}
	return false
}

// Helper functions
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
