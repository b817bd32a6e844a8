// Package handlers provides HTTP handlers for the kline cache.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/aristath/klinecache/internal/modules/kline"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler handles kline cache HTTP requests
type Handler struct {
	manager *kline.Manager
	log     zerolog.Logger
}

// NewHandler creates a new kline handler
func NewHandler(manager *kline.Manager, log zerolog.Logger) *Handler {
	return &Handler{
		manager: manager,
		log:     log.With().Str("handler", "kline").Logger(),
	}
}

// WriteBarsRequest represents a request to write bars for a symbol
type WriteBarsRequest struct {
	// Mode is "replace" (full per-symbol overwrite) or "merge" (keyed upsert).
	Mode string      `json:"mode"`
	Bars []kline.Bar `json:"bars"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}

func envelope(data interface{}) map[string]interface{} {
	return map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}
}

// parseGranularityParam reads and validates the {granularity} URL parameter.
// Writes a 400 response and returns false when the token is unsupported.
func (h *Handler) parseGranularityParam(w http.ResponseWriter, r *http.Request) (kline.Granularity, bool) {
	g, err := kline.ParseGranularity(chi.URLParam(r, "granularity"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return "", false
	}
	return g, true
}

func countParam(r *http.Request, fallback int) int {
	if v := r.URL.Query().Get("count"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

// HandleGetBars handles GET /api/kline/{granularity}/{symbol}?count=N
func (h *Handler) HandleGetBars(w http.ResponseWriter, r *http.Request) {
	g, ok := h.parseGranularityParam(w, r)
	if !ok {
		return
	}
	symbol := chi.URLParam(r, "symbol")
	count := countParam(r, 100)

	bars, ok := h.manager.GetCached(symbol, g, count)
	if !ok {
		// A miss is data, not an error condition: no fresh bars cached.
		h.writeJSON(w, http.StatusNotFound, envelope(map[string]interface{}{
			"symbol":      symbol,
			"granularity": string(g),
			"bars":        []kline.Bar{},
		}))
		return
	}

	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"symbol":      symbol,
		"granularity": string(g),
		"bars":        bars,
		"count":       len(bars),
	}))
}

// HandleWriteBars handles POST /api/kline/{granularity}/{symbol}
func (h *Handler) HandleWriteBars(w http.ResponseWriter, r *http.Request) {
	g, ok := h.parseGranularityParam(w, r)
	if !ok {
		return
	}
	symbol := chi.URLParam(r, "symbol")

	var req WriteBarsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var err error
	switch req.Mode {
	case "", "merge":
		err = h.manager.MergeUpdate(symbol, g, req.Bars)
	case "replace":
		err = h.manager.Put(symbol, g, req.Bars)
	default:
		http.Error(w, "mode must be \"replace\" or \"merge\"", http.StatusBadRequest)
		return
	}

	if err != nil {
		h.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to write bars")
		http.Error(w, "Failed to write bars", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"symbol":      symbol,
		"granularity": string(g),
		"received":    len(req.Bars),
	}))
}

// HandleMissingRanges handles GET /api/kline/{granularity}/{symbol}/missing-ranges?count=N
func (h *Handler) HandleMissingRanges(w http.ResponseWriter, r *http.Request) {
	g, ok := h.parseGranularityParam(w, r)
	if !ok {
		return
	}
	symbol := chi.URLParam(r, "symbol")
	count := countParam(r, 100)

	ranges := h.manager.AnalyzeMissingRanges(symbol, g, count)
	if ranges == nil {
		ranges = []kline.TimeRange{}
	}

	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"symbol":      symbol,
		"granularity": string(g),
		"ranges":      ranges,
	}))
}

// HandleClear handles DELETE /api/kline?symbol=&granularity=
func (h *Handler) HandleClear(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")

	var g kline.Granularity
	if token := r.URL.Query().Get("granularity"); token != "" {
		var err error
		g, err = kline.ParseGranularity(token)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	removed, err := h.manager.Clear(symbol, g)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to clear cache")
		http.Error(w, "Failed to clear cache", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"removed": removed,
	}))
}

// HandlePurge handles POST /api/kline/purge
func (h *Handler) HandlePurge(w http.ResponseWriter, r *http.Request) {
	removed, err := h.manager.PurgeExpired()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to purge expired bars")
		http.Error(w, "Failed to purge expired bars", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"removed": removed,
	}))
}

// HandleStats handles GET /api/kline/stats
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, envelope(h.manager.Stats()))
}
