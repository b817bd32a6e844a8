package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/klinecache/internal/modules/kline"
)

// SystemHandlers handles system monitoring endpoints
type SystemHandlers struct {
	manager *kline.Manager
	log     zerolog.Logger
}

// NewSystemHandlers creates system monitoring handlers
func NewSystemHandlers(manager *kline.Manager, log zerolog.Logger) *SystemHandlers {
	return &SystemHandlers{
		manager: manager,
		log:     log.With().Str("handler", "system").Logger(),
	}
}

// RegisterRoutes mounts the system routes on the router
func (h *SystemHandlers) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.HandleHealth)
	r.Get("/stats", h.HandleStats)
}

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}

// HandleHealth handles GET /api/system/health
func (h *SystemHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// HandleStats handles GET /api/system/stats
// Combines host metrics with cache dataset statistics.
func (h *SystemHandlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	system := map[string]interface{}{}

	if cpuPercent, err := cpu.Percent(100*time.Millisecond, false); err == nil && len(cpuPercent) > 0 {
		system["cpu_percent"] = cpuPercent[0]
	}
	if memStat, err := mem.VirtualMemory(); err == nil {
		system["memory_percent"] = memStat.UsedPercent
		system["memory_used_bytes"] = memStat.Used
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"system": system,
			"cache":  h.manager.Stats(),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}
