package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes mounts the kline cache routes on the router
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stats", h.HandleStats)
	r.Post("/purge", h.HandlePurge)
	r.Delete("/", h.HandleClear)
	r.Get("/{granularity}/{symbol}", h.HandleGetBars)
	r.Post("/{granularity}/{symbol}", h.HandleWriteBars)
	r.Get("/{granularity}/{symbol}/missing-ranges", h.HandleMissingRanges)
}
