package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/geoclash/maptiles/internal/infrastructure/http/v1/dto"
	"github.com/geoclash/maptiles/internal/provider"
	"github.com/geoclash/maptiles/pkg/geo"
)

// Stats serves GET /api/v1/stats with the cache counters.
func (h *Handler) Stats(c *gin.Context) {
	h.RespondWithJSON(c, http.StatusOK, "cache stats", h.tileService.Stats())
}

// ClearCache serves POST /api/v1/cache/clear.
func (h *Handler) ClearCache(c *gin.Context) {
	h.tileService.ClearCache()
	h.RespondWithJSON(c, http.StatusOK, "cache cleared", nil)
}

// SetProvider serves POST /api/v1/provider. Switching the provider or
// style drops every cached tile.
func (h *Handler) SetProvider(c *gin.Context) {
	var req dto.SetProviderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p, ok := provider.ParseProvider(req.Provider)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown provider"})
		return
	}

	h.tileService.SetProvider(p, req.APIKey)

	if req.Style != "" {
		style, ok := provider.ParseStyle(req.Style)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown style"})
			return
		}
		h.tileService.SetStyle(style)
	}

	h.RespondWithJSON(c, http.StatusOK, "provider updated", nil)
}

// Preload serves POST /api/v1/preload and reports how many fetches were
// newly triggered for the requested area.
func (h *Handler) Preload(c *gin.Context) {
	var req dto.PreloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	bounds := geo.GeoBounds{North: req.North, South: req.South, East: req.East, West: req.West}
	triggered := h.tileService.PreloadArea(bounds, req.Zoom)

	h.RespondWithJSON(c, http.StatusOK, "preload triggered", dto.PreloadResponse{Triggered: triggered})
}
