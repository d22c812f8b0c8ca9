package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/geoclash/maptiles/internal/fetcher"
	"github.com/geoclash/maptiles/pkg/geo"
	"github.com/geoclash/maptiles/pkg/logger"
)

// Tile serves GET /api/v1/tile/:z/:x/:y. The handler blocks until the tile
// is fetched or the request context ends, then returns the raw image bytes.
func (h *Handler) Tile(c *gin.Context) {
	l := logger.FromContext(c.Request.Context())

	z, err := strconv.Atoi(c.Param("z"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "z should be integer"})
		return
	}

	x, err := strconv.Atoi(c.Param("x"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "x should be integer"})
		return
	}

	y, err := strconv.Atoi(c.Param("y"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "y should be integer"})
		return
	}

	coord := geo.TileCoordinate{X: x, Y: y, Zoom: z}
	tile, err := h.tileService.GetTileSync(c.Request.Context(), coord)
	if err != nil {
		if errors.Is(err, fetcher.ErrInvalidCoordinate) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "tile coordinate out of range"})
			return
		}
		l.Error("failed to get tile", "z", z, "x", x, "y", y, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to get tile"})
		return
	}

	c.Data(http.StatusOK, http.DetectContentType(tile.Data), tile.Data)
}
