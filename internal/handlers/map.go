package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/temcen/recurate/internal/config"
	"github.com/temcen/recurate/internal/services"
	"github.com/temcen/recurate/pkg/models"
)

type MapHandler struct {
	builder          services.MapBuilderInterface
	defaultLimit     int
	defaultNeighbors int
	logger           *logrus.Logger
}

func NewMapHandler(builder services.MapBuilderInterface, cfg config.MapConfig, logger *logrus.Logger) *MapHandler {
	h := &MapHandler{
		builder:          builder,
		defaultLimit:     cfg.DefaultLimit,
		defaultNeighbors: cfg.DefaultNeighbors,
		logger:           logger,
	}
	if h.defaultLimit == 0 {
		h.defaultLimit = 180
	}
	if h.defaultNeighbors == 0 {
		h.defaultNeighbors = 5
	}
	return h
}

// Get handles GET /map. Out-of-range values are clamped by the builder;
// only non-integer values are rejected.
func (h *MapHandler) Get(c *gin.Context) {
	req := models.MapRequest{
		Limit:     h.defaultLimit,
		Neighbors: h.defaultNeighbors,
	}
	if err := c.ShouldBindQuery(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_QUERY_PARAMS", "limit and neighbors must be integers")
		return
	}

	resp, err := h.builder.BuildMap(c.Request.Context(), req.Limit, req.Neighbors)
	if err != nil {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"limit":     req.Limit,
			"neighbors": req.Neighbors,
		}).Error("Failed to build similarity map")
		respondError(c, http.StatusInternalServerError, "MAP_GENERATION_FAILED", "Failed to build similarity map")
		return
	}

	c.JSON(http.StatusOK, resp)
}
