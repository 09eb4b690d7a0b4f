package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/temcen/recurate/internal/config"
	"github.com/temcen/recurate/internal/messaging"
	"github.com/temcen/recurate/internal/middleware"
	"github.com/temcen/recurate/internal/services"
	"github.com/temcen/recurate/internal/validation"
	"github.com/temcen/recurate/pkg/models"
)

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 50
	publishTimeout     = 5 * time.Second
)

type RecommendationHandler struct {
	recommender services.RecommenderInterface
	publisher   messaging.Publisher
	schemas     *validation.SchemaValidator
	defaultK    int
	maxK        int
	logger      *logrus.Logger
}

func NewRecommendationHandler(
	recommender services.RecommenderInterface,
	publisher messaging.Publisher,
	schemas *validation.SchemaValidator,
	cfg config.RecommendationConfig,
	logger *logrus.Logger,
) *RecommendationHandler {
	if publisher == nil {
		publisher = messaging.NoopPublisher{}
	}
	defaultK := cfg.DefaultK
	if defaultK <= 0 {
		defaultK = 10
	}
	return &RecommendationHandler{
		recommender: recommender,
		publisher:   publisher,
		schemas:     schemas,
		defaultK:    defaultK,
		maxK:        cfg.MaxK,
		logger:      logger,
	}
}

// resolveK applies the default when k is absent and caps it at maxK.
func (h *RecommendationHandler) resolveK(k *int) (int, bool) {
	if k == nil {
		return h.defaultK, true
	}
	if *k <= 0 {
		return 0, false
	}
	if h.maxK > 0 && *k > h.maxK {
		return h.maxK, true
	}
	return *k, true
}

// Recommend handles POST /recommend.
func (h *RecommendationHandler) Recommend(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST_BODY", "Failed to read request body")
		return
	}

	if h.schemas != nil {
		if result := h.schemas.ValidateJSONString(validation.RecommendRequestSchema, string(body)); !result.Valid {
			c.JSON(http.StatusBadRequest, result.ToAPIError())
			return
		}
	}

	var req models.RecommendRequest
	if err := json.Unmarshal(body, &req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST_BODY", "Invalid request body format")
		return
	}
	if err := validate.Struct(req); err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	k, ok := h.resolveK(req.K)
	if !ok {
		respondError(c, http.StatusBadRequest, "INVALID_K", "k must be a positive integer")
		return
	}

	result, err := h.recommender.Recommend(c.Request.Context(), req.AnimeIDs, k)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.publish(middleware.GetRequestID(c), result.ResolvedIDs, result.Recommendations, k)
	c.JSON(http.StatusOK, result.Recommendations)
}

// RecommendByTitle handles GET /recommend/title?q=&k=.
func (h *RecommendationHandler) RecommendByTitle(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		respondError(c, http.StatusBadRequest, "MISSING_QUERY", "Query parameter q is required")
		return
	}

	var kp *int
	if raw := c.Query("k"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			respondError(c, http.StatusBadRequest, "INVALID_K", "k must be a positive integer")
			return
		}
		kp = &v
	}
	k, ok := h.resolveK(kp)
	if !ok {
		respondError(c, http.StatusBadRequest, "INVALID_K", "k must be a positive integer")
		return
	}

	result, err := h.recommender.RecommendByTitle(c.Request.Context(), query, k)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.publish(middleware.GetRequestID(c), result.ResolvedIDs, result.Recommendations, k)
	c.JSON(http.StatusOK, result.Recommendations)
}

// Search handles GET /search?q=&limit=.
func (h *RecommendationHandler) Search(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		c.JSON(http.StatusOK, []models.SearchResult{})
		return
	}

	limit := defaultSearchLimit
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			respondError(c, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a positive integer")
			return
		}
		limit = min(v, maxSearchLimit)
	}

	results := h.recommender.Search(query, limit)
	if results == nil {
		results = []models.SearchResult{}
	}
	c.JSON(http.StatusOK, results)
}

func (h *RecommendationHandler) handleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidK):
		respondError(c, http.StatusBadRequest, "INVALID_K", "k must be a positive integer")
	case errors.Is(err, services.ErrTitleNotFound):
		respondError(c, http.StatusNotFound, "TITLE_NOT_FOUND", "No anime matches the given title")
	default:
		h.logger.WithError(err).Error("Failed to generate recommendations")
		respondError(c, http.StatusInternalServerError, "RECOMMENDATION_GENERATION_FAILED", "Failed to generate recommendations")
	}
}

// publish emits the served event in the background. Empty results are not
// reported.
func (h *RecommendationHandler) publish(requestID string, seedIDs []int, recs []models.Recommendation, k int) {
	if len(recs) == 0 {
		return
	}
	event := messaging.NewRecommendationServed(requestID, seedIDs, recs, k)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := h.publisher.PublishRecommendationServed(ctx, event); err != nil {
			h.logger.WithError(err).WithField("request_id", requestID).Warn("Failed to publish recommendation event")
		}
	}()
}
