package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/temcen/recurate/internal/config"
	"github.com/temcen/recurate/internal/messaging"
	"github.com/temcen/recurate/internal/services"
	"github.com/temcen/recurate/internal/validation"
)

const statusMessage = "Anime recommender running"

type Handlers struct {
	Health         *HealthHandler
	Recommendation *RecommendationHandler
	Map            *MapHandler
}

func New(
	cfg *config.Config,
	logger *logrus.Logger,
	svc *services.Services,
	publisher messaging.Publisher,
	schemas *validation.SchemaValidator,
) *Handlers {
	return &Handlers{
		Health:         NewHealthHandler(logger, svc.Health),
		Recommendation: NewRecommendationHandler(svc.Recommender, publisher, schemas, cfg.Recommendation, logger),
		Map:            NewMapHandler(svc.MapBuilder, cfg.Map, logger),
	}
}

// Root reports that the service is up.
func Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": statusMessage})
}

var validate = validator.New()

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}
