package middleware

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/temcen/recurate/internal/config"
)

func CORS(cfg *config.Config) gin.HandlerFunc {
	config := cors.Config{
		AllowOrigins:     cfg.Security.CORS.AllowedOrigins,
		AllowMethods:     cfg.Security.CORS.AllowedMethods,
		AllowHeaders:     cfg.Security.CORS.AllowedHeaders,
		ExposeHeaders:    []string{RequestIDHeader, "Retry-After"},
		AllowCredentials: true,
	}

	return cors.New(config)
}
