package services

import (
	"context"

	"github.com/temcen/recurate/pkg/models"
)

// RecommenderInterface defines the recommendation operations used by the HTTP layer
type RecommenderInterface interface {
	Recommend(ctx context.Context, seedIDs []int, k int) (*RecommendationResult, error)
	RecommendByTitle(ctx context.Context, query string, k int) (*RecommendationResult, error)
	Search(query string, limit int) []models.SearchResult
}

// MapBuilderInterface defines the similarity map operation used by the HTTP layer
type MapBuilderInterface interface {
	BuildMap(ctx context.Context, limit, neighbors int) (*models.MapResponse, error)
}
