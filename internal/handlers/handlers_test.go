package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/temcen/recurate/internal/config"
	"github.com/temcen/recurate/internal/services"
	"github.com/temcen/recurate/internal/validation"
	"github.com/temcen/recurate/pkg/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel) // Reduce noise in tests
	return logger
}

// MockRecommender is a mock implementation of services.RecommenderInterface
type MockRecommender struct {
	mock.Mock
}

func (m *MockRecommender) Recommend(ctx context.Context, seedIDs []int, k int) (*services.RecommendationResult, error) {
	args := m.Called(ctx, seedIDs, k)
	if r := args.Get(0); r != nil {
		return r.(*services.RecommendationResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRecommender) RecommendByTitle(ctx context.Context, query string, k int) (*services.RecommendationResult, error) {
	args := m.Called(ctx, query, k)
	if r := args.Get(0); r != nil {
		return r.(*services.RecommendationResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRecommender) Search(query string, limit int) []models.SearchResult {
	args := m.Called(query, limit)
	return args.Get(0).([]models.SearchResult)
}

// MockMapBuilder is a mock implementation of services.MapBuilderInterface
type MockMapBuilder struct {
	mock.Mock
}

func (m *MockMapBuilder) BuildMap(ctx context.Context, limit, neighbors int) (*models.MapResponse, error) {
	args := m.Called(ctx, limit, neighbors)
	if r := args.Get(0); r != nil {
		return r.(*models.MapResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

// capturePublisher records published events on a channel.
type capturePublisher struct {
	events chan models.RecommendationServed
	err    error
}

func newCapturePublisher() *capturePublisher {
	return &capturePublisher{events: make(chan models.RecommendationServed, 4)}
}

func (p *capturePublisher) PublishRecommendationServed(_ context.Context, e models.RecommendationServed) error {
	p.events <- e
	return p.err
}

func (p *capturePublisher) Close() error { return nil }

type stubHealth struct{ status string }

func (s stubHealth) CheckHealth() *services.HealthStatus {
	return &services.HealthStatus{Status: s.status, Services: map[string]string{"catalog": s.status}}
}

var recCfg = config.RecommendationConfig{DefaultK: 10, MaxK: 100}

func newRecommendationRouter(t *testing.T, rec *MockRecommender, pub *capturePublisher) *gin.Engine {
	t.Helper()
	schemas, err := validation.NewSchemaValidator()
	require.NoError(t, err)

	h := NewRecommendationHandler(rec, pub, schemas, recCfg, testLogger())
	router := gin.New()
	router.POST("/recommend", h.Recommend)
	router.GET("/recommend/title", h.RecommendByTitle)
	router.GET("/search", h.Search)
	return router
}

func doRequest(router *gin.Engine, method, path string, body []byte) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error.Code
}

func sampleResult() *services.RecommendationResult {
	return &services.RecommendationResult{
		Recommendations: []models.Recommendation{
			{ID: 2, Title: "Beta", Similarity: 0.913, SharedGenres: []string{"Action"}, SharedTags: []string{"Robots"}},
			{ID: 3, Title: "Gamma", Similarity: 0.5, SharedGenres: []string{}, SharedTags: []string{}},
		},
		ResolvedIDs: []int{1},
	}
}

func TestRoot(t *testing.T) {
	router := gin.New()
	router.GET("/", Root)

	w := doRequest(router, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"Anime recommender running"}`, w.Body.String())
}

func TestRecommendationHandler_Recommend(t *testing.T) {
	rec := new(MockRecommender)
	pub := newCapturePublisher()
	router := newRecommendationRouter(t, rec, pub)

	rec.On("Recommend", mock.Anything, []int{1}, 10).Return(sampleResult(), nil).Once()

	w := doRequest(router, http.MethodPost, "/recommend", []byte(`{"anime_ids":[1]}`))
	require.Equal(t, http.StatusOK, w.Code)

	var got []models.Recommendation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, sampleResult().Recommendations, got)

	select {
	case e := <-pub.events:
		assert.Equal(t, []int{1}, e.SeedIDs)
		assert.Equal(t, []int{2, 3}, e.ResultIDs)
		assert.Equal(t, 10, e.K)
		assert.NotEmpty(t, e.RequestID)
	case <-time.After(time.Second):
		t.Fatal("recommendation event was not published")
	}
	rec.AssertExpectations(t)
}

func TestRecommendationHandler_RecommendClampsK(t *testing.T) {
	rec := new(MockRecommender)
	router := newRecommendationRouter(t, rec, newCapturePublisher())

	rec.On("Recommend", mock.Anything, []int{5, 6}, 100).Return(&services.RecommendationResult{
		Recommendations: []models.Recommendation{},
	}, nil).Once()

	w := doRequest(router, http.MethodPost, "/recommend", []byte(`{"anime_ids":[5,6],"k":500}`))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
	rec.AssertExpectations(t)
}

func TestRecommendationHandler_RecommendRejectsBadInput(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{"zero k", `{"anime_ids":[1],"k":0}`, "INVALID_K"},
		{"negative k", `{"anime_ids":[1],"k":-2}`, "INVALID_K"},
		{"missing ids", `{"k":3}`, "VALIDATION_ERROR"},
		{"empty ids", `{"anime_ids":[]}`, "VALIDATION_ERROR"},
		{"string k", `{"anime_ids":[1],"k":"ten"}`, "VALIDATION_ERROR"},
		{"not json", `anime`, "VALIDATION_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := new(MockRecommender)
			router := newRecommendationRouter(t, rec, newCapturePublisher())

			w := doRequest(router, http.MethodPost, "/recommend", []byte(tt.body))
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.wantCode, errorCode(t, w))
			rec.AssertNotCalled(t, "Recommend", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestRecommendationHandler_RecommendWithoutSchemas(t *testing.T) {
	rec := new(MockRecommender)
	h := NewRecommendationHandler(rec, nil, nil, recCfg, testLogger())
	router := gin.New()
	router.POST("/recommend", h.Recommend)

	w := doRequest(router, http.MethodPost, "/recommend", []byte(`{"anime_ids":[]}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, w))

	w = doRequest(router, http.MethodPost, "/recommend", []byte(`{`))
	assert.Equal(t, "INVALID_REQUEST_BODY", errorCode(t, w))
}

func TestRecommendationHandler_RecommendServiceError(t *testing.T) {
	rec := new(MockRecommender)
	router := newRecommendationRouter(t, rec, newCapturePublisher())
	rec.On("Recommend", mock.Anything, []int{1}, 10).Return(nil, errors.New("boom")).Once()

	w := doRequest(router, http.MethodPost, "/recommend", []byte(`{"anime_ids":[1]}`))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "RECOMMENDATION_GENERATION_FAILED", errorCode(t, w))
}

func TestRecommendationHandler_RecommendByTitle(t *testing.T) {
	rec := new(MockRecommender)
	router := newRecommendationRouter(t, rec, newCapturePublisher())

	rec.On("RecommendByTitle", mock.Anything, "alpha", 3).Return(sampleResult(), nil).Once()
	rec.On("RecommendByTitle", mock.Anything, "naruto", 10).Return(nil, services.ErrTitleNotFound).Once()

	w := doRequest(router, http.MethodGet, "/recommend/title?q=alpha&k=3", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, http.MethodGet, "/recommend/title?q=naruto", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "TITLE_NOT_FOUND", errorCode(t, w))

	w = doRequest(router, http.MethodGet, "/recommend/title?q=alpha&k=abc", nil)
	assert.Equal(t, "INVALID_K", errorCode(t, w))

	w = doRequest(router, http.MethodGet, "/recommend/title", nil)
	assert.Equal(t, "MISSING_QUERY", errorCode(t, w))

	rec.AssertExpectations(t)
}

func TestRecommendationHandler_Search(t *testing.T) {
	rec := new(MockRecommender)
	router := newRecommendationRouter(t, rec, newCapturePublisher())

	results := []models.SearchResult{{ID: 1, Title: "Alpha", CoverImage: "a.jpg"}}
	rec.On("Search", "alp", 10).Return(results).Once()
	rec.On("Search", "alp", 50).Return(results).Once()

	w := doRequest(router, http.MethodGet, "/search?q=alp", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"id":1,"title":"Alpha","cover_image":"a.jpg"}]`, w.Body.String())

	w = doRequest(router, http.MethodGet, "/search?q=alp&limit=900", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, http.MethodGet, "/search?q=alp&limit=x", nil)
	assert.Equal(t, "INVALID_LIMIT", errorCode(t, w))

	w = doRequest(router, http.MethodGet, "/search", nil)
	assert.JSONEq(t, `[]`, w.Body.String())

	rec.AssertExpectations(t)
}

func TestMapHandler_Get(t *testing.T) {
	builder := new(MockMapBuilder)
	h := NewMapHandler(builder, config.MapConfig{DefaultLimit: 180, DefaultNeighbors: 5}, testLogger())
	router := gin.New()
	router.GET("/map", h.Get)

	resp := &models.MapResponse{
		Nodes: []models.MapNode{{ID: 1, Title: "Alpha", Genres: []string{"Action"}, Similar: []models.SimilarAnime{}}},
		Edges: []models.MapEdge{},
	}
	builder.On("BuildMap", mock.Anything, 180, 5).Return(resp, nil).Once()
	builder.On("BuildMap", mock.Anything, 5000, 1).Return(resp, nil).Once()

	w := doRequest(router, http.MethodGet, "/map", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got models.MapResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, *resp, got)

	// Clamping happens in the builder.
	w = doRequest(router, http.MethodGet, "/map?limit=5000&neighbors=1", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, http.MethodGet, "/map?limit=many", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_QUERY_PARAMS", errorCode(t, w))

	builder.AssertExpectations(t)
}

func TestMapHandler_BuildError(t *testing.T) {
	builder := new(MockMapBuilder)
	h := NewMapHandler(builder, config.MapConfig{}, testLogger())
	router := gin.New()
	router.GET("/map", h.Get)

	builder.On("BuildMap", mock.Anything, 180, 5).Return(nil, errors.New("svd failed")).Once()

	w := doRequest(router, http.MethodGet, "/map", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "MAP_GENERATION_FAILED", errorCode(t, w))
}

func TestHealthHandler_Check(t *testing.T) {
	tests := []struct {
		status string
		want   int
	}{
		{"healthy", http.StatusOK},
		{"degraded", http.StatusOK},
		{"unhealthy", http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			router := gin.New()
			router.GET("/health", NewHealthHandler(testLogger(), stubHealth{tt.status}).Check)

			w := doRequest(router, http.MethodGet, "/health", nil)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}
