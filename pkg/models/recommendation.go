package models

import "time"

type Recommendation struct {
	ID           int      `json:"id"`
	Title        string   `json:"title"`
	Similarity   float64  `json:"similarity"`
	SharedGenres []string `json:"shared_genres"`
	SharedTags   []string `json:"shared_tags"`
	Score        int      `json:"score"`
	CoverImage   string   `json:"cover_image"`
	AniListURL   string   `json:"anilist_url"`
	Explanation  string   `json:"explanation"`
}

type RecommendRequest struct {
	AnimeIDs []int `json:"anime_ids" validate:"required,min=1,max=50"`
	K        *int  `json:"k,omitempty"`
}

type SearchResult struct {
	ID         int    `json:"id"`
	Title      string `json:"title"`
	CoverImage string `json:"cover_image"`
}

// RecommendationServed is published after a successful recommendation call.
type RecommendationServed struct {
	EventID   string    `json:"event_id"`
	RequestID string    `json:"request_id"`
	SeedIDs   []int     `json:"seed_ids"`
	ResultIDs []int     `json:"result_ids"`
	K         int       `json:"k"`
	Timestamp time.Time `json:"timestamp"`
}
