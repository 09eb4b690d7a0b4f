package models

type SimilarAnime struct {
	ID         int     `json:"id"`
	Title      string  `json:"title"`
	Similarity float64 `json:"similarity"`
}

type MapNode struct {
	ID         int            `json:"id"`
	Title      string         `json:"title"`
	Score      int            `json:"score"`
	Popularity int            `json:"popularity"`
	CoverImage string         `json:"cover_image"`
	AniListURL string         `json:"anilist_url"`
	Genres     []string       `json:"genres"`
	Radius     float64        `json:"radius"`
	X          float64        `json:"x"`
	Y          float64        `json:"y"`
	Cluster    int            `json:"cluster"`
	Similar    []SimilarAnime `json:"similar"`
}

type MapEdge struct {
	Source int     `json:"source"`
	Target int     `json:"target"`
	Weight float64 `json:"weight"`
}

type MapResponse struct {
	Nodes []MapNode `json:"nodes"`
	Edges []MapEdge `json:"edges"`
}

type MapRequest struct {
	Limit     int `form:"limit"`
	Neighbors int `form:"neighbors"`
}
