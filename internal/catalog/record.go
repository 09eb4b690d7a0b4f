package catalog

// Record is one media entry as returned by the AniList GraphQL API.
// Pointer fields distinguish absent or null values from zero values.
type Record struct {
	ID           *int        `json:"id"`
	Title        *Title      `json:"title"`
	Genres       []string    `json:"genres"`
	Tags         []RecordTag `json:"tags"`
	AverageScore *int        `json:"averageScore"`
	Popularity   *int        `json:"popularity"`
	CoverImage   *CoverImage `json:"coverImage"`
	SiteURL      string      `json:"siteUrl"`
	Episodes     *int        `json:"episodes,omitempty"`
	Format       string      `json:"format,omitempty"`
}

type Title struct {
	English *string `json:"english"`
	Romaji  *string `json:"romaji"`
}

type RecordTag struct {
	Name string `json:"name"`
	Rank *int   `json:"rank"`
}

type CoverImage struct {
	Large string `json:"large"`
}

// Tag is a resolved tag with a missing rank coerced to 0.
type Tag struct {
	Name string `json:"name"`
	Rank int    `json:"rank"`
}

// Item is a catalog entry that passed the load filter. Items are never
// mutated after Load returns.
type Item struct {
	ID         int
	Title      string
	Genres     []string
	Tags       []Tag
	Score      int
	Popularity int
	CoverImage string
	SiteURL    string
}

// TagNames returns the tag names in catalog order.
func (it Item) TagNames() []string {
	names := make([]string, len(it.Tags))
	for i, t := range it.Tags {
		names[i] = t.Name
	}
	return names
}
