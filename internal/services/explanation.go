package services

import (
	"sort"
	"strings"

	"github.com/temcen/recurate/internal/catalog"
)

const (
	maxSharedTags       = 5
	maxExplainedGenres  = 3
	maxExplainedThemes  = 3
	explanationFallback = "Recommended based on overall similarity in style and structure."
	explanationSep      = " · "
)

// SharedAttributeMode selects what a recommendation reports as shared.
type SharedAttributeMode string

const (
	// SharedCandidate reports the candidate's own genres and tags.
	SharedCandidate SharedAttributeMode = "candidate"
	// SharedIntersection reports only attributes the candidate has in common
	// with at least one seed.
	SharedIntersection SharedAttributeMode = "intersection"
)

func ParseSharedAttributeMode(s string) (SharedAttributeMode, bool) {
	switch SharedAttributeMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", SharedCandidate:
		return SharedCandidate, true
	case SharedIntersection:
		return SharedIntersection, true
	}
	return SharedCandidate, false
}

// seedAttributes is the union of the seeds' genres and tag names.
type seedAttributes struct {
	genres map[string]struct{}
	tags   map[string]struct{}
}

func collectSeedAttributes(items []catalog.Item) seedAttributes {
	attrs := seedAttributes{
		genres: make(map[string]struct{}),
		tags:   make(map[string]struct{}),
	}
	for _, it := range items {
		for _, g := range it.Genres {
			attrs.genres[g] = struct{}{}
		}
		for _, t := range it.Tags {
			attrs.tags[t.Name] = struct{}{}
		}
	}
	return attrs
}

// sharedAttributes returns the sorted genre list and the first five sorted
// tag names to report for candidate.
func sharedAttributes(mode SharedAttributeMode, candidate catalog.Item, seeds seedAttributes) ([]string, []string) {
	var genreFilter, tagFilter map[string]struct{}
	if mode == SharedIntersection {
		genreFilter, tagFilter = seeds.genres, seeds.tags
	}

	genres := sortedSet(candidate.Genres, genreFilter)
	tags := sortedSet(candidate.TagNames(), tagFilter)
	if len(tags) > maxSharedTags {
		tags = tags[:maxSharedTags]
	}
	return genres, tags
}

func sortedSet(values []string, filter map[string]struct{}) []string {
	set := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, dup := set[v]; dup {
			continue
		}
		if filter != nil {
			if _, ok := filter[v]; !ok {
				continue
			}
		}
		set[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// GenerateExplanation renders the short reason shown under a recommendation.
func GenerateExplanation(genres, tags []string) string {
	var parts []string
	if len(genres) > 0 {
		parts = append(parts, "Shared genres: "+strings.Join(firstN(genres, maxExplainedGenres), ", "))
	}
	if len(tags) > 0 {
		parts = append(parts, "Common themes: "+strings.Join(firstN(tags, maxExplainedThemes), ", "))
	}
	if len(parts) == 0 {
		return explanationFallback
	}
	return strings.Join(parts, explanationSep)
}

func firstN(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
