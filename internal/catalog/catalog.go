package catalog

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMalformedRecord = errors.New("malformed catalog record")
	ErrDuplicateID     = errors.New("duplicate catalog id")
)

// Catalog is the filtered, row-ordered item sequence. Row i of every
// feature matrix built from it corresponds to Items()[i].
type Catalog struct {
	items       []Item
	byID        map[int]int
	fingerprint string
}

// Load filters and resolves raw records. Records without genres or without
// tags are dropped; a record missing its id or title object aborts the
// whole load.
func Load(records []Record) (*Catalog, error) {
	c := &Catalog{
		items: make([]Item, 0, len(records)),
		byID:  make(map[int]int, len(records)),
	}

	for pos, rec := range records {
		if rec.ID == nil {
			return nil, fmt.Errorf("record %d: missing id: %w", pos, ErrMalformedRecord)
		}
		if rec.Title == nil {
			return nil, fmt.Errorf("record %d (id %d): missing title: %w", pos, *rec.ID, ErrMalformedRecord)
		}
		if len(rec.Genres) == 0 || len(rec.Tags) == 0 {
			continue
		}
		if _, dup := c.byID[*rec.ID]; dup {
			return nil, fmt.Errorf("record %d: id %d: %w", pos, *rec.ID, ErrDuplicateID)
		}

		c.byID[*rec.ID] = len(c.items)
		c.items = append(c.items, resolve(rec))
	}

	c.fingerprint = fingerprint(c.items)
	return c, nil
}

func resolve(rec Record) Item {
	item := Item{
		ID:      *rec.ID,
		Title:   resolveTitle(rec.Title),
		Genres:  append([]string(nil), rec.Genres...),
		Tags:    make([]Tag, len(rec.Tags)),
		SiteURL: rec.SiteURL,
	}
	for i, t := range rec.Tags {
		item.Tags[i] = Tag{Name: t.Name, Rank: intOrZero(t.Rank)}
	}
	item.Score = intOrZero(rec.AverageScore)
	item.Popularity = intOrZero(rec.Popularity)
	if rec.CoverImage != nil {
		item.CoverImage = rec.CoverImage.Large
	}
	return item
}

func resolveTitle(t *Title) string {
	if t.English != nil && *t.English != "" {
		return *t.English
	}
	if t.Romaji != nil {
		return *t.Romaji
	}
	return ""
}

func intOrZero(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

// fingerprint identifies the catalog contents for cache keys. Everything
// that feeds the features or the rendered map is hashed, and variable-length
// fields are length-prefixed so neighbouring values cannot run together.
func fingerprint(items []Item) string {
	h := sha256.New()
	var buf [8]byte
	putInt := func(v int) {
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		h.Write(buf[:])
	}
	putString := func(s string) {
		putInt(len(s))
		h.Write([]byte(s))
	}

	for _, it := range items {
		putInt(it.ID)
		putInt(it.Popularity)
		putInt(it.Score)
		putString(it.Title)
		putInt(len(it.Genres))
		for _, g := range it.Genres {
			putString(g)
		}
		putInt(len(it.Tags))
		for _, t := range it.Tags {
			putString(t.Name)
			putInt(t.Rank)
		}
	}
	return fmt.Sprintf("%x", h.Sum(nil))[:16]
}

func (c *Catalog) Len() int { return len(c.items) }

// Item returns the item at row.
func (c *Catalog) Item(row int) Item { return c.items[row] }

// Items returns the backing slice; callers must not modify it.
func (c *Catalog) Items() []Item { return c.items }

// Row maps an external id to its row.
func (c *Catalog) Row(id int) (int, bool) {
	row, ok := c.byID[id]
	return row, ok
}

// ID maps a row back to its external id.
func (c *Catalog) ID(row int) int { return c.items[row].ID }

func (c *Catalog) Fingerprint() string { return c.fingerprint }

// FindTitle returns the rows whose title contains query, case-insensitively,
// in catalog order. At most limit rows are returned when limit > 0.
func (c *Catalog) FindTitle(query string, limit int) []int {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}

	var rows []int
	for i, it := range c.items {
		if strings.Contains(strings.ToLower(it.Title), q) {
			rows = append(rows, i)
			if limit > 0 && len(rows) == limit {
				break
			}
		}
	}
	return rows
}
