package anilist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/temcen/recurate/internal/catalog"
)

const mediaQuery = `
query ($page: Int, $perPage: Int) {
  Page(page: $page, perPage: $perPage) {
    pageInfo {
      hasNextPage
      currentPage
    }
    media(type: ANIME, sort: POPULARITY_DESC) {
      id
      title {
        romaji
        english
      }
      genres
      tags {
        name
        rank
      }
      averageScore
      popularity
      coverImage {
        large
      }
      siteUrl
      episodes
      format
    }
  }
}`

const (
	DefaultURL      = "https://graphql.anilist.co"
	DefaultPerPage  = 50
	DefaultMaxPages = 200

	defaultLongPauseEvery = 30
	defaultLongPause      = 60 * time.Second
	maxAttempts           = 3
)

// ErrUnexpectedStatus is returned for any non-200 response.
var ErrUnexpectedStatus = errors.New("unexpected anilist status")

type Options struct {
	URL      string
	PerPage  int
	MaxPages int
	// Interval is the minimum spacing between page requests.
	Interval time.Duration
	// LongPause is slept before every LongPauseEvery-th page. Zero means
	// the default; negative disables it.
	LongPause      time.Duration
	LongPauseEvery int
	HTTPClient     *http.Client
}

// Client pages the AniList GraphQL API in popularity order.
type Client struct {
	opts    Options
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[interface{}]
	logger  *logrus.Logger
}

func NewClient(opts Options, logger *logrus.Logger) *Client {
	if opts.URL == "" {
		opts.URL = DefaultURL
	}
	if opts.PerPage <= 0 {
		opts.PerPage = DefaultPerPage
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = DefaultMaxPages
	}
	if opts.LongPauseEvery <= 0 {
		opts.LongPauseEvery = defaultLongPauseEvery
	}
	if opts.LongPause == 0 {
		opts.LongPause = defaultLongPause
	}
	if opts.LongPause < 0 {
		opts.LongPause = 0
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}

	limit := rate.Inf
	if opts.Interval > 0 {
		limit = rate.Every(opts.Interval)
	}

	c := &Client{
		opts:    opts,
		http:    opts.HTTPClient,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        "anilist",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxAttempts
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})
	return c
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]int `json:"variables"`
}

type pageResponse struct {
	Data struct {
		Page struct {
			PageInfo struct {
				HasNextPage bool `json:"hasNextPage"`
				CurrentPage int  `json:"currentPage"`
			} `json:"pageInfo"`
			Media []catalog.Record `json:"media"`
		} `json:"Page"`
	} `json:"data"`
}

// FetchAll collects records page by page until a page comes back empty,
// hasNextPage is false, MaxPages is reached or the API answers with a
// non-200 status. Records gathered before a non-200 response are returned
// together with the error.
func (c *Client) FetchAll(ctx context.Context) ([]catalog.Record, error) {
	var all []catalog.Record

	for page := 1; page <= c.opts.MaxPages; page++ {
		if page > 1 && page%c.opts.LongPauseEvery == 0 {
			if err := sleep(ctx, c.opts.LongPause); err != nil {
				return all, err
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return all, err
		}

		c.logger.WithField("page", page).Debug("Fetching AniList page")
		resp, err := c.fetchPage(ctx, page)
		if err != nil {
			return all, fmt.Errorf("page %d: %w", page, err)
		}

		media := resp.Data.Page.Media
		if len(media) == 0 {
			break
		}
		all = append(all, media...)

		if !resp.Data.Page.PageInfo.HasNextPage {
			break
		}
	}

	c.logger.WithField("records", len(all)).Info("AniList fetch complete")
	return all, nil
}

// fetchPage retries transport failures through the breaker. Status errors
// stop the crawl immediately.
func (c *Client) fetchPage(ctx context.Context, page int) (*pageResponse, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		out, err := c.breaker.Execute(func() (interface{}, error) {
			return c.doRequest(ctx, page)
		})
		if err == nil {
			return out.(*pageResponse), nil
		}
		if errors.Is(err, ErrUnexpectedStatus) || errors.Is(err, gobreaker.ErrOpenState) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
		c.logger.WithError(err).WithFields(logrus.Fields{
			"page":    page,
			"attempt": attempt,
		}).Warn("AniList request failed")
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) doRequest(ctx context.Context, page int) (*pageResponse, error) {
	body, err := json.Marshal(graphQLRequest{
		Query:     mediaQuery,
		Variables: map[string]int{"page": page, "perPage": c.opts.PerPage},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return nil, fmt.Errorf("%w %d: %s", ErrUnexpectedStatus, res.StatusCode, bytes.TrimSpace(msg))
	}

	var out pageResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode page: %w", err)
	}
	return &out, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
