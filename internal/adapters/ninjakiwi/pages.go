package ninjakiwi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/okian/bloons/internal/adapters/worker"
	"github.com/okian/bloons/pkg/logger"
	"github.com/okian/bloons/pkg/metrics"
)

// NoScoresMessage is the application error the API returns for a leaderboard
// window past the last entry.
const NoScoresMessage = "No Scores Available"

// Endpoint template placeholders.
const (
	PlaceholderID       = "{id}"
	PlaceholderTeamSize = "{teamSize}"
)

// FetchPage fetches one page of a leaderboard endpoint. A window without
// scores yields an empty page and no error.
func (c *Client) FetchPage(ctx context.Context, endpoint string, page int) ([]json.RawMessage, error) {
	body, err := c.Get(ctx, endpoint, url.Values{"page": []string{strconv.Itoa(page)}})
	if err != nil {
		if IsNoScores(err) {
			metrics.RecordPageFetched("empty")
			return []json.RawMessage{}, nil
		}
		return nil, err
	}

	var records []json.RawMessage
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, &Error{Kind: ErrMalformedResponse, Path: endpoint, Err: fmt.Errorf("page %d: %w", page, err)}
	}
	if records == nil {
		records = []json.RawMessage{}
	}
	metrics.RecordPageFetched("records")
	return records, nil
}

// IsNoScores reports whether err is the "no scores available" application error.
func IsNoScores(err error) bool {
	if !errors.Is(err, ErrApplication) {
		return false
	}
	msg, _ := Message(err)
	return strings.EqualFold(strings.TrimSpace(msg), NoScoresMessage)
}

// PageRequest describes a range of leaderboard pages.
type PageRequest struct {
	// Template is the endpoint path with {id} and optionally {teamSize}.
	Template string
	// ID replaces {id}.
	ID string
	// TeamSize replaces {teamSize} when positive.
	TeamSize int
	// Start is the first page, 1-based.
	Start int
	// Count is the number of pages to fetch.
	Count int
}

// Endpoint expands the template.
func (r PageRequest) Endpoint() string {
	pairs := []string{PlaceholderID, url.PathEscape(r.ID)}
	if r.TeamSize > 0 {
		pairs = append(pairs, PlaceholderTeamSize, strconv.Itoa(r.TeamSize))
	}
	return strings.NewReplacer(pairs...).Replace(r.Template)
}

// FetchPages fetches Count pages starting at Start using strategy and
// flattens them in page order. Any fatal page error fails the whole call.
func (c *Client) FetchPages(ctx context.Context, req PageRequest, strategy worker.Strategy) ([]json.RawMessage, error) {
	if req.Count <= 0 {
		return []json.RawMessage{}, nil
	}
	if req.Start < 1 {
		return nil, &Error{Kind: ErrBadRequest, Path: req.Template, Err: fmt.Errorf("start page %d", req.Start)}
	}
	if strategy == nil {
		strategy = worker.NewPool(worker.DefaultPoolSize)
	}

	endpoint := req.Endpoint()
	pages := make([][]json.RawMessage, req.Count)
	start := time.Now()

	err := strategy.Run(ctx, req.Count, func(ctx context.Context, i int) error {
		records, err := c.FetchPage(ctx, endpoint, req.Start+i)
		if err != nil {
			return err
		}
		pages[i] = records
		return nil
	})
	metrics.RecordPaginationDuration(strategy.Name(), time.Since(start))
	if err != nil {
		c.logger.Warn(ctx, "paginated fetch failed",
			logger.String("endpoint", endpoint),
			logger.Int("start", req.Start),
			logger.Int("count", req.Count),
			logger.Error(err),
		)
		return nil, err
	}

	total := 0
	for _, p := range pages {
		total += len(p)
	}
	out := make([]json.RawMessage, 0, total)
	for _, p := range pages {
		out = append(out, p...)
	}
	return out, nil
}
