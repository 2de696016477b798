// Package btd6 holds the BTD6 resources built on the resource loader: users,
// custom maps, races and bosses, plus their leaderboards.
package btd6

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/okian/bloons/internal/adapters/ninjakiwi"
	"github.com/okian/bloons/internal/adapters/worker"
	"github.com/okian/bloons/internal/domain/resource"
	"github.com/okian/bloons/pkg/logger"
)

// Fetcher is what the catalog needs from the fetch layer.
type Fetcher interface {
	resource.Fetcher
	FetchPages(ctx context.Context, req ninjakiwi.PageRequest, strategy worker.Strategy) ([]json.RawMessage, error)
}

// Catalog constructs resources that share one fetcher and one access mode.
type Catalog struct {
	fetcher Fetcher
	mode    resource.Mode
	workers int
	logger  logger.Logger
}

// NewCatalog creates a Catalog.
func NewCatalog(f Fetcher, opts ...Option) *Catalog {
	c := &Catalog{
		fetcher: f,
		mode:    resource.Blocking,
		workers: worker.DefaultPoolSize,
		logger:  logger.Get(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("btd6")
	return c
}

// Mode returns the access mode of every resource the catalog builds.
func (c *Catalog) Mode() resource.Mode { return c.mode }

func (c *Catalog) options(extra []resource.Option) []resource.Option {
	return append([]resource.Option{resource.WithMode(c.mode), resource.WithLogger(c.logger)}, extra...)
}

// User returns the player with the given ID.
func (c *Catalog) User(ctx context.Context, id string, opts ...resource.Option) (*User, error) {
	l, err := resource.New(ctx, userDef{}, id, c.fetcher, c.options(opts)...)
	if err != nil {
		return nil, err
	}
	return &User{Loader: l}, nil
}

// CustomMap returns the custom map with the given code.
func (c *Catalog) CustomMap(ctx context.Context, id string, opts ...resource.Option) (*CustomMap, error) {
	l, err := resource.New(ctx, customMapDef{}, id, c.fetcher, c.options(opts)...)
	if err != nil {
		return nil, err
	}
	return &CustomMap{Loader: l, catalog: c}, nil
}

// Race returns the race event with the given ID.
func (c *Catalog) Race(ctx context.Context, id string, opts ...resource.Option) (*Race, error) {
	l, err := resource.NewEvent(ctx, raceDef{}, id, c.fetcher, c.options(opts)...)
	if err != nil {
		return nil, err
	}
	return &Race{Loader: l, catalog: c}, nil
}

// Boss returns the boss event with the given ID.
func (c *Catalog) Boss(ctx context.Context, id string, opts ...resource.Option) (*Boss, error) {
	l, err := resource.NewEvent(ctx, bossDef{}, id, c.fetcher, c.options(opts)...)
	if err != nil {
		return nil, err
	}
	return &Boss{Loader: l, catalog: c}, nil
}

// Races lists the current races. Each one is seeded from its list element.
func (c *Catalog) Races(ctx context.Context) ([]*Race, error) {
	return list(ctx, c, RacesEndpoint, c.Race)
}

// Bosses lists the current boss events. Each one is seeded from its list
// element.
func (c *Catalog) Bosses(ctx context.Context) ([]*Boss, error) {
	return list(ctx, c, BossesEndpoint, c.Boss)
}

func list[T any](
	ctx context.Context,
	c *Catalog,
	endpoint string,
	build func(context.Context, string, ...resource.Option) (T, error),
) ([]T, error) {
	body, err := c.fetcher.Get(ctx, endpoint, nil)
	if err != nil {
		return nil, err
	}
	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, &ninjakiwi.Error{Kind: ninjakiwi.ErrMalformedResponse, Path: endpoint, Err: err}
	}

	out := make([]T, 0, len(items))
	for i, item := range items {
		var head struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(item, &head); err != nil || head.ID == "" {
			return nil, &ninjakiwi.Error{Kind: ninjakiwi.ErrMalformedResponse, Path: endpoint, Err: fmt.Errorf("element %d has no id", i)}
		}
		v, err := build(ctx, head.ID, resource.WithFragment(item))
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// leaderboard fetches pages with the strategy of the catalog's mode.
func (c *Catalog) leaderboard(ctx context.Context, req ninjakiwi.PageRequest) ([]json.RawMessage, error) {
	return c.fetcher.FetchPages(ctx, req, c.mode.PageStrategy(c.workers))
}
