package btd6

import (
	"context"
	"encoding/json"
	"time"

	"github.com/okian/bloons/internal/domain/resource"
)

// CustomMapEndpoint is the custom map endpoint template.
const CustomMapEndpoint = "/btd6/maps/map/{id}"

var customMapErrors = resource.Translations{
	"No map with that ID exists": resource.ErrNotFound,
}

type customMapWire struct {
	Name         string `json:"name"`
	CreatedAt    int64  `json:"createdAt"`
	Creator      string `json:"creator"`
	GameVersion  string `json:"gameVersion"`
	Plays        int    `json:"plays"`
	Wins         int    `json:"wins"`
	Restarts     int    `json:"restarts"`
	Losses       int    `json:"losses"`
	Upvotes      int    `json:"upvotes"`
	PlaysUnique  int    `json:"playsUnique"`
	WinsUnique   int    `json:"winsUnique"`
	LossesUnique int    `json:"lossesUnique"`
	MapURL       string `json:"mapURL"`
}

// customMapDef is the resource.Definition of a custom map.
type customMapDef struct{}

func (customMapDef) Kind() string     { return "map" }
func (customMapDef) Endpoint() string { return CustomMapEndpoint }
func (customMapDef) RequiredKeys() []string {
	return []string{
		"name", "createdAt", "creator", "gameVersion", "mapURL",
		"plays", "wins", "restarts", "losses", "upvotes",
		"playsUnique", "winsUnique", "lossesUnique",
	}
}
func (customMapDef) TranslateError(err error) error { return customMapErrors.Translate(err) }

// Parse maps the full map document to its fields.
func (customMapDef) Parse(raw json.RawMessage) (resource.Fields, error) {
	var m customMapWire
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return resource.Fields{
		"name":         m.Name,
		"createdAt":    resource.Millis(m.CreatedAt),
		"creatorId":    ProfileUserID(m.Creator),
		"gameVersion":  m.GameVersion,
		"plays":        m.Plays,
		"wins":         m.Wins,
		"restarts":     m.Restarts,
		"losses":       m.Losses,
		"upvotes":      m.Upvotes,
		"playsUnique":  m.PlaysUnique,
		"winsUnique":   m.WinsUnique,
		"lossesUnique": m.LossesUnique,
		"mapURL":       m.MapURL,
	}, nil
}

// Seed keeps what map browser listings carry: name, creation time and
// creator.
func (customMapDef) Seed(raw json.RawMessage) (resource.Fields, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}
	var m customMapWire
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	fields := resource.Fields{}
	if _, ok := obj["name"]; ok {
		fields["name"] = m.Name
	}
	if _, ok := obj["createdAt"]; ok {
		fields["createdAt"] = resource.Millis(m.CreatedAt)
	}
	if _, ok := obj["creator"]; ok {
		fields["creatorId"] = ProfileUserID(m.Creator)
	}
	return fields, nil
}

// CustomMap is a player-made map.
type CustomMap struct {
	*resource.Loader
	catalog *Catalog
}

// Equal reports whether both values are the same map.
func (m *CustomMap) Equal(other *CustomMap) bool {
	return other != nil && m.Loader.Equal(other.Loader)
}

// Name is the map title.
func (m *CustomMap) Name(ctx context.Context) (string, error) {
	return resource.Get[string](ctx, m.Loader, "name")
}

// CreatedAt is when the map was uploaded, in UTC.
func (m *CustomMap) CreatedAt(ctx context.Context) (time.Time, error) {
	return resource.Get[time.Time](ctx, m.Loader, "createdAt")
}

// CreatorID is the ID of the player who made the map.
func (m *CustomMap) CreatorID(ctx context.Context) (string, error) {
	return resource.Get[string](ctx, m.Loader, "creatorId")
}

// Creator returns the player who made the map. Extra options apply to the
// returned User, e.g. resource.WithEager.
func (m *CustomMap) Creator(ctx context.Context, opts ...resource.Option) (*User, error) {
	id, err := m.CreatorID(ctx)
	if err != nil {
		return nil, err
	}
	return m.catalog.User(ctx, id, opts...)
}

// GameVersion is the game version the map was made in.
func (m *CustomMap) GameVersion(ctx context.Context) (string, error) {
	return resource.Get[string](ctx, m.Loader, "gameVersion")
}

// Plays counts games started on the map.
func (m *CustomMap) Plays(ctx context.Context) (int, error) {
	return resource.Get[int](ctx, m.Loader, "plays")
}

// Wins counts games won on the map.
func (m *CustomMap) Wins(ctx context.Context) (int, error) {
	return resource.Get[int](ctx, m.Loader, "wins")
}

// Restarts counts restarted games.
func (m *CustomMap) Restarts(ctx context.Context) (int, error) {
	return resource.Get[int](ctx, m.Loader, "restarts")
}

// Losses counts games lost on the map.
func (m *CustomMap) Losses(ctx context.Context) (int, error) {
	return resource.Get[int](ctx, m.Loader, "losses")
}

// Upvotes counts player likes.
func (m *CustomMap) Upvotes(ctx context.Context) (int, error) {
	return resource.Get[int](ctx, m.Loader, "upvotes")
}

// PlaysUnique counts distinct players who started the map.
func (m *CustomMap) PlaysUnique(ctx context.Context) (int, error) {
	return resource.Get[int](ctx, m.Loader, "playsUnique")
}

// WinsUnique counts distinct players who won the map.
func (m *CustomMap) WinsUnique(ctx context.Context) (int, error) {
	return resource.Get[int](ctx, m.Loader, "winsUnique")
}

// LossesUnique counts distinct players who lost the map.
func (m *CustomMap) LossesUnique(ctx context.Context) (int, error) {
	return resource.Get[int](ctx, m.Loader, "lossesUnique")
}

// Thumbnail is the URL of the map preview image.
func (m *CustomMap) Thumbnail(ctx context.Context) (string, error) {
	return resource.Get[string](ctx, m.Loader, "mapURL")
}
