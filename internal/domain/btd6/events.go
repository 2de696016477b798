package btd6

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/okian/bloons/internal/adapters/ninjakiwi"
	"github.com/okian/bloons/internal/domain/resource"
)

// Event list endpoints and leaderboard templates.
const (
	RacesEndpoint         = "/btd6/races"
	RaceLeaderboard       = "/btd6/races/{id}/leaderboard"
	BossesEndpoint        = "/btd6/bosses"
	BossLeaderboard       = "/btd6/bosses/{id}/leaderboard/{type}/{teamSize}"
	bossTypePlaceholder   = "{type}"
	maxBossTeamSize       = 4
	bossLeaderboardNormal = "standard"
	bossLeaderboardElite  = "elite"
)

var (
	raceErrors = resource.Translations{"No race with that ID exists": resource.ErrNotFound}
	bossErrors = resource.Translations{"No boss with that ID exists": resource.ErrNotFound}
)

// raceDef is the resource.EventDefinition of a race.
type raceDef struct{}

func (raceDef) Kind() string                   { return "race" }
func (raceDef) ListEndpoint() string           { return RacesEndpoint }
func (raceDef) RequiredKeys() []string         { return resource.EventKeys }
func (raceDef) TranslateError(err error) error { return raceErrors.Translate(err) }

// Parse maps a race list element, keeping totalScores when present.
func (raceDef) Parse(raw json.RawMessage) (resource.Fields, error) {
	fields, err := resource.EventFields(raw)
	if err != nil {
		return nil, err
	}
	var extra struct {
		TotalScores *int `json:"totalScores"`
	}
	if err := json.Unmarshal(raw, &extra); err != nil {
		return nil, err
	}
	if extra.TotalScores != nil {
		fields["totalScores"] = *extra.TotalScores
	}
	return fields, nil
}

// Race is a time-trial event.
type Race struct {
	*resource.Loader
	catalog *Catalog
}

// Equal reports whether both values are the same race.
func (r *Race) Equal(other *Race) bool {
	return other != nil && r.Loader.Equal(other.Loader)
}

// Name is the race title.
func (r *Race) Name(ctx context.Context) (string, error) {
	return resource.Get[string](ctx, r.Loader, "name")
}

// StartTime is when the race opens, in UTC. Start, from the embedded
// Loader, begins a load instead.
func (r *Race) StartTime(ctx context.Context) (time.Time, error) {
	return resource.Get[time.Time](ctx, r.Loader, "start")
}

// EndTime is when the race closes, in UTC.
func (r *Race) EndTime(ctx context.Context) (time.Time, error) {
	return resource.Get[time.Time](ctx, r.Loader, "end")
}

// TotalScores is the number of submitted scores.
func (r *Race) TotalScores(ctx context.Context) (int, error) {
	return resource.Get[int](ctx, r.Loader, "totalScores")
}

// Leaderboard fetches count pages starting at page start, in rank order.
func (r *Race) Leaderboard(ctx context.Context, start, count int) ([]RaceEntry, error) {
	records, err := r.catalog.leaderboard(ctx, ninjakiwi.PageRequest{
		Template: RaceLeaderboard,
		ID:       r.ID(),
		Start:    start,
		Count:    count,
	})
	if err != nil {
		return nil, err
	}
	return decodeEntries(RaceLeaderboard, records, raceEntry)
}

// bossDef is the resource.EventDefinition of a boss event.
type bossDef struct{}

func (bossDef) Kind() string                   { return "boss" }
func (bossDef) ListEndpoint() string           { return BossesEndpoint }
func (bossDef) RequiredKeys() []string         { return []string{"name", "start", "end", "bossType"} }
func (bossDef) TranslateError(err error) error { return bossErrors.Translate(err) }

// Parse maps a boss list element with its type and per-difficulty totals.
func (bossDef) Parse(raw json.RawMessage) (resource.Fields, error) {
	fields, err := resource.EventFields(raw)
	if err != nil {
		return nil, err
	}
	var extra struct {
		BossType            string `json:"bossType"`
		BossTypeURL         string `json:"bossTypeURL"`
		TotalScoresStandard int    `json:"totalScores_standard"`
		TotalScoresElite    int    `json:"totalScores_elite"`
	}
	if err := json.Unmarshal(raw, &extra); err != nil {
		return nil, err
	}
	fields["bossType"] = Asset{Name: extra.BossType, URL: extra.BossTypeURL}
	fields["totalScoresStandard"] = extra.TotalScoresStandard
	fields["totalScoresElite"] = extra.TotalScoresElite
	return fields, nil
}

// Boss is a boss bloon event with a standard and an elite difficulty.
type Boss struct {
	*resource.Loader
	catalog *Catalog
}

// Equal reports whether both values are the same boss event.
func (b *Boss) Equal(other *Boss) bool {
	return other != nil && b.Loader.Equal(other.Loader)
}

// Name is the event title.
func (b *Boss) Name(ctx context.Context) (string, error) {
	return resource.Get[string](ctx, b.Loader, "name")
}

// StartTime is when the event opens, in UTC.
func (b *Boss) StartTime(ctx context.Context) (time.Time, error) {
	return resource.Get[time.Time](ctx, b.Loader, "start")
}

// EndTime is when the event closes, in UTC.
func (b *Boss) EndTime(ctx context.Context) (time.Time, error) {
	return resource.Get[time.Time](ctx, b.Loader, "end")
}

// Type names the boss bloon and links its icon.
func (b *Boss) Type(ctx context.Context) (Asset, error) {
	return resource.Get[Asset](ctx, b.Loader, "bossType")
}

// TotalScores is the number of submitted scores for one difficulty.
func (b *Boss) TotalScores(ctx context.Context, elite bool) (int, error) {
	if elite {
		return resource.Get[int](ctx, b.Loader, "totalScoresElite")
	}
	return resource.Get[int](ctx, b.Loader, "totalScoresStandard")
}

// Leaderboard fetches count pages of the leaderboard for one difficulty and
// team size (1 to 4 players).
func (b *Boss) Leaderboard(ctx context.Context, elite bool, teamSize, start, count int) ([]BossEntry, error) {
	if teamSize < 1 || teamSize > maxBossTeamSize {
		return nil, &ninjakiwi.Error{Kind: ninjakiwi.ErrBadRequest, Path: BossLeaderboard, Err: fmt.Errorf("team size %d", teamSize)}
	}
	kind := bossLeaderboardNormal
	if elite {
		kind = bossLeaderboardElite
	}
	template := replaceOnce(BossLeaderboard, bossTypePlaceholder, kind)
	records, err := b.catalog.leaderboard(ctx, ninjakiwi.PageRequest{
		Template: template,
		ID:       b.ID(),
		TeamSize: teamSize,
		Start:    start,
		Count:    count,
	})
	if err != nil {
		return nil, err
	}
	return decodeEntries(template, records, bossEntry)
}
