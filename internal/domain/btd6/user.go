package btd6

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/okian/bloons/internal/domain/resource"
)

// UserEndpoint is the profile endpoint template.
const UserEndpoint = "/btd6/users/{id}"

var userErrors = resource.Translations{
	"Invalid user ID / Player Does not play this game": resource.ErrNotFound,
}

// Asset is an image referenced by name and URL.
type Asset struct {
	Name string
	URL  string
}

// GameplayStats are a player's lifetime counters.
type GameplayStats struct {
	MostExperiencedMonkey string
	CashEarned            int64
	ChallengesCompleted   int64
	GameCount             int64
	GamesWon              int64
	HighestRound          int64
	HighestRoundCHIMPS    int64
	HighestRoundDeflation int64
	PowersUsed            int64
	TotalTrophiesEarned   int64
	DamageDoneToBosses    int64
	BloonsLeaked          int64
	// BloonsPopped is keyed by bloon class, e.g. "moabs".
	BloonsPopped map[string]int64
}

var statsKeys = []resource.KeyPair{
	{From: "gameplay.cashEarned", To: "cash_earned"},
	{From: "gameplay.challengesCompleted", To: "challenges_completed"},
	{From: "gameplay.gameCount", To: "game_count"},
	{From: "gameplay.gamesWon", To: "games_won"},
	{From: "gameplay.highestRound", To: "highest_round"},
	{From: "gameplay.highestRoundCHIMPS", To: "highest_round_chimps"},
	{From: "gameplay.highestRoundDeflation", To: "highest_round_deflation"},
	{From: "gameplay.powersUsed", To: "powers_used"},
	{From: "gameplay.totalTrophiesEarned", To: "total_trophies_earned"},
	{From: "gameplay.damageDoneToBosses", To: "damage_done_to_bosses"},
	{From: "bloonsPopped.bloonsLeaked", To: "bloons_leaked"},
}

var bloonsPoppedKeys = []resource.KeyPair{
	{From: "bloonsPopped", To: "total"},
	{From: "coopBloonsPopped", To: "total_coop"},
	{From: "camosPopped", To: "camos"},
	{From: "regrowsPopped", To: "regrows"},
	{From: "purplesPopped", To: "purples"},
	{From: "leadsPopped", To: "leads"},
	{From: "ceramicsPopped", To: "ceramics"},
	{From: "moabsPopped", To: "moabs"},
	{From: "bfbsPopped", To: "bfbs"},
	{From: "zomgsPopped", To: "zomgs"},
	{From: "badsPopped", To: "bads"},
	{From: "goldenBloonsPopped", To: "golden"},
}

var mapMedalKeys = []resource.KeyPair{
	{From: "CHIMPS-BLACK", To: "chimps_black"},
	{From: "Clicks", To: "chimps_red"},
	{From: "Easy", To: "easy"},
	{From: "Medium", To: "medium"},
	{From: "Hard", To: "hard"},
	{From: "PrimaryOnly", To: "primary_only"},
	{From: "Deflation", To: "deflation"},
	{From: "MilitaryOnly", To: "military_only"},
	{From: "Apopalypse", To: "apopalypse"},
	{From: "Reverse", To: "reverse"},
	{From: "MagicOnly", To: "magic_only"},
	{From: "HalfCash", To: "half_cash"},
	{From: "DoubleMoabHealth", To: "double_hp_moabs"},
	{From: "AlternateBloonsRounds", To: "alternate_bloons_rounds"},
	{From: "Impoppable", To: "impoppable"},
}

var eventMedalKeys = []resource.KeyPair{
	{From: "BlackDiamond", To: "first"},
	{From: "RedDiamond", To: "second"},
	{From: "Diamond", To: "third"},
	{From: "GoldDiamond", To: "top_50"},
	{From: "DoubleGold", To: "top_1_percent"},
	{From: "GoldSilver", To: "top_10_percent"},
	{From: "DoubleSilver", To: "top_25_percent"},
	{From: "Silver", To: "top_50_percent"},
	{From: "Bronze", To: "top_75_percent"},
}

// Medal sets.
const (
	MedalsSinglePlayer = "medals_single_player"
	MedalsCoop         = "medals_coop"
	MedalsRace         = "medals_race"
	MedalsBoss         = "medals_boss"
	MedalsBossElite    = "medals_boss_elite"
)

var medalSources = []struct {
	key   string
	field string
	pairs []resource.KeyPair
}{
	{"_medalsSinglePlayer", MedalsSinglePlayer, mapMedalKeys},
	{"_medalsMultiplayer", MedalsCoop, mapMedalKeys},
	{"_medalsRace", MedalsRace, eventMedalKeys},
	{"_medalsBoss", MedalsBoss, eventMedalKeys},
	{"_medalsBossElite", MedalsBossElite, eventMedalKeys},
}

// userDef is the resource.Definition of a player profile.
type userDef struct{}

func (userDef) Kind() string     { return "user" }
func (userDef) Endpoint() string { return UserEndpoint }
func (userDef) RequiredKeys() []string {
	return []string{"displayName", "rank", "veteranRank", "achievements", "followers", "avatarURL", "bannerURL"}
}
func (userDef) TranslateError(err error) error { return userErrors.Translate(err) }

// Parse maps a profile document, renaming stat and medal keys.
func (userDef) Parse(raw json.RawMessage) (resource.Fields, error) {
	var u struct {
		DisplayName           string           `json:"displayName"`
		Rank                  int              `json:"rank"`
		VeteranRank           int              `json:"veteranRank"`
		Achievements          int              `json:"achievements"`
		Followers             int              `json:"followers"`
		Avatar                string           `json:"avatar"`
		AvatarURL             string           `json:"avatarURL"`
		Banner                string           `json:"banner"`
		BannerURL             string           `json:"bannerURL"`
		MostExperiencedMonkey string           `json:"mostExperiencedMonkey"`
		HeroesPlaced          map[string]int64 `json:"heroesPlaced"`
	}
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}

	stats := resource.RenameKeys(doc, statsKeys)
	popped, _ := doc["bloonsPopped"].(map[string]any)

	fields := resource.Fields{
		"displayName":  u.DisplayName,
		"rank":         u.Rank,
		"veteranRank":  u.VeteranRank,
		"achievements": u.Achievements,
		"followers":    u.Followers,
		"avatar":       Asset{Name: u.Avatar, URL: u.AvatarURL},
		"banner":       Asset{Name: u.Banner, URL: u.BannerURL},
		"heroesPlaced": nonNil(u.HeroesPlaced),
		"stats": GameplayStats{
			MostExperiencedMonkey: u.MostExperiencedMonkey,
			CashEarned:            intOf(stats["cash_earned"]),
			ChallengesCompleted:   intOf(stats["challenges_completed"]),
			GameCount:             intOf(stats["game_count"]),
			GamesWon:              intOf(stats["games_won"]),
			HighestRound:          intOf(stats["highest_round"]),
			HighestRoundCHIMPS:    intOf(stats["highest_round_chimps"]),
			HighestRoundDeflation: intOf(stats["highest_round_deflation"]),
			PowersUsed:            intOf(stats["powers_used"]),
			TotalTrophiesEarned:   intOf(stats["total_trophies_earned"]),
			DamageDoneToBosses:    intOf(stats["damage_done_to_bosses"]),
			BloonsLeaked:          intOf(stats["bloons_leaked"]),
			BloonsPopped:          counts(resource.RenameKeys(popped, bloonsPoppedKeys)),
		},
	}
	for _, m := range medalSources {
		src, _ := doc[m.key].(map[string]any)
		fields[m.field] = counts(resource.RenameKeys(src, m.pairs))
	}
	return fields, nil
}

// User is a BTD6 player.
type User struct {
	*resource.Loader
}

// Equal reports whether both values are the same player.
func (u *User) Equal(other *User) bool {
	return other != nil && u.Loader.Equal(other.Loader)
}

// Name is the display name.
func (u *User) Name(ctx context.Context) (string, error) {
	return resource.Get[string](ctx, u.Loader, "displayName")
}

// Rank is the player level.
func (u *User) Rank(ctx context.Context) (int, error) {
	return resource.Get[int](ctx, u.Loader, "rank")
}

// VeteranRank is zero until the player reaches veteran levels.
func (u *User) VeteranRank(ctx context.Context) (int, error) {
	return resource.Get[int](ctx, u.Loader, "veteranRank")
}

// Achievements counts unlocked achievements.
func (u *User) Achievements(ctx context.Context) (int, error) {
	return resource.Get[int](ctx, u.Loader, "achievements")
}

// Followers counts the players following this one.
func (u *User) Followers(ctx context.Context) (int, error) {
	return resource.Get[int](ctx, u.Loader, "followers")
}

// Avatar is the profile picture.
func (u *User) Avatar(ctx context.Context) (Asset, error) {
	return resource.Get[Asset](ctx, u.Loader, "avatar")
}

// Banner is the profile banner.
func (u *User) Banner(ctx context.Context) (Asset, error) {
	return resource.Get[Asset](ctx, u.Loader, "banner")
}

// Stats returns lifetime gameplay counters.
func (u *User) Stats(ctx context.Context) (GameplayStats, error) {
	return resource.Get[GameplayStats](ctx, u.Loader, "stats")
}

// HeroesPlaced counts placements per hero.
func (u *User) HeroesPlaced(ctx context.Context) (map[string]int64, error) {
	return resource.Get[map[string]int64](ctx, u.Loader, "heroesPlaced")
}

// Medals returns one medal set, e.g. MedalsRace.
func (u *User) Medals(ctx context.Context, set string) (map[string]int64, error) {
	return resource.Get[map[string]int64](ctx, u.Loader, set)
}

// ProfileUserID reduces a profile URL to the user ID, its last path segment.
func ProfileUserID(profile string) string {
	profile = strings.TrimRight(profile, "/")
	if i := strings.LastIndex(profile, "/"); i >= 0 {
		return profile[i+1:]
	}
	return profile
}

func intOf(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case json.Number:
		i, _ := n.Int64()
		return i
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}

func counts(m map[string]any) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = intOf(v)
	}
	return out
}

func nonNil(m map[string]int64) map[string]int64 {
	if m == nil {
		return map[string]int64{}
	}
	return m
}
