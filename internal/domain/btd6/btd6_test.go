package btd6_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/okian/bloons/internal/adapters/ninjakiwi"
	"github.com/okian/bloons/internal/domain/btd6"
	"github.com/okian/bloons/internal/domain/resource"
	logging "github.com/okian/bloons/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logging.Init()
}

const (
	userBody = `{
		"displayName":"Monkey","rank":155,"veteranRank":12,"achievements":140,"followers":3,
		"avatar":"ProfileAvatar01","avatarURL":"https://static.example/avatar.png",
		"banner":"TeamsBannerDeafult","bannerURL":"https://static.example/banner.png",
		"mostExperiencedMonkey":"DartMonkey",
		"heroesPlaced":{"Quincy":10,"Gwendolin":4},
		"gameplay":{"cashEarned":123456,"gameCount":900,"gamesWon":450,"highestRound":200},
		"bloonsPopped":{"bloonsPopped":99999,"moabsPopped":120,"bloonsLeaked":7},
		"_medalsSinglePlayer":{"Easy":30,"CHIMPS-BLACK":2},
		"_medalsRace":{"BlackDiamond":1}
	}`
	mapBody = `{
		"name":"Loop","createdAt":1700000000000,"creator":"https://data.ninjakiwi.com/btd6/users/u1",
		"gameVersion":"39.2","mapURL":"https://static.example/map.png",
		"plays":10,"wins":4,"restarts":2,"losses":6,"upvotes":3,
		"playsUnique":8,"winsUnique":3,"lossesUnique":5
	}`
	racesBody = `[
		{"id":"r1","name":"Speedy","start":1700000000000,"end":1700600000000,"totalScores":42},
		{"id":"r2","name":"Slow","start":1700000000000,"end":1700600000000,"totalScores":7}
	]`
	bossesBody = `[
		{"id":"b1","name":"Bloonarius","bossType":"bloonarius","bossTypeURL":"https://static.example/b.png",
		 "start":1700000000000,"end":1700600000000,"totalScores_standard":100,"totalScores_elite":20}
	]`
)

// apiServer serves a small fake of the data API and counts hits per path.
type apiServer struct {
	*httptest.Server
	mu   sync.Mutex
	hits map[string]int
}

func newAPIServer() *apiServer {
	s := &apiServer{hits: map[string]int{}}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

func (s *apiServer) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func (s *apiServer) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.hits[r.URL.Path]++
	s.mu.Unlock()

	page := r.URL.Query().Get("page")
	switch r.URL.Path {
	case "/btd6/users/u1":
		ok(w, userBody)
	case "/btd6/users/missing":
		fail(w, "Invalid user ID / Player Does not play this game")
	case "/btd6/maps/map/ZMDCDTB":
		ok(w, mapBody)
	case "/btd6/maps/map/NOPE":
		fail(w, "No map with that ID exists")
	case "/btd6/races":
		ok(w, racesBody)
	case "/btd6/bosses":
		ok(w, bossesBody)
	case "/btd6/races/r1/leaderboard":
		switch page {
		case "1":
			ok(w, `[{"displayName":"A","score":61000,"submissionTime":1700000001000,"profile":"https://data.ninjakiwi.com/btd6/users/ua"},
			        {"displayName":"B","score":62000,"submissionTime":1700000002000,"profile":"https://data.ninjakiwi.com/btd6/users/ub"}]`)
		case "2":
			time.Sleep(20 * time.Millisecond)
			ok(w, `[{"displayName":"C","score":70000,"submissionTime":1700000003000,"profile":"https://data.ninjakiwi.com/btd6/users/uc"}]`)
		default:
			fail(w, "No Scores Available")
		}
	case "/btd6/bosses/b1/leaderboard/elite/2":
		if page == "1" {
			ok(w, `[{"displayName":"Duo","score":300000,"submissionTime":1700000001000,"profile":"https://data.ninjakiwi.com/btd6/users/ud",
			        "scoreParts":[{"score":300000,"type":"time","name":"Game Time"},{"score":12,"type":"number","name":"Tiers"}]}]`)
			return
		}
		fail(w, "No Scores Available")
	default:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
	}
}

func ok(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"success":true,"error":null,"body":` + body + `}`))
}

func fail(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	b, _ := json.Marshal(map[string]any{"success": false, "error": msg})
	_, _ = w.Write(b)
}

func newCatalog(srv *apiServer, opts ...btd6.Option) *btd6.Catalog {
	client := ninjakiwi.New(ninjakiwi.WithBaseURL(srv.URL), ninjakiwi.WithHTTPDoer(srv.Client()))
	return btd6.NewCatalog(client, opts...)
}

func TestUser(t *testing.T) {
	ctx := context.Background()

	Convey("Given a user", t, func() {
		srv := newAPIServer()
		defer srv.Close()
		cat := newCatalog(srv)

		u, err := cat.User(ctx, "u1")
		So(err, ShouldBeNil)
		So(u.Loaded(), ShouldBeFalse)

		Convey("When attributes are read", func() {
			name, err := u.Name(ctx)
			So(err, ShouldBeNil)
			rank, _ := u.Rank(ctx)
			vet, _ := u.VeteranRank(ctx)
			followers, _ := u.Followers(ctx)
			avatar, _ := u.Avatar(ctx)
			stats, _ := u.Stats(ctx)
			heroes, _ := u.HeroesPlaced(ctx)
			single, _ := u.Medals(ctx, btd6.MedalsSinglePlayer)
			race, _ := u.Medals(ctx, btd6.MedalsRace)
			coop, _ := u.Medals(ctx, btd6.MedalsCoop)

			Convey("Then they come from one fetch", func() {
				So(srv.Hits("/btd6/users/u1"), ShouldEqual, 1)
				So(name, ShouldEqual, "Monkey")
				So(rank, ShouldEqual, 155)
				So(vet, ShouldEqual, 12)
				So(followers, ShouldEqual, 3)
				So(avatar, ShouldResemble, btd6.Asset{Name: "ProfileAvatar01", URL: "https://static.example/avatar.png"})
				So(stats.CashEarned, ShouldEqual, 123456)
				So(stats.GamesWon, ShouldEqual, 450)
				So(stats.BloonsLeaked, ShouldEqual, 7)
				So(stats.MostExperiencedMonkey, ShouldEqual, "DartMonkey")
				So(stats.BloonsPopped["moabs"], ShouldEqual, 120)
				So(stats.BloonsPopped["total"], ShouldEqual, 99999)
				So(heroes["Quincy"], ShouldEqual, 10)
				So(single, ShouldResemble, map[string]int64{"easy": 30, "chimps_black": 2})
				So(race, ShouldResemble, map[string]int64{"first": 1})
				So(coop, ShouldBeEmpty)
			})
		})
	})

	Convey("Given an unknown user", t, func() {
		srv := newAPIServer()
		defer srv.Close()
		cat := newCatalog(srv)

		_, err := cat.User(ctx, "missing", resource.WithEager())

		Convey("Then construction fails with ErrNotFound", func() {
			So(errors.Is(err, resource.ErrNotFound), ShouldBeTrue)
			So(errors.Is(err, ninjakiwi.ErrApplication), ShouldBeTrue)
		})
	})

	Convey("Given profile URLs", t, func() {
		So(btd6.ProfileUserID("https://data.ninjakiwi.com/btd6/users/abc"), ShouldEqual, "abc")
		So(btd6.ProfileUserID("https://data.ninjakiwi.com/btd6/users/abc/"), ShouldEqual, "abc")
		So(btd6.ProfileUserID("abc"), ShouldEqual, "abc")
	})
}

func TestCustomMap(t *testing.T) {
	ctx := context.Background()

	Convey("Given a custom map built from its code", t, func() {
		srv := newAPIServer()
		defer srv.Close()
		cat := newCatalog(srv)

		m, err := cat.CustomMap(ctx, "ZMDCDTB")
		So(err, ShouldBeNil)
		So(m.Loaded(), ShouldBeFalse)

		Convey("When its name is read", func() {
			name, err := m.Name(ctx)

			Convey("Then exactly one fetch loads it", func() {
				So(err, ShouldBeNil)
				So(name, ShouldEqual, "Loop")
				So(m.Loaded(), ShouldBeTrue)
				So(srv.Hits("/btd6/maps/map/ZMDCDTB"), ShouldEqual, 1)

				created, _ := m.CreatedAt(ctx)
				So(created.Equal(time.UnixMilli(1700000000000)), ShouldBeTrue)
				version, _ := m.GameVersion(ctx)
				So(version, ShouldEqual, "39.2")
				plays, _ := m.Plays(ctx)
				So(plays, ShouldEqual, 10)
				thumb, _ := m.Thumbnail(ctx)
				So(thumb, ShouldEqual, "https://static.example/map.png")
				So(srv.Hits("/btd6/maps/map/ZMDCDTB"), ShouldEqual, 1)
			})
		})

		Convey("When its creator is requested", func() {
			creator, err := m.Creator(ctx)

			Convey("Then a lazy user with the creator ID is returned", func() {
				So(err, ShouldBeNil)
				So(creator.ID(), ShouldEqual, "u1")
				So(creator.Loaded(), ShouldBeFalse)
				So(srv.Hits("/btd6/users/u1"), ShouldEqual, 0)
			})
		})
	})

	Convey("Given a map seeded from a browser listing", t, func() {
		srv := newAPIServer()
		defer srv.Close()
		cat := newCatalog(srv)

		m, err := cat.CustomMap(ctx, "ZMDCDTB", resource.WithFragment(json.RawMessage(
			`{"id":"ZMDCDTB","name":"Loop","createdAt":1700000000000,"creator":"https://data.ninjakiwi.com/btd6/users/u1"}`)))
		So(err, ShouldBeNil)

		Convey("Then listed fields need no fetch", func() {
			So(m.Loaded(), ShouldBeFalse)
			name, _ := m.Name(ctx)
			creator, _ := m.CreatorID(ctx)
			So(name, ShouldEqual, "Loop")
			So(creator, ShouldEqual, "u1")
			So(srv.Hits("/btd6/maps/map/ZMDCDTB"), ShouldEqual, 0)
		})

		Convey("Then other fields load the map", func() {
			wins, err := m.Wins(ctx)
			So(err, ShouldBeNil)
			So(wins, ShouldEqual, 4)
			So(srv.Hits("/btd6/maps/map/ZMDCDTB"), ShouldEqual, 1)
		})
	})

	Convey("Given an unknown map code", t, func() {
		srv := newAPIServer()
		defer srv.Close()
		cat := newCatalog(srv)

		m, _ := cat.CustomMap(ctx, "NOPE")
		_, err := m.Name(ctx)

		Convey("Then ErrNotFound is returned and the map stays unloaded", func() {
			So(errors.Is(err, resource.ErrNotFound), ShouldBeTrue)
			So(m.Loaded(), ShouldBeFalse)
		})
	})
}

func TestEvents(t *testing.T) {
	ctx := context.Background()

	Convey("Given the race list", t, func() {
		srv := newAPIServer()
		defer srv.Close()
		cat := newCatalog(srv)

		races, err := cat.Races(ctx)
		So(err, ShouldBeNil)

		Convey("Then every race is seeded without further fetches", func() {
			So(races, ShouldHaveLength, 2)
			So(srv.Hits("/btd6/races"), ShouldEqual, 1)
			for _, r := range races {
				So(r.Loaded(), ShouldBeTrue)
			}
			name, _ := races[1].Name(ctx)
			total, _ := races[0].TotalScores(ctx)
			So(name, ShouldEqual, "Slow")
			So(total, ShouldEqual, 42)
			So(srv.Hits("/btd6/races"), ShouldEqual, 1)
		})

		Convey("Then a race looked up by ID equals the listed one", func() {
			r, err := cat.Race(ctx, "r1")
			So(err, ShouldBeNil)
			So(r.Equal(races[0]), ShouldBeTrue)
			So(r.Equal(races[1]), ShouldBeFalse)
		})
	})

	Convey("Given a race looked up lazily", t, func() {
		srv := newAPIServer()
		defer srv.Close()
		cat := newCatalog(srv)

		r, _ := cat.Race(ctx, "r2")
		end, err := r.EndTime(ctx)

		Convey("Then the list is scanned for it", func() {
			So(err, ShouldBeNil)
			So(end.Equal(time.UnixMilli(1700600000000)), ShouldBeTrue)
			So(srv.Hits("/btd6/races"), ShouldEqual, 1)
		})

		Convey("Then an absent race is not found", func() {
			missing, _ := cat.Race(ctx, "nope")
			_, err := missing.Name(ctx)
			So(errors.Is(err, resource.ErrNotFound), ShouldBeTrue)
		})
	})

	Convey("Given a deferred race", t, func() {
		srv := newAPIServer()
		defer srv.Close()
		cat := newCatalog(srv, btd6.WithMode(resource.Deferred))

		r, _ := cat.Race(ctx, "r2")
		_, err := r.StartTime(ctx)
		So(errors.Is(err, resource.ErrNotLoaded), ShouldBeTrue)

		Convey("When its load is started and awaited", func() {
			So(r.Start(ctx, false).Wait(ctx), ShouldBeNil)
			start, err := r.StartTime(ctx)

			Convey("Then its times are served without another fetch", func() {
				So(err, ShouldBeNil)
				So(start.Equal(time.UnixMilli(1700000000000)), ShouldBeTrue)
				So(r.Loaded(), ShouldBeTrue)
				So(srv.Hits("/btd6/races"), ShouldEqual, 1)
			})
		})
	})

	Convey("Given the boss list", t, func() {
		srv := newAPIServer()
		defer srv.Close()
		cat := newCatalog(srv)

		bosses, err := cat.Bosses(ctx)
		So(err, ShouldBeNil)
		So(bosses, ShouldHaveLength, 1)
		b := bosses[0]

		Convey("Then boss attributes are available", func() {
			So(b.Loaded(), ShouldBeTrue)
			typ, _ := b.Type(ctx)
			elite, _ := b.TotalScores(ctx, true)
			standard, _ := b.TotalScores(ctx, false)
			So(typ.Name, ShouldEqual, "bloonarius")
			So(elite, ShouldEqual, 20)
			So(standard, ShouldEqual, 100)
		})
	})
}

func TestLeaderboards(t *testing.T) {
	ctx := context.Background()

	for _, mode := range []resource.Mode{resource.Blocking, resource.Deferred} {
		Convey("Given a race leaderboard in "+mode.String()+" mode", t, func() {
			srv := newAPIServer()
			defer srv.Close()
			cat := newCatalog(srv, btd6.WithMode(mode), btd6.WithPageWorkers(2))

			r, _ := cat.Race(ctx, "r1")

			Convey("When pages 1 to 3 are fetched and page 3 has no scores", func() {
				entries, err := r.Leaderboard(ctx, 1, 3)

				Convey("Then pages 1 and 2 are merged in order", func() {
					So(err, ShouldBeNil)
					names := make([]string, 0, len(entries))
					for _, e := range entries {
						names = append(names, e.DisplayName)
					}
					So(names, ShouldResemble, []string{"A", "B", "C"})
					So(entries[0].UserID, ShouldEqual, "ua")
					So(entries[0].Score, ShouldEqual, 61*time.Second)
					So(entries[2].SubmissionTime.Equal(time.UnixMilli(1700000003000)), ShouldBeTrue)
				})

				Convey("Then the race itself was never loaded", func() {
					So(r.Loaded(), ShouldBeFalse)
					So(srv.Hits("/btd6/races"), ShouldEqual, 0)
				})
			})
		})
	}

	Convey("Given a boss leaderboard", t, func() {
		srv := newAPIServer()
		defer srv.Close()
		cat := newCatalog(srv)
		b, _ := cat.Boss(ctx, "b1")

		Convey("When the elite duo board is fetched", func() {
			entries, err := b.Leaderboard(ctx, true, 2, 1, 2)

			Convey("Then entries carry their score parts", func() {
				So(err, ShouldBeNil)
				So(entries, ShouldHaveLength, 1)
				e := entries[0]
				So(e.UserID, ShouldEqual, "ud")
				So(e.ScoreParts, ShouldHaveLength, 2)
				d, isTime := e.ScoreParts[0].Duration()
				So(isTime, ShouldBeTrue)
				So(d, ShouldEqual, 300*time.Second)
				_, isTime = e.ScoreParts[1].Duration()
				So(isTime, ShouldBeFalse)
			})
		})

		Convey("When the team size is out of range", func() {
			_, err := b.Leaderboard(ctx, false, 5, 1, 1)

			Convey("Then it is rejected before any request", func() {
				So(errors.Is(err, ninjakiwi.ErrBadRequest), ShouldBeTrue)
				So(strings.Contains(err.Error(), "team size 5"), ShouldBeTrue)
			})
		})
	})
}
