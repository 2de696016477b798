package ninjakiwi_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/okian/bloons/internal/adapters/ninjakiwi"
	"github.com/okian/bloons/internal/adapters/worker"
	. "github.com/smartystreets/goconvey/convey"
)

// leaderboardServer serves pages keyed by page number. Missing pages answer
// "No Scores Available"; delays slow individual pages down.
func leaderboardServer(pages map[int][]string, delays map[int]time.Duration, failing map[int]int) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		time.Sleep(delays[page])
		if status, ok := failing[page]; ok {
			writeEnvelope(w, status, false, nil, "boom")
			return
		}
		entries, ok := pages[page]
		if !ok {
			writeEnvelope(w, http.StatusOK, false, nil, ninjakiwi.NoScoresMessage)
			return
		}
		body := make([]map[string]string, 0, len(entries))
		for _, e := range entries {
			body = append(body, map[string]string{"displayName": e, "path": r.URL.Path})
		}
		writeEnvelope(w, http.StatusOK, true, body, "")
	}))
}

func names(records []json.RawMessage) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		var e struct {
			DisplayName string `json:"displayName"`
		}
		_ = json.Unmarshal(r, &e)
		out = append(out, e.DisplayName)
	}
	return out
}

func TestFetchPage(t *testing.T) {
	Convey("Given a leaderboard with one page", t, func() {
		srv := leaderboardServer(map[int][]string{1: {"a", "b"}}, nil, nil)
		defer srv.Close()
		client := newClient(srv, newFakeClock())

		Convey("When fetching the populated page", func() {
			records, err := client.FetchPage(context.Background(), "/btd6/races/r1/leaderboard", 1)

			Convey("Then the records come back in order", func() {
				So(err, ShouldBeNil)
				So(names(records), ShouldResemble, []string{"a", "b"})
			})
		})

		Convey("When fetching a page past the end", func() {
			records, err := client.FetchPage(context.Background(), "/btd6/races/r1/leaderboard", 7)

			Convey("Then an empty page is returned without error", func() {
				So(err, ShouldBeNil)
				So(records, ShouldNotBeNil)
				So(records, ShouldBeEmpty)
			})
		})
	})

	Convey("Given an endpoint whose body is not a list", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			writeEnvelope(w, http.StatusOK, true, map[string]int{"x": 1}, "")
		}))
		defer srv.Close()

		_, err := newClient(srv, newFakeClock()).FetchPage(context.Background(), "/btd6/races/r1/leaderboard", 1)

		Convey("Then the page is malformed", func() {
			So(errors.Is(err, ninjakiwi.ErrMalformedResponse), ShouldBeTrue)
		})
	})

	Convey("Given other application errors", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			writeEnvelope(w, http.StatusOK, false, nil, "No race with that ID exists")
		}))
		defer srv.Close()

		_, err := newClient(srv, newFakeClock()).FetchPage(context.Background(), "/btd6/races/r1/leaderboard", 1)

		Convey("Then they propagate", func() {
			So(errors.Is(err, ninjakiwi.ErrApplication), ShouldBeTrue)
			So(ninjakiwi.IsNoScores(err), ShouldBeFalse)
		})
	})
}

func TestFetchPages(t *testing.T) {
	strategies := []worker.Strategy{worker.NewPool(10), worker.Gather{}}

	Convey("Given a leaderboard whose second page answers last", t, func() {
		srv := leaderboardServer(
			map[int][]string{1: {"p1a"}, 2: {"p2a", "p2b"}, 3: {"p3a", "p3b"}},
			map[int]time.Duration{2: 60 * time.Millisecond},
			nil,
		)
		defer srv.Close()
		client := newClient(srv, newFakeClock())

		for _, s := range strategies {
			Convey("When fetching pages 2 and 3 with "+s.Name(), func() {
				records, err := client.FetchPages(context.Background(), ninjakiwi.PageRequest{
					Template: "/btd6/races/{id}/leaderboard",
					ID:       "r1",
					Start:    2,
					Count:    2,
				}, s)

				Convey("Then page 2 precedes page 3 in original order", func() {
					So(err, ShouldBeNil)
					So(names(records), ShouldResemble, []string{"p2a", "p2b", "p3a", "p3b"})
				})
			})
		}
	})

	Convey("Given a leaderboard with two populated pages", t, func() {
		srv := leaderboardServer(map[int][]string{1: {"a", "b"}, 2: {"c"}}, nil, nil)
		defer srv.Close()
		client := newClient(srv, newFakeClock())

		for _, s := range strategies {
			Convey("When fetching pages 1 through 3 with "+s.Name(), func() {
				records, err := client.FetchPages(context.Background(), ninjakiwi.PageRequest{
					Template: "/btd6/races/{id}/leaderboard",
					ID:       "r1",
					Start:    1,
					Count:    3,
				}, s)

				Convey("Then the empty third page contributes nothing", func() {
					So(err, ShouldBeNil)
					So(names(records), ShouldResemble, []string{"a", "b", "c"})
				})
			})
		}

		Convey("When no pages are requested", func() {
			records, err := client.FetchPages(context.Background(), ninjakiwi.PageRequest{Template: "/x", Count: 0}, nil)
			So(err, ShouldBeNil)
			So(records, ShouldBeEmpty)
		})

		Convey("When the start page is invalid", func() {
			_, err := client.FetchPages(context.Background(), ninjakiwi.PageRequest{Template: "/x", Start: 0, Count: 1}, nil)
			So(errors.Is(err, ninjakiwi.ErrBadRequest), ShouldBeTrue)
		})
	})

	Convey("Given a leaderboard where one page fails", t, func() {
		srv := leaderboardServer(
			map[int][]string{1: {"a"}, 3: {"c"}},
			nil,
			map[int]int{2: http.StatusBadGateway},
		)
		defer srv.Close()
		client := newClient(srv, newFakeClock())

		for _, s := range strategies {
			Convey("When fetching pages 1 through 3 with "+s.Name(), func() {
				records, err := client.FetchPages(context.Background(), ninjakiwi.PageRequest{
					Template: "/btd6/races/{id}/leaderboard",
					ID:       "r1",
					Start:    1,
					Count:    3,
				}, s)

				Convey("Then the whole operation fails", func() {
					So(errors.Is(err, ninjakiwi.ErrServer), ShouldBeTrue)
					So(records, ShouldBeNil)
				})
			})
		}
	})
}

func TestPageRequestEndpoint(t *testing.T) {
	Convey("Given a boss leaderboard template", t, func() {
		req := ninjakiwi.PageRequest{
			Template: "/btd6/bosses/{id}/leaderboard/elite/{teamSize}",
			ID:       "bloonarius 12",
			TeamSize: 2,
		}

		Convey("Then both placeholders are expanded and the ID escaped", func() {
			So(req.Endpoint(), ShouldEqual, "/btd6/bosses/bloonarius%2012/leaderboard/elite/2")
		})
	})
}
