package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	service "github.com/okian/bloons/internal/app"
	"github.com/okian/bloons/internal/config"
	"github.com/okian/bloons/internal/domain/btd6"
)

// connector builds the service for one command invocation.
type connector func(cmd *cobra.Command) (*service.Service, error)

// newRootCommand creates a fresh command tree. opts are passed to every
// service the commands build, which lets tests point them at a fake API.
func newRootCommand(opts ...service.Option) *cobra.Command {
	var (
		mode        string
		logLevel    string
		dumpMetrics bool
	)

	root := &cobra.Command{
		Use:   "bloons",
		Short: "Read-only client for the BTD6 Ninja Kiwi data API",
		Long: `bloons reads players, custom maps, races and bosses from the BTD6 data API
and prints them as JSON.

Configuration comes from BLOONS_* environment variables and the YAML file
named by BLOONS_CONFIG.

Examples:
   bloons user <id>
   bloons map ZMDCDTB
   bloons races
   bloons race-leaderboard <race id> --pages 2`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&mode, "mode", "", "Override scheduling mode (blocking|deferred)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level (debug|info|warn|error)")
	root.PersistentFlags().BoolVar(&dumpMetrics, "metrics", false, "Write client metrics to stderr when done")

	var svc *service.Service
	connect := func(cmd *cobra.Command) (*service.Service, error) {
		cfg, err := config.Load(cmd.Context())
		if err != nil {
			return nil, err
		}
		if mode != "" {
			cfg.Mode = mode
		}
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}
		svc, err = service.New(cmd.Context(), cfg, opts...)
		return svc, err
	}
	root.PersistentPostRunE = func(cmd *cobra.Command, _ []string) error {
		if !dumpMetrics || svc == nil {
			return nil
		}
		return writeMetrics(cmd.ErrOrStderr(), svc)
	}

	root.AddCommand(
		userCommand(connect),
		mapCommand(connect),
		eventsCommand(connect, "races", "List current and recent races", listRaces),
		eventsCommand(connect, "bosses", "List current and recent boss events", listBosses),
		raceLeaderboardCommand(connect),
		bossLeaderboardCommand(connect),
		statsCommand(connect),
	)
	return root
}

func userCommand(connect connector) *cobra.Command {
	return &cobra.Command{
		Use:   "user <id>",
		Short: "Show a player profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := connect(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			u, err := svc.User(ctx, args[0])
			if err != nil {
				return err
			}
			if err := u.Load(ctx, false); err != nil {
				return err
			}
			v, err := newUserView(ctx, u)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), v)
		},
	}
}

func mapCommand(connect connector) *cobra.Command {
	return &cobra.Command{
		Use:   "map <code>",
		Short: "Show a custom map",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := connect(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			m, err := svc.CustomMap(ctx, args[0])
			if err != nil {
				return err
			}
			if err := m.Load(ctx, false); err != nil {
				return err
			}
			v, err := newMapView(ctx, m)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), v)
		},
	}
}

func eventsCommand(connect connector, use, short string, list func(context.Context, *service.Service) ([]eventView, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := connect(cmd)
			if err != nil {
				return err
			}
			views, err := list(cmd.Context(), svc)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), views)
		},
	}
}

func raceLeaderboardCommand(connect connector) *cobra.Command {
	var start, pages int
	cmd := &cobra.Command{
		Use:   "race-leaderboard <race id>",
		Short: "Show a race leaderboard",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := connect(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			race, err := svc.Race(ctx, args[0])
			if err != nil {
				return err
			}
			entries, err := race.Leaderboard(ctx, start, pages)
			if err != nil {
				return err
			}
			rows := make([]entryView, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, entryView{
					DisplayName: e.DisplayName,
					UserID:      e.UserID,
					Score:       e.Score.String(),
					Submitted:   e.SubmissionTime,
				})
			}
			return printJSON(cmd.OutOrStdout(), rows)
		},
	}
	cmd.Flags().IntVar(&start, "start", 1, "First page to fetch")
	cmd.Flags().IntVar(&pages, "pages", 1, "Number of pages to fetch")
	return cmd
}

func bossLeaderboardCommand(connect connector) *cobra.Command {
	var (
		start, pages, teamSize int
		elite                  bool
	)
	cmd := &cobra.Command{
		Use:   "boss-leaderboard <boss id>",
		Short: "Show a boss leaderboard",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := connect(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			boss, err := svc.Boss(ctx, args[0])
			if err != nil {
				return err
			}
			entries, err := boss.Leaderboard(ctx, elite, teamSize, start, pages)
			if err != nil {
				return err
			}
			rows := make([]entryView, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, entryView{
					DisplayName: e.DisplayName,
					UserID:      e.UserID,
					Score:       bossScore(e),
					Submitted:   e.SubmissionTime,
				})
			}
			return printJSON(cmd.OutOrStdout(), rows)
		},
	}
	cmd.Flags().IntVar(&start, "start", 1, "First page to fetch")
	cmd.Flags().IntVar(&pages, "pages", 1, "Number of pages to fetch")
	cmd.Flags().IntVar(&teamSize, "team-size", 1, "Players per team (1-4)")
	cmd.Flags().BoolVar(&elite, "elite", false, "Use the elite difficulty leaderboard")
	return cmd
}

func statsCommand(connect connector) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show the effective client settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := connect(cmd)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), svc.GetStats())
		},
	}
}

type userView struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Rank         int    `json:"rank"`
	VeteranRank  int    `json:"veteranRank"`
	Achievements int    `json:"achievements"`
	Followers    int    `json:"followers"`
	Avatar       string `json:"avatarURL"`
}

func newUserView(ctx context.Context, u *btd6.User) (userView, error) {
	var errs []error
	keep := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	v := userView{ID: u.ID()}
	var err error
	v.Name, err = u.Name(ctx)
	keep(err)
	v.Rank, err = u.Rank(ctx)
	keep(err)
	v.VeteranRank, err = u.VeteranRank(ctx)
	keep(err)
	v.Achievements, err = u.Achievements(ctx)
	keep(err)
	v.Followers, err = u.Followers(ctx)
	keep(err)
	avatar, err := u.Avatar(ctx)
	keep(err)
	v.Avatar = avatar.URL
	return v, errors.Join(errs...)
}

type mapView struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	CreatedAt   time.Time `json:"createdAt"`
	CreatorID   string    `json:"creatorId"`
	GameVersion string    `json:"gameVersion"`
	Plays       int       `json:"plays"`
	Wins        int       `json:"wins"`
	Upvotes     int       `json:"upvotes"`
}

func newMapView(ctx context.Context, m *btd6.CustomMap) (mapView, error) {
	var errs []error
	keep := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	v := mapView{ID: m.ID()}
	var err error
	v.Name, err = m.Name(ctx)
	keep(err)
	v.CreatedAt, err = m.CreatedAt(ctx)
	keep(err)
	v.CreatorID, err = m.CreatorID(ctx)
	keep(err)
	v.GameVersion, err = m.GameVersion(ctx)
	keep(err)
	v.Plays, err = m.Plays(ctx)
	keep(err)
	v.Wins, err = m.Wins(ctx)
	keep(err)
	v.Upvotes, err = m.Upvotes(ctx)
	keep(err)
	return v, errors.Join(errs...)
}

type eventView struct {
	ID    string    `json:"id"`
	Name  string    `json:"name"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// event is what races and bosses have in common.
type event interface {
	ID() string
	Name(ctx context.Context) (string, error)
	StartTime(ctx context.Context) (time.Time, error)
	EndTime(ctx context.Context) (time.Time, error)
}

func newEventView(ctx context.Context, e event) (eventView, error) {
	name, err := e.Name(ctx)
	if err != nil {
		return eventView{}, err
	}
	start, err := e.StartTime(ctx)
	if err != nil {
		return eventView{}, err
	}
	end, err := e.EndTime(ctx)
	if err != nil {
		return eventView{}, err
	}
	return eventView{ID: e.ID(), Name: name, Start: start, End: end}, nil
}

func listRaces(ctx context.Context, svc *service.Service) ([]eventView, error) {
	races, err := svc.Races(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]eventView, 0, len(races))
	for _, r := range races {
		v, err := newEventView(ctx, r)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func listBosses(ctx context.Context, svc *service.Service) ([]eventView, error) {
	bosses, err := svc.Bosses(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]eventView, 0, len(bosses))
	for _, b := range bosses {
		v, err := newEventView(ctx, b)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

type entryView struct {
	DisplayName string    `json:"displayName"`
	UserID      string    `json:"userId"`
	Score       string    `json:"score"`
	Submitted   time.Time `json:"submitted"`
}

// bossScore prints time scores as durations and everything else as a number.
func bossScore(e btd6.BossEntry) string {
	if len(e.ScoreParts) > 0 {
		if d, ok := e.ScoreParts[0].Duration(); ok {
			return d.String()
		}
	}
	return fmt.Sprint(e.Score)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeMetrics writes the client registry in the Prometheus text format.
func writeMetrics(w io.Writer, svc *service.Service) error {
	families, err := svc.Registry().Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
