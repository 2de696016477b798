package btd6

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/okian/bloons/internal/adapters/ninjakiwi"
	"github.com/okian/bloons/internal/domain/resource"
)

// RaceEntry is one row of a race leaderboard.
type RaceEntry struct {
	DisplayName    string
	UserID         string
	Score          time.Duration
	SubmissionTime time.Time
}

// Score is one component of a boss score.
type Score struct {
	Name  string
	Type  string
	Value int64
}

// Duration interprets a "time" score, which is in milliseconds.
func (s Score) Duration() (time.Duration, bool) {
	if s.Type != "time" {
		return 0, false
	}
	return time.Duration(s.Value) * time.Millisecond, true
}

// BossEntry is one row of a boss leaderboard.
type BossEntry struct {
	DisplayName    string
	UserID         string
	Score          int64
	ScoreParts     []Score
	SubmissionTime time.Time
}

type entryWire struct {
	DisplayName    string `json:"displayName"`
	Score          int64  `json:"score"`
	SubmissionTime int64  `json:"submissionTime"`
	Profile        string `json:"profile"`
	ScoreParts     []struct {
		Name  string `json:"name"`
		Type  string `json:"type"`
		Score int64  `json:"score"`
	} `json:"scoreParts"`
}

func raceEntry(w entryWire) RaceEntry {
	return RaceEntry{
		DisplayName:    w.DisplayName,
		UserID:         ProfileUserID(w.Profile),
		Score:          time.Duration(w.Score) * time.Millisecond,
		SubmissionTime: resource.Millis(w.SubmissionTime),
	}
}

func bossEntry(w entryWire) BossEntry {
	e := BossEntry{
		DisplayName:    w.DisplayName,
		UserID:         ProfileUserID(w.Profile),
		Score:          w.Score,
		SubmissionTime: resource.Millis(w.SubmissionTime),
	}
	for _, p := range w.ScoreParts {
		e.ScoreParts = append(e.ScoreParts, Score{Name: p.Name, Type: p.Type, Value: p.Score})
	}
	return e
}

func decodeEntries[T any](path string, records []json.RawMessage, conv func(entryWire) T) ([]T, error) {
	out := make([]T, 0, len(records))
	for i, raw := range records {
		var w entryWire
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, &ninjakiwi.Error{Kind: ninjakiwi.ErrMalformedResponse, Path: path, Err: fmt.Errorf("entry %d: %w", i, err)}
		}
		out = append(out, conv(w))
	}
	return out, nil
}

func replaceOnce(s, old, repl string) string {
	return strings.Replace(s, old, repl, 1)
}
