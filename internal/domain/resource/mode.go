package resource

import (
	"fmt"
	"strings"

	"github.com/okian/bloons/internal/adapters/worker"
)

// Mode selects how a loader reacts to reads of unloaded fields.
type Mode int

const (
	// Blocking loads on demand inside the accessor.
	Blocking Mode = iota
	// Deferred never fetches inside an accessor. Callers load explicitly,
	// usually through Start, and unloaded reads fail with ErrNotLoaded.
	Deferred
)

func (m Mode) String() string {
	if m == Deferred {
		return "deferred"
	}
	return "blocking"
}

// ParseMode parses "blocking" or "deferred".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "blocking":
		return Blocking, nil
	case "deferred":
		return Deferred, nil
	default:
		return Blocking, fmt.Errorf("unknown mode %q", s)
	}
}

// PageStrategy returns the fan-out strategy paginated fetches use in this
// mode: a bounded pool of workers when blocking, an errgroup gather when
// deferred.
func (m Mode) PageStrategy(workers int) worker.Strategy {
	if m == Deferred {
		return worker.Gather{}
	}
	return worker.NewPool(workers, worker.WithName("page-pool"))
}
