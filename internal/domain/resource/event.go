package resource

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/okian/bloons/internal/adapters/ninjakiwi"
)

// EventKeys are the keys every event list element carries.
var EventKeys = []string{"name", "start", "end"}

// EventDefinition describes a resource that can only be found by scanning a
// list endpoint.
type EventDefinition interface {
	Kind() string
	// ListEndpoint returns every current event of this kind.
	ListEndpoint() string
	// RequiredKeys may return nil to use EventKeys.
	RequiredKeys() []string
	Parse(raw json.RawMessage) (Fields, error)
	TranslateError(err error) error
}

// NewEvent creates a loader that finds id in def.ListEndpoint(). The first
// element whose "id" matches wins; no match fails with ErrNotFound.
func NewEvent(ctx context.Context, def EventDefinition, id string, f Fetcher, opts ...Option) (*Loader, error) {
	if def == nil || f == nil {
		return nil, &Error{Kind: ErrInvalidDefinition, ID: id}
	}
	required := def.RequiredKeys()
	if required == nil {
		required = EventKeys
	}
	kind := def.Kind()
	list := def.ListEndpoint()
	src := func(ctx context.Context) (json.RawMessage, error) {
		body, err := f.Get(ctx, list, nil)
		if err != nil {
			return nil, err
		}
		return scan(body, kind, id)
	}
	return build(ctx, kind, id, required, def.Parse, def.TranslateError, seederOf(def), src, opts)
}

func scan(body json.RawMessage, kind, id string) (json.RawMessage, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, &Error{Kind: ninjakiwi.ErrMalformedResponse, Err: fmt.Errorf("%s list: %w", kind, err)}
	}
	for _, item := range items {
		var head struct {
			ID string `json:"id"`
		}
		if json.Unmarshal(item, &head) != nil {
			continue
		}
		if head.ID == id {
			return item, nil
		}
	}
	return nil, &Error{Kind: ErrNotFound, Message: fmt.Sprintf("No %s with that ID exists", kind)}
}

// EventFields decodes the common event keys. start and end are epoch
// milliseconds and become UTC times.
func EventFields(raw json.RawMessage) (Fields, error) {
	var ev struct {
		Name  string `json:"name"`
		Start int64  `json:"start"`
		End   int64  `json:"end"`
	}
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, err
	}
	return Fields{
		"name":  ev.Name,
		"start": Millis(ev.Start),
		"end":   Millis(ev.End),
	}, nil
}

// Millis converts epoch milliseconds to a UTC time.
func Millis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
