package resource

import (
	"strings"

	"github.com/okian/bloons/internal/adapters/ninjakiwi"
)

// Translations maps server error messages to domain error kinds. Messages
// are compared case-insensitively.
type Translations map[string]error

// Translate remaps err when it carries a known server message. The result
// matches both the domain kind and err under errors.Is. Any other error is
// returned unchanged.
func (t Translations) Translate(err error) error {
	if err == nil {
		return nil
	}
	msg, ok := ninjakiwi.Message(err)
	if !ok {
		return err
	}
	msg = strings.TrimSpace(msg)
	for known, kind := range t {
		if strings.EqualFold(msg, known) {
			return &Error{Kind: kind, Message: msg, Err: err}
		}
	}
	return err
}
