package logging

import (
	"fmt"
	"log/slog"
	"strings"

	slogjournal "github.com/systemd/slog-journal"
)

// NewJournalHandler returns a handler that writes to the systemd journal.
func NewJournalHandler(level string) (slog.Handler, error) {
	h, err := slogjournal.NewHandler(&slogjournal.Options{
		Level:        parseLevel(level),
		ReplaceGroup: journalKey,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			a.Key = journalKey(a.Key)
			return a
		},
	})
	if err != nil {
		return nil, fmt.Errorf("opening systemd journal: %w", err)
	}
	return h, nil
}

// journalKey maps a slog key to a journal field name: upper case, with
// anything outside [A-Z0-9] replaced by '_'.
func journalKey(key string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, strings.ToUpper(key))
}
