// Package format renders normalized messages into Slack-ready text.
package format

import (
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"slackrelay/internal/domain"
)

const (
	// MaxLength is the longest payload, in characters, that is ever delivered.
	MaxLength = 4000
	// TruncationMarker is appended to payloads cut down to MaxLength.
	TruncationMarker = "\n\n_[Message truncated]_"

	defaultSourceLabel = "external"
	timeLayout         = "2006-01-02 15:04:05 UTC"
)

var escaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// Formatter applies the metadata policy, escaping and truncation.
type Formatter struct {
	includeMetadata bool
}

// New creates a Formatter. When includeMetadata is false only the message
// text is emitted.
func New(includeMetadata bool) *Formatter {
	return &Formatter{includeMetadata: includeMetadata}
}

// Format renders msg. It is a pure function of msg and the metadata flag.
func (f *Formatter) Format(msg domain.Message) string {
	body := Escape(msg.Text)
	if !f.includeMetadata {
		return Truncate(body)
	}

	var parts []string
	switch msg.Source {
	case domain.SourceDirectMessage:
		if msg.SenderID != "" {
			parts = append(parts, "*From:* <@"+Escape(msg.SenderID)+">")
		}
		if !msg.Timestamp.IsZero() {
			parts = append(parts, "*Time:* "+msg.Timestamp.UTC().Format(timeLayout))
		}
	case domain.SourceCallback:
		label, ok := msg.Metadata.Get("source")
		if !ok || strings.TrimSpace(label) == "" {
			label = defaultSourceLabel
		}
		parts = append(parts, "*Source:* "+Escape(label))
		for _, field := range msg.Metadata {
			if field.Key == "source" {
				continue
			}
			parts = append(parts, Escape(field.Key)+": "+Escape(field.Value))
		}
	}
	parts = append(parts, "\n"+body)
	return Truncate(strings.Join(parts, "\n"))
}

// Escape replaces characters that Slack treats as control sequences.
func Escape(s string) string {
	return escaper.Replace(s)
}

// Truncate cuts s to MaxLength characters, ending it with TruncationMarker
// when anything had to be removed.
func Truncate(s string) string {
	if utf8.RuneCountInString(s) <= MaxLength {
		return s
	}
	keep := MaxLength - utf8.RuneCountInString(TruncationMarker)
	cut := 0
	for i := range s {
		if keep == 0 {
			cut = i
			break
		}
		keep--
	}
	return s[:cut] + TruncationMarker
}

// ParseSlackTimestamp parses a Slack "ts" value ("1700000000.000100").
// Only the whole seconds are used.
func ParseSlackTimestamp(ts string) (time.Time, bool) {
	secs, _, _ := strings.Cut(ts, ".")
	epoch, err := strconv.ParseInt(secs, 10, 64)
	if err != nil || epoch < 0 {
		return time.Time{}, false
	}
	return time.Unix(epoch, 0).UTC(), true
}
