package domain

import "time"

// Source identifies which ingestion path produced a message.
type Source int

const (
	SourceDirectMessage Source = iota
	SourceCallback
)

func (s Source) String() string {
	switch s {
	case SourceDirectMessage:
		return "direct_message"
	case SourceCallback:
		return "callback"
	default:
		return "unknown"
	}
}

// Field is a single metadata entry.
type Field struct {
	Key   string
	Value string
}

// Metadata is an ordered list of fields; display order is insertion order.
type Metadata []Field

// Get returns the value of the first field named key.
func (m Metadata) Get(key string) (string, bool) {
	for _, f := range m {
		if f.Key == key {
			return f.Value, true
		}
	}
	return "", false
}

// Message is the normalized form every ingestion source is converted into.
// Treat it as immutable once built.
type Message struct {
	Source    Source
	SenderID  string    // empty for callbacks
	Text      string    // never empty after trimming once admitted
	Timestamp time.Time // zero when unknown
	Metadata  Metadata
}
