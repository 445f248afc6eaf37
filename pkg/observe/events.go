package observe

import (
	"strings"
	"time"
)

// Verbs emitted by the transaction core.
const (
	// VerbCommitted marks an effective container transition applied by a
	// transaction commit.
	VerbCommitted = "state.committed"
)

// Event describes one observed container transition. IDs are stringly-typed
// so collaborators need not couple to specific UUID types.
type Event struct {
	Verb       string
	TxID       string
	Container  string
	Channel    string
	Prev       any
	Next       any
	Metadata   map[string]any
	OccurredAt time.Time
}

// NormalizeEvent trims whitespace, clones metadata, and ensures a timestamp
// is present.
func NormalizeEvent(event Event) Event {
	normalized := event
	normalized.Verb = strings.TrimSpace(event.Verb)
	normalized.TxID = strings.TrimSpace(event.TxID)
	normalized.Container = strings.TrimSpace(event.Container)
	normalized.Channel = strings.TrimSpace(event.Channel)
	normalized.Metadata = cloneMap(event.Metadata)
	if normalized.OccurredAt.IsZero() {
		normalized.OccurredAt = time.Now()
	}
	return normalized
}

func cloneMap(src map[string]any) map[string]any {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]any, len(src))
	for key, value := range src {
		dst[key] = value
	}
	return dst
}
