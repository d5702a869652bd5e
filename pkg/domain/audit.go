package domain

import (
	"encoding/json"
	"maps"
	"sync"
	"time"
)

// EventType is the category of an audit entry.
type EventType string

const (
	EventStageEnter  EventType = "STAGE_ENTER"
	EventAbilityCall EventType = "ABILITY_CALL"
	EventStageExit   EventType = "STAGE_EXIT"
	EventDecision    EventType = "DECISION"
	EventError       EventType = "ERROR"
)

// AuditEntry is one immutable record of the audit trail.
type AuditEntry struct {
	Sequence       int            `json:"seq"`
	StageID        StageID        `json:"stage_id"`
	EventType      EventType      `json:"event_type"`
	Timestamp      time.Time      `json:"timestamp"`
	DurationMicros int64          `json:"duration_us"`
	Detail         map[string]any `json:"detail,omitempty"`
}

// AuditLog is the append-only, chronological trail of a single workflow.
// It is safe to read while the owning workflow is appending.
type AuditLog struct {
	mu      sync.RWMutex
	entries []AuditEntry
}

// NewAuditLog creates an empty trail.
func NewAuditLog() *AuditLog {
	return &AuditLog{}
}

// Append records an entry and returns it as stored.
// Sequence numbers start at 1. A timestamp earlier than the previous entry
// is raised to it so the trail stays non-decreasing.
func (l *AuditLog) Append(e AuditEntry) AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if n := len(l.entries); n > 0 {
		last := l.entries[n-1]
		if e.Timestamp.Before(last.Timestamp) {
			e.Timestamp = last.Timestamp
		}
		e.Sequence = last.Sequence + 1
	} else {
		e.Sequence = 1
	}
	e.Detail = maps.Clone(e.Detail)
	l.entries = append(l.entries, e)
	return e
}

// Entries returns a copy of the whole trail.
func (l *AuditLog) Entries() []AuditEntry {
	return l.Since(0)
}

// Since returns the entries with a sequence number greater than seq.
func (l *AuditLog) Since(seq int) []AuditEntry {
	if l == nil {
		return nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]AuditEntry, 0, len(l.entries))
	for _, e := range l.entries {
		if e.Sequence > seq {
			e.Detail = maps.Clone(e.Detail)
			out = append(out, e)
		}
	}
	return out
}

func (l *AuditLog) Len() int {
	if l == nil {
		return 0
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Last returns the most recent entry.
func (l *AuditLog) Last() (AuditEntry, bool) {
	if l == nil {
		return AuditEntry{}, false
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.entries) == 0 {
		return AuditEntry{}, false
	}
	return l.entries[len(l.entries)-1], true
}

// Clone returns an independent copy of the trail.
func (l *AuditLog) Clone() *AuditLog {
	if l == nil {
		return NewAuditLog()
	}
	return &AuditLog{entries: l.Entries()}
}

func (l *AuditLog) MarshalJSON() ([]byte, error) {
	entries := l.Entries()
	if entries == nil {
		entries = []AuditEntry{}
	}
	return json.Marshal(entries)
}

func (l *AuditLog) UnmarshalJSON(data []byte) error {
	var entries []AuditEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = entries
	return nil
}
