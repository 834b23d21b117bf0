package events

import (
	"sync"

	"gigledger/core/types"
)

// payloadCarrier is implemented by module event wrappers that expose the
// underlying typed payload.
type payloadCarrier interface {
	Event() *types.Event
}

// Entry is a single committed notification. Sequence numbers are assigned in
// commit order starting at 1 and never reused, which gives the off-process
// indexer a stable cursor.
type Entry struct {
	Sequence uint64      `json:"sequence"`
	Event    types.Event `json:"event"`
}

// Log is an append-only, ordered record of every committed notification.
// Emit is only ever called after the corresponding state mutation has been
// persisted, so readers observe events in exactly the order operations
// committed.
type Log struct {
	mu      sync.Mutex
	nextSeq uint64
	entries []Entry
}

// NewLog returns an empty event log.
func NewLog() *Log {
	return &Log{nextSeq: 1}
}

// Emit implements the Emitter interface. Events that do not carry a typed
// payload are dropped rather than recorded as empty entries.
func (l *Log) Emit(evt Event) {
	if l == nil || evt == nil {
		return
	}
	carrier, ok := evt.(payloadCarrier)
	if !ok {
		return
	}
	payload := carrier.Event()
	if payload == nil {
		return
	}
	copied := types.Event{Type: payload.Type, Attributes: make(map[string]string, len(payload.Attributes))}
	for k, v := range payload.Attributes {
		copied.Attributes[k] = v
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, Entry{Sequence: l.nextSeq, Event: copied})
	l.nextSeq++
}

// After returns every entry with a sequence number strictly greater than seq.
// Passing 0 returns the full log.
func (l *Log) After(seq uint64) []Entry {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, 0, len(l.entries))
	for _, entry := range l.entries {
		if entry.Sequence > seq {
			out = append(out, entry)
		}
	}
	return out
}

// Len reports the number of recorded entries.
func (l *Log) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
