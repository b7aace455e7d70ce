// Package msglog holds the ordered record of envelopes a connection has
// received.
package msglog

import (
	"sync"
	"time"

	"github.com/orchestra-mcp/notify-harness/src/types"
)

// Entry is one appended envelope. Seq is assigned at append time and
// keeps increasing across Clear.
type Entry struct {
	Seq        uint64
	ReceivedAt time.Time
	Envelope   types.Envelope
}

// Log is an append-only, arrival-ordered envelope buffer with a single
// writer and any number of readers.
type Log struct {
	mu      sync.RWMutex
	entries []Entry
	next    uint64
	changed chan struct{}
}

// New creates an empty log.
func New() *Log {
	return &Log{changed: make(chan struct{})}
}

// Append stores a copy of env and wakes every reader blocked on the
// previous change signal. Storing and signalling happen under one lock,
// so a reader holding the old signal always sees the new entry.
func (l *Log) Append(env types.Envelope) Entry {
	e := Entry{ReceivedAt: time.Now(), Envelope: env.Clone()}

	l.mu.Lock()
	e.Seq = l.next
	l.next++
	l.entries = append(l.entries, e)
	l.signalLocked()
	l.mu.Unlock()

	return e
}

// Snapshot returns a copy of the log at the call instant.
func (l *Log) Snapshot() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.copyLocked()
}

// Envelopes returns the envelopes of Snapshot in order.
func (l *Log) Envelopes() []types.Envelope {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]types.Envelope, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.Envelope.Clone()
	}
	return out
}

// View returns a snapshot together with the signal that closes on the
// next change. Readers that find nothing in the snapshot wait on the
// channel and call View again.
func (l *Log) View() ([]Entry, <-chan struct{}) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.copyLocked(), l.changed
}

// Clear drops every entry. Sequence numbers are not reused.
func (l *Log) Clear() {
	l.mu.Lock()
	l.entries = nil
	l.signalLocked()
	l.mu.Unlock()
}

// Len returns the number of entries currently held.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Mark returns the sequence number the next append will receive.
func (l *Log) Mark() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.next
}

func (l *Log) signalLocked() {
	close(l.changed)
	l.changed = make(chan struct{})
}

func (l *Log) copyLocked() []Entry {
	out := make([]Entry, len(l.entries))
	for i, e := range l.entries {
		e.Envelope = e.Envelope.Clone()
		out[i] = e
	}
	return out
}
