// Package journal records committed badge-ledger events so the ledger can be
// rebuilt after a restart and observed by other processes.
//
// A journal only ever receives entries for operations that passed every
// guard. Replaying the entries in order reproduces the exact ledger state.
package journal

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/capiscio/pledge-core/pkg/crypto"
)

// EntryType names the kind of committed operation.
type EntryType string

// Entry types, one per ledger notification.
const (
	EntryPledgeAdded EntryType = "PledgeAdded"
	EntryPledged     EntryType = "Pledged"
	EntryRevoked     EntryType = "Revoked"
	EntryRedeemed    EntryType = "Redeemed"
)

// Common errors returned by this package.
var (
	ErrCorrupt = errors.New("journal is corrupt")
	ErrClosed  = errors.New("journal is closed")

	// ErrSequence is returned by Append when the entry's Seq is not the next
	// free sequence number of the journal.
	ErrSequence = errors.New("journal sequence mismatch")
)

// Entry is one committed operation.
type Entry struct {
	// Seq starts at 1 and increases by one per entry.
	Seq uint64 `json:"seq"`

	Type    EntryType      `json:"type"`
	BadgeID uint64         `json:"badgeId"`
	Account crypto.Address `json:"account"`

	// URI and Content are set for PledgeAdded only.
	URI     string `json:"uri,omitempty"`
	Content string `json:"content,omitempty"`

	At time.Time `json:"at"`
}

// Journal is an append-only log of entries.
type Journal interface {
	// Append durably records e. On error nothing is recorded, with one
	// exception: a networked backend may lose the reply to a write that did
	// land. Durable backends therefore refuse an entry whose Seq is already
	// taken (ErrSequence), so the log never holds two entries with one Seq.
	Append(ctx context.Context, e Entry) error

	// Replay calls fn for each entry in sequence order and stops at the
	// first error.
	Replay(ctx context.Context, fn func(Entry) error) error

	Close() error
}

// Memory keeps entries in process memory only.
type Memory struct {
	mu      sync.RWMutex
	entries []Entry
	closed  bool
}

// NewMemory creates an empty in-memory journal.
func NewMemory() *Memory {
	return &Memory{}
}

// Append implements Journal.
func (m *Memory) Append(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.entries = append(m.entries, e)
	return nil
}

// Replay implements Journal.
func (m *Memory) Replay(ctx context.Context, fn func(Entry) error) error {
	m.mu.RLock()
	entries := make([]Entry, len(m.entries))
	copy(entries, m.entries)
	m.mu.RUnlock()

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Close implements Journal.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
