package badge

import (
	"github.com/capiscio/pledge-core/pkg/journal"
)

// Event is a notification emitted for every committed operation. Events are
// the journal entries themselves, so their order is commit order.
type Event = journal.Entry

// EventType names the kind of Event.
type EventType = journal.EntryType

// Event types.
const (
	EventPledgeAdded = journal.EntryPledgeAdded
	EventPledged     = journal.EntryPledged
	EventRevoked     = journal.EntryRevoked
	EventRedeemed    = journal.EntryRedeemed
)

// Status is the lifecycle position of an (badge, account) pair.
type Status string

// Lifecycle states. A redeemed account that does not hold the badge is
// indistinguishable from one that never claimed it.
const (
	StatusNeverClaimed  Status = "never_claimed"
	StatusHeld          Status = "held"
	StatusRevokedLocked Status = "revoked_locked"
)

// AccountState is the ledger record for one (badge, account) pair.
// Held and Revoked are never both true.
type AccountState struct {
	Held    bool `json:"held"`
	Revoked bool `json:"revoked"`
}

// Status maps the flags to a lifecycle state.
func (s AccountState) Status() Status {
	switch {
	case s.Held:
		return StatusHeld
	case s.Revoked:
		return StatusRevokedLocked
	default:
		return StatusNeverClaimed
	}
}

// Balance is 1 while the badge is held and 0 otherwise.
func (s AccountState) Balance() uint64 {
	if s.Held {
		return 1
	}
	return 0
}

// Capability is the proof of administrative authority passed to owner-only
// operations. The service compares Subject with its configured owner.
type Capability interface {
	Subject() string
}

// OwnerCapability is a Capability for an already-authenticated subject.
// Construct it only after authenticating the caller, e.g. via adminguard.
type OwnerCapability string

// Subject implements Capability.
func (c OwnerCapability) Subject() string {
	return string(c)
}
