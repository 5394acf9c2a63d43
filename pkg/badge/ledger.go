package badge

import (
	"github.com/capiscio/pledge-core/pkg/crypto"
)

type ledgerKey struct {
	badgeID uint64
	account crypto.Address
}

// Ledger is the system of record for held and revoked flags.
// Absent pairs are {Held: false, Revoked: false}.
// It is not safe for concurrent use; Service serializes access.
type Ledger struct {
	states map[ledgerKey]AccountState
}

// NewLedger creates an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{states: make(map[ledgerKey]AccountState)}
}

// State returns the record for (badgeID, account).
func (l *Ledger) State(badgeID uint64, account crypto.Address) AccountState {
	return l.states[ledgerKey{badgeID, account}]
}

// BalanceOf returns 1 if account holds badgeID, else 0.
func (l *Ledger) BalanceOf(badgeID uint64, account crypto.Address) uint64 {
	return l.State(badgeID, account).Balance()
}

// mint sets Held. Callers have checked that the pair is not revoked.
func (l *Ledger) mint(badgeID uint64, account crypto.Address) {
	l.states[ledgerKey{badgeID, account}] = AccountState{Held: true}
}

// burnAndLock clears Held and sets Revoked in one step.
func (l *Ledger) burnAndLock(badgeID uint64, account crypto.Address) {
	l.states[ledgerKey{badgeID, account}] = AccountState{Revoked: true}
}

// unlock clears Revoked and leaves Held untouched.
func (l *Ledger) unlock(badgeID uint64, account crypto.Address) {
	k := ledgerKey{badgeID, account}
	st := l.states[k]
	st.Revoked = false
	if st == (AccountState{}) {
		delete(l.states, k)
		return
	}
	l.states[k] = st
}
