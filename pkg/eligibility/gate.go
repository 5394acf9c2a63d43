// Package eligibility answers whether an account may participate in pledging.
//
// The Gate consults an Oracle on every call; nothing is cached here, so each
// answer reflects the oracle's state at the time of the call. Oracles decide
// for themselves how fresh their own view is.
package eligibility

import (
	"context"
	"fmt"
	"sync"

	"github.com/capiscio/pledge-core/pkg/crypto"
)

// Oracle reports whether an account is currently eligible.
// An empty eligible set answers false without error.
type Oracle interface {
	IsEligible(ctx context.Context, account crypto.Address) (bool, error)
}

// Gate wraps the configured Oracle.
type Gate struct {
	oracle Oracle
}

// NewGate creates a Gate backed by oracle.
func NewGate(oracle Oracle) *Gate {
	return &Gate{oracle: oracle}
}

// IsEligible delegates to the oracle. A nil oracle denies everyone.
func (g *Gate) IsEligible(ctx context.Context, account crypto.Address) (bool, error) {
	if g == nil || g.oracle == nil {
		return false, nil
	}
	ok, err := g.oracle.IsEligible(ctx, account)
	if err != nil {
		return false, fmt.Errorf("eligibility oracle: %w", err)
	}
	return ok, nil
}

// SetOracle is an in-memory eligible set. It is safe for concurrent use.
type SetOracle struct {
	mu       sync.RWMutex
	accounts map[crypto.Address]struct{}
}

// NewSetOracle creates a SetOracle seeded with accounts.
func NewSetOracle(accounts ...crypto.Address) *SetOracle {
	o := &SetOracle{accounts: make(map[crypto.Address]struct{}, len(accounts))}
	for _, a := range accounts {
		o.accounts[a] = struct{}{}
	}
	return o
}

// IsEligible implements Oracle.
func (o *SetOracle) IsEligible(_ context.Context, account crypto.Address) (bool, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, ok := o.accounts[account]
	return ok, nil
}

// Add marks account eligible.
func (o *SetOracle) Add(account crypto.Address) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.accounts[account] = struct{}{}
}

// Remove marks account ineligible.
func (o *SetOracle) Remove(account crypto.Address) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.accounts, account)
}

// Replace swaps the whole eligible set.
func (o *SetOracle) Replace(accounts []crypto.Address) {
	next := make(map[crypto.Address]struct{}, len(accounts))
	for _, a := range accounts {
		next[a] = struct{}{}
	}
	o.mu.Lock()
	o.accounts = next
	o.mu.Unlock()
}

// Len returns the number of eligible accounts.
func (o *SetOracle) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.accounts)
}
