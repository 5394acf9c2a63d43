// Package holders tracks, per badge id, the set of accounts currently holding
// that badge.
package holders

import (
	"github.com/capiscio/pledge-core/pkg/crypto"
)

// set is a dense member slice plus a position index, so removal swaps the
// departing member with the last one.
type set struct {
	pos     map[crypto.Address]int
	members []crypto.Address
}

// Index maps badge ids to holder sets.
// It is not safe for concurrent use; callers serialize access.
type Index struct {
	sets map[uint64]*set
}

// NewIndex creates an empty Index.
func NewIndex() *Index {
	return &Index{sets: make(map[uint64]*set)}
}

// Add inserts account into the holder set of badgeID.
// Returns false if it was already a member.
func (x *Index) Add(badgeID uint64, account crypto.Address) bool {
	s, ok := x.sets[badgeID]
	if !ok {
		s = &set{pos: make(map[crypto.Address]int)}
		x.sets[badgeID] = s
	}
	if _, exists := s.pos[account]; exists {
		return false
	}
	s.pos[account] = len(s.members)
	s.members = append(s.members, account)
	return true
}

// Remove deletes account from the holder set of badgeID.
// Returns false if it was not a member.
func (x *Index) Remove(badgeID uint64, account crypto.Address) bool {
	s, ok := x.sets[badgeID]
	if !ok {
		return false
	}
	i, exists := s.pos[account]
	if !exists {
		return false
	}

	last := len(s.members) - 1
	if i != last {
		moved := s.members[last]
		s.members[i] = moved
		s.pos[moved] = i
	}
	s.members = s.members[:last]
	delete(s.pos, account)

	if len(s.members) == 0 {
		delete(x.sets, badgeID)
	}
	return true
}

// Contains reports whether account holds badgeID.
func (x *Index) Contains(badgeID uint64, account crypto.Address) bool {
	s, ok := x.sets[badgeID]
	if !ok {
		return false
	}
	_, exists := s.pos[account]
	return exists
}

// Len returns the number of holders of badgeID.
func (x *Index) Len(badgeID uint64) int {
	if s, ok := x.sets[badgeID]; ok {
		return len(s.members)
	}
	return 0
}

// Members returns a snapshot of the holders of badgeID in no particular order.
// The returned slice is owned by the caller.
func (x *Index) Members(badgeID uint64) []crypto.Address {
	s, ok := x.sets[badgeID]
	if !ok {
		return []crypto.Address{}
	}
	out := make([]crypto.Address, len(s.members))
	copy(out, s.members)
	return out
}
