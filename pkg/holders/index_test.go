package holders_test

import (
	"testing"

	"github.com/capiscio/pledge-core/pkg/crypto"
	"github.com/capiscio/pledge-core/pkg/holders"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addr(b byte) crypto.Address {
	var a crypto.Address
	a[19] = b
	return a
}

func TestIndex_AddRemove(t *testing.T) {
	x := holders.NewIndex()

	t.Run("Empty", func(t *testing.T) {
		assert.Empty(t, x.Members(0))
		assert.NotNil(t, x.Members(0))
		assert.Equal(t, 0, x.Len(0))
		assert.False(t, x.Contains(0, addr(1)))
		assert.False(t, x.Remove(0, addr(1)))
	})

	t.Run("Add is idempotent", func(t *testing.T) {
		assert.True(t, x.Add(0, addr(1)))
		assert.False(t, x.Add(0, addr(1)))
		assert.Equal(t, 1, x.Len(0))
		assert.True(t, x.Contains(0, addr(1)))
	})

	t.Run("Badges are independent", func(t *testing.T) {
		assert.True(t, x.Add(1, addr(1)))
		assert.True(t, x.Remove(1, addr(1)))
		assert.True(t, x.Contains(0, addr(1)))
		assert.False(t, x.Contains(1, addr(1)))
	})

	t.Run("Remove middle keeps others", func(t *testing.T) {
		x.Add(0, addr(2))
		x.Add(0, addr(3))
		x.Add(0, addr(4))

		assert.True(t, x.Remove(0, addr(2)))
		assert.False(t, x.Remove(0, addr(2)))
		assert.ElementsMatch(t, []crypto.Address{addr(1), addr(3), addr(4)}, x.Members(0))

		// Swapped member must still be removable by its new position.
		assert.True(t, x.Remove(0, addr(4)))
		assert.ElementsMatch(t, []crypto.Address{addr(1), addr(3)}, x.Members(0))
	})

	t.Run("Remove last empties set", func(t *testing.T) {
		x.Remove(0, addr(1))
		x.Remove(0, addr(3))
		assert.Equal(t, 0, x.Len(0))
		assert.Empty(t, x.Members(0))
		assert.True(t, x.Add(0, addr(3)))
	})
}

func TestIndex_MembersIsSnapshot(t *testing.T) {
	x := holders.NewIndex()
	x.Add(7, addr(1))
	x.Add(7, addr(2))

	snap := x.Members(7)
	snap[0] = addr(9)
	x.Remove(7, addr(2))

	assert.ElementsMatch(t, []crypto.Address{addr(1)}, x.Members(7))
	assert.Len(t, snap, 2)
}

func TestIndex_Churn(t *testing.T) {
	x := holders.NewIndex()
	want := map[crypto.Address]bool{}

	for round := 0; round < 5; round++ {
		for i := byte(0); i < 50; i++ {
			a := addr(i)
			if (int(i)+round)%3 == 0 {
				x.Remove(3, a)
				delete(want, a)
			} else {
				x.Add(3, a)
				want[a] = true
			}
		}

		members := x.Members(3)
		require.Len(t, members, len(want))
		seen := map[crypto.Address]bool{}
		for _, m := range members {
			assert.True(t, want[m], "unexpected member %s", m)
			assert.False(t, seen[m], "duplicate member %s", m)
			seen[m] = true
		}
	}
}
