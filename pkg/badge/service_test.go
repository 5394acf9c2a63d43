package badge_test

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/capiscio/pledge-core/pkg/badge"
	"github.com/capiscio/pledge-core/pkg/crypto"
	"github.com/capiscio/pledge-core/pkg/eligibility"
	"github.com/capiscio/pledge-core/pkg/journal"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	ownerSubject = "did:web:pledge.example.com"
	pledgeText   = "I pledge to keep my keys safe."
	pledgeURI    = "ipfs://pledge-0"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc     *badge.Service
	oracle  *eligibility.SetOracle
	journal *journal.Memory
	owner   badge.Capability
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	oracle := eligibility.NewSetOracle()
	j := journal.NewMemory()
	svc, err := badge.New(badge.Config{
		Owner:   ownerSubject,
		Gate:    eligibility.NewGate(oracle),
		Journal: j,
		Now:     func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return &fixture{
		svc:     svc,
		oracle:  oracle,
		journal: j,
		owner:   badge.OwnerCapability(ownerSubject),
	}
}

func (f *fixture) addPledge(t *testing.T, uri, content string) uint64 {
	t.Helper()
	id, err := f.svc.AddPledge(context.Background(), f.owner, uri, content)
	require.NoError(t, err)
	return id
}

func newSigner(t *testing.T) *crypto.PersonalSigner {
	t.Helper()
	s, err := crypto.GenerateKey()
	require.NoError(t, err)
	return s
}

func sign(t *testing.T, s *crypto.PersonalSigner, content string) []byte {
	t.Helper()
	sig, err := s.SignPersonal([]byte(content))
	require.NoError(t, err)
	return sig
}

type failingJournal struct {
	*journal.Memory
	fail bool
}

func (j *failingJournal) Append(ctx context.Context, e journal.Entry) error {
	if j.fail {
		return errors.New("disk full")
	}
	return j.Memory.Append(ctx, e)
}

type errOracle struct{}

func (errOracle) IsEligible(context.Context, crypto.Address) (bool, error) {
	return false, errors.New("oracle unavailable")
}

func eventTypes(events []badge.Event) []badge.EventType {
	out := make([]badge.EventType, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

func TestNewRequiresOwner(t *testing.T) {
	_, err := badge.New(badge.Config{})
	assert.Error(t, err)
}

func TestPledgeLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := newSigner(t)
	f.oracle.Add(alice.Address())

	id := f.addPledge(t, pledgeURI, pledgeText)
	assert.Equal(t, uint64(0), id)
	sig := sign(t, alice, pledgeText)

	// Claim.
	require.NoError(t, f.svc.Claim(ctx, id, alice.Address(), sig))
	assert.True(t, f.svc.HasBadge(id, alice.Address()))
	assert.Equal(t, uint64(1), f.svc.BalanceOf(id, alice.Address()))
	assert.Equal(t, []crypto.Address{alice.Address()}, f.svc.Holders(id))

	// Revoke burns and locks.
	require.NoError(t, f.svc.Revoke(ctx, f.owner, alice.Address(), id))
	assert.False(t, f.svc.HasBadge(id, alice.Address()))
	assert.Equal(t, badge.StatusRevokedLocked, f.svc.State(id, alice.Address()).Status())
	assert.Empty(t, f.svc.Holders(id))

	err := f.svc.Claim(ctx, id, alice.Address(), sig)
	assert.ErrorIs(t, err, badge.ErrRevoked)

	// Redeem unlocks but does not restore.
	require.NoError(t, f.svc.Redeem(ctx, f.owner, alice.Address(), id))
	assert.False(t, f.svc.HasBadge(id, alice.Address()))
	assert.Equal(t, badge.StatusNeverClaimed, f.svc.State(id, alice.Address()).Status())

	// The original signature is still valid.
	require.NoError(t, f.svc.Claim(ctx, id, alice.Address(), sig))
	assert.True(t, f.svc.HasBadge(id, alice.Address()))

	assert.Equal(t, []badge.EventType{
		badge.EventPledgeAdded,
		badge.EventPledged,
		badge.EventRevoked,
		badge.EventRedeemed,
		badge.EventPledged,
	}, eventTypes(f.svc.Events(0, 0)))
	assert.Equal(t, 5, f.journal.Len())
	assert.Equal(t, uint64(5), f.svc.LastSeq())
}

func TestClaimGuardOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := newSigner(t)
	bob := newSigner(t)
	id := f.addPledge(t, pledgeURI, pledgeText)
	badSig := make([]byte, crypto.SignatureLength)

	t.Run("ineligible beats everything", func(t *testing.T) {
		err := f.svc.Claim(ctx, 99, bob.Address(), badSig)
		assert.ErrorIs(t, err, badge.ErrNotEligible)
	})

	f.oracle.Add(alice.Address())
	require.NoError(t, f.svc.Claim(ctx, id, alice.Address(), sign(t, alice, pledgeText)))

	t.Run("already claimed beats bad signature", func(t *testing.T) {
		err := f.svc.Claim(ctx, id, alice.Address(), badSig)
		assert.ErrorIs(t, err, badge.ErrAlreadyClaimed)
	})

	t.Run("revoked beats missing pledge", func(t *testing.T) {
		require.NoError(t, f.svc.Revoke(ctx, f.owner, alice.Address(), 42))
		err := f.svc.Claim(ctx, 42, alice.Address(), badSig)
		assert.ErrorIs(t, err, badge.ErrRevoked)
	})

	t.Run("missing pledge beats bad signature", func(t *testing.T) {
		err := f.svc.Claim(ctx, 7, alice.Address(), badSig)
		assert.ErrorIs(t, err, badge.ErrNoSuchPledge)
	})

	f.oracle.Add(bob.Address())

	t.Run("malformed signature", func(t *testing.T) {
		err := f.svc.Claim(ctx, id, bob.Address(), []byte{0x01, 0x02})
		assert.ErrorIs(t, err, badge.ErrInvalidSignature)
	})

	t.Run("signature by another account", func(t *testing.T) {
		err := f.svc.Claim(ctx, id, bob.Address(), sign(t, alice, pledgeText))
		assert.ErrorIs(t, err, badge.ErrInvalidSignature)
	})

	t.Run("signature over other text", func(t *testing.T) {
		err := f.svc.Claim(ctx, id, bob.Address(), sign(t, bob, pledgeText+" "))
		assert.ErrorIs(t, err, badge.ErrInvalidSignature)
	})

	assert.False(t, f.svc.HasBadge(id, bob.Address()))
}

func TestClaimSignatureBoundToPledgeContent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := newSigner(t)
	f.oracle.Add(alice.Address())

	first := f.addPledge(t, "ipfs://a", "first pledge")
	second := f.addPledge(t, "ipfs://b", "second pledge")

	sig := sign(t, alice, "first pledge")
	assert.ErrorIs(t, f.svc.Claim(ctx, second, alice.Address(), sig), badge.ErrInvalidSignature)
	require.NoError(t, f.svc.Claim(ctx, first, alice.Address(), sig))
	assert.False(t, f.svc.HasBadge(second, alice.Address()))
}

func TestEligibilityIsCheckedAtClaimTimeOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := newSigner(t)
	id := f.addPledge(t, pledgeURI, pledgeText)
	sig := sign(t, alice, pledgeText)

	assert.ErrorIs(t, f.svc.Claim(ctx, id, alice.Address(), sig), badge.ErrNotEligible)

	f.oracle.Add(alice.Address())
	require.NoError(t, f.svc.Claim(ctx, id, alice.Address(), sig))

	// Losing eligibility later does not remove the badge.
	f.oracle.Remove(alice.Address())
	assert.True(t, f.svc.HasBadge(id, alice.Address()))
}

func TestEligibilityOracleFailureFailsClosed(t *testing.T) {
	svc, err := badge.New(badge.Config{
		Owner: ownerSubject,
		Gate:  eligibility.NewGate(errOracle{}),
	})
	require.NoError(t, err)
	owner := badge.OwnerCapability(ownerSubject)
	alice := newSigner(t)

	id, err := svc.AddPledge(context.Background(), owner, pledgeURI, pledgeText)
	require.NoError(t, err)

	err = svc.Claim(context.Background(), id, alice.Address(), sign(t, alice, pledgeText))
	assert.ErrorIs(t, err, badge.ErrEligibilityCheckFailed)
	assert.False(t, svc.HasBadge(id, alice.Address()))
	assert.Equal(t, uint64(1), svc.LastSeq())
}

func TestNilGateDeniesClaims(t *testing.T) {
	svc, err := badge.New(badge.Config{Owner: ownerSubject})
	require.NoError(t, err)
	alice := newSigner(t)
	id, err := svc.AddPledge(context.Background(), badge.OwnerCapability(ownerSubject), pledgeURI, pledgeText)
	require.NoError(t, err)

	err = svc.Claim(context.Background(), id, alice.Address(), sign(t, alice, pledgeText))
	assert.ErrorIs(t, err, badge.ErrNotEligible)
}

func TestOwnerOnlyOperations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := newSigner(t)
	f.oracle.Add(alice.Address())
	id := f.addPledge(t, pledgeURI, pledgeText)
	require.NoError(t, f.svc.Claim(ctx, id, alice.Address(), sign(t, alice, pledgeText)))
	before := f.svc.LastSeq()

	caps := map[string]badge.Capability{
		"nil":           nil,
		"wrong subject": badge.OwnerCapability("did:web:mallory.example.com"),
		"empty subject": badge.OwnerCapability(""),
	}
	for name, c := range caps {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.AddPledge(ctx, c, "ipfs://x", "x")
			assert.ErrorIs(t, err, badge.ErrUnauthorized)

			err = f.svc.Revoke(ctx, c, alice.Address(), id)
			assert.ErrorIs(t, err, badge.ErrUnauthorized)

			err = f.svc.Redeem(ctx, c, alice.Address(), id)
			assert.ErrorIs(t, err, badge.ErrUnauthorized)
		})
	}

	assert.Equal(t, before, f.svc.LastSeq())
	assert.True(t, f.svc.HasBadge(id, alice.Address()))
	assert.Len(t, f.svc.Pledges(), 1)
}

func TestRevokeWithoutHoldingLocksAccount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := newSigner(t)
	f.oracle.Add(alice.Address())
	id := f.addPledge(t, pledgeURI, pledgeText)

	require.NoError(t, f.svc.Revoke(ctx, f.owner, alice.Address(), id))
	assert.Equal(t, badge.AccountState{Revoked: true}, f.svc.State(id, alice.Address()))

	err := f.svc.Claim(ctx, id, alice.Address(), sign(t, alice, pledgeText))
	assert.ErrorIs(t, err, badge.ErrRevoked)

	// Revoking twice still emits an event.
	require.NoError(t, f.svc.Revoke(ctx, f.owner, alice.Address(), id))
	assert.Equal(t, []badge.EventType{
		badge.EventPledgeAdded,
		badge.EventRevoked,
		badge.EventRevoked,
	}, eventTypes(f.svc.Events(0, 0)))
}

func TestRedeemWithoutLockIsNoop(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := newSigner(t)
	f.oracle.Add(alice.Address())
	id := f.addPledge(t, pledgeURI, pledgeText)
	require.NoError(t, f.svc.Claim(ctx, id, alice.Address(), sign(t, alice, pledgeText)))

	require.NoError(t, f.svc.Redeem(ctx, f.owner, alice.Address(), id))
	assert.Equal(t, badge.AccountState{Held: true}, f.svc.State(id, alice.Address()))

	events := f.svc.Events(2, 0)
	require.Len(t, events, 1)
	assert.Equal(t, badge.EventRedeemed, events[0].Type)
	assert.Equal(t, alice.Address(), events[0].Account)
	assert.Equal(t, fixedNow, events[0].At)
}

func TestTransfersAlwaysFail(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := newSigner(t)
	bob := newSigner(t)
	f.oracle.Add(alice.Address())
	id := f.addPledge(t, pledgeURI, pledgeText)
	require.NoError(t, f.svc.Claim(ctx, id, alice.Address(), sign(t, alice, pledgeText)))

	err := f.svc.Transfer(ctx, alice.Address(), bob.Address(), id, 1)
	assert.ErrorIs(t, err, badge.ErrNonTransferable)

	err = f.svc.BatchTransfer(ctx, alice.Address(), bob.Address(), []uint64{id}, []uint64{1})
	assert.ErrorIs(t, err, badge.ErrNonTransferable)

	err = f.svc.BatchTransfer(ctx, alice.Address(), bob.Address(), nil, nil)
	assert.ErrorIs(t, err, badge.ErrNonTransferable)

	assert.True(t, f.svc.HasBadge(id, alice.Address()))
	assert.False(t, f.svc.HasBadge(id, bob.Address()))
	assert.Equal(t, uint64(2), f.svc.LastSeq())
}

func TestPledgeCatalog(t *testing.T) {
	f := newFixture(t)

	assert.Empty(t, f.svc.Pledges())
	assert.True(t, f.svc.Pledge(0).IsZero())
	assert.False(t, f.svc.PledgeExists(0))

	a := f.addPledge(t, "ipfs://a", "alpha")
	b := f.addPledge(t, "ipfs://b", "alpha")
	assert.Equal(t, uint64(0), a)
	assert.Equal(t, uint64(1), b)

	p := f.svc.Pledge(b)
	assert.Equal(t, "ipfs://b", p.URI)
	assert.Equal(t, "alpha", p.Content)
	assert.True(t, f.svc.PledgeExists(b))
	assert.Len(t, f.svc.Pledges(), 2)
}

func TestHoldersTracksClaimsAndRevocations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.addPledge(t, pledgeURI, pledgeText)

	signers := make([]*crypto.PersonalSigner, 4)
	for i := range signers {
		signers[i] = newSigner(t)
		f.oracle.Add(signers[i].Address())
		require.NoError(t, f.svc.Claim(ctx, id, signers[i].Address(), sign(t, signers[i], pledgeText)))
	}

	require.NoError(t, f.svc.Revoke(ctx, f.owner, signers[1].Address(), id))

	assert.ElementsMatch(t, []crypto.Address{
		signers[0].Address(),
		signers[2].Address(),
		signers[3].Address(),
	}, f.svc.Holders(id))

	// Snapshots are independent of later changes.
	snapshot := f.svc.Holders(id)
	require.NoError(t, f.svc.Revoke(ctx, f.owner, signers[0].Address(), id))
	assert.Len(t, snapshot, 3)
	assert.Len(t, f.svc.Holders(id), 2)
}

func TestJournalFailureLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	j := &failingJournal{Memory: journal.NewMemory()}
	oracle := eligibility.NewSetOracle()
	svc, err := badge.New(badge.Config{
		Owner:   ownerSubject,
		Gate:    eligibility.NewGate(oracle),
		Journal: j,
	})
	require.NoError(t, err)
	owner := badge.OwnerCapability(ownerSubject)
	alice := newSigner(t)
	oracle.Add(alice.Address())

	id, err := svc.AddPledge(ctx, owner, pledgeURI, pledgeText)
	require.NoError(t, err)

	j.fail = true

	_, err = svc.AddPledge(ctx, owner, "ipfs://b", "b")
	assert.ErrorIs(t, err, badge.ErrJournalWriteFailed)
	assert.Len(t, svc.Pledges(), 1)

	err = svc.Claim(ctx, id, alice.Address(), sign(t, alice, pledgeText))
	assert.ErrorIs(t, err, badge.ErrJournalWriteFailed)
	assert.False(t, svc.HasBadge(id, alice.Address()))
	assert.Empty(t, svc.Holders(id))

	err = svc.Revoke(ctx, owner, alice.Address(), id)
	assert.ErrorIs(t, err, badge.ErrJournalWriteFailed)
	assert.False(t, svc.State(id, alice.Address()).Revoked)

	assert.Equal(t, uint64(1), svc.LastSeq())
	assert.Len(t, svc.Events(0, 0), 1)

	// Recovery continues the sequence without gaps.
	j.fail = false
	require.NoError(t, svc.Claim(ctx, id, alice.Address(), sign(t, alice, pledgeText)))
	assert.Equal(t, uint64(2), svc.LastSeq())
}

// A redis write can land even though the client saw an error (a read timeout
// after EXEC). The service reports failure, the journal refuses the retried
// sequence number, and a restart adopts the journal's history.
func TestJournalWriteWithLostReplySurvivesRestart(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	owner := badge.OwnerCapability(ownerSubject)

	newService := func() *badge.Service {
		j, err := journal.NewRedis(rdb, "restart")
		require.NoError(t, err)
		svc, err := badge.New(badge.Config{Owner: ownerSubject, Journal: j, Now: func() time.Time { return fixedNow }})
		require.NoError(t, err)
		require.NoError(t, svc.Restore(ctx))
		return svc
	}

	svc := newService()
	_, err := svc.AddPledge(ctx, owner, "ipfs://a", "a")
	require.NoError(t, err)

	// Entry 2 reaches redis but its reply never reaches the service.
	landed := journal.Entry{Seq: 2, Type: journal.EntryPledgeAdded, BadgeID: 1, URI: "ipfs://b", Content: "b", At: fixedNow}
	raw, err := json.Marshal(landed)
	require.NoError(t, err)
	require.NoError(t, rdb.RPush(ctx, journal.ListKey("restart"), raw).Err())

	_, err = svc.AddPledge(ctx, owner, "ipfs://c", "c")
	assert.ErrorIs(t, err, badge.ErrJournalWriteFailed)
	assert.ErrorIs(t, err, journal.ErrSequence)
	assert.Len(t, svc.Pledges(), 1)
	assert.Equal(t, uint64(1), svc.LastSeq())

	n, err := rdb.LLen(ctx, journal.ListKey("restart")).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	restarted := newService()
	assert.Equal(t, uint64(2), restarted.LastSeq())
	assert.Equal(t, "b", restarted.Pledge(1).Content)

	id, err := restarted.AddPledge(ctx, owner, "ipfs://c", "c")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), id)
	assert.Equal(t, uint64(3), restarted.LastSeq())
}

func TestRestoreRebuildsState(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	oracle := eligibility.NewSetOracle()
	owner := badge.OwnerCapability(ownerSubject)

	alice := newSigner(t)
	bob := newSigner(t)
	carol := newSigner(t)
	oracle.Add(alice.Address())
	oracle.Add(bob.Address())
	oracle.Add(carol.Address())

	j, err := journal.OpenFile(path)
	require.NoError(t, err)
	svc, err := badge.New(badge.Config{Owner: ownerSubject, Gate: eligibility.NewGate(oracle), Journal: j})
	require.NoError(t, err)

	first, err := svc.AddPledge(ctx, owner, "ipfs://a", "alpha")
	require.NoError(t, err)
	second, err := svc.AddPledge(ctx, owner, "ipfs://b", "beta")
	require.NoError(t, err)
	require.NoError(t, svc.Claim(ctx, first, alice.Address(), sign(t, alice, "alpha")))
	require.NoError(t, svc.Claim(ctx, first, bob.Address(), sign(t, bob, "alpha")))
	require.NoError(t, svc.Claim(ctx, second, carol.Address(), sign(t, carol, "beta")))
	require.NoError(t, svc.Revoke(ctx, owner, bob.Address(), first))
	require.NoError(t, svc.Revoke(ctx, owner, carol.Address(), second))
	require.NoError(t, svc.Redeem(ctx, owner, carol.Address(), second))
	require.NoError(t, j.Close())

	j2, err := journal.OpenFile(path)
	require.NoError(t, err)
	defer j2.Close()
	restored, err := badge.New(badge.Config{Owner: ownerSubject, Gate: eligibility.NewGate(oracle), Journal: j2})
	require.NoError(t, err)
	require.NoError(t, restored.Restore(ctx))

	assert.Equal(t, svc.LastSeq(), restored.LastSeq())
	assert.Equal(t, svc.Pledges(), restored.Pledges())
	assert.ElementsMatch(t, svc.Holders(first), restored.Holders(first))
	assert.Empty(t, restored.Holders(second))
	for _, s := range []*crypto.PersonalSigner{alice, bob, carol} {
		for _, id := range []uint64{first, second} {
			assert.Equal(t, svc.State(id, s.Address()), restored.State(id, s.Address()))
		}
	}
	assert.Equal(t, eventTypes(svc.Events(0, 0)), eventTypes(restored.Events(0, 0)))

	// Bob is still locked after the restart.
	err = restored.Claim(ctx, first, bob.Address(), sign(t, bob, "alpha"))
	assert.ErrorIs(t, err, badge.ErrRevoked)

	// New operations continue the sequence.
	require.NoError(t, restored.Claim(ctx, second, carol.Address(), sign(t, carol, "beta")))
	assert.Equal(t, svc.LastSeq()+1, restored.LastSeq())
}

func TestRestoreRejectsNonEmptyService(t *testing.T) {
	f := newFixture(t)
	f.addPledge(t, pledgeURI, pledgeText)
	assert.Error(t, f.svc.Restore(context.Background()))
}

func TestRestoreRejectsCorruptJournal(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		entries []journal.Entry
	}{
		{
			name: "sequence gap",
			entries: []journal.Entry{
				{Seq: 1, Type: journal.EntryPledgeAdded, BadgeID: 0, Content: "a"},
				{Seq: 3, Type: journal.EntryPledgeAdded, BadgeID: 1, Content: "b"},
			},
		},
		{
			name: "pledge id out of order",
			entries: []journal.Entry{
				{Seq: 1, Type: journal.EntryPledgeAdded, BadgeID: 5, Content: "a"},
			},
		},
		{
			name: "unknown type",
			entries: []journal.Entry{
				{Seq: 1, Type: "Minted", BadgeID: 0},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := journal.NewMemory()
			for _, e := range tt.entries {
				require.NoError(t, j.Append(ctx, e))
			}
			svc, err := badge.New(badge.Config{Owner: ownerSubject, Journal: j})
			require.NoError(t, err)

			err = svc.Restore(ctx)
			assert.ErrorIs(t, err, journal.ErrCorrupt)
		})
	}
}

func TestEventsSinceAndRetention(t *testing.T) {
	svc, err := badge.New(badge.Config{Owner: ownerSubject, RecentEvents: 3})
	require.NoError(t, err)
	owner := badge.OwnerCapability(ownerSubject)

	for i := 0; i < 5; i++ {
		_, err := svc.AddPledge(context.Background(), owner, "ipfs://p", "p")
		require.NoError(t, err)
	}

	all := svc.Events(0, 0)
	require.Len(t, all, 3)
	assert.Equal(t, uint64(3), all[0].Seq)
	assert.Equal(t, uint64(5), all[2].Seq)

	since := svc.Events(3, 0)
	require.Len(t, since, 2)
	assert.Equal(t, uint64(4), since[0].Seq)

	limited := svc.Events(0, 1)
	require.Len(t, limited, 1)
	assert.Equal(t, uint64(3), limited[0].Seq)

	assert.Empty(t, svc.Events(5, 0))
}

func TestConcurrentClaims(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.addPledge(t, pledgeURI, pledgeText)

	alice := newSigner(t)
	f.oracle.Add(alice.Address())
	aliceSig := sign(t, alice, pledgeText)

	const n = 16
	others := make([]*crypto.PersonalSigner, n)
	sigs := make([][]byte, n)
	for i := range others {
		others[i] = newSigner(t)
		f.oracle.Add(others[i].Address())
		sigs[i] = sign(t, others[i], pledgeText)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if f.svc.Claim(ctx, id, alice.Address(), aliceSig) == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, f.svc.Claim(ctx, id, others[i].Address(), sigs[i]))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Len(t, f.svc.Holders(id), n+1)

	// Every event appears once and in sequence.
	events := f.svc.Events(0, 0)
	for i, e := range events {
		assert.Equal(t, uint64(i+1), e.Seq)
	}
}

func TestMetricsRegistration(t *testing.T) {
	ctx := context.Background()
	registry := prometheus.NewRegistry()
	metrics := &badge.Metrics{}
	metrics.Register(registry)
	metrics.Register(registry)

	oracle := eligibility.NewSetOracle()
	svc, err := badge.New(badge.Config{
		Owner:   ownerSubject,
		Gate:    eligibility.NewGate(oracle),
		Metrics: metrics,
	})
	require.NoError(t, err)
	alice := newSigner(t)
	oracle.Add(alice.Address())

	id, err := svc.AddPledge(ctx, badge.OwnerCapability(ownerSubject), pledgeURI, pledgeText)
	require.NoError(t, err)
	require.NoError(t, svc.Claim(ctx, id, alice.Address(), sign(t, alice, pledgeText)))
	_ = svc.Transfer(ctx, alice.Address(), alice.Address(), id, 1)

	families, err := registry.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, mf := range families {
		names = append(names, mf.GetName())
	}
	assert.Contains(t, names, "pledge_claims_total")
	assert.Contains(t, names, "pledge_pledges_added_total")
	assert.Contains(t, names, "pledge_badge_holders")
	assert.Contains(t, names, "pledge_transfer_attempts_total")
}

func TestErrorHelpers(t *testing.T) {
	cause := errors.New("boom")
	err := badge.WrapError(badge.ErrCodeJournalWriteFailed, "append", cause)

	assert.ErrorIs(t, err, badge.ErrJournalWriteFailed)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, badge.ErrRevoked)
	assert.Equal(t, badge.ErrCodeJournalWriteFailed, badge.GetErrorCode(err))
	assert.Equal(t, "", badge.GetErrorCode(cause))
	assert.Contains(t, err.Error(), "JOURNAL_WRITE_FAILED")
}
