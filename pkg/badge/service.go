// Package badge implements the pledge badge lifecycle: signature-backed
// claims gated by eligibility, owner revocation and redemption, and the
// holder bookkeeping used to enumerate current badge holders.
//
// Every operation runs under a single lock and either commits completely
// (journal entry, ledger, holder set, event) or leaves no trace.
package badge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/capiscio/pledge-core/pkg/crypto"
	"github.com/capiscio/pledge-core/pkg/eligibility"
	"github.com/capiscio/pledge-core/pkg/holders"
	"github.com/capiscio/pledge-core/pkg/journal"
	"github.com/capiscio/pledge-core/pkg/pledge"
)

// DefaultRecentEvents is the number of events kept for Events queries.
const DefaultRecentEvents = 1024

// Verifier checks that sig was produced by signer over exactly msg.
type Verifier interface {
	Verify(signer crypto.Address, msg, sig []byte) bool
}

// Config holds the collaborators of a Service.
type Config struct {
	// Owner is the capability subject allowed to run admin operations.
	Owner string

	// Gate decides eligibility at claim time. Nil denies every claim.
	Gate *eligibility.Gate

	// Verifier checks claim signatures. Defaults to crypto.PersonalVerifier.
	Verifier Verifier

	// Journal records committed operations. Defaults to an in-memory journal.
	Journal journal.Journal

	// Metrics is optional.
	Metrics *Metrics

	// Logger defaults to a discard logger.
	Logger *slog.Logger

	// RecentEvents bounds the in-memory event history. Defaults to DefaultRecentEvents.
	RecentEvents int

	// Now overrides the clock (for testing).
	Now func() time.Time
}

// Service is the badge ledger together with its claim and admin operations.
// It is safe for concurrent use; operations are totally ordered.
type Service struct {
	owner    string
	gate     *eligibility.Gate
	verifier Verifier
	journal  journal.Journal
	metrics  *Metrics
	logger   *slog.Logger
	now      func() time.Time

	mu        sync.Mutex
	catalog   *pledge.Catalog
	ledger    *Ledger
	holders   *holders.Index
	seq       uint64
	recent    []Event
	recentCap int
}

// New creates a Service with empty state. Call Restore to load a journal.
func New(cfg Config) (*Service, error) {
	if cfg.Owner == "" {
		return nil, fmt.Errorf("owner cannot be empty")
	}
	if cfg.Verifier == nil {
		cfg.Verifier = crypto.PersonalVerifier{}
	}
	if cfg.Journal == nil {
		cfg.Journal = journal.NewMemory()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.RecentEvents <= 0 {
		cfg.RecentEvents = DefaultRecentEvents
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Service{
		owner:     cfg.Owner,
		gate:      cfg.Gate,
		verifier:  cfg.Verifier,
		journal:   cfg.Journal,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
		now:       cfg.Now,
		catalog:   pledge.NewCatalog(),
		ledger:    NewLedger(),
		holders:   holders.NewIndex(),
		recentCap: cfg.RecentEvents,
	}, nil
}

// Owner returns the configured owner subject.
func (s *Service) Owner() string {
	return s.owner
}

// AddPledge appends a pledge to the catalog and returns its id.
func (s *Service) AddPledge(ctx context.Context, capability Capability, uri, content string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.authorize(capability); err != nil {
		return 0, err
	}

	id := s.catalog.Len()
	if err := s.commit(ctx, Event{Type: EventPledgeAdded, BadgeID: id, URI: uri, Content: content}); err != nil {
		return 0, err
	}

	s.metrics.incPledgesAdded()
	s.logger.Info("pledge added", "badge_id", id, "uri", uri)
	return id, nil
}

// Claim mints badgeID to account if every guard passes. Guards run in this
// order and the first failure is reported: eligibility, already held,
// revocation lock, pledge existence, signature.
func (s *Service) Claim(ctx context.Context, badgeID uint64, account crypto.Address, signature []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkClaim(ctx, badgeID, account, signature); err != nil {
		code := GetErrorCode(err)
		s.metrics.observeClaim(code)
		s.logger.Info("claim rejected",
			"badge_id", badgeID,
			"account", account.String(),
			"code", code,
		)
		return err
	}

	if err := s.commit(ctx, Event{Type: EventPledged, BadgeID: badgeID, Account: account}); err != nil {
		s.metrics.observeClaim(GetErrorCode(err))
		return err
	}

	s.metrics.observeClaim(claimResultOK)
	s.metrics.setHolders(badgeID, s.holders.Len(badgeID))
	s.logger.Info("badge claimed", "badge_id", badgeID, "account", account.String())
	return nil
}

func (s *Service) checkClaim(ctx context.Context, badgeID uint64, account crypto.Address, signature []byte) error {
	eligible, err := s.gate.IsEligible(ctx, account)
	if err != nil {
		return WrapError(ErrCodeEligibilityCheckFailed, "could not determine eligibility", err)
	}
	if !eligible {
		return NewError(ErrCodeNotEligible, fmt.Sprintf("account %s is not eligible", account))
	}

	st := s.ledger.State(badgeID, account)
	if st.Held {
		return NewError(ErrCodeAlreadyClaimed, fmt.Sprintf("account %s already holds badge %d", account, badgeID))
	}
	if st.Revoked {
		return NewError(ErrCodeRevoked, fmt.Sprintf("badge %d is revoked for account %s", badgeID, account))
	}

	if !s.catalog.Exists(badgeID) {
		return NewError(ErrCodeNoSuchPledge, fmt.Sprintf("pledge %d does not exist", badgeID))
	}
	content := s.catalog.Get(badgeID).Content
	if !s.verifier.Verify(account, []byte(content), signature) {
		return NewError(ErrCodeInvalidSignature, fmt.Sprintf("signature is not by %s over pledge %d", account, badgeID))
	}
	return nil
}

// Revoke burns account's badge (if held) and locks the pair against future
// claims. It succeeds even when nothing was held.
func (s *Service) Revoke(ctx context.Context, capability Capability, account crypto.Address, badgeID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.authorize(capability); err != nil {
		return err
	}

	wasHeld := s.ledger.State(badgeID, account).Held
	if err := s.commit(ctx, Event{Type: EventRevoked, BadgeID: badgeID, Account: account}); err != nil {
		return err
	}

	s.metrics.incRevocations()
	s.metrics.setHolders(badgeID, s.holders.Len(badgeID))
	s.logger.Info("badge revoked",
		"badge_id", badgeID,
		"account", account.String(),
		"was_held", wasHeld,
	)
	return nil
}

// Redeem clears the revocation lock for (badgeID, account). It never restores
// the badge; the account must claim again.
func (s *Service) Redeem(ctx context.Context, capability Capability, account crypto.Address, badgeID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.authorize(capability); err != nil {
		return err
	}

	wasLocked := s.ledger.State(badgeID, account).Revoked
	if err := s.commit(ctx, Event{Type: EventRedeemed, BadgeID: badgeID, Account: account}); err != nil {
		return err
	}

	s.metrics.incRedemptions()
	s.logger.Info("badge redeemed",
		"badge_id", badgeID,
		"account", account.String(),
		"was_locked", wasLocked,
	)
	return nil
}

// Transfer always fails: badges stay with the account that claimed them.
func (s *Service) Transfer(_ context.Context, from, to crypto.Address, badgeID, amount uint64) error {
	s.metrics.incTransferAttempts()
	s.logger.Info("transfer rejected",
		"from", from.String(),
		"to", to.String(),
		"badge_id", badgeID,
		"amount", amount,
	)
	return NewError(ErrCodeNonTransferable, fmt.Sprintf("badge %d cannot be transferred", badgeID))
}

// BatchTransfer always fails, for the same reason as Transfer.
func (s *Service) BatchTransfer(_ context.Context, from, to crypto.Address, badgeIDs, amounts []uint64) error {
	s.metrics.incTransferAttempts()
	s.logger.Info("batch transfer rejected",
		"from", from.String(),
		"to", to.String(),
		"badges", len(badgeIDs),
	)
	return NewError(ErrCodeNonTransferable, "badges cannot be transferred")
}

// HasBadge reports whether account currently holds badgeID.
func (s *Service) HasBadge(badgeID uint64, account crypto.Address) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.State(badgeID, account).Held
}

// BalanceOf returns 1 if account holds badgeID, else 0.
func (s *Service) BalanceOf(badgeID uint64, account crypto.Address) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.BalanceOf(badgeID, account)
}

// State returns the ledger record for (badgeID, account).
func (s *Service) State(badgeID uint64, account crypto.Address) AccountState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.State(badgeID, account)
}

// Holders returns a snapshot of the current holders of badgeID.
func (s *Service) Holders(badgeID uint64) []crypto.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.holders.Members(badgeID)
}

// Pledge returns the pledge for id; unknown ids yield a zero pledge.
func (s *Service) Pledge(id uint64) pledge.Pledge {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.catalog.Get(id)
}

// PledgeExists reports whether id was added.
func (s *Service) PledgeExists(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.catalog.Exists(id)
}

// Pledges returns the whole catalog in id order.
func (s *Service) Pledges() []pledge.Pledge {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.catalog.List()
}

// LastSeq returns the sequence number of the last committed event.
func (s *Service) LastSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Events returns retained events with Seq > since, oldest first, at most
// limit of them (limit <= 0 means no limit).
func (s *Service) Events(since uint64, limit int) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := sort.Search(len(s.recent), func(i int) bool { return s.recent[i].Seq > since })
	n := len(s.recent) - i
	if limit > 0 && n > limit {
		n = limit
	}
	out := make([]Event, n)
	copy(out, s.recent[i:i+n])
	return out
}

// Restore replays the journal into an empty Service.
// On error the Service is left partially restored and should be discarded.
func (s *Service) Restore(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seq != 0 {
		return fmt.Errorf("restore requires an empty service (at seq %d)", s.seq)
	}

	err := s.journal.Replay(ctx, func(ev Event) error {
		if ev.Seq != s.seq+1 {
			return fmt.Errorf("%w: expected seq %d, got %d", journal.ErrCorrupt, s.seq+1, ev.Seq)
		}
		return s.apply(ev)
	})
	if err != nil {
		return fmt.Errorf("failed to restore from journal: %w", err)
	}

	for _, p := range s.catalog.List() {
		s.metrics.setHolders(p.ID, s.holders.Len(p.ID))
	}
	s.logger.Info("ledger restored", "events", s.seq, "pledges", s.catalog.Len())
	return nil
}

func (s *Service) authorize(capability Capability) error {
	if capability == nil || capability.Subject() != s.owner {
		return ErrUnauthorized
	}
	return nil
}

// commit records ev in the journal and then applies it. Nothing is applied if
// the journal rejects the entry.
func (s *Service) commit(ctx context.Context, ev Event) error {
	ev.Seq = s.seq + 1
	ev.At = s.now().UTC()

	if err := s.journal.Append(ctx, ev); err != nil {
		if errors.Is(err, journal.ErrSequence) {
			// An earlier append landed although it reported failure. The
			// journal is ahead of memory until Restore runs on a fresh Service.
			s.logger.Error("journal is ahead of the ledger; restart to replay it", "seq", ev.Seq, "error", err)
		} else {
			s.logger.Error("journal append failed", "seq", ev.Seq, "type", string(ev.Type), "error", err)
		}
		return WrapError(ErrCodeJournalWriteFailed, fmt.Sprintf("could not record %s", ev.Type), err)
	}
	return s.apply(ev)
}

// apply performs the state transition for a committed event. Guards are not
// re-evaluated; the event is already a fact.
func (s *Service) apply(ev Event) error {
	switch ev.Type {
	case EventPledgeAdded:
		if ev.BadgeID != s.catalog.Len() {
			return fmt.Errorf("%w: pledge id %d out of order (next is %d)", journal.ErrCorrupt, ev.BadgeID, s.catalog.Len())
		}
		s.catalog.Add(ev.URI, ev.Content)
	case EventPledged:
		s.ledger.mint(ev.BadgeID, ev.Account)
		s.holders.Add(ev.BadgeID, ev.Account)
	case EventRevoked:
		s.ledger.burnAndLock(ev.BadgeID, ev.Account)
		s.holders.Remove(ev.BadgeID, ev.Account)
	case EventRedeemed:
		s.ledger.unlock(ev.BadgeID, ev.Account)
	default:
		return fmt.Errorf("%w: unknown event type %q", journal.ErrCorrupt, ev.Type)
	}

	s.seq = ev.Seq
	s.remember(ev)
	return nil
}

func (s *Service) remember(ev Event) {
	if len(s.recent) < s.recentCap {
		s.recent = append(s.recent, ev)
		return
	}
	copy(s.recent, s.recent[1:])
	s.recent[len(s.recent)-1] = ev
}
