package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/capiscio/pledge-core/pkg/badge"
	"github.com/capiscio/pledge-core/pkg/crypto"
	"github.com/capiscio/pledge-core/pkg/pledge"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
)

// AddPledgeRequest is the body of POST /v1/pledges.
type AddPledgeRequest struct {
	URI     string `json:"uri"`
	Content string `json:"content"`
}

// AddPledgeResponse carries the id assigned to a new pledge.
type AddPledgeResponse struct {
	ID uint64 `json:"id"`
}

// ClaimRequest is the body of a claim. Signature is hex over the pledge content.
type ClaimRequest struct {
	Account   string `json:"account"`
	Signature string `json:"signature"`
}

// AccountRequest is the body of revocation and redemption requests.
type AccountRequest struct {
	Account string `json:"account"`
}

// HolderState is the ledger record of one (badge, account) pair.
type HolderState struct {
	BadgeID uint64         `json:"badgeId"`
	Account crypto.Address `json:"account"`
	Held    bool           `json:"held"`
	Revoked bool           `json:"revoked"`
	Balance uint64         `json:"balance"`
	Status  badge.Status   `json:"status"`
}

// HoldersResponse lists the current holders of a badge.
type HoldersResponse struct {
	BadgeID uint64           `json:"badgeId"`
	Holders []crypto.Address `json:"holders"`
}

// PledgesResponse is the pledge catalog in id order.
type PledgesResponse struct {
	Pledges []pledge.Pledge `json:"pledges"`
}

// TransferRequest is accepted only to be rejected; badges never move.
type TransferRequest struct {
	From     string   `json:"from"`
	To       string   `json:"to"`
	BadgeIDs []uint64 `json:"badgeIds"`
	Amounts  []uint64 `json:"amounts"`
}

// EventsResponse pages through recent events. LastSeq is the newest committed sequence.
type EventsResponse struct {
	Events  []badge.Event `json:"events"`
	LastSeq uint64        `json:"lastSeq"`
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status  string `json:"status"`
	LastSeq uint64 `json:"lastSeq"`
	Pledges int    `json:"pledges"`
}

// handleKeySet publishes the owner's verification key.
func (s *Server) handleKeySet(w http.ResponseWriter, _ *http.Request) {
	if s.guard == nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Code: badge.ErrCodeUnauthorized, Message: "admin API is disabled"})
		return
	}
	writeJSON(w, http.StatusOK, s.guard.OwnerKey().KeySet())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		LastSeq: s.svc.LastSeq(),
		Pledges: len(s.svc.Pledges()),
	})
}

func (s *Server) handleListPledges(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, PledgesResponse{Pledges: s.svc.Pledges()})
}

func (s *Server) handleAddPledge(w http.ResponseWriter, r *http.Request, c badge.Capability) {
	var req AddPledgeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	id, err := s.svc.AddPledge(r.Context(), c, req.URI, req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, AddPledgeResponse{ID: id})
}

func (s *Server) handleGetPledge(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if !s.svc.PledgeExists(id) {
		writeError(w, badge.NewError(badge.ErrCodeNoSuchPledge, fmt.Sprintf("pledge %d does not exist", id)))
		return
	}
	writeJSON(w, http.StatusOK, s.svc.Pledge(id))
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req ClaimRequest
	if !decodeBody(w, r, &req) {
		return
	}
	account, err := crypto.ParseAddress(req.Account)
	if err != nil {
		writeBadRequest(w, "invalid account: %v", err)
		return
	}
	// Undecodable signatures are left to the service so guard order holds.
	sig, _ := crypto.ParseSignature(req.Signature)

	if err := s.svc.Claim(r.Context(), id, account, sig); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.holderState(id, account))
}

func (s *Server) handleHolders(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, HoldersResponse{BadgeID: id, Holders: s.svc.Holders(id)})
}

func (s *Server) handleHolderState(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	account, err := crypto.ParseAddress(r.PathValue("account"))
	if err != nil {
		writeBadRequest(w, "invalid account: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, s.holderState(id, account))
}

func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request, c badge.Capability) {
	s.handleAdminAccount(w, r, c, s.svc.Revoke)
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request, c badge.Capability) {
	s.handleAdminAccount(w, r, c, s.svc.Redeem)
}

func (s *Server) handleAdminAccount(
	w http.ResponseWriter,
	r *http.Request,
	c badge.Capability,
	op func(context.Context, badge.Capability, crypto.Address, uint64) error,
) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req AccountRequest
	if !decodeBody(w, r, &req) {
		return
	}
	account, err := crypto.ParseAddress(req.Account)
	if err != nil {
		writeBadRequest(w, "invalid account: %v", err)
		return
	}

	if err := op(r.Context(), c, account, id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.holderState(id, account))
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	// The request is rejected whatever it contains.
	_ = json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req)
	from, _ := crypto.ParseAddress(req.From)
	to, _ := crypto.ParseAddress(req.To)

	var err error
	if len(req.BadgeIDs) == 1 && len(req.Amounts) == 1 {
		err = s.svc.Transfer(r.Context(), from, to, req.BadgeIDs[0], req.Amounts[0])
	} else {
		err = s.svc.BatchTransfer(r.Context(), from, to, req.BadgeIDs, req.Amounts)
	}
	writeError(w, err)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var since uint64
	if v := q.Get("since"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeBadRequest(w, "invalid since: %v", err)
			return
		}
		since = n
	}

	limit := defaultEventLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeBadRequest(w, "invalid limit %q", v)
			return
		}
		limit = min(n, maxEventLimit)
	}

	writeJSON(w, http.StatusOK, EventsResponse{
		Events:  s.svc.Events(since, limit),
		LastSeq: s.svc.LastSeq(),
	})
}

func (s *Server) holderState(id uint64, account crypto.Address) HolderState {
	st := s.svc.State(id, account)
	return HolderState{
		BadgeID: id,
		Account: account,
		Held:    st.Held,
		Revoked: st.Revoked,
		Balance: st.Balance(),
		Status:  st.Status(),
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeBadRequest(w, "invalid pledge id %q", r.PathValue("id"))
		return 0, false
	}
	return id, true
}

// decodeBody decodes a JSON request body into v, replying with an error and
// returning false on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{Code: CodeBodyTooLarge, Message: err.Error()})
			return false
		}
		writeBadRequest(w, "invalid request body: %v", err)
		return false
	}
	return true
}
