package main

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/pixiechain/mediagate/pkg/journal"
	"github.com/pixiechain/mediagate/pkg/ledger"
	"github.com/pixiechain/mediagate/pkg/orchestrator"
	"github.com/pixiechain/mediagate/pkg/registry"
)

var errJournalDisabled = errors.New("outcome journal is disabled")

type accountResponse struct {
	Account  string `json:"account"`
	Type     string `json:"type"`
	PK       string `json:"pk"`
	Mnemonic string `json:"mnemonic"`
}

func newAccountResponse(acc *ledger.Account) accountResponse {
	return accountResponse{Account: acc.Address, Type: "eth", PK: acc.PrivateKey, Mnemonic: acc.Mnemonic}
}

func (s *server) newAccount(w http.ResponseWriter, r *http.Request) {
	if preflight(w, r) {
		return
	}
	p, err := readParams(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if t := p.get("type"); t != "" && !strings.EqualFold(t, "eth") {
		s.fail(w, r, invalid(fmt.Errorf("unsupported account type %q", t)))
		return
	}
	words := 0
	if raw := p.get("words"); raw != "" {
		if words, err = strconv.Atoi(raw); err != nil {
			s.fail(w, r, invalid(fmt.Errorf("words must be 12 or 24, got %q", raw)))
			return
		}
	}
	acc, err := ledger.NewAccount(words)
	if err != nil {
		s.fail(w, r, invalid(err))
		return
	}
	s.logger(r).WithField("account", acc.Address).Info("NewAccount: created")
	writeJSON(w, http.StatusOK, newAccountResponse(acc))
}

// getBalanceOf answers in ether as plain text, "0" on any failure.
func (s *server) getBalanceOf(w http.ResponseWriter, r *http.Request) {
	if preflight(w, r) {
		return
	}
	p, _ := readParams(w, r)
	addr, err := p.requireAddress("address")
	if err != nil {
		s.logger(r).WithError(err).Debug("GetBalanceOf: bad address")
		writeText(w, "0")
		return
	}
	bal, err := s.orch.Balance(r.Context(), addr)
	if err != nil {
		s.logger(r).WithError(err).Warn("GetBalanceOf: balance unavailable")
		writeText(w, "0")
		return
	}
	writeText(w, ledger.FormatEther(bal))
}

// getTotalSupply answers as plain text, "0" on any failure.
func (s *server) getTotalSupply(w http.ResponseWriter, r *http.Request) {
	if preflight(w, r) {
		return
	}
	p, _ := readParams(w, r)
	collection, err := s.collectionParam(p)
	if err != nil {
		writeText(w, "0")
		return
	}
	out, err := s.orch.Read(r.Context(), orchestrator.Media, collection, "totalSupply")
	if err != nil {
		s.logger(r).WithError(err).WithField("collection", collection.Hex()).Warn("GetTotalSupply: read failed")
		writeText(w, "0")
		return
	}
	writeText(w, fmt.Sprint(out[0]))
}

type collectionsResponse struct {
	Status      bool             `json:"status"`
	Network     string           `json:"network,omitempty"`
	Collections []registry.Entry `json:"collections"`
}

func (s *server) collections(w http.ResponseWriter, r *http.Request) {
	if preflight(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, collectionsResponse{
		Status:      true,
		Network:     s.registry.Network(),
		Collections: s.registry.Entries(),
	})
}

// journalEntry returns what the tracker recorded for a transaction. It is
// for reconciliation only; mintStatus is the authoritative answer.
func (s *server) journalEntry(w http.ResponseWriter, r *http.Request) {
	if preflight(w, r) {
		return
	}
	if s.journal == nil {
		s.fail(w, r, errJournalDisabled)
		return
	}
	tx := mux.Vars(r)["tx"]
	out, err := s.journal.Get(tx)
	if err != nil {
		if errors.Is(err, journal.ErrNotFound) {
			err = &orchestrator.OpError{Phase: orchestrator.PhaseLookup, Err: fmt.Errorf("no journal entry for %s", tx)}
		}
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": true, "outcome": out})
}

func (s *server) journalList(w http.ResponseWriter, r *http.Request) {
	if preflight(w, r) {
		return
	}
	if s.journal == nil {
		s.fail(w, r, errJournalDisabled)
		return
	}
	p, _ := readParams(w, r)
	limit := 100
	if raw := p.get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.fail(w, r, invalid(fmt.Errorf("limit must be a positive integer, got %q", raw)))
			return
		}
		limit = n
	}
	state := journal.State(p.get("state"))
	switch state {
	case "", journal.StateConfirmed, journal.StateFailed, journal.StateAbandoned:
	default:
		s.fail(w, r, invalid(fmt.Errorf("unknown state %q", state)))
		return
	}
	out, err := s.journal.List(state, limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger(r).WithFields(logrus.Fields{"state": string(state), "count": len(out)}).Debug("Journal: listed")
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": true, "outcomes": out})
}
