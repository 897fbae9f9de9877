package main

import (
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"

	"github.com/pixiechain/mediagate/pkg/ledger"
	"github.com/pixiechain/mediagate/pkg/orchestrator"
)

// txResponse is the submission handle, flattened the way clients of the
// legacy gateway read it. Receipt is only present after mismatch recovery.
type txResponse struct {
	Status  bool                 `json:"status"`
	Outcome orchestrator.Outcome `json:"outcome"`
	TokenID string               `json:"token_id,omitempty"`
	*ledger.Handle
	GasEstimate uint64         `json:"gasEstimate,omitempty"`
	Receipt     *types.Receipt `json:"receipt,omitempty"`
}

func newTxResponse(res *orchestrator.Result) txResponse {
	out := txResponse{Status: true, Outcome: res.Outcome, Handle: res.Handle, Receipt: res.Receipt}
	if res.TokenID != nil {
		out.TokenID = res.TokenID.String()
	}
	if res.Quote != nil {
		out.GasEstimate = res.Quote.RawGas
	}
	return out
}

type priceResponse struct {
	Status      bool     `json:"status"`
	MintPrice   *big.Int `json:"mintPrice"`
	GasPrice    *big.Int `json:"gasPrice"`
	GasEstimate uint64   `json:"gasEstimate"`
	GasLimit    uint64   `json:"gasLimit"`
}

type mintStatusResponse struct {
	// Status is true only for a mined, successful transaction.
	Status  bool               `json:"status"`
	State   orchestrator.State `json:"state"`
	TokenID string             `json:"token_id,omitempty"`
	Receipt *types.Receipt     `json:"receipt,omitempty"`
}

var kindLabels = map[orchestrator.Kind]string{
	orchestrator.KindCreate:         "Mint",
	orchestrator.KindTransfer:       "Transfer",
	orchestrator.KindDestroy:        "Burn",
	orchestrator.KindUpdateMetadata: "UpdateURI",
	orchestrator.KindFinalize:       "Finalize",
}

// preflight answers CORS preflight requests.
func preflight(w http.ResponseWriter, r *http.Request) bool {
	setCORS(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return true
	}
	return false
}

// buildRequest maps the wire fields of every variant onto one request.
func (s *server) buildRequest(v *orchestrator.Variant, kind orchestrator.Kind, p params) (*orchestrator.Request, error) {
	req := &orchestrator.Request{
		Kind: kind,
		URI:  p.get("tokenURI", "baseURI", "uri"),
		Memo: p.get("memo"),
	}
	var err error
	if req.Signer, err = p.signer("pk"); err != nil {
		return nil, err
	}
	if raw := p.get("contract_address", "contractAddress"); raw != "" {
		addr, err := s.registry.Resolve(raw)
		if err != nil {
			return nil, invalid(err)
		}
		req.Collection = addr
	}
	if req.TokenID, err = p.bigInt("tokenId", "token_id"); err != nil {
		return nil, err
	}
	if req.Fingerprint, err = p.fingerprint("contentHash", "fingerprint"); err != nil {
		return nil, err
	}
	if req.Creator, err = p.address("creator_address", "creatorAddress"); err != nil {
		return nil, err
	}
	if req.Creator == nil {
		creator, err := p.signer("creator_pk")
		if err != nil {
			return nil, err
		}
		if creator != nil {
			addr := creator.Address
			req.Creator = &addr
		}
	}
	if req.To, err = p.address("toAddress", "to"); err != nil {
		return nil, err
	}
	if req.From, err = p.address("fromAddress", "from"); err != nil {
		return nil, err
	}
	if req.Account, err = p.address("account_address", "account"); err != nil {
		return nil, err
	}

	amount, err := p.bigInt("amount")
	if err != nil {
		return nil, err
	}
	quantity, err := p.bigInt("quantity")
	if err != nil {
		return nil, err
	}
	switch {
	case v == orchestrator.Media1155:
		req.Quantity = amount
		if req.Quantity == nil {
			req.Quantity = quantity
		}
	case kind == orchestrator.KindTransfer && amount != nil && req.TokenID == nil:
		req.Value = amount
	default:
		req.Quantity = quantity
	}
	return req, nil
}

func (s *server) txHandler(v *orchestrator.Variant, kind orchestrator.Kind) http.HandlerFunc {
	label := kindLabels[kind]
	return func(w http.ResponseWriter, r *http.Request) {
		if preflight(w, r) {
			return
		}
		p, err := readParams(w, r)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		req, err := s.buildRequest(v, kind, p)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		res, err := s.orch.Execute(r.Context(), v, req)
		if err != nil {
			s.fail(w, r, err)
			return
		}

		fields := logrus.Fields{"variant": v.Name, "outcome": string(res.Outcome)}
		if res.Handle != nil {
			fields["tx"] = res.Handle.Hash.Hex()
		}
		if res.TokenID != nil {
			fields["token_id"] = res.TokenID.String()
		}
		s.logger(r).WithFields(fields).Info(label + ": " + string(res.Outcome))
		writeJSON(w, http.StatusOK, newTxResponse(res))
	}
}

// mintPrice prices a creation without submitting it.
func (s *server) mintPrice(v *orchestrator.Variant) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if preflight(w, r) {
			return
		}
		p, err := readParams(w, r)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		req, err := s.buildRequest(v, orchestrator.KindCreate, p)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		q, err := s.orch.Quote(r.Context(), v, req)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.logger(r).WithFields(logrus.Fields{
			"variant":   v.Name,
			"gas_price": q.GasPrice.String(),
			"gas_limit": q.GasLimit,
		}).Info("MintPrice: quoted")
		writeJSON(w, http.StatusOK, priceResponse{
			Status:      true,
			MintPrice:   q.Cost(),
			GasPrice:    q.GasPrice,
			GasEstimate: q.RawGas,
			GasLimit:    q.GasLimit,
		})
	}
}

func (s *server) mintStatus(v *orchestrator.Variant) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if preflight(w, r) {
			return
		}
		p, err := readParams(w, r)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		hash, err := p.hash("tx", "transactionHash")
		if err != nil {
			s.fail(w, r, err)
			return
		}
		st, err := s.orch.Status(r.Context(), v, hash)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		resp := mintStatusResponse{State: st.State, Receipt: st.Receipt}
		if st.Receipt != nil {
			resp.Status = ledger.Succeeded(st.Receipt)
		}
		if st.TokenID != nil {
			resp.TokenID = st.TokenID.String()
			s.logger(r).WithFields(logrus.Fields{"tx": hash.Hex(), "token_id": resp.TokenID}).Debug("MintStatus: confirmed")
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *server) tokenIDByContentHash(v *orchestrator.Variant) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if preflight(w, r) {
			return
		}
		p, err := readParams(w, r)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		collection, err := s.collectionParam(p)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		fp, err := p.fingerprint("contentHash", "fingerprint")
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if fp == nil {
			s.fail(w, r, invalid(errRequired("contentHash")))
			return
		}
		id, err := s.orch.TokenIDByFingerprint(r.Context(), v, collection, *fp)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"status": true, "tokenId": id.String()})
	}
}
