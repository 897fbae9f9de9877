package orchestrator

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/pixiechain/mediagate/pkg/ledger"
)

// TokenIDByFingerprint asks the collection which token carries fp. The
// collection reverts when none does, so any failure means not found.
func (o *Orchestrator) TokenIDByFingerprint(ctx context.Context, v *Variant, collection common.Address, fp ledger.Fingerprint) (*big.Int, error) {
	if !v.Fingerprinted {
		return nil, invalidf("%s collections have no content hashes", v.Name)
	}
	out, err := ledger.NewContract(collection, v.ABI).View(ctx, o.client, "getTokenIdByContentHash", [32]byte(fp))
	if err != nil {
		return nil, opErr(PhaseLookup, err)
	}
	id, ok := out[0].(*big.Int)
	if !ok {
		return nil, opErr(PhaseLookup, fmt.Errorf("unexpected token id type %T", out[0]))
	}
	return id, nil
}

// LookupByFingerprint is the fast path of creation: a hit means the content
// is already on the ledger.
func (o *Orchestrator) LookupByFingerprint(ctx context.Context, v *Variant, r *Request) (*big.Int, bool) {
	if r.Fingerprint == nil {
		return nil, false
	}
	id, err := o.TokenIDByFingerprint(ctx, v, r.Collection, *r.Fingerprint)
	if err != nil {
		o.log.WithFields(logrus.Fields{
			"variant":      v.Name,
			"content_hash": r.Fingerprint.Hex(),
		}).WithError(err).Debug("Mint: content hash not found, minting")
		return nil, false
	}
	return id, true
}

// Read calls a view method on collection and returns its outputs.
func (o *Orchestrator) Read(ctx context.Context, v *Variant, collection common.Address, method string, args ...interface{}) ([]interface{}, error) {
	if _, ok := v.ABI.Methods[method]; !ok {
		return nil, invalidf("%s has no method %s", v.Name, method)
	}
	out, err := ledger.NewContract(collection, v.ABI).View(ctx, o.client, method, args...)
	if err != nil {
		return nil, opErr(PhaseRead, err)
	}
	return out, nil
}

func (o *Orchestrator) Balance(ctx context.Context, account common.Address) (*big.Int, error) {
	bal, err := o.client.BalanceAt(ctx, account)
	if err != nil {
		return nil, opErr(PhaseRead, err)
	}
	return bal, nil
}

// Memo decodes the call data of a transaction as the UTF-8 memo attached to
// a value transfer.
func (o *Orchestrator) Memo(ctx context.Context, hash common.Hash) (string, error) {
	data, err := o.client.TransactionData(ctx, hash)
	if err != nil {
		return "", opErr(PhaseRead, err)
	}
	return ledger.DecodeMemo(data), nil
}
