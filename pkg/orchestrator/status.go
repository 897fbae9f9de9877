package orchestrator

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/pixiechain/mediagate/pkg/ledger"
)

// State is what the ledger currently says about a submitted transaction.
type State string

const (
	StatePending   State = "pending"
	StateConfirmed State = "confirmed"
	StateNotFound  State = "not_found"
)

type Status struct {
	State   State
	Receipt *types.Receipt
	// TokenID is set for successful receipts carrying at least one log.
	TokenID *big.Int
}

// Status reads the receipt for hash. It has no side effects and can be
// called any number of times; pending and unknown transactions are answers,
// not errors.
func (o *Orchestrator) Status(ctx context.Context, v *Variant, hash common.Hash) (*Status, error) {
	receipt, err := o.client.Receipt(ctx, hash)
	switch {
	case errors.Is(err, ledger.ErrPending):
		return &Status{State: StatePending}, nil
	case errors.Is(err, ledger.ErrTxNotFound):
		return &Status{State: StateNotFound}, nil
	case err != nil:
		return nil, opErr(PhaseStatus, err)
	}
	st := &Status{State: StateConfirmed, Receipt: receipt}
	if ledger.Succeeded(receipt) && len(receipt.Logs) > 0 {
		if id, err := v.TokenID(receipt); err == nil {
			st.TokenID = id
		}
	}
	return st, nil
}
