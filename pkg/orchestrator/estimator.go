package orchestrator

import (
	"context"
	"math"
	"math/big"
	"math/bits"

	"github.com/pixiechain/mediagate/pkg/ledger"
)

// Gas limits are padded to 110% of the node's estimate.
const (
	gasMarginNumerator   = 110
	gasMarginDenominator = 100
)

// PadGas returns floor(raw*110/100), saturating at the uint64 maximum.
func PadGas(raw uint64) uint64 {
	hi, lo := bits.Mul64(raw, gasMarginNumerator)
	if hi >= gasMarginDenominator {
		return math.MaxUint64
	}
	q, _ := bits.Div64(hi, lo, gasMarginDenominator)
	return q
}

// Quote is the pricing used for one submission.
type Quote struct {
	GasPrice *big.Int
	RawGas   uint64
	GasLimit uint64
}

// Cost is the most the submission can spend on gas.
func (q *Quote) Cost() *big.Int {
	return new(big.Int).Mul(q.GasPrice, new(big.Int).SetUint64(q.GasLimit))
}

func (o *Orchestrator) estimate(ctx context.Context, call *ledger.Call) (*Quote, error) {
	price, err := o.client.GasPrice(ctx)
	if err != nil {
		return nil, opErr(PhaseEstimate, err)
	}
	raw, err := o.client.EstimateGas(ctx, call)
	if err != nil {
		return nil, opErr(PhaseEstimate, err)
	}
	return &Quote{GasPrice: price, RawGas: raw, GasLimit: PadGas(raw)}, nil
}
