package orchestrator

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/pixiechain/mediagate/pkg/ledger"
)

// recoverMismatch waits for the transaction the network actually accepted and
// answers with its receipt. The wait happens on the request path.
func (o *Orchestrator) recoverMismatch(ctx context.Context, v *Variant, r *Request, call *ledger.Call, quote *Quote, mm *ledger.HashMismatchError) (*Result, error) {
	o.metrics.Recoveries.WithLabelValues(v.Name).Inc()
	log := o.log.WithFields(logrus.Fields{
		"variant":       v.Name,
		"kind":          string(r.Kind),
		"expected_hash": mm.Expected.Hex(),
		"returned_hash": mm.Returned.Hex(),
	})
	log.Warn("Submit: hash mismatch, waiting on network hash")

	wctx := ctx
	if o.cfg.RecoveryTimeout > 0 {
		var cancel context.CancelFunc
		wctx, cancel = context.WithTimeout(ctx, o.cfg.RecoveryTimeout)
		defer cancel()
	}
	receipt, err := o.client.WaitMined(wctx, mm.Returned)
	if err != nil {
		log.WithError(err).Error("Submit: recovery wait failed")
		return nil, opErr(PhaseRecover, fmt.Errorf("waiting for %s: %w", mm.Returned.Hex(), err))
	}

	handle := &ledger.Handle{
		Hash:     mm.Returned,
		From:     call.From.Address,
		To:       call.To,
		GasPrice: quote.GasPrice,
		GasLimit: quote.GasLimit,
		Accepted: true,
	}
	res := &Result{Outcome: OutcomeRecovered, Handle: handle, Quote: quote, Receipt: receipt}
	if r.Kind == KindCreate && ledger.Succeeded(receipt) {
		if id, err := v.TokenID(receipt); err == nil {
			res.TokenID = id
		}
	}
	if o.tracker != nil {
		o.tracker.Observe(o.job(v, r, handle), receipt, nil)
	}
	log.WithField("status", receipt.Status).Info("Submit: recovered")
	return res, nil
}
