// Package orchestrator turns inbound operation requests into ledger
// transactions: content-hash deduplication, padded gas estimation,
// asynchronous submission, detached receipt tracking, hash-mismatch
// recovery and receipt polling.
//
// The orchestrator holds no ledger state of its own; every fact is read back
// from the ledger client when needed.
package orchestrator

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"

	"github.com/pixiechain/mediagate/pkg/ledger"
)

// Outcome tells a caller what a successful request did.
type Outcome string

const (
	// OutcomeExisting means the content hash was already bound; nothing was
	// submitted.
	OutcomeExisting Outcome = "existing"
	// OutcomeSubmitted means a transaction is in the pool; its result must
	// be polled.
	OutcomeSubmitted Outcome = "submitted"
	// OutcomeRecovered means the node reported a different hash and the
	// request waited for that transaction to be mined.
	OutcomeRecovered Outcome = "recovered"
)

type Result struct {
	Outcome Outcome
	TokenID *big.Int
	Handle  *ledger.Handle
	Quote   *Quote
	Receipt *types.Receipt
}

type Config struct {
	// RecoveryTimeout bounds the synchronous wait of mismatch recovery on
	// top of the request's own deadline. Zero leaves only the request's.
	RecoveryTimeout time.Duration
}

type Orchestrator struct {
	client  ledger.Client
	tracker *Tracker
	metrics *Metrics
	log     logrus.FieldLogger
	cfg     Config
}

func New(client ledger.Client, tracker *Tracker, metrics *Metrics, log logrus.FieldLogger, cfg Config) *Orchestrator {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Orchestrator{client: client, tracker: tracker, metrics: metrics, log: log, cfg: cfg}
}

func (o *Orchestrator) Client() ledger.Client { return o.client }

// Create handles a creation request. A content hash already bound on the
// collection answers immediately with OutcomeExisting and no cost.
func (o *Orchestrator) Create(ctx context.Context, v *Variant, r *Request) (*Result, error) {
	if r.Kind != KindCreate {
		return nil, invalidf("expected a create request, got %s", r.Kind)
	}
	call, err := v.Build(r)
	if err != nil {
		return nil, err
	}
	if v.Fingerprinted {
		if id, ok := o.LookupByFingerprint(ctx, v, r); ok {
			o.metrics.FingerprintHits.WithLabelValues(v.Name).Inc()
			o.log.WithFields(logrus.Fields{
				"variant":      v.Name,
				"collection":   r.Collection.Hex(),
				"content_hash": r.Fingerprint.Hex(),
				"token_id":     id.String(),
			}).Info("Mint: content hash already minted")
			return &Result{Outcome: OutcomeExisting, TokenID: id}, nil
		}
	}
	return o.submit(ctx, v, r, call)
}

// Execute handles transfer, destroy, metadata update and finalize requests.
// It returns once the transaction is in the pool.
func (o *Orchestrator) Execute(ctx context.Context, v *Variant, r *Request) (*Result, error) {
	if r.Kind == KindCreate {
		return o.Create(ctx, v, r)
	}
	call, err := v.Build(r)
	if err != nil {
		return nil, err
	}
	return o.submit(ctx, v, r, call)
}

// Quote prices r without submitting it.
func (o *Orchestrator) Quote(ctx context.Context, v *Variant, r *Request) (*Quote, error) {
	call, err := v.Build(r)
	if err != nil {
		return nil, err
	}
	return o.estimate(ctx, call)
}

func (o *Orchestrator) submit(ctx context.Context, v *Variant, r *Request, call *ledger.Call) (*Result, error) {
	quote, err := o.estimate(ctx, call)
	if err != nil {
		return nil, err
	}
	log := o.log.WithFields(logrus.Fields{
		"variant":   v.Name,
		"kind":      string(r.Kind),
		"from":      call.From.Address.Hex(),
		"to":        call.To.Hex(),
		"gas_price": quote.GasPrice.String(),
		"gas_raw":   quote.RawGas,
		"gas_limit": quote.GasLimit,
	})

	handle, err := o.client.Send(ctx, call, quote.GasPrice, quote.GasLimit)
	if err != nil {
		if mm, ok := ledger.AsHashMismatch(err); ok {
			return o.recoverMismatch(ctx, v, r, call, quote, mm)
		}
		log.WithError(err).Warn("Submit: send failed")
		return nil, opErr(PhaseSubmit, err)
	}
	o.metrics.Submissions.WithLabelValues(v.Name, string(r.Kind)).Inc()
	log.WithField("tx", handle.Hash.Hex()).Info("Submit: accepted")

	if o.tracker != nil {
		o.tracker.Track(o.job(v, r, handle))
	}
	return &Result{Outcome: OutcomeSubmitted, Handle: handle, Quote: quote}, nil
}

func (o *Orchestrator) job(v *Variant, r *Request, h *ledger.Handle) Job {
	return Job{
		Hash:        h.Hash,
		Variant:     v,
		Kind:        r.Kind,
		Collection:  r.Collection,
		TokenID:     r.TokenID,
		Quantity:    r.Quantity,
		SubmittedAt: time.Now(),
	}
}
