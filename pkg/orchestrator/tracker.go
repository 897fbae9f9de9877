package orchestrator

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"

	"github.com/pixiechain/mediagate/pkg/journal"
	"github.com/pixiechain/mediagate/pkg/ledger"
)

// Recorder persists tracked outcomes. *journal.Journal implements it.
type Recorder interface {
	Record(o journal.Outcome) error
}

// Job is a submitted transaction handed to the tracker.
type Job struct {
	Hash       common.Hash
	Variant    *Variant
	Kind       Kind
	Collection common.Address
	// TokenID and Quantity are what the request attempted; they are only
	// used to describe failures.
	TokenID     *big.Int
	Quantity    *big.Int
	SubmittedAt time.Time
}

type TrackerConfig struct {
	Workers   int
	QueueSize int
	// WaitTimeout bounds each confirmation wait. Zero waits until Close.
	WaitTimeout time.Duration
}

// Tracker waits for submitted transactions on a pool of workers and logs
// how each one ended. Results never flow back to the submitting request.
type Tracker struct {
	client   ledger.Client
	recorder Recorder
	metrics  *Metrics
	log      logrus.FieldLogger
	cfg      TrackerConfig

	jobs   chan Job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewTracker(client ledger.Client, recorder Recorder, metrics *Metrics, log logrus.FieldLogger, cfg TrackerConfig) *Tracker {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	t := &Tracker{
		client:   client,
		recorder: recorder,
		metrics:  metrics,
		log:      log,
		cfg:      cfg,
		jobs:     make(chan Job, cfg.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
	}
	for i := 0; i < cfg.Workers; i++ {
		t.wg.Add(1)
		go t.worker()
	}
	return t
}

// Track queues job. When the queue is full the job gets its own goroutine
// rather than blocking the caller.
func (t *Tracker) Track(job Job) {
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		t.Observe(job, nil, errors.New("tracker closed"))
		return
	}
	select {
	case t.jobs <- job:
		t.metrics.QueueDepth.Set(float64(len(t.jobs)))
	default:
		t.log.WithField("tx", job.Hash.Hex()).Warn("Tracker: queue full, tracking detached")
		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			t.wait(job)
		}()
	}
}

// Close stops accepting jobs and waits for queued ones. When ctx ends first,
// outstanding waits are cancelled and their jobs logged as abandoned.
func (t *Tracker) Close(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	close(t.jobs)
	t.mu.Unlock()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		t.cancel()
		return nil
	case <-ctx.Done():
		t.cancel()
		<-done
		return ctx.Err()
	}
}

func (t *Tracker) worker() {
	defer t.wg.Done()
	for job := range t.jobs {
		t.metrics.QueueDepth.Set(float64(len(t.jobs)))
		t.wait(job)
	}
}

func (t *Tracker) wait(job Job) {
	ctx := t.ctx
	if t.cfg.WaitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.WaitTimeout)
		defer cancel()
	}
	receipt, err := t.client.WaitMined(ctx, job.Hash)
	t.Observe(job, receipt, err)
}

// Observe logs and records the end of job. A non-nil waitErr means no
// receipt was obtained.
func (t *Tracker) Observe(job Job, receipt *types.Receipt, waitErr error) journal.Outcome {
	variant := ""
	if job.Variant != nil {
		variant = job.Variant.Name
	}
	out := journal.Outcome{
		Tx:         job.Hash.Hex(),
		Variant:    variant,
		Kind:       string(job.Kind),
		RecordedAt: time.Now().UTC(),
	}
	if job.Collection != (common.Address{}) {
		out.Collection = job.Collection.Hex()
	}
	if job.Quantity != nil {
		out.Quantity = job.Quantity.String()
	}
	fields := logrus.Fields{
		"tx":         out.Tx,
		"variant":    variant,
		"kind":       out.Kind,
		"collection": out.Collection,
	}

	switch {
	case waitErr != nil:
		out.State = journal.StateAbandoned
		out.Error = waitErr.Error()
		out.TokenID = bigString(job.TokenID)
		fields["token_id"] = out.TokenID
		fields["quantity"] = out.Quantity
		t.log.WithFields(fields).WithError(waitErr).Warn("Tracker: stopped waiting for confirmation")
	case ledger.Succeeded(receipt):
		out.State = journal.StateConfirmed
		out.BlockNumber = blockNumber(receipt)
		if job.Kind == KindCreate && job.Variant != nil {
			if id, err := job.Variant.TokenID(receipt); err == nil {
				out.TokenID = id.String()
			}
		} else {
			out.TokenID = bigString(job.TokenID)
		}
		fields["token_id"] = out.TokenID
		fields["block"] = out.BlockNumber
		t.log.WithFields(fields).Info("Tracker: confirmed")
	default:
		out.State = journal.StateFailed
		out.Error = "transaction reverted"
		out.BlockNumber = blockNumber(receipt)
		out.TokenID = bigString(job.TokenID)
		fields["token_id"] = out.TokenID
		fields["quantity"] = out.Quantity
		fields["block"] = out.BlockNumber
		t.log.WithFields(fields).Error("Tracker: transaction reverted")
	}

	t.metrics.Outcomes.WithLabelValues(variant, out.Kind, string(out.State)).Inc()
	if t.recorder != nil {
		if err := t.recorder.Record(out); err != nil {
			t.log.WithFields(fields).WithError(err).Warn("Tracker: journal write failed")
		}
	}
	return out
}

func bigString(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}

func blockNumber(r *types.Receipt) uint64 {
	if r == nil || r.BlockNumber == nil {
		return 0
	}
	return r.BlockNumber.Uint64()
}
