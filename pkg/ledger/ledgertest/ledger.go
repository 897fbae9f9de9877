// Package ledgertest provides an in-memory ledger that executes the media
// collection ABIs well enough to exercise the orchestration layer end to end.
//
// Transactions stay pending until Mine is called (or AutoMine is set), so
// tests control exactly when confirmations happen.
package ledgertest

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/pixiechain/mediagate/pkg/ledger"
)

const (
	// CallGas is charged for every contract invocation.
	CallGas uint64 = 100_000
	// TransferGas is the intrinsic cost of a plain value transfer.
	TransferGas uint64 = 21_000
)

type pendingTx struct {
	hash     common.Hash
	from     common.Address
	call     *ledger.Call
	gasLimit uint64
}

// Ledger is a deterministic single-node chain. The zero value is not usable;
// construct with New.
type Ledger struct {
	mu          sync.Mutex
	gasPrice    *big.Int
	block       uint64
	nonces      map[common.Address]uint64
	balances    map[common.Address]*big.Int
	collections map[common.Address]*collection
	deployed    uint64
	pending     []*pendingTx
	txs         map[common.Hash]*pendingTx
	receipts    map[common.Hash]*types.Receipt
	mined       chan struct{}
	autoMine    bool

	mismatchNext bool
	failNext     error

	sends     atomic.Int64
	estimates atomic.Int64
	calls     atomic.Int64
}

var _ ledger.Client = (*Ledger)(nil)

func New() *Ledger {
	return &Ledger{
		gasPrice:    big.NewInt(1_000_000_000),
		nonces:      make(map[common.Address]uint64),
		balances:    make(map[common.Address]*big.Int),
		collections: make(map[common.Address]*collection),
		txs:         make(map[common.Hash]*pendingTx),
		receipts:    make(map[common.Hash]*types.Receipt),
		mined:       make(chan struct{}),
	}
}

// SetGasPrice changes the unit price quoted from now on.
func (l *Ledger) SetGasPrice(p *big.Int) {
	l.mu.Lock()
	l.gasPrice = new(big.Int).Set(p)
	l.mu.Unlock()
}

// SetAutoMine mines every transaction as soon as it is accepted.
func (l *Ledger) SetAutoMine(on bool) {
	l.mu.Lock()
	l.autoMine = on
	l.mu.Unlock()
}

// Fund credits wei to account.
func (l *Ledger) Fund(account common.Address, wei *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balanceOf(account).Add(l.balanceOf(account), wei)
}

// InjectHashMismatch makes the next Send land under a hash different from
// the one the sender computed, and report it as a HashMismatchError.
func (l *Ledger) InjectHashMismatch() {
	l.mu.Lock()
	l.mismatchNext = true
	l.mu.Unlock()
}

// FailNextSend makes the next Send fail with err without reaching the pool.
func (l *Ledger) FailNextSend(err error) {
	l.mu.Lock()
	l.failNext = err
	l.mu.Unlock()
}

func (l *Ledger) Sends() int     { return int(l.sends.Load()) }
func (l *Ledger) Estimates() int { return int(l.estimates.Load()) }
func (l *Ledger) Calls() int     { return int(l.calls.Load()) }

func (l *Ledger) PendingCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

func (l *Ledger) GasPrice(ctx context.Context) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.gasPrice), nil
}

func (l *Ledger) EstimateGas(ctx context.Context, call *ledger.Call) (uint64, error) {
	l.estimates.Add(1)
	l.mu.Lock()
	defer l.mu.Unlock()
	var from common.Address
	if call.From != nil {
		from = call.From.Address
	}
	if _, _, err := l.exec(from, call, false); err != nil {
		return 0, err
	}
	return l.gasCost(call), nil
}

func (l *Ledger) Send(ctx context.Context, call *ledger.Call, gasPrice *big.Int, gasLimit uint64) (*ledger.Handle, error) {
	if call.From == nil {
		return nil, errors.New("send: call has no signer")
	}
	l.mu.Lock()
	if err := l.failNext; err != nil {
		l.failNext = nil
		l.mu.Unlock()
		return nil, err
	}
	from := call.From.Address
	nonce := l.nonces[from]
	l.nonces[from] = nonce + 1
	l.sends.Add(1)

	expected := txHash(from, nonce, call)
	hash := expected
	mismatch := l.mismatchNext
	if mismatch {
		l.mismatchNext = false
		hash = crypto.Keccak256Hash([]byte("relayed"), expected.Bytes())
	}
	tx := &pendingTx{hash: hash, from: from, call: call, gasLimit: gasLimit}
	l.pending = append(l.pending, tx)
	l.txs[hash] = tx
	if l.autoMine {
		l.mineLocked()
	}
	l.mu.Unlock()

	if mismatch {
		return nil, &ledger.HashMismatchError{Expected: expected, Returned: hash}
	}
	return &ledger.Handle{
		Hash:     hash,
		From:     from,
		To:       call.To,
		Nonce:    nonce,
		GasPrice: gasPrice,
		GasLimit: gasLimit,
		Accepted: true,
	}, nil
}

// Mine executes every pending transaction in submission order, one block
// each, and returns their receipts.
func (l *Ledger) Mine() []*types.Receipt {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mineLocked()
}

func (l *Ledger) mineLocked() []*types.Receipt {
	if len(l.pending) == 0 {
		return nil
	}
	out := make([]*types.Receipt, 0, len(l.pending))
	for _, tx := range l.pending {
		l.block++
		r := &types.Receipt{
			Type:        types.LegacyTxType,
			TxHash:      tx.hash,
			BlockNumber: new(big.Int).SetUint64(l.block),
			BlockHash:   blockHash(l.block),
			Logs:        []*types.Log{},
		}
		cost := l.gasCost(tx.call)
		if tx.gasLimit < cost {
			r.Status = types.ReceiptStatusFailed
			r.GasUsed = tx.gasLimit
		} else if _, logs, err := l.exec(tx.from, tx.call, true); err != nil {
			r.Status = types.ReceiptStatusFailed
			r.GasUsed = cost
		} else {
			r.Status = types.ReceiptStatusSuccessful
			r.GasUsed = cost
			for i, lg := range logs {
				lg.TxHash = tx.hash
				lg.BlockNumber = l.block
				lg.BlockHash = r.BlockHash
				lg.Index = uint(i)
			}
			r.Logs = logs
		}
		r.CumulativeGasUsed = r.GasUsed
		l.receipts[tx.hash] = r
		out = append(out, r)
	}
	l.pending = nil
	close(l.mined)
	l.mined = make(chan struct{})
	return out
}

func (l *Ledger) WaitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	for {
		l.mu.Lock()
		r, ok := l.receipts[hash]
		ch := l.mined
		l.mu.Unlock()
		if ok {
			return r, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ch:
		}
	}
}

func (l *Ledger) Receipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if r, ok := l.receipts[hash]; ok {
		return r, nil
	}
	if _, ok := l.txs[hash]; ok {
		return nil, ledger.ErrPending
	}
	return nil, ledger.ErrTxNotFound
}

func (l *Ledger) CallContract(ctx context.Context, call *ledger.Call) ([]byte, error) {
	l.calls.Add(1)
	l.mu.Lock()
	defer l.mu.Unlock()
	var from common.Address
	if call.From != nil {
		from = call.From.Address
	}
	out, _, err := l.exec(from, call, false)
	return out, err
}

func (l *Ledger) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.balanceOf(account)), nil
}

func (l *Ledger) TransactionData(ctx context.Context, hash common.Hash) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	tx, ok := l.txs[hash]
	if !ok {
		return nil, ledger.ErrTxNotFound
	}
	return append([]byte(nil), tx.call.Data...), nil
}

func (l *Ledger) gasCost(call *ledger.Call) uint64 {
	if _, ok := l.collections[call.To]; ok {
		return CallGas
	}
	return TransferGas + 16*uint64(len(call.Data))
}

func (l *Ledger) balanceOf(account common.Address) *big.Int {
	b, ok := l.balances[account]
	if !ok {
		b = new(big.Int)
		l.balances[account] = b
	}
	return b
}

// exec runs call against current state. Nothing is mutated unless commit is
// set.
func (l *Ledger) exec(from common.Address, call *ledger.Call, commit bool) ([]byte, []*types.Log, error) {
	c, ok := l.collections[call.To]
	if !ok {
		return nil, nil, l.transferValue(from, call, commit)
	}
	if call.Value != nil && call.Value.Sign() > 0 {
		return nil, nil, revert("collection does not accept value")
	}
	return c.exec(from, call.Data, commit)
}

func (l *Ledger) transferValue(from common.Address, call *ledger.Call, commit bool) error {
	if call.Value == nil || call.Value.Sign() == 0 {
		return nil
	}
	if l.balanceOf(from).Cmp(call.Value) < 0 {
		return errors.New("insufficient funds for gas * price + value")
	}
	if commit {
		l.balanceOf(from).Sub(l.balanceOf(from), call.Value)
		l.balanceOf(call.To).Add(l.balanceOf(call.To), call.Value)
	}
	return nil
}

func txHash(from common.Address, nonce uint64, call *ledger.Call) common.Hash {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], nonce)
	value := []byte{}
	if call.Value != nil {
		value = call.Value.Bytes()
	}
	return crypto.Keccak256Hash(from.Bytes(), n[:], call.To.Bytes(), value, call.Data)
}

func blockHash(n uint64) common.Hash {
	return crypto.Keccak256Hash([]byte(fmt.Sprintf("block-%d", n)))
}
