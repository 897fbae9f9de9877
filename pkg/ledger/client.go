// Package ledger is the narrow view of the EVM ledger that the orchestration
// layer consumes: gas pricing and estimation, raw transaction submission,
// confirmation waits, receipts and read-only contract calls.
package ledger

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Call is a contract invocation or plain value transfer. From is nil for
// read-only calls.
type Call struct {
	From  *Signer
	To    common.Address
	Value *big.Int
	Data  []byte
}

// Handle is returned as soon as the node accepted a transaction into its
// pool. It never carries the outcome of the transaction.
type Handle struct {
	Hash     common.Hash    `json:"transactionHash"`
	From     common.Address `json:"from"`
	To       common.Address `json:"to"`
	Nonce    uint64         `json:"nonce"`
	GasPrice *big.Int       `json:"gasPrice"`
	GasLimit uint64         `json:"gasLimit"`
	Accepted bool           `json:"accepted"`
}

// Client is the capability set of the ledger used by this service.
//
// Receipt returns ErrPending when the transaction is known but not yet
// mined and ErrTxNotFound when the node has never seen it. Send returns a
// *HashMismatchError when the node reports a different transaction hash
// than the one computed locally.
type Client interface {
	GasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call *Call) (uint64, error)
	Send(ctx context.Context, call *Call, gasPrice *big.Int, gasLimit uint64) (*Handle, error)
	WaitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	Receipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	CallContract(ctx context.Context, call *Call) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)
	TransactionData(ctx context.Context, hash common.Hash) ([]byte, error)
}
