package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// EthClient implements Client against a JSON-RPC node.
type EthClient struct {
	rc           *rpc.Client
	ec           *ethclient.Client
	chainID      *big.Int
	signer       types.Signer
	pollInterval time.Duration
}

// Dial connects to the node at url. A nil chainID is read from the node.
func Dial(ctx context.Context, url string, chainID *big.Int, pollInterval time.Duration) (*EthClient, error) {
	rc, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	c, err := NewEthClient(ctx, rc, chainID, pollInterval)
	if err != nil {
		rc.Close()
		return nil, err
	}
	return c, nil
}

func NewEthClient(ctx context.Context, rc *rpc.Client, chainID *big.Int, pollInterval time.Duration) (*EthClient, error) {
	ec := ethclient.NewClient(rc)
	if chainID == nil || chainID.Sign() == 0 {
		id, err := ec.ChainID(ctx)
		if err != nil {
			return nil, fmt.Errorf("read chain id: %w", err)
		}
		chainID = id
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &EthClient{
		rc:           rc,
		ec:           ec,
		chainID:      chainID,
		signer:       types.LatestSignerForChainID(chainID),
		pollInterval: pollInterval,
	}, nil
}

func (c *EthClient) ChainID() *big.Int { return new(big.Int).Set(c.chainID) }

func (c *EthClient) Close() { c.rc.Close() }

func (c *EthClient) GasPrice(ctx context.Context) (*big.Int, error) {
	return c.ec.SuggestGasPrice(ctx)
}

func (c *EthClient) EstimateGas(ctx context.Context, call *Call) (uint64, error) {
	return c.ec.EstimateGas(ctx, callMsg(call))
}

func (c *EthClient) Send(ctx context.Context, call *Call, gasPrice *big.Int, gasLimit uint64) (*Handle, error) {
	if call.From == nil {
		return nil, errors.New("send: call has no signer")
	}
	nonce, err := c.ec.PendingNonceAt(ctx, call.From.Address)
	if err != nil {
		return nil, fmt.Errorf("read nonce: %w", err)
	}
	value := call.Value
	if value == nil {
		value = new(big.Int)
	}
	to := call.To
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gasLimit,
		To:       &to,
		Value:    value,
		Data:     call.Data,
	})
	signed, err := types.SignTx(tx, c.signer, call.From.Key())
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return nil, err
	}

	var returned common.Hash
	if err := c.rc.CallContext(ctx, &returned, "eth_sendRawTransaction", hexutil.Encode(raw)); err != nil {
		if mm, ok := ParseHashMismatch(err.Error()); ok {
			if mm.Expected == (common.Hash{}) {
				mm.Expected = signed.Hash()
			}
			return nil, mm
		}
		return nil, err
	}
	if returned != signed.Hash() {
		return nil, &HashMismatchError{Expected: signed.Hash(), Returned: returned}
	}
	return &Handle{
		Hash:     returned,
		From:     call.From.Address,
		To:       to,
		Nonce:    nonce,
		GasPrice: gasPrice,
		GasLimit: gasLimit,
		Accepted: true,
	}, nil
}

// WaitMined polls until the transaction has a receipt or ctx is done.
func (c *EthClient) WaitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		r, err := c.ec.TransactionReceipt(ctx, hash)
		if err == nil {
			return r, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *EthClient) Receipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	r, err := c.ec.TransactionReceipt(ctx, hash)
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, ethereum.NotFound) {
		return nil, err
	}
	if _, _, err := c.ec.TransactionByHash(ctx, hash); err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, ErrTxNotFound
		}
		return nil, err
	}
	return nil, ErrPending
}

func (c *EthClient) CallContract(ctx context.Context, call *Call) ([]byte, error) {
	return c.ec.CallContract(ctx, callMsg(call), nil)
}

func (c *EthClient) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	return c.ec.BalanceAt(ctx, account, nil)
}

func (c *EthClient) TransactionData(ctx context.Context, hash common.Hash) ([]byte, error) {
	tx, _, err := c.ec.TransactionByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, ErrTxNotFound
		}
		return nil, err
	}
	return tx.Data(), nil
}

func callMsg(call *Call) ethereum.CallMsg {
	to := call.To
	msg := ethereum.CallMsg{To: &to, Value: call.Value, Data: call.Data}
	if call.From != nil {
		msg.From = call.From.Address
	}
	return msg
}
