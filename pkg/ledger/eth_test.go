package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/require"
)

// fakeNode serves the handful of eth_ methods the client relies on.
type fakeNode struct {
	mu       sync.Mutex
	chainID  *big.Int
	nonces   map[common.Address]uint64
	txs      map[common.Hash]*types.Transaction
	receipts map[common.Hash]*types.Receipt

	// rewrite, when set, replaces the hash the node reports back.
	rewrite func(common.Hash) common.Hash
	// sendErr, when set, is returned verbatim from eth_sendRawTransaction.
	sendErr string
}

func newFakeNode() *fakeNode {
	return &fakeNode{
		chainID:  big.NewInt(6626),
		nonces:   make(map[common.Address]uint64),
		txs:      make(map[common.Hash]*types.Transaction),
		receipts: make(map[common.Hash]*types.Receipt),
	}
}

func (n *fakeNode) ChainId() *hexutil.Big { return (*hexutil.Big)(n.chainID) }

func (n *fakeNode) GasPrice() *hexutil.Big { return (*hexutil.Big)(big.NewInt(7)) }

func (n *fakeNode) GetTransactionCount(addr common.Address, block string) hexutil.Uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return hexutil.Uint64(n.nonces[addr])
}

func (n *fakeNode) SendRawTransaction(raw hexutil.Bytes) (common.Hash, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sendErr != "" {
		return common.Hash{}, errors.New(n.sendErr)
	}
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return common.Hash{}, err
	}
	from, err := types.Sender(types.LatestSignerForChainID(n.chainID), tx)
	if err != nil {
		return common.Hash{}, err
	}
	n.nonces[from]++
	hash := tx.Hash()
	if n.rewrite != nil {
		hash = n.rewrite(hash)
	}
	n.txs[hash] = tx
	return hash, nil
}

func (n *fakeNode) GetTransactionReceipt(hash common.Hash) *types.Receipt {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.receipts[hash]
}

func (n *fakeNode) GetTransactionByHash(hash common.Hash) *types.Transaction {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.txs[hash]
}

func (n *fakeNode) mine(hash common.Hash) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.receipts[hash] = &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      hash,
		GasUsed:     21000,
		Logs:        []*types.Log{},
		BlockNumber: big.NewInt(1),
	}
}

func dialFake(t *testing.T, node *fakeNode) *EthClient {
	t.Helper()
	srv := rpc.NewServer()
	require.NoError(t, srv.RegisterName("eth", node))
	rc := rpc.DialInProc(srv)
	t.Cleanup(func() {
		rc.Close()
		srv.Stop()
	})
	c, err := NewEthClient(context.Background(), rc, nil, 10*time.Millisecond)
	require.NoError(t, err)
	return c
}

func testSigner(t *testing.T) *Signer {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return NewSigner(key)
}

func TestEthClientSend(t *testing.T) {
	node := newFakeNode()
	c := dialFake(t, node)
	require.Equal(t, int64(6626), c.ChainID().Int64())

	price, err := c.GasPrice(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(7), price.Int64())

	s := testSigner(t)
	to := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	h, err := c.Send(context.Background(), &Call{From: s, To: to, Data: []byte{1, 2}}, price, 50000)
	require.NoError(t, err)
	require.True(t, h.Accepted)
	require.Equal(t, uint64(0), h.Nonce)
	require.Equal(t, uint64(50000), h.GasLimit)
	require.Equal(t, s.Address, h.From)

	h2, err := c.Send(context.Background(), &Call{From: s, To: to}, price, 21000)
	require.NoError(t, err)
	require.Equal(t, uint64(1), h2.Nonce)

	data, err := c.TransactionData(context.Background(), h.Hash)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2}, data)
}

func TestEthClientSendDetectsHashMismatch(t *testing.T) {
	node := newFakeNode()
	other := common.HexToHash("0xfeed")
	node.rewrite = func(common.Hash) common.Hash { return other }
	c := dialFake(t, node)

	_, err := c.Send(context.Background(), &Call{From: testSigner(t), To: common.Address{1}}, big.NewInt(1), 21000)
	mm, ok := AsHashMismatch(err)
	require.True(t, ok, "got %v", err)
	require.Equal(t, other, mm.Returned)
	require.NotEqual(t, common.Hash{}, mm.Expected)
}

func TestEthClientSendParsesMismatchText(t *testing.T) {
	node := newFakeNode()
	returned := common.HexToHash("0xbeef")
	node.sendErr = fmt.Sprintf(`Transaction hash mismatch from Provider.sendTransaction. returnedHash="%s"`, returned.Hex())
	c := dialFake(t, node)

	_, err := c.Send(context.Background(), &Call{From: testSigner(t), To: common.Address{1}}, big.NewInt(1), 21000)
	var mm *HashMismatchError
	require.ErrorAs(t, err, &mm)
	require.Equal(t, returned, mm.Returned)
	// The locally signed hash fills in the missing half.
	require.NotEqual(t, common.Hash{}, mm.Expected)
}

func TestEthClientSendOtherErrorIsOpaque(t *testing.T) {
	node := newFakeNode()
	node.sendErr = "insufficient funds for gas * price + value"
	c := dialFake(t, node)

	_, err := c.Send(context.Background(), &Call{From: testSigner(t), To: common.Address{1}}, big.NewInt(1), 21000)
	require.Error(t, err)
	_, ok := AsHashMismatch(err)
	require.False(t, ok)
	require.Contains(t, err.Error(), "insufficient funds")
}

func TestEthClientReceiptStates(t *testing.T) {
	node := newFakeNode()
	c := dialFake(t, node)
	ctx := context.Background()

	_, err := c.Receipt(ctx, common.HexToHash("0x01"))
	require.ErrorIs(t, err, ErrTxNotFound)

	h, err := c.Send(ctx, &Call{From: testSigner(t), To: common.Address{1}}, big.NewInt(1), 21000)
	require.NoError(t, err)
	_, err = c.Receipt(ctx, h.Hash)
	require.ErrorIs(t, err, ErrPending)

	node.mine(h.Hash)
	r, err := c.Receipt(ctx, h.Hash)
	require.NoError(t, err)
	require.Equal(t, h.Hash, r.TxHash)

	waited, err := c.WaitMined(ctx, h.Hash)
	require.NoError(t, err)
	require.Equal(t, r.TxHash, waited.TxHash)
}

func TestEthClientWaitMinedHonoursContext(t *testing.T) {
	c := dialFake(t, newFakeNode())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.WaitMined(ctx, common.HexToHash("0x02"))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
