package ledgertest

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/pixiechain/mediagate/pkg/ledger"
)

func (c *collection) exec1155(from common.Address, name string, args []interface{}, commit bool) ([]interface{}, []*types.Log, error) {
	switch name {
	case "mintForCreator":
		creator, id, hash, amount := args[0].(common.Address), args[1].(*big.Int), args[2].([32]byte), args[3].(*big.Int)
		if c.finalized {
			return nil, nil, revert("Media1155: collection is finalized")
		}
		if creator == (common.Address{}) {
			return nil, nil, revert("ERC1155: mint to the zero address")
		}
		if amount.Sign() <= 0 {
			return nil, nil, revert("Media1155: amount must be positive")
		}
		if _, ok := c.creators[id.String()]; ok {
			return nil, nil, revert("Media1155: token already minted")
		}
		if _, ok := c.byHash[hash]; ok {
			return nil, nil, revert("Media1155: a token has already been created with this content hash")
		}
		if !commit {
			return nil, nil, nil
		}
		key := id.String()
		c.creators[key] = creator
		c.hashes[key] = hash
		c.byHash[hash] = new(big.Int).Set(id)
		c.holdings(key)[creator] = new(big.Int).Set(amount)
		return nil, []*types.Log{c.transferSingleLog(from, common.Address{}, creator, id, amount)}, nil
	case "getTokenIdByContentHash":
		id, ok := c.byHash[args[0].([32]byte)]
		if !ok {
			return nil, nil, revert("Media1155: no token for content hash")
		}
		return []interface{}{new(big.Int).Set(id)}, nil, nil
	case "safeTransferFrom":
		src, dst, id, amount := args[0].(common.Address), args[1].(common.Address), args[2].(*big.Int), args[3].(*big.Int)
		if from != src && from != c.admin {
			return nil, nil, revert("ERC1155: caller is not token owner or approved")
		}
		if dst == (common.Address{}) {
			return nil, nil, revert("ERC1155: transfer to the zero address")
		}
		bal := c.balance(id.String(), src)
		if bal.Cmp(amount) < 0 {
			return nil, nil, revert("ERC1155: insufficient balance for transfer")
		}
		if !commit {
			return nil, nil, nil
		}
		h := c.holdings(id.String())
		h[src] = new(big.Int).Sub(bal, amount)
		h[dst] = new(big.Int).Add(c.balance(id.String(), dst), amount)
		return nil, []*types.Log{c.transferSingleLog(from, src, dst, id, amount)}, nil
	case "burn":
		account, id, value := args[0].(common.Address), args[1].(*big.Int), args[2].(*big.Int)
		if from != account && from != c.admin {
			return nil, nil, revert("ERC1155: caller is not token owner or approved")
		}
		bal := c.balance(id.String(), account)
		if bal.Cmp(value) < 0 {
			return nil, nil, revert("ERC1155: burn amount exceeds balance")
		}
		if !commit {
			return nil, nil, nil
		}
		c.holdings(id.String())[account] = new(big.Int).Sub(bal, value)
		return nil, []*types.Log{c.transferSingleLog(from, account, common.Address{}, id, value)}, nil
	case "setURI":
		if from != c.admin {
			return nil, nil, revert("Ownable: caller is not the owner")
		}
		if commit {
			c.baseURI = args[0].(string)
		}
		return nil, nil, nil
	case "creatorOf":
		creator, ok := c.creators[args[0].(*big.Int).String()]
		if !ok {
			return nil, nil, revert("Media1155: nonexistent token")
		}
		return []interface{}{creator}, nil, nil
	case "uri":
		return []interface{}{c.baseURI}, nil, nil
	case "tokenContentHashes":
		h, ok := c.hashes[args[0].(*big.Int).String()]
		if !ok {
			return nil, nil, revert("Media1155: nonexistent token")
		}
		return []interface{}{h}, nil, nil
	case "balanceOf":
		return []interface{}{c.balance(args[1].(*big.Int).String(), args[0].(common.Address))}, nil, nil
	case "name":
		return []interface{}{c.name}, nil, nil
	case "symbol":
		return []interface{}{c.symbol}, nil, nil
	case "totalSupply":
		return []interface{}{big.NewInt(int64(len(c.creators)))}, nil, nil
	}
	return nil, nil, revert("function " + name + " is not implemented")
}

func (c *collection) holdings(key string) map[common.Address]*big.Int {
	h, ok := c.supply[key]
	if !ok {
		h = make(map[common.Address]*big.Int)
		c.supply[key] = h
	}
	return h
}

func (c *collection) balance(key string, account common.Address) *big.Int {
	if b, ok := c.supply[key][account]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

func (c *collection) transferSingleLog(operator, from, to common.Address, id, value *big.Int) *types.Log {
	data, _ := ledger.Media1155ABI.Events["TransferSingle"].Inputs.NonIndexed().Pack(id, value)
	return &types.Log{
		Address: c.address,
		Topics: []common.Hash{
			ledger.TransferSingleTopic,
			common.BytesToHash(operator.Bytes()),
			common.BytesToHash(from.Bytes()),
			common.BytesToHash(to.Bytes()),
		},
		Data: data,
	}
}
