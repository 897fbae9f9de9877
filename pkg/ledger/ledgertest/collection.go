package ledgertest

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/pixiechain/mediagate/pkg/ledger"
)

// Kind selects which collection ABI a deployed contract speaks.
type Kind int

const (
	Media Kind = iota
	Media1155
	MediaA
)

func (k Kind) abi() *abi.ABI {
	switch k {
	case Media1155:
		return ledger.Media1155ABI
	case MediaA:
		return ledger.MediaAABI
	default:
		return ledger.MediaABI
	}
}

type collection struct {
	kind      Kind
	address   common.Address
	admin     common.Address
	name      string
	symbol    string
	baseURI   string
	finalized bool
	nextID    int64

	owners   map[string]common.Address
	creators map[string]common.Address
	uris     map[string]string
	hashes   map[string][32]byte
	byHash   map[[32]byte]*big.Int
	supply   map[string]map[common.Address]*big.Int
}

// Deploy registers a new collection administered by admin and returns its
// address.
func (l *Ledger) Deploy(kind Kind, admin common.Address, name, symbol string) common.Address {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.deployed++
	addr := crypto.CreateAddress(common.BytesToAddress([]byte("ledgertest")), l.deployed)
	l.collections[addr] = &collection{
		kind:     kind,
		address:  addr,
		admin:    admin,
		name:     name,
		symbol:   symbol,
		owners:   make(map[string]common.Address),
		creators: make(map[string]common.Address),
		uris:     make(map[string]string),
		hashes:   make(map[string][32]byte),
		byHash:   make(map[[32]byte]*big.Int),
		supply:   make(map[string]map[common.Address]*big.Int),
	}
	return addr
}

func revert(reason string) error {
	return errors.New("execution reverted: " + reason)
}

func (c *collection) exec(from common.Address, data []byte, commit bool) ([]byte, []*types.Log, error) {
	def := c.kind.abi()
	if len(data) < 4 {
		return nil, nil, revert("function selector was not recognized")
	}
	method, err := def.MethodById(data[:4])
	if err != nil {
		return nil, nil, revert("function selector was not recognized")
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, nil, revert(fmt.Sprintf("invalid arguments for %s: %v", method.Name, err))
	}

	var (
		out  []interface{}
		logs []*types.Log
	)
	switch c.kind {
	case Media1155:
		out, logs, err = c.exec1155(from, method.Name, args, commit)
	default:
		out, logs, err = c.exec721(from, method.Name, args, commit)
	}
	if err != nil {
		return nil, nil, err
	}
	if method.IsConstant() || len(method.Outputs) > 0 {
		packed, err := method.Outputs.Pack(out...)
		if err != nil {
			return nil, nil, fmt.Errorf("pack %s outputs: %w", method.Name, err)
		}
		return packed, nil, nil
	}
	return nil, logs, nil
}

func (c *collection) exec721(from common.Address, name string, args []interface{}, commit bool) ([]interface{}, []*types.Log, error) {
	switch name {
	case "mint":
		if c.kind == MediaA {
			logs, err := c.batchMint(args[0].(*big.Int), from, commit)
			return nil, logs, err
		}
		md := abi.ConvertType(args[1], new(ledger.MediaData)).(*ledger.MediaData)
		logs, err := c.mintOne(from, args[0].(*big.Int), md, commit)
		return nil, logs, err
	case "mintForCreator":
		md := abi.ConvertType(args[2], new(ledger.MediaData)).(*ledger.MediaData)
		logs, err := c.mintOne(args[0].(common.Address), args[1].(*big.Int), md, commit)
		return nil, logs, err
	case "mintTo":
		logs, err := c.batchMint(args[1].(*big.Int), args[0].(common.Address), commit)
		return nil, logs, err
	case "getTokenIdByContentHash":
		id, ok := c.byHash[args[0].([32]byte)]
		if !ok {
			return nil, nil, revert("Media: no token for content hash")
		}
		return []interface{}{new(big.Int).Set(id)}, nil, nil
	case "transferFrom":
		src, dst, id := args[0].(common.Address), args[1].(common.Address), args[2].(*big.Int)
		owner, ok := c.owners[id.String()]
		if !ok {
			return nil, nil, revert("ERC721: invalid token ID")
		}
		if owner != src {
			return nil, nil, revert("ERC721: transfer from incorrect owner")
		}
		if from != owner && from != c.admin {
			return nil, nil, revert("ERC721: caller is not token owner or approved")
		}
		if dst == (common.Address{}) {
			return nil, nil, revert("ERC721: transfer to the zero address")
		}
		if !commit {
			return nil, nil, nil
		}
		c.owners[id.String()] = dst
		return nil, []*types.Log{c.transferLog(src, dst, id)}, nil
	case "burn":
		id := args[0].(*big.Int)
		owner, ok := c.owners[id.String()]
		if !ok {
			return nil, nil, revert("ERC721: invalid token ID")
		}
		if from != owner && from != c.admin {
			return nil, nil, revert("ERC721: caller is not token owner or approved")
		}
		if !commit {
			return nil, nil, nil
		}
		key := id.String()
		delete(c.owners, key)
		delete(c.uris, key)
		delete(c.hashes, key)
		return nil, []*types.Log{c.transferLog(owner, common.Address{}, id)}, nil
	case "finalize":
		if from != c.admin {
			return nil, nil, revert("Ownable: caller is not the owner")
		}
		if c.finalized {
			return nil, nil, revert("Media: already finalized")
		}
		if commit {
			c.finalized = true
		}
		return nil, nil, nil
	case "updateTokenURI":
		id, uri := args[0].(*big.Int), args[1].(string)
		owner, ok := c.owners[id.String()]
		if !ok {
			return nil, nil, revert("ERC721: invalid token ID")
		}
		if from != owner && from != c.creators[id.String()] && from != c.admin {
			return nil, nil, revert("Media: caller is not owner or creator")
		}
		if strings.TrimSpace(uri) == "" {
			return nil, nil, revert("Media: specified uri must be non-empty")
		}
		if commit {
			c.uris[id.String()] = uri
		}
		return nil, nil, nil
	case "ownerOf":
		owner, ok := c.owners[args[0].(*big.Int).String()]
		if !ok {
			return nil, nil, revert("ERC721: invalid token ID")
		}
		return []interface{}{owner}, nil, nil
	case "creatorOf":
		key := args[0].(*big.Int).String()
		if _, ok := c.owners[key]; !ok {
			return nil, nil, revert("ERC721: invalid token ID")
		}
		return []interface{}{c.creators[key]}, nil, nil
	case "tokenURI":
		key := args[0].(*big.Int).String()
		if _, ok := c.owners[key]; !ok {
			return nil, nil, revert("ERC721: invalid token ID")
		}
		if c.kind == MediaA {
			return []interface{}{c.baseURI + key}, nil, nil
		}
		return []interface{}{c.uris[key]}, nil, nil
	case "tokenContentHashes":
		h, ok := c.hashes[args[0].(*big.Int).String()]
		if !ok {
			return nil, nil, revert("ERC721: invalid token ID")
		}
		return []interface{}{h}, nil, nil
	case "tokenOfOwnerByIndex":
		owner, idx := args[0].(common.Address), args[1].(*big.Int)
		var owned []*big.Int
		for _, id := range c.liveTokens() {
			if c.owners[id.String()] == owner {
				owned = append(owned, id)
			}
		}
		if !idx.IsInt64() || idx.Int64() >= int64(len(owned)) {
			return nil, nil, revert("ERC721Enumerable: owner index out of bounds")
		}
		return []interface{}{owned[idx.Int64()]}, nil, nil
	case "tokenByIndex":
		idx := args[0].(*big.Int)
		live := c.liveTokens()
		if !idx.IsInt64() || idx.Int64() >= int64(len(live)) {
			return nil, nil, revert("ERC721Enumerable: global index out of bounds")
		}
		return []interface{}{live[idx.Int64()]}, nil, nil
	case "name":
		return []interface{}{c.name}, nil, nil
	case "symbol":
		return []interface{}{c.symbol}, nil, nil
	case "totalSupply":
		return []interface{}{big.NewInt(int64(len(c.owners)))}, nil, nil
	}
	return nil, nil, revert("function " + name + " is not implemented")
}

// mintOne creates token id for creator, binding the content hash for good.
func (c *collection) mintOne(creator common.Address, id *big.Int, md *ledger.MediaData, commit bool) ([]*types.Log, error) {
	if c.finalized {
		return nil, revert("Media: collection is finalized")
	}
	if creator == (common.Address{}) {
		return nil, revert("ERC721: mint to the zero address")
	}
	key := id.String()
	if _, ok := c.owners[key]; ok {
		return nil, revert("ERC721: token already minted")
	}
	if _, ok := c.byHash[md.ContentHash]; ok {
		return nil, revert("Media: a token has already been created with this content hash")
	}
	if !commit {
		return nil, nil
	}
	c.owners[key] = creator
	c.creators[key] = creator
	c.uris[key] = md.TokenURI
	c.hashes[key] = md.ContentHash
	c.byHash[md.ContentHash] = new(big.Int).Set(id)
	return []*types.Log{c.transferLog(common.Address{}, creator, id)}, nil
}

// batchMint assigns quantity sequential ids to to, one Transfer log each.
func (c *collection) batchMint(quantity *big.Int, to common.Address, commit bool) ([]*types.Log, error) {
	if c.finalized {
		return nil, revert("MediaA: collection is finalized")
	}
	if quantity.Sign() <= 0 || !quantity.IsInt64() || quantity.Int64() > 10_000 {
		return nil, revert("ERC721A: invalid mint quantity")
	}
	if to == (common.Address{}) {
		return nil, revert("ERC721A: mint to the zero address")
	}
	if !commit {
		return nil, nil
	}
	logs := make([]*types.Log, 0, quantity.Int64())
	for i := int64(0); i < quantity.Int64(); i++ {
		id := big.NewInt(c.nextID)
		c.nextID++
		c.owners[id.String()] = to
		c.creators[id.String()] = to
		logs = append(logs, c.transferLog(common.Address{}, to, id))
	}
	return logs, nil
}

func (c *collection) liveTokens() []*big.Int {
	ids := make([]*big.Int, 0, len(c.owners))
	for key := range c.owners {
		id, _ := new(big.Int).SetString(key, 10)
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Cmp(ids[j]) < 0 })
	return ids
}

func (c *collection) transferLog(from, to common.Address, id *big.Int) *types.Log {
	return &types.Log{
		Address: c.address,
		Topics: []common.Hash{
			ledger.TransferTopic,
			common.BytesToHash(from.Bytes()),
			common.BytesToHash(to.Bytes()),
			common.BigToHash(id),
		},
		Data: []byte{},
	}
}
