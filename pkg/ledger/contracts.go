package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// MediaData is the tuple a media collection binds to each created token.
type MediaData struct {
	TokenURI    string
	ContentHash [32]byte
}

const mediaDataTuple = `{"name":"data","type":"tuple","components":[{"name":"tokenURI","type":"string"},{"name":"contentHash","type":"bytes32"}]}`

const erc721Common = `
{"type":"function","name":"transferFrom","stateMutability":"nonpayable","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"tokenId","type":"uint256"}],"outputs":[]},
{"type":"function","name":"burn","stateMutability":"nonpayable","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[]},
{"type":"function","name":"finalize","stateMutability":"nonpayable","inputs":[],"outputs":[]},
{"type":"function","name":"ownerOf","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
{"type":"function","name":"tokenURI","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"string"}]},
{"type":"function","name":"name","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
{"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
{"type":"function","name":"totalSupply","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"event","name":"Transfer","anonymous":false,"inputs":[{"name":"from","type":"address","indexed":true},{"name":"to","type":"address","indexed":true},{"name":"tokenId","type":"uint256","indexed":true}]}`

// MediaABIJSON describes the single-asset collection with content hashes.
const MediaABIJSON = `[
{"type":"function","name":"mint","stateMutability":"nonpayable","inputs":[{"name":"tokenId","type":"uint256"},` + mediaDataTuple + `],"outputs":[]},
{"type":"function","name":"mintForCreator","stateMutability":"nonpayable","inputs":[{"name":"creator","type":"address"},{"name":"tokenId","type":"uint256"},` + mediaDataTuple + `],"outputs":[]},
{"type":"function","name":"getTokenIdByContentHash","stateMutability":"view","inputs":[{"name":"contentHash","type":"bytes32"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"updateTokenURI","stateMutability":"nonpayable","inputs":[{"name":"tokenId","type":"uint256"},{"name":"tokenURI","type":"string"}],"outputs":[]},
{"type":"function","name":"creatorOf","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
{"type":"function","name":"tokenContentHashes","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"bytes32"}]},
{"type":"function","name":"tokenOfOwnerByIndex","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"index","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"tokenByIndex","stateMutability":"view","inputs":[{"name":"index","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
` + erc721Common + `
]`

// Media1155ABIJSON describes the multi-asset collection.
const Media1155ABIJSON = `[
{"type":"function","name":"mintForCreator","stateMutability":"nonpayable","inputs":[{"name":"creator","type":"address"},{"name":"id","type":"uint256"},{"name":"contentHash","type":"bytes32"},{"name":"amount","type":"uint256"}],"outputs":[]},
{"type":"function","name":"getTokenIdByContentHash","stateMutability":"view","inputs":[{"name":"contentHash","type":"bytes32"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"safeTransferFrom","stateMutability":"nonpayable","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"id","type":"uint256"},{"name":"amount","type":"uint256"},{"name":"data","type":"bytes"}],"outputs":[]},
{"type":"function","name":"burn","stateMutability":"nonpayable","inputs":[{"name":"account","type":"address"},{"name":"id","type":"uint256"},{"name":"value","type":"uint256"}],"outputs":[]},
{"type":"function","name":"setURI","stateMutability":"nonpayable","inputs":[{"name":"newuri","type":"string"}],"outputs":[]},
{"type":"function","name":"creatorOf","stateMutability":"view","inputs":[{"name":"id","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
{"type":"function","name":"uri","stateMutability":"view","inputs":[{"name":"id","type":"uint256"}],"outputs":[{"name":"","type":"string"}]},
{"type":"function","name":"tokenContentHashes","stateMutability":"view","inputs":[{"name":"id","type":"uint256"}],"outputs":[{"name":"","type":"bytes32"}]},
{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"},{"name":"id","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"name","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
{"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
{"type":"function","name":"totalSupply","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"event","name":"TransferSingle","anonymous":false,"inputs":[{"name":"operator","type":"address","indexed":true},{"name":"from","type":"address","indexed":true},{"name":"to","type":"address","indexed":true},{"name":"id","type":"uint256","indexed":false},{"name":"value","type":"uint256","indexed":false}]}
]`

// MediaAABIJSON describes the batch-minting collection.
const MediaAABIJSON = `[
{"type":"function","name":"mint","stateMutability":"nonpayable","inputs":[{"name":"quantity","type":"uint256"}],"outputs":[]},
{"type":"function","name":"mintTo","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"quantity","type":"uint256"}],"outputs":[]},
` + erc721Common + `
]`

var (
	MediaABI     = mustParseABI(MediaABIJSON)
	Media1155ABI = mustParseABI(Media1155ABIJSON)
	MediaAABI    = mustParseABI(MediaAABIJSON)

	TransferTopic       = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
	TransferSingleTopic = crypto.Keccak256Hash([]byte("TransferSingle(address,address,address,uint256,uint256)"))
)

func mustParseABI(def string) *abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("ledger: invalid abi: %v", err))
	}
	return &parsed
}

// Contract pairs a collection address with the ABI used to talk to it.
type Contract struct {
	Address common.Address
	ABI     *abi.ABI
}

func NewContract(addr common.Address, def *abi.ABI) *Contract {
	return &Contract{Address: addr, ABI: def}
}

// Invoke builds the call for a state-changing method signed by from.
func (c *Contract) Invoke(from *Signer, method string, args ...interface{}) (*Call, error) {
	data, err := c.ABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	return &Call{From: from, To: c.Address, Data: data}, nil
}

// View runs a read-only method and returns its decoded outputs.
func (c *Contract) View(ctx context.Context, client Client, method string, args ...interface{}) ([]interface{}, error) {
	data, err := c.ABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	out, err := client.CallContract(ctx, &Call{To: c.Address, Data: data})
	if err != nil {
		return nil, err
	}
	values, err := c.ABI.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%s returned no values", method)
	}
	return values, nil
}
