package orchestrator

import (
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/pixiechain/mediagate/pkg/ledger"
)

// Variant is the small per-collection-kind boundary of the orchestration
// core: how requests become contract calls and how a created identifier is
// read back from a receipt.
type Variant struct {
	Name string
	ABI  *abi.ABI
	// Fingerprinted variants deduplicate creations by content hash.
	Fingerprinted bool
	// Native variants accept plain value transfers with a memo.
	Native bool

	encode  func(r *Request) (string, []interface{}, error)
	tokenID func(r *types.Receipt) (*big.Int, error)
}

// Build validates r and turns it into the call that will be estimated and
// submitted.
func (v *Variant) Build(r *Request) (*ledger.Call, error) {
	if r.Signer == nil {
		return nil, invalidf("signing key is required")
	}
	if r.Native() {
		if !v.Native {
			return nil, invalidf("%s does not support value transfers", v.Name)
		}
		if r.To == nil {
			return nil, invalidf("toAddress is required")
		}
		if r.Value.Sign() <= 0 {
			return nil, invalidf("amount must be positive")
		}
		return &ledger.Call{From: r.Signer, To: *r.To, Value: new(big.Int).Set(r.Value), Data: ledger.EncodeMemo(r.Memo)}, nil
	}
	if r.Collection == (common.Address{}) {
		return nil, invalidf("contract_address is required")
	}
	method, args, err := v.encode(r)
	if err != nil {
		return nil, err
	}
	call, err := ledger.NewContract(r.Collection, v.ABI).Invoke(r.Signer, method, args...)
	if err != nil {
		return nil, opErr(PhaseValidate, err)
	}
	return call, nil
}

// TokenID extracts the created identifier from a successful receipt.
func (v *Variant) TokenID(r *types.Receipt) (*big.Int, error) {
	if v.tokenID == nil {
		return ledger.TokenID(r)
	}
	return v.tokenID(r)
}

// Media is the single-asset collection keyed by content hash.
var Media = &Variant{
	Name:          "media",
	ABI:           ledger.MediaABI,
	Fingerprinted: true,
	Native:        true,
	encode:        encodeMedia,
}

// Media1155 is the multi-asset collection.
var Media1155 = &Variant{
	Name:          "media1155",
	ABI:           ledger.Media1155ABI,
	Fingerprinted: true,
	encode:        encodeMedia1155,
	tokenID:       transferSingleID,
}

// MediaA is the batch-minting collection; it has no content hashes.
var MediaA = &Variant{
	Name:   "mediaA",
	ABI:    ledger.MediaAABI,
	Native: true,
	encode: encodeMediaA,
}

var variants = map[string]*Variant{
	Media.Name:     Media,
	Media1155.Name: Media1155,
	MediaA.Name:    MediaA,
}

// LookupVariant resolves a variant by name, case-insensitively.
func LookupVariant(name string) (*Variant, error) {
	for k, v := range variants {
		if strings.EqualFold(k, strings.TrimSpace(name)) {
			return v, nil
		}
	}
	return nil, fmt.Errorf("unknown variant %q (known: %s)", name, strings.Join(VariantNames(), ", "))
}

func VariantNames() []string {
	out := make([]string, 0, len(variants))
	for k := range variants {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func encodeMedia(r *Request) (string, []interface{}, error) {
	switch r.Kind {
	case KindCreate:
		if r.TokenID == nil {
			return "", nil, invalidf("tokenId is required")
		}
		if r.Fingerprint == nil {
			return "", nil, invalidf("contentHash is required")
		}
		data := ledger.MediaData{TokenURI: r.URI, ContentHash: *r.Fingerprint}
		if r.Creator != nil {
			return "mintForCreator", []interface{}{*r.Creator, r.TokenID, data}, nil
		}
		return "mint", []interface{}{r.TokenID, data}, nil
	case KindTransfer:
		return encodeTransfer721(r)
	case KindDestroy:
		if r.TokenID == nil {
			return "", nil, invalidf("tokenId is required")
		}
		return "burn", []interface{}{r.TokenID}, nil
	case KindUpdateMetadata:
		if r.TokenID == nil {
			return "", nil, invalidf("tokenId is required")
		}
		if strings.TrimSpace(r.URI) == "" {
			return "", nil, invalidf("tokenURI is required")
		}
		return "updateTokenURI", []interface{}{r.TokenID, r.URI}, nil
	case KindFinalize:
		return "finalize", nil, nil
	}
	return "", nil, invalidf("media does not support %s", r.Kind)
}

func encodeMedia1155(r *Request) (string, []interface{}, error) {
	switch r.Kind {
	case KindCreate:
		if r.TokenID == nil {
			return "", nil, invalidf("tokenId is required")
		}
		if r.Fingerprint == nil {
			return "", nil, invalidf("contentHash is required")
		}
		if r.Quantity == nil || r.Quantity.Sign() <= 0 {
			return "", nil, invalidf("amount must be positive")
		}
		creator := r.signerAddress()
		if r.Creator != nil {
			creator = *r.Creator
		}
		return "mintForCreator", []interface{}{creator, r.TokenID, [32]byte(*r.Fingerprint), r.Quantity}, nil
	case KindTransfer:
		if r.TokenID == nil {
			return "", nil, invalidf("tokenId is required")
		}
		if r.To == nil {
			return "", nil, invalidf("toAddress is required")
		}
		if r.Quantity == nil || r.Quantity.Sign() <= 0 {
			return "", nil, invalidf("amount must be positive")
		}
		memo := ledger.EncodeMemo(r.Memo)
		if memo == nil {
			memo = []byte{}
		}
		return "safeTransferFrom", []interface{}{r.fromOrSigner(), *r.To, r.TokenID, r.Quantity, memo}, nil
	case KindDestroy:
		if r.TokenID == nil {
			return "", nil, invalidf("tokenId is required")
		}
		if r.Quantity == nil || r.Quantity.Sign() <= 0 {
			return "", nil, invalidf("amount must be positive")
		}
		return "burn", []interface{}{r.accountOrSigner(), r.TokenID, r.Quantity}, nil
	case KindUpdateMetadata:
		if strings.TrimSpace(r.URI) == "" {
			return "", nil, invalidf("baseURI is required")
		}
		return "setURI", []interface{}{r.URI}, nil
	}
	return "", nil, invalidf("media1155 does not support %s", r.Kind)
}

func encodeMediaA(r *Request) (string, []interface{}, error) {
	switch r.Kind {
	case KindCreate:
		if r.Quantity == nil || r.Quantity.Sign() <= 0 {
			return "", nil, invalidf("quantity must be positive")
		}
		if r.Creator != nil {
			return "mintTo", []interface{}{*r.Creator, r.Quantity}, nil
		}
		return "mint", []interface{}{r.Quantity}, nil
	case KindTransfer:
		return encodeTransfer721(r)
	case KindDestroy:
		if r.TokenID == nil {
			return "", nil, invalidf("tokenId is required")
		}
		return "burn", []interface{}{r.TokenID}, nil
	case KindFinalize:
		return "finalize", nil, nil
	}
	return "", nil, invalidf("mediaA does not support %s", r.Kind)
}

func encodeTransfer721(r *Request) (string, []interface{}, error) {
	if r.TokenID == nil {
		return "", nil, invalidf("tokenId is required")
	}
	if r.To == nil {
		return "", nil, invalidf("toAddress is required")
	}
	return "transferFrom", []interface{}{r.fromOrSigner(), *r.To, r.TokenID}, nil
}

// transferSingleID reads the id from a TransferSingle record. Its indexed
// fields are operator, from and to, so the id lives in the data section.
func transferSingleID(r *types.Receipt) (*big.Int, error) {
	if r == nil || len(r.Logs) == 0 {
		return nil, ledger.ErrNoTokenID
	}
	first := r.Logs[0]
	if len(first.Topics) == 0 || first.Topics[0] != ledger.TransferSingleTopic {
		return ledger.TokenID(r)
	}
	values, err := ledger.Media1155ABI.Events["TransferSingle"].Inputs.NonIndexed().Unpack(first.Data)
	if err != nil || len(values) < 1 {
		return nil, ledger.ErrNoTokenID
	}
	id, ok := values[0].(*big.Int)
	if !ok {
		return nil, ledger.ErrNoTokenID
	}
	return id, nil
}
