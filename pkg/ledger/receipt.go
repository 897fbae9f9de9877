package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"
)

// TokenID reads the generated identifier of a creation: the third indexed
// field (topics[3]) of the first log in the receipt.
func TokenID(r *types.Receipt) (*big.Int, error) {
	if r == nil || len(r.Logs) == 0 {
		return nil, ErrNoTokenID
	}
	topics := r.Logs[0].Topics
	if len(topics) < 4 {
		return nil, ErrNoTokenID
	}
	return new(big.Int).SetBytes(topics[3].Bytes()), nil
}

// Succeeded reports whether r is a successful execution record.
func Succeeded(r *types.Receipt) bool {
	return r != nil && r.Status == types.ReceiptStatusSuccessful
}
