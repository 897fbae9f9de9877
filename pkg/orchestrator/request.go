package orchestrator

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pixiechain/mediagate/pkg/ledger"
)

// Kind is the operation a request asks the ledger to perform.
type Kind string

const (
	KindCreate         Kind = "create"
	KindTransfer       Kind = "transfer"
	KindDestroy        Kind = "destroy"
	KindUpdateMetadata Kind = "update-metadata"
	KindFinalize       Kind = "finalize"
)

// Request is one operation built from an inbound call. It is not modified
// after construction.
type Request struct {
	Kind       Kind
	Collection common.Address
	Signer     *ledger.Signer

	// Creator selects delegated creation when set.
	Creator     *common.Address
	Fingerprint *ledger.Fingerprint
	TokenID     *big.Int
	Quantity    *big.Int

	// Value turns a transfer into a native value transfer to To.
	Value   *big.Int
	From    *common.Address
	To      *common.Address
	Account *common.Address
	URI     string
	Memo    string
}

// Native reports whether the request moves the ledger's native currency
// rather than a collection token.
func (r *Request) Native() bool {
	return r.Kind == KindTransfer && r.Value != nil
}

func (r *Request) signerAddress() common.Address {
	if r.Signer == nil {
		return common.Address{}
	}
	return r.Signer.Address
}

func (r *Request) fromOrSigner() common.Address {
	if r.From != nil {
		return *r.From
	}
	return r.signerAddress()
}

func (r *Request) accountOrSigner() common.Address {
	if r.Account != nil {
		return *r.Account
	}
	return r.signerAddress()
}
