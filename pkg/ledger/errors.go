package ledger

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrPending    = errors.New("transaction pending")
	ErrTxNotFound = errors.New("transaction not found")
	ErrNoTokenID  = errors.New("receipt carries no token id")
)

// hashMismatchPrefix is the message some providers and relays emit when the
// hash of the signed payload differs from the one returned by the node.
const hashMismatchPrefix = "Transaction hash mismatch from Provider.sendTransaction."

var (
	returnedHashRe = regexp.MustCompile(`returnedHash="(0x[0-9a-fA-F]{64})"`)
	expectedHashRe = regexp.MustCompile(`expectedHash="(0x[0-9a-fA-F]{64})"`)
)

// HashMismatchError reports that the network assigned Returned to a
// transaction whose signed payload hashes to Expected.
type HashMismatchError struct {
	Expected common.Hash
	Returned common.Hash
}

func (e *HashMismatchError) Error() string {
	return fmt.Sprintf(`%s (expectedHash="%s", returnedHash="%s")`, hashMismatchPrefix, e.Expected.Hex(), e.Returned.Hex())
}

// ParseHashMismatch recognises the textual form of a hash mismatch. The
// message may carry an "Error: " prefix. Expected is left zero when the text
// does not include it.
func ParseHashMismatch(msg string) (*HashMismatchError, bool) {
	msg = strings.TrimPrefix(strings.TrimSpace(msg), "Error: ")
	if !strings.HasPrefix(msg, hashMismatchPrefix) {
		return nil, false
	}
	m := returnedHashRe.FindStringSubmatch(msg)
	if m == nil {
		return nil, false
	}
	out := &HashMismatchError{Returned: common.HexToHash(m[1])}
	if e := expectedHashRe.FindStringSubmatch(msg); e != nil {
		out.Expected = common.HexToHash(e[1])
	}
	return out, true
}

// AsHashMismatch extracts a hash mismatch from err, whether it was produced
// as a structured error or only survives as text.
func AsHashMismatch(err error) (*HashMismatchError, bool) {
	if err == nil {
		return nil, false
	}
	var mm *HashMismatchError
	if errors.As(err, &mm) {
		return mm, true
	}
	return ParseHashMismatch(err.Error())
}
