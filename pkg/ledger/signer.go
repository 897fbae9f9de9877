package ledger

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer is a signing credential together with the address it controls.
type Signer struct {
	key     *ecdsa.PrivateKey
	Address common.Address
}

func NewSigner(key *ecdsa.PrivateKey) *Signer {
	return &Signer{key: key, Address: crypto.PubkeyToAddress(key.PublicKey)}
}

// ParseSigner accepts a hex encoded secp256k1 key with or without 0x.
func ParseSigner(hexKey string) (*Signer, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return nil, fmt.Errorf("private key is required")
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return NewSigner(key), nil
}

func (s *Signer) Key() *ecdsa.PrivateKey { return s.key }

// Fingerprint is the content hash a creation is deduplicated by.
type Fingerprint [32]byte

func ParseFingerprint(s string) (Fingerprint, error) {
	var fp Fingerprint
	raw := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if len(raw) != 2*len(fp) {
		return fp, fmt.Errorf("content hash must be 32 bytes, got %q", s)
	}
	if _, err := hex.Decode(fp[:], []byte(raw)); err != nil {
		return fp, fmt.Errorf("invalid content hash %q: %w", s, err)
	}
	return fp, nil
}

func (f Fingerprint) Hex() string { return "0x" + hex.EncodeToString(f[:]) }
