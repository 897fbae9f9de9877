package ledger

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcutil/hdkeychain"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"
)

// Account is a freshly generated externally owned account.
type Account struct {
	Address    string `json:"account"`
	PrivateKey string `json:"pk"`
	Mnemonic   string `json:"mnemonic"`
}

// derivationPath is m/44'/60'/0'/0/0.
var derivationPath = []uint32{
	hdkeychain.HardenedKeyStart + 44,
	hdkeychain.HardenedKeyStart + 60,
	hdkeychain.HardenedKeyStart + 0,
	0,
	0,
}

// NewAccount generates a mnemonic of the given word count (12 or 24) and
// derives the first Ethereum account from it.
func NewAccount(words int) (*Account, error) {
	var bits int
	switch words {
	case 0, 12:
		bits = 128
	case 24:
		bits = 256
	default:
		return nil, fmt.Errorf("unsupported mnemonic length %d", words)
	}
	entropy, err := bip39.NewEntropy(bits)
	if err != nil {
		return nil, err
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, err
	}
	return AccountFromMnemonic(mnemonic, "")
}

func AccountFromMnemonic(mnemonic, passphrase string) (*Account, error) {
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, passphrase)
	if err != nil {
		return nil, fmt.Errorf("invalid mnemonic: %w", err)
	}
	key, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, err
	}
	for _, idx := range derivationPath {
		key, err = key.Child(idx)
		if err != nil {
			return nil, fmt.Errorf("derive child %d: %w", idx, err)
		}
	}
	btcKey, err := key.ECPrivKey()
	if err != nil {
		return nil, err
	}
	ecKey, err := crypto.ToECDSA(btcKey.Serialize())
	if err != nil {
		return nil, err
	}
	return &Account{
		Address:    crypto.PubkeyToAddress(ecKey.PublicKey).Hex(),
		PrivateKey: "0x" + hex.EncodeToString(crypto.FromECDSA(ecKey)),
		Mnemonic:   mnemonic,
	}, nil
}
