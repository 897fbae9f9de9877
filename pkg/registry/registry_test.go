package registry

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

const sample = `
network: pixie-testnet
collections:
  Genesis: "0x5FbDB2315678afecb367f032d93F642f64180aa3"
  editions: "0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512"
`

func TestLoadAndResolve(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	reg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "pixie-testnet", reg.Network())

	addr, err := reg.Resolve("genesis")
	require.NoError(t, err)
	require.Equal(t, common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"), addr)

	addr, err = reg.Resolve(" GENESIS ")
	require.NoError(t, err)
	require.Equal(t, common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"), addr)

	raw := "0x9fE46736679d2D9a65F0992F2272dE9f3c7fa6e0"
	addr, err = reg.Resolve(raw)
	require.NoError(t, err)
	require.Equal(t, common.HexToAddress(raw), addr)

	_, err = reg.Resolve("missing")
	require.True(t, errors.Is(err, ErrUnknownCollection))

	entries := reg.Entries()
	require.Len(t, entries, 2)
	require.Equal(t, "editions", entries[0].Name)
	require.Equal(t, "genesis", entries[1].Name)
}

func TestParseRejectsBadEntries(t *testing.T) {
	cases := map[string]string{
		"bad address":    "collections:\n  a: \"0x1234\"\n",
		"address name":   "collections:\n  \"0x5FbDB2315678afecb367f032d93F642f64180aa3\": \"0x5FbDB2315678afecb367f032d93F642f64180aa3\"\n",
		"case duplicate": "collections:\n  a: \"0x5FbDB2315678afecb367f032d93F642f64180aa3\"\n  A: \"0x5FbDB2315678afecb367f032d93F642f64180aa3\"\n",
		"not yaml":       "collections: [",
	}
	for name, raw := range cases {
		_, err := Parse([]byte(raw))
		require.Error(t, err, name)
	}
}

func TestEmptyPathIsEmptyRegistry(t *testing.T) {
	reg, err := Load("")
	require.NoError(t, err)
	require.Empty(t, reg.Entries())
	_, err = reg.Resolve("genesis")
	require.Error(t, err)
}
