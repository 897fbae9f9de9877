// Package registry is the collection address book: a YAML file mapping
// collection names to on-chain addresses for one network.
package registry

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

var ErrUnknownCollection = errors.New("unknown collection")

// File is the on-disk layout.
//
//	network: pixie-testnet
//	collections:
//	  genesis: "0x5FbDB2315678afecb367f032d93F642f64180aa3"
type File struct {
	Network     string            `yaml:"network"`
	Collections map[string]string `yaml:"collections"`
}

type Entry struct {
	Name    string         `json:"name"`
	Address common.Address `json:"address"`
}

// Registry is read-only after Load.
type Registry struct {
	network string
	byName  map[string]common.Address
}

// Empty returns a registry with no entries; Resolve then only accepts hex
// addresses.
func Empty() *Registry {
	return &Registry{byName: map[string]common.Address{}}
}

// Load reads path. An empty path yields an empty registry.
func Load(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return Empty(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Registry, error) {
	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}
	reg := &Registry{network: strings.TrimSpace(f.Network), byName: make(map[string]common.Address, len(f.Collections))}
	for name, addr := range f.Collections {
		key := normalize(name)
		if key == "" {
			return nil, errors.New("parse registry: empty collection name")
		}
		if common.IsHexAddress(key) {
			return nil, fmt.Errorf("parse registry: collection name %q looks like an address", name)
		}
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("parse registry: collection %q has invalid address %q", name, addr)
		}
		if _, dup := reg.byName[key]; dup {
			return nil, fmt.Errorf("parse registry: duplicate collection %q", name)
		}
		reg.byName[key] = common.HexToAddress(addr)
	}
	return reg, nil
}

func (r *Registry) Network() string { return r.network }

// Resolve accepts a hex address or a registered name.
func (r *Registry) Resolve(nameOrAddress string) (common.Address, error) {
	v := strings.TrimSpace(nameOrAddress)
	if common.IsHexAddress(v) {
		return common.HexToAddress(v), nil
	}
	if addr, ok := r.byName[normalize(v)]; ok {
		return addr, nil
	}
	return common.Address{}, fmt.Errorf("%w: %q", ErrUnknownCollection, nameOrAddress)
}

// Entries lists the book sorted by name.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, 0, len(r.byName))
	for name, addr := range r.byName {
		out = append(out, Entry{Name: name, Address: addr})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
