package main

import (
	"fmt"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/pixiechain/mediagate/pkg/orchestrator"
)

type argKind int

const (
	argUint argKind = iota
	argAddress
)

type readArg struct {
	keys []string
	kind argKind
}

var (
	tokenArg   = readArg{keys: []string{"token_id", "tokenId"}, kind: argUint}
	indexArg   = readArg{keys: []string{"index"}, kind: argUint}
	ownerArg   = readArg{keys: []string{"owner"}, kind: argAddress}
	accountArg = readArg{keys: []string{"account", "account_address", "owner"}, kind: argAddress}
)

// readRoute is a single-output view call exposed as GET /<path>. methods
// lists the ABI names tried in order; variants lacking all of them do not
// get the route.
type readRoute struct {
	path    string
	methods []string
	args    []readArg
	key     string
}

var tokenURIRoute = readRoute{path: "tokenURI", methods: []string{"tokenURI", "uri"}, args: []readArg{tokenArg}, key: "tokenURI"}

var readRoutes = []readRoute{
	{path: "ownerOf", methods: []string{"ownerOf"}, args: []readArg{tokenArg}, key: "address"},
	{path: "creatorOf", methods: []string{"creatorOf"}, args: []readArg{tokenArg}, key: "address"},
	{path: "symbol", methods: []string{"symbol"}, key: "symbol"},
	tokenURIRoute,
	{path: "tokenContentHashes", methods: []string{"tokenContentHashes"}, args: []readArg{tokenArg}, key: "tokenContentHashes"},
	{path: "tokenOfOwnerByIndex", methods: []string{"tokenOfOwnerByIndex"}, args: []readArg{ownerArg, indexArg}, key: "id"},
	{path: "tokenByIndex", methods: []string{"tokenByIndex"}, args: []readArg{indexArg}, key: "id"},
	{path: "balanceOf", methods: []string{"balanceOf"}, args: []readArg{accountArg, tokenArg}, key: "balance"},
}

func (rt readRoute) methodFor(v *orchestrator.Variant) string {
	for _, name := range rt.methods {
		if m, ok := v.ABI.Methods[name]; ok && len(m.Inputs) == len(rt.args) && len(m.Outputs) == 1 {
			return name
		}
	}
	return ""
}

func (rt readRoute) parseArgs(p params) ([]interface{}, error) {
	out := make([]interface{}, 0, len(rt.args))
	for _, a := range rt.args {
		switch a.kind {
		case argUint:
			v, err := p.bigInt(a.keys...)
			if err != nil {
				return nil, err
			}
			if v == nil {
				return nil, invalid(errRequired(a.keys[0]))
			}
			out = append(out, v)
		case argAddress:
			addr, err := p.requireAddress(a.keys...)
			if err != nil {
				return nil, err
			}
			out = append(out, addr)
		}
	}
	return out, nil
}

func errRequired(field string) error {
	return fmt.Errorf("%s is required", field)
}

// collectionParam resolves the collection of a read; the legacy routes
// disagree on the field name.
func (s *server) collectionParam(p params) (common.Address, error) {
	raw := p.get("contract_address", "contractAddress", "media_address", "address")
	if raw == "" {
		return common.Address{}, invalid(errRequired("contract_address"))
	}
	addr, err := s.registry.Resolve(raw)
	if err != nil {
		return common.Address{}, invalid(err)
	}
	return addr, nil
}

func jsonValue(v interface{}) interface{} {
	switch t := v.(type) {
	case common.Address:
		return t.Hex()
	case [32]byte:
		return hexutil.Encode(t[:])
	case *big.Int:
		return t
	}
	return v
}

func (s *server) readHandler(v *orchestrator.Variant, rt readRoute, method string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if preflight(w, r) {
			return
		}
		p, err := readParams(w, r)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		collection, err := s.collectionParam(p)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		args, err := rt.parseArgs(p)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		out, err := s.orch.Read(r.Context(), v, collection, method, args...)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"status": true, rt.key: jsonValue(out[0])})
	}
}

func (s *server) tokenMediaInfo(v *orchestrator.Variant) http.HandlerFunc {
	uriMethod := tokenURIRoute.methodFor(v)
	return func(w http.ResponseWriter, r *http.Request) {
		if preflight(w, r) {
			return
		}
		p, err := readParams(w, r)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		collection, err := s.collectionParam(p)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		args, err := readRoute{args: []readArg{tokenArg}}.parseArgs(p)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		uri, err := s.orch.Read(r.Context(), v, collection, uriMethod, args...)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		hash, err := s.orch.Read(r.Context(), v, collection, "tokenContentHashes", args...)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":      true,
			"tokenURI":    jsonValue(uri[0]),
			"contentHash": jsonValue(hash[0]),
		})
	}
}

type infoResponse struct {
	Status   bool   `json:"status"`
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Supply   string `json:"supply"`
	Burnable bool   `json:"burnable"`
	Mintable bool   `json:"mintable"`
	Address  string `json:"address"`
}

func (s *server) info(v *orchestrator.Variant) http.HandlerFunc {
	_, burnable := v.ABI.Methods["burn"]
	mintable := false
	for _, m := range []string{"mint", "mintForCreator", "mintTo"} {
		if _, ok := v.ABI.Methods[m]; ok {
			mintable = true
		}
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if preflight(w, r) {
			return
		}
		p, err := readParams(w, r)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		collection, err := s.collectionParam(p)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		resp := infoResponse{Status: true, Burnable: burnable, Mintable: mintable, Address: collection.Hex()}
		for method, dst := range map[string]*string{"name": &resp.Name, "symbol": &resp.Symbol, "totalSupply": &resp.Supply} {
			out, err := s.orch.Read(r.Context(), v, collection, method)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			*dst = fmt.Sprint(out[0])
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// memo answers with the raw memo text of a value transfer.
func (s *server) memo(w http.ResponseWriter, r *http.Request) {
	if preflight(w, r) {
		return
	}
	p, err := readParams(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	hash, err := p.hash("transactionHash", "tx")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	memo, err := s.orch.Memo(r.Context(), hash)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeText(w, memo)
}
