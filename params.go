package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"

	"github.com/pixiechain/mediagate/pkg/ledger"
)

const maxBodyBytes = 1 << 20

// params is the flattened view of a request: query string plus a JSON or
// urlencoded body. Body fields win over query fields.
type params map[string]string

func readParams(w http.ResponseWriter, r *http.Request) (params, error) {
	p := params{}
	for k, vs := range r.URL.Query() {
		if len(vs) > 0 {
			p[k] = vs[0]
		}
	}
	if r.Body == nil || r.Method == http.MethodGet {
		return p, nil
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch ct {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		if err := r.ParseForm(); err != nil {
			return nil, invalid(fmt.Errorf("invalid form body: %w", err))
		}
		for k, vs := range r.PostForm {
			if len(vs) > 0 {
				p[k] = vs[0]
			}
		}
		return p, nil
	}

	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	var body map[string]interface{}
	if err := dec.Decode(&body); err != nil {
		if errors.Is(err, io.EOF) {
			return p, nil
		}
		return nil, invalid(fmt.Errorf("invalid JSON body: %w", err))
	}
	for k, v := range body {
		switch t := v.(type) {
		case nil:
		case string:
			p[k] = t
		case json.Number:
			p[k] = t.String()
		case bool:
			p[k] = strconv.FormatBool(t)
		default:
			raw, _ := json.Marshal(t)
			p[k] = string(raw)
		}
	}
	return p, nil
}

// get returns the first non-empty value among keys.
func (p params) get(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(p[k]); v != "" {
			return v
		}
	}
	return ""
}

// bigInt accepts decimal or 0x-prefixed hex. A missing field yields nil.
func (p params) bigInt(keys ...string) (*big.Int, error) {
	raw := p.get(keys...)
	if raw == "" {
		return nil, nil
	}
	v, ok := math.ParseBig256(raw)
	if !ok {
		return nil, invalid(fmt.Errorf("%s must be an unsigned integer, got %q", keys[0], raw))
	}
	return v, nil
}

func (p params) address(keys ...string) (*common.Address, error) {
	raw := p.get(keys...)
	if raw == "" {
		return nil, nil
	}
	if !common.IsHexAddress(raw) {
		return nil, invalid(fmt.Errorf("%s is not a valid address: %q", keys[0], raw))
	}
	addr := common.HexToAddress(raw)
	return &addr, nil
}

func (p params) requireAddress(keys ...string) (common.Address, error) {
	addr, err := p.address(keys...)
	if err != nil {
		return common.Address{}, err
	}
	if addr == nil {
		return common.Address{}, invalid(fmt.Errorf("%s is required", keys[0]))
	}
	return *addr, nil
}

func (p params) fingerprint(keys ...string) (*ledger.Fingerprint, error) {
	raw := p.get(keys...)
	if raw == "" {
		return nil, nil
	}
	fp, err := ledger.ParseFingerprint(raw)
	if err != nil {
		return nil, invalid(err)
	}
	return &fp, nil
}

func (p params) hash(keys ...string) (common.Hash, error) {
	raw := p.get(keys...)
	if raw == "" {
		return common.Hash{}, invalid(fmt.Errorf("%s is required", keys[0]))
	}
	b, err := hexutil.Decode(raw)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, invalid(fmt.Errorf("%s is not a transaction hash: %q", keys[0], raw))
	}
	return common.BytesToHash(b), nil
}

func (p params) signer(keys ...string) (*ledger.Signer, error) {
	raw := p.get(keys...)
	if raw == "" {
		return nil, nil
	}
	s, err := ledger.ParseSigner(raw)
	if err != nil {
		return nil, invalid(err)
	}
	return s, nil
}
