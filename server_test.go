package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/pixiechain/mediagate/pkg/journal"
	"github.com/pixiechain/mediagate/pkg/ledger"
	"github.com/pixiechain/mediagate/pkg/ledger/ledgertest"
	"github.com/pixiechain/mediagate/pkg/orchestrator"
	"github.com/pixiechain/mediagate/pkg/registry"
)

type harness struct {
	t      *testing.T
	ledger *ledgertest.Ledger
	srv    *server
	ts     *httptest.Server
	admin  *ledger.Signer
	hook   *test.Hook
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	l := ledgertest.New()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	jr, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = jr.Close() })

	promReg := prometheus.NewRegistry()
	metrics := orchestrator.NewMetrics(promReg)
	tracker := orchestrator.NewTracker(l, jr, metrics, logger, orchestrator.TrackerConfig{Workers: 2, QueueSize: 16})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		_ = tracker.Close(ctx)
	})
	orch := orchestrator.New(l, tracker, metrics, logger, orchestrator.Config{RecoveryTimeout: 5 * time.Second})

	cfg := Config{ListenAddr: ":31090", RPCURL: "http://ledger.invalid"}
	variants := []*orchestrator.Variant{orchestrator.Media, orchestrator.Media1155, orchestrator.MediaA}
	srv := newServer(cfg, orch, nil, jr, variants, logger, promReg)
	srv.chainID = big.NewInt(1337)

	ts := httptest.NewServer(srv.routes())
	t.Cleanup(ts.Close)

	return &harness{t: t, ledger: l, srv: srv, ts: ts, admin: newSigner(t), hook: hook}
}

func newSigner(t *testing.T) *ledger.Signer {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return ledger.NewSigner(key)
}

func keyHex(s *ledger.Signer) string {
	return hexutil.Encode(crypto.FromECDSA(s.Key()))
}

func contentHash(s string) string {
	return crypto.Keccak256Hash([]byte(s)).Hex()
}

func decode(t *testing.T, raw []byte) map[string]interface{} {
	t.Helper()
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out map[string]interface{}
	require.NoError(t, dec.Decode(&out), "body: %s", raw)
	return out
}

func (h *harness) do(req *http.Request) (*http.Response, []byte) {
	h.t.Helper()
	res, err := h.ts.Client().Do(req)
	require.NoError(h.t, err)
	defer res.Body.Close()
	raw, err := io.ReadAll(res.Body)
	require.NoError(h.t, err)
	return res, raw
}

func (h *harness) post(path string, body map[string]interface{}) (*http.Response, map[string]interface{}) {
	h.t.Helper()
	bz, err := json.Marshal(body)
	require.NoError(h.t, err)
	req, err := http.NewRequest(http.MethodPost, h.ts.URL+path, bytes.NewReader(bz))
	require.NoError(h.t, err)
	req.Header.Set("Content-Type", "application/json")
	res, raw := h.do(req)
	return res, decode(h.t, raw)
}

func (h *harness) get(path string, q url.Values) (*http.Response, []byte) {
	h.t.Helper()
	u := h.ts.URL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequest(http.MethodGet, u, nil)
	require.NoError(h.t, err)
	return h.do(req)
}

func (h *harness) getJSON(path string, q url.Values) (*http.Response, map[string]interface{}) {
	h.t.Helper()
	res, raw := h.get(path, q)
	return res, decode(h.t, raw)
}

func (h *harness) mint(coll common.Address, id int64, content string) map[string]interface{} {
	h.t.Helper()
	res, body := h.post("/api/v1/contracts/mint", map[string]interface{}{
		"contract_address": coll.Hex(),
		"tokenId":          id,
		"tokenURI":         "ipfs://" + content,
		"contentHash":      contentHash(content),
		"pk":               keyHex(h.admin),
	})
	require.Equal(h.t, http.StatusOK, res.StatusCode)
	require.Equal(h.t, true, body["status"], "body: %v", body)
	return body
}

func TestMintLifecycle(t *testing.T) {
	h := newHarness(t)
	coll := h.ledger.Deploy(ledgertest.Media, h.admin.Address, "Pixie", "PXE")

	body := h.mint(coll, 1, "a")
	require.Equal(t, "submitted", body["outcome"])
	tx, _ := body["transactionHash"].(string)
	require.NotEmpty(t, tx)
	require.Equal(t, strings.ToLower(h.admin.Address.Hex()), body["from"])

	_, st := h.getJSON("/api/v1/contracts/mintStatus", url.Values{"tx": {tx}})
	require.Equal(t, false, st["status"])
	require.Equal(t, "pending", st["state"])

	h.ledger.Mine()

	_, st = h.getJSON("/api/v1/contracts/mintStatus", url.Values{"tx": {tx}})
	require.Equal(t, true, st["status"])
	require.Equal(t, "confirmed", st["state"])
	require.Equal(t, "1", st["token_id"])
	require.NotNil(t, st["receipt"])

	require.Eventually(t, func() bool {
		_, e := h.getJSON("/api/v1/journal/"+tx, nil)
		out, ok := e["outcome"].(map[string]interface{})
		return ok && out["state"] == "confirmed" && out["token_id"] == "1"
	}, 2*time.Second, 5*time.Millisecond)

	sends := h.ledger.Sends()
	again := h.mint(coll, 2, "a")
	require.Equal(t, "existing", again["outcome"])
	require.Equal(t, "1", again["token_id"])
	require.Nil(t, again["transactionHash"])
	require.Equal(t, sends, h.ledger.Sends())

	q := url.Values{"contract_address": {coll.Hex()}, "tokenId": {"1"}}
	_, owner := h.getJSON("/api/v1/contracts/ownerOf", q)
	require.Equal(t, h.admin.Address.Hex(), owner["address"])

	_, info := h.getJSON("/api/v1/contracts/tokenMediaInfo", q)
	require.Equal(t, "ipfs://a", info["tokenURI"])
	require.Equal(t, contentHash("a"), info["contentHash"])

	_, byHash := h.getJSON("/api/v1/contracts/tokenIdByContentHash", url.Values{
		"contractAddress": {coll.Hex()},
		"contentHash":     {contentHash("a")},
	})
	require.Equal(t, "1", byHash["tokenId"])

	_, meta := h.getJSON("/api/v1/contracts/info", url.Values{"contractAddress": {coll.Hex()}})
	require.Equal(t, "Pixie", meta["name"])
	require.Equal(t, "PXE", meta["symbol"])
	require.Equal(t, "1", meta["supply"])
	require.Equal(t, true, meta["mintable"])
	require.Equal(t, true, meta["burnable"])
}

func TestFailuresAnswerWithStatusFalse(t *testing.T) {
	h := newHarness(t)
	coll := h.ledger.Deploy(ledgertest.Media, h.admin.Address, "Pixie", "PXE")

	missing := map[string]interface{}{
		"contract_address": coll.Hex(),
		"tokenId":          "1",
		"pk":               keyHex(h.admin),
	}
	res, body := h.post("/api/v1/contracts/mint", missing)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, false, body["status"])
	require.Equal(t, "contentHash is required", body["err"])

	h.mint(coll, 1, "a")
	h.ledger.Mine()
	dup := map[string]interface{}{
		"contract_address": coll.Hex(),
		"tokenId":          "1",
		"contentHash":      contentHash("b"),
		"pk":               keyHex(h.admin),
	}
	res, body = h.post("/api/v1/contracts/mint", dup)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, false, body["status"])
	require.Contains(t, body["err"], "token already minted")

	h.srv.cfg.StrictStatusCodes = true
	res, _ = h.post("/api/v1/contracts/mint", missing)
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
	res, _ = h.post("/api/v1/contracts/mint", dup)
	require.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)
	res, _ = h.getJSON("/api/v1/journal/0xdeadbeef", nil)
	require.Equal(t, http.StatusNotFound, res.StatusCode)

	// An unknown transaction is a state, not a failure.
	res, st := h.getJSON("/api/v1/contracts/mintStatus", url.Values{"tx": {common.HexToHash("0x01").Hex()}})
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, false, st["status"])
	require.Equal(t, "not_found", st["state"])
}

func TestFormEncodedMint(t *testing.T) {
	h := newHarness(t)
	coll := h.ledger.Deploy(ledgertest.Media, h.admin.Address, "Pixie", "PXE")

	form := url.Values{
		"contract_address": {coll.Hex()},
		"tokenId":          {"0x0a"},
		"tokenURI":         {"ipfs://form"},
		"contentHash":      {contentHash("form")},
		"pk":               {strings.TrimPrefix(keyHex(h.admin), "0x")},
	}
	req, err := http.NewRequest(http.MethodPost, h.ts.URL+"/api/v1/contracts/mint", strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	_, raw := h.do(req)
	body := decode(t, raw)
	require.Equal(t, true, body["status"], "body: %s", raw)

	receipts := h.ledger.Mine()
	require.Len(t, receipts, 1)
	require.True(t, ledger.Succeeded(receipts[0]))
	id, err := ledger.TokenID(receipts[0])
	require.NoError(t, err)
	require.Equal(t, int64(10), id.Int64())
}

func TestMintPriceDoesNotSubmit(t *testing.T) {
	h := newHarness(t)
	coll := h.ledger.Deploy(ledgertest.Media, h.admin.Address, "Pixie", "PXE")

	_, body := h.post("/api/v1/contracts/mintPrice", map[string]interface{}{
		"contract_address": coll.Hex(),
		"tokenId":          "1",
		"contentHash":      contentHash("a"),
		"pk":               keyHex(h.admin),
	})
	require.Equal(t, true, body["status"], "body: %v", body)
	gasLimit := orchestrator.PadGas(ledgertest.CallGas)
	want := new(big.Int).Mul(big.NewInt(1_000_000_000), new(big.Int).SetUint64(gasLimit))
	require.Equal(t, want.String(), body["mintPrice"].(json.Number).String())
	require.Equal(t, "100000", body["gasEstimate"].(json.Number).String())
	require.Zero(t, h.ledger.Sends())
}

func TestNativeTransferCarriesMemo(t *testing.T) {
	h := newHarness(t)
	sender := newSigner(t)
	recipient := newSigner(t)
	oneEther := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	h.ledger.Fund(sender.Address, new(big.Int).Mul(oneEther, big.NewInt(10)))

	_, body := h.post("/api/v1/contracts/transfer", map[string]interface{}{
		"pk":        keyHex(sender),
		"toAddress": recipient.Address.Hex(),
		"amount":    oneEther.String(),
		"memo":      "thanks",
	})
	require.Equal(t, true, body["status"], "body: %v", body)
	tx := body["transactionHash"].(string)
	h.ledger.Mine()

	_, raw := h.get("/api/v1/contracts/getMemoByTransactionHash", url.Values{"transactionHash": {tx}})
	require.Equal(t, "thanks", string(raw))

	_, raw = h.get("/getBalanceOf", url.Values{"address": {recipient.Address.Hex()}})
	require.Equal(t, "1.0", string(raw))

	_, raw = h.get("/getBalanceOf", url.Values{"address": {"not-an-address"}})
	require.Equal(t, "0", string(raw))

	// Multi-asset collections take no value transfers.
	res, _ := h.get("/api/v1/media1155/contracts/getMemoByTransactionHash", url.Values{"transactionHash": {tx}})
	require.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestBurnRemovesToken(t *testing.T) {
	h := newHarness(t)
	coll := h.ledger.Deploy(ledgertest.Media, h.admin.Address, "Pixie", "PXE")
	h.mint(coll, 3, "c")
	h.ledger.Mine()

	_, body := h.post("/api/v1/contracts/burn", map[string]interface{}{
		"contract_address": coll.Hex(),
		"tokenId":          "3",
		"pk":               keyHex(h.admin),
	})
	require.Equal(t, true, body["status"], "body: %v", body)
	require.Equal(t, "submitted", body["outcome"])
	h.ledger.Mine()

	_, owner := h.getJSON("/api/v1/contracts/ownerOf", url.Values{"contract_address": {coll.Hex()}, "tokenId": {"3"}})
	require.Equal(t, false, owner["status"])
	require.Contains(t, owner["err"], "invalid token ID")
}

func TestMedia1155Routes(t *testing.T) {
	h := newHarness(t)
	coll := h.ledger.Deploy(ledgertest.Media1155, h.admin.Address, "Pixie Editions", "PXE")

	_, body := h.post("/api/v1/media1155/contracts/mint", map[string]interface{}{
		"contract_address": coll.Hex(),
		"tokenId":          "7",
		"contentHash":      contentHash("edition"),
		"amount":           "5",
		"pk":               keyHex(h.admin),
	})
	require.Equal(t, true, body["status"], "body: %v", body)
	tx := body["transactionHash"].(string)
	h.ledger.Mine()

	_, st := h.getJSON("/api/v1/media1155/contracts/mintStatus", url.Values{"tx": {tx}})
	require.Equal(t, "7", st["token_id"])

	_, bal := h.getJSON("/api/v1/media1155/contracts/balanceOf", url.Values{
		"contract_address": {coll.Hex()},
		"account":          {h.admin.Address.Hex()},
		"tokenId":          {"7"},
	})
	require.Equal(t, "5", bal["balance"].(json.Number).String())
}

func TestNewAccount(t *testing.T) {
	h := newHarness(t)

	_, body := h.post("/api/v1/newAccount", map[string]interface{}{"words": 24})
	require.Equal(t, "eth", body["type"])
	mnemonic := body["mnemonic"].(string)
	require.Len(t, strings.Fields(mnemonic), 24)
	require.True(t, common.IsHexAddress(body["account"].(string)))

	acc, err := ledger.AccountFromMnemonic(mnemonic, "")
	require.NoError(t, err)
	require.Equal(t, acc.Address, body["account"])
	require.Equal(t, acc.PrivateKey, body["pk"])

	_, body = h.post("/api/v1/newAccount", map[string]interface{}{"type": "btc"})
	require.Equal(t, false, body["status"])
}

func TestCollectionsResolveByName(t *testing.T) {
	h := newHarness(t)
	coll := h.ledger.Deploy(ledgertest.Media, h.admin.Address, "Pixie", "PXE")
	reg, err := registry.Parse([]byte("network: testnet\ncollections:\n  Pixie: \"" + coll.Hex() + "\"\n"))
	require.NoError(t, err)
	h.srv.registry = reg

	_, body := h.getJSON("/api/v1/collections", nil)
	require.Equal(t, "testnet", body["network"])
	entries := body["collections"].([]interface{})
	require.Len(t, entries, 1)
	require.Equal(t, "pixie", entries[0].(map[string]interface{})["name"])

	_, minted := h.post("/api/v1/contracts/mint", map[string]interface{}{
		"contract_address": "pixie",
		"tokenId":          "1",
		"contentHash":      contentHash("named"),
		"pk":               keyHex(h.admin),
	})
	require.Equal(t, true, minted["status"], "body: %v", minted)
	h.ledger.Mine()

	_, raw := h.get("/getTotalSupply", url.Values{"contract_address": {"pixie"}})
	require.Equal(t, "1", string(raw))
	_, raw = h.get("/getTotalSupply", url.Values{"contract_address": {"unknown"}})
	require.Equal(t, "0", string(raw))
}

func TestJournalList(t *testing.T) {
	h := newHarness(t)
	coll := h.ledger.Deploy(ledgertest.Media, h.admin.Address, "Pixie", "PXE")
	h.mint(coll, 1, "a")
	h.mint(coll, 2, "b")
	h.ledger.Mine()

	require.Eventually(t, func() bool {
		_, body := h.getJSON("/api/v1/journal", url.Values{"state": {"confirmed"}})
		out, _ := body["outcomes"].([]interface{})
		return len(out) == 2
	}, 2*time.Second, 5*time.Millisecond)

	_, body := h.getJSON("/api/v1/journal", url.Values{"state": {"bogus"}})
	require.Equal(t, false, body["status"])
	_, body = h.getJSON("/api/v1/journal", url.Values{"limit": {"-1"}})
	require.Equal(t, false, body["status"])
}

func TestRateLimitGuardsAPIOnly(t *testing.T) {
	h := newHarness(t)
	h.srv.limiter = newRateLimiter(1, 1, time.Minute)

	res, _ := h.get("/api/v1/collections", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	res, raw := h.get("/api/v1/collections", nil)
	require.Equal(t, http.StatusTooManyRequests, res.StatusCode)
	require.Equal(t, "rate limit exceeded", decode(t, raw)["err"])

	res, _ = h.get("/health", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
}

func TestRateLimiterEvictsIdleClients(t *testing.T) {
	l := newRateLimiter(1, 1, time.Second)
	now := time.Now()
	require.True(t, l.allow("ip:a", now))
	require.False(t, l.allow("ip:a", now))
	for i := 0; i < 511; i++ {
		l.allow("ip:b", now.Add(time.Hour))
	}
	_, ok := l.byKey["ip:a"]
	require.False(t, ok)

	require.Nil(t, newRateLimiter(0, 5, time.Minute))
	require.True(t, (*rateLimiter)(nil).allow("anyone", now))
}

func TestHealthAndStatus(t *testing.T) {
	h := newHarness(t)

	res, raw := h.get("/health", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "OK", string(raw))

	req, err := http.NewRequest(http.MethodOptions, h.ts.URL+"/health", nil)
	require.NoError(t, err)
	res, _ = h.do(req)
	require.Equal(t, http.StatusNoContent, res.StatusCode)
	require.Equal(t, "*", res.Header.Get("Access-Control-Allow-Origin"))

	_, status := h.getJSON("/status", nil)
	require.Equal(t, "1337", status["chain_id"])
	require.Equal(t, []interface{}{"media", "media1155", "mediaA"}, status["variants"])
	deps := status["deps"].(map[string]interface{})
	require.Equal(t, true, deps["rpc_reachable"])
	caps := status["capabilities"].(map[string]interface{})
	require.Equal(t, true, caps["journal"])
	require.Equal(t, false, caps["rate_limit"])
}

func TestRequestIDHeader(t *testing.T) {
	h := newHarness(t)

	res, _ := h.get("/health", nil)
	assigned := res.Header.Get(requestIDHeader)
	_, err := ulid.ParseStrict(assigned)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, h.ts.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set(requestIDHeader, assigned)
	res, _ = h.do(req)
	require.Equal(t, assigned, res.Header.Get(requestIDHeader))

	req, err = http.NewRequest(http.MethodGet, h.ts.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set(requestIDHeader, "not a ulid")
	res, _ = h.do(req)
	require.NotEqual(t, "not a ulid", res.Header.Get(requestIDHeader))

	// Failures are logged with the request id.
	_, _ = h.post("/api/v1/contracts/mint", map[string]interface{}{})
	var found bool
	for _, e := range h.hook.AllEntries() {
		if e.Message == "Handler: request failed" {
			found = e.Data["request_id"] != nil
		}
	}
	require.True(t, found)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t)
	h.get("/health", nil)

	res, raw := h.get("/metrics", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Contains(t, string(raw), `mediagate_http_request_duration_seconds_count{code="200",method="GET",route="/health"} 1`)
}
