package orchestrator

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/pixiechain/mediagate/pkg/ledger"
	"github.com/pixiechain/mediagate/pkg/ledger/ledgertest"
)

func TestLookupVariant(t *testing.T) {
	for _, name := range []string{"media", "MEDIA1155", " mediaA "} {
		v, err := LookupVariant(name)
		require.NoError(t, err, name)
		require.NotNil(t, v)
	}
	_, err := LookupVariant("erc20")
	require.ErrorContains(t, err, "media, media1155, mediaA")
}

func TestBuildRejectsIncompleteRequests(t *testing.T) {
	signer := newSigner(t)
	coll := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	to := common.HexToAddress("0x00000000000000000000000000000000000000bb")

	cases := []struct {
		name    string
		variant *Variant
		req     *Request
		want    string
	}{
		{"no collection", Media, &Request{Kind: KindFinalize, Signer: signer}, "contract_address is required"},
		{"media create without id", Media, &Request{Kind: KindCreate, Collection: coll, Signer: signer, Fingerprint: fingerprint("x")}, "tokenId is required"},
		{"media transfer without recipient", Media, &Request{Kind: KindTransfer, Collection: coll, Signer: signer, TokenID: big.NewInt(1)}, "toAddress is required"},
		{"media empty uri", Media, &Request{Kind: KindUpdateMetadata, Collection: coll, Signer: signer, TokenID: big.NewInt(1), URI: "  "}, "tokenURI is required"},
		{"1155 zero amount", Media1155, &Request{Kind: KindCreate, Collection: coll, Signer: signer, TokenID: big.NewInt(1), Fingerprint: fingerprint("x"), Quantity: big.NewInt(0)}, "amount must be positive"},
		{"1155 finalize", Media1155, &Request{Kind: KindFinalize, Collection: coll, Signer: signer}, "media1155 does not support finalize"},
		{"1155 value transfer", Media1155, &Request{Kind: KindTransfer, Signer: signer, To: &to, Value: big.NewInt(1)}, "media1155 does not support value transfers"},
		{"mediaA no quantity", MediaA, &Request{Kind: KindCreate, Collection: coll, Signer: signer}, "quantity must be positive"},
		{"negative value", Media, &Request{Kind: KindTransfer, Signer: signer, To: &to, Value: big.NewInt(-1)}, "amount must be positive"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.variant.Build(tc.req)
			require.EqualError(t, err, tc.want)
			phase, ok := PhaseOf(err)
			require.True(t, ok)
			require.Equal(t, PhaseValidate, phase)
		})
	}
}

func TestMedia1155CreateReadsIDFromTransferSingle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	coll := f.ledger.Deploy(ledgertest.Media1155, f.admin.Address, "Pixie Editions", "PXE1155")

	req := &Request{
		Kind:        KindCreate,
		Collection:  coll,
		Signer:      f.admin,
		TokenID:     big.NewInt(77),
		Fingerprint: fingerprint("edition"),
		Quantity:    big.NewInt(10),
	}
	res, err := f.orch.Create(ctx, Media1155, req)
	require.NoError(t, err)
	f.ledger.Mine()

	st, err := f.orch.Status(ctx, Media1155, res.Handle.Hash)
	require.NoError(t, err)
	require.Equal(t, StateConfirmed, st.State)
	require.Equal(t, int64(77), st.TokenID.Int64())

	again, err := f.orch.Create(ctx, Media1155, req)
	require.NoError(t, err)
	require.Equal(t, OutcomeExisting, again.Outcome)
	require.Equal(t, int64(77), again.TokenID.Int64())

	out, err := f.orch.Read(ctx, Media1155, coll, "balanceOf", f.admin.Address, big.NewInt(77))
	require.NoError(t, err)
	require.Equal(t, int64(10), out[0].(*big.Int).Int64())
}

func TestMediaABatchCreateReportsFirstID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	coll := f.ledger.Deploy(ledgertest.MediaA, f.admin.Address, "Pixie Drops", "PXA")

	res, err := f.orch.Create(ctx, MediaA, &Request{Kind: KindCreate, Collection: coll, Signer: f.admin, Quantity: big.NewInt(3)})
	require.NoError(t, err)
	require.Equal(t, OutcomeSubmitted, res.Outcome)
	receipts := f.ledger.Mine()
	require.Len(t, receipts[0].Logs, 3)

	st, err := f.orch.Status(ctx, MediaA, res.Handle.Hash)
	require.NoError(t, err)
	require.Equal(t, int64(0), st.TokenID.Int64())

	_, err = f.orch.TokenIDByFingerprint(ctx, MediaA, coll, *fingerprint("x"))
	phase, _ := PhaseOf(err)
	require.Equal(t, PhaseValidate, phase)
}

func TestNativeTransferCarriesMemo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ledger.Fund(f.admin.Address, new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	to := common.HexToAddress("0x00000000000000000000000000000000000000bb")

	req := &Request{Kind: KindTransfer, Signer: f.admin, To: &to, Value: big.NewInt(500), Memo: "rent for march"}
	res, err := f.orch.Execute(ctx, Media, req)
	require.NoError(t, err)
	require.Equal(t, PadGas(ledgertest.TransferGas+16*uint64(len(req.Memo))), res.Quote.GasLimit)
	f.ledger.Mine()

	bal, err := f.orch.Balance(ctx, to)
	require.NoError(t, err)
	require.Equal(t, int64(500), bal.Int64())

	memo, err := f.orch.Memo(ctx, res.Handle.Hash)
	require.NoError(t, err)
	require.Equal(t, "rent for march", memo)

	_, err = f.orch.Memo(ctx, common.HexToHash("0x01"))
	require.ErrorIs(t, err, ledger.ErrTxNotFound)
}

func TestReadRejectsUnknownMethod(t *testing.T) {
	f := newFixture(t)
	_, err := f.orch.Read(context.Background(), MediaA, common.Address{}, "getTokenIdByContentHash")
	require.EqualError(t, err, "mediaA has no method getTokenIdByContentHash")
}
