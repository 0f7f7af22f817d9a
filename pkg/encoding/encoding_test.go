package encoding

import (
	"bytes"
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"github.com/Layr-Labs/reward-vault-authorizer/pkg/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	goldenHex = "0100000000000000" + // payment_id
		"0000000000000000" + // project_id
		"0000000000000000000000000000000000000000000000000000000000000001" + // account
		"0000000000000000000000000000000000000000000000000000000000000002" + // 0x2
		"3a3a737569" + // ::sui
		"3a3a535549" + // ::SUI
		"6400000000000000" + // amount
		"0068e5cf8b010000" // deadline
	goldenDigestHex = "e82fdd9c90bb53b79d369377de82d9166be601e265615e9984c3bdd23485d09b"
)

func goldenPayload(t *testing.T) *types.OperationPayload {
	t.Helper()
	assetType, err := types.ParseAssetTypeName("0x2::sui::SUI")
	require.NoError(t, err)
	return &types.OperationPayload{
		PaymentId: 1,
		ProjectId: 0,
		Account:   types.MustParseAddress("0x01"),
		AssetType: assetType,
		Amount:    100,
		Deadline:  1700000000000,
	}
}

func TestEncode_GoldenVector(t *testing.T) {
	encoded := Encode(goldenPayload(t))

	require.Equal(t, goldenHex, hex.EncodeToString(encoded))
	require.Len(t, encoded, 106)
	require.Equal(t, goldenDigestHex, hex.EncodeToString(crypto.Keccak256(encoded)))
}

func TestEncode_Deterministic(t *testing.T) {
	payload := goldenPayload(t)

	first := Encode(payload)
	for i := 0; i < 100; i++ {
		require.Equal(t, first, Encode(payload), "Encoding should be deterministic")
	}
}

func TestEncode_FieldLayout(t *testing.T) {
	payload := goldenPayload(t)
	payload.PaymentId = 0x0102030405060708
	payload.ProjectId = 42
	payload.Amount = 0xdeadbeef
	payload.Deadline = 1

	encoded := Encode(payload)
	asset := EncodeAssetType(payload.AssetType)

	require.Equal(t, []byte{0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01}, encoded[0:8])
	require.Equal(t, PutUint64(42), encoded[8:16])
	require.Equal(t, payload.Account[:], encoded[16:48])
	require.Equal(t, asset, encoded[48:48+len(asset)])

	tail := encoded[48+len(asset):]
	require.Len(t, tail, 16)
	require.Equal(t, PutUint64(0xdeadbeef), tail[:8])
	require.Equal(t, PutUint64(1), tail[8:])
}

func TestEncode_EveryFieldContributes(t *testing.T) {
	base := Encode(goldenPayload(t))

	mutations := map[string]func(p *types.OperationPayload){
		"payment id": func(p *types.OperationPayload) { p.PaymentId++ },
		"project id": func(p *types.OperationPayload) { p.ProjectId++ },
		"account":    func(p *types.OperationPayload) { p.Account[31] = 0x02 },
		"module":     func(p *types.OperationPayload) { p.AssetType.ModuleName = "coin" },
		"type":       func(p *types.OperationPayload) { p.AssetType.TypeName = "USDC" },
		"amount":     func(p *types.OperationPayload) { p.Amount++ },
		"deadline":   func(p *types.OperationPayload) { p.Deadline++ },
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			p := goldenPayload(t)
			mutate(p)
			require.False(t, bytes.Equal(base, Encode(p)))
		})
	}
}

func TestEncodeTypeString(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		encoded, err := EncodeTypeString("0x2::sui::SUI")
		require.NoError(t, err)
		require.Len(t, encoded, types.AddressLength+len("::sui::SUI"))
		assert.Equal(t, "::sui::SUI", string(encoded[types.AddressLength:]))
	})

	t.Run("malformed", func(t *testing.T) {
		for _, input := range []string{"", "0x2", "0x2::sui", "0x2::sui::SUI::X", "a::b::c::d::e"} {
			_, err := EncodeTypeString(input)
			require.Error(t, err)
			require.True(t, errors.Is(err, types.ErrMalformedTypeName), input)
		}
	})
}

func TestTypeName_RoundTrip(t *testing.T) {
	for _, input := range []string{
		"0x2::sui::SUI",
		"0x0000000000000000000000000000000000000000000000000000000000000002::sui::SUI",
		"0xdba34672e30cb065b1f93e3ab55318768fd6fef66c15942c9f7cb846e2f900e7::usdc::USDC",
		"abc::my_module::MyType",
	} {
		name, err := types.ParseAssetTypeName(input)
		require.NoError(t, err)
		require.Equal(t, input, name.String())
		require.Equal(t, input, strings.Join([]string{strings.Split(input, "::")[0], name.ModuleName, name.TypeName}, "::"))
	}
}

func TestEncodeSignerSet(t *testing.T) {
	signer := bytes.Repeat([]byte{0xbd}, 20)

	encoded := EncodeSignerSet([][]byte{signer})
	require.Equal(t, byte(1), encoded[0])
	require.Equal(t, byte(20), encoded[1])
	require.Equal(t, signer, encoded[2:])

	require.Equal(t, []byte{0}, EncodeSignerSet(nil))
}

func TestEncodeByteVector(t *testing.T) {
	sig := bytes.Repeat([]byte{1}, 65)
	encoded := EncodeByteVector(sig)
	require.Equal(t, byte(65), encoded[0])
	require.Equal(t, sig, encoded[1:])

	long := bytes.Repeat([]byte{1}, 200)
	encoded = EncodeByteVector(long)
	require.Equal(t, []byte{0xc8, 0x01}, encoded[:2])
}
