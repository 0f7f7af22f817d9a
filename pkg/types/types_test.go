package types

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddress(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "short framework address", input: "0x2", want: "0x0000000000000000000000000000000000000000000000000000000000000002"},
		{name: "no prefix", input: "01", want: "0x0000000000000000000000000000000000000000000000000000000000000001"},
		{name: "full width", input: "0x26cb86f2b72973774b10c5e25871194c74c5c2770b6812327a36d3fe20b58c66", want: "0x26cb86f2b72973774b10c5e25871194c74c5c2770b6812327a36d3fe20b58c66"},
		{name: "empty", input: "", wantErr: true},
		{name: "prefix only", input: "0x", wantErr: true},
		{name: "not hex", input: "0xzz", wantErr: true},
		{name: "too long", input: "0x" + "00000000000000000000000000000000000000000000000000000000000000001", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr, err := ParseAddress(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, addr.String())
		})
	}
}

func TestParseAssetTypeName(t *testing.T) {
	t.Run("native coin", func(t *testing.T) {
		name, err := ParseAssetTypeName(SuiTypeArg)
		require.NoError(t, err)
		assert.Equal(t, MustParseAddress("0x2"), name.ModuleAddress)
		assert.Equal(t, "sui", name.ModuleName)
		assert.Equal(t, "SUI", name.TypeName)
		assert.Equal(t, SuiTypeArg, name.String())
	})

	t.Run("malformed", func(t *testing.T) {
		for _, input := range []string{
			"",
			"SUI",
			"0x2::sui",
			"0x2::sui::SUI::extra",
			"0x2::::SUI",
			"::sui::SUI",
			"0xnothex::sui::SUI",
		} {
			_, err := ParseAssetTypeName(input)
			require.Error(t, err, input)
			assert.True(t, errors.Is(err, ErrMalformedTypeName), input)
		}
	})

	t.Run("zero value renders canonical address", func(t *testing.T) {
		name := AssetTypeName{ModuleAddress: MustParseAddress("0x2"), ModuleName: "sui", TypeName: "SUI"}
		assert.Equal(t, "0x0000000000000000000000000000000000000000000000000000000000000002::sui::SUI", name.String())
	})

	t.Run("json keeps the caller spelling", func(t *testing.T) {
		payload := OperationPayload{PaymentId: 7, AssetType: mustAssetType(t, SuiTypeArg)}
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"assetType":"0x2::sui::SUI"`)

		var decoded OperationPayload
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Equal(t, payload, decoded)
	})

	t.Run("unset asset type survives json", func(t *testing.T) {
		data, err := json.Marshal(OperationPayload{})
		require.NoError(t, err)
		assert.Contains(t, string(data), `"assetType":""`)

		var decoded OperationPayload
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.True(t, decoded.AssetType.IsZero())
	})
}

func TestOperationKind(t *testing.T) {
	tests := []struct {
		kind       OperationKind
		entryPoint string
		eventType  string
		signed     bool
	}{
		{OperationKindCreateVault, EntryPointCreateVault, "", false},
		{OperationKindDeposit, EntryPointDeposit, DepositEventType, true},
		{OperationKindClaim, EntryPointClaim, RewardsClaimedEventType, true},
		{OperationKindWithdraw, EntryPointWithdraw, WithdrawalEventType, true},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			assert.Equal(t, tt.entryPoint, tt.kind.EntryPoint())
			assert.Equal(t, tt.eventType, tt.kind.EventType())
			assert.Equal(t, tt.signed, tt.kind.RequiresSignature())

			parsed, err := ParseOperationKind(tt.kind.String())
			require.NoError(t, err)
			assert.Equal(t, tt.kind, parsed)
		})
	}

	_, err := ParseOperationKind("transfer")
	require.Error(t, err)

	_, err = OperationKindUnknown.MarshalText()
	require.Error(t, err)
}

func TestSignatureText(t *testing.T) {
	var sig Signature
	sig[0] = 0xab
	sig[64] = 27

	text, err := sig.MarshalText()
	require.NoError(t, err)

	var decoded Signature
	require.NoError(t, decoded.UnmarshalText(text))
	assert.Equal(t, sig, decoded)

	require.Error(t, decoded.UnmarshalText([]byte("0x1234")))
}

func mustAssetType(t *testing.T, s string) AssetTypeName {
	t.Helper()
	name, err := ParseAssetTypeName(s)
	require.NoError(t, err)
	return name
}
