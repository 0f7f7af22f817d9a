//go:build property
// +build property

package encoding

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/Layr-Labs/reward-vault-authorizer/pkg/types"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestTypeNameRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("split then join reproduces the input", prop.ForAll(
		func(addr uint64, module, typeName string) bool {
			input := fmt.Sprintf("0x%x::%s::%s", addr, module, typeName)

			name, err := types.ParseAssetTypeName(input)
			if err != nil {
				return false
			}
			return name.String() == input
		},
		gen.UInt64(),
		gen.Identifier(),
		gen.Identifier(),
	))

	properties.Property("wrong part count is rejected", prop.ForAll(
		func(parts []string) bool {
			if len(parts) == 3 {
				return true
			}
			_, err := types.ParseAssetTypeName(strings.Join(parts, "::"))
			return err != nil
		},
		gen.SliceOf(gen.Identifier()),
	))

	properties.TestingRun(t)
}

func TestEncodeDeterminismProperty(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("encoding the same payload twice is byte-identical", prop.ForAll(
		func(paymentId, projectId, amount, deadline uint64, module string) bool {
			p := &types.OperationPayload{
				PaymentId: paymentId,
				ProjectId: projectId,
				Account:   types.MustParseAddress("0x1"),
				AssetType: types.AssetTypeName{ModuleAddress: types.MustParseAddress("0x2"), ModuleName: module, TypeName: "T"},
				Amount:    amount,
				Deadline:  deadline,
			}
			return bytes.Equal(Encode(p), Encode(p))
		},
		gen.UInt64(), gen.UInt64(), gen.UInt64(), gen.UInt64(), gen.Identifier(),
	))

	properties.TestingRun(t)
}
