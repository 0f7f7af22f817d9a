// Package encoding produces the canonical bytes a vault operation is signed over.
//
// Layout, with no length prefixes between fields:
//
//	payment_id (8, LE) | project_id (8, LE) | account (32) |
//	module_address (32) | "::" | module_name | "::" | type_name |
//	amount (8, LE) | deadline (8, LE)
//
// The asset type segment is not self-delimiting. The output is only ever hashed,
// never decoded, and must stay byte-for-byte compatible with the on-chain verifier.
package encoding

import (
	"encoding/binary"

	"github.com/Layr-Labs/reward-vault-authorizer/pkg/types"
)

// Uint64Size is the width of every integer field.
const Uint64Size = 8

// fixedSize is the length of the payload minus the variable asset type names.
const fixedSize = 4*Uint64Size + 2*types.AddressLength + 2*len(types.TypeNameSeparator)

// AppendUint64 appends v as a fixed-width little-endian u64.
func AppendUint64(dst []byte, v uint64) []byte {
	return binary.LittleEndian.AppendUint64(dst, v)
}

// PutUint64 returns v as 8 little-endian bytes.
func PutUint64(v uint64) []byte {
	return AppendUint64(make([]byte, 0, Uint64Size), v)
}

// AppendAssetType appends address || "::" || module || "::" || type.
func AppendAssetType(dst []byte, name types.AssetTypeName) []byte {
	dst = append(dst, name.ModuleAddress[:]...)
	dst = append(dst, types.TypeNameSeparator...)
	dst = append(dst, name.ModuleName...)
	dst = append(dst, types.TypeNameSeparator...)
	return append(dst, name.TypeName...)
}

// EncodeAssetType returns the asset type segment of the canonical bytes.
func EncodeAssetType(name types.AssetTypeName) []byte {
	return AppendAssetType(nil, name)
}

// EncodeTypeString parses a fully qualified type string and encodes it.
func EncodeTypeString(s string) ([]byte, error) {
	name, err := types.ParseAssetTypeName(s)
	if err != nil {
		return nil, err
	}
	return EncodeAssetType(name), nil
}

// Encode returns the canonical bytes for payload.
func Encode(payload *types.OperationPayload) []byte {
	size := fixedSize + len(payload.AssetType.ModuleName) + len(payload.AssetType.TypeName)
	out := make([]byte, 0, size)

	out = AppendUint64(out, payload.PaymentId)
	out = AppendUint64(out, payload.ProjectId)
	out = append(out, payload.Account[:]...)
	out = AppendAssetType(out, payload.AssetType)
	out = AppendUint64(out, payload.Amount)
	out = AppendUint64(out, payload.Deadline)

	return out
}

// EncodeSignerSet encodes EVM signer addresses as the vector<vector<u8>> argument
// of create_reward_vault: a ULEB128 count, then each address with its own ULEB128 length.
func EncodeSignerSet(signers [][]byte) []byte {
	out := appendUleb128(nil, uint64(len(signers)))
	for _, s := range signers {
		out = appendUleb128(out, uint64(len(s)))
		out = append(out, s...)
	}
	return out
}

// EncodeByteVector encodes b as a vector<u8> argument.
func EncodeByteVector(b []byte) []byte {
	return append(appendUleb128(nil, uint64(len(b))), b...)
}

func appendUleb128(dst []byte, v uint64) []byte {
	for v >= 0x80 {
		dst = append(dst, byte(v)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}
