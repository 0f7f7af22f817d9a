package types

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

const (
	AddressLength   = 32
	SignatureLength = 65

	// TypeNameSeparator joins the address, module and type of a fully qualified asset type.
	TypeNameSeparator = "::"

	// SuiTypeArg is the asset type of the native coin.
	SuiTypeArg = "0x2::sui::SUI"

	// MistPerSui is the number of base units in one SUI.
	MistPerSui = 1_000_000_000
)

// Address is a 32 byte ledger address.
type Address [AddressLength]byte

// ParseAddress decodes a hex address with or without the 0x prefix. Short
// addresses are left padded with zeros, so "0x2" is the framework address.
func ParseAddress(s string) (Address, error) {
	var addr Address

	h := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	if h == "" {
		return addr, fmt.Errorf("empty address")
	}
	if len(h) > AddressLength*2 {
		return addr, fmt.Errorf("address %q is longer than %d bytes", s, AddressLength)
	}
	if len(h)%2 == 1 {
		h = "0" + h
	}
	b, err := hex.DecodeString(h)
	if err != nil {
		return addr, fmt.Errorf("address %q is not valid hex: %w", s, err)
	}
	copy(addr[AddressLength-len(b):], b)
	return addr, nil
}

// MustParseAddress is ParseAddress for constants and tests.
func MustParseAddress(s string) Address {
	addr, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return addr
}

func (a Address) Bytes() []byte {
	return a[:]
}

func (a Address) String() string {
	return hexutil.Encode(a[:])
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// AssetTypeName is a fully qualified fungible asset type, e.g. 0x2::sui::SUI.
type AssetTypeName struct {
	ModuleAddress Address
	ModuleName    string
	TypeName      string

	// addressLiteral keeps the address as the caller wrote it so String reproduces the input.
	addressLiteral string
}

// ParseAssetTypeName splits s on "::" into exactly three parts. Any other shape,
// including empty parts or an address that is not hex, is ErrMalformedTypeName.
func ParseAssetTypeName(s string) (AssetTypeName, error) {
	parts := strings.Split(s, TypeNameSeparator)
	if len(parts) != 3 {
		return AssetTypeName{}, fmt.Errorf("%w: %q has %d parts, expected 3", ErrMalformedTypeName, s, len(parts))
	}
	for i, p := range parts {
		if p == "" {
			return AssetTypeName{}, fmt.Errorf("%w: %q has an empty part at index %d", ErrMalformedTypeName, s, i)
		}
	}
	addr, err := ParseAddress(parts[0])
	if err != nil {
		return AssetTypeName{}, fmt.Errorf("%w: %v", ErrMalformedTypeName, err)
	}
	return AssetTypeName{
		ModuleAddress:  addr,
		ModuleName:     parts[1],
		TypeName:       parts[2],
		addressLiteral: parts[0],
	}, nil
}

func (a AssetTypeName) String() string {
	addr := a.addressLiteral
	if addr == "" {
		addr = a.ModuleAddress.String()
	}
	return strings.Join([]string{addr, a.ModuleName, a.TypeName}, TypeNameSeparator)
}

// IsZero reports whether a was never set, as for operations that carry no asset.
func (a AssetTypeName) IsZero() bool {
	return a.ModuleName == "" && a.TypeName == ""
}

func (a AssetTypeName) MarshalText() ([]byte, error) {
	if a.IsZero() {
		return []byte{}, nil
	}
	return []byte(a.String()), nil
}

func (a *AssetTypeName) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*a = AssetTypeName{}
		return nil
	}
	parsed, err := ParseAssetTypeName(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// OperationPayload is the signed content of one vault operation.
type OperationPayload struct {
	PaymentId uint64        `json:"paymentId"`
	ProjectId uint64        `json:"projectId"`
	Account   Address       `json:"account"`
	AssetType AssetTypeName `json:"assetType"`
	Amount    uint64        `json:"amount"`
	Deadline  uint64        `json:"deadline"`
}

// Signature is a recoverable secp256k1 signature laid out as r || s || v.
type Signature [SignatureLength]byte

func SignatureFromBytes(b []byte) (Signature, error) {
	var sig Signature
	if len(b) != SignatureLength {
		return sig, fmt.Errorf("signature must be %d bytes, got %d", SignatureLength, len(b))
	}
	copy(sig[:], b)
	return sig, nil
}

func (s Signature) Bytes() []byte {
	return s[:]
}

func (s Signature) String() string {
	return hexutil.Encode(s[:])
}

func (s Signature) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Signature) UnmarshalText(text []byte) error {
	b, err := hexutil.Decode(string(text))
	if err != nil {
		return fmt.Errorf("invalid signature hex: %w", err)
	}
	sig, err := SignatureFromBytes(b)
	if err != nil {
		return err
	}
	*s = sig
	return nil
}

// EpochInfo is the subset of the ledger's system state used for deadlines.
type EpochInfo struct {
	Epoch           uint64 `json:"epoch"`
	EpochStartMs    uint64 `json:"epochStartTimestampMs"`
	EpochDurationMs uint64 `json:"epochDurationMs"`
}

// MoveArgument is one positional argument of an entry point call.
type MoveArgument struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

// PreparedOperation is a fully authorized vault operation ready for submission.
type PreparedOperation struct {
	Id             string           `json:"id"`
	Kind           OperationKind    `json:"kind"`
	Target         string           `json:"target"`
	VaultId        string           `json:"vaultId,omitempty"`
	Payload        OperationPayload `json:"payload"`
	CanonicalBytes hexutil.Bytes    `json:"canonicalBytes,omitempty"`
	Digest         common.Hash      `json:"digest"`
	Signature      Signature        `json:"signature"`
	Signer         common.Address   `json:"signer"`
	Signers        []common.Address `json:"signers,omitempty"`
	Arguments      []MoveArgument   `json:"arguments"`
	TypeArguments  []string         `json:"typeArguments,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
}

// ObjectChange is one entry of a transaction's object changes.
type ObjectChange struct {
	Type       string `json:"type"`
	ObjectId   string `json:"objectId,omitempty"`
	ObjectType string `json:"objectType,omitempty"`
	PackageId  string `json:"packageId,omitempty"`
	Sender     string `json:"sender,omitempty"`
}

// RawEvent is an event as reported by the ledger, before decoding.
type RawEvent struct {
	Type       string         `json:"type"`
	Sender     string         `json:"sender,omitempty"`
	ParsedJson map[string]any `json:"parsedJson"`
}

// TransactionResult is what the submitter reports for an executed transaction.
type TransactionResult struct {
	Digest        string         `json:"digest"`
	Status        string         `json:"status"`
	Error         string         `json:"error,omitempty"`
	Events        []RawEvent     `json:"events"`
	ObjectChanges []ObjectChange `json:"objectChanges"`
}

const (
	TransactionStatusSuccess = "success"
	TransactionStatusFailure = "failure"
)

// RewardVaultState is the vault object as persisted on the ledger.
type RewardVaultState struct {
	Id      string           `json:"id"`
	Owner   Address          `json:"owner"`
	Signers []common.Address `json:"signers"`
}

// HasSigner reports whether addr is in the authorized signer set.
func (s *RewardVaultState) HasSigner(addr common.Address) bool {
	for _, signer := range s.Signers {
		if signer == addr {
			return true
		}
	}
	return false
}
