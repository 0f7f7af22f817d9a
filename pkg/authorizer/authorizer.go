package authorizer

import (
	"context"
	"fmt"
	"math/big"

	"github.com/Layr-Labs/reward-vault-authorizer/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// RecoveryIdOffset is added to the raw recovery id in the EVM signature convention.
const RecoveryIdOffset = 27

var (
	secp256k1N     = crypto.S256().Params().N
	secp256k1HalfN = new(big.Int).Rsh(secp256k1N, 1)
)

// SignedMessage is canonical bytes together with their digest and signature.
type SignedMessage struct {
	Payload   []byte          `json:"payload"`
	Digest    common.Hash     `json:"digest"`    // keccak256(payload)
	Signature types.Signature `json:"signature"` // r || s || v, v in {27, 28}
}

// IAuthorizer signs canonical operation bytes with a secp256k1 key.
type IAuthorizer interface {
	// Sign hashes canonical with keccak256 and returns a recoverable signature.
	// Failures wrap types.ErrSigning.
	Sign(ctx context.Context, canonical []byte) (*SignedMessage, error)

	// Address is the EVM address the signatures recover to.
	Address() common.Address
}

// Digest is the keccak256 hash the authorizer signs.
func Digest(canonical []byte) common.Hash {
	return crypto.Keccak256Hash(canonical)
}

// RecoverSigner returns the address that produced sig over keccak256(canonical).
// The recovery byte may be 0/1 or 27/28.
func RecoverSigner(canonical []byte, sig types.Signature) (common.Address, error) {
	return RecoverDigestSigner(Digest(canonical), sig)
}

// RecoverDigestSigner is RecoverSigner for an already computed digest.
func RecoverDigestSigner(digest common.Hash, sig types.Signature) (common.Address, error) {
	raw, err := toRecoverable(sig)
	if err != nil {
		return common.Address{}, err
	}

	pub, err := crypto.SigToPub(digest[:], raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// VerifySignature checks that sig over canonical recovers to expected.
func VerifySignature(canonical []byte, sig types.Signature, expected common.Address) error {
	recovered, err := RecoverSigner(canonical, sig)
	if err != nil {
		return err
	}
	if recovered != expected {
		return fmt.Errorf("signature recovers to %s, expected %s", recovered.Hex(), expected.Hex())
	}
	return nil
}

// NewSignedMessage packs a raw 65 byte signature with v in {0, 1} into the EVM convention.
func NewSignedMessage(canonical []byte, digest common.Hash, raw []byte) (*SignedMessage, error) {
	if len(raw) != types.SignatureLength {
		return nil, fmt.Errorf("%w: signature must be %d bytes, got %d", types.ErrSigning, types.SignatureLength, len(raw))
	}

	var sig types.Signature
	copy(sig[:], raw)
	if sig[64] < RecoveryIdOffset {
		sig[64] += RecoveryIdOffset
	}

	return &SignedMessage{
		Payload:   canonical,
		Digest:    digest,
		Signature: sig,
	}, nil
}

// toRecoverable returns a copy of sig with v in {0, 1}, rejecting malleable (high-s) values.
func toRecoverable(sig types.Signature) ([]byte, error) {
	raw := make([]byte, types.SignatureLength)
	copy(raw, sig[:])

	v := raw[64]
	if v >= RecoveryIdOffset {
		v -= RecoveryIdOffset
	}
	if v > 1 {
		return nil, fmt.Errorf("invalid recovery id %d", sig[64])
	}
	raw[64] = v

	r := new(big.Int).SetBytes(raw[:32])
	s := new(big.Int).SetBytes(raw[32:64])
	if !crypto.ValidateSignatureValues(v, r, s, true) {
		return nil, fmt.Errorf("invalid signature values")
	}
	return raw, nil
}

// NormalizeS folds s into the lower half of the curve order and reports whether it flipped.
func NormalizeS(s *big.Int) (*big.Int, bool) {
	if s.Cmp(secp256k1HalfN) > 0 {
		return new(big.Int).Sub(secp256k1N, s), true
	}
	return s, false
}
