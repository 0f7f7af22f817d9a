package authorizer

import (
	"math/big"
	"testing"

	"github.com/Layr-Labs/reward-vault-authorizer/pkg/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signRaw(t *testing.T, canonical []byte) (*SignedMessage, []byte) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	digest := Digest(canonical)
	raw, err := crypto.Sign(digest[:], key)
	require.NoError(t, err)

	signed, err := NewSignedMessage(canonical, digest, raw)
	require.NoError(t, err)
	return signed, crypto.PubkeyToAddress(key.PublicKey).Bytes()
}

func TestRecoverSigner(t *testing.T) {
	canonical := []byte("payload")
	signed, addr := signRaw(t, canonical)

	t.Run("ethereum recovery byte", func(t *testing.T) {
		recovered, err := RecoverSigner(canonical, signed.Signature)
		require.NoError(t, err)
		assert.Equal(t, addr, recovered.Bytes())
	})

	t.Run("raw recovery byte", func(t *testing.T) {
		sig := signed.Signature
		sig[64] -= RecoveryIdOffset
		recovered, err := RecoverSigner(canonical, sig)
		require.NoError(t, err)
		assert.Equal(t, addr, recovered.Bytes())
	})

	t.Run("invalid recovery byte", func(t *testing.T) {
		sig := signed.Signature
		sig[64] = 5
		_, err := RecoverSigner(canonical, sig)
		require.Error(t, err)
	})

	t.Run("high s is rejected", func(t *testing.T) {
		sig := signed.Signature
		s := new(big.Int).SetBytes(sig[32:64])
		flipped := new(big.Int).Sub(secp256k1N, s)
		flipped.FillBytes(sig[32:64])
		_, err := RecoverSigner(canonical, sig)
		require.Error(t, err)
	})
}

func TestVerifySignature_ByteFlip(t *testing.T) {
	canonical := []byte("0123456789abcdef0123456789abcdef")
	signed, addr := signRaw(t, canonical)

	var expected [20]byte
	copy(expected[:], addr)
	require.NoError(t, VerifySignature(canonical, signed.Signature, expected))

	for i := range canonical {
		tampered := append([]byte{}, canonical...)
		tampered[i] ^= 0x01
		require.Error(t, VerifySignature(tampered, signed.Signature, expected), "byte %d", i)
	}
}

func TestNewSignedMessage(t *testing.T) {
	_, err := NewSignedMessage(nil, Digest(nil), make([]byte, 64))
	require.ErrorIs(t, err, types.ErrSigning)

	raw := make([]byte, 65)
	raw[64] = 1
	signed, err := NewSignedMessage(nil, Digest(nil), raw)
	require.NoError(t, err)
	assert.Equal(t, byte(28), signed.Signature[64])

	raw[64] = 27
	signed, err = NewSignedMessage(nil, Digest(nil), raw)
	require.NoError(t, err)
	assert.Equal(t, byte(27), signed.Signature[64])
}

func TestNormalizeS(t *testing.T) {
	low := big.NewInt(12345)
	s, flipped := NormalizeS(low)
	assert.False(t, flipped)
	assert.Equal(t, low, s)

	high := new(big.Int).Sub(secp256k1N, low)
	s, flipped = NormalizeS(high)
	assert.True(t, flipped)
	assert.Equal(t, 0, s.Cmp(low))
}
