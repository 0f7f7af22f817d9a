package localAuthorizer

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/Layr-Labs/reward-vault-authorizer/pkg/authorizer"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

// LocalAuthorizer signs with a secp256k1 key held in process memory.
type LocalAuthorizer struct {
	logger     *zap.Logger
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

var _ authorizer.IAuthorizer = (*LocalAuthorizer)(nil)

// NewLocalAuthorizerFromHex loads a hex encoded private key, with or without 0x.
func NewLocalAuthorizerFromHex(privateKeyHex string, logger *zap.Logger) (*LocalAuthorizer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: error loading private key: %v", types.ErrSigning, err)
	}
	return NewLocalAuthorizer(key, logger), nil
}

func NewLocalAuthorizer(privateKey *ecdsa.PrivateKey, logger *zap.Logger) *LocalAuthorizer {
	return &LocalAuthorizer{
		logger:     logger,
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
	}
}

func (la *LocalAuthorizer) Address() common.Address {
	return la.address
}

// Sign hashes canonical with keccak256 and signs the digest.
func (la *LocalAuthorizer) Sign(ctx context.Context, canonical []byte) (*authorizer.SignedMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	digest := authorizer.Digest(canonical)
	sig, err := crypto.Sign(digest[:], la.privateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to sign digest: %v", types.ErrSigning, err)
	}

	la.logger.Sugar().Debugw("Signed canonical payload",
		"signer", la.address.Hex(),
		"digest", digest.Hex(),
	)
	return authorizer.NewSignedMessage(canonical, digest, sig)
}
