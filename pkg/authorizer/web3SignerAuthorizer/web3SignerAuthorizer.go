package web3SignerAuthorizer

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"github.com/Layr-Labs/reward-vault-authorizer/pkg/authorizer"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/clients/web3signer"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/types"
)

// Web3SignerAuthorizer signs through a remote Web3Signer. The signer hashes the
// payload with keccak256 itself, so the canonical bytes are sent as-is.
type Web3SignerAuthorizer struct {
	client     web3signer.IWeb3Signer
	identifier string
	address    common.Address
	logger     *zap.Logger
}

var _ authorizer.IAuthorizer = (*Web3SignerAuthorizer)(nil)

// NewWeb3SignerAuthorizer signs with the key named by identifier. Every signature is
// checked to recover to address.
func NewWeb3SignerAuthorizer(client web3signer.IWeb3Signer, identifier string, address common.Address, logger *zap.Logger) (*Web3SignerAuthorizer, error) {
	if client == nil {
		return nil, fmt.Errorf("web3signer client is required")
	}
	if identifier == "" {
		return nil, fmt.Errorf("web3signer key identifier is required")
	}
	if address == (common.Address{}) {
		return nil, fmt.Errorf("web3signer signing address is required")
	}
	return &Web3SignerAuthorizer{
		client:     client,
		identifier: identifier,
		address:    address,
		logger:     logger,
	}, nil
}

func (w *Web3SignerAuthorizer) Address() common.Address {
	return w.address
}

func (w *Web3SignerAuthorizer) Sign(ctx context.Context, canonical []byte) (*authorizer.SignedMessage, error) {
	sigHex, err := w.client.SignRaw(ctx, w.identifier, canonical)
	if err != nil {
		return nil, fmt.Errorf("%w: web3signer: %v", types.ErrSigning, err)
	}
	raw, err := hexutil.Decode(sigHex)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode web3signer signature: %v", types.ErrSigning, err)
	}

	msg, err := authorizer.NewSignedMessage(canonical, authorizer.Digest(canonical), raw)
	if err != nil {
		return nil, err
	}
	if err := authorizer.VerifySignature(canonical, msg.Signature, w.address); err != nil {
		return nil, fmt.Errorf("%w: web3signer signature does not recover to %s: %v", types.ErrSigning, w.address.Hex(), err)
	}

	w.logger.Sugar().Debugw("Signed canonical payload with Web3Signer",
		"signer", w.address.Hex(),
		"digest", msg.Digest.Hex(),
	)
	return msg, nil
}
