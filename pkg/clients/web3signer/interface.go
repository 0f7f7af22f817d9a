package web3signer

import (
	"context"
	"net/http"
)

// IWeb3Signer is the part of the Web3Signer REST API used for authorization signing.
type IWeb3Signer interface {
	// SetHttpClient replaces the HTTP client, mainly for tests.
	SetHttpClient(client *http.Client)

	// ListPublicKeys returns the secp256k1 public keys loaded in the signer.
	ListPublicKeys(ctx context.Context) ([]string, error)

	// SignRaw signs keccak256(data) with the key named by identifier, without any
	// Ethereum message prefix, and returns the 65 byte r || s || v signature as hex.
	SignRaw(ctx context.Context, identifier string, data []byte) (string, error)

	// Upcheck reports whether the signer is reachable.
	Upcheck(ctx context.Context) error
}

var _ IWeb3Signer = (*Client)(nil)
