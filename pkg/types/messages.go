package types

import "github.com/ethereum/go-ethereum/common"

// AuthorizeRequest asks the authorizer to prepare and sign one operation.
type AuthorizeRequest struct {
	Kind      string   `json:"kind"`
	Account   string   `json:"account,omitempty"`
	AssetType string   `json:"assetType,omitempty"`
	Amount    uint64   `json:"amount,omitempty"`
	ProjectId *uint64  `json:"projectId,omitempty"`
	Signers   []string `json:"signers,omitempty"`
}

type AuthorizeResponse struct {
	Operation *PreparedOperation `json:"operation"`
}

// ConfirmRequest reports the digest of the transaction that carried an authorization.
type ConfirmRequest struct {
	Id     string `json:"id"`
	Digest string `json:"digest"`
}

type ConfirmResponse struct {
	Id     string     `json:"id"`
	Digest string     `json:"digest"`
	Event  TypedEvent `json:"event"`
}

type SignerResponse struct {
	Address common.Address `json:"address"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
