package persistence

import (
	"time"

	"github.com/Layr-Labs/reward-vault-authorizer/pkg/types"
)

// AuthorizationStatus tracks an authorization from issue to execution
type AuthorizationStatus string

const (
	StatusPending   AuthorizationStatus = "pending"
	StatusConfirmed AuthorizationStatus = "confirmed"
	StatusFailed    AuthorizationStatus = "failed"
)

// AuthorizationRecord is the stored form of one issued authorization.
type AuthorizationRecord struct {
	// Operation is the prepared call exactly as it was handed out.
	Operation *types.PreparedOperation `json:"operation"`

	Status AuthorizationStatus `json:"status"`

	// TransactionDigest is set once the operation is confirmed on chain.
	TransactionDigest string `json:"transactionDigest,omitempty"`

	// Error holds the failure reason for StatusFailed.
	Error string `json:"error,omitempty"`

	// Caller is the authenticated subject that requested the authorization, if any.
	Caller string `json:"caller,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewAuthorizationRecord wraps op as a pending record
func NewAuthorizationRecord(op *types.PreparedOperation, caller string) *AuthorizationRecord {
	now := time.Now().UTC()
	return &AuthorizationRecord{
		Operation: op,
		Status:    StatusPending,
		Caller:    caller,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Id is the id of the wrapped operation
func (r *AuthorizationRecord) Id() string {
	if r == nil || r.Operation == nil {
		return ""
	}
	return r.Operation.Id
}

// HasPayment reports whether the record consumes a (project id, payment id) pair.
// Vault creation is unsigned and carries no payment.
func (r *AuthorizationRecord) HasPayment() bool {
	return r.Operation != nil && r.Operation.Kind.RequiresSignature()
}

// Confirm moves the record to StatusConfirmed
func (r *AuthorizationRecord) Confirm(digest string) {
	r.Status = StatusConfirmed
	r.TransactionDigest = digest
	r.Error = ""
	r.UpdatedAt = time.Now().UTC()
}

// Fail moves the record to StatusFailed
func (r *AuthorizationRecord) Fail(reason string) {
	r.Status = StatusFailed
	r.Error = reason
	r.UpdatedAt = time.Now().UTC()
}
