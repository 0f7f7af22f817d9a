package types

import "errors"

var (
	// ErrMalformedTypeName means an asset type string is not address::module::type.
	ErrMalformedTypeName = errors.New("malformed type name")

	// ErrSigning means the key or curve operation failed.
	ErrSigning = errors.New("signing error")

	// ErrDeadlineUnavailable means the epoch state could not be read. Callers may
	// retry the whole operation, regenerating the payment id with the deadline.
	ErrDeadlineUnavailable = errors.New("deadline unavailable")

	// ErrEventNotFound means a successful transaction carried no event of the expected kind.
	ErrEventNotFound = errors.New("event not found")

	// ErrSchemaMismatch means ledger data did not have the expected shape.
	ErrSchemaMismatch = errors.New("schema mismatch")
)
