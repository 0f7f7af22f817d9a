package persistence

import (
	"encoding/json"
	"fmt"
)

// MarshalAuthorizationRecord serializes a record to JSON bytes.
func MarshalAuthorizationRecord(r *AuthorizationRecord) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("cannot marshal nil AuthorizationRecord")
	}
	if r.Operation == nil {
		return nil, fmt.Errorf("cannot marshal AuthorizationRecord without an operation")
	}

	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal AuthorizationRecord to JSON: %w", err)
	}
	return data, nil
}

// UnmarshalAuthorizationRecord deserializes a record from JSON bytes.
func UnmarshalAuthorizationRecord(data []byte) (*AuthorizationRecord, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}

	var r AuthorizationRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to AuthorizationRecord: %w", err)
	}
	if r.Operation == nil {
		return nil, fmt.Errorf("AuthorizationRecord has no operation")
	}
	return &r, nil
}

// PaymentKey is the index key of a (project id, payment id) pair
func PaymentKey(projectId, paymentId uint64) string {
	return fmt.Sprintf("%d:%d", projectId, paymentId)
}
