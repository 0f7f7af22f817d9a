package types

import (
	"fmt"
	"strings"
)

// OperationKind tags the vault entry point an operation targets.
type OperationKind uint8

const (
	OperationKindUnknown OperationKind = iota
	OperationKindCreateVault
	OperationKindDeposit
	OperationKindClaim
	OperationKindWithdraw
)

const (
	EntryPointCreateVault = "create_reward_vault"
	EntryPointDeposit     = "deposit"
	EntryPointClaim       = "claim"
	EntryPointWithdraw    = "withdraw"

	// Event tags are matched by containment against the full event type.
	DepositEventType        = "::reward_vault_sui::TokenDeposited"
	RewardsClaimedEventType = "::reward_vault_sui::RewardsClaimed"
	WithdrawalEventType     = "::reward_vault_sui::TokenWithdrawal"
)

var operationKindNames = map[OperationKind]string{
	OperationKindCreateVault: "create_vault",
	OperationKindDeposit:     "deposit",
	OperationKindClaim:       "claim",
	OperationKindWithdraw:    "withdraw",
}

func (k OperationKind) String() string {
	if name, ok := operationKindNames[k]; ok {
		return name
	}
	return "unknown"
}

func ParseOperationKind(s string) (OperationKind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for kind, name := range operationKindNames {
		if name == s {
			return kind, nil
		}
	}
	return OperationKindUnknown, fmt.Errorf("unknown operation kind %q", s)
}

// EntryPoint is the on-chain function called for this kind.
func (k OperationKind) EntryPoint() string {
	switch k {
	case OperationKindCreateVault:
		return EntryPointCreateVault
	case OperationKindDeposit:
		return EntryPointDeposit
	case OperationKindClaim:
		return EntryPointClaim
	case OperationKindWithdraw:
		return EntryPointWithdraw
	}
	return ""
}

// EventType is the confirmation event tag, empty for kinds that emit none.
func (k OperationKind) EventType() string {
	switch k {
	case OperationKindDeposit:
		return DepositEventType
	case OperationKindClaim:
		return RewardsClaimedEventType
	case OperationKindWithdraw:
		return WithdrawalEventType
	}
	return ""
}

// RequiresSignature is false only for vault creation.
func (k OperationKind) RequiresSignature() bool {
	return k == OperationKindDeposit || k == OperationKindClaim || k == OperationKindWithdraw
}

func (k OperationKind) MarshalText() ([]byte, error) {
	if _, ok := operationKindNames[k]; !ok {
		return nil, fmt.Errorf("cannot marshal operation kind %d", k)
	}
	return []byte(k.String()), nil
}

func (k *OperationKind) UnmarshalText(text []byte) error {
	parsed, err := ParseOperationKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
