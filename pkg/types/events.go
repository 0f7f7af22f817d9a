package types

// TypedEvent is a decoded confirmation event.
type TypedEvent interface {
	Kind() OperationKind
	GetPaymentId() uint64
	GetProjectId() uint64
}

// TokenDeposited is emitted by a successful deposit.
type TokenDeposited struct {
	Amount    uint64 `json:"amount"`
	Deadline  uint64 `json:"deadline"`
	PaymentId uint64 `json:"payment_id"`
	ProjectId uint64 `json:"project_id"`
	Token     string `json:"token"`
}

func (e *TokenDeposited) Kind() OperationKind  { return OperationKindDeposit }
func (e *TokenDeposited) GetPaymentId() uint64 { return e.PaymentId }
func (e *TokenDeposited) GetProjectId() uint64 { return e.ProjectId }

// TokenWithdrawal is emitted by a successful withdraw.
type TokenWithdrawal struct {
	Amount    uint64  `json:"amount"`
	Deadline  uint64  `json:"deadline"`
	PaymentId uint64  `json:"payment_id"`
	ProjectId uint64  `json:"project_id"`
	Token     string  `json:"token"`
	Recipient Address `json:"recipient"`
}

func (e *TokenWithdrawal) Kind() OperationKind  { return OperationKindWithdraw }
func (e *TokenWithdrawal) GetPaymentId() uint64 { return e.PaymentId }
func (e *TokenWithdrawal) GetProjectId() uint64 { return e.ProjectId }

// RewardsClaimed is emitted by a successful claim.
type RewardsClaimed struct {
	Amount    uint64  `json:"amount"`
	Deadline  uint64  `json:"deadline"`
	PaymentId uint64  `json:"payment_id"`
	ProjectId uint64  `json:"project_id"`
	Token     string  `json:"token"`
	Recipient Address `json:"recipient"`
}

func (e *RewardsClaimed) Kind() OperationKind  { return OperationKindClaim }
func (e *RewardsClaimed) GetPaymentId() uint64 { return e.PaymentId }
func (e *RewardsClaimed) GetProjectId() uint64 { return e.ProjectId }
