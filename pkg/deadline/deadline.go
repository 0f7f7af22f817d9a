package deadline

import (
	"context"
	"fmt"
	"math/bits"
	"time"

	"github.com/Layr-Labs/reward-vault-authorizer/pkg/types"
	"go.uber.org/zap"
)

// DefaultMargin keeps a signed deadline valid past the end of the current epoch.
const DefaultMargin = 60 * time.Second

// IEpochInfoReader reads the ledger's current epoch timing.
type IEpochInfoReader interface {
	GetEpochInfo(ctx context.Context) (*types.EpochInfo, error)
}

// ComputeDeadline returns epochStartMs + epochDurationMs + marginMs. The sum wraps on
// overflow; use CheckedDeadline for values read from the ledger.
func ComputeDeadline(epochStartMs, epochDurationMs, marginMs uint64) uint64 {
	return epochStartMs + epochDurationMs + marginMs
}

// CheckedDeadline is ComputeDeadline that reports false instead of wrapping.
func CheckedDeadline(epochStartMs, epochDurationMs, marginMs uint64) (uint64, bool) {
	epochEnd, carry := bits.Add64(epochStartMs, epochDurationMs, 0)
	if carry != 0 {
		return 0, false
	}
	deadline, carry := bits.Add64(epochEnd, marginMs, 0)
	if carry != 0 {
		return 0, false
	}
	return deadline, true
}

// Policy derives operation deadlines from the current epoch.
type Policy struct {
	reader IEpochInfoReader
	margin time.Duration
	logger *zap.Logger
}

// NewPolicy returns a policy with the given margin, or DefaultMargin when margin is zero.
func NewPolicy(reader IEpochInfoReader, margin time.Duration, logger *zap.Logger) *Policy {
	if margin <= 0 {
		margin = DefaultMargin
	}
	return &Policy{
		reader: reader,
		margin: margin,
		logger: logger,
	}
}

func (p *Policy) Margin() time.Duration {
	return p.margin
}

// Deadline reads the epoch once and returns the deadline in milliseconds.
// Read failures are reported as types.ErrDeadlineUnavailable.
func (p *Policy) Deadline(ctx context.Context) (uint64, error) {
	info, err := p.reader.GetEpochInfo(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", types.ErrDeadlineUnavailable, err)
	}
	if info == nil || info.EpochDurationMs == 0 {
		return 0, fmt.Errorf("%w: empty epoch info", types.ErrDeadlineUnavailable)
	}

	deadline, ok := CheckedDeadline(info.EpochStartMs, info.EpochDurationMs, uint64(p.margin.Milliseconds()))
	if !ok {
		return 0, fmt.Errorf("%w: epoch start %d plus duration %d overflows",
			types.ErrDeadlineUnavailable, info.EpochStartMs, info.EpochDurationMs)
	}
	p.logger.Sugar().Debugw("Computed deadline",
		"epoch", info.Epoch,
		"epoch_start_ms", info.EpochStartMs,
		"epoch_duration_ms", info.EpochDurationMs,
		"deadline", deadline,
	)
	return deadline, nil
}
