// Package suiClient reads epoch timing, objects, transactions and balances from a
// ledger fullnode over JSON-RPC.
package suiClient

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"github.com/Layr-Labs/reward-vault-authorizer/pkg/types"
)

const (
	methodGetLatestSystemState = "suix_getLatestSuiSystemState"
	methodGetObject            = "sui_getObject"
	methodGetTransactionBlock  = "sui_getTransactionBlock"
	methodGetBalance           = "suix_getBalance"
)

// IRPCCaller is the subset of the go-ethereum rpc client used here
type IRPCCaller interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
	Close()
}

// SuiClientConfig configures the fullnode connection
type SuiClientConfig struct {
	URL string
}

// SuiClient is a typed fullnode client
type SuiClient struct {
	config *SuiClientConfig
	rpc    IRPCCaller
	logger *zap.Logger
}

// NewSuiClient dials the fullnode at cfg.URL
func NewSuiClient(ctx context.Context, cfg *SuiClientConfig, logger *zap.Logger) (*SuiClient, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, fmt.Errorf("fullnode url is required")
	}
	c, err := rpc.DialContext(ctx, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial fullnode %s: %w", cfg.URL, err)
	}
	return NewSuiClientWithCaller(cfg, c, logger), nil
}

// NewSuiClientWithCaller wraps an existing rpc caller
func NewSuiClientWithCaller(cfg *SuiClientConfig, caller IRPCCaller, logger *zap.Logger) *SuiClient {
	return &SuiClient{
		config: cfg,
		rpc:    caller,
		logger: logger,
	}
}

func (sc *SuiClient) Close() {
	sc.rpc.Close()
}

type systemStateResponse struct {
	Epoch                 string `json:"epoch"`
	EpochStartTimestampMs string `json:"epochStartTimestampMs"`
	EpochDurationMs       string `json:"epochDurationMs"`
}

// GetEpochInfo returns the current epoch's start and duration
func (sc *SuiClient) GetEpochInfo(ctx context.Context) (*types.EpochInfo, error) {
	var res systemStateResponse
	if err := sc.call(ctx, &res, methodGetLatestSystemState); err != nil {
		return nil, err
	}

	info := &types.EpochInfo{}
	var err error
	if info.Epoch, err = parseU64("epoch", res.Epoch); err != nil {
		return nil, err
	}
	if info.EpochStartMs, err = parseU64("epochStartTimestampMs", res.EpochStartTimestampMs); err != nil {
		return nil, err
	}
	if info.EpochDurationMs, err = parseU64("epochDurationMs", res.EpochDurationMs); err != nil {
		return nil, err
	}
	return info, nil
}

type objectResponse struct {
	Data *struct {
		ObjectId string `json:"objectId"`
		Version  string `json:"version"`
		Content  *struct {
			DataType string         `json:"dataType"`
			Type     string         `json:"type"`
			Fields   map[string]any `json:"fields"`
		} `json:"content"`
	} `json:"data"`
	Error *struct {
		Code     string `json:"code"`
		ObjectId string `json:"object_id"`
	} `json:"error"`
}

// GetObjectState returns the content fields of a Move object
func (sc *SuiClient) GetObjectState(ctx context.Context, id string) (map[string]any, error) {
	var res objectResponse
	if err := sc.call(ctx, &res, methodGetObject, id, map[string]bool{"showContent": true}); err != nil {
		return nil, err
	}
	if res.Error != nil {
		return nil, fmt.Errorf("object %s: %s", id, res.Error.Code)
	}
	if res.Data == nil || res.Data.Content == nil {
		return nil, fmt.Errorf("%w: object %s has no content", types.ErrSchemaMismatch, id)
	}
	if res.Data.Content.DataType != "moveObject" {
		return nil, fmt.Errorf("%w: object %s is a %s", types.ErrSchemaMismatch, id, res.Data.Content.DataType)
	}
	return res.Data.Content.Fields, nil
}

type transactionResponse struct {
	Digest  string `json:"digest"`
	Effects *struct {
		Status struct {
			Status string `json:"status"`
			Error  string `json:"error"`
		} `json:"status"`
	} `json:"effects"`
	Events        []types.RawEvent     `json:"events"`
	ObjectChanges []types.ObjectChange `json:"objectChanges"`
}

// GetTransactionResult fetches an executed transaction with its events and object changes
func (sc *SuiClient) GetTransactionResult(ctx context.Context, digest string) (*types.TransactionResult, error) {
	var res transactionResponse
	opts := map[string]bool{
		"showEffects":       true,
		"showEvents":        true,
		"showObjectChanges": true,
	}
	if err := sc.call(ctx, &res, methodGetTransactionBlock, digest, opts); err != nil {
		return nil, err
	}

	if res.Effects == nil || res.Effects.Status.Status == "" {
		return nil, fmt.Errorf("%w: transaction %s has no effects status", types.ErrSchemaMismatch, digest)
	}
	result := &types.TransactionResult{
		Digest:        res.Digest,
		Status:        res.Effects.Status.Status,
		Error:         res.Effects.Status.Error,
		Events:        res.Events,
		ObjectChanges: res.ObjectChanges,
	}
	sc.logger.Sugar().Debugw("Fetched transaction",
		"digest", result.Digest,
		"status", result.Status,
		"events", len(result.Events),
		"object_changes", len(result.ObjectChanges),
	)
	return result, nil
}

// Balance is an owner's total holding of one coin type
type Balance struct {
	CoinType        string `json:"coinType"`
	CoinObjectCount int    `json:"coinObjectCount"`
	TotalBalance    string `json:"totalBalance"`
}

// GetBalance returns owner's balance of coinType, the native coin when empty
func (sc *SuiClient) GetBalance(ctx context.Context, owner types.Address, coinType string) (*Balance, error) {
	if coinType == "" {
		coinType = types.SuiTypeArg
	}
	var res Balance
	if err := sc.call(ctx, &res, methodGetBalance, owner.String(), coinType); err != nil {
		return nil, err
	}
	return &res, nil
}

func (sc *SuiClient) call(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	if err := sc.rpc.CallContext(ctx, result, method, args...); err != nil {
		sc.logger.Sugar().Debugw("Fullnode call failed", "method", method, "error", err)
		return fmt.Errorf("%s failed: %w", method, err)
	}
	return nil
}

func parseU64(name, s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q: %v", types.ErrSchemaMismatch, name, s, err)
	}
	return v, nil
}
