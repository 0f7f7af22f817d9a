// Package mockChain is an in-memory stand-in for the deployed reward vault contract.
// It checks authorizations the way the contract does: it rebuilds the signed message
// from the call arguments, recovers the signer and looks it up in the vault's signer set.
package mockChain

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
	"golang.org/x/crypto/sha3"

	"github.com/Layr-Labs/reward-vault-authorizer/pkg/types"
)

// Abort reasons reported by the vault contract
var (
	ErrAborted            = errors.New("transaction aborted")
	ErrInvalidSignature   = errors.New("invalid signature")
	ErrUnknownSigner      = errors.New("signer not in vault signer set")
	ErrPaymentIdConsumed  = errors.New("payment id already used")
	ErrDeadlineExpired    = errors.New("deadline expired")
	ErrInsufficientFunds  = errors.New("insufficient vault balance")
	ErrPayloadMismatch    = errors.New("canonical bytes do not match call arguments")
	ErrVaultNotFound      = errors.New("vault not found")
	ErrTransactionUnknown = errors.New("transaction not found")
)

const module = "reward_vault_sui"

// Config configures a mock chain
type Config struct {
	PackageId string
	Sender    types.Address    // sender of create_reward_vault transactions
	Epoch     types.EpochInfo  // reported by GetEpochInfo
	Clock     func() time.Time // contract clock, defaults to time.Now
}

type paymentKey struct {
	projectId uint64
	paymentId uint64
}

type vaultObject struct {
	id       string
	owner    types.Address
	signers  []common.Address
	balances map[string]uint64
	consumed map[paymentKey]struct{}
}

// MockChain executes prepared vault operations in memory. Safe for concurrent use.
type MockChain struct {
	config *Config
	logger *zap.Logger

	mu           sync.RWMutex
	vaults       map[string]*vaultObject
	transactions map[string]*types.TransactionResult
	sequence     uint64
}

// NewMockChain creates an empty chain
func NewMockChain(cfg *Config, logger *zap.Logger) *MockChain {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.PackageId == "" {
		cfg.PackageId = types.MustParseAddress("0x1234").String()
	}
	return &MockChain{
		config:       cfg,
		logger:       logger,
		vaults:       make(map[string]*vaultObject),
		transactions: make(map[string]*types.TransactionResult),
	}
}

// PackageId is the id of the deployed vault package
func (c *MockChain) PackageId() string {
	return c.config.PackageId
}

// SetEpoch replaces the epoch reported by GetEpochInfo
func (c *MockChain) SetEpoch(info types.EpochInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.config.Epoch = info
}

// SetClock replaces the contract clock
func (c *MockChain) SetClock(clock func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.config.Clock = clock
}

// GetEpochInfo implements the epoch reader
func (c *MockChain) GetEpochInfo(ctx context.Context) (*types.EpochInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	info := c.config.Epoch
	return &info, nil
}

// GetObjectState returns the vault's content fields shaped like the ledger's JSON
func (c *MockChain) GetObjectState(ctx context.Context, id string) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	v, ok := c.vaults[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrVaultNotFound, id)
	}
	contents := make([]any, len(v.signers))
	for i, s := range v.signers {
		b := make([]any, common.AddressLength)
		for j, x := range s.Bytes() {
			b[j] = float64(x)
		}
		contents[i] = b
	}
	return map[string]any{
		"id":    map[string]any{"id": v.id},
		"owner": v.owner.String(),
		"signers": map[string]any{
			"type":   "0x2::vec_set::VecSet<vector<u8>>",
			"fields": map[string]any{"contents": contents},
		},
	}, nil
}

// GetTransactionResult returns a previously executed transaction
func (c *MockChain) GetTransactionResult(ctx context.Context, digest string) (*types.TransactionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	result, ok := c.transactions[digest]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTransactionUnknown, digest)
	}
	return result, nil
}

// Balance returns the vault's holdings of assetType
func (c *MockChain) Balance(vaultId, assetType string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.vaults[vaultId]
	if !ok {
		return 0
	}
	return v.balances[normalizeTypeName(assetType)]
}

// Submit executes op. Aborted transactions are recorded with a failure status and
// also returned as an error wrapping ErrAborted.
func (c *MockChain) Submit(ctx context.Context, op *types.PreparedOperation) (*types.TransactionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.sequence++
	result := &types.TransactionResult{
		Digest: c.digest(op),
		Status: types.TransactionStatusSuccess,
	}

	var execErr error
	switch {
	case strings.HasSuffix(op.Target, "::"+types.EntryPointCreateVault):
		execErr = c.createVault(op, result)
	case strings.HasSuffix(op.Target, "::"+types.EntryPointDeposit):
		execErr = c.deposit(op, result)
	case strings.HasSuffix(op.Target, "::"+types.EntryPointClaim):
		execErr = c.payout(op, result, "RewardsClaimed")
	case strings.HasSuffix(op.Target, "::"+types.EntryPointWithdraw):
		execErr = c.payout(op, result, "TokenWithdrawal")
	default:
		execErr = fmt.Errorf("unknown entry point %q", op.Target)
	}

	if execErr != nil {
		result.Status = types.TransactionStatusFailure
		result.Error = execErr.Error()
		result.Events = nil
		result.ObjectChanges = nil
		c.transactions[result.Digest] = result
		c.logger.Sugar().Debugw("Transaction aborted", "digest", result.Digest, "target", op.Target, "error", execErr)
		return result, fmt.Errorf("%w: %w", ErrAborted, execErr)
	}

	c.transactions[result.Digest] = result
	c.logger.Sugar().Debugw("Transaction executed", "digest", result.Digest, "target", op.Target, "events", len(result.Events))
	return result, nil
}

// Verify checks sig over message against the vault's signer set
func (c *MockChain) Verify(vaultId string, message []byte, sig types.Signature) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.vaults[vaultId]
	if !ok {
		return fmt.Errorf("%w: %s", ErrVaultNotFound, vaultId)
	}
	return verify(v, message, sig)
}

func (c *MockChain) createVault(op *types.PreparedOperation, result *types.TransactionResult) error {
	arg, err := argument(op, 0, "signers")
	if err != nil {
		return err
	}
	raw, err := hexutil.Decode(arg)
	if err != nil {
		return fmt.Errorf("signers: %w", err)
	}
	signers, err := decodeSignerVector(raw)
	if err != nil {
		return err
	}

	id := c.objectId()
	c.vaults[id] = &vaultObject{
		id:       id,
		owner:    c.config.Sender,
		signers:  signers,
		balances: make(map[string]uint64),
		consumed: make(map[paymentKey]struct{}),
	}
	result.ObjectChanges = append(result.ObjectChanges,
		types.ObjectChange{Type: "mutated", ObjectId: c.objectId(), ObjectType: "0x2::coin::Coin<0x2::sui::SUI>", Sender: c.config.Sender.String()},
		types.ObjectChange{Type: "created", ObjectId: id, ObjectType: c.config.PackageId + "::" + module + "::RewardVault", Sender: c.config.Sender.String()},
	)
	return nil
}

// deposit(vault, payment_id, project_id, coin, deadline, signature, clock)
func (c *MockChain) deposit(op *types.PreparedOperation, result *types.TransactionResult) error {
	args, err := c.callArguments(op, []string{"vault", "payment_id", "project_id", "coin", "deadline", "signature", "clock"})
	if err != nil {
		return err
	}
	v, ok := c.vaults[args.vaultId]
	if !ok {
		return fmt.Errorf("%w: %s", ErrVaultNotFound, args.vaultId)
	}
	// The depositor is the transaction sender.
	args.account = op.Payload.Account
	args.amount, err = parseU64(args.raw["coin"])
	if err != nil {
		return err
	}
	if err := c.authorize(v, op, args); err != nil {
		return err
	}

	v.balances[args.assetKey] += args.amount
	v.consumed[paymentKey{args.projectId, args.paymentId}] = struct{}{}
	result.Events = append(result.Events, c.event("TokenDeposited", args, nil))
	return nil
}

// claim|withdraw(vault, payment_id, project_id, recipient, amount, deadline, signature, clock)
func (c *MockChain) payout(op *types.PreparedOperation, result *types.TransactionResult, eventName string) error {
	args, err := c.callArguments(op, []string{"vault", "payment_id", "project_id", "recipient", "amount", "deadline", "signature", "clock"})
	if err != nil {
		return err
	}
	v, ok := c.vaults[args.vaultId]
	if !ok {
		return fmt.Errorf("%w: %s", ErrVaultNotFound, args.vaultId)
	}
	if args.account, err = types.ParseAddress(args.raw["recipient"]); err != nil {
		return fmt.Errorf("recipient: %w", err)
	}
	if args.amount, err = parseU64(args.raw["amount"]); err != nil {
		return err
	}
	if err := c.authorize(v, op, args); err != nil {
		return err
	}
	if v.balances[args.assetKey] < args.amount {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, v.balances[args.assetKey], args.amount)
	}

	v.balances[args.assetKey] -= args.amount
	v.consumed[paymentKey{args.projectId, args.paymentId}] = struct{}{}
	result.Events = append(result.Events, c.event(eventName, args, map[string]any{"recipient": args.account.String()}))
	return nil
}

type callArgs struct {
	raw        map[string]string
	vaultId    string
	paymentId  uint64
	projectId  uint64
	account    types.Address
	amount     uint64
	deadline   uint64
	signature  types.Signature
	assetType  string
	assetKey   string
	assetBytes []byte
}

func (c *MockChain) callArguments(op *types.PreparedOperation, names []string) (*callArgs, error) {
	args := &callArgs{raw: make(map[string]string, len(names))}
	for i, name := range names {
		v, err := argument(op, i, name)
		if err != nil {
			return nil, err
		}
		args.raw[name] = v
	}
	if args.raw["clock"] != "0x6" {
		return nil, fmt.Errorf("clock argument is %q", args.raw["clock"])
	}
	if len(op.TypeArguments) != 1 {
		return nil, fmt.Errorf("expected 1 type argument, got %d", len(op.TypeArguments))
	}

	var err error
	args.vaultId = args.raw["vault"]
	if args.paymentId, err = parseU64(args.raw["payment_id"]); err != nil {
		return nil, err
	}
	if args.projectId, err = parseU64(args.raw["project_id"]); err != nil {
		return nil, err
	}
	if args.deadline, err = parseU64(args.raw["deadline"]); err != nil {
		return nil, err
	}
	sigBytes, err := hexutil.Decode(args.raw["signature"])
	if err != nil || len(sigBytes) != types.SignatureLength {
		return nil, fmt.Errorf("%w: malformed signature argument", ErrInvalidSignature)
	}
	copy(args.signature[:], sigBytes)
	if op.Signature != args.signature {
		return nil, fmt.Errorf("%w: signature argument does not match operation signature", ErrInvalidSignature)
	}

	args.assetType = op.TypeArguments[0]
	if args.assetBytes, err = typeNameBytes(args.assetType); err != nil {
		return nil, err
	}
	args.assetKey = normalizeTypeName(args.assetType)
	return args, nil
}

func (c *MockChain) authorize(v *vaultObject, op *types.PreparedOperation, args *callArgs) error {
	if now := uint64(c.config.Clock().UnixMilli()); now > args.deadline {
		return fmt.Errorf("%w: deadline %d, now %d", ErrDeadlineExpired, args.deadline, now)
	}
	if _, used := v.consumed[paymentKey{args.projectId, args.paymentId}]; used {
		return fmt.Errorf("%w: project %d payment %d", ErrPaymentIdConsumed, args.projectId, args.paymentId)
	}

	message := buildMessage(args)
	if len(op.CanonicalBytes) > 0 && string(op.CanonicalBytes) != string(message) {
		return ErrPayloadMismatch
	}
	return verify(v, message, args.signature)
}

func (c *MockChain) event(name string, args *callArgs, extra map[string]any) types.RawEvent {
	fields := map[string]any{
		"amount":     strconv.FormatUint(args.amount, 10),
		"deadline":   strconv.FormatUint(args.deadline, 10),
		"payment_id": strconv.FormatUint(args.paymentId, 10),
		"project_id": strconv.FormatUint(args.projectId, 10),
		"token":      map[string]any{"name": args.assetKey},
	}
	for k, v := range extra {
		fields[k] = v
	}
	return types.RawEvent{
		Type:       c.config.PackageId + "::" + module + "::" + name,
		Sender:     args.account.String(),
		ParsedJson: fields,
	}
}

func (c *MockChain) objectId() string {
	c.sequence++
	var seed [8]byte
	binary.BigEndian.PutUint64(seed[:], c.sequence)
	return hexutil.Encode(keccak(seed[:], []byte("object")))
}

func (c *MockChain) digest(op *types.PreparedOperation) string {
	var seed [8]byte
	binary.BigEndian.PutUint64(seed[:], c.sequence)
	return hexutil.Encode(keccak(seed[:], []byte(op.Id)))
}

func verify(v *vaultObject, message []byte, sig types.Signature) error {
	digest := keccak(message)

	rsv := make([]byte, types.SignatureLength)
	copy(rsv, sig[:])
	if rsv[64] >= 27 {
		rsv[64] -= 27
	}
	if rsv[64] > 1 {
		return fmt.Errorf("%w: recovery id %d", ErrInvalidSignature, sig[64])
	}
	pub, err := crypto.SigToPub(digest, rsv)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	signer := crypto.PubkeyToAddress(*pub)
	for _, s := range v.signers {
		if s == signer {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownSigner, signer.Hex())
}

// buildMessage lays out the message the contract hashes, written independently of
// the authorizer's encoder.
func buildMessage(args *callArgs) []byte {
	msg := make([]byte, 0, 16+types.AddressLength+len(args.assetBytes)+16)
	msg = binary.LittleEndian.AppendUint64(msg, args.paymentId)
	msg = binary.LittleEndian.AppendUint64(msg, args.projectId)
	msg = append(msg, args.account[:]...)
	msg = append(msg, args.assetBytes...)
	msg = binary.LittleEndian.AppendUint64(msg, args.amount)
	msg = binary.LittleEndian.AppendUint64(msg, args.deadline)
	return msg
}

// typeNameBytes renders address || "::module::Type" for a type argument
func typeNameBytes(typeArg string) ([]byte, error) {
	i := strings.Index(typeArg, "::")
	if i <= 0 {
		return nil, fmt.Errorf("malformed type argument %q", typeArg)
	}
	addr, err := types.ParseAddress(typeArg[:i])
	if err != nil {
		return nil, fmt.Errorf("type argument address: %w", err)
	}
	return append(addr[:], typeArg[i:]...), nil
}

// normalizeTypeName is the ledger's type_name form: 64 hex nibbles, no 0x prefix
func normalizeTypeName(typeArg string) string {
	i := strings.Index(typeArg, "::")
	if i <= 0 {
		return typeArg
	}
	addr, err := types.ParseAddress(typeArg[:i])
	if err != nil {
		return typeArg
	}
	return strings.TrimPrefix(addr.String(), "0x") + typeArg[i:]
}

func decodeSignerVector(raw []byte) ([]common.Address, error) {
	count, n := uleb128(raw)
	if n == 0 {
		return nil, fmt.Errorf("signers: truncated length")
	}
	raw = raw[n:]
	// every entry carries at least its own length byte
	if count > uint64(len(raw)) {
		return nil, fmt.Errorf("signers: %d entries in %d bytes", count, len(raw))
	}
	signers := make([]common.Address, 0, count)
	for i := uint64(0); i < count; i++ {
		l, n := uleb128(raw)
		if n == 0 || uint64(len(raw)-n) < l {
			return nil, fmt.Errorf("signers: truncated entry %d", i)
		}
		if l != common.AddressLength {
			return nil, fmt.Errorf("signers: entry %d is %d bytes", i, l)
		}
		signers = append(signers, common.BytesToAddress(raw[n:n+int(l)]))
		raw = raw[n+int(l):]
	}
	if len(raw) != 0 {
		return nil, fmt.Errorf("signers: %d trailing bytes", len(raw))
	}
	return signers, nil
}

func uleb128(b []byte) (uint64, int) {
	var v uint64
	for i := 0; i < len(b) && i < 10; i++ {
		v |= uint64(b[i]&0x7f) << (7 * i)
		if b[i]&0x80 == 0 {
			return v, i + 1
		}
	}
	return 0, 0
}

func argument(op *types.PreparedOperation, i int, name string) (string, error) {
	if i >= len(op.Arguments) {
		return "", fmt.Errorf("missing argument %d (%s)", i, name)
	}
	if op.Arguments[i].Name != name {
		return "", fmt.Errorf("argument %d is %q, expected %q", i, op.Arguments[i].Name, name)
	}
	return op.Arguments[i].Value, nil
}

func parseU64(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid u64 argument %q: %w", s, err)
	}
	return v, nil
}

func keccak(data ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}
