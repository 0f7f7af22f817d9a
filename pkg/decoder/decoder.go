// Package decoder maps ledger JSON (object fields, events, object changes) into typed records.
// Any missing field or unexpected shape is reported as types.ErrSchemaMismatch.
package decoder

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/Layr-Labs/reward-vault-authorizer/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

const (
	ObjectChangeCreated   = "created"
	ObjectChangePublished = "published"
)

func mismatch(format string, args ...any) error {
	return fmt.Errorf("%w: %s", types.ErrSchemaMismatch, fmt.Sprintf(format, args...))
}

// DecodeVaultState decodes the content fields of a reward vault object:
// id.id, owner and signers.fields.contents.
func DecodeVaultState(fields map[string]any) (*types.RewardVaultState, error) {
	if fields == nil {
		return nil, mismatch("vault object has no fields")
	}

	id, err := nestedString(fields, "id", "id")
	if err != nil {
		return nil, err
	}

	ownerStr, err := stringField(fields, "owner")
	if err != nil {
		return nil, err
	}
	owner, err := types.ParseAddress(ownerStr)
	if err != nil {
		return nil, mismatch("owner: %v", err)
	}

	signersObj, ok := fields["signers"].(map[string]any)
	if !ok {
		return nil, mismatch("signers is %T, expected object", fields["signers"])
	}
	signerFields, ok := signersObj["fields"].(map[string]any)
	if !ok {
		return nil, mismatch("signers.fields is %T, expected object", signersObj["fields"])
	}
	contents, ok := signerFields["contents"].([]any)
	if !ok {
		return nil, mismatch("signers.fields.contents is %T, expected array", signerFields["contents"])
	}

	signers := make([]common.Address, 0, len(contents))
	for i, entry := range contents {
		b, err := decodeBytes(entry)
		if err != nil {
			return nil, mismatch("signer %d: %v", i, err)
		}
		if len(b) != common.AddressLength {
			return nil, mismatch("signer %d is %d bytes, expected %d", i, len(b), common.AddressLength)
		}
		signers = append(signers, common.BytesToAddress(b))
	}

	return &types.RewardVaultState{
		Id:      id,
		Owner:   owner,
		Signers: signers,
	}, nil
}

// DecodeEvent decodes raw as the confirmation event of kind.
func DecodeEvent(raw types.RawEvent, kind types.OperationKind) (types.TypedEvent, error) {
	tag := kind.EventType()
	if tag == "" {
		return nil, fmt.Errorf("operation kind %s emits no event", kind)
	}
	if !strings.Contains(raw.Type, tag) {
		return nil, mismatch("event type %q is not %s", raw.Type, tag)
	}
	fields := raw.ParsedJson
	if fields == nil {
		return nil, mismatch("event %q has no parsed json", raw.Type)
	}

	ev, err := decodeEventCommon(fields)
	if err != nil {
		return nil, err
	}

	switch kind {
	case types.OperationKindDeposit:
		return &types.TokenDeposited{
			Amount:    ev.amount,
			Deadline:  ev.deadline,
			PaymentId: ev.paymentId,
			ProjectId: ev.projectId,
			Token:     ev.token,
		}, nil
	case types.OperationKindClaim, types.OperationKindWithdraw:
		recipientStr, err := stringField(fields, "recipient")
		if err != nil {
			return nil, err
		}
		recipient, err := types.ParseAddress(recipientStr)
		if err != nil {
			return nil, mismatch("recipient: %v", err)
		}
		if kind == types.OperationKindClaim {
			return &types.RewardsClaimed{
				Amount:    ev.amount,
				Deadline:  ev.deadline,
				PaymentId: ev.paymentId,
				ProjectId: ev.projectId,
				Token:     ev.token,
				Recipient: recipient,
			}, nil
		}
		return &types.TokenWithdrawal{
			Amount:    ev.amount,
			Deadline:  ev.deadline,
			PaymentId: ev.paymentId,
			ProjectId: ev.projectId,
			Token:     ev.token,
			Recipient: recipient,
		}, nil
	}
	return nil, fmt.Errorf("operation kind %s emits no event", kind)
}

type eventCommon struct {
	amount, deadline, paymentId, projectId uint64
	token                                  string
}

func decodeEventCommon(fields map[string]any) (eventCommon, error) {
	var (
		c   eventCommon
		err error
	)
	for name, dst := range map[string]*uint64{
		"amount":     &c.amount,
		"deadline":   &c.deadline,
		"payment_id": &c.paymentId,
		"project_id": &c.projectId,
	} {
		if *dst, err = uint64Field(fields, name); err != nil {
			return c, err
		}
	}

	switch token := fields["token"].(type) {
	case string:
		c.token = token
	case map[string]any:
		name, ok := token["name"].(string)
		if !ok {
			return c, mismatch("token.name is %T, expected string", token["name"])
		}
		c.token = name
	default:
		return c, mismatch("token is %T, expected string or type name object", fields["token"])
	}
	return c, nil
}

// CreatedObjectId returns the id of the first created object, the vault after create_reward_vault.
func CreatedObjectId(changes []types.ObjectChange) (string, error) {
	for _, c := range changes {
		if c.Type == ObjectChangeCreated && c.ObjectId != "" {
			return c.ObjectId, nil
		}
	}
	return "", mismatch("no created object in %d object changes", len(changes))
}

// PublishedPackageId returns the package id of a publish transaction.
func PublishedPackageId(changes []types.ObjectChange) (string, error) {
	for _, c := range changes {
		if c.Type == ObjectChangePublished && c.PackageId != "" {
			return c.PackageId, nil
		}
	}
	return "", mismatch("no published package in %d object changes", len(changes))
}

// MistToSui converts a base unit balance string to SUI.
func MistToSui(totalBalance string) (float64, error) {
	mist, ok := new(big.Int).SetString(totalBalance, 10)
	if !ok {
		return 0, mismatch("balance %q is not a decimal integer", totalBalance)
	}
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(mist), big.NewFloat(types.MistPerSui)).Float64()
	return f, nil
}

func stringField(fields map[string]any, name string) (string, error) {
	v, ok := fields[name]
	if !ok {
		return "", mismatch("missing field %q", name)
	}
	s, ok := v.(string)
	if !ok {
		return "", mismatch("field %q is %T, expected string", name, v)
	}
	return s, nil
}

func nestedString(fields map[string]any, outer, inner string) (string, error) {
	obj, ok := fields[outer].(map[string]any)
	if !ok {
		return "", mismatch("field %q is %T, expected object", outer, fields[outer])
	}
	return stringField(obj, inner)
}

// uint64Field accepts the ledger's decimal string form as well as JSON numbers.
func uint64Field(fields map[string]any, name string) (uint64, error) {
	v, ok := fields[name]
	if !ok {
		return 0, mismatch("missing field %q", name)
	}
	switch n := v.(type) {
	case string:
		u, err := strconv.ParseUint(n, 10, 64)
		if err != nil {
			return 0, mismatch("field %q: %v", name, err)
		}
		return u, nil
	case json.Number:
		u, err := strconv.ParseUint(n.String(), 10, 64)
		if err != nil {
			return 0, mismatch("field %q: %v", name, err)
		}
		return u, nil
	case float64:
		if n < 0 || n != math.Trunc(n) || n > (1<<53) {
			return 0, mismatch("field %q: %v is not an exact u64", name, n)
		}
		return uint64(n), nil
	}
	return 0, mismatch("field %q is %T, expected u64", name, v)
}

// decodeBytes accepts vector<u8> as a JSON number array or a 0x hex string.
func decodeBytes(v any) ([]byte, error) {
	switch b := v.(type) {
	case string:
		return hexutil.Decode(b)
	case []any:
		out := make([]byte, len(b))
		for i, e := range b {
			n, ok := e.(float64)
			if !ok {
				if num, isNum := e.(json.Number); isNum {
					parsed, err := strconv.ParseUint(num.String(), 10, 8)
					if err != nil {
						return nil, err
					}
					out[i] = byte(parsed)
					continue
				}
				return nil, fmt.Errorf("byte %d is %T", i, e)
			}
			if n < 0 || n > math.MaxUint8 || n != math.Trunc(n) {
				return nil, fmt.Errorf("byte %d out of range: %v", i, n)
			}
			out[i] = byte(n)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unexpected byte vector type %T", v)
}
