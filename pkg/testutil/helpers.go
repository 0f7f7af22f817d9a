package testutil

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Layr-Labs/reward-vault-authorizer/pkg/authorizer/localAuthorizer"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/logger"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/types"
)

// Well known development keys (anvil / hardhat accounts 0 and 1)
const (
	SignerPrivateKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	SignerAddress    = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"

	OtherPrivateKey = "0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
	OtherAddress    = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
)

// Ledger accounts used as depositors and recipients
var (
	AccountAlice = types.MustParseAddress("0xa11ce00000000000000000000000000000000000000000000000000000000001")
	AccountBob   = types.MustParseAddress("0xb0b0000000000000000000000000000000000000000000000000000000000002")
)

// NewTestLogger returns a non-debug logger for tests
func NewTestLogger(t *testing.T) *zap.Logger {
	t.Helper()
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	require.NoError(t, err)
	return l
}

// NewTestAuthorizer returns a local authorizer for the given development key
func NewTestAuthorizer(t *testing.T, privateKeyHex string) *localAuthorizer.LocalAuthorizer {
	t.Helper()
	a, err := localAuthorizer.NewLocalAuthorizerFromHex(privateKeyHex, NewTestLogger(t))
	require.NoError(t, err)
	return a
}

// SignerSet returns the development signer addresses
func SignerSet(addresses ...string) []common.Address {
	out := make([]common.Address, len(addresses))
	for i, a := range addresses {
		out[i] = common.HexToAddress(a)
	}
	return out
}
