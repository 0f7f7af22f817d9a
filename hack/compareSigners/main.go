package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Layr-Labs/reward-vault-authorizer/pkg/authorizer"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/authorizer/localAuthorizer"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/authorizer/web3SignerAuthorizer"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/clients/web3signer"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/encoding"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/logger"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/types"
	"github.com/ethereum/go-ethereum/common"
)

// anvil account 0, which the local web3signer compose file loads as well
const (
	defaultPrivateKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	defaultWeb3Signer = "http://localhost:9100"
)

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

// Signs the same canonical payload with the in-process key and with web3signer
// and checks that both signatures recover to the same address.
func main() {
	l, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	local, err := localAuthorizer.NewLocalAuthorizerFromHex(envOr("VAULT_PRIVATE_KEY", defaultPrivateKey), l)
	if err != nil {
		l.Sugar().Fatalf("failed to load private key: %v", err)
	}

	client, err := web3signer.NewClient(&web3signer.Config{
		BaseUrl: envOr("VAULT_WEB3SIGNER_URL", defaultWeb3Signer),
		Timeout: 10 * time.Second,
	}, l)
	if err != nil {
		l.Sugar().Fatalf("failed to create web3signer client: %v", err)
	}
	remote, err := web3SignerAuthorizer.NewWeb3SignerAuthorizer(client, local.Address().Hex(), local.Address(), l)
	if err != nil {
		l.Sugar().Fatalf("failed to create web3signer authorizer: %v", err)
	}

	canonical := encoding.Encode(&types.OperationPayload{
		PaymentId: 1,
		ProjectId: 0,
		Account:   types.MustParseAddress("0x01"),
		AssetType: types.AssetTypeName{
			ModuleAddress: types.MustParseAddress("0x2"),
			ModuleName:    "sui",
			TypeName:      "SUI",
		},
		Amount:   100,
		Deadline: uint64(time.Now().Add(time.Hour).UnixMilli()),
	})

	signers := map[string]authorizer.IAuthorizer{"local": local, "web3signer": remote}
	recovered := make(map[string]common.Address, len(signers))
	for name, signer := range signers {
		msg, err := signer.Sign(ctx, canonical)
		if err != nil {
			l.Sugar().Fatalw("failed to sign payload", "signer", name, "error", err)
		}
		addr, err := authorizer.RecoverSigner(canonical, msg.Signature)
		if err != nil {
			l.Sugar().Fatalw("failed to recover signer", "signer", name, "error", err)
		}
		recovered[name] = addr
		fmt.Printf("Signature (%s): %s -> %s\n", name, msg.Signature, addr.Hex())
	}

	fmt.Printf("Digest: %s\n", authorizer.Digest(canonical).Hex())
	if recovered["local"] == recovered["web3signer"] && recovered["local"] == local.Address() {
		fmt.Println("Signers agree!")
		return
	}
	fmt.Println("Signers do not agree!")
	os.Exit(1)
}
