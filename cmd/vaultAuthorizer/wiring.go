package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	awsConfig "github.com/Layr-Labs/reward-vault-authorizer/internal/aws"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/authorizer"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/authorizer/awsKmsAuthorizer"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/authorizer/localAuthorizer"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/authorizer/web3SignerAuthorizer"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/clients/suiClient"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/clients/web3signer"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/config"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/deadline"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/logger"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/persistence"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/persistence/badger"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/persistence/memory"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/persistence/postgres"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/persistence/redis"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/vault"
)

func newLogger(c *cli.Context) (*zap.Logger, error) {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool("verbose")})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return l, nil
}

// newAuthorizer builds the configured signing backend
func newAuthorizer(ctx context.Context, cfg *config.AuthorizerConfig, l *zap.Logger) (authorizer.IAuthorizer, error) {
	switch cfg.Signer.Backend {
	case config.SignerBackend_Local:
		return localAuthorizer.NewLocalAuthorizerFromHex(cfg.Signer.PrivateKey, l)

	case config.SignerBackend_AWSKMS:
		awsCfg, err := awsConfig.LoadAWSConfig(ctx, cfg.Signer.AWSRegion)
		if err != nil {
			return nil, err
		}
		if identity, err := awsConfig.GetCallerIdentity(ctx, awsCfg); err != nil {
			l.Sugar().Warnw("Failed to resolve AWS caller identity", "error", err)
		} else {
			l.Sugar().Infow("Using AWS identity", "arn", deref(identity.Arn), "account", deref(identity.Account))
		}
		return awsKmsAuthorizer.NewAWSKMSAuthorizerFromConfig(ctx, awsCfg, cfg.Signer.AWSKMSKeyId, l)

	case config.SignerBackend_Web3Signer:
		client, err := web3signer.NewClient(&web3signer.Config{BaseUrl: cfg.Signer.Web3SignerUrl}, l)
		if err != nil {
			return nil, err
		}
		if err := client.Upcheck(ctx); err != nil {
			return nil, fmt.Errorf("web3signer is not reachable: %w", err)
		}
		return web3SignerAuthorizer.NewWeb3SignerAuthorizer(client, cfg.Signer.Web3SignerKey(), common.HexToAddress(cfg.Signer.Web3SignerAddress), l)
	}
	return nil, fmt.Errorf("unsupported signer backend %q", cfg.Signer.Backend)
}

// newStore opens the configured authorization store
func newStore(ctx context.Context, cfg *config.AuthorizerConfig, l *zap.Logger) (persistence.IAuthorizationStore, error) {
	switch cfg.Store.Backend {
	case config.StoreBackend_Memory:
		return memory.NewMemoryPersistence(), nil
	case config.StoreBackend_Badger:
		return badger.NewBadgerPersistence(cfg.Store.DataPath, l)
	case config.StoreBackend_Redis:
		return redis.NewRedisPersistence(&redis.RedisConfig{
			Address:   cfg.Store.RedisAddress,
			Password:  cfg.Store.RedisPassword,
			DB:        cfg.Store.RedisDB,
			KeyPrefix: cfg.Store.RedisKeyPrefix,
		}, l)
	case config.StoreBackend_Postgres:
		return postgres.NewPostgresPersistence(ctx, cfg.Store.PostgresDSN, l)
	}
	return nil, fmt.Errorf("unsupported store backend %q", cfg.Store.Backend)
}

func newSuiClient(ctx context.Context, cfg *config.AuthorizerConfig, l *zap.Logger) (*suiClient.SuiClient, error) {
	rpcUrl, err := cfg.ResolveRpcUrl()
	if err != nil {
		return nil, err
	}
	l.Sugar().Infow("Using fullnode", "network", cfg.Network, "rpc_url", rpcUrl)
	return suiClient.NewSuiClient(ctx, &suiClient.SuiClientConfig{URL: rpcUrl}, l)
}

func newOrchestrator(cfg *config.AuthorizerConfig, auth authorizer.IAuthorizer, epochs deadline.IEpochInfoReader, l *zap.Logger) *vault.Orchestrator {
	policy := deadline.NewPolicy(epochs, cfg.DeadlineMargin, l)
	return vault.NewOrchestrator(&vault.OrchestratorConfig{
		PackageId: cfg.PackageId,
		VaultId:   cfg.VaultId,
		Module:    cfg.Module,
		ProjectId: cfg.ProjectId,
	}, auth, policy, l)
}

func printJSON(c *cli.Context, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(c.App.Writer, string(out))
	return err
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
