package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/Layr-Labs/reward-vault-authorizer/pkg/auth"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/decoder"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/metrics"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/server"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/service"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/types"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/vault"
)

func serveCommand(c *cli.Context) error {
	l, err := newLogger(c)
	if err != nil {
		return err
	}
	defer func() { _ = l.Sync() }()

	cfg := parseAuthorizerConfig(c)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := newSuiClient(ctx, cfg, l)
	if err != nil {
		return err
	}
	defer client.Close()

	signer, err := newAuthorizer(ctx, cfg, l)
	if err != nil {
		return fmt.Errorf("failed to create signer: %w", err)
	}

	store, err := newStore(ctx, cfg, l)
	if err != nil {
		return fmt.Errorf("failed to open authorization store: %w", err)
	}
	defer func() { _ = store.Close() }()

	var verifier server.ITokenVerifier
	if cfg.Server.JWKSUrl != "" {
		keys, err := auth.NewJWKCache(ctx, cfg.Server.JWKSUrl, auth.DefaultRefreshInterval)
		if err != nil {
			return err
		}
		verifier = auth.NewVerifier(keys, &auth.VerifierConfig{
			Issuer:   cfg.Server.JWTIssuer,
			Audience: cfg.Server.JWTAudience,
		}, l)
	}

	orchestrator := newOrchestrator(cfg, signer, client, l)
	svc := service.NewVaultService(orchestrator, store, &service.Ledger{
		Transactions: client,
		Objects:      client,
	}, metrics.NewMetrics(), l)

	serverCfg := &server.ServerConfig{
		Port:      cfg.Server.Port,
		RateLimit: cfg.Server.RateLimit,
		RateBurst: cfg.Server.RateBurst,
	}
	if cfg.Server.InsecureNoAuth {
		serverCfg.Host = server.LoopbackHost
		serverCfg.AllowAnonymous = true
		l.Sugar().Warnw("Serving anonymous callers on the loopback interface only", "host", serverCfg.Host)
	}
	srv := server.NewServer(serverCfg, svc, verifier, l)

	l.Sugar().Infow("Starting vault authorizer",
		"signer", signer.Address().Hex(),
		"package_id", cfg.PackageId,
		"vault_id", cfg.VaultId,
		"port", cfg.Server.Port,
		"store", cfg.Store.Backend,
		"jwt", verifier != nil,
	)
	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	<-ctx.Done()
	l.Sugar().Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), c.Duration("shutdown-timeout"))
	defer cancel()
	return srv.Stop(shutdownCtx)
}

func prepareCommand(c *cli.Context) error {
	l, err := newLogger(c)
	if err != nil {
		return err
	}
	defer func() { _ = l.Sync() }()

	cfg := parseAuthorizerConfig(c)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	req, err := service.RequestFromAuthorize(&types.AuthorizeRequest{
		Kind:      c.String("kind"),
		Account:   c.String("account"),
		AssetType: c.String("asset-type"),
		Amount:    c.Uint64("amount"),
		Signers:   c.StringSlice("signer"),
	})
	if err != nil {
		return err
	}

	client, err := newSuiClient(c.Context, cfg, l)
	if err != nil {
		return err
	}
	defer client.Close()

	signer, err := newAuthorizer(c.Context, cfg, l)
	if err != nil {
		return fmt.Errorf("failed to create signer: %w", err)
	}

	store, err := newStore(c.Context, cfg, l)
	if err != nil {
		return fmt.Errorf("failed to open authorization store: %w", err)
	}
	defer func() { _ = store.Close() }()

	svc := service.NewVaultService(newOrchestrator(cfg, signer, client, l), store, nil, nil, l)
	op, err := svc.Authorize(c.Context, req, "cli")
	if err != nil {
		return err
	}
	return printJSON(c, op)
}

func vaultStateCommand(c *cli.Context) error {
	l, err := newLogger(c)
	if err != nil {
		return err
	}
	defer func() { _ = l.Sync() }()

	cfg := parseAuthorizerConfig(c)
	client, err := newSuiClient(c.Context, cfg, l)
	if err != nil {
		return err
	}
	defer client.Close()

	id := c.String("id")
	if id == "" {
		id = cfg.VaultId
	}
	if id == "" {
		return errors.New("either --id or --vault-id is required")
	}

	fields, err := client.GetObjectState(c.Context, id)
	if err != nil {
		return err
	}
	state, err := decoder.DecodeVaultState(fields)
	if err != nil {
		return err
	}
	return printJSON(c, state)
}

type eventsOutput struct {
	Digest             string                        `json:"digest"`
	Status             string                        `json:"status"`
	Error              string                        `json:"error,omitempty"`
	Events             map[string][]types.TypedEvent `json:"events,omitempty"`
	CreatedObjectId    string                        `json:"createdObjectId,omitempty"`
	PublishedPackageId string                        `json:"publishedPackageId,omitempty"`
}

func eventsCommand(c *cli.Context) error {
	l, err := newLogger(c)
	if err != nil {
		return err
	}
	defer func() { _ = l.Sync() }()

	kinds := []types.OperationKind{types.OperationKindDeposit, types.OperationKindClaim, types.OperationKindWithdraw}
	if k := c.String("kind"); k != "" {
		kind, err := types.ParseOperationKind(k)
		if err != nil {
			return err
		}
		kinds = []types.OperationKind{kind}
	}

	client, err := newSuiClient(c.Context, parseAuthorizerConfig(c), l)
	if err != nil {
		return err
	}
	defer client.Close()

	result, err := client.GetTransactionResult(c.Context, c.String("digest"))
	if err != nil {
		return err
	}
	return printJSON(c, summarizeTransaction(result, kinds))
}

// summarizeTransaction collects the vault events and created objects of result.
// A kind with no event is left out.
func summarizeTransaction(result *types.TransactionResult, kinds []types.OperationKind) *eventsOutput {
	out := &eventsOutput{
		Digest: result.Digest,
		Status: result.Status,
		Error:  result.Error,
		Events: make(map[string][]types.TypedEvent),
	}
	for _, kind := range kinds {
		events, err := vault.ExtractEvents(result, kind)
		if err != nil {
			continue
		}
		out.Events[kind.String()] = events
	}
	if id, err := vault.CreatedVaultId(result); err == nil {
		out.CreatedObjectId = id
	}
	if id, err := vault.PublishedPackageId(result); err == nil {
		out.PublishedPackageId = id
	}
	return out
}

func balanceCommand(c *cli.Context) error {
	l, err := newLogger(c)
	if err != nil {
		return err
	}
	defer func() { _ = l.Sync() }()

	owner, err := types.ParseAddress(c.String("owner"))
	if err != nil {
		return fmt.Errorf("invalid owner: %w", err)
	}

	client, err := newSuiClient(c.Context, parseAuthorizerConfig(c), l)
	if err != nil {
		return err
	}
	defer client.Close()

	balance, err := client.GetBalance(c.Context, owner, c.String("coin-type"))
	if err != nil {
		return err
	}

	out := map[string]any{
		"owner":           owner.String(),
		"coinType":        balance.CoinType,
		"coinObjectCount": balance.CoinObjectCount,
		"totalBalance":    balance.TotalBalance,
	}
	if balance.CoinType == types.SuiTypeArg {
		sui, err := decoder.MistToSui(balance.TotalBalance)
		if err != nil {
			return err
		}
		out["sui"] = sui
	}
	return printJSON(c, out)
}

func signerAddressCommand(c *cli.Context) error {
	l, err := newLogger(c)
	if err != nil {
		return err
	}
	defer func() { _ = l.Sync() }()

	cfg := parseAuthorizerConfig(c)
	if err := cfg.ValidateSigner(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	signer, err := newAuthorizer(c.Context, cfg, l)
	if err != nil {
		return fmt.Errorf("failed to create signer: %w", err)
	}
	return printJSON(c, types.SignerResponse{Address: signer.Address()})
}

func simulateCommand(c *cli.Context) error {
	l, err := newLogger(c)
	if err != nil {
		return err
	}
	defer func() { _ = l.Sync() }()

	cfg := parseAuthorizerConfig(c)
	if err := cfg.ValidateSigner(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	signer, err := newAuthorizer(c.Context, cfg, l)
	if err != nil {
		return fmt.Errorf("failed to create signer: %w", err)
	}

	report, err := runSimulation(c.Context, signer, c.Uint64("amount"), l)
	if err != nil {
		return err
	}
	return printJSON(c, report)
}
