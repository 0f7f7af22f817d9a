package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/Layr-Labs/reward-vault-authorizer/pkg/config"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/deadline"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/types"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/vault"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "vault-authorizer",
		Usage: "Off-chain authority for the cross-chain reward vault",
		Description: `Signs reward vault operations with an EVM secp256k1 key so the on-chain vault
accepts them.

This tool can:
- Serve an authorization API that hands out signed deposit, claim and withdraw calls
- Prepare a single signed operation for manual submission
- Read vault state, transaction events and balances from a fullnode
- Run the full flow against an in-memory vault`,
		Version: "1.0.0",
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the authorization HTTP API",
				Flags:  serveFlags(),
				Action: serveCommand,
			},
			{
				Name:  "prepare",
				Usage: "Prepare and sign one vault operation and print it as JSON",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "kind",
						Usage:    "Operation kind: create_vault, deposit, claim or withdraw",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "account",
						Usage: "Depositor (deposit) or recipient (claim, withdraw) ledger address",
					},
					&cli.StringFlag{
						Name:  "asset-type",
						Usage: "Fully qualified asset type",
						Value: types.SuiTypeArg,
					},
					&cli.Uint64Flag{
						Name:  "amount",
						Usage: "Amount in base units",
					},
					&cli.StringSliceFlag{
						Name:  "signer",
						Usage: "EVM signer address of a new vault (create_vault, repeatable)",
					},
				},
				Action: prepareCommand,
			},
			{
				Name:  "vault-state",
				Usage: "Read and decode a reward vault object",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "id",
						Usage: "Vault object id (defaults to --vault-id)",
					},
				},
				Action: vaultStateCommand,
			},
			{
				Name:  "events",
				Usage: "Print the vault events and created objects of a transaction",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "digest",
						Usage:    "Transaction digest",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "kind",
						Usage: "Only decode events of this operation kind",
					},
				},
				Action: eventsCommand,
			},
			{
				Name:  "balance",
				Usage: "Print the coin balance of an address",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "owner",
						Usage:    "Ledger address",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "coin-type",
						Usage: "Coin type",
						Value: types.SuiTypeArg,
					},
				},
				Action: balanceCommand,
			},
			{
				Name:   "signer-address",
				Usage:  "Print the EVM address of the configured signer",
				Action: signerAddressCommand,
			},
			{
				Name:  "simulate",
				Usage: "Create a vault, deposit, claim and withdraw against an in-memory vault",
				Flags: []cli.Flag{
					&cli.Uint64Flag{
						Name:  "amount",
						Usage: "Amount to deposit; half is claimed and a quarter withdrawn",
						Value: 1_000_000_000,
					},
				},
				Action: simulateCommand,
			},
		},
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "network",
			Usage:   fmt.Sprintf("Ledger network: %s", config.GetSupportedNetworksString()),
			Value:   string(config.Network_Testnet),
			EnvVars: []string{config.EnvVaultNetwork},
		},
		&cli.StringFlag{
			Name:    "rpc-url",
			Aliases: []string{"rpc"},
			Usage:   "Fullnode JSON-RPC URL, overrides --network",
			EnvVars: []string{config.EnvVaultRpcUrl},
		},
		&cli.StringFlag{
			Name:    "package-id",
			Usage:   "Id of the published vault package",
			EnvVars: []string{config.EnvVaultPackageId},
		},
		&cli.StringFlag{
			Name:    "vault-id",
			Usage:   "Id of the shared vault object",
			EnvVars: []string{config.EnvVaultVaultId},
		},
		&cli.StringFlag{
			Name:    "module",
			Usage:   "Move module of the vault",
			Value:   vault.DefaultModule,
			EnvVars: []string{config.EnvVaultModule},
		},
		&cli.Uint64Flag{
			Name:    "project-id",
			Usage:   "Project id signed into every operation",
			EnvVars: []string{config.EnvVaultProjectId},
		},
		&cli.DurationFlag{
			Name:    "deadline-margin",
			Usage:   "Time added past the end of the current epoch",
			Value:   deadline.DefaultMargin,
			EnvVars: []string{config.EnvVaultDeadlineMargin},
		},
		&cli.StringFlag{
			Name:    "signer-backend",
			Usage:   "Signer: local, aws-kms or web3signer",
			Value:   string(config.SignerBackend_Local),
			EnvVars: []string{config.EnvVaultSignerBackend},
		},
		&cli.StringFlag{
			Name:    "private-key",
			Usage:   "secp256k1 private key (hex) for the local signer",
			EnvVars: []string{config.EnvVaultPrivateKey},
		},
		&cli.StringFlag{
			Name:    "aws-kms-key-id",
			Usage:   "KMS key id or ARN for the aws-kms signer",
			EnvVars: []string{config.EnvVaultAWSKMSKeyId},
		},
		&cli.StringFlag{
			Name:    "aws-region",
			Usage:   "AWS region override",
			EnvVars: []string{config.EnvVaultAWSRegion},
		},
		&cli.StringFlag{
			Name:    "web3signer-url",
			Usage:   "Web3Signer base URL",
			EnvVars: []string{config.EnvVaultWeb3SignerUrl},
		},
		&cli.StringFlag{
			Name:    "web3signer-identifier",
			Usage:   "Web3Signer key identifier (defaults to the address)",
			EnvVars: []string{config.EnvVaultWeb3SignerIdentifier},
		},
		&cli.StringFlag{
			Name:    "web3signer-address",
			Usage:   "EVM address of the Web3Signer key",
			EnvVars: []string{config.EnvVaultWeb3SignerAddress},
		},
		&cli.StringFlag{
			Name:    "store",
			Usage:   "Authorization store: memory, badger, redis or postgres",
			Value:   string(config.StoreBackend_Memory),
			EnvVars: []string{config.EnvVaultStoreBackend},
		},
		&cli.StringFlag{
			Name:    "data-path",
			Usage:   "Badger data directory",
			EnvVars: []string{config.EnvVaultDataPath},
		},
		&cli.StringFlag{
			Name:    "redis-address",
			Usage:   "Redis host:port",
			EnvVars: []string{config.EnvVaultRedisAddress},
		},
		&cli.StringFlag{
			Name:    "redis-password",
			Usage:   "Redis password",
			EnvVars: []string{config.EnvVaultRedisPassword},
		},
		&cli.IntFlag{
			Name:    "redis-db",
			Usage:   "Redis database number",
			EnvVars: []string{config.EnvVaultRedisDB},
		},
		&cli.StringFlag{
			Name:    "redis-key-prefix",
			Usage:   "Prefix for every Redis key",
			EnvVars: []string{config.EnvVaultRedisKeyPrefix},
		},
		&cli.StringFlag{
			Name:    "postgres-dsn",
			Usage:   "PostgreSQL connection string",
			EnvVars: []string{config.EnvVaultPostgresDSN},
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Usage:   "Enable verbose logging",
			EnvVars: []string{config.EnvVaultVerbose},
		},
	}
}

func serveFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:    "port",
			Aliases: []string{"p"},
			Value:   8080,
			Usage:   "HTTP server port",
			EnvVars: []string{config.EnvVaultPort},
		},
		&cli.Float64Flag{
			Name:    "rate-limit",
			Usage:   "Requests per second per client, 0 disables",
			Value:   10,
			EnvVars: []string{config.EnvVaultRateLimit},
		},
		&cli.IntFlag{
			Name:    "rate-burst",
			Usage:   "Burst size of the per-client rate limit",
			Value:   20,
			EnvVars: []string{config.EnvVaultRateBurst},
		},
		&cli.StringFlag{
			Name:    "jwks-url",
			Usage:   "JWKS URL; callers must present a bearer JWT signed by one of its keys",
			EnvVars: []string{config.EnvVaultJWKSUrl},
		},
		&cli.BoolFlag{
			Name:    "insecure-no-auth",
			Usage:   "Serve anonymous callers without a JWKS, listening on 127.0.0.1 only",
			EnvVars: []string{config.EnvVaultInsecureNoAuth},
		},
		&cli.StringFlag{
			Name:    "jwt-issuer",
			Usage:   "Required JWT issuer",
			EnvVars: []string{config.EnvVaultJWTIssuer},
		},
		&cli.StringFlag{
			Name:    "jwt-audience",
			Usage:   "Required JWT audience",
			EnvVars: []string{config.EnvVaultJWTAudience},
		},
		&cli.DurationFlag{
			Name:  "shutdown-timeout",
			Usage: "Time allowed for in-flight requests on shutdown",
			Value: 10 * time.Second,
		},
	}
}

func parseAuthorizerConfig(c *cli.Context) *config.AuthorizerConfig {
	cfg := &config.AuthorizerConfig{
		Network:        config.Network(c.String("network")),
		RpcUrl:         c.String("rpc-url"),
		PackageId:      c.String("package-id"),
		VaultId:        c.String("vault-id"),
		Module:         c.String("module"),
		ProjectId:      c.Uint64("project-id"),
		DeadlineMargin: c.Duration("deadline-margin"),
		Signer: config.SignerConfig{
			Backend:              config.SignerBackend(c.String("signer-backend")),
			PrivateKey:           c.String("private-key"),
			AWSKMSKeyId:          c.String("aws-kms-key-id"),
			AWSRegion:            c.String("aws-region"),
			Web3SignerUrl:        c.String("web3signer-url"),
			Web3SignerIdentifier: c.String("web3signer-identifier"),
			Web3SignerAddress:    c.String("web3signer-address"),
		},
		Store: config.StoreConfig{
			Backend:        config.StoreBackend(c.String("store")),
			DataPath:       c.String("data-path"),
			RedisAddress:   c.String("redis-address"),
			RedisPassword:  c.String("redis-password"),
			RedisDB:        c.Int("redis-db"),
			RedisKeyPrefix: c.String("redis-key-prefix"),
			PostgresDSN:    c.String("postgres-dsn"),
		},
		Debug: c.Bool("verbose"),
	}
	if c.Command.Name == "serve" {
		cfg.Server = &config.ServerConfig{
			Port:           c.Int("port"),
			RateLimit:      c.Float64("rate-limit"),
			RateBurst:      c.Int("rate-burst"),
			JWKSUrl:        c.String("jwks-url"),
			JWTIssuer:      c.String("jwt-issuer"),
			JWTAudience:    c.String("jwt-audience"),
			InsecureNoAuth: c.Bool("insecure-no-auth"),
		}
	}
	return cfg
}
