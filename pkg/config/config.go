package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"k8s.io/apimachinery/pkg/util/validation/field"

	"github.com/Layr-Labs/reward-vault-authorizer/pkg/types"
)

// Environment variable names for the authorizer configuration
const (
	EnvVaultNetwork        = "VAULT_NETWORK"
	EnvVaultRpcUrl         = "VAULT_RPC_URL"
	EnvVaultPackageId      = "VAULT_PACKAGE_ID"
	EnvVaultVaultId        = "VAULT_VAULT_ID"
	EnvVaultModule         = "VAULT_MODULE"
	EnvVaultProjectId      = "VAULT_PROJECT_ID"
	EnvVaultDeadlineMargin = "VAULT_DEADLINE_MARGIN"
	EnvVaultVerbose        = "VAULT_VERBOSE"

	EnvVaultSignerBackend        = "VAULT_SIGNER_BACKEND"
	EnvVaultPrivateKey           = "VAULT_PRIVATE_KEY"
	EnvVaultAWSKMSKeyId          = "VAULT_AWS_KMS_KEY_ID"
	EnvVaultAWSRegion            = "VAULT_AWS_REGION"
	EnvVaultWeb3SignerUrl        = "VAULT_WEB3SIGNER_URL"
	EnvVaultWeb3SignerIdentifier = "VAULT_WEB3SIGNER_IDENTIFIER"
	EnvVaultWeb3SignerAddress    = "VAULT_WEB3SIGNER_ADDRESS"

	EnvVaultStoreBackend   = "VAULT_STORE_BACKEND"
	EnvVaultDataPath       = "VAULT_DATA_PATH"
	EnvVaultRedisAddress   = "VAULT_REDIS_ADDRESS"
	EnvVaultRedisPassword  = "VAULT_REDIS_PASSWORD"
	EnvVaultRedisDB        = "VAULT_REDIS_DB"
	EnvVaultRedisKeyPrefix = "VAULT_REDIS_KEY_PREFIX"
	EnvVaultPostgresDSN    = "VAULT_POSTGRES_DSN"

	EnvVaultPort           = "VAULT_PORT"
	EnvVaultRateLimit      = "VAULT_RATE_LIMIT"
	EnvVaultRateBurst      = "VAULT_RATE_BURST"
	EnvVaultJWKSUrl        = "VAULT_JWKS_URL"
	EnvVaultJWTIssuer      = "VAULT_JWT_ISSUER"
	EnvVaultJWTAudience    = "VAULT_JWT_AUDIENCE"
	EnvVaultInsecureNoAuth = "VAULT_INSECURE_NO_AUTH"
)

type Network string

const (
	Network_Mainnet  Network = "mainnet"
	Network_Testnet  Network = "testnet"
	Network_Devnet   Network = "devnet"
	Network_Localnet Network = "localnet"
)

var NetworkFullnodeUrls = map[Network]string{
	Network_Mainnet:  "https://fullnode.mainnet.sui.io:443",
	Network_Testnet:  "https://fullnode.testnet.sui.io:443",
	Network_Devnet:   "https://fullnode.devnet.sui.io:443",
	Network_Localnet: "http://127.0.0.1:9000",
}

// GetFullnodeUrl returns the public fullnode of network
func GetFullnodeUrl(network Network) (string, error) {
	u, ok := NetworkFullnodeUrls[network]
	if !ok {
		return "", fmt.Errorf("unsupported network %q. Supported: %s", network, GetSupportedNetworksString())
	}
	return u, nil
}

// GetSupportedNetworksString returns supported network names for CLI help
func GetSupportedNetworksString() string {
	names := make([]string, 0, len(NetworkFullnodeUrls))
	for n := range NetworkFullnodeUrls {
		names = append(names, string(n))
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

type SignerBackend string

const (
	SignerBackend_Local      SignerBackend = "local"
	SignerBackend_AWSKMS     SignerBackend = "aws-kms"
	SignerBackend_Web3Signer SignerBackend = "web3signer"
)

type StoreBackend string

const (
	StoreBackend_Memory   StoreBackend = "memory"
	StoreBackend_Badger   StoreBackend = "badger"
	StoreBackend_Redis    StoreBackend = "redis"
	StoreBackend_Postgres StoreBackend = "postgres"
)

type SignerConfig struct {
	Backend SignerBackend `json:"backend"`

	// local
	PrivateKey string `json:"-"`

	// aws-kms
	AWSKMSKeyId string `json:"awsKmsKeyId,omitempty"`
	AWSRegion   string `json:"awsRegion,omitempty"`

	// web3signer
	Web3SignerUrl        string `json:"web3SignerUrl,omitempty"`
	Web3SignerIdentifier string `json:"web3SignerIdentifier,omitempty"`
	Web3SignerAddress    string `json:"web3SignerAddress,omitempty"`
}

type StoreConfig struct {
	Backend        StoreBackend `json:"backend"`
	DataPath       string       `json:"dataPath,omitempty"`
	RedisAddress   string       `json:"redisAddress,omitempty"`
	RedisPassword  string       `json:"-"`
	RedisDB        int          `json:"redisDb,omitempty"`
	RedisKeyPrefix string       `json:"redisKeyPrefix,omitempty"`
	PostgresDSN    string       `json:"-"`
}

type ServerConfig struct {
	Port        int     `json:"port"`
	RateLimit   float64 `json:"rateLimit"`
	RateBurst   int     `json:"rateBurst"`
	JWKSUrl     string  `json:"jwksUrl,omitempty"`
	JWTIssuer   string  `json:"jwtIssuer,omitempty"`
	JWTAudience string  `json:"jwtAudience,omitempty"`

	// InsecureNoAuth serves anonymous callers, on the loopback interface only
	InsecureNoAuth bool `json:"insecureNoAuth,omitempty"`
}

// AuthorizerConfig represents the complete configuration of the authorizer
type AuthorizerConfig struct {
	// Ledger
	Network Network `json:"network"`
	RpcUrl  string  `json:"rpcUrl,omitempty"` // overrides the network's fullnode

	// Deployed vault
	PackageId string `json:"packageId"`
	VaultId   string `json:"vaultId,omitempty"`
	Module    string `json:"module,omitempty"`
	ProjectId uint64 `json:"projectId"`

	DeadlineMargin time.Duration `json:"deadlineMargin"`

	Signer SignerConfig  `json:"signer"`
	Store  StoreConfig   `json:"store"`
	Server *ServerConfig `json:"server,omitempty"`

	Debug bool `json:"debug"`
}

// ResolveRpcUrl returns RpcUrl if set, otherwise the network's fullnode
func (c *AuthorizerConfig) ResolveRpcUrl() (string, error) {
	if c.RpcUrl != "" {
		return c.RpcUrl, nil
	}
	return GetFullnodeUrl(c.Network)
}

// Validate validates the authorizer configuration. The server section is only
// checked when present.
func (c *AuthorizerConfig) Validate() error {
	var allErrors field.ErrorList

	if c.RpcUrl == "" {
		if _, ok := NetworkFullnodeUrls[c.Network]; !ok {
			allErrors = append(allErrors, field.NotSupported(field.NewPath("network"), string(c.Network), supportedNetworks()))
		}
	} else if u, err := url.Parse(c.RpcUrl); err != nil || u.Scheme == "" || u.Host == "" {
		allErrors = append(allErrors, field.Invalid(field.NewPath("rpcUrl"), c.RpcUrl, "must be an absolute URL"))
	}

	if c.PackageId == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("packageId"), "packageId is required"))
	} else if _, err := types.ParseAddress(c.PackageId); err != nil {
		allErrors = append(allErrors, field.Invalid(field.NewPath("packageId"), c.PackageId, err.Error()))
	}
	if c.VaultId != "" {
		if _, err := types.ParseAddress(c.VaultId); err != nil {
			allErrors = append(allErrors, field.Invalid(field.NewPath("vaultId"), c.VaultId, err.Error()))
		}
	}
	if c.DeadlineMargin < 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("deadlineMargin"), c.DeadlineMargin.String(), "must not be negative"))
	}

	allErrors = append(allErrors, c.Signer.validate(field.NewPath("signer"))...)
	allErrors = append(allErrors, c.Store.validate(field.NewPath("store"))...)
	if c.Server != nil {
		allErrors = append(allErrors, c.Server.validate(field.NewPath("server"))...)
	}

	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

// ValidateSigner validates only the signer section, for commands that never touch the ledger.
func (c *AuthorizerConfig) ValidateSigner() error {
	if allErrors := c.Signer.validate(field.NewPath("signer")); len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

func (s *SignerConfig) validate(path *field.Path) field.ErrorList {
	var allErrors field.ErrorList
	switch s.Backend {
	case SignerBackend_Local:
		if s.PrivateKey == "" {
			allErrors = append(allErrors, field.Required(path.Child("privateKey"), "privateKey is required for the local signer"))
		} else if _, err := crypto.HexToECDSA(strings.TrimPrefix(s.PrivateKey, "0x")); err != nil {
			// the key itself is never echoed back
			allErrors = append(allErrors, field.Invalid(path.Child("privateKey"), "<redacted>", "must be a 32 byte hex secp256k1 key"))
		}
	case SignerBackend_AWSKMS:
		if s.AWSKMSKeyId == "" {
			allErrors = append(allErrors, field.Required(path.Child("awsKmsKeyId"), "awsKmsKeyId is required for the aws-kms signer"))
		}
	case SignerBackend_Web3Signer:
		if s.Web3SignerUrl == "" {
			allErrors = append(allErrors, field.Required(path.Child("web3SignerUrl"), "web3SignerUrl is required for the web3signer signer"))
		}
		if s.Web3SignerAddress == "" {
			allErrors = append(allErrors, field.Required(path.Child("web3SignerAddress"), "web3SignerAddress is required for the web3signer signer"))
		} else if !common.IsHexAddress(s.Web3SignerAddress) {
			allErrors = append(allErrors, field.Invalid(path.Child("web3SignerAddress"), s.Web3SignerAddress, "must be an EVM address"))
		}
	default:
		allErrors = append(allErrors, field.NotSupported(path.Child("backend"), string(s.Backend),
			[]string{string(SignerBackend_Local), string(SignerBackend_AWSKMS), string(SignerBackend_Web3Signer)}))
	}
	return allErrors
}

// Web3SignerKey is the identifier passed to the signer, defaulting to the address.
func (s *SignerConfig) Web3SignerKey() string {
	if s.Web3SignerIdentifier != "" {
		return s.Web3SignerIdentifier
	}
	return s.Web3SignerAddress
}

func (s *StoreConfig) validate(path *field.Path) field.ErrorList {
	var allErrors field.ErrorList
	switch s.Backend {
	case StoreBackend_Memory:
	case StoreBackend_Badger:
		if s.DataPath == "" {
			allErrors = append(allErrors, field.Required(path.Child("dataPath"), "dataPath is required for the badger store"))
		}
	case StoreBackend_Redis:
		if s.RedisAddress == "" {
			allErrors = append(allErrors, field.Required(path.Child("redisAddress"), "redisAddress is required for the redis store"))
		}
		if s.RedisDB < 0 || s.RedisDB > 15 {
			allErrors = append(allErrors, field.Invalid(path.Child("redisDb"), s.RedisDB, "must be between 0-15"))
		}
	case StoreBackend_Postgres:
		if s.PostgresDSN == "" {
			allErrors = append(allErrors, field.Required(path.Child("postgresDsn"), "postgresDsn is required for the postgres store"))
		}
	default:
		allErrors = append(allErrors, field.NotSupported(path.Child("backend"), string(s.Backend),
			[]string{string(StoreBackend_Memory), string(StoreBackend_Badger), string(StoreBackend_Redis), string(StoreBackend_Postgres)}))
	}
	return allErrors
}

func (s *ServerConfig) validate(path *field.Path) field.ErrorList {
	var allErrors field.ErrorList
	if s.Port < 1 || s.Port > 65535 {
		allErrors = append(allErrors, field.Invalid(path.Child("port"), s.Port, "must be between 1-65535"))
	}
	if s.RateLimit < 0 {
		allErrors = append(allErrors, field.Invalid(path.Child("rateLimit"), s.RateLimit, "must not be negative"))
	}
	if s.RateLimit > 0 && s.RateBurst < 1 {
		allErrors = append(allErrors, field.Invalid(path.Child("rateBurst"), s.RateBurst, "must be at least 1 when rate limiting"))
	}
	switch {
	case s.JWKSUrl != "":
		if u, err := url.Parse(s.JWKSUrl); err != nil || u.Scheme == "" || u.Host == "" {
			allErrors = append(allErrors, field.Invalid(path.Child("jwksUrl"), s.JWKSUrl, "must be an absolute URL"))
		}
		if s.InsecureNoAuth {
			allErrors = append(allErrors, field.Invalid(path.Child("insecureNoAuth"), s.InsecureNoAuth, "cannot be combined with jwksUrl"))
		}
	case !s.InsecureNoAuth:
		allErrors = append(allErrors, field.Required(path.Child("jwksUrl"), "callers must authenticate unless insecureNoAuth is set"))
	}
	return allErrors
}

func supportedNetworks() []string {
	return strings.Split(GetSupportedNetworksString(), ", ")
}
