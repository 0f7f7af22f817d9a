package web3signer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"
)

const (
	eth1SignPath       = "/api/v1/eth1/sign/"
	eth1PublicKeysPath = "/api/v1/eth1/publicKeys"
	upcheckPath        = "/upcheck"
)

// Config holds the Web3Signer endpoint
type Config struct {
	BaseUrl string
	Timeout time.Duration
}

// DefaultConfig points at a Web3Signer on its default local port
func DefaultConfig() *Config {
	return &Config{
		BaseUrl: "http://localhost:9000",
		Timeout: 10 * time.Second,
	}
}

// Client is a Web3Signer REST client
type Client struct {
	config     *Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a client for cfg
func NewClient(cfg *Config, logger *zap.Logger) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if _, err := url.Parse(cfg.BaseUrl); err != nil || cfg.BaseUrl == "" {
		return nil, fmt.Errorf("invalid web3signer url %q", cfg.BaseUrl)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultConfig().Timeout
	}
	return &Client{
		config:     cfg,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

func (c *Client) SetHttpClient(client *http.Client) {
	c.httpClient = client
}

func (c *Client) ListPublicKeys(ctx context.Context) ([]string, error) {
	var keys []string
	body, err := c.do(ctx, http.MethodGet, eth1PublicKeysPath, nil)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(body, &keys); err != nil {
		return nil, fmt.Errorf("failed to decode public keys: %w", err)
	}
	return keys, nil
}

type signRequest struct {
	Data string `json:"data"`
}

func (c *Client) SignRaw(ctx context.Context, identifier string, data []byte) (string, error) {
	payload, err := json.Marshal(signRequest{Data: hexutil.Encode(data)})
	if err != nil {
		return "", err
	}
	body, err := c.do(ctx, http.MethodPost, eth1SignPath+url.PathEscape(identifier), payload)
	if err != nil {
		return "", err
	}
	sig := strings.TrimSpace(string(body))
	c.logger.Sugar().Debugw("Web3Signer signed payload", "identifier", identifier, "bytes", len(data))
	return sig, nil
}

func (c *Client) Upcheck(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, upcheckPath, nil)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.config.BaseUrl, "/")+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("web3signer request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read web3signer response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("web3signer %s %s returned %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
