package server

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Layr-Labs/reward-vault-authorizer/pkg/auth"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/metrics"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/persistence"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/persistence/memory"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/service"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/testutil"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/types"
)

type testServer struct {
	tv      *testutil.TestVault
	store   *memory.MemoryPersistence
	server  *Server
	handler http.Handler
}

func newTestServer(t *testing.T, cfg *ServerConfig, verifier ITokenVerifier) *testServer {
	tv := testutil.NewTestVault(t, testutil.NewTestAuthorizer(t, testutil.SignerPrivateKey), testutil.SignerAddress)
	store := memory.NewMemoryPersistence()

	svc := service.NewVaultService(tv.Orchestrator, store, &service.Ledger{
		Submitter:    tv.Chain,
		Transactions: tv.Chain,
		Objects:      tv.Chain,
	}, metrics.NewMetrics(), tv.Logger)

	if cfg == nil {
		cfg = &ServerConfig{AllowAnonymous: true}
	}
	s := NewServer(cfg, svc, verifier, zaptest.NewLogger(t))
	t.Cleanup(func() {
		if s.limiter != nil {
			s.limiter.Stop()
		}
	})
	return &testServer{tv: tv, store: store, server: s, handler: s.GetHandler()}
}

func (ts *testServer) do(t *testing.T, method, path string, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func depositBody(amount uint64) types.AuthorizeRequest {
	return types.AuthorizeRequest{
		Kind:      "deposit",
		Account:   testutil.AccountAlice.String(),
		AssetType: types.SuiTypeArg,
		Amount:    amount,
	}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type confirmResponse struct {
	Id     string          `json:"id"`
	Digest string          `json:"digest"`
	Event  json.RawMessage `json:"event"`
}

func TestServer_AuthorizeAndConfirm(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	ctx := context.Background()

	rec := ts.do(t, http.MethodPost, "/v1/authorize", depositBody(250), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	resp := decode[types.AuthorizeResponse](t, rec)
	op := resp.Operation
	require.NotNil(t, op)
	assert.Equal(t, types.OperationKindDeposit, op.Kind)
	assert.Equal(t, common.HexToAddress(testutil.SignerAddress), op.Signer)
	assert.Equal(t, []string{types.SuiTypeArg}, op.TypeArguments)

	// the operation survives the JSON round trip and still executes
	result, err := ts.tv.Chain.Submit(ctx, op)
	require.NoError(t, err)
	assert.Equal(t, uint64(250), ts.tv.Chain.Balance(ts.tv.VaultId, types.SuiTypeArg))

	rec = ts.do(t, http.MethodPost, "/v1/confirm", types.ConfirmRequest{Id: op.Id, Digest: result.Digest}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	confirmed := decode[confirmResponse](t, rec)
	assert.Equal(t, result.Digest, confirmed.Digest)

	var event types.TokenDeposited
	require.NoError(t, json.Unmarshal(confirmed.Event, &event))
	assert.Equal(t, op.Payload.PaymentId, event.PaymentId)
	assert.Equal(t, uint64(250), event.Amount)

	rec = ts.do(t, http.MethodGet, "/v1/authorizations/"+op.Id, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	record := decode[persistence.AuthorizationRecord](t, rec)
	assert.Equal(t, persistence.StatusConfirmed, record.Status)
	assert.Equal(t, result.Digest, record.TransactionDigest)
}

func TestServer_AuthorizeErrors(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	cases := []struct {
		name   string
		method string
		body   any
		status int
	}{
		{"wrong method", http.MethodGet, nil, http.StatusMethodNotAllowed},
		{"unknown kind", http.MethodPost, types.AuthorizeRequest{Kind: "transfer"}, http.StatusBadRequest},
		{"malformed asset type", http.MethodPost, types.AuthorizeRequest{Kind: "deposit", Account: "0x1", AssetType: "0x2::sui", Amount: 1}, http.StatusBadRequest},
		{"bad account", http.MethodPost, types.AuthorizeRequest{Kind: "claim", Account: "not-hex", AssetType: types.SuiTypeArg, Amount: 1}, http.StatusBadRequest},
		{"unknown field", http.MethodPost, map[string]any{"kind": "deposit", "color": "blue"}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := ts.do(t, tc.method, "/v1/authorize", tc.body, nil)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decode[types.ErrorResponse](t, rec).Error)
		})
	}

	t.Run("malformed json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/authorize", strings.NewReader("{"))
		rec := httptest.NewRecorder()
		ts.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestServer_ConfirmErrors(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	rec := ts.do(t, http.MethodPost, "/v1/confirm", types.ConfirmRequest{Id: "x"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/v1/confirm", types.ConfirmRequest{Id: "missing", Digest: "0x01"}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// a claim against an empty vault aborts on chain
	rec = ts.do(t, http.MethodPost, "/v1/authorize", types.AuthorizeRequest{
		Kind:      "claim",
		Account:   testutil.AccountBob.String(),
		AssetType: types.SuiTypeArg,
		Amount:    10,
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	op := decode[types.AuthorizeResponse](t, rec).Operation
	result, err := ts.tv.Chain.Submit(context.Background(), op)
	require.Error(t, err)

	rec = ts.do(t, http.MethodPost, "/v1/confirm", types.ConfirmRequest{Id: op.Id, Digest: result.Digest}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestServer_ReadEndpoints(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	rec := ts.do(t, http.MethodGet, "/v1/signer", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, common.HexToAddress(testutil.SignerAddress), decode[types.SignerResponse](t, rec).Address)

	rec = ts.do(t, http.MethodGet, "/v1/vault", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	state := decode[types.RewardVaultState](t, rec)
	assert.Equal(t, ts.tv.VaultId, state.Id)
	assert.Equal(t, testutil.SignerSet(testutil.SignerAddress), state.Signers)

	rec = ts.do(t, http.MethodGet, "/v1/authorizations/unknown", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	ts.do(t, http.MethodPost, "/v1/authorize", depositBody(1), nil)
	rec = ts.do(t, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `reward_vault_authorizations_total{kind="deposit",result="success"} 1`)

	require.NoError(t, ts.store.Close())
	rec = ts.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_RateLimit(t *testing.T) {
	ts := newTestServer(t, &ServerConfig{RateLimit: 0.001, RateBurst: 2, AllowAnonymous: true}, nil)

	for i := 0; i < 2; i++ {
		rec := ts.do(t, http.MethodGet, "/v1/signer", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := ts.do(t, http.MethodGet, "/v1/signer", nil, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	// another client has its own bucket
	req := httptest.NewRequest(http.MethodGet, "/v1/signer", nil)
	req.RemoteAddr = "10.0.0.9:4444"
	other := httptest.NewRecorder()
	ts.handler.ServeHTTP(other, req)
	assert.Equal(t, http.StatusOK, other.Code)
}

func TestServer_BearerAuthentication(t *testing.T) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	publicKey, err := jwk.Import(&privateKey.PublicKey)
	require.NoError(t, err)
	require.NoError(t, publicKey.Set(jwk.KeyIDKey, "k1"))
	require.NoError(t, publicKey.Set(jwk.AlgorithmKey, jwa.RS256()))
	keys := jwk.NewSet()
	require.NoError(t, keys.AddKey(publicKey))

	verifier := auth.NewVerifier(keys, &auth.VerifierConfig{Audience: "vault"}, zaptest.NewLogger(t))
	ts := newTestServer(t, &ServerConfig{}, verifier)

	token := jwt.New()
	require.NoError(t, token.Set(jwt.SubjectKey, "project-7"))
	require.NoError(t, token.Set(jwt.AudienceKey, []string{"vault"}))
	require.NoError(t, token.Set(jwt.ExpirationKey, time.Now().Add(time.Hour).Unix()))
	signingKey, err := jwk.Import(privateKey)
	require.NoError(t, err)
	require.NoError(t, signingKey.Set(jwk.KeyIDKey, "k1"))
	require.NoError(t, signingKey.Set(jwk.AlgorithmKey, jwa.RS256()))
	signed, err := jwt.Sign(token, jwt.WithKey(jwa.RS256(), signingKey))
	require.NoError(t, err)

	rec := ts.do(t, http.MethodPost, "/v1/authorize", depositBody(5), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodPost, "/v1/authorize", depositBody(5), http.Header{"Authorization": {"Bearer garbage"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodPost, "/v1/authorize", depositBody(5), http.Header{"Authorization": {"Bearer " + string(signed)}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	op := decode[types.AuthorizeResponse](t, rec).Operation

	record, err := ts.store.LoadAuthorization(context.Background(), op.Id)
	require.NoError(t, err)
	assert.Equal(t, "project-7", record.Caller)

	// the signer address stays public
	rec = ts.do(t, http.MethodGet, "/v1/signer", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func payoutBody(kind string) types.AuthorizeRequest {
	return types.AuthorizeRequest{
		Kind:      kind,
		Account:   "0x00000000000000000000000000000000000000000000000000000000deadbeef",
		AssetType: types.SuiTypeArg,
		Amount:    1_000,
	}
}

func TestServer_AnonymousPayoutsRejected(t *testing.T) {
	verifier := auth.NewVerifier(jwk.NewSet(), &auth.VerifierConfig{}, zaptest.NewLogger(t))

	cases := []struct {
		name     string
		cfg      *ServerConfig
		verifier ITokenVerifier
	}{
		{"no verifier configured", &ServerConfig{}, nil},
		{"verifier configured", &ServerConfig{}, verifier},
		{"verifier wins over anonymous", &ServerConfig{AllowAnonymous: true}, verifier},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t, tc.cfg, tc.verifier)
			ts.tv.Fund(t, types.SuiTypeArg, 1_000)

			for _, kind := range []string{"withdraw", "claim"} {
				rec := ts.do(t, http.MethodPost, "/v1/authorize", payoutBody(kind), nil)
				assert.Equal(t, http.StatusUnauthorized, rec.Code, kind)
				assert.NotContains(t, rec.Body.String(), "signature", kind)
			}

			records, err := ts.store.ListAuthorizations(context.Background())
			require.NoError(t, err)
			assert.Empty(t, records)
			assert.Equal(t, uint64(1_000), ts.tv.Chain.Balance(ts.tv.VaultId, types.SuiTypeArg))

			rec := ts.do(t, http.MethodGet, "/v1/vault", nil, nil)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			rec = ts.do(t, http.MethodGet, "/v1/signer", nil, nil)
			assert.Equal(t, http.StatusOK, rec.Code)
		})
	}
}

func TestNewServer_ListenAddress(t *testing.T) {
	ts := newTestServer(t, &ServerConfig{Host: LoopbackHost, Port: 8081, AllowAnonymous: true}, nil)
	assert.Equal(t, "127.0.0.1:8081", ts.server.httpServer.Addr)

	ts = newTestServer(t, &ServerConfig{Port: 8080}, nil)
	assert.Equal(t, ":8080", ts.server.httpServer.Addr)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(persistence.ErrNotFound, http.StatusTeapot))
	assert.Equal(t, http.StatusConflict, statusFor(persistence.ErrDuplicatePayment, http.StatusTeapot))
	assert.Equal(t, http.StatusBadGateway, statusFor(types.ErrSigning, http.StatusTeapot))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(types.ErrDeadlineUnavailable, http.StatusTeapot))
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(types.ErrEventNotFound, http.StatusTeapot))
	assert.Equal(t, http.StatusTeapot, statusFor(io.EOF, http.StatusTeapot))
}
