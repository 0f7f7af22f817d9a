package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Layr-Labs/reward-vault-authorizer/pkg/auth"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/service"
)

/*
Server exposes the vault service over HTTP.

  POST /v1/authorize
    - Request: { kind, account, assetType, amount, projectId, signers }
    - Prepares and signs the operation, records it as pending
    - Response: { operation } ready for submission by the caller

  POST /v1/confirm
    - Request: { id, digest }
    - Fetches the transaction, matches the operation's event by payment id
    - Response: { id, digest, event }

  GET /v1/authorizations/{id}   stored record of one authorization
  GET /v1/vault                 decoded state of the configured vault
  GET /v1/signer                EVM address the authorizer signs with
  GET /healthz                  store health
  GET /metrics                  Prometheus metrics

Authentication:
  - The /v1/ endpoints except /v1/signer require an "Authorization: Bearer <jwt>"
    header checked by the token verifier; the token subject is recorded as the caller.
  - Without a verifier they answer 401 unless AllowAnonymous is set.
  - Every request passes the per-client rate limiter.
*/

const maxRequestBodyBytes = 1 << 20

// LoopbackHost is where a server accepting anonymous callers should listen
const LoopbackHost = "127.0.0.1"

type ITokenVerifier interface {
	Verify(ctx context.Context, token string) (*auth.Claims, error)
}

type ServerConfig struct {
	Host         string // empty listens on every interface
	Port         int
	RateLimit    float64 // requests per second per client, 0 disables limiting
	RateBurst    int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// AllowAnonymous serves the /v1/ endpoints without a token verifier
	AllowAnonymous bool
}

// Server handles HTTP requests for the vault service
type Server struct {
	service    *service.VaultService
	verifier   ITokenVerifier
	anonymous  bool
	limiter    *RateLimiter
	logger     *zap.Logger
	httpServer *http.Server
}

// NewServer creates a new server. With a nil verifier the /v1/ endpoints reject every
// request unless cfg.AllowAnonymous is set.
func NewServer(cfg *ServerConfig, svc *service.VaultService, verifier ITokenVerifier, logger *zap.Logger) *Server {
	s := &Server{
		service:   svc,
		verifier:  verifier,
		anonymous: verifier == nil && cfg.AllowAnonymous,
		logger:    logger,
	}

	mux := http.NewServeMux()

	mux.Handle("/v1/authorize", s.requireCaller(http.HandlerFunc(s.handleAuthorize)))
	mux.Handle("/v1/confirm", s.requireCaller(http.HandlerFunc(s.handleConfirm)))
	mux.Handle("/v1/authorizations/", s.requireCaller(http.HandlerFunc(s.handleGetAuthorization)))
	mux.Handle("/v1/vault", s.requireCaller(http.HandlerFunc(s.handleVaultState)))
	mux.HandleFunc("/v1/signer", s.handleSigner)

	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", svc.Metrics().Handler())

	var handler http.Handler = mux
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = NewRateLimiter(cfg.RateLimit, burst, svc.Metrics().IncRateLimited)
		handler = s.limiter.Middleware(handler)
	}
	handler = s.withRequestId(handler)

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	go func() {
		s.logger.Sugar().Infow("Starting HTTP server", "signer", s.service.SignerAddress().Hex(), "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			s.logger.Sugar().Errorw("HTTP server error", "error", err)
		}
	}()
	return nil
}

// Stop drains in-flight requests until ctx expires
func (s *Server) Stop(ctx context.Context) error {
	if s.limiter != nil {
		s.limiter.Stop()
	}
	return s.httpServer.Shutdown(ctx)
}

// GetHandler returns the HTTP handler (for testing)
func (s *Server) GetHandler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) withRequestId(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		s.logger.Sugar().Debugw("HTTP request", "request_id", id, "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

type callerKey struct{}

// requireCaller verifies the bearer token. Without a verifier it refuses every request
// unless anonymous callers were explicitly allowed.
func (s *Server) requireCaller(next http.Handler) http.Handler {
	if s.anonymous {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.verifier == nil {
			writeError(w, http.StatusUnauthorized, "caller authentication is not configured")
			return
		}
		token, err := auth.BearerToken(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		claims, err := s.verifier.Verify(r.Context(), token)
		if err != nil {
			s.logger.Sugar().Infow("Rejected caller token", "error", err)
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), callerKey{}, claims.Subject)))
	})
}

func callerFromContext(ctx context.Context) string {
	caller, _ := ctx.Value(callerKey{}).(string)
	return caller
}
