package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Layr-Labs/reward-vault-authorizer/pkg/persistence"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/service"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/types"
)

// handleAuthorize prepares and signs one vault operation
func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req types.AuthorizeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to parse request: %v", err))
		return
	}

	opReq, err := service.RequestFromAuthorize(&req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	op, err := s.service.Authorize(r.Context(), opReq, callerFromContext(r.Context()))
	if err != nil {
		s.logger.Sugar().Warnw("Authorization rejected", "kind", req.Kind, "error", err)
		writeError(w, statusFor(err, http.StatusBadRequest), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, types.AuthorizeResponse{Operation: op})
}

// handleConfirm matches a submitted transaction to its authorization
func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req types.ConfirmRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to parse request: %v", err))
		return
	}
	if req.Id == "" || req.Digest == "" {
		writeError(w, http.StatusBadRequest, "id and digest are required")
		return
	}

	res, err := s.service.Confirm(r.Context(), req.Id, req.Digest)
	if err != nil {
		s.logger.Sugar().Warnw("Confirmation failed", "id", req.Id, "digest", req.Digest, "error", err)
		writeError(w, statusFor(err, http.StatusBadGateway), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, types.ConfirmResponse{
		Id:     req.Id,
		Digest: res.Result.Digest,
		Event:  res.Event,
	})
}

func (s *Server) handleGetAuthorization(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/authorizations/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "authorization not found")
		return
	}

	record, err := s.service.Authorization(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err, http.StatusInternalServerError), err.Error())
		return
	}
	if record == nil {
		writeError(w, http.StatusNotFound, "authorization not found")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleVaultState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	state, err := s.service.VaultState(r.Context(), r.URL.Query().Get("id"))
	if err != nil {
		writeError(w, statusFor(err, http.StatusBadGateway), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleSigner(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, types.SignerResponse{Address: s.service.SignerAddress()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.service.HealthCheck(); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusFor maps service errors to HTTP status codes
func statusFor(err error, fallback int) int {
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, persistence.ErrDuplicatePayment), errors.Is(err, service.ErrAlreadyConfirmed):
		return http.StatusConflict
	case errors.Is(err, types.ErrMalformedTypeName):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrEventNotFound), errors.Is(err, service.ErrTransactionFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, types.ErrSigning), errors.Is(err, types.ErrSchemaMismatch):
		return http.StatusBadGateway
	case errors.Is(err, types.ErrDeadlineUnavailable), errors.Is(err, persistence.ErrClosed):
		return http.StatusServiceUnavailable
	}
	return fallback
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, types.ErrorResponse{Error: msg})
}
