// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-relyingparty.
//
// go-relyingparty is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package http

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/jeremyhahn/go-relyingparty/pkg/metrics"
	"github.com/jeremyhahn/go-relyingparty/pkg/rp"
)

// Handler provides HTTP handlers for the relying party ceremony endpoints.
// These handlers can be mounted on any HTTP router.
type Handler struct {
	service *rp.Service
	logger  *slog.Logger
}

// NewHandler creates a new ceremony HTTP handler.
func NewHandler(service *rp.Service) *Handler {
	return &Handler{
		service: service,
		logger:  slog.Default(),
	}
}

// WithLogger sets a custom logger for the handler.
func (h *Handler) WithLogger(logger *slog.Logger) *Handler {
	h.logger = logger
	return h
}

// AttestationOptions handles GET /attestation
//
// Query param: userId (optional, base64url user handle). Without it a
// fresh user handle is generated; with it the options exclude the user's
// existing credentials.
//
// Response: {"success": true, "options": PublicKeyCredentialCreationOptions}
func (h *Handler) AttestationOptions(w http.ResponseWriter, r *http.Request) {
	var user rp.UserInfo
	if raw := r.URL.Query().Get(QueryParamUserID); raw != "" {
		userID, err := decodeUserID(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidUserID, "invalid user ID encoding")
			return
		}
		user.ID = userID
	}

	options, _, err := h.service.BeginRegistration(r.Context(), user)
	if err != nil {
		h.handleServiceError(w, "attestation options", err)
		return
	}

	metrics.RecordCeremonyBegin(string(rp.CeremonyRegistration))
	h.writeJSON(w, http.StatusOK, OptionsResponse{Success: true, Options: options.Response})
}

// AttestationResult handles POST /attestation
//
// Query param: userId (required, base64url user handle)
// Request body: attestation response from the authenticator
// Response: {"success": true}
func (h *Handler) AttestationResult(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUserID(w, r)
	if !ok {
		return
	}

	response, err := protocol.ParseCredentialCreationResponseBody(r.Body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid attestation response")
		return
	}

	start := time.Now()
	_, err = h.service.FinishRegistration(r.Context(), userID, response)
	metrics.RecordVerificationDuration(string(rp.CeremonyRegistration), time.Since(start).Seconds())
	if err != nil {
		metrics.RecordCeremonyFinish(string(rp.CeremonyRegistration), "failure")
		h.handleServiceError(w, "attestation result", err)
		return
	}

	metrics.RecordCeremonyFinish(string(rp.CeremonyRegistration), "success")
	h.writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// AssertionOptions handles GET /assertion
//
// Query param: userId (required, base64url user handle)
// Response: {"success": true, "options": PublicKeyCredentialRequestOptions}
func (h *Handler) AssertionOptions(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUserID(w, r)
	if !ok {
		return
	}

	options, err := h.service.BeginLogin(r.Context(), userID)
	if err != nil {
		h.handleServiceError(w, "assertion options", err)
		return
	}

	metrics.RecordCeremonyBegin(string(rp.CeremonyAuthentication))
	h.writeJSON(w, http.StatusOK, OptionsResponse{Success: true, Options: options.Response})
}

// AssertionResult handles POST /assertion
//
// Query param: userId (required, base64url user handle)
// Request body: assertion response from the authenticator
// Response: {"success": true}
func (h *Handler) AssertionResult(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUserID(w, r)
	if !ok {
		return
	}

	response, err := protocol.ParseCredentialRequestResponseBody(r.Body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid assertion response")
		return
	}

	start := time.Now()
	_, err = h.service.FinishLogin(r.Context(), userID, response)
	metrics.RecordVerificationDuration(string(rp.CeremonyAuthentication), time.Since(start).Seconds())
	if err != nil {
		metrics.RecordCeremonyFinish(string(rp.CeremonyAuthentication), "failure")
		h.handleServiceError(w, "assertion result", err)
		return
	}

	metrics.RecordCeremonyFinish(string(rp.CeremonyAuthentication), "success")
	h.writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// requireUserID extracts and decodes the userId query parameter, writing
// a 400 response when it is missing or malformed.
func (h *Handler) requireUserID(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	raw := r.URL.Query().Get(QueryParamUserID)
	if raw == "" {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidUserID, "userId query parameter is required")
		return nil, false
	}
	userID, err := decodeUserID(raw)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidUserID, "invalid user ID encoding")
		return nil, false
	}
	return userID, true
}

// decodeUserID decodes a base64url user handle, accepting padded and
// unpadded input.
func decodeUserID(raw string) ([]byte, error) {
	id, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(raw, "="))
	if err != nil {
		return nil, err
	}
	if len(id) == 0 {
		return nil, rp.ErrInvalidUserID
	}
	return id, nil
}

// handleServiceError maps service errors to HTTP responses. Every failure
// on the verification path gets the same generic 401 so callers cannot
// probe which stage rejected them; the distinct cause is logged and
// counted server-side.
func (h *Handler) handleServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, rp.ErrInvalidUserID):
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidUserID, "invalid user ID")
	case errors.Is(err, rp.ErrNoCredentials):
		h.writeError(w, http.StatusBadRequest, ErrorCodeNoCredentials, "user has no registered credentials")
	case errors.Is(err, rp.ErrReplayDetected):
		metrics.RecordReplayDetection()
		h.logger.Warn("ceremony rejected", "op", op, "reason", "replay_detected")
		h.writeError(w, http.StatusUnauthorized, ErrorCodeVerificationFailed, "verification failed")
	case errors.Is(err, rp.ErrCeremonyNotFound),
		errors.Is(err, rp.ErrCredentialNotFound),
		errors.Is(err, rp.ErrCredentialAlreadyExists),
		errors.Is(err, rp.ErrVerificationFailed):
		h.logger.Warn("ceremony rejected", "op", op, "error", err)
		h.writeError(w, http.StatusUnauthorized, ErrorCodeVerificationFailed, "verification failed")
	default:
		h.logger.Error("ceremony failed", "op", op, "error", err)
		h.writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal server error")
	}
}

// writeJSON writes a JSON response.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Response headers already written, can only log the error
		h.logger.Error("failed to encode JSON response",
			"error", err,
			"status", status)
	}
}

// writeError writes an error response.
func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, ErrorResponse{
		Error:   code,
		Message: message,
	})
}
