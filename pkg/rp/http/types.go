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

// QueryParamUserID is the query parameter carrying the base64url-encoded
// user handle.
const QueryParamUserID = "userId"

// OptionsResponse wraps ceremony options for the client.
type OptionsResponse struct {
	// Success is always true on this response.
	Success bool `json:"success"`

	// Options is the WebAuthn options object to pass to the browser API.
	Options any `json:"options"`
}

// SuccessResponse acknowledges a verified ceremony response.
type SuccessResponse struct {
	// Success is always true on this response.
	Success bool `json:"success"`
}

// ErrorResponse is the response format for errors.
type ErrorResponse struct {
	// Error is the error code.
	Error string `json:"error"`

	// Message is a human-readable error message.
	Message string `json:"message"`
}

// Error codes returned in ErrorResponse.
const (
	ErrorCodeInvalidRequest     = "invalid_request"
	ErrorCodeInvalidUserID      = "invalid_user_id"
	ErrorCodeNoCredentials      = "no_credentials"
	ErrorCodeVerificationFailed = "verification_failed"
	ErrorCodeInternalError      = "internal_error"
)
