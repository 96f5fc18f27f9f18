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
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/descope/virtualwebauthn"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-relyingparty/pkg/rp"
)

type optionsEnvelope struct {
	Success bool            `json:"success"`
	Options json.RawMessage `json:"options"`
}

type testServer struct {
	server        *httptest.Server
	party         virtualwebauthn.RelyingParty
	authenticator virtualwebauthn.Authenticator
	credential    virtualwebauthn.Credential
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := &rp.Config{
		RPID:          "example.com",
		RPDisplayName: "Example Corp",
		RPOrigins:     []string{"https://example.com"},
	}

	svc, err := rp.NewService(rp.ServiceParams{
		Config:               cfg,
		CeremonyStore:        rp.NewMemoryCeremonyStore(),
		CredentialRepository: rp.NewMemoryCredentialRepository(),
	})
	require.NoError(t, err)

	router := chi.NewRouter()
	MountChi(router, NewHandler(svc))

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testServer{
		server: server,
		party: virtualwebauthn.RelyingParty{
			Name:   cfg.RPDisplayName,
			ID:     cfg.RPID,
			Origin: cfg.RPOrigins[0],
		},
		authenticator: virtualwebauthn.NewAuthenticator(),
		credential:    virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2),
	}
}

func (ts *testServer) get(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(ts.server.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func (ts *testServer) post(t *testing.T, path, body string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Post(ts.server.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, out
}

// userIDFromOptions pulls the base64url user handle out of attestation options.
func userIDFromOptions(t *testing.T, options json.RawMessage) string {
	t.Helper()
	var parsed struct {
		User struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(options, &parsed))
	require.NotEmpty(t, parsed.User.ID)
	return parsed.User.ID
}

// registerOverHTTP runs a full attestation ceremony through the HTTP API and
// returns the base64url user handle.
func (ts *testServer) registerOverHTTP(t *testing.T) string {
	t.Helper()

	resp, body := ts.get(t, "/attestation")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var envelope optionsEnvelope
	require.NoError(t, json.Unmarshal(body, &envelope))
	require.True(t, envelope.Success)

	userID := userIDFromOptions(t, envelope.Options)

	parsedOptions, err := virtualwebauthn.ParseAttestationOptions(string(envelope.Options))
	require.NoError(t, err)

	attestation := virtualwebauthn.CreateAttestationResponse(ts.party, ts.authenticator, ts.credential, *parsedOptions)

	resp, body = ts.post(t, "/attestation?userId="+userID, attestation)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var success SuccessResponse
	require.NoError(t, json.Unmarshal(body, &success))
	require.True(t, success.Success)

	ts.authenticator.AddCredential(ts.credential)
	return userID
}

// assertOverHTTP runs a full assertion ceremony through the HTTP API,
// returning the POST response and body.
func (ts *testServer) assertOverHTTP(t *testing.T, userID string) (*http.Response, []byte) {
	t.Helper()

	resp, body := ts.get(t, "/assertion?userId="+userID)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var envelope optionsEnvelope
	require.NoError(t, json.Unmarshal(body, &envelope))
	require.True(t, envelope.Success)

	parsedOptions, err := virtualwebauthn.ParseAssertionOptions(string(envelope.Options))
	require.NoError(t, err)

	assertion := virtualwebauthn.CreateAssertionResponse(ts.party, ts.authenticator, ts.credential, *parsedOptions)

	return ts.post(t, "/assertion?userId="+userID, assertion)
}

func TestHandler_FullCeremonyRoundTrip(t *testing.T) {
	ts := newTestServer(t)

	userID := ts.registerOverHTTP(t)

	ts.credential.Counter++
	resp, body := ts.assertOverHTTP(t, userID)
	assert.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var success SuccessResponse
	require.NoError(t, json.Unmarshal(body, &success))
	assert.True(t, success.Success)
}

func TestHandler_AttestationOptionsWithExistingUser(t *testing.T) {
	ts := newTestServer(t)

	userID := ts.registerOverHTTP(t)

	// Re-enrollment for the same handle excludes the registered credential
	resp, body := ts.get(t, "/attestation?userId="+userID)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var envelope struct {
		Success bool `json:"success"`
		Options struct {
			ExcludeCredentials []struct {
				ID string `json:"id"`
			} `json:"excludeCredentials"`
		} `json:"options"`
	}
	require.NoError(t, json.Unmarshal(body, &envelope))
	assert.Len(t, envelope.Options.ExcludeCredentials, 1)
}

func TestHandler_AttestationResultMissingUserID(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.post(t, "/attestation", "{}")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(body, &errResp))
	assert.Equal(t, ErrorCodeInvalidUserID, errResp.Error)
}

func TestHandler_MalformedUserID(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.get(t, "/assertion?userId=%21%40%23")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(body, &errResp))
	assert.Equal(t, ErrorCodeInvalidUserID, errResp.Error)
}

func TestHandler_AssertionOptionsUnknownUser(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.get(t, "/assertion?userId=dW5rbm93bi11c2Vy")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(body, &errResp))
	assert.Equal(t, ErrorCodeNoCredentials, errResp.Error)
}

func TestHandler_AttestationResultInvalidBody(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.post(t, "/attestation?userId=dXNlci0x", "not json")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(body, &errResp))
	assert.Equal(t, ErrorCodeInvalidRequest, errResp.Error)
}

func TestHandler_AttestationResultWithoutCeremony(t *testing.T) {
	ts := newTestServer(t)

	// Craft a syntactically valid response against options the server never
	// issued for this user handle
	resp, body := ts.get(t, "/attestation")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var envelope optionsEnvelope
	require.NoError(t, json.Unmarshal(body, &envelope))

	parsedOptions, err := virtualwebauthn.ParseAttestationOptions(string(envelope.Options))
	require.NoError(t, err)
	attestation := virtualwebauthn.CreateAttestationResponse(ts.party, ts.authenticator, ts.credential, *parsedOptions)

	// Wrong user handle: no pending ceremony under it
	resp, body = ts.post(t, "/attestation?userId=b3RoZXItdXNlcg", attestation)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(body, &errResp))
	assert.Equal(t, ErrorCodeVerificationFailed, errResp.Error)
}

func TestHandler_ReplayedAssertionRejected(t *testing.T) {
	ts := newTestServer(t)

	userID := ts.registerOverHTTP(t)

	ts.credential.Counter++
	resp, body := ts.assertOverHTTP(t, userID)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	// Same counter again: the stored counter no longer trails the response
	resp, body = ts.assertOverHTTP(t, userID)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(body, &errResp))
	assert.Equal(t, ErrorCodeVerificationFailed, errResp.Error)
	assert.Equal(t, "verification failed", errResp.Message)
}

func TestHandler_Routes(t *testing.T) {
	svc, err := rp.NewService(rp.ServiceParams{
		Config: &rp.Config{
			RPID:          "example.com",
			RPDisplayName: "Example Corp",
			RPOrigins:     []string{"https://example.com"},
		},
		CeremonyStore:        rp.NewMemoryCeremonyStore(),
		CredentialRepository: rp.NewMemoryCredentialRepository(),
	})
	require.NoError(t, err)

	routes := NewHandler(svc).Routes()
	require.Len(t, routes, 4)
	assert.Equal(t, "GET", routes[0].Method)
	assert.Equal(t, "/attestation", routes[0].Path)
	assert.Equal(t, "POST", routes[3].Method)
	assert.Equal(t, "/assertion", routes[3].Path)
}

func TestHandler_MountStdlib(t *testing.T) {
	svc, err := rp.NewService(rp.ServiceParams{
		Config: &rp.Config{
			RPID:          "example.com",
			RPDisplayName: "Example Corp",
			RPOrigins:     []string{"https://example.com"},
		},
		CeremonyStore:        rp.NewMemoryCeremonyStore(),
		CredentialRepository: rp.NewMemoryCredentialRepository(),
	})
	require.NoError(t, err)

	mux := http.NewServeMux()
	MountStdlib(mux, "/webauthn", NewHandler(svc))

	req := httptest.NewRequest(http.MethodGet, "/webauthn/attestation", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var envelope optionsEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.True(t, envelope.Success)
}
