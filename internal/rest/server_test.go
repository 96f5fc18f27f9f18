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

package rest

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-relyingparty/pkg/rp"
)

func newTestService(t *testing.T) *rp.Service {
	t.Helper()
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
	return svc
}

func TestNewServer_Validation(t *testing.T) {
	_, err := NewServer(nil)
	assert.Error(t, err)

	_, err = NewServer(&Config{})
	assert.Error(t, err)
}

func TestNewServer_Defaults(t *testing.T) {
	server, err := NewServer(&Config{Service: newTestService(t)})
	require.NoError(t, err)
	assert.Equal(t, 8080, server.Port())
}

func TestServer_Healthz(t *testing.T) {
	server, err := NewServer(&Config{Service: newTestService(t)})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	req = httptest.NewRequest(http.MethodHead, "/healthz", nil)
	rec = httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestServer_MetricsEndpoint(t *testing.T) {
	server, err := NewServer(&Config{
		Service:        newTestService(t),
		MetricsEnabled: true,
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "relyingparty_")
}

func TestServer_MetricsDisabled(t *testing.T) {
	server, err := NewServer(&Config{Service: newTestService(t)})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_CeremonyRoutesMounted(t *testing.T) {
	server, err := NewServer(&Config{Service: newTestService(t)})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/attestation", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":true`)

	// Assertion options without a user handle is a client error
	req = httptest.NewRequest(http.MethodGet, "/assertion", nil)
	rec = httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
