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
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountChi mounts the ceremony routes on a chi router.
//
// Example:
//
//	handler := rphttp.NewHandler(svc)
//	r.Route("/webauthn", func(r chi.Router) {
//	    rphttp.MountChi(r, handler)
//	})
func MountChi(r chi.Router, h *Handler) {
	r.Get("/attestation", h.AttestationOptions)
	r.Post("/attestation", h.AttestationResult)
	r.Get("/assertion", h.AssertionOptions)
	r.Post("/assertion", h.AssertionResult)
}

// MountStdlib mounts the ceremony routes on a stdlib http.ServeMux using
// Go 1.22+ method patterns. The prefix should not include a trailing slash.
//
// Example:
//
//	handler := rphttp.NewHandler(svc)
//	rphttp.MountStdlib(mux, "/webauthn", handler)
func MountStdlib(mux *http.ServeMux, prefix string, h *Handler) {
	mux.HandleFunc("GET "+prefix+"/attestation", h.AttestationOptions)
	mux.HandleFunc("POST "+prefix+"/attestation", h.AttestationResult)
	mux.HandleFunc("GET "+prefix+"/assertion", h.AssertionOptions)
	mux.HandleFunc("POST "+prefix+"/assertion", h.AssertionResult)
}

// RouteEntry represents a single route with its method, path, and handler.
type RouteEntry struct {
	Method  string
	Path    string
	Handler http.HandlerFunc
}

// Routes returns a slice of route entries for manual mounting on routers
// not directly supported.
func (h *Handler) Routes() []RouteEntry {
	return []RouteEntry{
		{Method: "GET", Path: "/attestation", Handler: h.AttestationOptions},
		{Method: "POST", Path: "/attestation", Handler: h.AttestationResult},
		{Method: "GET", Path: "/assertion", Handler: h.AssertionOptions},
		{Method: "POST", Path: "/assertion", Handler: h.AssertionResult},
	}
}
