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

// Package rp implements the server-side core of a WebAuthn Relying Party:
// the challenge/response ceremony orchestration and credential-state layer.
//
// The package owns the security-sensitive protocol state — challenge
// issuance, ceremony correlation, consume-once semantics, and the
// signature-counter anti-cloning policy — while delegating all CBOR/COSE
// parsing and cryptographic signature verification to a VerificationDelegate.
// The production delegate wraps the go-webauthn/webauthn library.
//
// # Architecture
//
//  1. Service — options building and response verification (the orchestrator)
//  2. CeremonyStore — pending (user, kind) → ceremony state, consume-once
//  3. CredentialRepository — per-user credential records and the atomic
//     signature-counter update
//  4. VerificationDelegate — opaque cryptographic verification capability
//
// In-memory implementations of both stores ship with the package; production
// deployments can substitute durable implementations. Ceremonies are
// ephemeral and safe to drop on restart.
//
// # Usage
//
//	svc, err := rp.NewService(rp.ServiceParams{
//	    Config: &rp.Config{
//	        RPID:          "example.com",
//	        RPDisplayName: "ACME",
//	        RPOrigins:     []string{"https://example.com"},
//	    },
//	    CeremonyStore:        rp.NewMemoryCeremonyStore(),
//	    CredentialRepository: rp.NewMemoryCredentialRepository(),
//	})
//
// The http subpackage exposes the ceremony endpoints over HTTP.
//
// Note: WebAuthn requires HTTPS for all operations. Browsers will only
// expose the WebAuthn API in secure contexts.
package rp
