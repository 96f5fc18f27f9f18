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

// Package http exposes the relying party ceremony endpoints over HTTP:
//
//	GET  /attestation  issue registration options
//	POST /attestation  verify a registration response
//	GET  /assertion    issue authentication options
//	POST /assertion    verify an authentication response
//
// The user handle travels in the userId query parameter, base64url
// encoded (padding optional). Option responses use a
// {"success": true, "options": ...} envelope; verified responses get
// {"success": true}.
//
// Failures on the verification path are collapsed into a single generic
// 401 verification_failed response. The distinct cause (missing ceremony,
// unknown credential, duplicate credential, signature rejection, replay)
// is logged and counted server-side only.
package http
