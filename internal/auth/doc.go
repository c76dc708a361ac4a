// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package auth owns the bearer token used to talk to the chat backend.
//
// A TokenStore keeps the access token (and optional refresh token) in exactly
// one of two storage tiers: the durable tier when the user asked to be
// remembered, the session tier otherwise. Reads consult the durable tier
// first.
//
// # Validity
//
// IsValid decodes the token's exp claim locally without verifying the
// signature; the backend remains the authority. A malformed or expired token
// is cleared immediately.
//
// # Sealing
//
// Durable token values can be sealed at rest (NIST 800-53 SC-28) with either
// an age X25519 identity (AgeSealer) or a passphrase-derived AES-256-GCM key
// (PassphraseSealer):
//
//	sealer, err := auth.LoadAgeSealer("~/.parley/identity.txt")
//	tokens := auth.NewTokenStore(durable, session, auth.WithSealer(sealer))
package auth
