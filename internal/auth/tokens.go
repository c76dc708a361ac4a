// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package auth owns the bearer token used to talk to the chat backend.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/jeranaias/parley/internal/storage"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNoToken indicates no access token is stored in either tier.
	ErrNoToken = errors.New("no access token stored")

	// ErrEmptyToken indicates an attempt to save an empty access token.
	ErrEmptyToken = errors.New("access token cannot be empty")
)

// =============================================================================
// TYPES
// =============================================================================

// Tokens is the credential pair issued by the backend at login.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// Claims is the locally decoded view of the access token. Nothing here has
// been signature-verified.
type Claims struct {
	Subject   string
	ExpiresAt time.Time
	HasExpiry bool
}

// Location describes which tier currently holds the access token.
type Location string

const (
	LocationNone    Location = "none"
	LocationDurable Location = "durable"
	LocationSession Location = "session"
)

// =============================================================================
// TOKEN STORE
// =============================================================================

// TokenStore reads and writes the session credentials across the durable and
// session tiers. It holds no state of its own, so several stores over the
// same tiers agree.
type TokenStore struct {
	durable storage.Tier
	session storage.Tier
	sealer  Sealer
	now     func() time.Time
	logger  *zap.Logger
}

// Option configures a TokenStore.
type Option func(*TokenStore)

// WithSealer seals durable token values at rest.
func WithSealer(s Sealer) Option {
	return func(ts *TokenStore) { ts.sealer = s }
}

// WithClock overrides the clock used for expiry checks and markers.
func WithClock(now func() time.Time) Option {
	return func(ts *TokenStore) {
		if now != nil {
			ts.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(ts *TokenStore) {
		if l != nil {
			ts.logger = l
		}
	}
}

// NewTokenStore creates a TokenStore over the given tiers.
func NewTokenStore(durable, session storage.Tier, opts ...Option) *TokenStore {
	ts := &TokenStore{
		durable: durable,
		session: session,
		now:     time.Now,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(ts)
	}
	return ts
}

// Token returns the access token, preferring the durable tier.
func (ts *TokenStore) Token() (string, bool) {
	tok, _ := ts.lookup(storage.KeyAccessToken)
	return tok, tok != ""
}

// RefreshToken returns the refresh token, preferring the durable tier.
func (ts *TokenStore) RefreshToken() (string, bool) {
	tok, _ := ts.lookup(storage.KeyRefreshToken)
	return tok, tok != ""
}

// Location reports which tier holds the access token.
func (ts *TokenStore) Location() Location {
	_, loc := ts.lookup(storage.KeyAccessToken)
	return loc
}

func (ts *TokenStore) lookup(key string) (string, Location) {
	if v := ts.read(ts.durable, key, true); v != "" {
		return v, LocationDurable
	}
	if v := ts.read(ts.session, key, false); v != "" {
		return v, LocationSession
	}
	return "", LocationNone
}

// read returns the stored value or "" when it is absent or unreadable.
func (ts *TokenStore) read(tier storage.Tier, key string, sealed bool) string {
	if tier == nil {
		return ""
	}
	v, ok, err := tier.Get(key)
	if err != nil {
		ts.logger.Warn("failed to read credential", zap.String("key", key), zap.Error(err))
		return ""
	}
	if !ok || v == "" {
		return ""
	}
	if sealed && ts.sealer != nil {
		plain, err := ts.sealer.Unseal(v)
		if err != nil {
			// Undecodable counts as absent
			ts.logger.Warn("failed to unseal credential", zap.String("key", key), zap.Error(err))
			return ""
		}
		return plain
	}
	return v
}

// Save stores tokens in the durable tier when remember is set, otherwise in
// the session tier. The other tier is left untouched.
func (ts *TokenStore) Save(t Tokens, remember bool) error {
	if strings.TrimSpace(t.AccessToken) == "" {
		return ErrEmptyToken
	}

	tier := ts.session
	sealed := false
	if remember {
		tier = ts.durable
		sealed = true
	}
	if tier == nil {
		return errors.New("no storage tier configured")
	}

	if err := ts.write(tier, storage.KeyAccessToken, t.AccessToken, sealed); err != nil {
		return err
	}
	if t.RefreshToken != "" {
		if err := ts.write(tier, storage.KeyRefreshToken, t.RefreshToken, sealed); err != nil {
			return err
		}
	}
	return nil
}

func (ts *TokenStore) write(tier storage.Tier, key, value string, sealed bool) error {
	if sealed && ts.sealer != nil {
		var err error
		if value, err = ts.sealer.Seal(value); err != nil {
			return fmt.Errorf("failed to seal %s: %w", key, err)
		}
	}
	if err := tier.Set(key, value); err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}

// Clear removes both tokens from both tiers, then stamps the logout marker
// in the durable tier so other processes notice.
func (ts *TokenStore) Clear() error {
	var errs []error
	for _, tier := range []storage.Tier{ts.durable, ts.session} {
		if tier == nil {
			continue
		}
		for _, key := range []string{storage.KeyAccessToken, storage.KeyRefreshToken} {
			if err := tier.Remove(key); err != nil {
				errs = append(errs, fmt.Errorf("failed to remove %s: %w", key, err))
			}
		}
	}

	if ts.durable != nil {
		marker := strconv.FormatInt(ts.now().UnixMilli(), 10)
		if err := ts.durable.Set(storage.KeyAuthClearedAt, marker); err != nil {
			errs = append(errs, fmt.Errorf("failed to write logout marker: %w", err))
		}
	}

	ts.logger.Debug("credentials cleared")
	return errors.Join(errs...)
}

// DropSession removes tokens from the session tier only and writes no
// marker. It is the reaction to another process's logout, which has
// already emptied the durable tier.
func (ts *TokenStore) DropSession() error {
	if ts.session == nil {
		return nil
	}
	var errs []error
	for _, key := range []string{storage.KeyAccessToken, storage.KeyRefreshToken} {
		if err := ts.session.Remove(key); err != nil {
			errs = append(errs, fmt.Errorf("failed to remove %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// IsValid reports whether a usable access token is stored. A token that
// cannot be decoded, or whose exp claim is at or before now, is cleared and
// reported invalid. A token without an exp claim is valid.
func (ts *TokenStore) IsValid() bool {
	tok, ok := ts.Token()
	if !ok {
		return false
	}

	claims, err := decodeClaims(tok)
	if err == nil && (!claims.HasExpiry || claims.ExpiresAt.After(ts.now())) {
		return true
	}

	if err != nil {
		ts.logger.Info("discarding undecodable access token", zap.Error(err))
	} else {
		ts.logger.Info("discarding expired access token", zap.Time("expired_at", claims.ExpiresAt))
	}
	if err := ts.Clear(); err != nil {
		ts.logger.Warn("failed to clear credentials", zap.Error(err))
	}
	return false
}

// Claims decodes the stored access token without verifying its signature.
func (ts *TokenStore) Claims() (Claims, error) {
	tok, ok := ts.Token()
	if !ok {
		return Claims{}, ErrNoToken
	}
	return decodeClaims(tok)
}

// decodeClaims parses the payload segment of a JWT.
func decodeClaims(tok string) (Claims, error) {
	mc := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok, mc); err != nil {
		return Claims{}, fmt.Errorf("malformed token: %w", err)
	}

	exp, err := mc.GetExpirationTime()
	if err != nil {
		return Claims{}, fmt.Errorf("malformed exp claim: %w", err)
	}
	sub, _ := mc.GetSubject()

	c := Claims{Subject: sub}
	if exp != nil {
		c.ExpiresAt = exp.Time
		c.HasExpiry = true
		// NumericDate truncates to whole seconds; keep a fractional exp.
		if f, ok := mc["exp"].(float64); ok {
			c.ExpiresAt = time.Unix(0, int64(f*float64(time.Second)))
		}
	}
	return c, nil
}
