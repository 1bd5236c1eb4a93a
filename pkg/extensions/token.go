// Copyright (C) 2025 ShelterChat Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// tokenClaims is the signed payload of an HMAC token.
type tokenClaims struct {
	Subject   string   `json:"sub"`
	Email     string   `json:"email,omitempty"`
	Roles     []string `json:"roles,omitempty"`
	ExpiresAt int64    `json:"exp"`
}

// HMACAuthProvider validates tokens of the form
// base64url(claims-json) + "." + base64url(hmac-sha256(claims-json)).
//
// This is deliberately minimal: a single shared secret, no key rotation,
// no audience or issuer claims. Deployments that need a real identity
// provider should implement AuthProvider against it instead.
type HMACAuthProvider struct {
	secret []byte
	now    func() time.Time
}

// NewHMACAuthProvider creates a provider signing and validating tokens
// with the given shared secret.
func NewHMACAuthProvider(secret string) (*HMACAuthProvider, error) {
	if len(secret) < 16 {
		return nil, fmt.Errorf("auth secret must be at least 16 bytes")
	}
	return &HMACAuthProvider{
		secret: []byte(secret),
		now:    time.Now,
	}, nil
}

// IssueToken mints a signed token for the given identity, valid for ttl.
// Exposed so operators can bootstrap credentials from the CLI; the
// orchestrator itself only validates.
func (p *HMACAuthProvider) IssueToken(userID, email string, roles []string, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("userID must not be empty")
	}
	claims := tokenClaims{
		Subject:   userID,
		Email:     email,
		Roles:     roles,
		ExpiresAt: p.now().Add(ttl).Unix(),
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("marshal claims: %w", err)
	}
	encoded := base64.RawURLEncoding.EncodeToString(payload)
	return encoded + "." + p.sign(payload), nil
}

// Validate implements AuthProvider.
func (p *HMACAuthProvider) Validate(_ context.Context, token string) (*AuthInfo, error) {
	if token == "" {
		return nil, fmt.Errorf("missing token: %w", ErrUnauthorized)
	}

	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("malformed token: %w", ErrUnauthorized)
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, fmt.Errorf("malformed token payload: %w", ErrUnauthorized)
	}

	if !hmac.Equal([]byte(p.sign(payload)), []byte(parts[1])) {
		return nil, fmt.Errorf("bad token signature: %w", ErrUnauthorized)
	}

	var claims tokenClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("malformed token claims: %w", ErrUnauthorized)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("token has no subject: %w", ErrUnauthorized)
	}
	if claims.ExpiresAt > 0 && p.now().Unix() > claims.ExpiresAt {
		return nil, fmt.Errorf("token expired: %w", ErrUnauthorized)
	}

	return &AuthInfo{
		UserID: claims.Subject,
		Email:  claims.Email,
		Roles:  claims.Roles,
	}, nil
}

func (p *HMACAuthProvider) sign(payload []byte) string {
	mac := hmac.New(sha256.New, p.secret)
	mac.Write(payload)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
