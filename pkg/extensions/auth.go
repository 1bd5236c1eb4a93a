// Copyright (C) 2025 ShelterChat Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package extensions defines the pluggable authentication surface for the
// chat backend.
//
// The orchestrator never inspects credential internals; it only consumes the
// pass/fail contract of an AuthProvider. The open source build ships two
// implementations: a NopAuthProvider for local development (every request is
// "local-user") and an HMAC token provider for single-tenant deployments.
// Hosted deployments can plug in an identity provider by implementing
// AuthProvider and injecting it at startup.
package extensions

import (
	"context"
	"errors"
)

// ErrUnauthorized is returned when authentication or authorization fails.
// Implementations should wrap this error with additional context:
//
//	if !validToken {
//	    return nil, fmt.Errorf("token expired: %w", extensions.ErrUnauthorized)
//	}
var ErrUnauthorized = errors.New("unauthorized")

// AuthInfo contains identity information returned after successful
// authentication. UserID is the only required field; it is the stable
// identity used as the memory store session key and the session map key.
type AuthInfo struct {
	// UserID is the unique identifier for the authenticated user.
	// Must never be empty.
	UserID string

	// Email is the user's email address. May be empty.
	Email string

	// Roles contains the user's role memberships for authorization
	// decisions. Common roles: "admin", "adopter", "shelter".
	Roles []string
}

// HasRole checks if the user has a specific role.
func (a *AuthInfo) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// AuthProvider validates authentication tokens and returns user identity.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type AuthProvider interface {
	// Validate checks if the token is valid and returns the user's identity.
	//
	// Returns ErrUnauthorized (possibly wrapped) when the token is missing,
	// malformed, expired, or carries a bad signature. Other errors indicate
	// provider failures rather than bad credentials.
	Validate(ctx context.Context, token string) (*AuthInfo, error)
}

// NopAuthProvider authenticates every request as a local admin user.
// It lets the backend run without any authentication infrastructure,
// which is the default for local development.
type NopAuthProvider struct{}

// Validate always succeeds and returns the local user.
func (p *NopAuthProvider) Validate(_ context.Context, _ string) (*AuthInfo, error) {
	return &AuthInfo{
		UserID: "local-user",
		Roles:  []string{"admin"},
	}, nil
}
