// Copyright (C) 2025 ShelterChat Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package memory persists per-identity conversation logs.
//
// A conversation is an append-only ordered sequence of turns. The stored
// order is the conversation's ground truth: readers always see turns in the
// order they were appended, and turns are never mutated after creation.
// Turns are destroyed only by an explicit Clear.
package memory

import (
	"context"
	"fmt"
)

// Role identifies the author of a turn.
type Role string

const (
	RoleHuman     Role = "human"
	RoleAssistant Role = "assistant"
)

// Turn is one persisted message in a conversation log.
//
// Sequence is assigned by the store on read and reflects the turn's position
// in the log; it is monotonic within one identity.
type Turn struct {
	Role     Role   `json:"role" bson:"role"`
	Content  string `json:"content" bson:"content"`
	Sequence int64  `json:"sequence" bson:"-"`
}

// Store is the durable conversation memory consumed by the session layer.
//
// Implementations must be safe for concurrent use. Append must preserve
// arrival order for concurrent writers on the same identity.
type Store interface {
	// Ping verifies the backing store is reachable. Used as the failable
	// "open memory handle" step during session construction.
	Ping(ctx context.Context) error

	// GetMessages returns all turns for the identity in creation order.
	// Unknown identities yield an empty slice, not an error.
	GetMessages(ctx context.Context, identity string) ([]Turn, error)

	// Append adds turns to the end of the identity's log.
	Append(ctx context.Context, identity string, turns ...Turn) error

	// Clear removes all turns for the identity. Clearing an empty or
	// unknown history is a no-op.
	Clear(ctx context.Context, identity string) error
}

// AppendError marks a write that failed after the model already produced an
// answer. Callers surface it distinctly from read failures: the work was
// done but could not be recorded.
type AppendError struct {
	Identity string
	Err      error
}

func (e *AppendError) Error() string {
	return fmt.Sprintf("failed to record conversation for %q: %v", e.Identity, e.Err)
}

func (e *AppendError) Unwrap() error { return e.Err }
