// Copyright (C) 2025 ShelterChat Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import (
	"errors"
	"fmt"
)

// Step identifies which wiring step failed during session construction.
type Step string

const (
	StepModel     Step = "model"
	StepRetrieval Step = "retrieval"
	StepMemory    Step = "memory"
	StepAgent     Step = "agent"
)

// ConstructionError reports a failed session build. Failed builds are never
// cached: a subsequent Resolve retries construction from scratch.
//
// Retryable distinguishes transient failures (unreachable retrieval index or
// memory store) from caller-fixable ones (bad model credential, invalid
// tenant configuration).
type ConstructionError struct {
	Step      Step
	Identity  string
	Retryable bool
	Err       error
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("session construction failed at %s step for %q: %v", e.Step, e.Identity, e.Err)
}

func (e *ConstructionError) Unwrap() error { return e.Err }

// AsConstructionError unwraps err into a *ConstructionError if possible.
func AsConstructionError(err error) (*ConstructionError, bool) {
	var ce *ConstructionError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
