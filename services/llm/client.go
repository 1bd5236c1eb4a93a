// Copyright (C) 2025 ShelterChat Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm provides clients for language model inference backends.
package llm

import (
	"context"
	"fmt"
)

// ConfigError reports an invalid or missing client configuration, such as an
// absent API key or an out-of-range sampling parameter. Retrying the same
// construction will fail the same way until the configuration changes.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("llm config %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// GenerationParams are per-call overrides for text generation.
// Nil pointer fields fall back to the backend's configured defaults.
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// LLMClient defines the standard interface for any completion backend.
//
// Implementations must be safe for concurrent use; a single client may be
// shared by many sessions.
type LLMClient interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
}
