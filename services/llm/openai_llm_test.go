// Copyright (C) 2025 ShelterChat Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOpenAIClient_ValidationFailuresAreConfigErrors(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	tests := []struct {
		name  string
		cfg   OpenAIConfig
		field string
	}{
		{"missing key", OpenAIConfig{Temperature: 0.7, MaxTokens: 256}, "api_key"},
		{"temperature too high", OpenAIConfig{APIKey: "k", Temperature: 2.5, MaxTokens: 256}, "temperature"},
		{"temperature negative", OpenAIConfig{APIKey: "k", Temperature: -0.1, MaxTokens: 256}, "temperature"},
		{"zero max tokens", OpenAIConfig{APIKey: "k", Temperature: 0.7}, "max_tokens"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewOpenAIClient(tt.cfg)
			require.Error(t, err)

			var ce *ConfigError
			require.True(t, errors.As(err, &ce), "expected ConfigError, got %v", err)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestNewOpenAIClient_DefaultsModel(t *testing.T) {
	client, err := NewOpenAIClient(OpenAIConfig{APIKey: "k", Temperature: 0.7, MaxTokens: 256})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", client.model)
}
