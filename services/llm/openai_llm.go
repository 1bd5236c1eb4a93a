// Copyright (C) 2025 ShelterChat Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// OpenAIConfig carries the tenant-wide completion service settings.
// Temperature must be inside [0, 2] and MaxTokens must be positive;
// NewOpenAIClient rejects anything else.
type OpenAIConfig struct {
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
}

type OpenAIClient struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

// NewOpenAIClient builds a completion client bound to the tenant's OpenAI
// credentials. When cfg.APIKey is empty the key is read from the
// OPENAI_API_KEY environment variable, then from the container secrets path.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		secretPath := "/run/secrets/openai_api_key"
		apiKeyBytes, err := os.ReadFile(secretPath)
		if err == nil {
			apiKey = strings.TrimSpace(string(apiKeyBytes))
			slog.Info("Read the OpenAI API Key from container secrets")
		}
	}
	if apiKey == "" {
		return nil, &ConfigError{Field: "api_key", Err: fmt.Errorf("OpenAI API key is missing")}
	}

	if cfg.Temperature < 0 || cfg.Temperature > 2 {
		return nil, &ConfigError{Field: "temperature", Err: fmt.Errorf("%.2f outside [0, 2]", cfg.Temperature)}
	}
	if cfg.MaxTokens <= 0 {
		return nil, &ConfigError{Field: "max_tokens", Err: fmt.Errorf("must be positive, got %d", cfg.MaxTokens)}
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
		slog.Warn("OpenAI model not set, defaulting to gpt-4o-mini")
	}

	slog.Info("Initializing OpenAI client", "model", model)
	return &OpenAIClient{
		client:      openai.NewClient(apiKey),
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

// Generate implements the LLMClient interface.
func (o *OpenAIClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	slog.Debug("Generating text via OpenAI", "model", o.model)
	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature:         o.temperature,
		MaxCompletionTokens: o.maxTokens,
	}
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.MaxTokens != nil {
		req.MaxCompletionTokens = *params.MaxTokens
	}
	if params.TopP != nil {
		req.TopP = *params.TopP
	}
	if len(params.Stop) > 0 {
		req.Stop = params.Stop
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		slog.Error("OpenAI API call failed", "error", err)
		return "", fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		slog.Warn("OpenAI returned no choices")
		return "", fmt.Errorf("OpenAI returned no choices")
	}
	slog.Debug("Received response from OpenAI", "finish_reason", resp.Choices[0].FinishReason)
	return resp.Choices[0].Message.Content, nil
}
