// Copyright (C) 2025 ShelterChat Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config assembles the orchestrator's runtime configuration.
//
// Precedence, lowest to highest: built-in defaults, optional YAML file
// named by SHELTERCHAT_CONFIG, environment variables. A .env file in the
// working directory is loaded first so local runs need no exported vars.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full orchestrator configuration.
type Config struct {
	Port string `yaml:"port" validate:"required"`

	// MongoURL selects the durable conversation store. Empty falls back
	// to the in-process store (lightweight mode, no persistence across
	// restarts).
	MongoURL string `yaml:"mongo_url"`

	Weaviate WeaviateConfig `yaml:"weaviate"`
	OpenAI   OpenAIConfig   `yaml:"openai"`
	Prompt   PromptConfig   `yaml:"prompt"`
	Stream   StreamConfig   `yaml:"stream"`
	Session  SessionConfig  `yaml:"session"`

	// OTLPEndpoint is the collector address for trace export.
	OTLPEndpoint string `yaml:"otlp_endpoint"`

	// AuthSecret enables the HMAC token provider when set. Empty keeps
	// the permissive local provider.
	AuthSecret string `yaml:"auth_secret"`
}

// WeaviateConfig locates the retrieval index. An empty endpoint puts the
// service in lightweight mode: questions are answered without grounding.
type WeaviateConfig struct {
	Endpoint  string `yaml:"endpoint"`
	APIKey    string `yaml:"api_key"`
	IndexName string `yaml:"index_name" validate:"required"`
	Limit     int    `yaml:"limit" validate:"gte=0,lte=20"`
}

// OpenAIConfig carries completion service settings.
type OpenAIConfig struct {
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens   int     `yaml:"max_tokens" validate:"gt=0"`
}

// PromptConfig fixes the assistant persona and its fallback contact.
type PromptConfig struct {
	Persona        string `yaml:"persona" validate:"required"`
	SupportContact string `yaml:"support_contact" validate:"required"`
}

// StreamConfig tunes answer delivery pacing.
type StreamConfig struct {
	ChunkSize int           `yaml:"chunk_size" validate:"gt=0"`
	Interval  time.Duration `yaml:"interval" validate:"gte=0"`
}

// SessionConfig tunes the session cache. IdleTTL of zero uses the default;
// negative disables idle eviction.
type SessionConfig struct {
	IdleTTL time.Duration `yaml:"idle_ttl"`
}

var configValidate = validator.New()

// Load builds the configuration from defaults, the optional YAML file, and
// the environment, then validates it.
func Load() (*Config, error) {
	// Missing .env is the normal case outside local dev.
	_ = godotenv.Load()

	cfg := defaults()

	if path := os.Getenv("SHELTERCHAT_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := configValidate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Port: "12310",
		Weaviate: WeaviateConfig{
			IndexName: "ShelterDocument",
			Limit:     4,
		},
		OpenAI: OpenAIConfig{
			Model:       "gpt-4o-mini",
			Temperature: 0.7,
			MaxTokens:   1024,
		},
		Prompt: PromptConfig{
			Persona:        "the ShelterChat pet adoption platform",
			SupportContact: "support@shelterchat.dev",
		},
		Stream: StreamConfig{
			ChunkSize: 24,
			Interval:  50 * time.Millisecond,
		},
		OTLPEndpoint: "shelterchat-otel-collector:4317",
	}
}

func applyEnv(cfg *Config) {
	setString(&cfg.Port, "ORCHESTRATOR_PORT")
	setString(&cfg.MongoURL, "MONGO_URL")
	setString(&cfg.Weaviate.Endpoint, "WEAVIATE_SERVICE_URL")
	setString(&cfg.Weaviate.APIKey, "WEAVIATE_API_KEY")
	setString(&cfg.Weaviate.IndexName, "WEAVIATE_INDEX_NAME")
	setInt(&cfg.Weaviate.Limit, "WEAVIATE_RESULT_LIMIT")
	setString(&cfg.OpenAI.APIKey, "OPENAI_API_KEY")
	setString(&cfg.OpenAI.Model, "OPENAI_MODEL")
	setFloat32(&cfg.OpenAI.Temperature, "OPENAI_TEMPERATURE")
	setInt(&cfg.OpenAI.MaxTokens, "OPENAI_MAX_TOKENS")
	setString(&cfg.Prompt.Persona, "CHAT_PERSONA")
	setString(&cfg.Prompt.SupportContact, "CHAT_SUPPORT_CONTACT")
	setInt(&cfg.Stream.ChunkSize, "STREAM_CHUNK_SIZE")
	setDuration(&cfg.Stream.Interval, "STREAM_INTERVAL")
	setDuration(&cfg.Session.IdleTTL, "SESSION_IDLE_TTL")
	setString(&cfg.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setString(&cfg.AuthSecret, "SHELTERCHAT_AUTH_SECRET")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat32(dst *float32, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			*dst = float32(f)
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
