// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the assistant's runtime configuration.
//
// Sources are layered, later ones winning:
//
//  1. Defaults (Default)
//  2. An optional YAML file
//  3. Environment variables: ASSISTANT_<SECTION>_<FIELD>, plus the
//     deployment variables MLAB_KNOWLEDGE_API_BASE_URL and PORT
//
// API keys are deliberately absent. They are read from the environment or
// a secret file at call time by the llm package.
package config

import (
	"slices"
	"time"

	"github.com/AleutianAI/mlab-assistant/services/generation"
	"github.com/AleutianAI/mlab-assistant/services/knowledge"
)

// Config is the complete runtime configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"    yaml:"server"`
	Knowledge KnowledgeConfig `koanf:"knowledge" yaml:"knowledge"`
	LLM       LLMConfig       `koanf:"llm"       yaml:"llm"`
	Assistant AssistantConfig `koanf:"assistant" yaml:"assistant"`
	Audit     AuditConfig     `koanf:"audit"     yaml:"audit"`
	Limits    LimitsConfig    `koanf:"limits"    yaml:"limits"`
	Logging   LoggingConfig   `koanf:"logging"   yaml:"logging"`
	Telemetry TelemetryConfig `koanf:"telemetry" yaml:"telemetry"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port            int           `koanf:"port"             yaml:"port"             validate:"min=1,max=65535"`
	GinMode         string        `koanf:"gin_mode"         yaml:"gin_mode"         validate:"oneof=debug release test"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" yaml:"shutdown_timeout" validate:"min=0"`
	AllowedOrigins  []string      `koanf:"allowed_origins"  yaml:"allowed_origins"`
}

// KnowledgeConfig configures the knowledge API client, classifier and cache.
type KnowledgeConfig struct {
	BaseURL     string        `koanf:"base_url"     yaml:"base_url"     validate:"required,url"`
	Timeout     time.Duration `koanf:"timeout"      yaml:"timeout"      validate:"min=0"`
	PageSize    int           `koanf:"page_size"    yaml:"page_size"    validate:"min=1,max=1000"`
	MaxPages    int           `koanf:"max_pages"    yaml:"max_pages"    validate:"min=1"`
	Scope       string        `koanf:"scope"        yaml:"scope"`
	ProgrammeID string        `koanf:"programme_id" yaml:"programme_id"`
	Concurrency int           `koanf:"concurrency"  yaml:"concurrency"  validate:"min=1"`
	WarmCache   bool          `koanf:"warm_cache"   yaml:"warm_cache"`
}

// LLMConfig configures the generation provider and retry policy.
type LLMConfig struct {
	Backend         string        `koanf:"backend"          yaml:"backend"          validate:"oneof=gemini openai"`
	APIKeyEnv       []string      `koanf:"api_key_env"      yaml:"api_key_env"      validate:"min=1,dive,required"`
	SecretFile      string        `koanf:"secret_file"      yaml:"secret_file"`
	BaseURL         string        `koanf:"base_url"         yaml:"base_url"         validate:"omitempty,url"`
	PreferredModels []string      `koanf:"preferred_models" yaml:"preferred_models" validate:"min=1,dive,required"`
	ProbeModels     bool          `koanf:"probe_models"     yaml:"probe_models"`
	MaxAttempts     int           `koanf:"max_attempts"     yaml:"max_attempts"     validate:"min=1,max=10"`
	BackoffStep     time.Duration `koanf:"backoff_step"     yaml:"backoff_step"     validate:"min=0"`
	BackoffCap      time.Duration `koanf:"backoff_cap"      yaml:"backoff_cap"      validate:"min=0"`
	Budget          time.Duration `koanf:"budget"           yaml:"budget"           validate:"min=0"`
}

// AssistantConfig holds the organization details used in prompts.
type AssistantConfig struct {
	Organization string `koanf:"organization"  yaml:"organization"  validate:"required"`
	SupportEmail string `koanf:"support_email" yaml:"support_email" validate:"required,email"`
}

// AuditConfig selects audit sinks. Empty values disable a sink.
type AuditConfig struct {
	FilePath    string `koanf:"file_path"    yaml:"file_path"`
	PostgresDSN string `koanf:"postgres_dsn" yaml:"postgres_dsn"`
	Table       string `koanf:"table"        yaml:"table"`
	// Redact masks secrets and personal data in audited messages.
	Redact bool `koanf:"redact" yaml:"redact"`
}

// LimitsConfig configures the inbound per-client rate limiter.
type LimitsConfig struct {
	RequestsPerSecond float64 `koanf:"requests_per_second" yaml:"requests_per_second" validate:"min=0"`
	Burst             int     `koanf:"burst"               yaml:"burst"               validate:"min=0"`
}

// LoggingConfig configures pkg/logging.
type LoggingConfig struct {
	Level  string `koanf:"level"  yaml:"level"  validate:"oneof=debug info warn warning error"`
	Format string `koanf:"format" yaml:"format" validate:"oneof=auto json text"`
	Dir    string `koanf:"dir"    yaml:"dir"`
}

// TelemetryConfig configures tracing. An empty endpoint disables export.
type TelemetryConfig struct {
	OTLPEndpoint string `koanf:"otlp_endpoint" yaml:"otlp_endpoint"`
	ServiceName  string `koanf:"service_name"  yaml:"service_name"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            3000,
			GinMode:         "release",
			ShutdownTimeout: 10 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		Knowledge: KnowledgeConfig{
			BaseURL:     knowledge.DefaultBaseURL,
			Timeout:     15 * time.Second,
			PageSize:    100,
			MaxPages:    50,
			Scope:       "codetribe",
			ProgrammeID: knowledge.DefaultProgrammeID,
			Concurrency: len(knowledge.AllCollections()),
			WarmCache:   true,
		},
		LLM: LLMConfig{
			Backend:         "gemini",
			APIKeyEnv:       []string{"GEMINI_API_KEY", "VITE_GEMINI_API_KEY"},
			PreferredModels: slices.Clone(generation.DefaultPreferredModels),
			MaxAttempts:     3,
			BackoffStep:     2 * time.Second,
			BackoffCap:      10 * time.Second,
			Budget:          60 * time.Second,
		},
		Assistant: AssistantConfig{
			Organization: "mLab South Africa",
			SupportEmail: "support@mlab.co.za",
		},
		Audit: AuditConfig{
			FilePath: "chatlog.json",
			Table:    "chat_logs",
			Redact:   true,
		},
		Limits: LimitsConfig{
			RequestsPerSecond: 1,
			Burst:             5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "mlab-assistant",
		},
	}
}
