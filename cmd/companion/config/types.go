// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the companion's YAML configuration file, applies
// environment overrides and validates the result.
package config

import (
	"time"

	"github.com/AleutianAI/AleutianCare/services/classifier"
	"github.com/AleutianAI/AleutianCare/services/orchestrator"
)

type CompanionConfig struct {
	// Server: HTTP listener and request limits
	Server ServerConfig `yaml:"server"`

	// Classifier: which emotion backend answers classified turns
	Classifier ClassifierConfig `yaml:"classifier"`

	// Safety: crisis and greeting phrase matching
	Safety SafetyConfig `yaml:"safety"`

	// Sessions: per-caller state and escalation
	Sessions SessionsConfig `yaml:"sessions"`

	// Telemetry: tracing and metrics
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Logging: level and optional log directory
	Logging LoggingConfig `yaml:"logging"`
}

type ServerConfig struct {
	Port             int           `yaml:"port" validate:"gte=1,lte=65535"`
	GinMode          string        `yaml:"gin_mode" validate:"oneof=debug release test"`
	MaxMessageLength int           `yaml:"max_message_length" validate:"gte=1"`
	CORSOrigins      []string      `yaml:"cors_origins,omitempty"`
	RateLimitRPS     float64       `yaml:"rate_limit_rps"` // negative disables
	RateLimitBurst   int           `yaml:"rate_limit_burst" validate:"gte=0"`
	RedactPII        bool          `yaml:"redact_pii"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout" validate:"gte=0"`
}

type ClassifierConfig struct {
	// Backend is "hf", "openai" or "lexicon"
	Backend string        `yaml:"backend" validate:"oneof=hf openai lexicon"`
	Timeout time.Duration `yaml:"timeout" validate:"gte=0"`

	HFBaseURL  string `yaml:"hf_base_url" validate:"omitempty,url"`
	HFModel    string `yaml:"hf_model"`
	HFAPIToken string `yaml:"hf_api_token,omitempty"`

	OpenAIAPIKey  string `yaml:"openai_api_key,omitempty"`
	OpenAIModel   string `yaml:"openai_model,omitempty"`
	OpenAIBaseURL string `yaml:"openai_base_url,omitempty" validate:"omitempty,url"`
}

type SafetyConfig struct {
	MatchMode        string `yaml:"match_mode" validate:"oneof=substring word"`
	KeywordFile      string `yaml:"keyword_file,omitempty"`
	WatchKeywordFile bool   `yaml:"watch_keyword_file"`
}

type SessionsConfig struct {
	// Mode is "per_session" or "shared"
	Mode                string        `yaml:"mode" validate:"oneof=per_session shared"`
	EscalationThreshold int           `yaml:"escalation_threshold" validate:"gte=1"`
	MaxLogEntries       int           `yaml:"max_log_entries" validate:"gte=0"` // 0 keeps everything
	IdleTTL             time.Duration `yaml:"idle_ttl" validate:"gte=0"`
	SweepInterval       time.Duration `yaml:"sweep_interval" validate:"gte=0"`
}

type TelemetryConfig struct {
	// OTelEndpoint is an OTLP gRPC host:port, "stdout" or "none"
	OTelEndpoint   string `yaml:"otel_endpoint" validate:"required"`
	DisableMetrics bool   `yaml:"disable_metrics"`
}

type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn warning error"`
	Dir   string `yaml:"dir,omitempty"`
	JSON  bool   `yaml:"json"`
}

// DefaultConfig returns the settings used when no file is given.
func DefaultConfig() CompanionConfig {
	return CompanionConfig{
		Server: ServerConfig{
			Port:             12210,
			GinMode:          "release",
			MaxMessageLength: 4000,
			RateLimitRPS:     5,
			RateLimitBurst:   10,
			ShutdownTimeout:  10 * time.Second,
		},
		Classifier: ClassifierConfig{
			Backend:   orchestrator.BackendHF,
			Timeout:   10 * time.Second,
			HFBaseURL: "https://api-inference.huggingface.co",
			HFModel:   classifier.DefaultHFModel,
		},
		Safety: SafetyConfig{
			MatchMode: "substring",
		},
		Sessions: SessionsConfig{
			Mode:                orchestrator.SessionModePerSession,
			EscalationThreshold: 3,
			IdleTTL:             30 * time.Minute,
			SweepInterval:       time.Minute,
		},
		Telemetry: TelemetryConfig{
			OTelEndpoint: "aleutian-otel-collector:4317",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// ToOrchestratorConfig maps the file layout onto the service's runtime settings.
func (c CompanionConfig) ToOrchestratorConfig() orchestrator.Config {
	return orchestrator.Config{
		Port:                c.Server.Port,
		GinMode:             c.Server.GinMode,
		ClassifierBackend:   c.Classifier.Backend,
		ClassifierTimeout:   c.Classifier.Timeout,
		HFBaseURL:           c.Classifier.HFBaseURL,
		HFModel:             c.Classifier.HFModel,
		HFAPIToken:          c.Classifier.HFAPIToken,
		OpenAIAPIKey:        c.Classifier.OpenAIAPIKey,
		OpenAIModel:         c.Classifier.OpenAIModel,
		OpenAIBaseURL:       c.Classifier.OpenAIBaseURL,
		MatchMode:           c.Safety.MatchMode,
		KeywordFile:         c.Safety.KeywordFile,
		WatchKeywordFile:    c.Safety.WatchKeywordFile,
		SessionMode:         c.Sessions.Mode,
		EscalationThreshold: c.Sessions.EscalationThreshold,
		MaxLogEntries:       c.Sessions.MaxLogEntries,
		SessionIdleTTL:      c.Sessions.IdleTTL,
		SweepInterval:       c.Sessions.SweepInterval,
		MaxMessageLength:    c.Server.MaxMessageLength,
		CORSOrigins:         c.Server.CORSOrigins,
		RateLimitRPS:        c.Server.RateLimitRPS,
		RateLimitBurst:      c.Server.RateLimitBurst,
		RedactPII:           c.Server.RedactPII,
		OTelEndpoint:        c.Telemetry.OTelEndpoint,
		DisableMetrics:      c.Telemetry.DisableMetrics,
		ShutdownTimeout:     c.Server.ShutdownTimeout,
	}
}
