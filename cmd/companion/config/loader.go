// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// Load builds the effective configuration.
//
// # Description
//
// Starts from DefaultConfig, overlays the YAML file at path (skipped when path
// is empty), then applies environment overrides through getenv, then
// validates. A nil getenv uses os.Getenv.
//
// # Outputs
//
//   - CompanionConfig: The merged configuration.
//   - error: Unreadable file, bad YAML, bad env value or failed validation.
func Load(path string, getenv func(string) string) (CompanionConfig, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read the config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse the config file %s: %w", path, err)
		}
	}

	if getenv == nil {
		getenv = os.Getenv
	}
	if err := ApplyEnv(&cfg, getenv); err != nil {
		return cfg, err
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyEnv overlays the supported environment variables onto cfg. Unset or
// empty variables leave the current value alone.
func ApplyEnv(cfg *CompanionConfig, getenv func(string) string) error {
	if v := getenv("COMPANION_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("COMPANION_PORT must be an integer, got %q", v)
		}
		cfg.Server.Port = port
	}
	if v := getenv("COMPANION_SESSION_MODE"); v != "" {
		cfg.Sessions.Mode = v
	}
	if v := getenv("COMPANION_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := getenv("CLASSIFIER_BACKEND"); v != "" {
		cfg.Classifier.Backend = v
	}
	if v := getenv("HF_BASE_URL"); v != "" {
		cfg.Classifier.HFBaseURL = v
	}
	if v := getenv("HF_API_TOKEN"); v != "" {
		cfg.Classifier.HFAPIToken = v
	}
	if v := getenv("OPENAI_API_KEY"); v != "" {
		cfg.Classifier.OpenAIAPIKey = v
	}
	if v := getenv("OPENAI_BASE_URL"); v != "" {
		cfg.Classifier.OpenAIBaseURL = v
	}
	if v := getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.Telemetry.OTelEndpoint = v
	}
	return nil
}

// Validate checks field constraints and reports every violation at once.
func Validate(cfg CompanionConfig) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("config validation failed: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// WriteDefault writes DefaultConfig to path, creating parent directories.
// An existing file is left untouched.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
