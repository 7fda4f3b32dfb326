// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command companion runs the emotional support companion.
//
// # Usage
//
//	companion serve --config companion.yaml
//	companion chat --offline
//	companion init-config ~/.aleutian/companion.yaml
//
// # Environment Variables
//
//   - COMPANION_PORT: HTTP server port (default: 12210)
//   - COMPANION_SESSION_MODE: per_session or shared (default: per_session)
//   - COMPANION_LOG_LEVEL: debug, info, warn or error (default: info)
//   - CLASSIFIER_BACKEND: hf, openai or lexicon (default: hf)
//   - HF_BASE_URL, HF_API_TOKEN: Hugging Face inference endpoint and token
//   - OPENAI_API_KEY, OPENAI_BASE_URL: OpenAI-compatible endpoint
//   - OTEL_EXPORTER_OTLP_ENDPOINT: collector host:port, "stdout" or "none"
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianCare/cmd/companion/config"
	"github.com/AleutianAI/AleutianCare/pkg/logging"
	"github.com/AleutianAI/AleutianCare/services/orchestrator"
)

var (
	configPath string
	logLevel   string
	offline    bool

	rootCmd = &cobra.Command{
		Use:   "companion",
		Short: "An empathetic chat companion with crisis safeguards",
		Long: `Companion answers chat messages with supportive replies. Crisis
language always receives a safety message before anything else runs.`,
		SilenceUsage: true,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket chat service",
		RunE:  runServe,
	}

	chatCmd = &cobra.Command{
		Use:   "chat",
		Short: "Chat with the companion in this terminal",
		RunE:  runChatCommand, // Defined in chat.go
	}

	initConfigCmd = &cobra.Command{
		Use:   "init-config [path]",
		Short: "Write a default config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteDefault(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote default config to %s\n", args[0])
			return nil
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")
	chatCmd.Flags().BoolVar(&offline, "offline", false, "use the offline lexicon classifier")

	rootCmd.AddCommand(serveCmd, chatCmd, initConfigCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file and env, then applies command-line overrides.
func loadConfig() (config.CompanionConfig, error) {
	cfg, err := config.Load(configPath, os.Getenv)
	if err != nil {
		return cfg, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

func newLogger(cfg config.CompanionConfig, quiet bool) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	logger := logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Logging.Dir,
		Service: "companion",
		JSON:    cfg.Logging.JSON,
		Quiet:   quiet,
	})
	logger.Install()
	return logger, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, false)
	if err != nil {
		return err
	}
	defer logger.Close()

	svc, err := orchestrator.New(cfg.ToOrchestratorConfig(), nil)
	if err != nil {
		logger.Slog().Error("Failed to create companion service", "error", err)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := svc.Run(ctx); err != nil {
		logger.Slog().Error("Companion service error", "error", err)
		return err
	}
	return nil
}
