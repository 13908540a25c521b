// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/mlab-assistant/pkg/config"
	"github.com/AleutianAI/mlab-assistant/pkg/logging"
	"github.com/AleutianAI/mlab-assistant/services/orchestrator"
)

// app carries state shared by subcommands.
type app struct {
	configPath string
	logLevel   string

	cfg    *config.Config
	logger *logging.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "orchestrator",
		Short: "mLab knowledge assistant",
		Long: `Answers questions about mLab programmes using the mLab knowledge API
and a hosted generation model.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.init(); err != nil {
				logging.Default().Error("Startup failed", "command", cmd.Name(), "error", err)
				return err
			}
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Close()
			}
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "YAML configuration file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")

	root.AddCommand(a.serveCmd(), a.askCmd(), a.modelsCmd())
	return root
}

func (a *app) init() error {
	cfg, err := config.Load(config.LoadOptions{File: a.configPath})
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logging.New(logging.Config{
		Level:   level,
		Format:  logging.Format(cfg.Logging.Format),
		LogDir:  cfg.Logging.Dir,
		Service: cfg.Telemetry.ServiceName,
	})
	slog.SetDefault(a.logger.Slog())
	a.logger.Debug("Configuration loaded",
		"file", a.configPath,
		"backend", cfg.LLM.Backend,
		"knowledge_base_url", cfg.Knowledge.BaseURL,
	)
	return nil
}

func (a *app) build(ctx context.Context, command string) (orchestrator.Service, error) {
	logger := a.logger.With("command", command)
	svc, err := orchestrator.New(ctx, a.cfg, orchestrator.WithLogger(logger.Slog()))
	if err != nil {
		logger.Error("Assistant setup failed", "error", err)
		return nil, err
	}
	return svc, nil
}

// =============================================================================
// serve
// =============================================================================

func (a *app) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			svc, err := a.build(ctx, "serve")
			if err != nil {
				return err
			}
			if err := svc.Run(ctx); err != nil {
				return err
			}
			a.logger.Info("Server stopped")
			return nil
		},
	}
}

// =============================================================================
// ask
// =============================================================================

func (a *app) askCmd() *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer one question, or summarize one category with --category",
		Args: func(cmd *cobra.Command, args []string) error {
			if category == "" && len(args) == 0 {
				return errors.New("a question or --category is required")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT)
			defer stop()

			svc, err := a.build(ctx, "ask")
			if err != nil {
				return err
			}
			defer svc.Close()

			question := strings.Join(args, " ")
			if category != "" {
				reply, err := svc.Assistant().Category(ctx, category)
				if err != nil {
					return fmt.Errorf("category summary failed: %w", err)
				}
				renderReply(cmd.OutOrStdout(), category, reply)
				return nil
			}
			reply, err := svc.Assistant().Chat(ctx, question)
			if err != nil {
				return fmt.Errorf("chat failed: %w", err)
			}
			if reply.Escalated {
				a.logger.Warn("Question escalated to support", "request_id", reply.RequestID)
			}
			renderReply(cmd.OutOrStdout(), question, reply)
			return nil
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "summarize a menu category instead of asking a question")
	return cmd
}

// =============================================================================
// models
// =============================================================================

func (a *app) modelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "Print the model trial order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.build(cmd.Context(), "models")
			if err != nil {
				return err
			}
			defer svc.Close()

			renderModels(cmd.OutOrStdout(), svc.TrialOrder(cmd.Context()), a.cfg.LLM.ProbeModels)
			return nil
		},
	}
}
