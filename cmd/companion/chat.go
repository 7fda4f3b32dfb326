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
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianCare/pkg/extensions"
	"github.com/AleutianAI/AleutianCare/pkg/ux"
	"github.com/AleutianAI/AleutianCare/services/companion"
	"github.com/AleutianAI/AleutianCare/services/companion/condition"
	"github.com/AleutianAI/AleutianCare/services/companion/session"
	"github.com/AleutianAI/AleutianCare/services/orchestrator"
)

const chatBanner = "Companion is listening. Type \"exit\" to leave."

func runChatCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if offline {
		cfg.Classifier.Backend = orchestrator.BackendLexicon
	}

	// Console logs would interleave with the conversation; only the log file,
	// if configured, receives them.
	logger, err := newLogger(cfg, true)
	if err != nil {
		return err
	}
	defer logger.Close()

	oc := cfg.ToOrchestratorConfig()
	opts := extensions.DefaultOptions().WithAudit(extensions.NewSlogAuditLogger(logger.Slog()))
	if oc.RedactPII {
		opts = opts.WithFilter(extensions.NewRedactingFilter())
	}
	responder, _, err := orchestrator.BuildResponder(oc, opts, companion.Config{})
	if err != nil {
		return err
	}

	sess := session.New("local", session.Options{
		EscalationThreshold: oc.EscalationThreshold,
		MaxLogEntries:       oc.MaxLogEntries,
	}, time.Now())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	interactive := isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
	return runChat(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), responder, sess, interactive)
}

// turnRunner is the slice of the responder the chat loop needs.
type turnRunner interface {
	ProcessTurn(ctx context.Context, sess *session.Session, raw string) companion.Reply
}

// runChat reads one message per line from in and writes each reply to out
// until EOF, "exit" or "quit". Lines have no length limit. When interactive, a
// prompt is printed and replies are styled; otherwise replies are written
// verbatim.
func runChat(ctx context.Context, in io.Reader, out io.Writer, responder turnRunner, sess *session.Session, interactive bool) error {
	if interactive {
		fmt.Fprintln(out, ux.Banner(chatBanner))
	}

	reader := bufio.NewReader(in)
	for {
		if interactive {
			fmt.Fprint(out, ux.Prompt())
		}
		line, err := reader.ReadString('\n')
		if line == "" && err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return nil
		}

		line = strings.TrimRight(line, "\r\n")
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "":
			fmt.Fprintln(out, condition.EmptyInputMessage)
			continue
		case "exit", "quit":
			return nil
		}

		reply := responder.ProcessTurn(ctx, sess, line)
		if !interactive {
			fmt.Fprintln(out, reply.Text)
			continue
		}
		fmt.Fprintln(out, ux.RenderReply(reply.Text, reply.Kind == companion.KindCrisis))
		fmt.Fprintln(out)
	}
}
