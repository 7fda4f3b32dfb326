// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianCare/pkg/validation"
	"github.com/AleutianAI/AleutianCare/services/companion"
	"github.com/AleutianAI/AleutianCare/services/companion/condition"
	"github.com/AleutianAI/AleutianCare/services/companion/session"
)

var chatTracer = otel.Tracer("aleutian.orchestrator.handlers")

// TurnProcessor answers one message within a session. *companion.Responder
// satisfies it.
type TurnProcessor interface {
	ProcessTurn(ctx context.Context, sess *session.Session, raw string) companion.Reply
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

// ChatResponse is returned for every answered message.
type ChatResponse struct {
	Reply      string              `json:"reply"`
	SessionID  string              `json:"session_id"`
	Kind       companion.Kind      `json:"kind"`
	Condition  condition.Condition `json:"condition,omitempty"`
	Confidence float64             `json:"confidence"`
	Escalated  bool                `json:"escalated"`
}

func newChatResponse(sessionID string, reply companion.Reply) ChatResponse {
	return ChatResponse{
		Reply:      reply.Text,
		SessionID:  sessionID,
		Kind:       reply.Kind,
		Condition:  reply.Condition,
		Confidence: reply.Confidence,
		Escalated:  reply.Escalated,
	}
}

// =============================================================================
// Session resolution
// =============================================================================

// SessionResolver maps a request's session id to a session.
//
// # Description
//
// In shared mode every request maps to session.SharedID, whatever it asked for.
// Otherwise an empty id gets a fresh uuid and any other id is created on first
// use. An id that fails validation, or that names the shared session, is
// replaced with a fresh uuid rather than rejected, so the message is still
// answered. OnChange, if set, receives the store size after a session is
// created.
type SessionResolver struct {
	Store    session.Store
	Shared   bool
	OnChange func(total int)
}

// Resolve returns the session for requested. The caller reports sess.ID()
// back to the client.
func (r *SessionResolver) Resolve(requested string) *session.Session {
	id := strings.TrimSpace(requested)
	switch {
	case r.Shared:
		id = session.SharedID
	case id == "":
		id = uuid.NewString()
	case session.Pinned(id):
		slog.Warn("Client asked for the shared session outside shared mode, starting a new one")
		id = uuid.NewString()
	default:
		if err := validation.ValidateSessionID(id); err != nil {
			slog.Warn("Invalid session id, starting a new session", "error", err)
			id = uuid.NewString()
		}
	}

	sess, created := r.Store.GetOrCreate(id)
	if created {
		slog.Info("Session created", "session_id", id)
		if r.OnChange != nil {
			r.OnChange(r.Store.Len())
		}
	}
	return sess
}

// isEmptyMessage reports whether raw has nothing to answer. It is the only
// reason a parsed message is turned away before the responder sees it.
func isEmptyMessage(raw string) bool {
	return strings.TrimSpace(raw) == ""
}

// =============================================================================
// POST /chat
// =============================================================================

// HandleChat answers one chat message.
//
// # Description
//
// An empty, whitespace-only or unparseable message returns 400 with
// {"reply": "Please type a message."} and never reaches the responder. Every
// other message is answered, so crisis detection always runs.
//
// # Inputs
//
//   - responder: Runs the turn.
//   - resolver: Picks the session.
//
// # Outputs
//
//   - gin.HandlerFunc: 200 with ChatResponse, or 400.
func HandleChat(responder TurnProcessor, resolver *SessionResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := chatTracer.Start(c.Request.Context(), "HandleChat")
		defer span.End()

		var req ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "invalid request body")
			slog.Warn("Failed to parse the chat request", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"reply": condition.EmptyInputMessage})
			return
		}

		if isEmptyMessage(req.Message) {
			c.JSON(http.StatusBadRequest, gin.H{"reply": condition.EmptyInputMessage})
			return
		}

		sess := resolver.Resolve(req.SessionID)
		span.SetAttributes(attribute.String("session.id", sess.ID()))

		reply := responder.ProcessTurn(ctx, sess, req.Message)
		c.JSON(http.StatusOK, newChatResponse(sess.ID(), reply))
	}
}
