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
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/AleutianCare/services/companion/condition"
)

// WSRequest is one client frame.
type WSRequest struct {
	Message string `json:"message"`
}

// WSError is sent when a frame cannot be answered.
type WSError struct {
	Reply string `json:"reply"`
	Error string `json:"error"`
}

const (
	wsReadLimit   = 64 * 1024
	wsIdleTimeout = 10 * time.Minute
	wsWriteWait   = 10 * time.Second
)

// upgrader matches the CORS policy of the HTTP routes, which allows any origin.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  4 * 1024,
	WriteBufferSize: 16 * 1024,
}

func sendJSON(ws *websocket.Conn, v interface{}) error {
	_ = ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
	err := ws.WriteJSON(v)
	if err != nil {
		slog.Warn("Failed to write WebSocket JSON", "error", err)
	}
	return err
}

// HandleChatWebSocket runs a chat over a websocket.
//
// # Description
//
// Each connection is one session. The server first sends
// {"action":"session_created","sessionId":...}; every following {"message"}
// frame is answered with a ChatResponse. Empty messages get a WSError and the
// connection stays open. The connection closes after wsIdleTimeout without a
// frame.
func HandleChatWebSocket(responder TurnProcessor, resolver *SessionResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("failed to upgrade the websocket", "error", err)
			return
		}
		defer ws.Close()
		ws.SetReadLimit(wsReadLimit)

		sess := resolver.Resolve("")
		slog.Info("New websocket session started", "session_id", sess.ID())

		if err := sendJSON(ws, map[string]interface{}{
			"action":    "session_created",
			"sessionId": sess.ID(),
		}); err != nil {
			return
		}

		for {
			_ = ws.SetReadDeadline(time.Now().Add(wsIdleTimeout))
			var req WSRequest
			if err := ws.ReadJSON(&req); err != nil {
				slog.Info("Websocket client disconnected", "session_id", sess.ID(), "error", err.Error())
				return
			}

			if isEmptyMessage(req.Message) {
				if err := sendJSON(ws, WSError{Reply: condition.EmptyInputMessage, Error: "invalid_message"}); err != nil {
					return
				}
				continue
			}

			reply := responder.ProcessTurn(c.Request.Context(), sess, req.Message)
			if err := sendJSON(ws, newChatResponse(sess.ID(), reply)); err != nil {
				return
			}
		}
	}
}
