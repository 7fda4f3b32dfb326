// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianCare/services/companion/session"
	"github.com/AleutianAI/AleutianCare/services/orchestrator/handlers"
)

// Dependencies are the collaborators the routes need.
type Dependencies struct {
	Responder handlers.TurnProcessor
	Resolver  *handlers.SessionResolver
	Store     session.Store

	// Metrics serves /metrics when non-nil.
	Metrics http.Handler

	// OnSessionsChanged receives the store size after a delete.
	OnSessionsChanged func(total int)
}

// SetupRoutes registers every endpoint on router.
//
// POST /chat is kept at the root for the browser frontend; everything else
// lives under /v1.
func SetupRoutes(router *gin.Engine, deps Dependencies) {
	router.GET("/health", handlers.HealthCheck)
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	chat := handlers.HandleChat(deps.Responder, deps.Resolver)
	router.POST("/chat", chat)

	v1 := router.Group("/v1")
	{
		v1.POST("/chat", chat)
		v1.GET("/chat/ws", handlers.HandleChatWebSocket(deps.Responder, deps.Resolver))
		sessions := v1.Group("/sessions")
		{
			sessions.GET("", handlers.ListSessions(deps.Store))
			sessions.GET("/:sessionId/log", handlers.GetSessionLog(deps.Store))
			sessions.DELETE("/:sessionId", handlers.DeleteSession(deps.Store, deps.OnSessionsChanged))
		}
	}
}
