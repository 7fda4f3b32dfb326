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

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianCare/services/companion/session"
)

// ListSessions returns a summary of every live session.
func ListSessions(store session.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		summaries := store.List()
		c.JSON(http.StatusOK, gin.H{
			"sessions": summaries,
			"count":    len(summaries),
		})
	}
}

// GetSessionLog returns a session's interaction log, oldest entry first.
func GetSessionLog(store session.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("sessionId")
		sess, ok := store.Get(sessionID)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		entries := sess.Log().Entries()
		c.JSON(http.StatusOK, gin.H{
			"session_id": sessionID,
			"streak":     sess.Streak().Count(),
			"entries":    entries,
			"count":      len(entries),
		})
	}
}

// DeleteSession drops a session's state. The shared session cannot be deleted
// and answers 409. onChange, if non-nil, receives the store size afterwards.
func DeleteSession(store session.Store, onChange func(total int)) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("sessionId")
		if session.Pinned(sessionID) {
			c.JSON(http.StatusConflict, gin.H{"error": "the shared session lives for the whole process"})
			return
		}
		if !store.Delete(sessionID) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		slog.Info("Session deleted", "session_id", sessionID)
		if onChange != nil {
			onChange(store.Len())
		}
		c.JSON(http.StatusOK, gin.H{"deleted": sessionID})
	}
}
