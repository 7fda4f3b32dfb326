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
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianCare/pkg/extensions"
	"github.com/AleutianAI/AleutianCare/pkg/validation"
	"github.com/AleutianAI/AleutianCare/services/classifier"
	"github.com/AleutianAI/AleutianCare/services/companion"
	"github.com/AleutianAI/AleutianCare/services/companion/condition"
	"github.com/AleutianAI/AleutianCare/services/companion/session"
	"github.com/AleutianAI/AleutianCare/services/safety_engine"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// =============================================================================
// Test Fixtures
// =============================================================================

type fixture struct {
	router   *gin.Engine
	store    *session.MemoryStore
	resolver *SessionResolver
	calls    *atomic.Int32

	mu       sync.Mutex
	lastText string
}

func (f *fixture) classifiedText() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastText
}

// newFixture wires real routes to a responder whose classifier always answers
// with label at 0.9. The classifier sees at most 50 characters.
func newFixture(t *testing.T, label string, shared bool) *fixture {
	t.Helper()

	engine, err := safety_engine.NewSafetyEngine(safety_engine.MatchSubstring)
	require.NoError(t, err)

	f := &fixture{calls: &atomic.Int32{}}
	clf := classifier.Func(func(ctx context.Context, text string) ([]classifier.Score, error) {
		f.calls.Add(1)
		f.mu.Lock()
		f.lastText = text
		f.mu.Unlock()
		return []classifier.Score{{Label: label, Score: 0.9}, {Label: classifier.LabelLove, Score: 0.1}}, nil
	})
	responder := companion.NewResponder(engine, clf, companion.Config{MaxClassifierInput: 50}, extensions.DefaultOptions())

	f.store = session.NewMemoryStore(session.Options{}, nil)
	f.resolver = &SessionResolver{Store: f.store, Shared: shared}

	f.router = gin.New()
	f.router.GET("/health", HealthCheck)
	f.router.POST("/chat", HandleChat(responder, f.resolver))
	f.router.GET("/ws", HandleChatWebSocket(responder, f.resolver))
	f.router.GET("/sessions", ListSessions(f.store))
	f.router.GET("/sessions/:sessionId/log", GetSessionLog(f.store))
	f.router.DELETE("/sessions/:sessionId", DeleteSession(f.store, nil))
	return f
}

func (f *fixture) postChat(t *testing.T, body string) (*httptest.ResponseRecorder, ChatResponse) {
	t.Helper()
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/chat", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	f.router.ServeHTTP(w, req)

	var resp ChatResponse
	if w.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

// =============================================================================
// HealthCheck Tests
// =============================================================================

func TestHealthCheck_ReturnsOK(t *testing.T) {
	f := newFixture(t, classifier.LabelJoy, false)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/health", nil)
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")

	var response map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "ok", response["status"])
}

// =============================================================================
// POST /chat Tests
// =============================================================================

// TestHandleChat_EmptyMessage verifies every empty form is rejected up front.
func TestHandleChat_EmptyMessage(t *testing.T) {
	f := newFixture(t, classifier.LabelJoy, false)

	for _, body := range []string{`{}`, `{"message":""}`, `{"message":"   "}`, `not json`} {
		w, _ := f.postChat(t, body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)

		var resp map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), body)
		assert.Equal(t, "Please type a message.", resp["reply"], body)
	}
	assert.Zero(t, f.calls.Load())
	assert.Zero(t, f.store.Len(), "rejected requests must not create sessions")
}

// TestHandleChat_LongCrisisMessage verifies length never keeps a crisis
// message from its safety reply.
func TestHandleChat_LongCrisisMessage(t *testing.T) {
	f := newFixture(t, classifier.LabelJoy, false)

	w, resp := f.postChat(t, `{"message":"`+strings.Repeat("a", 60)+` i want to die"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, companion.KindCrisis, resp.Kind)
	assert.Equal(t, condition.CrisisMessage, resp.Reply)
	assert.Zero(t, f.calls.Load())
}

// TestHandleChat_LongMessageTruncatedForClassifier verifies long messages are
// answered, the classifier sees a capped prefix and the log keeps the full text.
func TestHandleChat_LongMessageTruncatedForClassifier(t *testing.T) {
	f := newFixture(t, classifier.LabelJoy, false)
	long := strings.Repeat("glad ", 30)

	w, resp := f.postChat(t, `{"message":"`+long+`","session_id":"s1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, companion.KindClassified, resp.Kind)
	assert.Equal(t, 50, utf8.RuneCountInString(f.classifiedText()))
	assert.True(t, strings.HasPrefix(long, f.classifiedText()))

	sess, ok := f.store.Get("s1")
	require.True(t, ok)
	assert.Equal(t, long, sess.Log().Entries()[0].Input)
}

func TestHandleChat_ClassifiedReply(t *testing.T) {
	f := newFixture(t, classifier.LabelJoy, false)

	w, resp := f.postChat(t, `{"message":"I am so glad today"}`)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, companion.KindClassified, resp.Kind)
	assert.Equal(t, condition.Happy, resp.Condition)
	assert.Equal(t, 0.9, resp.Confidence)
	assert.False(t, resp.Escalated)
	assert.True(t, strings.HasPrefix(resp.Reply, "I’m glad you’re feeling **happy** today!"))
	assert.NotEmpty(t, resp.SessionID, "a session id is generated when none is sent")

	sess, ok := f.store.Get(resp.SessionID)
	require.True(t, ok)
	assert.Equal(t, 1, sess.Log().Len())
}

func TestHandleChat_CrisisAndGreeting(t *testing.T) {
	f := newFixture(t, classifier.LabelSadness, false)

	_, crisis := f.postChat(t, `{"message":"I want to die","session_id":"s1"}`)
	assert.Equal(t, companion.KindCrisis, crisis.Kind)
	assert.Equal(t, condition.CrisisMessage, crisis.Reply)
	assert.Empty(t, crisis.Condition)

	_, greeting := f.postChat(t, `{"message":"hello there","session_id":"s1"}`)
	assert.Equal(t, companion.KindGreeting, greeting.Kind)
	assert.Equal(t, condition.GreetingMessage, greeting.Reply)

	assert.Zero(t, f.calls.Load())
	sess, _ := f.store.Get("s1")
	assert.Zero(t, sess.Log().Len())
}

func TestHandleChat_SessionIDKeepsStreak(t *testing.T) {
	f := newFixture(t, classifier.LabelSadness, false)

	var last ChatResponse
	for i := 0; i < 3; i++ {
		_, last = f.postChat(t, `{"message":"so sad","session_id":"abc"}`)
		assert.Equal(t, "abc", last.SessionID)
	}
	assert.True(t, last.Escalated)
	assert.Contains(t, last.Reply, "professional counselor")

	// A different session starts from scratch.
	_, other := f.postChat(t, `{"message":"so sad","session_id":"xyz"}`)
	assert.False(t, other.Escalated)
}

func TestHandleChat_SharedMode(t *testing.T) {
	f := newFixture(t, classifier.LabelSadness, true)

	_, a := f.postChat(t, `{"message":"so sad","session_id":"alice"}`)
	_, b := f.postChat(t, `{"message":"so sad","session_id":"bob"}`)
	_, c := f.postChat(t, `{"message":"so sad"}`)

	for _, r := range []ChatResponse{a, b, c} {
		assert.Equal(t, session.SharedID, r.SessionID)
	}
	assert.True(t, c.Escalated, "shared mode pools every caller into one streak")
	assert.Equal(t, 1, f.store.Len())
}

// TestHandleChat_BadSessionIDStartsNewSession verifies an unusable id is
// replaced, never rejected.
func TestHandleChat_BadSessionIDStartsNewSession(t *testing.T) {
	f := newFixture(t, classifier.LabelJoy, false)

	ids := []string{strings.Repeat("s", 200), `a\nb`, "../etc", "a b", session.SharedID}
	seen := map[string]bool{}
	for _, id := range ids {
		w, resp := f.postChat(t, `{"message":"glad","session_id":"`+id+`"}`)
		require.Equal(t, http.StatusOK, w.Code, id)
		assert.NotEqual(t, strings.TrimSpace(id), resp.SessionID, id)
		assert.NoError(t, validation.ValidateSessionID(resp.SessionID), id)
		seen[resp.SessionID] = true
	}
	assert.Len(t, seen, len(ids), "each bad id gets its own session")
	assert.Equal(t, len(ids), f.store.Len())
}

func TestHandleChat_CrisisWithBadSessionID(t *testing.T) {
	f := newFixture(t, classifier.LabelSadness, false)

	w, resp := f.postChat(t, `{"message":"I want to die","session_id":"bad/id"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, companion.KindCrisis, resp.Kind)
	assert.Equal(t, condition.CrisisMessage, resp.Reply)
	assert.NotEqual(t, "bad/id", resp.SessionID)
}

func TestSessionResolver_OnChange(t *testing.T) {
	store := session.NewMemoryStore(session.Options{}, nil)
	var sizes []int
	r := &SessionResolver{Store: store, OnChange: func(n int) { sizes = append(sizes, n) }}

	r.Resolve("a")
	r.Resolve("a")
	r.Resolve("")

	assert.Equal(t, []int{1, 2}, sizes)
}

// =============================================================================
// Session Inspection Tests
// =============================================================================

func TestSessionEndpoints(t *testing.T) {
	f := newFixture(t, classifier.LabelFear, false)
	f.postChat(t, `{"message":"I am nervous","session_id":"s1"}`)
	f.postChat(t, `{"message":"worried","session_id":"s1"}`)
	f.postChat(t, `{"message":"scared","session_id":"s2"}`)

	// List
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/sessions", nil)
	f.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var list struct {
		Sessions []session.Summary `json:"sessions"`
		Count    int               `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 2, list.Count)
	assert.Equal(t, "s1", list.Sessions[0].ID)
	assert.Equal(t, 2, list.Sessions[0].LogLength)

	// Log
	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/sessions/s1/log", nil)
	f.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var log struct {
		Entries []map[string]any `json:"entries"`
		Count   int              `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &log))
	require.Equal(t, 2, log.Count)
	assert.Equal(t, "I am nervous", log.Entries[0]["input"])
	assert.Equal(t, "anxiety", log.Entries[0]["emotion"])
	assert.Equal(t, 0.9, log.Entries[0]["confidence"])
	assert.NotEmpty(t, log.Entries[0]["timestamp"])

	// Delete
	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodDelete, "/sessions/s1", nil)
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	for _, path := range []string{"/sessions/s1/log"} {
		w = httptest.NewRecorder()
		req, _ = http.NewRequest(http.MethodGet, path, nil)
		f.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNotFound, w.Code)
	}

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodDelete, "/sessions/s1", nil)
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteSession_SharedIsKept(t *testing.T) {
	f := newFixture(t, classifier.LabelSadness, true)
	f.postChat(t, `{"message":"so sad"}`)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodDelete, "/sessions/"+session.SharedID, nil)
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusConflict, w.Code)

	sess, ok := f.store.Get(session.SharedID)
	require.True(t, ok)
	assert.Equal(t, 1, sess.Log().Len())
	assert.Equal(t, 1, sess.Streak().Count())
}
