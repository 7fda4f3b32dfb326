// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// =============================================================================
// Dominant / Validate
// =============================================================================

func TestDominant(t *testing.T) {
	tests := []struct {
		name      string
		scores    []Score
		wantLabel string
		wantScore float64
	}{
		{
			name:      "highest wins",
			scores:    []Score{{"joy", 0.1}, {"sadness", 0.7}, {"fear", 0.2}},
			wantLabel: "sadness",
			wantScore: 0.7,
		},
		{
			name:      "tie goes to first listed",
			scores:    []Score{{"fear", 0.4}, {"anger", 0.4}, {"joy", 0.2}},
			wantLabel: "fear",
			wantScore: 0.4,
		},
		{
			name:      "tie order reversed",
			scores:    []Score{{"anger", 0.4}, {"fear", 0.4}, {"joy", 0.2}},
			wantLabel: "anger",
			wantScore: 0.4,
		},
		{
			name:      "single entry",
			scores:    []Score{{"surprise", 0.05}},
			wantLabel: "surprise",
			wantScore: 0.05,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			before := append([]Score(nil), tc.scores...)
			got, err := Dominant(tc.scores)
			if err != nil {
				t.Fatalf("Dominant returned error: %v", err)
			}
			if got.Label != tc.wantLabel || got.Score != tc.wantScore {
				t.Errorf("Dominant = %+v, want %s/%v", got, tc.wantLabel, tc.wantScore)
			}
			for i := range before {
				if before[i] != tc.scores[i] {
					t.Fatalf("Dominant mutated its input at %d", i)
				}
			}
		})
	}
}

func TestDominant_Malformed(t *testing.T) {
	cases := map[string][]Score{
		"empty":       nil,
		"blank label": {{"", 0.5}},
		"nan":         {{"joy", math.NaN()}},
		"negative":    {{"joy", -0.1}},
		"above one":   {{"joy", 1.5}},
	}
	for name, scores := range cases {
		if _, err := Dominant(scores); !errors.Is(err, ErrMalformedOutput) {
			t.Errorf("%s: err = %v, want ErrMalformedOutput", name, err)
		}
	}
}

func TestUnavailable(t *testing.T) {
	_, err := Unavailable{Cause: errors.New("model failed to load")}.Classify(context.Background(), "x")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if !strings.Contains(err.Error(), "model failed to load") {
		t.Errorf("cause not preserved: %v", err)
	}
}

// =============================================================================
// HF inference backend
// =============================================================================

type capturedRequest struct {
	path string
	auth string
}

func newHFTestServer(t *testing.T, status int, body string) (*httptest.Server, *capturedRequest) {
	t.Helper()
	captured := &capturedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.path = r.URL.Path
		captured.auth = r.Header.Get("Authorization")
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("server could not decode request: %v", err)
		}
		if req["inputs"] != "I feel sad" {
			t.Errorf("inputs = %v, want raw text", req["inputs"])
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, captured
}

func TestHFInferenceClient_NestedShape(t *testing.T) {
	srv, captured := newHFTestServer(t, http.StatusOK,
		`[[{"label":"sadness","score":0.91},{"label":"joy","score":0.02},{"label":"fear","score":0.07}]]`)
	client, err := NewHFInferenceClient(HFConfig{BaseURL: srv.URL, Model: DefaultHFModel, APIToken: "tok"})
	if err != nil {
		t.Fatalf("NewHFInferenceClient: %v", err)
	}
	scores, err := client.Classify(context.Background(), "I feel sad")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if len(scores) != 3 || scores[0].Label != "sadness" || scores[0].Score != 0.91 {
		t.Errorf("scores = %+v", scores)
	}
	if captured.path != "/models/"+DefaultHFModel {
		t.Errorf("path = %s", captured.path)
	}
	if captured.auth != "Bearer tok" {
		t.Errorf("Authorization header = %q", captured.auth)
	}
}

func TestHFInferenceClient_FlatShape(t *testing.T) {
	srv, _ := newHFTestServer(t, http.StatusOK, `[{"label":"joy","score":0.87},{"label":"sadness","score":0.13}]`)
	client, err := NewHFInferenceClient(HFConfig{BaseURL: srv.URL + "/"})
	if err != nil {
		t.Fatalf("NewHFInferenceClient: %v", err)
	}
	scores, err := client.Classify(context.Background(), "I feel sad")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	top, _ := Dominant(scores)
	if top.Label != "joy" {
		t.Errorf("dominant = %+v, want joy", top)
	}
}

func TestHFInferenceClient_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"model loading", http.StatusServiceUnavailable, `{"error":"Model is currently loading"}`, ErrUnavailable},
		{"server error", http.StatusInternalServerError, `oops`, ErrUnavailable},
		{"empty nested", http.StatusOK, `[]`, ErrMalformedOutput},
		{"not json", http.StatusOK, `<html>`, ErrMalformedOutput},
		{"bad score", http.StatusOK, `[{"label":"joy","score":7}]`, ErrMalformedOutput},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv, _ := newHFTestServer(t, tc.status, tc.body)
			client, err := NewHFInferenceClient(HFConfig{BaseURL: srv.URL})
			if err != nil {
				t.Fatalf("NewHFInferenceClient: %v", err)
			}
			if _, err := client.Classify(context.Background(), "I feel sad"); !errors.Is(err, tc.wantErr) {
				t.Errorf("err = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestHFInferenceClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client, err := NewHFInferenceClient(HFConfig{BaseURL: url, Timeout: time.Second})
	if err != nil {
		t.Fatalf("NewHFInferenceClient: %v", err)
	}
	if _, err := client.Classify(context.Background(), "hello"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}

func TestNewHFInferenceClient_RejectsBadURL(t *testing.T) {
	for _, u := range []string{"", "   ", "ftp://models.local"} {
		if _, err := NewHFInferenceClient(HFConfig{BaseURL: u}); err == nil {
			t.Errorf("expected error for base URL %q", u)
		}
	}
}

// =============================================================================
// OpenAI backend
// =============================================================================

func newOpenAITestServer(t *testing.T, status int, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":{"message":"upstream exploded","type":"server_error"}}`))
			return
		}
		resp := map[string]any{
			"id":      "chatcmpl-test",
			"object":  "chat.completion",
			"created": 1,
			"model":   "gpt-4o-mini",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIClassifier_ScoresInVocabularyOrder(t *testing.T) {
	srv := newOpenAITestServer(t, http.StatusOK, "```json\n{\"Joy\": 0.6, \"sadness\": 0.3, \"fear\": 0.1, \"boredom\": 0.9}\n```")
	c, err := NewOpenAIClassifier(OpenAIConfig{APIKey: "test", BaseURL: srv.URL + "/v1"})
	if err != nil {
		t.Fatalf("NewOpenAIClassifier: %v", err)
	}
	scores, err := c.Classify(context.Background(), "what a day")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if len(scores) != len(DefaultLabels) {
		t.Fatalf("got %d scores, want %d", len(scores), len(DefaultLabels))
	}
	for i, label := range DefaultLabels {
		if scores[i].Label != label {
			t.Errorf("scores[%d].Label = %s, want %s", i, scores[i].Label, label)
		}
	}
	top, _ := Dominant(scores)
	if top.Label != LabelJoy || top.Score != 0.6 {
		t.Errorf("dominant = %+v", top)
	}
}

func TestOpenAIClassifier_Errors(t *testing.T) {
	t.Run("api error", func(t *testing.T) {
		srv := newOpenAITestServer(t, http.StatusInternalServerError, "")
		c, _ := NewOpenAIClassifier(OpenAIConfig{APIKey: "test", BaseURL: srv.URL + "/v1"})
		if _, err := c.Classify(context.Background(), "x"); !errors.Is(err, ErrUnavailable) {
			t.Errorf("err = %v, want ErrUnavailable", err)
		}
	})
	t.Run("prose content", func(t *testing.T) {
		srv := newOpenAITestServer(t, http.StatusOK, "The user seems happy.")
		c, _ := NewOpenAIClassifier(OpenAIConfig{APIKey: "test", BaseURL: srv.URL + "/v1"})
		if _, err := c.Classify(context.Background(), "x"); !errors.Is(err, ErrMalformedOutput) {
			t.Errorf("err = %v, want ErrMalformedOutput", err)
		}
	})
	t.Run("no known labels", func(t *testing.T) {
		srv := newOpenAITestServer(t, http.StatusOK, `{"boredom": 1}`)
		c, _ := NewOpenAIClassifier(OpenAIConfig{APIKey: "test", BaseURL: srv.URL + "/v1"})
		if _, err := c.Classify(context.Background(), "x"); !errors.Is(err, ErrMalformedOutput) {
			t.Errorf("err = %v, want ErrMalformedOutput", err)
		}
	})
	t.Run("missing key", func(t *testing.T) {
		if _, err := NewOpenAIClassifier(OpenAIConfig{}); err == nil {
			t.Error("expected error without API key")
		}
	})
}

// =============================================================================
// Lexicon backend
// =============================================================================

func TestLexiconClassifier(t *testing.T) {
	c := NewLexiconClassifier()
	tests := []struct {
		input string
		want  string
	}{
		{"I feel so sad and lonely", LabelSadness},
		{"I'm really happy today", LabelJoy},
		{"I'm scared and anxious about tomorrow", LabelFear},
		{"Work is so stressful and frustrating", LabelAnger},
		{"The bus was on time", LabelNeutral},
		{"I am tired of everything", LabelSadness},
	}
	for _, tc := range tests {
		scores, err := c.Classify(context.Background(), tc.input)
		if err != nil {
			t.Fatalf("Classify(%q): %v", tc.input, err)
		}
		if err := Validate(scores); err != nil {
			t.Fatalf("Classify(%q) produced invalid scores: %v", tc.input, err)
		}
		top, _ := Dominant(scores)
		if top.Label != tc.want {
			t.Errorf("Classify(%q) dominant = %s, want %s (%+v)", tc.input, top.Label, tc.want, scores)
		}
	}
}

// =============================================================================
// Timeout wrapper
// =============================================================================

func TestWithTimeout(t *testing.T) {
	slow := Func(func(ctx context.Context, text string) ([]Score, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
			return []Score{{"joy", 1}}, nil
		}
	})
	_, err := WithTimeout(slow, 20*time.Millisecond).Classify(context.Background(), "x")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}

	fast := Func(func(ctx context.Context, text string) ([]Score, error) {
		return []Score{{"joy", 1}}, nil
	})
	scores, err := WithTimeout(fast, time.Second).Classify(context.Background(), "x")
	if err != nil || len(scores) != 1 {
		t.Fatalf("fast classifier: scores=%v err=%v", scores, err)
	}

	if WithTimeout(fast, 0) == nil {
		t.Fatal("WithTimeout(_, 0) returned nil")
	}
}
