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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("aleutian.classifier")

// DefaultHFModel is the emotion model the HF backend queries when none is set.
const DefaultHFModel = "bhadresh-savani/distilbert-base-uncased-emotion"

// HFConfig configures HFInferenceClient.
type HFConfig struct {
	// BaseURL of the inference server, e.g. "https://api-inference.huggingface.co"
	// or a local text-embeddings-inference container.
	BaseURL string

	// Model is appended as /models/{Model} when set. Leave empty for servers
	// that host exactly one model at the root.
	Model string

	// APIToken is sent as a bearer token when non-empty.
	APIToken string

	// Timeout bounds a single HTTP round trip. Default: 30s.
	Timeout time.Duration
}

type HFInferenceClient struct {
	httpClient *http.Client
	endpoint   string
	model      string
	apiToken   string
}

type hfRequest struct {
	Inputs     string       `json:"inputs"`
	Parameters hfParameters `json:"parameters"`
}

// TopK is a pointer so null is sent explicitly; null asks for every label.
type hfParameters struct {
	TopK *int `json:"top_k"`
}

type hfErrorResponse struct {
	Error string `json:"error"`
}

func NewHFInferenceClient(cfg HFConfig) (*HFInferenceClient, error) {
	baseURL := strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("HF inference base URL not set")
	}
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("HF inference base URL must be http(s): %q", baseURL)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	endpoint := baseURL
	if cfg.Model != "" {
		endpoint = baseURL + "/models/" + cfg.Model
	}
	slog.Info("Initializing HF inference classifier", "endpoint", endpoint)
	return &HFInferenceClient{
		httpClient: &http.Client{Timeout: timeout},
		endpoint:   endpoint,
		model:      cfg.Model,
		apiToken:   cfg.APIToken,
	}, nil
}

// Classify implements EmotionClassifier.
func (h *HFInferenceClient) Classify(ctx context.Context, text string) ([]Score, error) {
	ctx, span := tracer.Start(ctx, "HFInferenceClient.Classify")
	defer span.End()
	span.SetAttributes(
		attribute.String("classifier.model", h.model),
		attribute.Int("classifier.input_length", len(text)),
	)

	body, err := json.Marshal(hfRequest{Inputs: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal HF request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build HF request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiToken)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return nil, fmt.Errorf("%w: HF request failed: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: failed to read HF response: %v", ErrUnavailable, err)
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode != http.StatusOK {
		var apiErr hfErrorResponse
		_ = json.Unmarshal(respBody, &apiErr)
		msg := apiErr.Error
		if msg == "" {
			msg = strings.TrimSpace(string(respBody))
		}
		span.SetStatus(codes.Error, resp.Status)
		slog.Warn("HF inference returned an error", "status", resp.StatusCode, "error", msg)
		return nil, fmt.Errorf("%w: HF inference status %d: %s", ErrUnavailable, resp.StatusCode, msg)
	}

	scores, err := parseHFScores(respBody)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "malformed response")
		return nil, err
	}
	return scores, nil
}

// parseHFScores accepts both [[{label,score},...]] (pipeline with all scores) and
// [{label,score},...] (TEI /predict), and keeps the server's ordering.
func parseHFScores(body []byte) ([]Score, error) {
	var scores []Score
	var nested [][]Score
	if err := json.Unmarshal(body, &nested); err == nil {
		if len(nested) == 0 {
			return nil, fmt.Errorf("%w: empty HF result", ErrMalformedOutput)
		}
		scores = nested[0]
	} else if err := json.Unmarshal(body, &scores); err != nil {
		return nil, fmt.Errorf("%w: unrecognized HF response: %v", ErrMalformedOutput, err)
	}
	if err := Validate(scores); err != nil {
		return nil, err
	}
	return scores, nil
}
