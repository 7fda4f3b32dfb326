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
	"fmt"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type OpenAIConfig struct {
	APIKey string
	// Model defaults to gpt-4o-mini.
	Model string
	// BaseURL overrides the API endpoint (Azure proxies, tests).
	BaseURL string
	// Labels is the vocabulary to score. Defaults to DefaultLabels.
	Labels []string
}

// OpenAIClassifier asks a chat model to score a fixed emotion vocabulary and
// returns the scores in vocabulary order.
type OpenAIClassifier struct {
	client *openai.Client
	model  string
	labels []string
	prompt string
}

func NewOpenAIClassifier(cfg OpenAIConfig) (*OpenAIClassifier, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key not set")
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
		slog.Warn("OpenAI classifier model not set, defaulting to gpt-4o-mini")
	}
	labels := cfg.Labels
	if len(labels) == 0 {
		labels = DefaultLabels
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	slog.Info("Initializing OpenAI emotion classifier", "model", model, "labels", len(labels))
	return &OpenAIClassifier{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
		labels: append([]string(nil), labels...),
		prompt: buildScoringPrompt(labels),
	}, nil
}

func buildScoringPrompt(labels []string) string {
	return "You are an emotion classifier. Score the user's message for each of these emotions: " +
		strings.Join(labels, ", ") + ". " +
		"Respond with only a JSON object whose keys are exactly those emotion names and whose " +
		"values are probabilities between 0 and 1 that sum to 1."
}

// Classify implements EmotionClassifier.
func (o *OpenAIClassifier) Classify(ctx context.Context, text string) ([]Score, error) {
	ctx, span := tracer.Start(ctx, "OpenAIClassifier.Classify")
	defer span.End()
	span.SetAttributes(attribute.String("classifier.model", o.model))

	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: o.prompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}
	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "OpenAI call failed")
		slog.Error("OpenAI classifier call failed", "error", err)
		return nil, fmt.Errorf("%w: OpenAI API call failed: %v", ErrUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: OpenAI returned no choices", ErrMalformedOutput)
	}

	scores, err := o.parseScores(resp.Choices[0].Message.Content)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "malformed scores")
		return nil, err
	}
	return scores, nil
}

// parseScores maps the model's JSON object onto the configured vocabulary.
// Labels the model left out score 0; keys outside the vocabulary are ignored.
func (o *OpenAIClassifier) parseScores(content string) ([]Score, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var raw map[string]float64
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &raw); err != nil {
		return nil, fmt.Errorf("%w: OpenAI content is not a score object: %v", ErrMalformedOutput, err)
	}
	normalized := make(map[string]float64, len(raw))
	for k, v := range raw {
		normalized[strings.ToLower(strings.TrimSpace(k))] = v
	}

	scores := make([]Score, 0, len(o.labels))
	found := 0
	for _, label := range o.labels {
		v, ok := normalized[label]
		if ok {
			found++
		}
		scores = append(scores, Score{Label: label, Score: v})
	}
	if found == 0 {
		return nil, fmt.Errorf("%w: OpenAI scored none of the expected labels", ErrMalformedOutput)
	}
	if err := Validate(scores); err != nil {
		return nil, err
	}
	return scores, nil
}
