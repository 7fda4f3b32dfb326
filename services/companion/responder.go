// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package companion turns one user message into one supportive reply.
//
// # Description
//
// Each turn runs a short-circuiting chain of handlers:
//
//  1. crisis: a self-harm phrase returns the fixed safety message
//  2. greeting: a salutation returns the fixed greeting
//  3. classify: the emotion classifier picks a condition, the streak is
//     updated, and the reply is assembled from the condition's base message,
//     its coping tips, the optional counselor suggestion and a closing prompt
//
// Only the classify handler touches session state, and only when the classifier
// produced an answer.
package companion

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianCare/pkg/extensions"
	"github.com/AleutianAI/AleutianCare/services/classifier"
	"github.com/AleutianAI/AleutianCare/services/companion/condition"
	"github.com/AleutianAI/AleutianCare/services/companion/session"
	"github.com/AleutianAI/AleutianCare/services/safety_engine"
)

var tracer = otel.Tracer("aleutian.companion")

// DefaultMaxClassifierInput is the default cap, in characters, on the text sent
// to the classifier.
const DefaultMaxClassifierInput = 4000

// =============================================================================
// Types
// =============================================================================

// Kind says which handler produced a reply.
type Kind string

const (
	KindCrisis     Kind = "crisis"
	KindGreeting   Kind = "greeting"
	KindDegraded   Kind = "degraded"
	KindClassified Kind = "classified"
)

// Kinds lists every Kind, for metrics pre-registration.
var Kinds = []Kind{KindCrisis, KindGreeting, KindDegraded, KindClassified}

// Reply is the outcome of one turn.
//
// Condition, Emotion and Confidence are only set for KindClassified. Streak is
// the session's streak after the turn.
type Reply struct {
	Text       string              `json:"reply"`
	Kind       Kind                `json:"kind"`
	Condition  condition.Condition `json:"condition,omitempty"`
	Emotion    string              `json:"emotion,omitempty"`
	Confidence float64             `json:"confidence"`
	Escalated  bool                `json:"escalated"`
	Streak     int                 `json:"streak"`
}

// PhraseMatcher reports the first phrase of a named keyword set found in text.
// *safety_engine.SafetyEngine satisfies it.
type PhraseMatcher interface {
	Match(setName, text string) (phrase string, ok bool)
}

// TurnObserver receives per-turn signals for metrics.
type TurnObserver interface {
	// ObserveTurn is called once per turn after the reply is final.
	ObserveTurn(reply Reply)

	// ObserveClassification is called after every classifier call. err is the
	// classifier's error, or nil.
	ObserveClassification(elapsed time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveTurn(Reply) {}
func (nopObserver) ObserveClassification(time.Duration, error) {}

// Config holds optional Responder collaborators.
type Config struct {
	// Observer defaults to a no-op.
	Observer TurnObserver

	// Clock defaults to time.Now. It stamps interaction log entries.
	Clock func() time.Time

	// Meter records the companion.turn.duration histogram. Defaults to the
	// global OTel meter provider.
	Meter metric.MeterProvider

	// MaxClassifierInput truncates the text sent to the classifier, in
	// characters. Zero uses DefaultMaxClassifierInput; negative disables it.
	MaxClassifierInput int
}

// =============================================================================
// Responder
// =============================================================================

// Responder runs turns against sessions.
//
// # Thread Safety
//
// Safe for concurrent use. Turns on the same session are serialized; turns on
// different sessions run in parallel.
type Responder struct {
	phrases    PhraseMatcher
	classifier classifier.EmotionClassifier
	observer   TurnObserver
	audit      extensions.AuditLogger
	filter     extensions.MessageFilter
	now        func() time.Time
	maxInput   int
	chain      []turnHandler

	turnDuration metric.Float64Histogram
}

// turn carries one message through the handler chain.
type turn struct {
	ctx   context.Context
	span  trace.Span
	sess  *session.Session
	raw   string
	reply Reply
}

// turnHandler handles t and returns true, or returns false to defer to the next
// handler.
type turnHandler func(r *Responder, t *turn) bool

// NewResponder wires a Responder.
//
// # Inputs
//
//   - phrases: Crisis and greeting detection, usually a *safety_engine.SafetyEngine.
//   - clf: Emotion classifier. Wrap it with classifier.WithTimeout to bound calls.
//   - cfg: Optional observer and clock.
//   - opts: Audit logger and message filter. Nil hooks become no-ops.
//
// # Outputs
//
//   - *Responder: Ready for ProcessTurn.
func NewResponder(phrases PhraseMatcher, clf classifier.EmotionClassifier, cfg Config, opts extensions.ServiceOptions) *Responder {
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if clf == nil {
		clf = classifier.Unavailable{}
	}
	if cfg.Meter == nil {
		cfg.Meter = otel.GetMeterProvider()
	}
	if cfg.MaxClassifierInput == 0 {
		cfg.MaxClassifierInput = DefaultMaxClassifierInput
	}
	opts = opts.Normalize()

	turnDuration, err := cfg.Meter.Meter("aleutian.companion").Float64Histogram(
		"companion.turn.duration",
		metric.WithUnit("s"),
		metric.WithDescription("End-to-end time to answer one message."),
	)
	if err != nil {
		slog.Warn("Turn duration histogram unavailable", "error", err)
		turnDuration, _ = noop.NewMeterProvider().Meter("aleutian.companion").Float64Histogram("companion.turn.duration")
	}

	return &Responder{
		phrases:    phrases,
		classifier: clf,
		observer:   cfg.Observer,
		audit:      opts.AuditLogger,
		filter:     opts.MessageFilter,
		now:        cfg.Clock,
		maxInput:   cfg.MaxClassifierInput,
		chain: []turnHandler{
			(*Responder).handleCrisis,
			(*Responder).handleGreeting,
			(*Responder).handleClassified,
		},
		turnDuration: turnDuration,
	}
}

// ProcessTurn answers one message within sess.
//
// # Description
//
// The crisis check always runs first and never depends on the classifier. The
// session's turn lock is held for the whole chain so concurrent messages on one
// session are answered in arrival order.
//
// # Inputs
//
//   - ctx: Bounds the classifier call.
//   - sess: Conversation state. Must not be nil.
//   - raw: The message as typed. Callers reject empty input before calling.
//
// # Outputs
//
//   - Reply: Always populated. There is no error return; classifier failures
//     produce a degraded reply.
func (r *Responder) ProcessTurn(ctx context.Context, sess *session.Session, raw string) Reply {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "Responder.ProcessTurn")
	defer span.End()
	span.SetAttributes(
		attribute.String("session.id", sess.ID()),
		attribute.Int("message.length", len(raw)),
	)

	t := &turn{ctx: ctx, span: span, sess: sess, raw: raw}
	sess.Turn(func() {
		for _, handle := range r.chain {
			if handle(r, t) {
				break
			}
		}
		t.reply.Streak = sess.Streak().Count()
	})
	sess.Touch(r.now())

	t.reply.Text = r.filterOutput(ctx, t.reply.Text)

	span.SetAttributes(
		attribute.String("turn.kind", string(t.reply.Kind)),
		attribute.Bool("turn.escalated", t.reply.Escalated),
	)
	if t.reply.Condition != "" {
		span.SetAttributes(attribute.String("turn.condition", string(t.reply.Condition)))
	}
	r.observer.ObserveTurn(t.reply)
	r.turnDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("kind", string(t.reply.Kind))))

	slog.Debug("Turn processed",
		"session_id", sess.ID(),
		"kind", t.reply.Kind,
		"condition", t.reply.Condition,
		"message_len", len(raw),
	)
	return t.reply
}

// =============================================================================
// Handlers
// =============================================================================

func (r *Responder) handleCrisis(t *turn) bool {
	phrase, ok := r.phrases.Match(safety_engine.SetCrisis, t.raw)
	if !ok {
		return false
	}
	t.reply = Reply{Text: condition.CrisisMessage, Kind: KindCrisis}

	slog.Warn("Crisis language detected", "session_id", t.sess.ID(), "phrase", phrase)
	r.recordAudit(t.ctx, extensions.AuditEvent{
		EventType: extensions.EventChatCrisis,
		SessionID: t.sess.ID(),
		Action:    "safety_message",
		Outcome:   "intercepted",
		Metadata:  map[string]any{"phrase": phrase},
	})
	return true
}

func (r *Responder) handleGreeting(t *turn) bool {
	if _, ok := r.phrases.Match(safety_engine.SetGreeting, t.raw); !ok {
		return false
	}
	t.reply = Reply{Text: condition.GreetingMessage, Kind: KindGreeting}
	return true
}

func (r *Responder) handleClassified(t *turn) bool {
	input, ok := r.filterInput(t.ctx, t.raw)
	if !ok {
		t.reply = degradedReply()
		return true
	}

	input = truncateRunes(input, r.maxInput)

	start := time.Now()
	scores, err := r.classifier.Classify(t.ctx, input)
	elapsed := time.Since(start)

	var dominant classifier.Score
	if err == nil {
		dominant, err = classifier.Dominant(scores)
	}
	r.observer.ObserveClassification(elapsed, err)
	switch {
	case err == nil:
	case errors.Is(err, classifier.ErrMalformedOutput):
		// Counts as a classified turn with no usable emotion.
		slog.Warn("Classifier returned malformed output, falling back to neutral",
			"session_id", t.sess.ID(), "error", err)
		t.span.RecordError(err)
		dominant = classifier.Score{}
	default:
		slog.Error("Emotion classifier unavailable", "session_id", t.sess.ID(), "error", err)
		t.span.RecordError(err)
		t.span.SetStatus(codes.Error, err.Error())
		t.reply = degradedReply()
		return true
	}

	mapping := condition.Map(dominant.Label)
	escalate := t.sess.Streak().Observe(mapping.Streak)
	confidence := session.RoundConfidence(dominant.Score)

	var text strings.Builder
	text.WriteString(condition.ComposeTips(mapping.Message, mapping.Condition))
	if escalate {
		text.WriteString(condition.EscalationSuffix)
	}
	text.WriteString(condition.ClosingPrompt)

	t.sess.Log().Append(session.Entry{
		Timestamp:  r.now(),
		Input:      t.raw,
		Condition:  mapping.Condition,
		Confidence: confidence,
	})

	t.reply = Reply{
		Text:       text.String(),
		Kind:       KindClassified,
		Condition:  mapping.Condition,
		Emotion:    dominant.Label,
		Confidence: confidence,
		Escalated:  escalate,
	}

	if escalate {
		slog.Info("Depression streak reached threshold", "session_id", t.sess.ID())
		r.recordAudit(t.ctx, extensions.AuditEvent{
			EventType: extensions.EventEscalation,
			SessionID: t.sess.ID(),
			Action:    "counselor_suggestion",
			Outcome:   "escalated",
			Metadata:  map[string]any{"threshold": t.sess.Streak().Threshold()},
		})
	}
	return true
}

func degradedReply() Reply {
	return Reply{Text: condition.DegradedMessage, Kind: KindDegraded}
}

// truncateRunes returns at most limit runes of s. A non-positive limit keeps s.
func truncateRunes(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}

// =============================================================================
// Extension hooks
// =============================================================================

func (r *Responder) recordAudit(ctx context.Context, event extensions.AuditEvent) {
	event.Timestamp = r.now()
	if err := r.audit.Log(ctx, event); err != nil {
		slog.Warn("Failed to record audit event", "event_type", event.EventType, "error", err)
	}
}

// filterInput returns the text to send to the classifier. ok is false when the
// filter failed or blocked the message, in which case nothing is sent.
func (r *Responder) filterInput(ctx context.Context, raw string) (string, bool) {
	result, err := r.filter.FilterInput(ctx, raw)
	if err != nil {
		slog.Error("Input filter failed", "error", err)
		return "", false
	}
	if result.WasBlocked {
		slog.Warn("Input filter blocked message", "reason", result.BlockReason)
		return "", false
	}
	return result.Filtered, true
}

// filterOutput applies the output filter. Failures keep the unfiltered reply.
func (r *Responder) filterOutput(ctx context.Context, text string) string {
	result, err := r.filter.FilterOutput(ctx, text)
	if err != nil {
		slog.Error("Output filter failed, sending unfiltered reply", "error", err)
		return text
	}
	if result.WasBlocked {
		slog.Warn("Output filter blocked reply, sending unfiltered reply", "reason", result.BlockReason)
		return text
	}
	return result.Filtered
}
