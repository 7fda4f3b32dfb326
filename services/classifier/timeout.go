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
	"errors"
	"fmt"
	"time"
)

type timeoutClassifier struct {
	next    EmotionClassifier
	timeout time.Duration
}

// WithTimeout bounds every Classify call by d. A call that exceeds the deadline is
// reported as ErrUnavailable so the responder degrades instead of hanging. A
// non-positive d returns next unchanged.
func WithTimeout(next EmotionClassifier, d time.Duration) EmotionClassifier {
	if d <= 0 {
		return next
	}
	return &timeoutClassifier{next: next, timeout: d}
}

func (t *timeoutClassifier) Classify(ctx context.Context, text string) ([]Score, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	type result struct {
		scores []Score
		err    error
	}
	done := make(chan result, 1)
	go func() {
		scores, err := t.next.Classify(ctx, text)
		done <- result{scores, err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(r.err, context.DeadlineExceeded) && !errors.Is(r.err, ErrUnavailable) {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, r.err)
		}
		return r.scores, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: classifier call exceeded %s: %v", ErrUnavailable, t.timeout, ctx.Err())
	}
}
