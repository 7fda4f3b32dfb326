// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package phrases

import (
	"strings"
	"testing"
)

func TestKeywordSetsEmbedded(t *testing.T) {
	if len(KeywordSets) == 0 {
		t.Fatal("KeywordSets is empty; the embed directive did not pick up keyword_sets.yaml")
	}
	for _, want := range []string{"name: crisis", "name: greeting", "kill myself"} {
		if !strings.Contains(string(KeywordSets), want) {
			t.Errorf("embedded keyword sets missing %q", want)
		}
	}
}
