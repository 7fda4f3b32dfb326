// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
This file bakes keyword_sets.yaml into the compiled binary so the crisis and greeting
vocabularies ship with the executable. Operators can layer an override file on top at
runtime, but the embedded copy is always the fallback.
*/

package phrases

import (
	_ "embed"
)

// KeywordSets holds the raw bytes of 'keyword_sets.yaml'.
//
// Usage:
//
//	err := yaml.Unmarshal(phrases.KeywordSets, &targetStruct)
//
//go:embed keyword_sets.yaml
var KeywordSets []byte
