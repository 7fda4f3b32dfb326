// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux styles companion replies for an interactive terminal.
package ux

import (
	"regexp"

	"github.com/charmbracelet/lipgloss"
)

// Aleutian color palette - deep ocean teals and arctic waters
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7") // highlights
	ColorTealPrimary = lipgloss.Color("#20B9B4") // prompt, banner
	ColorSlate       = lipgloss.Color("#2C4A54") // muted text
	ColorWarning     = lipgloss.Color("#F4D03F") // safety messages
)

// Styles contains the pre-configured styles used by the chat loop.
var Styles = struct {
	Banner    lipgloss.Style
	Prompt    lipgloss.Style
	Muted     lipgloss.Style
	Highlight lipgloss.Style
	SafetyBox lipgloss.Style
}{
	Banner:    lipgloss.NewStyle().Bold(true).Foreground(ColorTealPrimary),
	Prompt:    lipgloss.NewStyle().Foreground(ColorTealPrimary),
	Muted:     lipgloss.NewStyle().Foreground(ColorSlate),
	Highlight: lipgloss.NewStyle().Foreground(ColorTealBright).Bold(true),
	SafetyBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorWarning).
		Padding(0, 1),
}

// boldMarkup matches the **emphasis** markers used in reply text.
var boldMarkup = regexp.MustCompile(`\*\*(.+?)\*\*`)

// RenderReply replaces **emphasis** with highlighted text. Safety replies are
// framed in a box so they stand out from the conversation.
func RenderReply(text string, safety bool) string {
	out := boldMarkup.ReplaceAllStringFunc(text, func(m string) string {
		return Styles.Highlight.Render(boldMarkup.FindStringSubmatch(m)[1])
	})
	if safety {
		return Styles.SafetyBox.Render(out)
	}
	return out
}

// Banner renders the greeting line shown when a chat starts.
func Banner(text string) string {
	return Styles.Banner.Render(text)
}

// Prompt renders the input prompt.
func Prompt() string {
	return Styles.Prompt.Render("> ")
}
