// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package condition

import "strings"

// Fixed replies. None of them are personalized.
const (
	CrisisMessage = "⚠️ I hear you’re in deep pain. You are not alone. 💙\n" +
		"Please reach out for immediate help:\n" +
		"- 📞 India: 1800-599-0019 (KIRAN Mental Health Helpline)\n" +
		"- 📞 USA: 988 (Suicide & Crisis Lifeline)\n" +
		"- 🌍 Other countries: Find helplines at https://findahelpline.com\n\n" +
		"Talking to a trusted friend, family member, or counselor right now can make a huge difference."

	GreetingMessage = "Hi! I’m here to listen. How are you feeling today?"

	DegradedMessage = "I’m having trouble understanding how you feel right now. Please try again in a moment."

	// EmptyInputMessage is returned by the transport, never by the responder.
	EmptyInputMessage = "Please type a message."

	TipsIntro = "\n👉 Here are a few suggestions you could try:\n"

	EscalationSuffix = "\n⚠️ I notice you’ve been feeling **depressed repeatedly**. " +
		"It may help to connect with a **professional counselor**.\n" +
		"👉 Please visit our **Counselor Support Page** on this website to chat with a counselor directly. 💙"

	ClosingPrompt = "\n💭 Would you like to share more about what’s on your mind?"
)

var copingTips = map[Condition][]string{
	Depressed: {
		"Try writing your thoughts in a journal 📝.",
		"Listen to calming music 🎶.",
		"Reach out to a close friend or family member 💬.",
	},
	Anxiety: {
		"Practice deep breathing for 5 minutes 🌬️.",
		"Try meditation or mindfulness 🧘.",
		"Write down your worries and let them go ✨.",
	},
	Stress: {
		"Take a short walk outside 🚶.",
		"Do some light exercise or stretching 🏋️.",
		"Give yourself a break and rest ☕.",
	},
	Happy: {
		"Share your happiness with someone you care about 💚.",
		"Keep a gratitude journal ✨.",
		"Celebrate your small wins 🎉.",
	},
}

// Tips returns a copy of the coping tips for c, in table order. Neutral has none.
func Tips(c Condition) []string {
	return append([]string(nil), copingTips[c]...)
}

// ComposeTips appends the tips section for c to base. Conditions without tips
// return base unchanged.
func ComposeTips(base string, c Condition) string {
	tips := copingTips[c]
	if len(tips) == 0 {
		return base
	}
	var b strings.Builder
	b.WriteString(base)
	b.WriteString(TipsIntro)
	for _, tip := range tips {
		b.WriteString("- ")
		b.WriteString(tip)
		b.WriteString("\n")
	}
	return b.String()
}
