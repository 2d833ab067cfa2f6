package conversation

import (
	"unicode/utf8"

	"github.com/carlos-ai/carlos/internal/llm"
)

// messageOverhead approximates the framing each message adds to the
// serialized request beyond its role and content.
const messageOverhead = 4

// Size is the serialized size of a message in characters, the unit of the
// context budget.
func Size(m llm.Message) int {
	return messageOverhead + len(m.Role) + utf8.RuneCountInString(m.Content)
}

// buildContext assembles the messages for one request: the system prompt,
// as much of prior as fits newest-first, and the new user message. The
// total Size never exceeds budget; the user message is truncated if it
// would not fit on its own.
func buildContext(system string, prior []Turn, userText string, budget, maxTurns int) []llm.Message {
	sys := llm.Message{Role: llm.RoleSystem, Content: system}
	remaining := budget - Size(sys)

	user := llm.Message{Role: llm.RoleUser, Content: userText}
	if Size(user) > remaining {
		user.Content = truncateRunes(userText, remaining-Size(llm.Message{Role: llm.RoleUser}))
	}
	remaining -= Size(user)

	// walk backwards from the newest turn, stopping at the first that
	// doesn't fit so the included history stays contiguous
	start := len(prior)
	for i := len(prior) - 1; i >= 0; i-- {
		if maxTurns > 0 && len(prior)-i > maxTurns {
			break
		}
		s := Size(prior[i].message())
		if s > remaining {
			break
		}
		remaining -= s
		start = i
	}

	msgs := make([]llm.Message, 0, len(prior)-start+2)
	msgs = append(msgs, sys)
	for _, t := range prior[start:] {
		msgs = append(msgs, t.message())
	}
	return append(msgs, user)
}

// truncateRunes keeps the first n runes of s.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
