package chat

import (
	"unicode/utf8"

	"github.com/aios-dev/aios/internal/llm"
)

// charsPerToken is the crude character-to-token ratio applied when the
// streaming path has no provider usage data to report.
const charsPerToken = 4

// estimateTokens approximates the token count of text from its rune count.
func estimateTokens(text string) int64 {
	return int64(utf8.RuneCountInString(text) / charsPerToken)
}

// estimatePromptTokens approximates the prompt cost of a conversation.
// Message contents count as one text joined by single spaces.
func estimatePromptTokens(messages []llm.Message) int64 {
	runes := 0
	for i, m := range messages {
		if i > 0 {
			runes++
		}
		runes += utf8.RuneCountInString(m.Content)
	}
	return int64(runes / charsPerToken)
}
