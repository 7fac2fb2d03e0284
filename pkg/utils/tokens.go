package utils

import (
	"github.com/pkoukk/tiktoken-go"
)

// CountTokens estimates the token length of text. Falls back to a character
// heuristic when the encoding is unavailable (offline, unknown model).
func CountTokens(text string) int {
	tkm, err := tiktoken.EncodingForModel("gpt-4o")
	if err != nil {
		return len([]rune(text)) / 3
	}
	return len(tkm.Encode(text, nil, nil))
}
