package retrieval

import (
	"fmt"
	"strings"
)

// maxAnswerContext bounds how many chunks feed the synthesized answer.
const maxAnswerContext = 3

// synthesizeAnswer builds a non-empty answer from retrieved context without
// calling a language model. Tiers without a chat backend use this so query
// results always carry an answer.
func synthesizeAnswer(question string, context []string) string {
	if len(context) == 0 {
		return fmt.Sprintf("I don't have any stored context that answers %q yet.", question)
	}
	n := len(context)
	if n > maxAnswerContext {
		n = maxAnswerContext
	}
	joined := strings.Join(context[:n], " ")
	return fmt.Sprintf("Here is what I found about %q: %s", question, joined)
}
