package retrieval

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Akashbains10/pdf-assistant/internal/vector"
)

const instruction = "You are a helpful assistant. Use the provided PDF file context to answer the user query as accurately as possible. " +
	"If the answer is not in the context, say you don't know instead of making things up."

const noContext = "No document context is available for this question. Tell the user you don't know."

// BuildSystemPrompt renders the instruction followed by numbered context
// blocks, best match first, until maxChars runes of chunk text have been
// used. It returns the chunks that made it into the prompt. maxChars <= 0
// disables the budget.
func BuildSystemPrompt(chunks []vector.Match, maxChars int) (string, []vector.Match) {
	var sb strings.Builder
	sb.WriteString(instruction)
	sb.WriteString("\n\nContext:\n")

	used := 0
	kept := make([]vector.Match, 0, len(chunks))
	for _, c := range chunks {
		n := utf8.RuneCountInString(c.Content)
		if maxChars > 0 && used+n > maxChars {
			break
		}
		used += n
		kept = append(kept, c)
		fmt.Fprintf(&sb, "\n[%d]\n%s\n", len(kept), c.Content)
	}

	if len(kept) == 0 {
		sb.WriteString(noContext)
	}
	return sb.String(), kept
}
