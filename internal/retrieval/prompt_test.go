package retrieval

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Akashbains10/pdf-assistant/internal/vector"
)

func TestBuildSystemPrompt(t *testing.T) {
	chunks := []vector.Match{{Content: "first"}, {Content: "second"}}

	prompt, kept := BuildSystemPrompt(chunks, 0)
	assert.True(t, strings.HasPrefix(prompt, instruction))
	assert.Contains(t, prompt, "[1]\nfirst")
	assert.Contains(t, prompt, "[2]\nsecond")
	assert.Less(t, strings.Index(prompt, "first"), strings.Index(prompt, "second"))
	assert.Len(t, kept, 2)
	assert.NotContains(t, prompt, noContext)
}

func TestBuildSystemPrompt_Budget(t *testing.T) {
	chunks := []vector.Match{{Content: "12345"}, {Content: "67890"}, {Content: "x"}}

	prompt, kept := BuildSystemPrompt(chunks, 9)
	assert.Equal(t, []vector.Match{{Content: "12345"}}, kept)
	assert.NotContains(t, prompt, "67890")
	// Stops at the first chunk that does not fit so lower-ranked text never
	// displaces a better match.
	assert.NotContains(t, prompt, "[2]")
}

func TestBuildSystemPrompt_CountsRunes(t *testing.T) {
	chunks := []vector.Match{{Content: "日本語"}}
	_, kept := BuildSystemPrompt(chunks, 3)
	assert.Len(t, kept, 1)
}

func TestBuildSystemPrompt_Empty(t *testing.T) {
	prompt, kept := BuildSystemPrompt(nil, 100)
	assert.Empty(t, kept)
	assert.Contains(t, prompt, noContext)

	_, kept = BuildSystemPrompt([]vector.Match{{Content: strings.Repeat("z", 200)}}, 100)
	assert.Empty(t, kept)
}
