package biz_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kart-io/docchat/internal/docchat/biz"
	"github.com/kart-io/docchat/internal/docchat/store"
	"github.com/kart-io/docchat/internal/pkg/textutil"
)

func TestComposePrompt(t *testing.T) {
	chunks := []store.ScoredChunk{
		{Chunk: textutil.Chunk{Content: "first excerpt", Index: 0}},
		{Chunk: textutil.Chunk{Content: "second excerpt", Index: 1}},
	}
	history := []biz.Exchange{
		{Question: "earlier question", Answer: "earlier answer"},
	}

	prompt := biz.ComposePrompt(biz.DefaultPromptTemplate, chunks, history, "current question")

	assert.Contains(t, prompt, "[1] first excerpt")
	assert.Contains(t, prompt, "[2] second excerpt")
	assert.Contains(t, prompt, "Human: earlier question")
	assert.Contains(t, prompt, "Assistant: earlier answer")
	assert.Contains(t, prompt, "Question: current question")
	assert.NotContains(t, prompt, "{{")

	// 历史在片段之前，问题在最后。
	assert.Less(t, strings.Index(prompt, "Human:"), strings.Index(prompt, "first excerpt"))
	assert.Greater(t, strings.Index(prompt, "current question"), strings.Index(prompt, "second excerpt"))
}

func TestComposePromptWithoutHistory(t *testing.T) {
	chunks := []store.ScoredChunk{{Chunk: textutil.Chunk{Content: "only excerpt"}}}

	prompt := biz.ComposePrompt(biz.DefaultPromptTemplate, chunks, nil, "q")

	assert.NotContains(t, prompt, "Conversation so far")
	assert.Contains(t, prompt, "only excerpt")
}
