package biz

import (
	"fmt"
	"strings"

	"github.com/kart-io/docchat/internal/docchat/store"
)

// Graceful answers returned to the user instead of raw provider errors.
const (
	// NoContextAnswer is returned when retrieval finds nothing to ground
	// the answer on. The generator is not called in that case.
	NoContextAnswer = "I couldn't find any relevant information in the document to answer your question."

	// TooLongAnswer is returned when the composed prompt exceeds the
	// model's context window.
	TooLongAnswer = "The response would be too long. Could you ask a more specific question?"

	// GenericFailureAnswer is returned for any other generation failure.
	GenericFailureAnswer = "I couldn't generate a response. Please try again."
)

// DefaultPromptTemplate grounds the model in the retrieved chunks and the
// recent conversation. Placeholders: {{history}}, {{context}}, {{question}}.
const DefaultPromptTemplate = `You are an assistant for question-answering tasks over a document.
Use the retrieved document excerpts below to answer the question.
If you don't know the answer, just say that you don't know.
Keep the answer concise.
{{history}}
Document excerpts:
{{context}}

Question: {{question}}`

// ComposePrompt renders the prompt template with the retrieved chunks, the
// recent conversation window and the current question.
func ComposePrompt(template string, chunks []store.ScoredChunk, history []Exchange, question string) string {
	var contextBuilder strings.Builder
	for i, c := range chunks {
		contextBuilder.WriteString(fmt.Sprintf("[%d] %s\n", i+1, c.Chunk.Content))
	}

	prompt := strings.ReplaceAll(template, "{{history}}", renderHistory(history))
	prompt = strings.ReplaceAll(prompt, "{{context}}", contextBuilder.String())
	prompt = strings.ReplaceAll(prompt, "{{question}}", question)
	return prompt
}

// renderHistory renders exchanges as alternating Human/Assistant lines.
func renderHistory(history []Exchange) string {
	if len(history) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("\nConversation so far:\n")
	for _, ex := range history {
		sb.WriteString("Human: ")
		sb.WriteString(ex.Question)
		sb.WriteString("\nAssistant: ")
		sb.WriteString(ex.Answer)
		sb.WriteString("\n")
	}
	return sb.String()
}
