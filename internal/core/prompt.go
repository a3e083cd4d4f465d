package core

import (
	"fmt"
	"strings"

	"gwi.com/pdf-qa/internal/llm"
	"gwi.com/pdf-qa/internal/store"
)

const (
	systemInstruction = "You are a helpful assistant that answers questions about an uploaded PDF document. " +
		"Answer using only the information in the provided context. " +
		"If the context does not contain the answer, say that you could not find it in the document."

	// NoContextPlaceholder replaces the context when no match carries text.
	NoContextPlaceholder = "No relevant content was found in the uploaded documents."
)

// BuildContext joins the text of each match in store order, one per line.
func BuildContext(matches []store.Match) string {
	texts := make([]string, 0, len(matches))
	for _, m := range matches {
		if m.Metadata.Text != "" {
			texts = append(texts, m.Metadata.Text)
		}
	}
	if len(texts) == 0 {
		return NoContextPlaceholder
	}
	return strings.Join(texts, "\n")
}

// BuildPrompt returns the system instruction and the user turn for a question.
func BuildPrompt(contextText, question string) []llm.Message {
	user := fmt.Sprintf("Context:\n%s\n\nQuestion: %s\n\nAnswer:", contextText, question)
	return []llm.Message{
		{Role: llm.RoleSystem, Content: systemInstruction},
		{Role: llm.RoleUser, Content: user},
	}
}
