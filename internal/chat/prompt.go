package chat

import (
	"fmt"
	"strings"

	"github.com/plexi-bot/plexi/internal/storage"
)

// Greeting is the assistant's opening line. It is shown to the user but never
// stored in memory.
const Greeting = "Ask me anything about your study materials!"

// DefaultSystemPrompt defines the assistant persona and its grounding policy.
const DefaultSystemPrompt = "You're an academic assistant helping with study. Your name is Plexi. " +
	"You have access to a knowledge base of study materials from many semesters, so always ask which semester's materials to use if you are not sure. " +
	"Use only information from the provided documents. " +
	"Be concise and accurate. If unsure, say 'I don't know'. " +
	"If the user greets you, greet them back and ask how you can help them. " +
	"If the user asks about your creator or developer, say you were created by Kunal Gupta (LazyHuman) to help with studies."

const contextDivider = "---------------------"

// buildMessages assembles the model input: system instruction with the
// retrieved fragments, then the conversation history ending with the current utterance.
func buildMessages(systemPrompt string, hits []*storage.ScoredChunk, history []Turn, utterance string) []Turn {
	var sys strings.Builder
	sys.WriteString(systemPrompt)
	sys.WriteString("\n\nContext information from the study materials is below.\n")
	sys.WriteString(contextDivider + "\n")
	if len(hits) == 0 {
		sys.WriteString("(no relevant material found)\n")
	}
	for i, hit := range hits {
		if i > 0 {
			sys.WriteString("\n")
		}
		sys.WriteString(formatSource(hit.Chunk))
		sys.WriteString(hit.Chunk.Text)
		sys.WriteString("\n")
	}
	sys.WriteString(contextDivider)

	messages := make([]Turn, 0, len(history)+2)
	messages = append(messages, Turn{Role: RoleSystem, Content: sys.String()})
	messages = append(messages, history...)

	// An utterance larger than the memory budget is not retained but must still be asked.
	if len(history) == 0 || history[len(history)-1] != (Turn{Role: RoleUser, Content: utterance}) {
		messages = append(messages, Turn{Role: RoleUser, Content: utterance})
	}
	return messages
}

func formatSource(c *storage.Chunk) string {
	if c.HeaderPath != "" {
		return fmt.Sprintf("[source: %s, section: %s]\n", c.DocumentID, c.HeaderPath)
	}
	return fmt.Sprintf("[source: %s]\n", c.DocumentID)
}
