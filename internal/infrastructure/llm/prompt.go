package llm

// UserMessage renders the user turn sent alongside the system prompt.
func UserMessage(contextBlock, question string) string {
	return "Context:\n" + contextBlock + "\n\n--\nQuestion: " + question
}
