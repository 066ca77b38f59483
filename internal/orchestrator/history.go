package orchestrator

import "strings"

// historyWindow is how many recent messages are kept in the prompt.
const historyWindow = 5

// Message is one turn of prior conversation supplied with a query.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// FormatHistory renders the last few conversation turns into the plain-text
// form the generation prompt expects. Roles other than "assistant" are
// treated as the user.
func FormatHistory(messages []Message) string {
	if len(messages) > historyWindow {
		messages = messages[len(messages)-historyWindow:]
	}
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		prefix := "User"
		if strings.EqualFold(m.Role, "assistant") {
			prefix = "Assistant"
		}
		lines = append(lines, prefix+": "+m.Content)
	}
	return strings.Join(lines, "\n")
}
