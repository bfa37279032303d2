package dialogue

import (
	"strings"

	"github.com/b00y0h/barberbot/internal/llm"
)

// ExportTranscript writes one "Caller:" or "Bot:" line per message that has text.
// Messages carrying only tool traffic are left out.
func ExportTranscript(messages []llm.Message) string {
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		text, ok := m.FirstText()
		if !ok {
			continue
		}
		speaker := "Caller"
		if m.Role == llm.RoleAssistant {
			speaker = "Bot"
		}
		lines = append(lines, speaker+": "+text)
	}
	return strings.Join(lines, "\n")
}
