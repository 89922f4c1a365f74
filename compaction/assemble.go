package compaction

import (
	"strings"

	"github.com/youssefsiam38/contextpg/storage"
)

// SystemSeparator joins merged system message contents.
const SystemSeparator = "\n\n---\n\n"

// ContextMessage is one entry of the history fed to a generation call.
type ContextMessage struct {
	Role    storage.Role `json:"role"`
	Content string       `json:"content"`
}

// Assemble converts active messages (seq order) into the context list.
// System messages come first: a single one as is, several merged in order
// into one. Everything else follows in seq order.
func Assemble(messages []*storage.Message) []ContextMessage {
	var systems []string
	for _, m := range messages {
		if m.Role == storage.RoleSystem {
			systems = append(systems, m.Content)
		}
	}

	out := make([]ContextMessage, 0, len(messages)-len(systems)+1)
	if len(systems) > 0 {
		out = append(out, ContextMessage{
			Role:    storage.RoleSystem,
			Content: strings.Join(systems, SystemSeparator),
		})
	}
	for _, m := range messages {
		if m.Role != storage.RoleSystem {
			out = append(out, ContextMessage{Role: m.Role, Content: m.Content})
		}
	}
	return out
}
