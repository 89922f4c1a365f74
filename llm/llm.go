// Package llm adapts language-model clients to the two capabilities the
// engine and the CLI consume: compaction.Completer for summarization and
// Generator for conversation turns.
package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/youssefsiam38/contextpg/compaction"
	"github.com/youssefsiam38/contextpg/storage"
)

// ErrEmptyResponse is returned when a model produced no text.
var ErrEmptyResponse = errors.New("llm: empty response")

// DefaultMaxTokens is used when a request does not set MaxTokens.
const DefaultMaxTokens = 4096

// GenerateRequest is a conversation turn.
type GenerateRequest struct {
	Model     string
	MaxTokens int

	// Messages is the assembled history, as returned by the engine.
	Messages []compaction.ContextMessage
}

// Response is a generated assistant turn. Usage is nil when the provider
// did not report it.
type Response struct {
	Text       string
	StopReason string
	Usage      *storage.Usage
}

// Generator produces the next assistant turn.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*Response, error)
}

// Provider is a client usable for both summarization and generation.
type Provider interface {
	compaction.Completer
	Generator
}

// splitSystem separates system content from the conversational turns.
// Multiple system messages are joined the way the assembler merges them.
func splitSystem(messages []compaction.ContextMessage) (string, []compaction.ContextMessage) {
	var system []string
	turns := make([]compaction.ContextMessage, 0, len(messages))
	for _, m := range messages {
		if m.Role == storage.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		turns = append(turns, m)
	}
	return strings.Join(system, compaction.SystemSeparator), turns
}

func maxTokens(n int) int {
	if n <= 0 {
		return DefaultMaxTokens
	}
	return n
}
