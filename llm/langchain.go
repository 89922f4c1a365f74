package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"

	"github.com/youssefsiam38/contextpg/compaction"
	"github.com/youssefsiam38/contextpg/storage"
)

// LangChain wraps an llms.Model so any langchaingo provider can summarize
// and generate. The wrapped model is already bound to a model name, so the
// Model field of incoming requests is ignored.
type LangChain struct {
	model llms.Model
}

// NewLangChain wraps model.
func NewLangChain(model llms.Model) *LangChain {
	return &LangChain{model: model}
}

// Unwrap returns the underlying llms.Model.
func (l *LangChain) Unwrap() llms.Model {
	return l.model
}

// Complete implements compaction.Completer.
func (l *LangChain) Complete(ctx context.Context, req compaction.CompletionRequest) (*compaction.Completion, error) {
	messages := make([]llms.MessageContent, 0, 2)
	if req.System != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, req.System))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, req.Prompt))

	resp, err := l.generate(ctx, messages, req.MaxTokens)
	if err != nil {
		return nil, err
	}
	return &compaction.Completion{Text: resp.Text, Usage: resp.Usage}, nil
}

// Generate implements Generator.
func (l *LangChain) Generate(ctx context.Context, req GenerateRequest) (*Response, error) {
	system, turns := splitSystem(req.Messages)

	messages := make([]llms.MessageContent, 0, len(turns)+1)
	if system != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, system))
	}
	for _, m := range turns {
		role := llms.ChatMessageTypeHuman
		if m.Role == storage.RoleAssistant {
			role = llms.ChatMessageTypeAI
		}
		messages = append(messages, llms.TextParts(role, m.Content))
	}

	return l.generate(ctx, messages, req.MaxTokens)
}

func (l *LangChain) generate(ctx context.Context, messages []llms.MessageContent, limit int) (*Response, error) {
	resp, err := l.model.GenerateContent(ctx, messages, llms.WithMaxTokens(maxTokens(limit)))
	if err != nil {
		return nil, fmt.Errorf("llm: langchain generate: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0].Content == "" {
		return nil, ErrEmptyResponse
	}

	choice := resp.Choices[0]
	return &Response{
		Text:       choice.Content,
		StopReason: choice.StopReason,
		Usage:      usageFromGenerationInfo(choice.GenerationInfo),
	}, nil
}

// usageFromGenerationInfo normalizes the token keys providers put in
// GenerationInfo. It returns nil when no usage was reported.
func usageFromGenerationInfo(info map[string]any) *storage.Usage {
	if info == nil {
		return nil
	}

	// OpenAI / Ollama / Google (compat), then Anthropic, then Bedrock
	input := firstInt(info, "PromptTokens", "InputTokens", "input_tokens")
	output := firstInt(info, "CompletionTokens", "OutputTokens", "output_tokens")
	total := firstInt(info, "TotalTokens", "total_tokens")

	if input == 0 && output == 0 && total == 0 {
		return nil
	}
	if total == 0 {
		total = input + output
	}
	return &storage.Usage{InputTokens: input, OutputTokens: output, TotalTokens: total}
}

func firstInt(m map[string]any, keys ...string) int {
	for _, key := range keys {
		if v := getIntFromMap(m, key); v > 0 {
			return v
		}
	}
	return 0
}

// getIntFromMap extracts an int value from a map, handling various numeric types.
func getIntFromMap(m map[string]any, key string) int {
	v, ok := m[key]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float64:
		return int(n)
	case float32:
		return int(n)
	default:
		return 0
	}
}

var _ Provider = (*LangChain)(nil)
