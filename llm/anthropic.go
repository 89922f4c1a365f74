package llm

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/youssefsiam38/contextpg/compaction"
	"github.com/youssefsiam38/contextpg/storage"
)

// Anthropic calls the Messages API with streaming and accumulates the
// response.
type Anthropic struct {
	client *anthropic.Client
}

// NewAnthropic wraps an Anthropic client.
func NewAnthropic(client *anthropic.Client) *Anthropic {
	return &Anthropic{client: client}
}

// Complete implements compaction.Completer.
func (a *Anthropic) Complete(ctx context.Context, req compaction.CompletionRequest) (*compaction.Completion, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(maxTokens(req.MaxTokens)),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	resp, err := a.stream(ctx, params)
	if err != nil {
		return nil, err
	}
	return &compaction.Completion{Text: resp.Text, Usage: resp.Usage}, nil
}

// Generate implements Generator.
func (a *Anthropic) Generate(ctx context.Context, req GenerateRequest) (*Response, error) {
	system, turns := splitSystem(req.Messages)

	messages := make([]anthropic.MessageParam, 0, len(turns))
	for _, m := range turns {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == storage.RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(block))
		} else {
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(maxTokens(req.MaxTokens)),
		Messages:  messages,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	return a.stream(ctx, params)
}

func (a *Anthropic) stream(ctx context.Context, params anthropic.MessageNewParams) (*Response, error) {
	stream := a.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	// Accumulate the response using SDK's Accumulate method
	message := anthropic.Message{}
	for stream.Next() {
		if err := message.Accumulate(stream.Current()); err != nil {
			return nil, fmt.Errorf("llm: accumulate stream: %w", err)
		}
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("llm: anthropic stream: %w", err)
	}

	var text string
	for _, block := range message.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			text += tb.Text
		}
	}
	if text == "" {
		return nil, ErrEmptyResponse
	}

	return &Response{
		Text:       text,
		StopReason: string(message.StopReason),
		Usage: &storage.Usage{
			InputTokens:  int(message.Usage.InputTokens),
			OutputTokens: int(message.Usage.OutputTokens),
			TotalTokens:  int(message.Usage.InputTokens + message.Usage.OutputTokens),
		},
	}, nil
}

var _ Provider = (*Anthropic)(nil)
