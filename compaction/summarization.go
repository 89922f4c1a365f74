package compaction

import (
	"context"
	"fmt"
	"time"

	"github.com/youssefsiam38/contextpg/storage"
)

// CompletionRequest is a single text-in/text-out call.
type CompletionRequest struct {
	Model     string
	System    string
	Prompt    string
	MaxTokens int
}

// Completion is the response to a CompletionRequest. Usage is nil when the
// provider did not report it.
type Completion struct {
	Text  string
	Usage *storage.Usage
}

// Completer is the summarization capability. Implementations live in the
// llm package; tests substitute their own.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, req CompletionRequest) (*Completion, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	return f(ctx, req)
}

// NormalizeUsage fills TotalTokens from input+output when the provider only
// reported partial figures.
func NormalizeUsage(u *storage.Usage) storage.Usage {
	if u == nil {
		return storage.Usage{}
	}
	out := *u
	if out.TotalTokens == 0 {
		out.TotalTokens = out.InputTokens + out.OutputTokens
	}
	return out
}

// Summary is a parsed summarization result.
type Summary struct {
	// Text is the extracted summary, without SummaryPrefix.
	Text  string
	Usage storage.Usage
}

// Content returns the stored form of the summary message.
func (s *Summary) Content() string {
	return SummaryPrefix + s.Text
}

// Summarizer renders messages into the continuation-summary prompt and
// parses the capability's response.
type Summarizer struct {
	completer Completer
	model     string
	maxTokens int
	timeout   time.Duration
}

// NewSummarizer creates a new Summarizer with the given capability and configuration.
func NewSummarizer(completer Completer, config *Config) *Summarizer {
	return &Summarizer{
		completer: completer,
		model:     config.SummarizerModel,
		maxTokens: config.SummarizerMaxTokens,
		timeout:   config.SummarizeTimeout,
	}
}

// Model returns the model identifier sent with each request.
func (s *Summarizer) Model() string {
	return s.model
}

// Summarize condenses messages into a Summary. Every failure, including a
// timeout or an empty response, is reported as ErrSummarizationFailed.
func (s *Summarizer) Summarize(ctx context.Context, messages []*storage.Message) (*Summary, error) {
	if len(messages) == 0 {
		return nil, ErrNoMessagesToCompact
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	completion, err := s.completer.Complete(ctx, CompletionRequest{
		Model:     s.model,
		System:    SummarizationSystemPrompt,
		Prompt:    BuildSummarizationUserPrompt(FormatTranscript(messages)),
		MaxTokens: s.maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSummarizationFailed, err)
	}
	if completion == nil {
		return nil, fmt.Errorf("%w: no completion returned", ErrSummarizationFailed)
	}

	text := ParseSummary(completion.Text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty response from summarizer", ErrSummarizationFailed)
	}

	return &Summary{
		Text:  text,
		Usage: NormalizeUsage(completion.Usage),
	}, nil
}
