package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/youssefsiam38/contextpg"
	"github.com/youssefsiam38/contextpg/compaction"
	"github.com/youssefsiam38/contextpg/llm"
)

var chatCommand = &command{
	name:    "chat",
	summary: "Chat with the model; history is compacted as it nears the context window",
	usage:   "chat [session-id] [flags]",
	setup: func(fs *pflag.FlagSet) func(ctx context.Context, e *env, args []string) error {
		var newSession bool
		fs.BoolVar(&newSession, "new", false, "start a new session with a generated ID")

		return func(ctx context.Context, e *env, args []string) error {
			sessionID := sessionArg(e, args)
			if newSession {
				sessionID = uuid.NewString()
			}

			b, err := openBackend(ctx, e.cfg, e.logger)
			if err != nil {
				return err
			}
			defer b.close()

			provider, err := newProvider(e.cfg)
			if err != nil {
				return err
			}
			engine, err := newEngine(e.cfg, b.store, provider, e.logger)
			if err != nil {
				return err
			}

			rl, err := readline.NewEx(&readline.Config{
				Prompt:          colorCyan + "> " + colorReset,
				HistoryFile:     e.cfg.HistoryFile,
				InterruptPrompt: "^C",
				EOFPrompt:       "exit",
			})
			if err != nil {
				return fmt.Errorf("failed to create readline: %w", err)
			}
			defer rl.Close()

			c := &chat{
				engine:    engine,
				generator: provider,
				sessionID: sessionID,
				model:     e.cfg.Model,
				maxTokens: e.cfg.MaxTokens,
				timeout:   e.cfg.GenerateTimeout,
				out:       rl.Stdout(),
			}
			return c.run(ctx, rl)
		}
	},
}

// lineReader is the part of *readline.Instance the chat loop uses.
type lineReader interface {
	Readline() (string, error)
}

// chat is one interactive conversation.
type chat struct {
	engine    *contextpg.Engine
	generator llm.Generator

	sessionID string
	model     string
	maxTokens int
	timeout   time.Duration

	out io.Writer
}

// run greets the user and reads turns until exit, EOF or cancellation.
func (c *chat) run(ctx context.Context, in lineReader) error {
	if err := c.start(ctx); err != nil {
		return err
	}

	for {
		line, err := in.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				break
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}

		input := strings.TrimSpace(line)
		if strings.EqualFold(input, "exit") {
			break
		}
		if input == "" {
			continue
		}
		if ctx.Err() != nil {
			break
		}

		c.turn(ctx, input)
	}

	fmt.Fprintln(c.out, "Session stopped.")
	return nil
}

// start seeds the session and reports whether it is resumed.
func (c *chat) start(ctx context.Context) error {
	if _, err := c.engine.EnsureSession(ctx, c.sessionID); err != nil {
		return err
	}
	history, err := c.engine.GetMessagesForContext(ctx, c.sessionID)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "%sSession:%s %s (%s)\n", colorBold, colorReset, c.sessionID, c.model)
	if len(history) > 0 {
		fmt.Fprintf(c.out, "Resuming session with %d previous messages\n\n", len(history))
	} else {
		fmt.Fprintf(c.out, "Starting new session\n\n")
	}
	fmt.Fprintf(c.out, "%sType your message (or 'exit' to quit)%s\n\n", colorDim, colorReset)
	return nil
}

// turn runs one exchange. Failures are shown and persisted as an
// assistant message so the history records them.
func (c *chat) turn(ctx context.Context, input string) {
	text, err := c.exchange(ctx, input)
	if err == nil {
		fmt.Fprintf(c.out, "\n%s\n\n", text)
		return
	}

	fmt.Fprintf(c.out, "\n%sError: %v%s\n\n", colorRed, err, colorReset)
	if recErr := c.engine.RecordResponse(context.WithoutCancel(ctx), c.sessionID, "Error: "+err.Error(), nil); recErr != nil {
		fmt.Fprintf(c.out, "%sfailed to record error: %v%s\n", colorRed, recErr, colorReset)
	}
}

func (c *chat) exchange(ctx context.Context, input string) (string, error) {
	result, err := c.engine.ProcessTurn(ctx, c.sessionID, input, c.model)
	if err != nil {
		return "", err
	}
	c.reportCompaction(result.Compaction)

	genCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.generator.Generate(genCtx, llm.GenerateRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages:  result.Messages,
	})
	if err != nil {
		if errors.Is(genCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("generation timed out after %s", c.timeout)
		}
		return "", err
	}

	if err := c.engine.RecordResponse(ctx, c.sessionID, resp.Text, resp.Usage); err != nil {
		return "", err
	}
	return resp.Text, nil
}

func (c *chat) reportCompaction(result *compaction.Result) {
	switch result.Outcome {
	case compaction.OutcomeCompacted:
		fmt.Fprintf(c.out, "%s[compacted %d messages: %d -> %d tokens]%s\n",
			colorGreen, result.CompactedCount, result.TokensBefore, result.TokensAfter, colorReset)
	case compaction.OutcomeSummarizerFailed, compaction.OutcomeConflict:
		fmt.Fprintf(c.out, "%s[compaction skipped: %s: %v]%s\n",
			colorYellow, result.Outcome, result.Err, colorReset)
	}
}
