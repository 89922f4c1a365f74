package compaction

import (
	"regexp"
	"strings"

	"github.com/youssefsiam38/contextpg/storage"
)

// SummaryPrefix marks a system message as a continuation summary.
const SummaryPrefix = "[Continuation Summary - Previous Context]\n\n"

// SummarizationSystemPrompt is the system prompt sent with every
// summarization request.
const SummarizationSystemPrompt = `You are a conversation summarizer for a long-running agent session. Your summary replaces the original messages, so it must preserve everything needed to continue the work.`

// summaryRe extracts the delimited summary block from a response.
var summaryRe = regexp.MustCompile(`(?s)<summary>(.*?)</summary>`)

// BuildSummarizationUserPrompt embeds a rendered transcript in the
// structured continuation-summary request.
func BuildSummarizationUserPrompt(transcript string) string {
	return `You have been working on the task described in the conversation below but have not yet completed it. Write a continuation summary that will allow you (or another instance of yourself) to resume work efficiently in a future context window where the conversation history will be replaced with this summary.

<conversation_history>
` + transcript + `
</conversation_history>

Your summary should be structured, concise, and actionable. Include:

1. Task Overview
   - The user's core request and success criteria
   - Any clarifications or constraints they specified

2. Current State
   - What has been completed so far
   - Files created, modified, or analyzed (with paths if relevant)
   - Key outputs or artifacts produced

3. Important Discoveries
   - Technical constraints or requirements uncovered
   - Decisions made and their rationale
   - Errors encountered and how they were resolved
   - Approaches that were tried and did not work, and why

4. Next Steps
   - Specific actions needed to complete the task
   - Any blockers or open questions to resolve
   - Priority order if multiple steps remain

5. Context to Preserve
   - User preferences or style requirements
   - Domain-specific details that aren't obvious
   - Any promises made to the user

Be concise but complete. Err on the side of including information that would prevent duplicate work or repeated mistakes, and write so the task can be resumed immediately.

Wrap your summary in <summary></summary> tags.`
}

// FormatTranscript renders messages as role-tagged blocks separated by a
// blank line.
func FormatTranscript(messages []*storage.Message) string {
	blocks := make([]string, 0, len(messages))
	for _, m := range messages {
		blocks = append(blocks, formatSingleMessage(m))
	}
	return strings.Join(blocks, "\n\n")
}

func formatSingleMessage(m *storage.Message) string {
	var tag string
	switch m.Role {
	case storage.RoleUser:
		tag = "user_message"
	case storage.RoleAssistant:
		tag = "assistant_message"
	case storage.RoleSystem:
		tag = "system_message"
	default:
		return m.Content
	}
	return "<" + tag + ">\n" + m.Content + "\n</" + tag + ">"
}

// ParseSummary returns the trimmed text between <summary> tags, or the
// whole trimmed response when the tags are absent.
func ParseSummary(response string) string {
	if match := summaryRe.FindStringSubmatch(response); match != nil {
		return strings.TrimSpace(match[1])
	}
	return strings.TrimSpace(response)
}

// IsSummaryContent reports whether content carries the summary prefix.
func IsSummaryContent(content string) bool {
	return strings.HasPrefix(content, SummaryPrefix)
}
