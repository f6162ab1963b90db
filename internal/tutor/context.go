package tutor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/michaelbrown/oracle/internal/llm"
)

const (
	summaryPrefix   = "[Earlier in this lesson]\n"
	maxSummaryChars = 4000
	trimKeepLast    = 10
)

// estimateTokens approximates a message's token count at four characters
// per token, with a floor of one for role overhead.
func estimateTokens(m llm.Message) int {
	n := len(m.Content)
	for _, tc := range m.ToolCalls {
		n += len(tc.Name)
		if args, err := json.Marshal(tc.Args); err == nil {
			n += len(args)
		}
	}
	return max(n/4, 1)
}

func estimateHistoryTokens(messages []llm.Message) int {
	total := 0
	for _, m := range messages {
		total += estimateTokens(m)
	}
	return total
}

// findSplitPoint returns the index where the recent part of messages starts:
// the latest user message such that everything from it onward fits in
// budget. It returns len(messages) when there is nothing to compact.
// Index 0 is the system prompt and is never part of either section.
func findSplitPoint(messages []llm.Message, budget int) int {
	if len(messages) <= 2 {
		return len(messages)
	}

	used := 0
	split := -1
	for i := len(messages) - 1; i >= 1; i-- {
		used += estimateTokens(messages[i])
		if used > budget {
			split = i + 1
			break
		}
	}
	if split < 0 {
		return len(messages)
	}
	split = min(split, len(messages)-1)

	// Back up to a user message so tool calls stay with their results.
	for split > 1 && messages[split].Role != llm.RoleUser {
		split--
	}
	if split <= 1 || messages[split].Role != llm.RoleUser {
		return len(messages)
	}
	return split
}

// compactHistory replaces older turns with a model-written summary once the
// history exceeds the token budget. The most recent turns, up to 60% of the
// budget, are kept verbatim. If summarizing fails the history is trimmed.
func (t *Tutor) compactHistory(ctx context.Context) error {
	if estimateHistoryTokens(t.history) <= t.maxTokens {
		return nil
	}
	split := findSplitPoint(t.history, t.maxTokens*60/100)
	if split >= len(t.history) {
		return nil
	}

	summarizer := t.llm
	if t.utilityLLM != nil {
		summarizer = t.utilityLLM
	}
	summary, err := summarize(ctx, summarizer, t.history[1:split])
	if err != nil {
		t.trimHistory(trimKeepLast)
		return fmt.Errorf("summarizing %d messages, trimmed instead: %w", split-1, err)
	}

	compacted := make([]llm.Message, 0, 2+len(t.history)-split)
	compacted = append(compacted, t.history[0], llm.SystemMessage(summaryPrefix+summary))
	compacted = append(compacted, t.history[split:]...)
	t.history = compacted
	return nil
}

// trimHistory keeps the system prompt and roughly the last keepLast
// messages, starting at a user message.
func (t *Tutor) trimHistory(keepLast int) {
	if len(t.history) <= keepLast+1 {
		return
	}
	start := len(t.history) - keepLast
	for start < len(t.history)-1 && t.history[start].Role != llm.RoleUser {
		start++
	}
	t.history = append([]llm.Message{t.history[0]}, t.history[start:]...)
}

func summarize(ctx context.Context, client llm.Client, messages []llm.Message) (string, error) {
	var b strings.Builder
	for _, m := range messages {
		label := string(m.Role)
		if m.ToolCallID != "" {
			label = "tool result"
		}
		fmt.Fprintf(&b, "[%s]: %s", label, m.Content)
		for _, tc := range m.ToolCalls {
			args, _ := json.Marshal(tc.Args)
			fmt.Fprintf(&b, "\n[tool call: %s(%s)]", tc.Name, args)
		}
		b.WriteByte('\n')
	}

	prompt := []llm.Message{
		llm.SystemMessage("Summarize this tutoring conversation about a Python puzzle. " +
			"Keep what the learner has tried, which tests failed and why, and which hints were already given. " +
			"Output only the summary."),
		llm.UserMessage(b.String()),
	}
	resp, err := client.ChatCompletion(ctx, prompt, nil)
	if err != nil {
		return "", fmt.Errorf("summarization call: %w", err)
	}

	summary := resp.Message.Content
	if len(summary) > maxSummaryChars {
		summary = summary[:maxSummaryChars] + "\n... (summary truncated)"
	}
	return summary, nil
}
