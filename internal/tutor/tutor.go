// Package tutor is an LLM-backed hint giver. It runs a ReAct loop with a
// built-in run_tests tool that evaluates candidate code against the current
// level, plus any tools from the registry.
package tutor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/michaelbrown/oracle/internal/evaluator"
	"github.com/michaelbrown/oracle/internal/level"
	"github.com/michaelbrown/oracle/internal/llm"
	"github.com/michaelbrown/oracle/internal/tools"
)

// RunTestsTool is the name of the built-in evaluation tool.
const RunTestsTool = "run_tests"

const (
	defaultMaxIterations = 4
	defaultMaxTokens     = 6000
	maxToolResultLen     = 4000
)

const defaultSystemPrompt = `You are the Oracle of Pythoria, a patient tutor for people learning Python.
A learner is stuck on a puzzle. Guide them toward the answer with questions, hints and small examples.
Never write the complete solution function for them.
You can call run_tests to check code against the puzzle's hidden tests before giving advice.
Keep replies short: a few sentences and at most one short code fragment.`

// Evaluator is the part of evaluator.Evaluator the tutor needs.
type Evaluator interface {
	Evaluate(ctx context.Context, code, functionName string, cases []level.TestCase) (*evaluator.Report, error)
}

// ErrNoLevel is returned when a question is asked before SetLevel.
var ErrNoLevel = errors.New("tutor has no level selected")

// Tutor manages one conversation about one level.
type Tutor struct {
	llm          llm.Client
	utilityLLM   llm.Client // optional, for summarization
	eval         Evaluator
	registry     *tools.Registry
	level        *level.Level
	systemPrompt string
	history      []llm.Message
	tools        []llm.ToolDef
	allowed      map[string]bool
	maxIter      int
	maxTokens    int
	log          *zap.Logger

	OnToolCall   func(name string, args map[string]any)
	OnToolResult func(name string, result string)
	OnTextDelta  func(delta string)
}

// New creates a tutor. registry may be nil.
func New(client llm.Client, eval Evaluator, registry *tools.Registry, log *zap.Logger) *Tutor {
	if log == nil {
		log = zap.NewNop()
	}
	t := &Tutor{
		llm:          client,
		eval:         eval,
		registry:     registry,
		systemPrompt: defaultSystemPrompt,
		maxIter:      defaultMaxIterations,
		maxTokens:    defaultMaxTokens,
		log:          log.Named("tutor"),
	}
	t.tools = t.availableTools()
	return t
}

// SetPersona applies a persona's prompt, tool filter and iteration limit.
func (t *Tutor) SetPersona(p *Persona) {
	if p == nil {
		return
	}
	if p.SystemPrompt != "" {
		t.systemPrompt = p.SystemPrompt
	}
	if p.MaxIter > 0 {
		t.maxIter = p.MaxIter
	}
	t.FilterTools(p.Tools)
	t.resetHistory()
}

// FilterTools restricts available tools to the given names. An empty list
// keeps every tool.
func (t *Tutor) FilterTools(names []string) {
	if len(names) == 0 {
		t.allowed = nil
	} else {
		t.allowed = make(map[string]bool, len(names))
		for _, n := range names {
			t.allowed[n] = true
		}
	}
	t.tools = t.availableTools()
}

// SetMaxIterations bounds model calls per question.
func (t *Tutor) SetMaxIterations(n int) {
	if n > 0 {
		t.maxIter = n
	}
}

// SetMaxTokens sets the context window token budget for history compaction.
func (t *Tutor) SetMaxTokens(maxTokens int) {
	if maxTokens > 0 {
		t.maxTokens = maxTokens
	}
}

// SetUtilityLLM sets an optional lightweight client for summarization.
func (t *Tutor) SetUtilityLLM(client llm.Client) {
	t.utilityLLM = client
}

// SetLevel switches the conversation to l and starts a fresh history.
func (t *Tutor) SetLevel(l *level.Level) {
	t.level = l
	t.resetHistory()
}

// Level returns the current level, or nil.
func (t *Tutor) Level() *level.Level {
	return t.level
}

func (t *Tutor) resetHistory() {
	t.history = []llm.Message{llm.SystemMessage(t.buildSystemPrompt())}
}

func (t *Tutor) buildSystemPrompt() string {
	if t.level == nil {
		return t.systemPrompt
	}
	var b strings.Builder
	b.WriteString(t.systemPrompt)
	fmt.Fprintf(&b, "\n\nThe puzzle is level %d, %q.\n", t.level.Number, t.level.Title)
	fmt.Fprintf(&b, "Task: %s\n", strings.TrimSpace(t.level.Description))
	fmt.Fprintf(&b, "The learner must define a function named %s. Every argument arrives as a string.\n", t.level.FunctionName)
	if t.level.Example != "" {
		fmt.Fprintf(&b, "Example:\n%s\n", strings.TrimRight(t.level.Example, "\n"))
	}
	if len(t.level.Hints) > 0 {
		fmt.Fprintf(&b, "Hints you may reveal one at a time: %s\n", strings.Join(t.level.Hints, "; "))
	}
	return b.String()
}

// History returns the conversation history.
func (t *Tutor) History() []llm.Message {
	return t.history
}

// SetHistory replaces the conversation history (used when resuming).
// The system prompt is always regenerated for the current level.
func (t *Tutor) SetHistory(messages []llm.Message) {
	t.resetHistory()
	for _, m := range messages {
		if m.Role != llm.RoleSystem || strings.HasPrefix(m.Content, summaryPrefix) {
			t.history = append(t.history, m)
		}
	}
}

// Hint asks for guidance on code, using the latest report when there is one.
func (t *Tutor) Hint(ctx context.Context, code string, report *evaluator.Report) (string, error) {
	var b strings.Builder
	b.WriteString("I'm stuck. Here is my code:\n\n```python\n")
	b.WriteString(strings.TrimRight(code, "\n"))
	b.WriteString("\n```\n")
	if report != nil {
		b.WriteString("\nThe Oracle's verdict was:\n")
		b.WriteString(report.Summary())
	}
	b.WriteString("\nWhat should I look at next?")
	return t.Ask(ctx, b.String())
}

// Ask sends a learner message and runs the tool loop until the model
// answers without tool calls. Text streams through OnTextDelta when set.
func (t *Tutor) Ask(ctx context.Context, question string) (string, error) {
	if t.level == nil {
		return "", ErrNoLevel
	}
	if err := t.compactHistory(ctx); err != nil {
		t.log.Warn("history compaction failed", zap.Error(err))
	}
	t.history = append(t.history, llm.UserMessage(question))

	for i := 0; i < t.maxIter; i++ {
		var (
			resp *llm.Response
			err  error
		)
		if t.OnTextDelta != nil {
			resp, err = t.llm.ChatCompletionStream(ctx, t.history, t.tools, t.OnTextDelta)
		} else {
			resp, err = t.llm.ChatCompletion(ctx, t.history, t.tools)
		}
		if err != nil {
			return "", fmt.Errorf("llm call (iteration %d): %w", i+1, err)
		}

		t.log.Debug("tutor turn",
			zap.Int("iteration", i+1),
			zap.Int("prompt_tokens", resp.Usage.PromptTokens),
			zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			zap.Int("tool_calls", len(resp.Message.ToolCalls)))

		t.history = append(t.history, resp.Message)
		if len(resp.Message.ToolCalls) == 0 {
			return resp.Message.Content, nil
		}

		for _, tc := range resp.Message.ToolCalls {
			if t.OnToolCall != nil {
				t.OnToolCall(tc.Name, tc.Args)
			}
			result := t.executeTool(ctx, tc)
			if t.OnToolResult != nil {
				t.OnToolResult(tc.Name, result)
			}
			t.history = append(t.history, llm.ToolResultMessage(tc.ID, result))
		}
	}

	return "", fmt.Errorf("tutor reached max iterations (%d) without a final response", t.maxIter)
}

func (t *Tutor) executeTool(ctx context.Context, tc llm.ToolCall) string {
	if t.allowed != nil && !t.allowed[tc.Name] {
		return fmt.Sprintf("error: tool %q is not available", tc.Name)
	}
	var result string
	switch {
	case tc.Name == RunTestsTool:
		result = t.runTests(ctx, tc.Args)
	case t.registry != nil && t.registry.HasTool(tc.Name):
		out, err := t.registry.CallTool(ctx, tc.Name, tc.Args)
		if err != nil {
			result = fmt.Sprintf("error: %s", err)
		} else {
			result = out
		}
	default:
		result = fmt.Sprintf("error: unknown tool %q", tc.Name)
	}
	t.log.Debug("tool call", zap.String("tool", tc.Name), zap.Int("result_len", len(result)))
	if len(result) > maxToolResultLen {
		result = result[:maxToolResultLen] + "\n... (output truncated)"
	}
	return result
}

func (t *Tutor) runTests(ctx context.Context, args map[string]any) string {
	code, ok := args["code"].(string)
	if !ok || code == "" {
		return "error: 'code' argument must be a non-empty string"
	}
	report, err := t.eval.Evaluate(ctx, code, t.level.FunctionName, t.level.TestCases)
	if err != nil {
		return fmt.Sprintf("error: %s", err)
	}
	return report.Summary()
}

func (t *Tutor) availableTools() []llm.ToolDef {
	defs := []llm.ToolDef{runTestsDef()}
	if t.registry != nil {
		for _, d := range t.registry.AllTools() {
			if d.Name != RunTestsTool {
				defs = append(defs, d)
			}
		}
	}
	if t.allowed == nil {
		return defs
	}
	var filtered []llm.ToolDef
	for _, d := range defs {
		if t.allowed[d.Name] {
			filtered = append(filtered, d)
		}
	}
	return filtered
}

// ToolNames lists the tools the model may call, sorted.
func (t *Tutor) ToolNames() []string {
	names := make([]string, len(t.tools))
	for i, d := range t.tools {
		names[i] = d.Name
	}
	sort.Strings(names)
	return names
}

func runTestsDef() llm.ToolDef {
	return llm.ToolDef{
		Name:        RunTestsTool,
		Description: "Run Python code against the current puzzle's hidden tests in a sandbox. Returns one line per test with the expected and actual output, or a diagnostic.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"code": map[string]any{
					"type":        "string",
					"description": "Complete Python source defining the puzzle's function",
				},
			},
			"required": []string{"code"},
		},
	}
}

// FormatToolCall returns a human-readable string for a tool call.
func FormatToolCall(name string, args map[string]any) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		v := fmt.Sprint(args[k])
		if len(v) > 60 {
			v = v[:60] + "..."
		}
		parts[i] = fmt.Sprintf("%s=%q", k, v)
	}
	return fmt.Sprintf("%s(%s)", name, strings.Join(parts, ", "))
}
