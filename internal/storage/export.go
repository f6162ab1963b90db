package storage

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/michaelbrown/oracle/internal/llm"
)

// ExportMarkdown renders an attempt, its verdicts and any tutor conversation
// as a markdown document.
func ExportMarkdown(a *Attempt, conversation []llm.Message) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Attempt on level %d (%s)\n\n", a.LevelNumber, a.LevelID)
	fmt.Fprintf(&b, "- **Attempt:** %s\n", a.ID)
	fmt.Fprintf(&b, "- **Status:** %s (%d/%d)\n", a.Status, a.Passed, a.Total)
	fmt.Fprintf(&b, "- **Created:** %s\n", a.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "- **Elapsed:** %s\n", a.Elapsed)
	b.WriteString("\n## Code\n\n```python\n")
	b.WriteString(strings.TrimRight(a.Code, "\n"))
	b.WriteString("\n```\n\n")

	if r, err := a.DecodeReport(); err == nil {
		b.WriteString("## Result\n\n```\n")
		b.WriteString(strings.TrimRight(r.Summary(), "\n"))
		b.WriteString("\n```\n\n")
	}

	if len(conversation) > 0 {
		b.WriteString("## Tutor\n\n")
		writeConversation(&b, conversation)
	}
	return b.String()
}

func writeConversation(b *strings.Builder, messages []llm.Message) {
	for _, m := range messages {
		switch m.Role {
		case llm.RoleSystem:
			continue
		case llm.RoleUser:
			fmt.Fprintf(b, "### You\n\n%s\n\n", m.Content)
		case llm.RoleAssistant:
			if m.Content != "" {
				fmt.Fprintf(b, "### Oracle\n\n%s\n\n", m.Content)
			}
			for _, tc := range m.ToolCalls {
				args, _ := json.Marshal(tc.Args)
				fmt.Fprintf(b, "**Tool Call:** `%s`\n```json\n%s\n```\n\n", tc.Name, string(args))
			}
		case llm.RoleTool:
			fmt.Fprintf(b, "<details>\n<summary>Tool Result</summary>\n\n```\n%s\n```\n</details>\n\n", m.Content)
		}
	}
}

// ExportJSON renders an attempt and any tutor conversation as formatted JSON.
func ExportJSON(a *Attempt, conversation []llm.Message) ([]byte, error) {
	export := struct {
		Attempt      *Attempt      `json:"attempt"`
		Conversation []llm.Message `json:"conversation,omitempty"`
	}{
		Attempt:      a,
		Conversation: conversation,
	}
	return json.MarshalIndent(export, "", "  ")
}
