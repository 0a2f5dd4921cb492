package llm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/clipforge/clipforge/pkg/models"
)

// ToolLister exposes the registered tool descriptors for prompt
// composition without coupling this package to the registry.
type ToolLister interface {
	Descriptors() []models.ToolDescriptor
}

const systemPreamble = `You are the planning engine of a video-creation assistant.
You turn user requests into either a conversational reply or an ordered
workflow of tool invocations. Always answer with a single JSON object with
a "response_type" field of "conversational", "informational", "workflow",
"interactive", or "adaptive". Workflow responses carry "user_message",
"reasoning", and an ordered "tool_calls" array whose entries have "tool",
"args", and "description". Use only the tools listed below.`

// SystemPrompt composes the agent preamble with the formatted tool list.
func SystemPrompt(tools []models.ToolDescriptor) string {
	var b strings.Builder
	b.WriteString(systemPreamble)
	b.WriteString("\n\nAvailable tools:\n")
	b.WriteString(FormatTools(tools))
	return b.String()
}

// FormatTools renders descriptors for model consumption: name, description,
// input parameters, and examples.
func FormatTools(tools []models.ToolDescriptor) string {
	sorted := make([]models.ToolDescriptor, len(tools))
	copy(sorted, tools)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	var b strings.Builder
	for _, t := range sorted {
		fmt.Fprintf(&b, "- %s: %s\n", t.Name, t.Description)
		params := make([]string, 0, len(t.InputSchema))
		for name := range t.InputSchema {
			params = append(params, name)
		}
		sort.Strings(params)
		for _, name := range params {
			f := t.InputSchema[name]
			req := "optional"
			if f.Required {
				req = "required"
			}
			fmt.Fprintf(&b, "    %s (%s, %s)", name, f.Type, req)
			if f.Description != "" {
				fmt.Fprintf(&b, ": %s", f.Description)
			}
			b.WriteString("\n")
		}
		for _, ex := range t.Examples {
			fmt.Fprintf(&b, "    example: %s\n", ex)
		}
	}
	return b.String()
}
