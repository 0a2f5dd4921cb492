package builtin

import (
	"context"
	"fmt"
	"strings"

	"github.com/clipforge/clipforge/internal/tools"
	"github.com/clipforge/clipforge/pkg/models"
)

const defaultScriptLength = 150

// ScriptWriter returns the script-writing tool. It composes a narration
// script from the topic and persists it under resources/scripts.
func ScriptWriter(deps Deps) tools.Tool {
	return tools.Tool{
		Descriptor: models.ToolDescriptor{
			Name:        "script_writer",
			Description: "Writes a narration script for a video on a given topic.",
			Category:    "production",
			Version:     "1.0.0",
			Capabilities: []string{
				"script writing", "narration", "copywriting",
			},
			InputSchema: models.Schema{
				"topic":  {Type: models.FieldString, Required: true, Description: "Subject of the script"},
				"style":  {Type: models.FieldString, Description: "Tone, e.g. documentary, casual, energetic"},
				"length": {Type: models.FieldInteger, Default: defaultScriptLength, Description: "Target length in words"},
			},
			OutputSchema: models.Schema{
				"script_text": {Type: models.FieldString, Required: true},
				"script_path": {Type: models.FieldString},
				"word_count":  {Type: models.FieldInteger},
			},
			Examples: []string{
				`{"topic": "the Roman Empire", "style": "documentary"}`,
			},
		},
		Run: func(ctx context.Context, input map[string]any) (map[string]any, error) {
			pid, err := projectID(input)
			if err != nil {
				return nil, err
			}
			topic := stringArg(input, "topic")
			if topic == "" {
				return nil, fmt.Errorf("topic is empty")
			}
			style := stringArg(input, "style")
			length := intArg(input, "length", defaultScriptLength)
			if length < 30 {
				length = 30
			}

			text := composeScript(topic, style, length)

			if _, err := deps.Projects.Ensure(pid, topic); err != nil {
				return nil, err
			}
			path, err := deps.Projects.WriteArtifact(pid, "scripts", "script.txt", []byte(text))
			if err != nil {
				return nil, err
			}

			return map[string]any{
				"script_text": text,
				"script_path": path,
				"word_count":  len(strings.Fields(text)),
			}, nil
		},
	}
}

// composeScript builds a three-act narration sized to roughly the requested
// word count.
func composeScript(topic, style string, length int) string {
	opener := fmt.Sprintf("What makes %s so compelling? Let's take a closer look.", topic)
	if style != "" {
		opener = fmt.Sprintf("[%s] %s", style, opener)
	}

	body := []string{
		fmt.Sprintf("%s has a story that most people only know a fragment of.", topic),
		fmt.Sprintf("To understand %s, we need to start with the essentials: where it comes from, why it matters, and what sets it apart.", topic),
		fmt.Sprintf("Every detail of %s connects to a bigger picture, and once you see the pattern, you can't unsee it.", topic),
		fmt.Sprintf("Experts have spent years studying %s, and their findings keep surprising us.", topic),
		fmt.Sprintf("The more you learn about %s, the more questions open up.", topic),
	}
	closer := fmt.Sprintf("That's the story of %s. If this sparked your curiosity, there's a lot more where that came from.", topic)

	var b strings.Builder
	b.WriteString(opener)
	b.WriteString("\n\n")
	words := len(strings.Fields(opener)) + len(strings.Fields(closer))
	for i := 0; words < length; i++ {
		line := body[i%len(body)]
		b.WriteString(line)
		b.WriteString(" ")
		words += len(strings.Fields(line))
		if (i+1)%3 == 0 {
			b.WriteString("\n\n")
		}
	}
	b.WriteString("\n\n")
	b.WriteString(closer)
	return strings.TrimSpace(b.String())
}
