package builtin

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"strings"

	"github.com/clipforge/clipforge/internal/tools"
	"github.com/clipforge/clipforge/pkg/models"
)

// Narration pacing used to estimate voiceover duration.
const wordsPerSecond = 2.5

// VoiceoverGenerator returns the voiceover tool. Text defaults to the
// project's current script when not passed explicitly; the reference
// implementation renders a silent WAV sized to the narration estimate.
func VoiceoverGenerator(deps Deps) tools.Tool {
	return tools.Tool{
		Descriptor: models.ToolDescriptor{
			Name:        "voiceover_generator",
			Description: "Generates a narration voiceover from script text.",
			Category:    "production",
			Version:     "1.0.0",
			Capabilities: []string{
				"voiceover", "narration", "text to speech",
			},
			InputSchema: models.Schema{
				"text":  {Type: models.FieldString, Description: "Narration text; defaults to the project script"},
				"voice": {Type: models.FieldString, Default: "default", Description: "Voice preset"},
			},
			OutputSchema: models.Schema{
				"audio_path":       {Type: models.FieldString, Required: true},
				"duration_seconds": {Type: models.FieldFloat},
				"voice":            {Type: models.FieldString},
			},
			Examples: []string{
				`{"voice": "default"}`,
			},
		},
		Run: func(ctx context.Context, input map[string]any) (map[string]any, error) {
			pid, err := projectID(input)
			if err != nil {
				return nil, err
			}
			voice := stringArg(input, "voice")
			if voice == "" {
				voice = "default"
			}

			text := stringArg(input, "text")
			if text == "" {
				text, err = deps.Projects.Script(pid)
				if err != nil {
					return nil, err
				}
				if text == "" {
					text = latestScriptArtifact(deps, pid)
				}
			}
			if text == "" {
				return nil, fmt.Errorf("no narration text: pass text or write a script first")
			}

			duration := float64(len(strings.Fields(text))) / wordsPerSecond
			if duration < 1 {
				duration = 1
			}

			path, err := deps.Projects.WriteArtifact(pid, "voiceovers", "voiceover.wav", silentWAV(duration))
			if err != nil {
				return nil, err
			}

			return map[string]any{
				"audio_path":       path,
				"duration_seconds": duration,
				"voice":            voice,
			}, nil
		},
	}
}

// latestScriptArtifact falls back to the newest script file written by the
// script tool.
func latestScriptArtifact(deps Deps, pid string) string {
	assets, err := deps.Projects.Assets(pid)
	if err != nil {
		return ""
	}
	for i := len(assets) - 1; i >= 0; i-- {
		if assets[i].Kind != "script" {
			continue
		}
		if data, err := os.ReadFile(assets[i].Path); err == nil {
			return string(data)
		}
	}
	return ""
}

// silentWAV renders a valid mono 16-bit PCM WAV of silence.
func silentWAV(seconds float64) []byte {
	const sampleRate = 8000
	samples := int(seconds * sampleRate)
	dataLen := samples * 2

	var b bytes.Buffer
	b.WriteString("RIFF")
	binary.Write(&b, binary.LittleEndian, uint32(36+dataLen))
	b.WriteString("WAVE")
	b.WriteString("fmt ")
	binary.Write(&b, binary.LittleEndian, uint32(16))
	binary.Write(&b, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&b, binary.LittleEndian, uint16(1)) // mono
	binary.Write(&b, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&b, binary.LittleEndian, uint32(sampleRate*2))
	binary.Write(&b, binary.LittleEndian, uint16(2))
	binary.Write(&b, binary.LittleEndian, uint16(16))
	b.WriteString("data")
	binary.Write(&b, binary.LittleEndian, uint32(dataLen))
	b.Write(make([]byte, dataLen))
	return b.Bytes()
}
