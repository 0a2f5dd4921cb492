package builtin

import (
	"context"
	"fmt"

	"github.com/clipforge/clipforge/internal/tools"
	"github.com/clipforge/clipforge/pkg/models"
)

const defaultBrollCount = 5

// BrollFinder returns the b-roll sourcing tool. The reference
// implementation materializes clip placeholders under resources/broll so
// downstream steps have concrete media paths to work with.
func BrollFinder(deps Deps) tools.Tool {
	return tools.Tool{
		Descriptor: models.ToolDescriptor{
			Name:        "broll_finder",
			Description: "Finds and downloads b-roll footage matching a search query.",
			Category:    "production",
			Version:     "1.0.0",
			Capabilities: []string{
				"b-roll search", "stock footage", "media download",
			},
			InputSchema: models.Schema{
				"query": {Type: models.FieldString, Required: true, Description: "Footage search query"},
				"count": {Type: models.FieldInteger, Default: defaultBrollCount, Description: "Number of clips to fetch"},
			},
			OutputSchema: models.Schema{
				"media_files": {Type: models.FieldArray, Required: true},
				"count":       {Type: models.FieldInteger},
			},
			Examples: []string{
				`{"query": "city skyline at night", "count": 5}`,
			},
		},
		Run: func(ctx context.Context, input map[string]any) (map[string]any, error) {
			pid, err := projectID(input)
			if err != nil {
				return nil, err
			}
			query := stringArg(input, "query")
			if query == "" {
				return nil, fmt.Errorf("query is empty")
			}
			count := intArg(input, "count", defaultBrollCount)
			if count < 1 {
				count = 1
			}

			if _, err := deps.Projects.Ensure(pid, query); err != nil {
				return nil, err
			}

			base := slug(query)
			files := make([]string, 0, count)
			for i := 1; i <= count; i++ {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
				name := fmt.Sprintf("%s_clip%d.mp4", base, i)
				content := fmt.Sprintf("clip placeholder %d for query %q\n", i, query)
				path, err := deps.Projects.WriteArtifact(pid, "broll", name, []byte(content))
				if err != nil {
					return nil, err
				}
				files = append(files, path)
			}

			return map[string]any{
				"media_files": files,
				"count":       len(files),
			}, nil
		},
	}
}
