package sessions

import "github.com/clipforge/clipforge/pkg/models"

// cloneSession deep-copies a session for snapshot readers.
func cloneSession(in *models.Session) *models.Session {
	out := *in
	out.Conversation = append([]models.ConversationEntry(nil), in.Conversation...)
	out.Context = copyMap(in.Context)
	out.FrontendState = copyMap(in.FrontendState)
	out.AIContext = copyMap(in.AIContext)
	out.Preferences = copyMap(in.Preferences)
	out.ToolExecutions = append([]models.ToolExecution(nil), in.ToolExecutions...)
	out.Project = models.ProjectState{
		Scripts:    cloneAssets(in.Project.Scripts),
		MediaFiles: cloneAssets(in.Project.MediaFiles),
		Voiceovers: cloneAssets(in.Project.Voiceovers),
		Videos:     cloneAssets(in.Project.Videos),
	}
	if in.Workflow != nil {
		out.Workflow = clonePlan(in.Workflow)
	}
	return &out
}

func cloneAssets(in []models.AssetRecord) []models.AssetRecord {
	if in == nil {
		return nil
	}
	out := make([]models.AssetRecord, len(in))
	for i, rec := range in {
		out[i] = rec
		out[i].Metadata = copyMap(rec.Metadata)
	}
	return out
}

func clonePlan(in *models.Plan) *models.Plan {
	out := *in
	out.Steps = make([]*models.Step, len(in.Steps))
	for i, step := range in.Steps {
		cp := *step
		cp.Args = copyMap(step.Args)
		cp.Result = copyMap(step.Result)
		cp.DependsOn = append([]string(nil), step.DependsOn...)
		out.Steps[i] = &cp
	}
	return &out
}

// copyMap recursively copies a JSON-shaped map.
func copyMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return copyMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = copyValue(item)
		}
		return out
	default:
		return v
	}
}
