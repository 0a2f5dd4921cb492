package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/clipforge/clipforge/internal/retrieval"
	"github.com/clipforge/clipforge/pkg/models"
)

// Runner is a tool entry point. Input keys follow the descriptor's input
// schema; the returned map follows its output schema.
type Runner func(ctx context.Context, input map[string]any) (map[string]any, error)

// Tool pairs a descriptor with its entry point.
type Tool struct {
	Descriptor models.ToolDescriptor
	Run        Runner

	// ExampleInput, when set and the descriptor carries no input schema,
	// seeds schema inference at registration time.
	ExampleInput map[string]any
}

type registered struct {
	tool         Tool
	inputSchema  *jsonschema.Schema
	outputSchema *jsonschema.Schema
}

// Registry manages tool registration and lookup. Registration is
// thread-safe; a duplicate name replaces the prior entry with a warning.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]*registered
	index  retrieval.Index
	logger *slog.Logger
}

// NewRegistry creates an empty registry. index is optional and, when set,
// lets Discover rank tools by past usage.
func NewRegistry(index retrieval.Index, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:  make(map[string]*registered),
		index:  index,
		logger: logger,
	}
}

// Register adds a tool. Descriptors without an input schema get one
// inferred from ExampleInput when present; otherwise validation is skipped
// for that side.
func (r *Registry) Register(tool Tool) error {
	name := tool.Descriptor.Name
	if name == "" {
		return fmt.Errorf("register: tool has no name")
	}
	if tool.Run == nil {
		return fmt.Errorf("register %s: tool has no entry point", name)
	}

	if len(tool.Descriptor.InputSchema) == 0 && len(tool.ExampleInput) > 0 {
		tool.Descriptor.InputSchema = InferSchema(tool.ExampleInput)
	}

	entry := &registered{tool: tool}
	var err error
	if len(tool.Descriptor.InputSchema) > 0 {
		entry.inputSchema, err = compileSchema(name+"/input", tool.Descriptor.InputSchema)
		if err != nil {
			return fmt.Errorf("register %s: input schema: %w", name, err)
		}
	}
	if len(tool.Descriptor.OutputSchema) > 0 {
		entry.outputSchema, err = compileSchema(name+"/output", tool.Descriptor.OutputSchema)
		if err != nil {
			return fmt.Errorf("register %s: output schema: %w", name, err)
		}
	}

	r.mu.Lock()
	_, replaced := r.tools[name]
	r.tools[name] = entry
	r.mu.Unlock()

	if replaced {
		r.logger.Warn("tool replaced", "tool", name)
	}
	return nil
}

// Unregister removes a tool by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get returns a registered tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.tools[name]
	if !ok {
		return Tool{}, false
	}
	return entry.tool, true
}

func (r *Registry) lookup(name string) (*registered, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.tools[name]
	return entry, ok
}

// Descriptors returns all registered descriptors sorted by name.
func (r *Registry) Descriptors() []models.ToolDescriptor {
	r.mu.RLock()
	out := make([]models.ToolDescriptor, 0, len(r.tools))
	for _, entry := range r.tools {
		out = append(out, entry.tool.Descriptor)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Discover returns descriptors matching query by substring over name,
// description, category, and capabilities. When a retrieval index is
// attached, tools that appear in indexed past executions for the query are
// ranked first.
func (r *Registry) Discover(ctx context.Context, query string) []models.ToolDescriptor {
	q := strings.ToLower(strings.TrimSpace(query))
	all := r.Descriptors()
	if q == "" {
		return all
	}

	var matched []models.ToolDescriptor
	for _, d := range all {
		if descriptorMatches(d, q) {
			matched = append(matched, d)
		}
	}

	if r.index == nil || len(matched) < 2 {
		return matched
	}

	boost := r.usageBoost(ctx, query)
	sort.SliceStable(matched, func(i, j int) bool {
		return boost[matched[i].Name] > boost[matched[j].Name]
	})
	return matched
}

func descriptorMatches(d models.ToolDescriptor, q string) bool {
	if strings.Contains(strings.ToLower(d.Name), q) ||
		strings.Contains(strings.ToLower(d.Description), q) ||
		strings.Contains(strings.ToLower(d.Category), q) {
		return true
	}
	for _, c := range d.Capabilities {
		if strings.Contains(strings.ToLower(c), q) {
			return true
		}
	}
	return false
}

func (r *Registry) usageBoost(ctx context.Context, query string) map[string]int {
	boost := make(map[string]int)
	hits, err := r.index.Search(ctx, query, 10, 0)
	if err != nil {
		r.logger.Debug("tool discovery retrieval failed", "error", err)
		return boost
	}
	for _, hit := range hits {
		if hit.Document.Metadata["kind"] != models.DocKindToolResult {
			continue
		}
		if name, ok := hit.Document.Metadata["tool"].(string); ok {
			boost[name]++
		}
	}
	return boost
}

// InferSchema derives a permissive schema from a sample input: every key
// becomes an optional field typed from its sample value.
func InferSchema(example map[string]any) models.Schema {
	schema := make(models.Schema, len(example))
	for name, value := range example {
		schema[name] = models.SchemaField{Type: inferFieldType(value)}
	}
	return schema
}

func inferFieldType(v any) models.FieldType {
	switch v.(type) {
	case string:
		return models.FieldString
	case bool:
		return models.FieldBoolean
	case int, int32, int64:
		return models.FieldInteger
	case float32, float64:
		return models.FieldFloat
	case []any:
		return models.FieldArray
	case map[string]any:
		return models.FieldObject
	default:
		return models.FieldAny
	}
}

// compileSchema translates a field schema into a compiled JSON Schema.
// Unknown keys are allowed so tools can accept augmentation fields and
// executor-injected context.
func compileSchema(name string, schema models.Schema) (*jsonschema.Schema, error) {
	properties := make(map[string]any, len(schema))
	var required []string
	for field, def := range schema {
		prop := map[string]any{}
		if t := jsonSchemaType(def.Type); t != "" {
			prop["type"] = t
		}
		if def.Description != "" {
			prop["description"] = def.Description
		}
		properties[field] = prop
		if def.Required {
			required = append(required, field)
		}
	}
	sort.Strings(required)

	doc := map[string]any{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": true,
	}
	if len(required) > 0 {
		doc["required"] = required
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return jsonschema.CompileString(name+".json", string(data))
}

func jsonSchemaType(t models.FieldType) string {
	switch t {
	case models.FieldString:
		return "string"
	case models.FieldInteger:
		return "integer"
	case models.FieldFloat:
		return "number"
	case models.FieldBoolean:
		return "boolean"
	case models.FieldArray:
		return "array"
	case models.FieldObject:
		return "object"
	default:
		return ""
	}
}
