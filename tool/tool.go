package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"
)

// Parameter defines a tool parameter
type Parameter struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"` // string, number, integer, boolean, object, array
	Description string   `json:"description"`
	Required    bool     `json:"required"`
	Enum        []string `json:"enum,omitempty"`
	Default     any      `json:"default,omitempty"`
}

// Tool represents a callable tool/function exposed to the LLM
type Tool struct {
	Name        string                                       `json:"name"`
	Description string                                       `json:"description"`
	Parameters  []Parameter                                  `json:"parameters"`
	Handler     func(context.Context, map[string]any) (string, error) `json:"-"`
}

// ValidationError reports malformed tool arguments. It is returned (never
// panicked) so the caller can feed a readable failure back into the LLM
// context instead of aborting the turn.
type ValidationError struct {
	Tool   string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("tool %s: invalid argument %q: %s", e.Tool, e.Field, e.Reason)
}

// ExecutionError wraps a failure inside a tool handler.
type ExecutionError struct {
	Tool string
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("tool %s: execution failed: %v", e.Tool, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Execute runs the tool with given arguments after validating them.
func (t *Tool) Execute(ctx context.Context, args map[string]any) (string, error) {
	if t.Handler == nil {
		return "", &ExecutionError{Tool: t.Name, Err: fmt.Errorf("no handler registered")}
	}

	if err := t.ValidateArgs(args); err != nil {
		return "", err
	}

	result, err := t.Handler(ctx, args)
	if err != nil {
		return "", &ExecutionError{Tool: t.Name, Err: err}
	}
	return result, nil
}

// ValidateArgs checks required fields and primitive type conformance against
// the tool's parameter schema.
func (t *Tool) ValidateArgs(args map[string]any) error {
	for _, param := range t.Parameters {
		value, ok := args[param.Name]
		if !ok {
			if param.Required {
				return &ValidationError{Tool: t.Name, Field: param.Name, Reason: "missing required parameter"}
			}
			continue
		}
		if err := checkType(param.Type, value); err != nil {
			return &ValidationError{Tool: t.Name, Field: param.Name, Reason: err.Error()}
		}
		if len(param.Enum) > 0 {
			s, _ := value.(string)
			if !contains(param.Enum, s) {
				return &ValidationError{Tool: t.Name, Field: param.Name, Reason: fmt.Sprintf("value %v not in %v", value, param.Enum)}
			}
		}
	}
	return nil
}

// checkType validates a decoded JSON value against a schema type. JSON
// numbers decode to float64, so "integer" additionally requires a whole
// value.
func checkType(schemaType string, value any) error {
	switch schemaType {
	case "string":
		if _, ok := value.(string); !ok {
			return fmt.Errorf("expected string, got %T", value)
		}
	case "number":
		if _, ok := value.(float64); !ok {
			if _, ok := value.(int); !ok {
				return fmt.Errorf("expected number, got %T", value)
			}
		}
	case "integer":
		switch v := value.(type) {
		case int:
		case float64:
			if v != math.Trunc(v) {
				return fmt.Errorf("expected integer, got %v", v)
			}
		default:
			return fmt.Errorf("expected integer, got %T", value)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("expected boolean, got %T", value)
		}
	case "object":
		if _, ok := value.(map[string]any); !ok {
			return fmt.Errorf("expected object, got %T", value)
		}
	case "array":
		if _, ok := value.([]any); !ok {
			return fmt.Errorf("expected array, got %T", value)
		}
	}
	return nil
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}

// ToJSONSchema returns the tool definition in JSON schema format for LLM
func (t *Tool) ToJSONSchema() map[string]any {
	properties := make(map[string]any)
	required := make([]string, 0)

	for _, param := range t.Parameters {
		prop := map[string]any{
			"type":        param.Type,
			"description": param.Description,
		}
		if len(param.Enum) > 0 {
			prop["enum"] = param.Enum
		}
		if param.Default != nil {
			prop["default"] = param.Default
		}
		properties[param.Name] = prop

		if param.Required {
			required = append(required, param.Name)
		}
	}

	return map[string]any{
		"type": "function",
		"function": map[string]any{
			"name":        t.Name,
			"description": t.Description,
			"parameters": map[string]any{
				"type":       "object",
				"properties": properties,
				"required":   required,
			},
		},
	}
}

// Registry manages a collection of tools. The set is expected to be loaded
// once at process start and shared read-only across sessions; operations are
// still guarded for safety.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

// NewRegistry creates a new tool registry
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]*Tool),
	}
}

// Register adds a tool to the registry
func (r *Registry) Register(tool *Tool) error {
	if tool == nil || tool.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("tool %s already registered", tool.Name)
	}
	r.tools[tool.Name] = tool
	return nil
}

// Get retrieves a tool by name
func (r *Registry) Get(name string) (*Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("tool %s not found", name)
	}
	return tool, nil
}

// List returns all registered tools sorted by name. The stable order matters
// because the definitions are sent verbatim with every LLM call.
func (r *Registry) List() []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]*Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		tools = append(tools, tool)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return tools
}

// ToJSONSchemas returns all tools in JSON schema format, in stable order.
func (r *Registry) ToJSONSchemas() []map[string]any {
	tools := r.List()
	schemas := make([]map[string]any, 0, len(tools))
	for _, tool := range tools {
		schemas = append(schemas, tool.ToJSONSchema())
	}
	return schemas
}

// Invoke runs a tool by name with given arguments. Unknown tools and
// validation failures come back as errors the coordinator can report to the
// LLM rather than letting the turn die.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) (string, error) {
	tool, err := r.Get(name)
	if err != nil {
		return "", err
	}
	return tool.Execute(ctx, args)
}

// MarshalJSON customizes JSON marshaling for Registry
func (r *Registry) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.ToJSONSchemas())
}
