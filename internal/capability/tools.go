package capability

import (
	"context"
	"fmt"
	"sync"
)

// ParamSpec describes one parameter of a tool's input schema.
type ParamSpec struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // string / number / boolean / object / array
	Required    bool   `json:"required"`
	Description string `json:"description,omitempty"`
}

// ToolSpec is a tool's declared input schema.
type ToolSpec struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Params      []ParamSpec `json:"params"`
}

// ValidateParams checks the given params against the spec: required
// parameters must be present and declared types must match.
func (s ToolSpec) ValidateParams(params map[string]any) error {
	for _, p := range s.Params {
		val, ok := params[p.Name]
		if !ok {
			if p.Required {
				return &ValidationError{Tool: s.Name, Message: fmt.Sprintf("missing required parameter %q", p.Name)}
			}
			continue
		}
		if !typeMatches(p.Type, val) {
			return &ValidationError{Tool: s.Name, Message: fmt.Sprintf("parameter %q must be of type %s", p.Name, p.Type)}
		}
	}
	return nil
}

func typeMatches(declared string, val any) bool {
	switch declared {
	case "string":
		_, ok := val.(string)
		return ok
	case "number":
		switch val.(type) {
		case int, int64, float64:
			return true
		}
		return false
	case "boolean":
		_, ok := val.(bool)
		return ok
	case "object":
		_, ok := val.(map[string]any)
		return ok
	case "array":
		_, ok := val.([]any)
		return ok
	default:
		// Unknown declared type: accept anything.
		return true
	}
}

// Tool is a registered external capability invokable by tool_call nodes.
type Tool interface {
	Spec() ToolSpec
	Invoke(ctx context.Context, params map[string]any) (any, error)
}

// ToolRegistry manages the set of registered tools.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewToolRegistry creates an empty tool registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]Tool)}
}

// Register adds a tool to the registry, replacing any previous tool with
// the same name.
func (r *ToolRegistry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Spec().Name] = t
}

// Get returns the named tool. An unknown name is a configuration problem,
// reported as a ValidationError.
func (r *ToolRegistry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return nil, &ValidationError{Tool: name, Message: "no such tool registered"}
	}
	return t, nil
}

// Specs returns the specs of all registered tools.
func (r *ToolRegistry) Specs() []ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]ToolSpec, 0, len(r.tools))
	for _, t := range r.tools {
		specs = append(specs, t.Spec())
	}
	return specs
}
