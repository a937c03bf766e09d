// Package tools holds the callable capabilities exposed to the reasoning
// step. A tool never returns an error: internal failures are converted into
// human-readable failure text so the model can recover and keep reasoning.
package tools

import "context"

// Tool is a named capability with a JSON-schema parameter description.
type Tool struct {
	Name        string
	Description string
	// Parameters is a JSON Schema object ({"type": "object", ...}) describing
	// the tool's arguments. Providers translate it into their own wire format.
	Parameters map[string]any
	Run        func(ctx context.Context, args map[string]any) string
}

// Registry is a static, ordered collection of tools.
type Registry struct {
	byName map[string]Tool
	order  []string
}

func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{byName: make(map[string]Tool)}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

func (r *Registry) Register(t Tool) {
	if _, exists := r.byName[t.Name]; !exists {
		r.order = append(r.order, t.Name)
	}
	r.byName[t.Name] = t
}

func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// List returns tools in registration order.
func (r *Registry) List() []Tool {
	tools := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		tools = append(tools, r.byName[name])
	}
	return tools
}

// Execute runs the named tool, falling back to failure text for unknown
// names so the reasoning loop always gets an observation back.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) string {
	t, ok := r.byName[name]
	if !ok {
		return "Error: unknown tool '" + name + "'."
	}
	return t.Run(ctx, args)
}

// StringArg extracts a string argument, tolerating absent or non-string
// values.
func StringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}
