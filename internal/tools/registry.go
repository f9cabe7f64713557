package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"dossier/internal/logging"
)

const defaultPriority = 50

// Registry is the fixed catalog of retrieval tools. It is safe for
// concurrent use; every run in the process shares one.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds a tool. Names are unique and every required argument must
// be declared in the schema.
func (r *Registry) Register(tool *Tool) error {
	if err := tool.Validate(); err != nil {
		return fmt.Errorf("invalid tool: %w", err)
	}
	for _, req := range tool.Schema.Required {
		if _, ok := tool.Schema.Properties[req]; !ok {
			return fmt.Errorf("%w: %s requires undeclared argument %q", ErrSchemaMismatch, tool.Name, req)
		}
	}
	if tool.Priority == 0 {
		tool.Priority = defaultPriority
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("%w: %s", ErrToolAlreadyRegistered, tool.Name)
	}
	r.tools[tool.Name] = tool

	logging.ToolsDebug("Registered %s [%s] priority=%d placeholder=%v", tool.Name, tool.Category, tool.Priority, tool.Placeholder)
	return nil
}

// MustRegister is Register for the static catalog; it panics on error.
func (r *Registry) MustRegister(tool *Tool) {
	if err := r.Register(tool); err != nil {
		panic(fmt.Sprintf("failed to register tool %s: %v", tool.Name, err))
	}
}

// Get returns a tool by name, or nil.
func (r *Registry) Get(name string) *Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	return r.Get(name) != nil
}

// Names returns the registered names in alphabetical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Catalog describes every tool in the order the orchestrator should weigh
// them: live sources before placeholders, then by priority, then by name.
func (r *Registry) Catalog() []Spec {
	r.mu.RLock()
	specs := make([]Spec, 0, len(r.tools))
	prio := make(map[string]int, len(r.tools))
	for _, t := range r.tools {
		specs = append(specs, t.Spec())
		prio[t.Name] = t.Priority
	}
	r.mu.RUnlock()

	sort.Slice(specs, func(i, j int) bool {
		a, b := specs[i], specs[j]
		if a.Placeholder != b.Placeholder {
			return !a.Placeholder
		}
		if prio[a.Name] != prio[b.Name] {
			return prio[a.Name] > prio[b.Name]
		}
		return a.Name < b.Name
	})
	return specs
}

// Execute validates args and runs the named tool.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (*ToolResult, error) {
	tool := r.Get(name)
	if tool == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return r.ExecuteTool(ctx, tool, args)
}

// ExecuteTool validates args and runs tool. The returned ToolResult is
// never nil; on error its Result is nil.
func (r *Registry) ExecuteTool(ctx context.Context, tool *Tool, args map[string]any) (*ToolResult, error) {
	start := time.Now()
	tr := &ToolResult{ToolName: tool.Name}

	if err := tool.Schema.check(args); err != nil {
		tr.Error = err
		tr.DurationMs = time.Since(start).Milliseconds()
		return tr, err
	}

	result, err := tool.Execute(ctx, args)
	tr.DurationMs = time.Since(start).Milliseconds()
	logging.ToolsDebug("%s finished in %dms (err=%v)", tool.Name, tr.DurationMs, err)
	if err != nil {
		tr.Error = err
		return tr, err
	}
	tr.Result = result
	return tr, nil
}
