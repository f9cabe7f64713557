// Package tools provides the catalog of retrieval actions available to an
// investigation and the boundary through which the pipeline invokes them.
//
// Every tool, real or placeholder, shares one contract:
//
//	invoke(name, args) -> {data: []Finding | empty, note: text}
//
// so the orchestrator never needs to know which sources are live.
package tools

import (
	"context"
	"fmt"

	"dossier/internal/evidence"
)

// ToolCategory classifies tools by the kind of source they reach.
type ToolCategory string

const (
	// CategoryWeb covers open web search.
	CategoryWeb ToolCategory = "/web"

	// CategorySocial covers social media profiles and posts.
	CategorySocial ToolCategory = "/social"

	// CategoryCorporate covers company registries and filings.
	CategoryCorporate ToolCategory = "/corporate"

	// CategoryAcademic covers publications and citations.
	CategoryAcademic ToolCategory = "/academic"
)

// Property describes a single parameter property for JSON schema.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Default     any    `json:"default,omitempty"`
	Enum        []any  `json:"enum,omitempty"`
}

// ToolSchema defines the JSON schema for tool arguments.
type ToolSchema struct {
	// Required lists parameters that must be provided.
	Required []string `json:"required"`

	// Properties describes each parameter.
	Properties map[string]Property `json:"properties"`
}

// Result is what a tool hands back. An empty Data slice means "no data";
// Note explains why or adds context.
type Result struct {
	Data []evidence.Finding `json:"data"`
	Note string             `json:"note,omitempty"`
}

// NoData builds an empty result carrying a note.
func NoData(note string) *Result {
	return &Result{Note: note}
}

// Empty reports whether the result carries no findings.
func (r *Result) Empty() bool {
	return r == nil || len(r.Data) == 0
}

// ExecuteFunc is the signature for tool execution.
type ExecuteFunc func(ctx context.Context, args map[string]any) (*Result, error)

// Tool defines a retrieval action.
type Tool struct {
	// Name is the unique identifier the orchestrator uses.
	Name string

	// Description explains what the tool does.
	// Shown to the orchestrator when it chooses the next call.
	Description string

	// Category classifies the tool's source.
	Category ToolCategory

	// Execute runs the tool with the given arguments.
	Execute ExecuteFunc

	// Schema defines the expected arguments.
	Schema ToolSchema

	// Priority ranks live tools in the catalog, highest first (default 50).
	Priority int

	// Placeholder marks tools that are wired to no live source.
	Placeholder bool
}

// Validate checks if the tool definition is valid.
func (t *Tool) Validate() error {
	if t.Name == "" {
		return ErrToolNameEmpty
	}
	if t.Execute == nil {
		return ErrToolExecuteNil
	}
	return nil
}

// Spec is the catalog entry the orchestrator and API clients see.
type Spec struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Category    ToolCategory `json:"category"`
	Schema      ToolSchema   `json:"schema"`
	Placeholder bool         `json:"placeholder,omitempty"`
}

// Spec returns the tool's catalog entry.
func (t *Tool) Spec() Spec {
	return Spec{
		Name:        t.Name,
		Description: t.Description,
		Category:    t.Category,
		Schema:      t.Schema,
		Placeholder: t.Placeholder,
	}
}

// check verifies that required arguments are present and that declared
// arguments carry their declared JSON type. Undeclared arguments pass.
func (s ToolSchema) check(args map[string]any) error {
	for _, req := range s.Required {
		if _, ok := args[req]; !ok {
			return fmt.Errorf("%w: %s", ErrMissingRequiredArg, req)
		}
	}
	for name, value := range args {
		prop, ok := s.Properties[name]
		if !ok || prop.Type == "" {
			continue
		}
		if !prop.accepts(value) {
			return fmt.Errorf("%w: %s must be %s, got %T", ErrInvalidArgType, name, prop.Type, value)
		}
	}
	return nil
}

// accepts reports whether v, as decoded from JSON, fits the property type.
// Whole float64 values count as integers.
func (p Property) accepts(v any) bool {
	switch p.Type {
	case "string":
		_, ok := v.(string)
		return ok
	case "integer":
		switch n := v.(type) {
		case int, int32, int64:
			return true
		case float64:
			return n == float64(int64(n))
		}
		return false
	case "number":
		switch v.(type) {
		case int, int32, int64, float32, float64:
			return true
		}
		return false
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "array":
		_, ok := v.([]any)
		return ok
	case "object":
		_, ok := v.(map[string]any)
		return ok
	}
	return true
}

// ToolResult is one execution through the registry.
type ToolResult struct {
	ToolName   string
	Result     *Result // nil when Error is set
	Error      error
	DurationMs int64
}

// IsSuccess reports whether the tool ran without error.
func (r *ToolResult) IsSuccess() bool {
	return r.Error == nil
}
