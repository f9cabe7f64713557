package tools

import (
	"context"
	"errors"
	"testing"

	"dossier/internal/evidence"
)

func okTool(name string) *Tool {
	return &Tool{
		Name:     name,
		Category: CategoryWeb,
		Execute: func(ctx context.Context, args map[string]any) (*Result, error) {
			return &Result{Data: []evidence.Finding{{Source: name, Content: "hit"}}}, nil
		},
		Schema: ToolSchema{
			Required: []string{"query"},
			Properties: map[string]Property{
				"query":       {Type: "string", Description: "search terms"},
				"max_results": {Type: "integer", Description: "cap"},
			},
		},
	}
}

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()
	if reg == nil {
		t.Fatal("NewRegistry returned nil")
	}
	if n := len(reg.Names()); n != 0 {
		t.Errorf("new registry should be empty, got %d tools", n)
	}
}

func TestRegisterAndGet(t *testing.T) {
	reg := NewRegistry()

	if err := reg.Register(okTool("web_search")); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	got := reg.Get("web_search")
	if got == nil {
		t.Fatal("Get returned nil for registered tool")
	}
	if got.Priority != 50 {
		t.Errorf("default priority = %d, want 50", got.Priority)
	}
	if !reg.Has("web_search") || reg.Has("missing") {
		t.Error("Has reported the wrong membership")
	}
}

func TestRegisterDuplicate(t *testing.T) {
	reg := NewRegistry()
	tool := okTool("dupe")

	if err := reg.Register(tool); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}
	if err := reg.Register(tool); !errors.Is(err, ErrToolAlreadyRegistered) {
		t.Fatalf("expected ErrToolAlreadyRegistered, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	reg := NewRegistry()

	tests := []struct {
		name    string
		tool    *Tool
		wantErr error
	}{
		{
			name:    "empty name",
			tool:    &Tool{Execute: okTool("x").Execute},
			wantErr: ErrToolNameEmpty,
		},
		{
			name:    "nil execute",
			tool:    &Tool{Name: "no_exec"},
			wantErr: ErrToolExecuteNil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := reg.Register(tt.tool)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestMustRegisterPanics(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(okTool("a"))

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate MustRegister")
		}
	}()
	reg.MustRegister(okTool("a"))
}

func TestNamesAndCatalogSorted(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(okTool("web_search"))
	reg.MustRegister(&Tool{
		Name:        "academic_search",
		Category:    CategoryAcademic,
		Placeholder: true,
		Execute: func(ctx context.Context, args map[string]any) (*Result, error) {
			return NoData("not configured"), nil
		},
	})

	names := reg.Names()
	if len(names) != 2 || names[0] != "academic_search" || names[1] != "web_search" {
		t.Fatalf("Names = %v", names)
	}

	catalog := reg.Catalog()
	if catalog[0].Name != "web_search" || catalog[0].Schema.Required[0] != "query" {
		t.Errorf("catalog[0] = %+v", catalog[0])
	}
	if catalog[1].Name != "academic_search" || !catalog[1].Placeholder {
		t.Errorf("catalog[1] = %+v", catalog[1])
	}
}

func TestCatalogOrdersLiveToolsByPriority(t *testing.T) {
	reg := NewRegistry()
	low := okTool("low")
	low.Priority = 10
	high := okTool("high")
	high.Priority = 90
	placeholder := okTool("aaa_placeholder")
	placeholder.Priority = 100
	placeholder.Placeholder = true
	tie := okTool("beta")
	reg.MustRegister(low)
	reg.MustRegister(high)
	reg.MustRegister(placeholder)
	reg.MustRegister(tie)
	reg.MustRegister(okTool("alpha"))

	var got []string
	for _, s := range reg.Catalog() {
		got = append(got, s.Name)
	}
	want := []string{"high", "alpha", "beta", "low", "aaa_placeholder"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Catalog order = %v, want %v", got, want)
		}
	}
}

func TestRegisterRejectsUndeclaredRequiredArg(t *testing.T) {
	reg := NewRegistry()
	tool := okTool("broken")
	tool.Schema.Required = append(tool.Schema.Required, "subject")

	err := reg.Register(tool)
	if !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("got %v, want ErrSchemaMismatch", err)
	}
	if reg.Has("broken") {
		t.Error("a rejected tool must not be registered")
	}
}

func TestExecute(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(okTool("web_search"))
	ctx := context.Background()

	t.Run("unknown tool", func(t *testing.T) {
		_, err := reg.Execute(ctx, "nope", nil)
		if !errors.Is(err, ErrUnknownTool) {
			t.Fatalf("got %v, want ErrUnknownTool", err)
		}
	})

	t.Run("missing required arg", func(t *testing.T) {
		res, err := reg.Execute(ctx, "web_search", map[string]any{})
		if !errors.Is(err, ErrMissingRequiredArg) {
			t.Fatalf("got %v, want ErrMissingRequiredArg", err)
		}
		if res.IsSuccess() {
			t.Error("result should not be a success")
		}
	})

	t.Run("wrong arg type", func(t *testing.T) {
		_, err := reg.Execute(ctx, "web_search", map[string]any{"query": 42})
		if !errors.Is(err, ErrInvalidArgType) {
			t.Fatalf("got %v, want ErrInvalidArgType", err)
		}
	})

	t.Run("integer accepts whole float64 from JSON", func(t *testing.T) {
		_, err := reg.Execute(ctx, "web_search", map[string]any{"query": "x", "max_results": float64(3)})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("success", func(t *testing.T) {
		res, err := reg.Execute(ctx, "web_search", map[string]any{"query": "Jane Doe"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Result.Empty() || res.Result.Data[0].Content != "hit" {
			t.Errorf("result = %+v", res.Result)
		}
	})
}
