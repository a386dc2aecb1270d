package tool

import (
	"context"
	"errors"
	"testing"
)

func TestToolExecution(t *testing.T) {
	ctx := context.Background()

	tool := &Tool{
		Name:        "test_tool",
		Description: "A test tool",
		Parameters: []Parameter{
			{Name: "input", Type: "string", Description: "Test input", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return args["input"].(string) + "_processed", nil
		},
	}

	result, err := tool.Execute(ctx, map[string]any{"input": "test"})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if result != "test_processed" {
		t.Errorf("Expected 'test_processed', got '%s'", result)
	}
}

func TestToolValidationMissingRequired(t *testing.T) {
	tool := &Tool{
		Name: "test_tool",
		Parameters: []Parameter{
			{Name: "required_param", Type: "string", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return "ok", nil
		},
	}

	_, err := tool.Execute(context.Background(), map[string]any{})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Expected ValidationError, got %v", err)
	}
	if verr.Field != "required_param" {
		t.Errorf("Expected field 'required_param', got %q", verr.Field)
	}
}

func TestToolValidationTypeMismatch(t *testing.T) {
	tool := &Tool{
		Name: "search_products",
		Parameters: []Parameter{
			{Name: "limit", Type: "integer", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return "ok", nil
		},
	}

	cases := []struct {
		name  string
		args  map[string]any
		valid bool
	}{
		{"string for integer", map[string]any{"limit": "not-a-number"}, false},
		{"fractional for integer", map[string]any{"limit": 2.5}, false},
		{"whole float for integer", map[string]any{"limit": 10.0}, true},
		{"int for integer", map[string]any{"limit": 10}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tool.Execute(context.Background(), tc.args)
			var verr *ValidationError
			gotValidation := errors.As(err, &verr)
			if tc.valid && err != nil {
				t.Errorf("Expected success, got %v", err)
			}
			if !tc.valid && !gotValidation {
				t.Errorf("Expected ValidationError, got %v", err)
			}
		})
	}
}

func TestToolExecutionErrorWrapped(t *testing.T) {
	boom := errors.New("backend down")
	tool := &Tool{
		Name: "failing",
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return "", boom
		},
	}

	_, err := tool.Execute(context.Background(), map[string]any{})
	var eerr *ExecutionError
	if !errors.As(err, &eerr) {
		t.Fatalf("Expected ExecutionError, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Error("Expected wrapped cause to survive")
	}
}

func TestRegistryStableOrder(t *testing.T) {
	registry := NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := registry.Register(&Tool{Name: name}); err != nil {
			t.Fatalf("Register(%s): %v", name, err)
		}
	}

	tools := registry.List()
	want := []string{"alpha", "mid", "zeta"}
	for i, tool := range tools {
		if tool.Name != want[i] {
			t.Errorf("List()[%d] = %s, want %s", i, tool.Name, want[i])
		}
	}

	schemas := registry.ToJSONSchemas()
	if len(schemas) != 3 {
		t.Fatalf("Expected 3 schemas, got %d", len(schemas))
	}
}

func TestRegistryDuplicate(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register(&Tool{Name: "dup"}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := registry.Register(&Tool{Name: "dup"}); err == nil {
		t.Error("Expected error registering duplicate tool")
	}
}

func TestRegistryInvokeUnknown(t *testing.T) {
	registry := NewRegistry()
	if _, err := registry.Invoke(context.Background(), "nope", nil); err == nil {
		t.Error("Expected error invoking unknown tool")
	}
}
