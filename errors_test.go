package packgraph

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

// TestSentinelErrors verifies that all sentinel errors are defined correctly.
func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "ErrPackNotFound",
			err:  ErrPackNotFound,
			want: "pack not found",
		},
		{
			name: "ErrNodeNotFound",
			err:  ErrNodeNotFound,
			want: "content item not found",
		},
		{
			name: "ErrInvalidConfig",
			err:  ErrInvalidConfig,
			want: "invalid configuration",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err == nil {
				t.Fatalf("sentinel error %s is nil", tt.name)
			}
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("error message = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGraphErrorError(t *testing.T) {
	tests := []struct {
		name string
		err  *GraphError
		want []string
	}{
		{
			name: "without underlying error",
			err:  &GraphError{Op: "Engine.Update", Kind: KindConflict},
			want: []string{"packgraph:", "Engine.Update", KindConflict},
		},
		{
			name: "with underlying error",
			err: &GraphError{
				Op:   "Store.CreateNodes",
				Kind: KindStore,
				Err:  errors.New("connection refused"),
			},
			want: []string{"Store.CreateNodes", KindStore, "connection refused"},
		},
		{
			name: "with context",
			err: &GraphError{
				Op:      "Engine.Dependencies",
				Kind:    KindNotFound,
				Err:     ErrPackNotFound,
				Context: map[string]any{"pack": "Base"},
			},
			want: []string{"Engine.Dependencies", "pack not found", "Base"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.err.Error()
			for _, fragment := range tt.want {
				if !strings.Contains(got, fragment) {
					t.Errorf("Error() = %q, missing %q", got, fragment)
				}
			}
		})
	}
}

func TestGraphErrorUnwrap(t *testing.T) {
	base := errors.New("boom")
	err := &GraphError{Op: "Engine.CreateGraph", Kind: KindInternal, Err: base}

	if got := err.Unwrap(); got != base {
		t.Errorf("Unwrap() = %v, want %v", got, base)
	}
	if !errors.Is(err, base) {
		t.Error("errors.Is should find the wrapped error")
	}
}

func TestGraphErrorIs(t *testing.T) {
	err := NewConflictError("Engine.Update", ErrPackNotFound)

	// Matches a template with the same kind.
	if !errors.Is(err, &GraphError{Kind: KindConflict}) {
		t.Error("kind template should match")
	}
	if errors.Is(err, &GraphError{Kind: KindStore}) {
		t.Error("different kind should not match")
	}

	// Op narrows the match.
	if !errors.Is(err, &GraphError{Op: "Engine.Update", Kind: KindConflict}) {
		t.Error("op and kind template should match")
	}
	if errors.Is(err, &GraphError{Op: "Engine.Create", Kind: KindConflict}) {
		t.Error("different op should not match")
	}

	// Delegates to the underlying error.
	if !errors.Is(err, ErrPackNotFound) {
		t.Error("underlying sentinel should match")
	}
}

func TestGraphErrorAs(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", NewStoreError("Store.Open", errors.New("dial tcp")))

	var ge *GraphError
	if !errors.As(wrapped, &ge) {
		t.Fatal("errors.As should find the GraphError")
	}
	if ge.Op != "Store.Open" || ge.Kind != KindStore {
		t.Errorf("got Op=%q Kind=%q", ge.Op, ge.Kind)
	}
}

func TestGraphErrorWithContext(t *testing.T) {
	err := NewNotFoundError("Engine.Dependencies", ErrPackNotFound)
	enriched := err.WithContext(map[string]any{"pack": "CommonScripts"})

	if err.Context != nil {
		t.Error("WithContext must not mutate the original error")
	}
	if enriched.Context["pack"] != "CommonScripts" {
		t.Errorf("context not carried: %+v", enriched.Context)
	}

	more := enriched.WithContext(map[string]any{"marketplace": "xsoar"})
	if len(more.Context) != 2 {
		t.Errorf("merged context has %d entries, want 2", len(more.Context))
	}
}

func TestNewErrorFunctions(t *testing.T) {
	base := errors.New("cause")
	tests := []struct {
		name string
		err  *GraphError
		kind string
	}{
		{"NewNotFoundError", NewNotFoundError("op", base), KindNotFound},
		{"NewValidationError", NewValidationError("op", base), KindValidation},
		{"NewStoreError", NewStoreError("op", base), KindStore},
		{"NewConflictError", NewConflictError("op", base), KindConflict},
		{"NewConfigurationError", NewConfigurationError("op", base), KindConfiguration},
		{"NewTimeoutError", NewTimeoutError("op", base), KindTimeout},
		{"NewInternalError", NewInternalError("op", base), KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Kind != tt.kind {
				t.Errorf("Kind = %q, want %q", tt.err.Kind, tt.kind)
			}
			if tt.err.Op != "op" {
				t.Errorf("Op = %q, want %q", tt.err.Op, "op")
			}
			if !errors.Is(tt.err, base) {
				t.Error("underlying error not reachable")
			}
		})
	}
}
