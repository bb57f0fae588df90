package flowrun

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategoryOf(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want Category
	}{
		{"structural", &StructuralError{Err: errors.New("bad")}, CategoryValidation},
		{"not found", &NotFoundError{Kind: "vertex", ID: "a"}, CategoryNotFound},
		{"vertex", &VertexError{VertexID: "a", Op: "build", Message: "boom"}, CategoryComponent},
		{"panic", &PanicError{VertexID: "a", Value: "boom"}, CategoryComponent},
		{"loop limit", &LoopLimitError{VertexID: "a", Max: 10}, CategoryComponent},
		{"router", &RouterError{VertexID: "a", Output: "ghost"}, CategoryComponent},
		{"wrapped", fmt.Errorf("outer: %w", &NotFoundError{Kind: "session", ID: "s"}), CategoryNotFound},
		{"plain", errors.New("anything"), CategoryUnknown},
		{"nil", nil, CategoryUnknown},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CategoryOf(tc.err))
		})
	}
}

func TestVertexError_Unwrap(t *testing.T) {
	inner := errors.New("root cause")
	err := &VertexError{VertexID: "a", Op: "build", Message: "failed", Err: inner}

	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "vertex a")
	assert.Contains(t, err.Error(), "failed")
}

func TestStructuralError_UnwrapsJoined(t *testing.T) {
	err := &StructuralError{Err: errors.Join(
		fmt.Errorf("%w: x", ErrDanglingEdge),
		fmt.Errorf("%w: y", ErrDuplicateVertex),
	)}

	assert.ErrorIs(t, err, ErrDanglingEdge)
	assert.ErrorIs(t, err, ErrDuplicateVertex)
}

func TestCancellationError(t *testing.T) {
	err := &CancellationError{VertexID: "b", Cause: context.Canceled}
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "before vertex b")

	executing := &CancellationError{VertexID: "b", Cause: context.DeadlineExceeded, WasExecuting: true}
	assert.Contains(t, executing.Error(), "during vertex b")
}
