package tools

import (
	"context"
)

//go:generate mockgen -source=tools.go -destination=../mocks/mocktools/tools_mock.gen.go  -package mocktools

// ITool is the invocation handle of a capability.
// The catalog and the selector never inspect it, only the dispatcher
// and the sandbox call it.
type ITool interface {
	// Name returns the name of the Tool.
	Name() string
	// Description returns the description of the tool, to be used in the prompt.
	// Should not exceed LLM model limit.
	Description() string
	// Parameters returns the parameters definition of the function, to be used in the prompt.
	Parameters() any

	// Call executes the tool with the given input and returns the result.
	// If the tool fails to parse the input, it should return llmutils.ErrFailedUnmarshalInput error.
	Call(ctx context.Context, input string) (string, error)
}

// Callback is notified of capability invocations.
type Callback interface {
	OnToolStart(ctx context.Context, tool ITool, input string)
	OnToolEnd(ctx context.Context, tool ITool, input string, output string)
	OnToolError(ctx context.Context, tool ITool, input string, err error)
}
