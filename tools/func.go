package tools

import (
	"context"

	"github.com/effective-security/toolscope/pkg/schema"
)

// CallFunc is the signature of a capability implemented as a plain function.
type CallFunc func(ctx context.Context, input string) (string, error)

type funcTool struct {
	name        string
	description string
	params      any
	fn          CallFunc
}

// Func returns an ITool backed by fn.
// When params is nil, the tool accepts a single "input" string.
func Func(name, description string, params any, fn CallFunc) ITool {
	if params == nil {
		params = schema.StringInput("input", "The input of the tool.")
	}
	return &funcTool{
		name:        name,
		description: description,
		params:      params,
		fn:          fn,
	}
}

func (t *funcTool) Name() string {
	return t.name
}

func (t *funcTool) Description() string {
	return t.description
}

func (t *funcTool) Parameters() any {
	return t.params
}

func (t *funcTool) Call(ctx context.Context, input string) (string, error) {
	return t.fn(ctx, input)
}
