package tools

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolscope/pkg/llmutils"
)

// Tool is a capability with typed input and output.
type Tool[I any, O any] interface {
	ITool
	Run(context.Context, *I) (*O, error)
}

// CallTyped decodes the input leniently into I, runs the tool,
// and returns the output as JSON, or as text if O implements fmt.Stringer.
func CallTyped[I any, O any](ctx context.Context, t Tool[I, O], input string) (string, error) {
	var req I
	if err := llmutils.UnmarshalInput(input, &req); err != nil {
		return "", err
	}
	out, err := t.Run(ctx, &req)
	if err != nil {
		return "", err
	}
	return format(t.Name(), out)
}

func format[O any](name string, out *O) (string, error) {
	if out == nil {
		return "", errors.Newf("%s: empty result", name)
	}
	if s, ok := any(out).(interface{ String() string }); ok {
		return s.String(), nil
	}
	return llmutils.ToJSON(out), nil
}

// CallText is CallTyped for tools taking a single text argument.
// Input that is not a JSON object is passed to setText as is,
// so the tool can be called as name("text") from a script.
func CallText[I any, O any](ctx context.Context, t Tool[I, O], input string, setText func(*I, string)) (string, error) {
	if llmutils.IsJSON(input) && strings.HasPrefix(strings.TrimSpace(input), "{") {
		return CallTyped(ctx, t, input)
	}
	var req I
	setText(&req, strings.TrimSpace(input))
	out, err := t.Run(ctx, &req)
	if err != nil {
		return "", err
	}
	return format(t.Name(), out)
}
