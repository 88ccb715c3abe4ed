package toolset

import (
	"context"

	"github.com/effective-security/toolscope/sandbox"
	"github.com/effective-security/toolscope/selector"
	"github.com/effective-security/toolscope/tools"
)

//go:generate mockgen -source=callback.go -destination=../mocks/mocktoolset/callback_mock.gen.go  -package mocktoolset

// Callback is notified of selections and tool calls handled by a Toolset.
type Callback interface {
	tools.Callback

	// OnSelect is called with the descriptors exposed for a request.
	OnSelect(ctx context.Context, sel *selector.Selection)
	// OnToolNotFound is called when the model calls a name that is not exposed.
	OnToolNotFound(ctx context.Context, name string)
	// OnScriptFault is called when an orchestration script halts on a fault.
	OnScriptFault(ctx context.Context, res *sandbox.Result)
}

type nop struct{}

func (nop) OnToolStart(context.Context, tools.ITool, string)        {}
func (nop) OnToolEnd(context.Context, tools.ITool, string, string)  {}
func (nop) OnToolError(context.Context, tools.ITool, string, error) {}
func (nop) OnSelect(context.Context, *selector.Selection)           {}
func (nop) OnToolNotFound(context.Context, string)                  {}
func (nop) OnScriptFault(context.Context, *sandbox.Result)          {}
