package toolset

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolscope/pkg/llmutils"
	"github.com/effective-security/toolscope/pkg/metricskey"
	"github.com/effective-security/toolscope/sandbox"
	"github.com/effective-security/toolscope/tools"
	"github.com/effective-security/xlog"
	"github.com/google/uuid"
)

// UnmarshalInputMessage is returned to the model when a capability
// can not decode the arguments.
const UnmarshalInputMessage = "Failed to unmarshal input, check the JSON schema and try again."

// ToolCall is a call requested by the model.
type ToolCall struct {
	// ID is echoed in the result, generated when empty
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolResult is the content returned to the model for a ToolCall.
type ToolResult struct {
	CallID  string `json:"call_id"`
	Name    string `json:"name"`
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// Dispatch invokes the capability named by the call.
func (t *Toolset) Dispatch(ctx context.Context, call ToolCall) *ToolResult {
	return t.dispatch(ctx, call, nil)
}

// DispatchAll invokes the calls concurrently and returns the results
// in the order of the calls.
func (t *Toolset) DispatchAll(ctx context.Context, calls []ToolCall) []*ToolResult {
	return t.dispatchAll(ctx, calls, nil)
}

func (t *Toolset) dispatchAll(ctx context.Context, calls []ToolCall, allowed []string) []*ToolResult {
	results := make([]*ToolResult, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(index int, tc ToolCall) {
			defer wg.Done()
			results[index] = t.dispatch(ctx, tc, allowed)
		}(i, call)
	}
	wg.Wait()

	return results
}

// dispatch resolves the call against the allowed names, or all names when nil.
func (t *Toolset) dispatch(ctx context.Context, call ToolCall, allowed []string) *ToolResult {
	if call.ID == "" {
		call.ID = uuid.NewString()
	}
	res := &ToolResult{
		CallID: call.ID,
		Name:   call.Name,
	}

	tool := t.resolve(call.Name, allowed)
	if tool == nil {
		metricskey.StatsToolCallsNotFound.IncrCounter(1, call.Name)
		t.callback.OnToolNotFound(ctx, call.Name)

		if allowed == nil {
			allowed = t.Names()
		}
		available := strings.Join(allowed, ", ")
		logger.ContextKV(ctx, xlog.WARNING,
			"status", "tool_not_found",
			"tool", call.Name,
			"available_tools", available,
		)

		res.Content = fmt.Sprintf("Tool `%s` not found. Please check the tool name and try again with exact match. Available tools: %s", call.Name, available)
		res.IsError = true
		return res
	}

	t.callback.OnToolStart(ctx, tool, call.Arguments)
	started := time.Now()

	out, failed, err := t.invoke(ctx, tool, call.Arguments)
	metricskey.PerfToolCall.MeasureSince(started, call.Name)

	if err != nil {
		metricskey.StatsToolCallsFailed.IncrCounter(1, call.Name)
		t.callback.OnToolError(ctx, tool, call.Arguments, err)

		logger.ContextKV(ctx, xlog.WARNING,
			"status", "tool_call_failed",
			"call_id", call.ID,
			"tool", call.Name,
			"err", err.Error(),
		)

		if errors.Is(err, llmutils.ErrFailedUnmarshalInput) {
			res.Content = UnmarshalInputMessage
		} else {
			res.Content = fmt.Sprintf("Tool call failed: %s", err.Error())
		}
		res.IsError = true
		return res
	}

	metricskey.StatsToolCallsSucceeded.IncrCounter(1, call.Name)
	t.callback.OnToolEnd(ctx, tool, call.Arguments, out)

	logger.ContextKV(ctx, xlog.DEBUG,
		"status", "tool_call_response",
		"call_id", call.ID,
		"tool", call.Name,
		"content_length", len(out),
	)

	res.Content = out
	res.IsError = failed
	return res
}

func (t *Toolset) resolve(name string, allowed []string) tools.ITool {
	if allowed != nil && !slices.Contains(allowed, name) {
		return nil
	}
	if d, err := t.catalog.Lookup(name); err == nil {
		return d.Invocation()
	}
	if name == sandbox.ToolName && t.sandbox != nil {
		return t.sandbox
	}
	return nil
}

// invoke calls the tool, recovering a panic as an error.
// Failed is true when an orchestration script halted on a fault.
func (t *Toolset) invoke(ctx context.Context, tool tools.ITool, input string) (out string, failed bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("panic: %v", r)
		}
	}()

	if st, ok := tool.(*sandbox.Tool); ok {
		res, runErr := st.Run(ctx, &sandbox.Request{Script: sandbox.Script(input)})
		if runErr != nil {
			return "", false, runErr
		}
		if !res.Success {
			t.callback.OnScriptFault(ctx, res)
		}
		return res.String(), !res.Success, nil
	}

	out, err = tool.Call(ctx, input)
	return out, false, err
}
