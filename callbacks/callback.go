package callbacks

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/effective-security/toolscope/sandbox"
	"github.com/effective-security/toolscope/selector"
	"github.com/effective-security/toolscope/tools"
	"github.com/effective-security/toolscope/toolset"
	"github.com/effective-security/xlog"
)

// ensure that the callbacks implement the correct interfaces
var (
	_ toolset.Callback = (*Noop)(nil)
	_ toolset.Callback = (*Printer)(nil)
	_ toolset.Callback = (*PackageLogger)(nil)
	_ toolset.Callback = (*Fanout)(nil)
	_ toolset.Callback = (*Scratchpad)(nil)
)

// Mode defines the mode for callback printing
type Mode int

const (
	// ModeDefault is the default mode for callback printing
	ModeDefault Mode = iota
	// ModeVerbose is the verbose mode for callback printing
	ModeVerbose
)

// Fanout is a callback handler that forwards the events to multiple callbacks.
type Fanout struct {
	callbacks []toolset.Callback
}

func NewFanout(callbacks ...toolset.Callback) *Fanout {
	return &Fanout{callbacks: callbacks}
}

func (l *Fanout) Add(callback toolset.Callback) {
	l.callbacks = append(l.callbacks, callback)
}

func (l *Fanout) OnSelect(ctx context.Context, sel *selector.Selection) {
	for _, callback := range l.callbacks {
		callback.OnSelect(ctx, sel)
	}
}

func (l *Fanout) OnToolStart(ctx context.Context, tool tools.ITool, input string) {
	for _, callback := range l.callbacks {
		callback.OnToolStart(ctx, tool, input)
	}
}

func (l *Fanout) OnToolEnd(ctx context.Context, tool tools.ITool, input string, output string) {
	for _, callback := range l.callbacks {
		callback.OnToolEnd(ctx, tool, input, output)
	}
}

func (l *Fanout) OnToolError(ctx context.Context, tool tools.ITool, input string, err error) {
	for _, callback := range l.callbacks {
		callback.OnToolError(ctx, tool, input, err)
	}
}

func (l *Fanout) OnToolNotFound(ctx context.Context, tool string) {
	for _, callback := range l.callbacks {
		callback.OnToolNotFound(ctx, tool)
	}
}

func (l *Fanout) OnScriptFault(ctx context.Context, res *sandbox.Result) {
	for _, callback := range l.callbacks {
		callback.OnScriptFault(ctx, res)
	}
}

// Noop does nothing.
type Noop struct{}

func NewNoop() *Noop {
	return &Noop{}
}

func (l *Noop) OnSelect(ctx context.Context, sel *selector.Selection)                        {}
func (l *Noop) OnToolStart(ctx context.Context, tool tools.ITool, input string)              {}
func (l *Noop) OnToolEnd(ctx context.Context, tool tools.ITool, input string, output string) {}
func (l *Noop) OnToolError(ctx context.Context, tool tools.ITool, input string, err error)   {}
func (l *Noop) OnToolNotFound(ctx context.Context, tool string)                              {}
func (l *Noop) OnScriptFault(ctx context.Context, res *sandbox.Result)                       {}

// Printer is a callback handler that prints to the Writer.
type Printer struct {
	Out  io.Writer
	Mode Mode

	lock sync.Mutex
}

func NewPrinter(out io.Writer, mode Mode) *Printer {
	return &Printer{Out: out, Mode: mode}
}

func (l *Printer) OnSelect(ctx context.Context, sel *selector.Selection) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Select: %q, %s scorer, top %d: %s\n", sel.Query, sel.Scorer, sel.TopK, strings.Join(sel.Names(), ", "))
	if l.Mode == ModeVerbose {
		for _, item := range sel.Items {
			fmt.Fprintf(l.Out, "  [%s] %s %.4f\n", item.Tag, item.Descriptor.Name(), item.Score)
		}
	}
}

func (l *Printer) OnToolStart(ctx context.Context, tool tools.ITool, input string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool Start: %s\n", tool.Name())
	fmt.Fprintf(l.Out, "Input: %s\n", input)
}

func (l *Printer) OnToolEnd(ctx context.Context, tool tools.ITool, input string, output string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool End: %s\n", tool.Name())
	if l.Mode == ModeVerbose {
		fmt.Fprintf(l.Out, "Output: %s\n", output)
	}
}

func (l *Printer) OnToolError(ctx context.Context, tool tools.ITool, input string, err error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool Error: %s: %s\n", tool.Name(), err.Error())
}

func (l *Printer) OnToolNotFound(ctx context.Context, tool string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool Not Found: %s\n", tool)
}

func (l *Printer) OnScriptFault(ctx context.Context, res *sandbox.Result) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Script Fault: %s: %s\n", res.ID, res.Output)
	if l.Mode == ModeVerbose && res.Partial != "" {
		fmt.Fprintf(l.Out, "Partial: %s\n", res.Partial)
	}
}

// PackageLogger is a callback handler that prints to the logger.
type PackageLogger struct {
	logger *xlog.PackageLogger
}

func NewPackageLogger(logger *xlog.PackageLogger) *PackageLogger {
	return &PackageLogger{logger: logger}
}

func (l *PackageLogger) OnSelect(ctx context.Context, sel *selector.Selection) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "select",
		"scorer", sel.Scorer,
		"top_k", sel.TopK,
		"tools", sel.Names(),
	)
}

func (l *PackageLogger) OnToolStart(ctx context.Context, tool tools.ITool, input string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_start",
		"tool", tool.Name(),
		"input", input,
	)
}

func (l *PackageLogger) OnToolEnd(ctx context.Context, tool tools.ITool, input string, output string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_end",
		"tool", tool.Name(),
		"output", output,
	)
}

func (l *PackageLogger) OnToolError(ctx context.Context, tool tools.ITool, input string, err error) {
	l.logger.ContextKV(ctx, xlog.ERROR,
		"event", "tool_error",
		"tool", tool.Name(),
		"err", err.Error(),
	)
}

func (l *PackageLogger) OnToolNotFound(ctx context.Context, tool string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_not_found",
		"tool", tool,
	)
}

func (l *PackageLogger) OnScriptFault(ctx context.Context, res *sandbox.Result) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "script_fault",
		"run", res.ID,
		"fault", res.Fault.Kind,
		"line", res.Fault.Line,
		"steps", res.Steps,
	)
}
