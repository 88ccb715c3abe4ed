package callbacks

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/effective-security/toolscope/sandbox"
	"github.com/effective-security/toolscope/selector"
	"github.com/effective-security/toolscope/tools"
	"github.com/effective-security/xdb/pkg/flake"
)

var TimeNowFn = time.Now

// RunStats summarizes the events of one request.
type RunStats struct {
	RequestID string

	Duration            time.Duration
	Selections          uint32
	ToolsExposed        uint32
	ToolsMatched        uint32
	ToolsCalls          uint32
	ToolsCallsSucceeded uint32
	ToolsCallsFailed    uint32
	ToolNotFound        uint32
	ScriptFaults        uint32
}

type requestIDKey struct{}

// WithRequestID returns a context carrying the request ID.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestID returns the request ID of the context, or empty string.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Scratchpad records a transcript and stats per request.
type Scratchpad struct {
	runs map[string]*run
	mode Mode
	lock sync.Mutex
}

func NewScratchpad(mode Mode) *Scratchpad {
	return &Scratchpad{
		runs: make(map[string]*run),
		mode: mode,
	}
}

// StartRun starts recording the events of a request.
// The returned context carries the request ID, a new one if ctx has none.
func (l *Scratchpad) StartRun(ctx context.Context) context.Context {
	requestID := RequestID(ctx)
	if requestID == "" {
		requestID = strconv.FormatUint(flake.DefaultIDGenerator.NextID(), 10)
		ctx = WithRequestID(ctx, requestID)
	}

	r := &run{
		stats: RunStats{
			RequestID: requestID,
		},
		started: time.Now(),
	}

	l.lock.Lock()
	l.runs[requestID] = r
	l.lock.Unlock()

	r.print("*** Run Started ***")
	return ctx
}

// EndRun stops recording and returns the stats and the transcript.
func (l *Scratchpad) EndRun(ctx context.Context) (*RunStats, []byte) {
	run := l.getRun(ctx)
	if run == nil {
		return nil, nil
	}

	stats := run.stats
	stats.Duration = time.Since(run.started)

	run.print(fmt.Sprintf("Selections: %d, Exposed: %d, Matched: %d",
		stats.Selections,
		stats.ToolsExposed,
		stats.ToolsMatched,
	))
	run.print(fmt.Sprintf("Tool calls: %d, Failed: %d, Not Found: %d, Script Faults: %d",
		stats.ToolsCalls,
		stats.ToolsCallsFailed,
		stats.ToolNotFound,
		stats.ScriptFaults,
	))

	run.print(fmt.Sprintf("*** Run Ended. Duration: %s ***", stats.Duration))

	l.lock.Lock()
	delete(l.runs, stats.RequestID)
	l.lock.Unlock()

	return &stats, run.w.Bytes()
}

func (l *Scratchpad) getRun(ctx context.Context) *run {
	requestID := RequestID(ctx)
	if requestID == "" {
		return nil
	}

	l.lock.Lock()
	defer l.lock.Unlock()
	return l.runs[requestID]
}

func (l *Scratchpad) OnSelect(ctx context.Context, sel *selector.Selection) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}
	matched := uint32(sel.Matched())
	atomic.AddUint32(&run.stats.Selections, 1)
	atomic.AddUint32(&run.stats.ToolsExposed, uint32(len(sel.Items)))
	atomic.AddUint32(&run.stats.ToolsMatched, matched)

	run.print("*** Select ***", fmt.Sprintf("%q", sel.Query), strings.Join(sel.Names(), ", "))
	if l.mode == ModeVerbose {
		for _, item := range sel.Items {
			run.print("  ", string(item.Tag), item.Descriptor.Name(), fmt.Sprintf("%.4f", item.Score))
		}
	}
}

func (l *Scratchpad) OnToolStart(ctx context.Context, tool tools.ITool, input string) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}
	atomic.AddUint32(&run.stats.ToolsCalls, 1)
	run.print(tool.Name(), "*** Tool Start ***")
	run.print(tool.Name(), "Input:", input)
}

func (l *Scratchpad) OnToolEnd(ctx context.Context, tool tools.ITool, input string, output string) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}
	atomic.AddUint32(&run.stats.ToolsCallsSucceeded, 1)
	if l.mode == ModeVerbose {
		run.print(tool.Name(), "Output:", output)
	}
	run.print(tool.Name(), "*** Tool End ***")
}

func (l *Scratchpad) OnToolError(ctx context.Context, tool tools.ITool, input string, err error) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}
	atomic.AddUint32(&run.stats.ToolsCallsFailed, 1)
	run.print(tool.Name(), "*** Tool Error ***", err.Error())
}

func (l *Scratchpad) OnToolNotFound(ctx context.Context, tool string) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}
	atomic.AddUint32(&run.stats.ToolNotFound, 1)
	run.print("*** Tool Not Found ***", tool)
}

func (l *Scratchpad) OnScriptFault(ctx context.Context, res *sandbox.Result) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}
	atomic.AddUint32(&run.stats.ScriptFaults, 1)
	run.print(sandbox.ToolName, "*** Script Fault ***", res.Output)
	if l.mode == ModeVerbose && res.Partial != "" {
		run.print(sandbox.ToolName, "Partial:", res.Partial)
	}
}

type run struct {
	w       bytes.Buffer
	started time.Time
	lock    sync.Mutex
	stats   RunStats
}

// print writes the entries to the run's output.
// The entries are written in the following format:
// [timestamp requestID] entry entry\n
func (r *run) print(entries ...string) {
	r.lock.Lock()
	defer r.lock.Unlock()

	now := TimeNowFn()
	ts := now.Format("2006-01-02 15:04:05")

	_, _ = r.w.WriteString(ts)
	_, _ = r.w.WriteString(" ")
	_, _ = r.w.WriteString(r.stats.RequestID)
	_, _ = r.w.WriteString(" ")

	for i, entry := range entries {
		if i > 0 {
			_, _ = r.w.WriteString(" ")
		}
		_, _ = r.w.WriteString(entry)
	}
	_, _ = r.w.WriteString("\n")
}
