// Package sandbox runs orchestration scripts.
//
// A script chains several capability calls in one unit of work. Only the
// text it prints is returned, so intermediate data never reaches the model.
// Scripts are written in a small language limited to orchestration:
// variables, loops, conditionals, lambdas, capability calls and builtins to
// map, filter and aggregate data. Scripts have no access to the host.
//
// Every Execute starts from a fresh environment. A runtime fault halts the
// script and is reported in the Result, it is never returned as an error.
package sandbox

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/effective-security/toolscope/catalog"
	"github.com/effective-security/toolscope/pkg/metricskey"
	"github.com/effective-security/toolscope/tools"
	"github.com/effective-security/xdb/pkg/flake"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolscope", "sandbox")

// DefaultName is the name of the sandbox in metrics and logs.
const DefaultName = "sandbox"

// Result of a script run.
type Result struct {
	// ID is unique per run
	ID string `json:"id"`
	// Output is the printed text, or the diagnostic when the script faulted
	Output  string `json:"output"`
	Success bool   `json:"success"`
	// Fault is set when Success is false
	Fault *Fault `json:"fault,omitempty"`
	// Partial is the text printed before the fault
	Partial string `json:"partial,omitempty"`
	// Truncated is true when the output exceeded the limit
	Truncated bool `json:"truncated,omitempty"`
	Steps     int  `json:"steps"`
}

// Sandbox executes scripts. It holds configuration only and
// is safe for concurrent use, each run has its own state.
type Sandbox struct {
	name      string
	catalog   *catalog.Catalog
	callback  tools.Callback
	timeout   time.Duration
	maxSteps  int
	maxOutput int
}

// Option configures a Sandbox
type Option func(*Sandbox)

// WithCatalog sets the capabilities reachable from scripts.
func WithCatalog(cat *catalog.Catalog) Option {
	return func(s *Sandbox) {
		s.catalog = cat
	}
}

// WithCallback sets the callback notified of capability calls.
func WithCallback(cb tools.Callback) Option {
	return func(s *Sandbox) {
		s.callback = cb
	}
}

// WithTimeout bounds the duration of each run, zero means no limit.
func WithTimeout(timeout time.Duration) Option {
	return func(s *Sandbox) {
		s.timeout = timeout
	}
}

// WithMaxSteps bounds the statements, loop iterations and function calls
// of each run, zero means no limit.
func WithMaxSteps(steps int) Option {
	return func(s *Sandbox) {
		s.maxSteps = steps
	}
}

// WithMaxOutput bounds the printed bytes returned, zero means no limit.
// Output beyond the limit is dropped and the result is marked truncated.
func WithMaxOutput(size int) Option {
	return func(s *Sandbox) {
		s.maxOutput = size
	}
}

// WithName sets the name used in metrics and logs.
func WithName(name string) Option {
	return func(s *Sandbox) {
		s.name = name
	}
}

// New returns a Sandbox
func New(opts ...Option) *Sandbox {
	s := &Sandbox{
		name: DefaultName,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the sandbox name
func (s *Sandbox) Name() string {
	return s.name
}

// Catalog returns the catalog reachable from scripts, may be nil.
func (s *Sandbox) Catalog() *catalog.Catalog {
	return s.catalog
}

// Execute runs the script and returns the captured output.
func (s *Sandbox) Execute(ctx context.Context, script string) *Result {
	started := time.Now()
	defer metricskey.PerfSandboxRun.MeasureSince(started, s.name)

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	in := &interp{
		ctx:       ctx,
		catalog:   s.catalog,
		callback:  s.callback,
		runID:     strconv.FormatUint(flake.DefaultIDGenerator.NextID(), 10),
		maxSteps:  s.maxSteps,
		maxOutput: s.maxOutput,
		globals:   newEnv(nil),
	}

	fault := in.run(script)
	res := &Result{
		ID:        in.runID,
		Steps:     in.steps,
		Truncated: in.truncated,
	}
	if fault != nil {
		res.Fault = fault
		res.Output = fault.Diagnostic()
		res.Partial = in.out.String()

		metricskey.StatsSandboxRunsFailed.IncrCounter(1, s.name, string(fault.Kind))
		level := xlog.DEBUG
		if fault.Kind == InternalError {
			level = xlog.ERROR
		}
		logger.ContextKV(ctx, level,
			"run_id", res.ID,
			"status", "fault",
			"kind", fault.Kind,
			"line", fault.Line,
			"err", fault.Message,
			"steps", res.Steps,
		)
		return res
	}

	res.Success = true
	res.Output = in.out.String()
	if in.truncated {
		res.Output += fmt.Sprintf("\n[output truncated at %d bytes]\n", s.maxOutput)
	}

	metricskey.StatsSandboxRunsSucceeded.IncrCounter(1, s.name)
	logger.ContextKV(ctx, xlog.DEBUG,
		"run_id", res.ID,
		"status", "completed",
		"steps", res.Steps,
		"output_size", len(res.Output),
	)
	return res
}

// run parses and executes the script, recovering faults and panics.
func (in *interp) run(script string) (fault *Fault) {
	defer func() {
		if r := recover(); r != nil {
			if f, ok := r.(*Fault); ok {
				if f.Line == 0 {
					f.Line = in.line
				}
				fault = f
				return
			}
			logger.ContextKV(in.ctx, xlog.ERROR,
				"run_id", in.runID,
				"reason", "panic",
				"err", fmt.Sprintf("%v", r),
			)
			fault = newFault(InternalError, 0, "%v", r)
		}
	}()

	prog, err := parse(script)
	if err != nil {
		if f, ok := err.(*Fault); ok {
			return f
		}
		return newFault(InternalError, 0, "%s", err.Error())
	}
	if err := in.ctx.Err(); err != nil {
		return newFault(Cancelled, 0, "%s", err.Error())
	}
	in.execBlock(prog, in.globals)
	return nil
}
