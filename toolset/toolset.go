// Package toolset exposes a catalog to a model for one request and routes
// the model's tool calls back to the capabilities.
//
// Expose selects the descriptors for the request query and renders them as
// a listing and as function definitions. Dispatch invokes a capability by
// name. Unknown names and failed calls are returned as tool results the model
// can read, they never fail the request.
package toolset

import (
	"context"
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolscope/catalog"
	"github.com/effective-security/toolscope/sandbox"
	"github.com/effective-security/toolscope/selector"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolscope", "toolset")

// ErrNoSandbox is returned by Run when no sandbox is configured.
var ErrNoSandbox = errors.New("orchestration sandbox is not configured")

// Toolset binds a frozen catalog with a selector and an optional sandbox.
// It is safe for concurrent use.
type Toolset struct {
	catalog  *catalog.Catalog
	selector *selector.Selector
	sandbox  *sandbox.Tool
	callback Callback
	topK     int
}

// Option configures a Toolset
type Option func(*Toolset)

// WithSelector replaces the default lexical selector.
func WithSelector(sel *selector.Selector) Option {
	return func(t *Toolset) {
		t.selector = sel
	}
}

// WithSandbox routes run_orchestration calls to the sandbox
// when the catalog has no descriptor with that name.
func WithSandbox(sb *sandbox.Sandbox) Option {
	return func(t *Toolset) {
		if sb != nil {
			t.sandbox = sandbox.NewTool(sb)
		}
	}
}

// WithCallback sets the callback notified of selections and calls.
func WithCallback(cb Callback) Option {
	return func(t *Toolset) {
		t.callback = cb
	}
}

// WithTopK sets the number of deferred descriptors exposed by Expose.
func WithTopK(topK int) Option {
	return func(t *Toolset) {
		t.topK = topK
	}
}

// New returns a Toolset over the catalog.
func New(cat *catalog.Catalog, opts ...Option) *Toolset {
	t := &Toolset{
		catalog: cat,
		topK:    selector.DefaultTopK,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.selector == nil {
		t.selector = selector.New()
	}
	if t.callback == nil {
		t.callback = nop{}
	}
	if t.sandbox == nil {
		if d, err := cat.Lookup(sandbox.ToolName); err == nil {
			t.sandbox, _ = d.Invocation().(*sandbox.Tool)
		}
	}
	return t
}

// Catalog returns the catalog
func (t *Toolset) Catalog() *catalog.Catalog {
	return t.catalog
}

// Selector returns the selector
func (t *Toolset) Selector() *selector.Selector {
	return t.selector
}

// TopK returns the number of deferred descriptors exposed by Expose.
func (t *Toolset) TopK() int {
	return t.topK
}

// Names returns the names the toolset can dispatch.
func (t *Toolset) Names() []string {
	names := t.catalog.Names()
	if t.sandbox != nil && !slices.Contains(names, sandbox.ToolName) {
		names = append(names, sandbox.ToolName)
	}
	return names
}

// Select returns the selection for the query.
func (t *Toolset) Select(ctx context.Context, query string, topK int) (*selector.Selection, error) {
	sel, err := t.selector.Select(ctx, query, t.catalog, topK)
	if err != nil {
		return nil, err
	}
	t.callback.OnSelect(ctx, sel)
	return sel, nil
}

// Expose selects the descriptors for the query with the configured topK.
func (t *Toolset) Expose(ctx context.Context, query string) (*Exposure, error) {
	sel, err := t.Select(ctx, query, t.topK)
	if err != nil {
		return nil, err
	}
	return &Exposure{
		Selection: sel,
		toolset:   t,
	}, nil
}

// Run executes an orchestration script.
// A fault is reported in the Result and to the callback, not as an error.
func (t *Toolset) Run(ctx context.Context, script string) (*sandbox.Result, error) {
	if t.sandbox == nil {
		return nil, errors.WithStack(ErrNoSandbox)
	}
	res, err := t.sandbox.Run(ctx, &sandbox.Request{Script: script})
	if err != nil {
		return nil, err
	}
	if !res.Success {
		logger.ContextKV(ctx, xlog.DEBUG,
			"status", "script_fault",
			"run", res.ID,
			"fault", res.Fault.Kind,
		)
		t.callback.OnScriptFault(ctx, res)
	}
	return res, nil
}
