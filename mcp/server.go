// Package mcp serves a toolset to Model Context Protocol clients.
//
// The server answers initialize, ping, tools/list and tools/call over
// JSON-RPC 2.0, on HTTP or on line-delimited stdio. tools/list accepts an
// optional query to list only the tools exposed for that request. tools/call
// dispatches through the toolset, so failures are reported to the client as
// tool results with isError set, not as JSON-RPC errors.
package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolscope/pkg/metricskey"
	"github.com/effective-security/toolscope/toolset"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolscope", "mcp")

// DefaultServerName is reported in serverInfo
const DefaultServerName = "toolscope"

// DefaultServerVersion is reported in serverInfo
const DefaultServerVersion = "1.0.0"

// Handler handles the requests of one method
type Handler func(ctx context.Context, params json.RawMessage) (any, error)

// Server dispatches JSON-RPC requests to handlers.
type Server struct {
	toolset      *toolset.Toolset
	info         Implementation
	instructions string

	lock     sync.RWMutex
	handlers map[string]Handler
}

// Option configures the server
type Option func(*Server)

// WithImplementation sets the name and version reported to clients
func WithImplementation(name, version string) Option {
	return func(s *Server) {
		s.info = Implementation{Name: name, Version: version}
	}
}

// WithInstructions sets the instructions returned by initialize
func WithInstructions(instructions string) Option {
	return func(s *Server) {
		s.instructions = instructions
	}
}

// NewServer returns a server for the toolset
func NewServer(ts *toolset.Toolset, opts ...Option) *Server {
	s := &Server{
		toolset: ts,
		info: Implementation{
			Name:    DefaultServerName,
			Version: DefaultServerVersion,
		},
		handlers: make(map[string]Handler),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.SetRequestHandler(MethodInitialize, s.initialize)
	s.SetRequestHandler(MethodPing, func(context.Context, json.RawMessage) (any, error) {
		return struct{}{}, nil
	})
	s.SetRequestHandler(MethodToolsList, s.listTools)
	s.SetRequestHandler(MethodToolsCall, s.callTool)
	return s
}

// SetRequestHandler registers the handler of the method, replacing any previous one
func (s *Server) SetRequestHandler(method string, handler Handler) {
	s.lock.Lock()
	s.handlers[method] = handler
	s.lock.Unlock()
}

// HandleMessage decodes one message and returns its response,
// nil for a notification.
func (s *Server) HandleMessage(ctx context.Context, body []byte) *Response {
	req := new(Request)
	if err := json.Unmarshal(body, req); err != nil {
		return errorResponse(nullID, NewError(CodeParseError, "parse error: %s", err.Error()))
	}
	return s.Handle(ctx, req)
}

// Handle returns the response of the request, nil for a notification.
func (s *Server) Handle(ctx context.Context, req *Request) *Response {
	if req.JSONRPC != JSONRPCVersion || req.Method == "" {
		return errorResponse(idOrNull(req.ID), NewError(CodeInvalidRequest, "invalid request"))
	}

	if req.IsNotification() {
		logger.ContextKV(ctx, xlog.DEBUG, "notification", req.Method)
		return nil
	}

	started := time.Now()
	defer metricskey.PerfMCPRequest.MeasureSince(started, req.Method)

	s.lock.RLock()
	handler := s.handlers[req.Method]
	s.lock.RUnlock()

	if handler == nil {
		metricskey.StatsMCPRequests.IncrCounter(1, req.Method, "not_found")
		return errorResponse(req.ID, NewError(CodeMethodNotFound, "method not found: %s", req.Method))
	}

	result, err := handler(ctx, req.Params)
	if err != nil {
		metricskey.StatsMCPRequests.IncrCounter(1, req.Method, "error")
		logger.ContextKV(ctx, xlog.DEBUG,
			"method", req.Method,
			"id", string(req.ID),
			"err", err.Error(),
		)

		var rpcErr *Error
		if !errors.As(err, &rpcErr) {
			rpcErr = &Error{Code: CodeInternalError, Message: err.Error()}
		}
		return errorResponse(req.ID, rpcErr)
	}

	metricskey.StatsMCPRequests.IncrCounter(1, req.Method, "ok")
	return &Response{
		JSONRPC: JSONRPCVersion,
		ID:      req.ID,
		Result:  result,
	}
}

func (s *Server) initialize(_ context.Context, _ json.RawMessage) (any, error) {
	return &InitializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities: ServerCapabilities{
			Tools: &ToolsCapability{},
		},
		ServerInfo:   s.info,
		Instructions: s.instructions,
	}, nil
}

func (s *Server) listTools(ctx context.Context, params json.RawMessage) (any, error) {
	var p ListToolsParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	var defs []*toolset.FunctionDefinition
	if p.Query != "" {
		exp, err := s.toolset.Expose(ctx, p.Query)
		if err != nil {
			return nil, NewError(CodeInvalidParams, "%s", err.Error())
		}
		defs = exp.Definitions()
	} else {
		defs = toolset.Definitions(s.toolset.Catalog().All())
	}

	res := &ListToolsResult{Tools: make([]*Tool, len(defs))}
	for i, def := range defs {
		schema := def.Parameters
		if schema == nil {
			schema = map[string]any{"type": "object"}
		}
		res.Tools[i] = &Tool{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: schema,
		}
	}
	return res, nil
}

func (s *Server) callTool(ctx context.Context, params json.RawMessage) (any, error) {
	var p CallToolParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Name == "" {
		return nil, NewError(CodeInvalidParams, "missing tool name")
	}

	res := s.toolset.Dispatch(ctx, toolset.ToolCall{
		Name:      p.Name,
		Arguments: arguments(p.Arguments),
	})
	return &CallToolResult{
		Content: []Content{{Type: "text", Text: res.Content}},
		IsError: res.IsError,
	}, nil
}

// arguments returns the tool input: a JSON string is unquoted,
// other values are passed as JSON.
func arguments(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, nullID) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return string(raw)
}

func decodeParams(params json.RawMessage, v any) error {
	if len(params) == 0 || bytes.Equal(params, nullID) {
		return nil
	}
	if err := json.Unmarshal(params, v); err != nil {
		return NewError(CodeInvalidParams, "invalid params: %s", err.Error())
	}
	return nil
}

func errorResponse(id json.RawMessage, err *Error) *Response {
	return &Response{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Error:   err,
	}
}

func idOrNull(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return nullID
	}
	return id
}
