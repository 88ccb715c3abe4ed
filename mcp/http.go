package mcp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
)

// MaxRequestSize limits the body of a request
const MaxRequestSize = 4 << 20

// DefaultEndpoint is the path served by ListenAndServe
const DefaultEndpoint = "/mcp"

// HTTPHandler serves JSON-RPC messages posted to it, one message per request.
type HTTPHandler struct {
	server       *Server
	errorHandler func(error)
}

// NewHTTPHandler returns a stateless HTTP handler for the server
func NewHTTPHandler(s *Server) *HTTPHandler {
	return &HTTPHandler{server: s}
}

// WithErrorHandler sets the handler notified of transport errors
func (h *HTTPHandler) WithErrorHandler(handler func(error)) *HTTPHandler {
	h.errorHandler = handler
	return h
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Only POST method is supported", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestSize))
	if err != nil {
		h.handleError(errors.Wrap(err, "failed to read request body"))
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	response := h.server.HandleMessage(r.Context(), body)
	if response == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	jsonData, err := json.Marshal(response)
	if err != nil {
		h.handleError(errors.Wrap(err, "failed to marshal response"))
		http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(jsonData)
}

func (h *HTTPHandler) handleError(err error) {
	logger.KV(xlog.ERROR, "err", err.Error())
	if h.errorHandler != nil {
		h.errorHandler(err)
	}
}

// ListenAndServe serves the server on addr until ctx is done.
func ListenAndServe(ctx context.Context, addr, endpoint string, s *Server) error {
	mux := http.NewServeMux()
	mux.Handle(endpoint, NewHTTPHandler(s))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.KV(xlog.NOTICE, "status", "listening", "addr", addr, "endpoint", endpoint)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return errors.WithStack(err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "failed to shutdown")
	}
	logger.KV(xlog.NOTICE, "status", "stopped", "addr", addr)
	return nil
}
