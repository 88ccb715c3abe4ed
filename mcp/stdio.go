package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"

	"github.com/cockroachdb/errors"
)

// ServeStdio reads one message per line from r and writes the responses
// to w, one per line, until r is exhausted or ctx is done.
func (s *Server) ServeStdio(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), MaxRequestSize)

	enc := json.NewEncoder(w)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return errors.WithStack(err)
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		response := s.HandleMessage(ctx, line)
		if response == nil {
			continue
		}
		if err := enc.Encode(response); err != nil {
			return errors.Wrap(err, "failed to write response")
		}
	}
	return errors.WithStack(scanner.Err())
}
