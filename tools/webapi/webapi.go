// Package webapi provides the HTTP client shared by the web capabilities.
package webapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/x/slices"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolscope", "webapi")

// DefaultTimeout of a request
const DefaultTimeout = 10 * time.Second

// MaxBodySize is the largest response body read
const MaxBodySize = 8 << 20

// UserAgent sent with requests
const UserAgent = "toolscope/1.0"

// Client performs GET requests to JSON and text APIs.
type Client struct {
	http *http.Client
}

// NewClient returns a Client, hc may be nil.
func NewClient(hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{http: hc}
}

// HTTPClient returns the underlying client
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// Get returns the response body.
// A response status other than 2xx is an error.
func (c *Client) Get(ctx context.Context, rawURL string, query url.Values, header http.Header) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid URL %q", rawURL)
	}
	if len(query) > 0 {
		q := u.Query()
		for k, v := range query {
			q[k] = v
		}
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	req.Header.Set("User-Agent", UserAgent)
	for k, v := range header {
		req.Header[k] = v
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "GET %s", u.Host)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize))
	if err != nil {
		return nil, errors.Wrapf(err, "GET %s: failed to read response", u.Host)
	}

	logger.ContextKV(ctx, xlog.DEBUG,
		"host", u.Host,
		"path", u.Path,
		"status", resp.StatusCode,
		"size", len(body),
		"elapsed", time.Since(started).String(),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.Newf("GET %s%s: %s: %s", u.Host, u.Path, resp.Status, slices.StringUpto(string(body), 256))
	}
	return body, nil
}

// GetJSON decodes the JSON response into out.
func (c *Client) GetJSON(ctx context.Context, rawURL string, query url.Values, header http.Header, out any) error {
	body, err := c.Get(ctx, rawURL, query, header)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrap(err, "failed to decode response")
	}
	return nil
}
