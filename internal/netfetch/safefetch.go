// Package netfetch holds the outbound HTTP helpers shared by the forwarding
// handlers: a client that retries localhost URLs against 127.0.0.1 once, and
// an image fetcher used by the proxy route and exports.
package netfetch

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"studio/internal/infra"
)

const loopbackIPv4 = "127.0.0.1"

// Doer is the subset of *http.Client used by Client.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// Client sends requests and, when a request to localhost fails at the
// transport level, sends it one more time to 127.0.0.1. Hosts that resolve
// localhost to ::1 first while the upstream only listens on IPv4 are the
// usual cause.
type Client struct {
	http   Doer
	logger *infra.Logger
}

// NewClient wraps doer. A nil doer gets an http.Client with the given timeout.
func NewClient(doer Doer, timeout time.Duration, logger *infra.Logger) *Client {
	if doer == nil {
		if timeout <= 0 {
			timeout = 2 * time.Minute
		}
		doer = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = infra.DiscardLogger()
	}
	return &Client{http: doer, logger: logger}
}

// Do sends req. Non-2xx responses are returned as-is; only transport errors
// trigger the fallback, and the fallback is attempted at most once.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err == nil {
		return resp, nil
	}
	if !isLocalhost(req.URL.Hostname()) {
		return nil, err
	}
	retry, cloneErr := withLoopbackHost(req)
	if cloneErr != nil {
		return nil, errors.Join(err, cloneErr)
	}
	c.logger.Warn().Err(err).Str("url", req.URL.Redacted()).Msg("netfetch: localhost failed, retrying on 127.0.0.1")
	resp, retryErr := c.http.Do(retry)
	if retryErr != nil {
		return nil, fmt.Errorf("netfetch: localhost and %s both failed: %w", loopbackIPv4, errors.Join(err, retryErr))
	}
	return resp, nil
}

func isLocalhost(host string) bool {
	return strings.EqualFold(host, "localhost")
}

// withLoopbackHost clones req with its host replaced by 127.0.0.1, keeping
// the port and replaying the body.
func withLoopbackHost(req *http.Request) (*http.Request, error) {
	clone := req.Clone(req.Context())
	u := *req.URL
	if port := u.Port(); port != "" {
		u.Host = net.JoinHostPort(loopbackIPv4, port)
	} else {
		u.Host = loopbackIPv4
	}
	clone.URL = &u
	clone.Host = ""
	if req.Body != nil && req.Body != http.NoBody {
		if req.GetBody == nil {
			return nil, errors.New("netfetch: request body cannot be replayed")
		}
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("netfetch: replay body: %w", err)
		}
		clone.Body = body
	}
	return clone, nil
}
