// Package backend forwards tool requests to the external FastAPI image
// backend and classifies its responses.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"studio/internal/infra"
	"studio/internal/netfetch"
)

// Backend paths.
const (
	PathReplaceBackground = "/api/replace-background"
	PathEraser            = "/api/eraser"
	PathGenerativeFill    = "/api/generative-fill"
	PathTagging           = "/api/tagging"
	PathTryOnSubmit       = "/api/tryon/submit"
	PathTryOnExecute      = "/api/tryon/execute"
	PathTryOnQuery        = "/api/tryon/query/"
	PathTryOnGallery      = "/api/tryon/gallery"
	PathUploadBase64      = "/api/upload/base64"
	PathUploadFile        = "/api/upload/file"
	PathUpscale           = "/api/upscale"
	PathGenerateModel     = "/api/generate-model"
)

const maxResponseBytes = 64 << 20

// ErrUnavailable wraps transport failures reaching the backend.
var ErrUnavailable = errors.New("backend: unavailable")

// UpstreamError is a backend response that cannot be passed on as success.
// Status is the HTTP status the gateway should answer with.
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("backend: %d %s", e.Status, e.Message)
}

// Response is a successful backend reply.
type Response struct {
	Status int
	Body   json.RawMessage
}

// Decode unmarshals the body into v.
func (r *Response) Decode(v any) error {
	return json.Unmarshal(r.Body, v)
}

// Client talks to the backend through a netfetch.Client, so localhost base
// URLs get the 127.0.0.1 fallback.
type Client struct {
	baseURL string
	http    *netfetch.Client
	logger  *infra.Logger
}

func NewClient(baseURL string, httpClient *netfetch.Client, logger *infra.Logger) *Client {
	if httpClient == nil {
		httpClient = netfetch.NewClient(nil, 0, logger)
	}
	if logger == nil {
		logger = infra.DiscardLogger()
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient, logger: logger}
}

// BaseURL returns the configured backend origin.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// PostJSON sends payload as JSON. A json.RawMessage payload is sent verbatim.
func (c *Client) PostJSON(ctx context.Context, path string, payload any) (*Response, error) {
	var body []byte
	switch p := payload.(type) {
	case json.RawMessage:
		body = p
	case []byte:
		body = p
	default:
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("backend: encode request: %w", err)
		}
	}
	return c.send(ctx, http.MethodPost, path, nil, "application/json", body)
}

// PostMultipart sends form as multipart/form-data.
func (c *Client) PostMultipart(ctx context.Context, path string, form *Form) (*Response, error) {
	body, contentType, err := form.Encode()
	if err != nil {
		return nil, err
	}
	return c.send(ctx, http.MethodPost, path, nil, contentType, body)
}

// Get issues a GET with the given query.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.send(ctx, http.MethodGet, path, query, "", nil)
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, contentType string, body []byte) (*Response, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("backend: build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrUnavailable, path, err)
	}
	c.logger.Debug().Str("method", method).Str("path", path).Int("status", resp.StatusCode).Int("bytes", len(raw)).Msg("backend: response")
	return classify(resp.StatusCode, raw)
}

// classify maps a raw reply: non-JSON bodies become 500, non-2xx JSON keeps
// the backend status with its detail message.
func classify(status int, raw []byte) (*Response, error) {
	trimmed := bytes.TrimSpace(raw)
	if !json.Valid(trimmed) || len(trimmed) == 0 {
		msg := "invalid JSON response from backend"
		if status >= 300 {
			msg = fmt.Sprintf("backend responded %d with a non-JSON body", status)
		}
		return nil, &UpstreamError{Status: http.StatusInternalServerError, Message: msg}
	}
	if status < 200 || status >= 300 {
		return nil, &UpstreamError{Status: status, Message: errorMessage(trimmed, status)}
	}
	return &Response{Status: status, Body: json.RawMessage(trimmed)}, nil
}

// errorMessage pulls a human message from FastAPI ("detail") or generic
// ("error", "message") error bodies.
func errorMessage(raw []byte, status int) string {
	var body map[string]json.RawMessage
	if err := json.Unmarshal(raw, &body); err == nil {
		for _, key := range []string{"detail", "error", "message"} {
			v, ok := body[key]
			if !ok {
				continue
			}
			var s string
			if err := json.Unmarshal(v, &s); err == nil && s != "" {
				return s
			}
			return string(v)
		}
	}
	return http.StatusText(status)
}
