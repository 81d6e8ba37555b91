package removebg

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"studio/internal/infra"
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("removebg: api key is required")

// Options configures the remove.bg client.
type Options struct {
	APIKey         string
	BaseURL        string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client calls the remove.bg REST API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *infra.Logger
}

// Input is either raw image bytes or a public image URL.
type Input struct {
	Data     []byte
	Filename string
	MIME     string
	ImageURL string
	Size     string
}

// Result holds the cut-out PNG.
type Result struct {
	Data         []byte
	ContentType  string
	CreditsUsed  string
	ForegroundWH string
}

type errorResponse struct {
	Errors []struct {
		Title  string `json:"title"`
		Code   string `json:"code"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

// APIError is a non-2xx reply from remove.bg.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("removebg: %d %s", e.Status, e.Message)
}

// NewClient constructs a client with defaults.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.remove.bg/v1.0"
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.DiscardLogger()
	}
	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool {
	return c.apiKey != ""
}

// RemoveBackground uploads the image (or its URL) and returns the PNG result.
func (c *Client) RemoveBackground(ctx context.Context, in Input) (*Result, error) {
	if !c.HasCredentials() {
		return nil, ErrMissingAPIKey
	}
	if len(in.Data) == 0 && strings.TrimSpace(in.ImageURL) == "" {
		return nil, errors.New("removebg: image data or url is required")
	}
	body, contentType, err := encodeForm(in)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/removebg", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("removebg: build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Accept", "image/png, application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("removebg: http request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("removebg: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var detail errorResponse
		if err := json.Unmarshal(raw, &detail); err == nil && len(detail.Errors) > 0 {
			return nil, &APIError{Status: resp.StatusCode, Message: detail.Errors[0].Title}
		}
		return nil, &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	}
	c.logger.Debug().
		Str("credits", resp.Header.Get("X-Credits-Charged")).
		Int("bytes", len(raw)).
		Msg("removebg: background removed")
	return &Result{
		Data:         raw,
		ContentType:  "image/png",
		CreditsUsed:  resp.Header.Get("X-Credits-Charged"),
		ForegroundWH: resp.Header.Get("X-Width") + "x" + resp.Header.Get("X-Height"),
	}, nil
}

func encodeForm(in Input) ([]byte, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	size := strings.TrimSpace(in.Size)
	if size == "" {
		size = "auto"
	}
	_ = mw.WriteField("size", size)
	_ = mw.WriteField("format", "png")
	if len(in.Data) > 0 {
		name := in.Filename
		if name == "" {
			name = "image.png"
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image_file"; filename=%q`, name))
		mime := in.MIME
		if mime == "" {
			mime = "application/octet-stream"
		}
		h.Set("Content-Type", mime)
		part, err := mw.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("removebg: create part: %w", err)
		}
		if _, err := part.Write(in.Data); err != nil {
			return nil, "", fmt.Errorf("removebg: write part: %w", err)
		}
	} else {
		_ = mw.WriteField("image_url", strings.TrimSpace(in.ImageURL))
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("removebg: close form: %w", err)
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}
