package bria

import (
	"bytes"
	"context"
	"encoding/base64"
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
var ErrMissingAPIKey = errors.New("bria: api token is required")

// ErrEmptyResult is returned when Bria answers 2xx without any image.
var ErrEmptyResult = errors.New("bria: empty result")

const (
	defaultNumResults = 1
	maxNumResults     = 4
)

// Options configures the Bria client.
type Options struct {
	APIToken       string
	BaseURL        string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client calls the Bria image editing and generation API.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	logger     *infra.Logger
}

// Image is a source image given as bytes or a public URL.
type Image struct {
	Data     []byte
	Filename string
	MIME     string
	URL      string
}

func (i Image) empty() bool {
	return len(i.Data) == 0 && strings.TrimSpace(i.URL) == ""
}

// ReplaceRequest asks for new backgrounds behind a product.
type ReplaceRequest struct {
	Image          Image
	Prompt         string
	NegativePrompt string
	NumResults     int
}

// GenerateRequest asks for text-to-image results (fashion model shots).
type GenerateRequest struct {
	Prompt         string
	NegativePrompt string
	AspectRatio    string
	NumResults     int
}

// APIError is a non-2xx reply from Bria.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bria: %d %s", e.Status, e.Message)
}

// NewClient constructs a client with defaults.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 90 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://engine.prod.bria-api.com/v1"
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.DiscardLogger()
	}
	return &Client{token: strings.TrimSpace(opts.APIToken), baseURL: baseURL, httpClient: httpClient, logger: logger}
}

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool {
	return c.token != ""
}

// RemoveBackground returns the URL of the cut-out image.
func (c *Client) RemoveBackground(ctx context.Context, img Image) (string, error) {
	if img.empty() {
		return "", errors.New("bria: image is required")
	}
	body, contentType, err := removeForm(img)
	if err != nil {
		return "", err
	}
	var out struct {
		ResultURL string `json:"result_url"`
	}
	if err := c.post(ctx, "/background/remove", contentType, body, &out); err != nil {
		return "", err
	}
	if out.ResultURL == "" {
		return "", ErrEmptyResult
	}
	return out.ResultURL, nil
}

// ReplaceBackground returns one URL per generated background.
func (c *Client) ReplaceBackground(ctx context.Context, req ReplaceRequest) ([]string, error) {
	if req.Image.empty() {
		return nil, errors.New("bria: image is required")
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, errors.New("bria: background prompt is required")
	}
	payload := map[string]any{
		"bg_prompt":   strings.TrimSpace(req.Prompt),
		"num_results": clampResults(req.NumResults),
		"sync":        true,
	}
	if neg := strings.TrimSpace(req.NegativePrompt); neg != "" {
		payload["negative_prompt"] = neg
	}
	if len(req.Image.Data) > 0 {
		payload["file"] = base64.StdEncoding.EncodeToString(req.Image.Data)
	} else {
		payload["image_url"] = strings.TrimSpace(req.Image.URL)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("bria: encode request: %w", err)
	}
	var out struct {
		Result [][]any `json:"result"`
	}
	if err := c.post(ctx, "/background/replace", "application/json", raw, &out); err != nil {
		return nil, err
	}
	var urls []string
	for _, entry := range out.Result {
		if len(entry) == 0 {
			continue
		}
		if s, ok := entry[0].(string); ok && s != "" {
			urls = append(urls, s)
		}
	}
	if len(urls) == 0 {
		return nil, ErrEmptyResult
	}
	c.logger.Debug().Int("results", len(urls)).Msg("bria: backgrounds replaced")
	return urls, nil
}

// GenerateImages runs text-to-image and returns result URLs.
func (c *Client) GenerateImages(ctx context.Context, req GenerateRequest) ([]string, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, errors.New("bria: prompt is required")
	}
	payload := map[string]any{
		"prompt":      prompt,
		"num_results": clampResults(req.NumResults),
		"sync":        true,
	}
	if ar := strings.TrimSpace(req.AspectRatio); ar != "" {
		payload["aspect_ratio"] = ar
	}
	if neg := strings.TrimSpace(req.NegativePrompt); neg != "" {
		payload["negative_prompt"] = neg
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("bria: encode request: %w", err)
	}
	var out struct {
		Result []struct {
			URLs []string `json:"urls"`
		} `json:"result"`
	}
	if err := c.post(ctx, "/text-to-image/base/2.3", "application/json", raw, &out); err != nil {
		return nil, err
	}
	var urls []string
	for _, r := range out.Result {
		urls = append(urls, r.URLs...)
	}
	if len(urls) == 0 {
		return nil, ErrEmptyResult
	}
	return urls, nil
}

func (c *Client) post(ctx context.Context, path, contentType string, body []byte, out any) error {
	if !c.HasCredentials() {
		return ErrMissingAPIKey
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("bria: build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("api_token", c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("bria: http request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("bria: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var detail struct {
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		msg := strings.TrimSpace(string(raw))
		if err := json.Unmarshal(raw, &detail); err == nil {
			if detail.Message != "" {
				msg = detail.Message
			} else if detail.Error != "" {
				msg = detail.Error
			}
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("bria: decode response: %w", err)
	}
	return nil
}

func removeForm(img Image) ([]byte, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if len(img.Data) > 0 {
		name := img.Filename
		if name == "" {
			name = "image.png"
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
		if img.MIME != "" {
			h.Set("Content-Type", img.MIME)
		}
		part, err := mw.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("bria: create part: %w", err)
		}
		if _, err := part.Write(img.Data); err != nil {
			return nil, "", fmt.Errorf("bria: write part: %w", err)
		}
	} else if err := mw.WriteField("image_url", strings.TrimSpace(img.URL)); err != nil {
		return nil, "", fmt.Errorf("bria: write field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("bria: close form: %w", err)
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}

func clampResults(n int) int {
	if n <= 0 {
		return defaultNumResults
	}
	if n > maxNumResults {
		return maxNumResults
	}
	return n
}
