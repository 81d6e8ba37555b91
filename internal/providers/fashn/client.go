package fashn

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
	"time"

	"studio/internal/infra"
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("fashn: api key is required")

// Prediction statuses reported by Fashn.
const (
	StatusStarting   = "starting"
	StatusInQueue    = "in_queue"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Options configures the Fashn.ai client.
type Options struct {
	APIKey         string
	BaseURL        string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client calls the Fashn.ai virtual try-on API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *infra.Logger
}

// RunRequest is the body of POST /run. Images are URLs or base64 data URIs.
type RunRequest struct {
	ModelImage   string `json:"model_image"`
	GarmentImage string `json:"garment_image"`
	Category     string `json:"category"`
	Mode         string `json:"mode,omitempty"`
	GarmentPhoto string `json:"garment_photo_type,omitempty"`
	NumSamples   int    `json:"num_samples,omitempty"`
	Seed         *int   `json:"seed,omitempty"`
}

// Prediction is the status of a submitted run.
type Prediction struct {
	ID     string   `json:"id"`
	Status string   `json:"status"`
	Output []string `json:"output"`
	Error  *struct {
		Name    string `json:"name"`
		Message string `json:"message"`
	} `json:"error"`
}

// Done reports whether the prediction reached a terminal state.
func (p *Prediction) Done() bool {
	return p.Status == StatusCompleted || p.Status == StatusFailed
}

// ErrorMessage returns the provider failure message, if any.
func (p *Prediction) ErrorMessage() string {
	if p.Error == nil {
		return ""
	}
	if p.Error.Message != "" {
		return p.Error.Message
	}
	return p.Error.Name
}

// APIError is a non-2xx reply from Fashn.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("fashn: %d %s", e.Status, e.Message)
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
		baseURL = "https://api.fashn.ai/v1"
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.DiscardLogger()
	}
	return &Client{apiKey: strings.TrimSpace(opts.APIKey), baseURL: baseURL, httpClient: httpClient, logger: logger}
}

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool {
	return c.apiKey != ""
}

// Run submits a try-on and returns the prediction id.
func (c *Client) Run(ctx context.Context, req RunRequest) (string, error) {
	if strings.TrimSpace(req.ModelImage) == "" || strings.TrimSpace(req.GarmentImage) == "" {
		return "", errors.New("fashn: model and garment images are required")
	}
	var out struct {
		ID    string `json:"id"`
		Error any    `json:"error"`
	}
	if err := c.do(ctx, http.MethodPost, "/run", req, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("fashn: run returned no id (error: %v)", out.Error)
	}
	c.logger.Debug().Str("prediction", out.ID).Str("category", req.Category).Msg("fashn: run submitted")
	return out.ID, nil
}

// Status polls a prediction.
func (c *Client) Status(ctx context.Context, id string) (*Prediction, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("fashn: prediction id is required")
	}
	var out Prediction
	if err := c.do(ctx, http.MethodGet, "/status/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		out.ID = id
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	if !c.HasCredentials() {
		return ErrMissingAPIKey
	}
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("fashn: encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("fashn: build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fashn: http request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("fashn: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var detail struct {
			Error   string `json:"error"`
			Message string `json:"message"`
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
		return fmt.Errorf("fashn: decode response: %w", err)
	}
	return nil
}
