package tryon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"studio/internal/backend"
	"studio/internal/providers/fashn"
)

// BackendClient is the backend surface used for try-on.
type BackendClient interface {
	PostMultipart(ctx context.Context, path string, form *backend.Form) (*backend.Response, error)
	Get(ctx context.Context, path string, query url.Values) (*backend.Response, error)
}

// FashnClient is the Fashn surface used for try-on.
type FashnClient interface {
	HasCredentials() bool
	Run(ctx context.Context, req fashn.RunRequest) (string, error)
	Status(ctx context.Context, id string) (*fashn.Prediction, error)
}

// ImageResolver turns a URL into bytes for providers that need uploads.
type ImageResolver func(ctx context.Context, rawURL string) (data []byte, mime string, err error)

// Service submits and polls try-on jobs.
type Service struct {
	backend BackendClient
	fashn   FashnClient
	resolve ImageResolver
}

func NewService(b BackendClient, f FashnClient, resolve ImageResolver) *Service {
	return &Service{backend: b, fashn: f, resolve: resolve}
}

// backendReply is the loose shape of the backend's try-on answers.
type backendReply struct {
	TaskID  string   `json:"task_id"`
	ID      string   `json:"id"`
	Status  string   `json:"status"`
	Images  []string `json:"images"`
	Output  []string `json:"output"`
	Image   string   `json:"image_url"`
	Message string   `json:"error"`
}

func (b backendReply) result(raw json.RawMessage) *Result {
	id := b.TaskID
	if id == "" {
		id = b.ID
	}
	images := b.Images
	if len(images) == 0 {
		images = b.Output
	}
	if len(images) == 0 && b.Image != "" {
		images = []string{b.Image}
	}
	status := strings.ToLower(b.Status)
	if status == "" {
		status = "submitted"
		if len(images) > 0 {
			status = "completed"
		}
	}
	return &Result{Provider: ProviderBackend, TaskID: id, Status: status, Images: images, Error: b.Message, Raw: raw}
}

// Submit assembles and sends the request.
func (s *Service) Submit(ctx context.Context, req Request) (*Result, error) {
	provider, err := NormalizeProvider(req.Provider)
	if err != nil {
		return nil, err
	}
	req.Provider = provider
	if provider == ProviderBackend {
		if err := s.resolveImages(ctx, &req); err != nil {
			return nil, err
		}
	}
	out, err := Assemble(req)
	if err != nil {
		return nil, err
	}
	switch out.Provider {
	case ProviderFashn:
		id, err := s.fashn.Run(ctx, *out.Fashn)
		if err != nil {
			return nil, err
		}
		return &Result{Provider: ProviderFashn, TaskID: id, Status: fashn.StatusStarting}, nil
	default:
		resp, err := s.backend.PostMultipart(ctx, backend.PathTryOnSubmit, out.Form)
		if err != nil {
			return nil, err
		}
		var reply backendReply
		if err := resp.Decode(&reply); err != nil {
			return nil, fmt.Errorf("tryon: decode backend reply: %w", err)
		}
		return reply.result(resp.Body), nil
	}
}

// Query polls a submitted task.
func (s *Service) Query(ctx context.Context, provider, taskID string) (*Result, error) {
	provider, err := NormalizeProvider(provider)
	if err != nil {
		return nil, err
	}
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return nil, ErrMissingTaskID
	}
	if provider == ProviderFashn {
		pred, err := s.fashn.Status(ctx, taskID)
		if err != nil {
			return nil, err
		}
		return &Result{Provider: ProviderFashn, TaskID: pred.ID, Status: pred.Status, Images: pred.Output, Error: pred.ErrorMessage()}, nil
	}
	resp, err := s.backend.Get(ctx, backend.PathTryOnQuery+url.PathEscape(taskID), nil)
	if err != nil {
		return nil, err
	}
	var reply backendReply
	if err := resp.Decode(&reply); err != nil {
		return nil, fmt.Errorf("tryon: decode backend reply: %w", err)
	}
	res := reply.result(resp.Body)
	if res.TaskID == "" {
		res.TaskID = taskID
	}
	return res, nil
}

// FashnReady reports whether Fashn submissions can be made.
func (s *Service) FashnReady() bool {
	return s.fashn != nil && s.fashn.HasCredentials()
}

func (s *Service) resolveImages(ctx context.Context, req *Request) error {
	for _, img := range []*Image{&req.ModelImage, &req.GarmentImage} {
		if len(img.Data) > 0 || strings.TrimSpace(img.URL) == "" {
			continue
		}
		if s.resolve == nil {
			return fmt.Errorf("%w: cannot download %s", ErrMissingImage, img.URL)
		}
		data, mime, err := s.resolve(ctx, img.URL)
		if err != nil {
			return fmt.Errorf("tryon: download %s: %w", img.URL, err)
		}
		img.Data, img.MIME = data, mime
	}
	return nil
}
