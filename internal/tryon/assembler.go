// Package tryon assembles and submits virtual try-on requests. Fashn takes a
// JSON body with base64-embedded images; the backend takes multipart uploads.
package tryon

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"studio/internal/backend"
	"studio/internal/providers/fashn"
)

const (
	ProviderBackend = "backend"
	ProviderFashn   = "fashn"
)

var (
	ErrMissingImage        = errors.New("tryon: model and garment images are required")
	ErrUnsupportedProvider = errors.New("tryon: unsupported provider")
	ErrMissingTaskID       = errors.New("tryon: task id is required")
)

// Image is one try-on input. Data wins over URL when both are set.
type Image struct {
	Data     []byte
	MIME     string
	Filename string
	URL      string
}

func (i Image) empty() bool {
	return len(i.Data) == 0 && strings.TrimSpace(i.URL) == ""
}

// dataURI embeds Data, or passes the URL through.
func (i Image) dataURI() string {
	if len(i.Data) == 0 {
		return strings.TrimSpace(i.URL)
	}
	mime := i.MIME
	if mime == "" {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

// Request is a provider-neutral try-on submission.
type Request struct {
	Provider     string
	ModelImage   Image
	GarmentImage Image
	Category     string
	Prompt       string
	Mode         string
	Seed         *int
}

// Outbound is the provider-specific request produced by Assemble. Exactly one
// of Fashn or Form is set.
type Outbound struct {
	Provider string
	Fashn    *fashn.RunRequest
	Form     *backend.Form
}

// NormalizeProvider maps UI provider flags onto the supported providers.
func NormalizeProvider(provider string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "", ProviderBackend, "local", "kolors":
		return ProviderBackend, nil
	case ProviderFashn, "fashn.ai", "fashnai":
		return ProviderFashn, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedProvider, provider)
	}
}

// NormalizeCategory maps free-form garment categories onto Fashn's set.
func NormalizeCategory(category string) string {
	switch strings.ToLower(strings.TrimSpace(category)) {
	case "bottoms", "bottom", "lower_body", "pants", "skirt":
		return "bottoms"
	case "one-pieces", "one-piece", "dresses", "dress", "full_body":
		return "one-pieces"
	default:
		return "tops"
	}
}

// Assemble builds the outbound request for the selected provider. URL-only
// images must already be resolved to bytes for the backend path; Fashn
// accepts URLs directly.
func Assemble(req Request) (*Outbound, error) {
	provider, err := NormalizeProvider(req.Provider)
	if err != nil {
		return nil, err
	}
	if req.ModelImage.empty() || req.GarmentImage.empty() {
		return nil, ErrMissingImage
	}
	category := NormalizeCategory(req.Category)

	switch provider {
	case ProviderFashn:
		run := &fashn.RunRequest{
			ModelImage:   req.ModelImage.dataURI(),
			GarmentImage: req.GarmentImage.dataURI(),
			Category:     category,
			Mode:         strings.TrimSpace(req.Mode),
			Seed:         req.Seed,
		}
		return &Outbound{Provider: provider, Fashn: run}, nil
	default:
		if len(req.ModelImage.Data) == 0 || len(req.GarmentImage.Data) == 0 {
			return nil, fmt.Errorf("%w: backend needs image bytes", ErrMissingImage)
		}
		form := backend.NewForm().
			Set("category", category).
			Set("prompt", strings.TrimSpace(req.Prompt)).
			AddFile(fileFor("model_image", req.ModelImage)).
			AddFile(fileFor("garment_image", req.GarmentImage))
		if req.Seed != nil {
			form.Set("seed", fmt.Sprint(*req.Seed))
		}
		return &Outbound{Provider: provider, Form: form}, nil
	}
}

func fileFor(field string, img Image) backend.FormFile {
	name := img.Filename
	if name == "" {
		name = field + ".png"
	}
	return backend.FormFile{Field: field, Filename: name, MIME: img.MIME, Data: img.Data}
}

// Result is the provider-neutral submission/status answer.
type Result struct {
	Provider string          `json:"provider"`
	TaskID   string          `json:"task_id"`
	Status   string          `json:"status"`
	Images   []string        `json:"images,omitempty"`
	Error    string          `json:"error,omitempty"`
	Raw      json.RawMessage `json:"raw,omitempty"`
}
