package handlers

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"studio/internal/backend"
	"studio/internal/providers/bria"
	"studio/internal/providers/removebg"
	"studio/internal/upload"
)

const (
	providerRemoveBG = "removebg"
	providerBria     = "bria"
	providerBackend  = "backend"
)

// imageRequest is an image tool call sent either as multipart or as JSON.
type imageRequest struct {
	File           *upload.File
	URL            string
	Provider       string
	Prompt         string
	NegativePrompt string
	NumResults     int
}

type imageRequestJSON struct {
	Image          string `json:"image"`
	ImageURL       string `json:"image_url"`
	Provider       string `json:"provider"`
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt"`
	NumResults     int    `json:"num_results"`
}

func (a *App) readImageRequest(w http.ResponseWriter, r *http.Request) (*imageRequest, error) {
	if isJSON(r) {
		var body imageRequestJSON
		if err := decodeJSON(w, r, a.maxUploadBytes()*4/3+(64<<10), &body); err != nil {
			return nil, err
		}
		file, url, err := a.imageValue("image", body.Image)
		if err != nil {
			return nil, err
		}
		if url == "" {
			url = strings.TrimSpace(body.ImageURL)
		}
		return &imageRequest{
			File:           file,
			URL:            url,
			Provider:       strings.ToLower(strings.TrimSpace(body.Provider)),
			Prompt:         strings.TrimSpace(body.Prompt),
			NegativePrompt: strings.TrimSpace(body.NegativePrompt),
			NumResults:     body.NumResults,
		}, nil
	}
	if err := a.parseMultipart(w, r); err != nil {
		return nil, err
	}
	file, err := a.imagePart(r, "image", "file")
	if err != nil {
		return nil, err
	}
	n, _ := strconv.Atoi(formValue(r, "num_results"))
	return &imageRequest{
		File:           file,
		URL:            formValue(r, "image_url"),
		Provider:       strings.ToLower(formValue(r, "provider")),
		Prompt:         formValue(r, "prompt"),
		NegativePrompt: formValue(r, "negative_prompt"),
		NumResults:     n,
	}, nil
}

func (req *imageRequest) requireImage() error {
	if req.File == nil && req.URL == "" {
		return badRequest("image file or image_url is required")
	}
	return nil
}

func (req *imageRequest) briaImage() bria.Image {
	if req.File != nil {
		return bria.Image{Data: req.File.Data, Filename: req.File.Filename, MIME: req.File.MIME}
	}
	return bria.Image{URL: req.URL}
}

// RemoveBackground cuts out the subject with remove.bg, or Bria when asked.
func (a *App) RemoveBackground(w http.ResponseWriter, r *http.Request) {
	req, err := a.readImageRequest(w, r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := req.requireImage(); err != nil {
		a.fail(w, r, err)
		return
	}

	switch strings.ReplaceAll(req.Provider, ".", "") {
	case "", providerRemoveBG:
		if a.RemoveBG == nil || !a.RemoveBG.HasCredentials() {
			a.fail(w, r, removebg.ErrMissingAPIKey)
			return
		}
		in := removebg.Input{ImageURL: req.URL}
		if req.File != nil {
			in = removebg.Input{Data: req.File.Data, Filename: req.File.Filename, MIME: req.File.MIME}
		}
		res, err := a.RemoveBG.RemoveBackground(r.Context(), in)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		contentType := res.ContentType
		if contentType == "" {
			contentType = "image/png"
		}
		a.json(w, http.StatusOK, map[string]any{
			"image":    "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(res.Data),
			"provider": providerRemoveBG,
		})
	case providerBria:
		if a.Bria == nil || !a.Bria.HasCredentials() {
			a.fail(w, r, bria.ErrMissingAPIKey)
			return
		}
		url, err := a.Bria.RemoveBackground(r.Context(), req.briaImage())
		if err != nil {
			a.fail(w, r, err)
			return
		}
		a.json(w, http.StatusOK, map[string]any{"image": url, "provider": providerBria})
	default:
		a.fail(w, r, badRequest("unsupported provider %q", req.Provider))
	}
}

// GenerateBackground places the product on prompted backgrounds via Bria.
func (a *App) GenerateBackground(w http.ResponseWriter, r *http.Request) {
	req, err := a.readImageRequest(w, r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := req.requireImage(); err != nil {
		a.fail(w, r, err)
		return
	}
	if req.Prompt == "" {
		a.fail(w, r, badRequest("prompt is required"))
		return
	}
	if a.Bria == nil || !a.Bria.HasCredentials() {
		a.fail(w, r, bria.ErrMissingAPIKey)
		return
	}
	images, err := a.Bria.ReplaceBackground(r.Context(), bria.ReplaceRequest{
		Image:          req.briaImage(),
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		NumResults:     req.NumResults,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"images": images, "provider": providerBria})
}

type generateModelRequest struct {
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt"`
	Provider       string `json:"provider"`
	AspectRatio    string `json:"aspect_ratio"`
	NumResults     int    `json:"num_results"`
}

// GenerateModel produces fashion model shots from a prompt. The backend
// receives the original body; Bria gets a text-to-image call.
func (a *App) GenerateModel(w http.ResponseWriter, r *http.Request) {
	body, err := readJSON(w, r, maxJSONBody)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var req generateModelRequest
	if err := json.Unmarshal(body, &req); err != nil {
		a.fail(w, r, badRequest("invalid JSON payload: %v", err))
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		a.fail(w, r, badRequest("prompt is required"))
		return
	}

	switch strings.ToLower(strings.TrimSpace(req.Provider)) {
	case providerBria:
		if a.Bria == nil || !a.Bria.HasCredentials() {
			a.fail(w, r, bria.ErrMissingAPIKey)
			return
		}
		images, err := a.Bria.GenerateImages(r.Context(), bria.GenerateRequest{
			Prompt:         req.Prompt,
			NegativePrompt: req.NegativePrompt,
			AspectRatio:    req.AspectRatio,
			NumResults:     req.NumResults,
		})
		if err != nil {
			a.fail(w, r, err)
			return
		}
		a.json(w, http.StatusOK, map[string]any{"images": images, "provider": providerBria})
	case "", providerBackend:
		resp, err := a.Backend.PostJSON(r.Context(), backend.PathGenerateModel, json.RawMessage(body))
		a.relay(w, r, resp, err)
	default:
		a.fail(w, r, badRequest("unsupported provider %q", req.Provider))
	}
}
