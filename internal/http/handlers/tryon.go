package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"studio/internal/providers/fashn"
	"studio/internal/tryon"
	"studio/internal/upload"
)

type tryOnJSON struct {
	Provider     string `json:"provider"`
	ModelImage   string `json:"model_image"`
	GarmentImage string `json:"garment_image"`
	Category     string `json:"category"`
	Prompt       string `json:"prompt"`
	Mode         string `json:"mode"`
	Seed         *int   `json:"seed"`
}

// TryOnSubmit starts a virtual try-on with the backend or Fashn.
func (a *App) TryOnSubmit(w http.ResponseWriter, r *http.Request) {
	req, err := a.readTryOnRequest(w, r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	provider, err := tryon.NormalizeProvider(req.Provider)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if provider == tryon.ProviderFashn && !a.TryOn.FashnReady() {
		a.fail(w, r, fashn.ErrMissingAPIKey)
		return
	}
	req.Provider = provider
	res, err := a.TryOn.Submit(r.Context(), *req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	res.Raw = nil
	a.json(w, http.StatusOK, res)
}

// TryOnQuery polls a try-on task. The provider comes from ?provider=.
func (a *App) TryOnQuery(w http.ResponseWriter, r *http.Request) {
	res, err := a.TryOn.Query(r.Context(), r.URL.Query().Get("provider"), chi.URLParam(r, "taskID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	res.Raw = nil
	a.json(w, http.StatusOK, res)
}

func (a *App) readTryOnRequest(w http.ResponseWriter, r *http.Request) (*tryon.Request, error) {
	if isJSON(r) {
		var body tryOnJSON
		if err := decodeJSON(w, r, 2*a.maxUploadBytes()*4/3+(64<<10), &body); err != nil {
			return nil, err
		}
		model, err := a.tryOnImage("model_image", body.ModelImage)
		if err != nil {
			return nil, err
		}
		garment, err := a.tryOnImage("garment_image", body.GarmentImage)
		if err != nil {
			return nil, err
		}
		return &tryon.Request{
			Provider:     body.Provider,
			ModelImage:   model,
			GarmentImage: garment,
			Category:     body.Category,
			Prompt:       body.Prompt,
			Mode:         body.Mode,
			Seed:         body.Seed,
		}, nil
	}

	if err := a.parseMultipart(w, r); err != nil {
		return nil, err
	}
	model, err := a.tryOnPart(r, "model_image")
	if err != nil {
		return nil, err
	}
	garment, err := a.tryOnPart(r, "garment_image")
	if err != nil {
		return nil, err
	}
	req := &tryon.Request{
		Provider:     formValue(r, "provider"),
		ModelImage:   model,
		GarmentImage: garment,
		Category:     formValue(r, "category"),
		Prompt:       formValue(r, "prompt"),
		Mode:         formValue(r, "mode"),
	}
	if raw := formValue(r, "seed"); raw != "" {
		seed, err := strconv.Atoi(raw)
		if err != nil {
			return nil, badRequest("seed must be an integer")
		}
		req.Seed = &seed
	}
	return req, nil
}

func (a *App) tryOnImage(name, value string) (tryon.Image, error) {
	file, url, err := a.imageValue(name, value)
	if err != nil {
		return tryon.Image{}, err
	}
	if file != nil {
		return imageFromUpload(file), nil
	}
	return tryon.Image{URL: url}, nil
}

// tryOnPart reads <name> as a file part, falling back to <name>_url.
func (a *App) tryOnPart(r *http.Request, name string) (tryon.Image, error) {
	file, err := a.imagePart(r, name)
	if err != nil {
		return tryon.Image{}, err
	}
	if file != nil {
		return imageFromUpload(file), nil
	}
	return a.tryOnImage(name+"_url", formValue(r, name+"_url"))
}

func imageFromUpload(f *upload.File) tryon.Image {
	return tryon.Image{Data: f.Data, MIME: f.MIME, Filename: f.Filename}
}
