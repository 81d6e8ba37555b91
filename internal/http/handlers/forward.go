package handlers

import (
	"net/http"
	"net/url"
	"strconv"

	"studio/internal/backend"
	"studio/internal/upload"
)

// multipartRoute describes a multipart form forwarded to the backend.
type multipartRoute struct {
	path     string
	image    bool     // requires an "image" (or "file") part
	mask     bool     // requires a "mask" part or a mask session id
	fields   []string // text fields copied as-is
	required []string // text fields that must be non-empty
	rename   map[string]string
}

var (
	replaceBackgroundRoute = multipartRoute{
		path:     backend.PathReplaceBackground,
		image:    true,
		fields:   []string{"prompt", "negative_prompt"},
		required: []string{"prompt"},
		rename:   map[string]string{"image": "file"},
	}
	eraserRoute = multipartRoute{
		path:  backend.PathEraser,
		image: true,
		mask:  true,
	}
	generativeFillRoute = multipartRoute{
		path:     backend.PathGenerativeFill,
		image:    true,
		mask:     true,
		fields:   []string{"prompt", "negative_prompt"},
		required: []string{"prompt"},
	}
	taggingRoute = multipartRoute{
		path:   backend.PathTagging,
		image:  true,
		rename: map[string]string{"image": "file"},
	}
)

func (a *App) ReplaceBackground(w http.ResponseWriter, r *http.Request) {
	a.forwardMultipart(w, r, replaceBackgroundRoute)
}

func (a *App) Eraser(w http.ResponseWriter, r *http.Request) {
	a.forwardMultipart(w, r, eraserRoute)
}

func (a *App) GenerativeFill(w http.ResponseWriter, r *http.Request) {
	a.forwardMultipart(w, r, generativeFillRoute)
}

func (a *App) Tagging(w http.ResponseWriter, r *http.Request) {
	a.forwardMultipart(w, r, taggingRoute)
}

func (a *App) forwardMultipart(w http.ResponseWriter, r *http.Request, route multipartRoute) {
	if err := a.parseMultipart(w, r); err != nil {
		a.fail(w, r, err)
		return
	}
	form, err := a.buildForm(r, route)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if route.rename != nil {
		form.Rename(route.rename)
	}
	resp, err := a.Backend.PostMultipart(r.Context(), route.path, form)
	a.relay(w, r, resp, err)
}

func (a *App) buildForm(r *http.Request, route multipartRoute) (*backend.Form, error) {
	form := backend.NewForm()
	var img *upload.File
	if route.image {
		var err error
		if img, err = a.requireImagePart(r, "image", "file"); err != nil {
			return nil, err
		}
		form.AddFile(formFile("image", img))
	}
	if route.mask {
		mask, err := a.maskPart(r, img)
		if err != nil {
			return nil, err
		}
		form.AddFile(formFile("mask", mask))
	}
	for _, name := range route.required {
		if formValue(r, name) == "" {
			return nil, badRequest("%s is required", name)
		}
	}
	for _, name := range route.fields {
		form.Set(name, formValue(r, name))
	}
	return form, nil
}

// Upscale forwards an image with a scale factor of 2 or 4.
func (a *App) Upscale(w http.ResponseWriter, r *http.Request) {
	if err := a.parseMultipart(w, r); err != nil {
		a.fail(w, r, err)
		return
	}
	scale := 2
	if raw := formValue(r, "scale"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || (n != 2 && n != 4) {
			a.fail(w, r, badRequest("scale must be 2 or 4"))
			return
		}
		scale = n
	}
	img, err := a.requireImagePart(r, "image", "file")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	form := backend.NewForm().
		AddFile(formFile("image", img)).
		Set("scale", strconv.Itoa(scale))
	resp, err := a.Backend.PostMultipart(r.Context(), backend.PathUpscale, form)
	a.relay(w, r, resp, err)
}

type base64UploadRequest struct {
	Image    string `json:"image"`
	Filename string `json:"filename"`
}

// UploadBase64 validates a data URI upload and forwards it re-encoded.
func (a *App) UploadBase64(w http.ResponseWriter, r *http.Request) {
	var req base64UploadRequest
	// base64 inflates by 4/3; leave room for the JSON envelope.
	if err := decodeJSON(w, r, a.maxUploadBytes()*4/3+(64<<10), &req); err != nil {
		a.fail(w, r, err)
		return
	}
	if req.Image == "" {
		a.fail(w, r, badRequest("image is required"))
		return
	}
	file, err := a.Uploads.DecodeDataURI(req.Filename, req.Image)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	resp, err := a.Backend.PostJSON(r.Context(), backend.PathUploadBase64, base64UploadRequest{
		Image:    file.DataURI(),
		Filename: file.Filename,
	})
	a.relay(w, r, resp, err)
}

func (a *App) UploadFile(w http.ResponseWriter, r *http.Request) {
	if err := a.parseMultipart(w, r); err != nil {
		a.fail(w, r, err)
		return
	}
	file, err := a.requireImagePart(r, "file", "image")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	resp, err := a.Backend.PostMultipart(r.Context(), backend.PathUploadFile, backend.NewForm().AddFile(formFile("file", file)))
	a.relay(w, r, resp, err)
}

// TryOnExecute passes a JSON body through unchanged.
func (a *App) TryOnExecute(w http.ResponseWriter, r *http.Request) {
	body, err := readJSON(w, r, maxJSONBody)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	resp, err := a.Backend.PostJSON(r.Context(), backend.PathTryOnExecute, body)
	a.relay(w, r, resp, err)
}

func (a *App) TryOnGallery(w http.ResponseWriter, r *http.Request) {
	query := url.Values{}
	for k, vs := range r.URL.Query() {
		query[k] = vs
	}
	resp, err := a.Backend.Get(r.Context(), backend.PathTryOnGallery, query)
	a.relay(w, r, resp, err)
}

// relay writes a backend reply or the failure envelope.
func (a *App) relay(w http.ResponseWriter, r *http.Request, resp *backend.Response, err error) {
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.raw(w, resp.Status, resp.Body)
}

func formFile(field string, f *upload.File) backend.FormFile {
	return backend.FormFile{Field: field, Filename: f.Filename, MIME: f.MIME, Data: f.Data}
}
