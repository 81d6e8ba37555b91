package handlers

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	_ "golang.org/x/image/webp"

	"studio/internal/mask"
	"studio/internal/upload"
)

const maxStrokeBody = 4 << 20

type createMaskRequest struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type strokesRequest struct {
	Strokes []mask.Stroke `json:"strokes"`
}

type exportMaskRequest struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// MaskCreate opens a mask session sized from JSON {width,height} or from the
// dimensions of an uploaded image.
func (a *App) MaskCreate(w http.ResponseWriter, r *http.Request) {
	var width, height int
	if isMultipart(r) {
		if err := a.parseMultipart(w, r); err != nil {
			a.fail(w, r, err)
			return
		}
		img, err := a.requireImagePart(r, "image", "file")
		if err != nil {
			a.fail(w, r, err)
			return
		}
		if width, height, err = imageSize(img); err != nil {
			a.fail(w, r, err)
			return
		}
	} else {
		var req createMaskRequest
		if err := decodeJSON(w, r, maxJSONBody, &req); err != nil {
			a.fail(w, r, err)
			return
		}
		width, height = req.Width, req.Height
	}
	s, err := a.Masks.Create(width, height)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, s.State())
}

func (a *App) MaskGet(w http.ResponseWriter, r *http.Request) {
	s, err := a.Masks.Get(chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, s.State())
}

func (a *App) MaskStrokes(w http.ResponseWriter, r *http.Request) {
	s, err := a.Masks.Get(chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var req strokesRequest
	if err := decodeJSON(w, r, maxStrokeBody, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	if len(req.Strokes) == 0 {
		a.fail(w, r, badRequest("strokes are required"))
		return
	}
	st, err := s.Paint(req.Strokes)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, st)
}

func (a *App) MaskClear(w http.ResponseWriter, r *http.Request) {
	a.maskAction(w, r, func(s *mask.Session) (mask.State, error) { return s.Clear(), nil })
}

func (a *App) MaskInvert(w http.ResponseWriter, r *http.Request) {
	a.maskAction(w, r, func(s *mask.Session) (mask.State, error) { return s.Invert(), nil })
}

func (a *App) MaskUndo(w http.ResponseWriter, r *http.Request) {
	a.maskAction(w, r, (*mask.Session).Undo)
}

func (a *App) MaskRedo(w http.ResponseWriter, r *http.Request) {
	a.maskAction(w, r, (*mask.Session).Redo)
}

func (a *App) maskAction(w http.ResponseWriter, r *http.Request, fn func(*mask.Session) (mask.State, error)) {
	s, err := a.Masks.Get(chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	state, err := fn(s)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, state)
}

// MaskPNG renders the mask, rescaled when ?width=&height= are given.
func (a *App) MaskPNG(w http.ResponseWriter, r *http.Request) {
	s, err := a.Masks.Get(chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	width, err := queryInt(r, "width")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	height, err := queryInt(r, "height")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	data, err := s.PNG(width, height)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// MaskExport stores the rendered mask and returns its public URL.
func (a *App) MaskExport(w http.ResponseWriter, r *http.Request) {
	s, err := a.Masks.Get(chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var req exportMaskRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, maxJSONBody, &req); err != nil {
			a.fail(w, r, err)
			return
		}
	}
	data, err := s.PNG(req.Width, req.Height)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	key, err := a.Files.Write(r.Context(), fmt.Sprintf("masks/%s-%d.png", s.ID(), time.Now().UnixNano()), data)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, map[string]string{"key": key, "url": a.Files.URL(key)})
}

func (a *App) MaskDelete(w http.ResponseWriter, r *http.Request) {
	if err := a.Masks.Delete(chi.URLParam(r, "id")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// maskPart returns the "mask" file part, or renders the session named by
// mask_id at the size of img.
func (a *App) maskPart(r *http.Request, img *upload.File) (*upload.File, error) {
	file, err := a.imagePart(r, "mask")
	if err != nil || file != nil {
		return file, err
	}
	id := formValue(r, "mask_id")
	if id == "" || a.Masks == nil {
		return nil, badRequest("mask file or mask_id is required")
	}
	s, err := a.Masks.Get(id)
	if err != nil {
		return nil, err
	}
	var width, height int
	if img != nil {
		if width, height, err = imageSize(img); err != nil {
			return nil, err
		}
	}
	data, err := s.PNG(width, height)
	if err != nil {
		return nil, err
	}
	return &upload.File{Filename: "mask.png", MIME: "image/png", Data: data}, nil
}

func imageSize(f *upload.File) (int, int, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(f.Data))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: cannot read image dimensions: %v", upload.ErrUnsupportedType, err)
	}
	return cfg.Width, cfg.Height, nil
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, badRequest("%s must be a non-negative integer", name)
	}
	return n, nil
}

