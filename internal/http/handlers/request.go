package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"studio/internal/upload"
)

const (
	multipartMemory = 32 << 20
	maxJSONBody     = 1 << 20
)

// parseMultipart caps the body so that a handful of max-size images fit and
// parses the form. Oversized bodies fail here, before any outbound call.
func (a *App) parseMultipart(w http.ResponseWriter, r *http.Request) error {
	if !isMultipart(r) {
		return badRequest("expected multipart/form-data body")
	}
	r.Body = http.MaxBytesReader(w, r.Body, 3*a.maxUploadBytes()+(1<<20))
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return err
		}
		return badRequest("invalid multipart form: %v", err)
	}
	return nil
}

// imagePart validates the first file present under one of fields. It
// returns nil, nil when none of them was sent.
func (a *App) imagePart(r *http.Request, fields ...string) (*upload.File, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	for _, field := range fields {
		headers := r.MultipartForm.File[field]
		if len(headers) == 0 {
			continue
		}
		return a.Uploads.ReadPart(headers[0])
	}
	return nil, nil
}

// requireImagePart is imagePart with a 400 when the file is missing.
func (a *App) requireImagePart(r *http.Request, fields ...string) (*upload.File, error) {
	file, err := a.imagePart(r, fields...)
	if err != nil {
		return nil, err
	}
	if file == nil {
		return nil, badRequest("%s file is required", fields[0])
	}
	return file, nil
}

// imageValue reads an image given either as a data URI or as a URL string.
// Data URIs are decoded and validated; URLs are returned untouched.
func (a *App) imageValue(name, value string) (*upload.File, string, error) {
	value = strings.TrimSpace(value)
	switch {
	case value == "":
		return nil, "", nil
	case strings.HasPrefix(value, "data:"):
		file, err := a.Uploads.DecodeDataURI(name, value)
		return file, "", err
	case strings.HasPrefix(value, "http://"), strings.HasPrefix(value, "https://"):
		return nil, value, nil
	}
	return nil, "", badRequest("%s must be a data URI or an http(s) URL", name)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, v any) error {
	body, err := readJSON(w, r, limit)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return badRequest("invalid JSON payload: %v", err)
	}
	return nil
}

// readJSON returns the raw body after checking that it is valid JSON.
func readJSON(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, err
		}
		return nil, badRequest("read body: %v", err)
	}
	if !json.Valid(body) {
		return nil, badRequest("invalid JSON payload")
	}
	return body, nil
}

func isMultipart(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "multipart/form-data"
}

func isJSON(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "application/json"
}

// formValue reads a text field from a parsed multipart form.
func formValue(r *http.Request, name string) string {
	if r.MultipartForm == nil {
		return strings.TrimSpace(r.FormValue(name))
	}
	if vs := r.MultipartForm.Value[name]; len(vs) > 0 {
		return strings.TrimSpace(vs[0])
	}
	return ""
}
