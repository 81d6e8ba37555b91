package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"studio/internal/backend"
	"studio/internal/providers/bria"
	"studio/internal/providers/removebg"
	"studio/internal/tryon"
)

type filePart struct {
	field    string
	filename string
	data     []byte
}

func pngOf(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func multipartRequest(t *testing.T, target string, files []filePart, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range files {
		w, err := mw.CreateFormFile(f.field, f.filename)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		_, _ = w.Write(f.data)
	}
	for k, v := range fields {
		_ = mw.WriteField(k, v)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

type stubBackend struct {
	calls    int
	path     string
	form     *backend.Form
	payload  any
	query    url.Values
	response *backend.Response
	err      error
}

func (s *stubBackend) reply() (*backend.Response, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.response != nil {
		return s.response, nil
	}
	return &backend.Response{Status: http.StatusOK, Body: []byte(`{"ok":true}`)}, nil
}

func (s *stubBackend) PostJSON(ctx context.Context, path string, payload any) (*backend.Response, error) {
	s.calls++
	s.path, s.payload = path, payload
	return s.reply()
}

func (s *stubBackend) PostMultipart(ctx context.Context, path string, form *backend.Form) (*backend.Response, error) {
	s.calls++
	s.path, s.form = path, form
	return s.reply()
}

func (s *stubBackend) Get(ctx context.Context, path string, query url.Values) (*backend.Response, error) {
	s.calls++
	s.path, s.query = path, query
	return s.reply()
}

type stubRemover struct {
	key   bool
	calls int
	in    removebg.Input
}

func (s *stubRemover) HasCredentials() bool { return s.key }

func (s *stubRemover) RemoveBackground(ctx context.Context, in removebg.Input) (*removebg.Result, error) {
	s.calls++
	s.in = in
	return &removebg.Result{Data: []byte("cutout"), ContentType: "image/png"}, nil
}

type stubBria struct {
	key      bool
	generate bria.GenerateRequest
	replace  bria.ReplaceRequest
}

func (s *stubBria) HasCredentials() bool { return s.key }

func (s *stubBria) RemoveBackground(ctx context.Context, img bria.Image) (string, error) {
	return "https://cdn.bria/cutout.png", nil
}

func (s *stubBria) ReplaceBackground(ctx context.Context, req bria.ReplaceRequest) ([]string, error) {
	s.replace = req
	return []string{"https://cdn.bria/bg-1.png"}, nil
}

func (s *stubBria) GenerateImages(ctx context.Context, req bria.GenerateRequest) ([]string, error) {
	s.generate = req
	return []string{"https://cdn.bria/model-1.png", "https://cdn.bria/model-2.png"}, nil
}

type stubTryOn struct {
	fashn bool
	calls int
	req   tryon.Request
}

func (s *stubTryOn) Submit(ctx context.Context, req tryon.Request) (*tryon.Result, error) {
	s.calls++
	s.req = req
	return &tryon.Result{Provider: req.Provider, TaskID: "task-1", Status: "submitted"}, nil
}

func (s *stubTryOn) Query(ctx context.Context, provider, taskID string) (*tryon.Result, error) {
	return &tryon.Result{Provider: provider, TaskID: taskID, Status: "completed", Images: []string{"https://img/out.png"}}, nil
}

func (s *stubTryOn) FashnReady() bool { return s.fashn }

func base64Std(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}
