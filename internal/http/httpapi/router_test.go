package httpapi

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"studio/internal/backend"
	"studio/internal/gallery"
	"studio/internal/http/handlers"
	"studio/internal/infra"
	"studio/internal/mask"
	"studio/internal/netfetch"
	"studio/internal/products"
	"studio/internal/statestore"
	"studio/internal/storage"
	"studio/internal/upload"
)

func tinyPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 3, 3))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func newTestServer(t *testing.T, backendURL string) *httptest.Server {
	t.Helper()
	logger := infra.DiscardLogger()
	fetch := netfetch.NewClient(nil, 5*time.Second, logger)
	files, err := storage.NewFileStore(t.TempDir(), "http://gateway.test/static")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	state := statestore.NewMemory()
	app := &handlers.App{
		Config:   &infra.Config{BackendURL: backendURL},
		Logger:   logger,
		Backend:  backend.NewClient(backendURL, fetch, logger),
		Images:   netfetch.NewImageFetcher(fetch),
		Uploads:  upload.NewValidator(upload.DefaultMaxBytes),
		Gallery:  gallery.NewService(state),
		Products: products.NewService(state),
		Masks:    mask.NewManager(mask.Options{TTL: time.Minute, Logger: logger}),
		Files:    files,
	}
	srv := httptest.NewServer(NewRouter(app, Options{
		Logger:          *logger,
		JWTSecret:       "test-secret",
		AllowedOrigins:  []string{"http://localhost:3000"},
		RateLimitPerMin: 1000,
		StaticDir:       files.BasePath(),
	}))
	t.Cleanup(srv.Close)
	return srv
}

func postImage(t *testing.T, url, field string, data []byte) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	w, _ := mw.CreateFormFile(field, "photo.png")
	_, _ = w.Write(data)
	_ = mw.Close()
	resp, err := http.Post(url, mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func errorBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body["error"]
}

func TestForwardNonJSONUpstreamReturns500(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, "<html>Internal Server Error</html>")
	}))
	defer upstream.Close()
	srv := newTestServer(t, upstream.URL)

	resp := postImage(t, srv.URL+"/api/tagging", "image", tinyPNG(t))
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
	if msg := errorBody(t, resp); msg == "" {
		t.Fatal("expected error message")
	}
}

func TestForwardUnreachableBackendReturns500(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	dead := upstream.URL
	upstream.Close()
	srv := newTestServer(t, dead)

	resp := postImage(t, srv.URL+"/api/upload/file", "file", tinyPNG(t))
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
	if errorBody(t, resp) == "" {
		t.Fatal("expected error message")
	}
}

func TestForwardPassesJSONThrough(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tagging" {
			t.Errorf("backend path = %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil || r.MultipartForm.File["file"] == nil {
			t.Errorf("expected file part, err = %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"tags":["shirt","linen"]}`)
	}))
	defer upstream.Close()
	srv := newTestServer(t, upstream.URL)

	resp := postImage(t, srv.URL+"/api/tagging", "image", tinyPNG(t))
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "linen") {
		t.Fatalf("status = %d body = %s", resp.StatusCode, body)
	}
}

func TestForwardKeepsBackendErrorStatus(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = io.WriteString(w, `{"detail":"image too small"}`)
	}))
	defer upstream.Close()
	srv := newTestServer(t, upstream.URL)

	resp := postImage(t, srv.URL+"/api/tagging", "image", tinyPNG(t))
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if msg := errorBody(t, resp); msg != "image too small" {
		t.Fatalf("error = %q", msg)
	}
}

func TestGalleryRequiresIdentity(t *testing.T) {
	srv := newTestServer(t, "http://localhost:8000")
	resp, err := http.Get(srv.URL + "/api/gallery")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if errorBody(t, resp) == "" {
		t.Fatal("expected error message")
	}
}

func doJSON(t *testing.T, method, url, client, body string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(method, url, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if client != "" {
		req.Header.Set("X-Client-ID", client)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	return resp
}

func TestGalleryFlowAndExport(t *testing.T) {
	imgSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(tinyPNG(t))
	}))
	defer imgSrv.Close()
	srv := newTestServer(t, "http://localhost:8000")

	for i := 0; i < gallery.MaxItems+3; i++ {
		resp := doJSON(t, http.MethodPost, srv.URL+"/api/gallery", "client-a",
			`{"type":"virtual-tryon","images":["`+imgSrv.URL+`/out.png"]}`)
		resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("add #%d status = %d", i, resp.StatusCode)
		}
	}

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/gallery", "client-a", "")
	var list struct {
		Items []gallery.Item `json:"items"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&list)
	resp.Body.Close()
	if len(list.Items) != gallery.MaxItems {
		t.Fatalf("items = %d, want %d", len(list.Items), gallery.MaxItems)
	}

	other := doJSON(t, http.MethodGet, srv.URL+"/api/gallery", "client-b", "")
	var otherList struct {
		Items []gallery.Item `json:"items"`
	}
	_ = json.NewDecoder(other.Body).Decode(&otherList)
	other.Body.Close()
	if len(otherList.Items) != 0 {
		t.Fatalf("client-b sees %d items", len(otherList.Items))
	}

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/gallery/export", "client-a", "")
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.Header.Get("Content-Type") != "application/zip" {
		t.Fatalf("content type = %q", resp.Header.Get("Content-Type"))
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	if len(zr.File) != gallery.MaxItems+1 || zr.File[0].Name != "gallery.json" {
		t.Fatalf("zip entries = %d, first = %s", len(zr.File), zr.File[0].Name)
	}

	resp = doJSON(t, http.MethodDelete, srv.URL+"/api/gallery/"+list.Items[0].ID, "client-a", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	resp = doJSON(t, http.MethodDelete, srv.URL+"/api/gallery/"+list.Items[0].ID, "client-a", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second delete status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestProductsCRUD(t *testing.T) {
	srv := newTestServer(t, "http://localhost:8000")

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/products", "shop", `{"name":"Canvas Tote","price":25}`)
	var created products.Product
	_ = json.NewDecoder(resp.Body).Decode(&created)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated || created.ID == "" || created.Currency != "USD" {
		t.Fatalf("create status = %d product = %+v", resp.StatusCode, created)
	}

	resp = doJSON(t, http.MethodPut, srv.URL+"/api/products/"+created.ID, "shop", `{"name":"Canvas Tote XL","price":30}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update status = %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/products", "shop", `{"price":1}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid create status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/products/catalog", "shop", "")
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil || len(zr.File) != 1 || zr.File[0].Name != "catalog.json" {
		t.Fatalf("catalog zip err = %v", err)
	}

	resp = doJSON(t, http.MethodDelete, srv.URL+"/api/products/"+created.ID, "shop", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
}

func TestMaskRoutesUndoAndExport(t *testing.T) {
	srv := newTestServer(t, "http://localhost:8000")

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/masks", "", `{"width":64,"height":32}`)
	var state mask.State
	_ = json.NewDecoder(resp.Body).Decode(&state)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated || state.Width != 64 {
		t.Fatalf("create status = %d state = %+v", resp.StatusCode, state)
	}
	base := srv.URL + "/api/masks/" + state.ID

	pngBefore := fetchBytes(t, base+"/mask.png")

	resp = doJSON(t, http.MethodPost, base+"/strokes", "",
		`{"strokes":[{"points":[{"x":10,"y":5},{"x":20,"y":10}],"brushSize":6,"displayWidth":32,"displayHeight":16}]}`)
	_ = json.NewDecoder(resp.Body).Decode(&state)
	resp.Body.Close()
	if state.Coverage == 0 || !state.CanUndo {
		t.Fatalf("after stroke state = %+v", state)
	}

	resp = doJSON(t, http.MethodPost, base+"/undo", "", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("undo status = %d", resp.StatusCode)
	}
	if !bytes.Equal(pngBefore, fetchBytes(t, base+"/mask.png")) {
		t.Fatal("undo did not restore the blank mask")
	}

	resp = doJSON(t, http.MethodPost, base+"/undo", "", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("extra undo status = %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodPost, base+"/export", "", `{"width":128,"height":64}`)
	var exported map[string]string
	_ = json.NewDecoder(resp.Body).Decode(&exported)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated || !strings.HasPrefix(exported["url"], "http://gateway.test/static/masks/") {
		t.Fatalf("export status = %d body = %v", resp.StatusCode, exported)
	}
	stored := fetchBytes(t, srv.URL+"/static/"+exported["key"])
	cfg, err := png.DecodeConfig(bytes.NewReader(stored))
	if err != nil || cfg.Width != 128 || cfg.Height != 64 {
		t.Fatalf("stored mask %dx%d err = %v", cfg.Width, cfg.Height, err)
	}

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/masks/unknown", "", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown mask status = %d", resp.StatusCode)
	}
}

func TestMaskStrokesRejectsOutOfRangePoints(t *testing.T) {
	srv := newTestServer(t, "http://localhost:8000")

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/masks", "", `{"width":100,"height":100}`)
	var state mask.State
	_ = json.NewDecoder(resp.Body).Decode(&state)
	resp.Body.Close()
	base := srv.URL + "/api/masks/" + state.ID

	resp = doJSON(t, http.MethodPost, base+"/strokes", "",
		`{"strokes":[{"points":[{"x":0,"y":0},{"x":1e12,"y":0}],"brushSize":1,"displayWidth":100,"displayHeight":100}]}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, base, "", "")
	_ = json.NewDecoder(resp.Body).Decode(&state)
	resp.Body.Close()
	if state.CanUndo || state.Coverage != 0 {
		t.Fatalf("rejected strokes changed the mask: %+v", state)
	}
}

func TestProxyImageSetsCacheHeaders(t *testing.T) {
	imgSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(tinyPNG(t))
	}))
	defer imgSrv.Close()
	srv := newTestServer(t, "http://localhost:8000")

	resp, err := http.Get(srv.URL + "/api/proxy-image?url=" + imgSrv.URL + "/a.png")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Cache-Control") != "public, max-age=3600" {
		t.Fatalf("status = %d cache = %q", resp.StatusCode, resp.Header.Get("Cache-Control"))
	}

	resp, _ = http.Get(srv.URL + "/api/proxy-image")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing url status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func fetchBytes(t *testing.T, url string) []byte {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s status = %d", url, resp.StatusCode)
	}
	data, _ := io.ReadAll(resp.Body)
	return data
}
