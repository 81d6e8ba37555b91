package bria

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Options{APIToken: "bria-token", BaseURL: srv.URL, HTTPClient: srv.Client()})
}

func TestReplaceBackgroundEmbedsFile(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/background/replace" || r.Header.Get("api_token") != "bria-token" {
			t.Errorf("path=%s token=%q", r.URL.Path, r.Header.Get("api_token"))
		}
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		if payload["file"] != base64.StdEncoding.EncodeToString([]byte("img")) {
			t.Errorf("file = %v", payload["file"])
		}
		if payload["num_results"] != float64(4) {
			t.Errorf("num_results = %v, want clamp to 4", payload["num_results"])
		}
		_, _ = w.Write([]byte(`{"result":[["https://bria/1.png",123,"a"],["https://bria/2.png",456,"b"]]}`))
	})

	urls, err := client.ReplaceBackground(context.Background(), ReplaceRequest{Image: Image{Data: []byte("img")}, Prompt: "beach at sunset", NumResults: 9})
	if err != nil {
		t.Fatalf("ReplaceBackground error: %v", err)
	}
	if len(urls) != 2 || urls[0] != "https://bria/1.png" {
		t.Fatalf("urls = %v", urls)
	}
}

func TestGenerateImages(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		if payload["prompt"] != "female model wearing linen dress" || payload["num_results"] != float64(1) {
			t.Errorf("payload = %v", payload)
		}
		_, _ = w.Write([]byte(`{"result":[{"urls":["https://bria/m1.png"]}]}`))
	})
	urls, err := client.GenerateImages(context.Background(), GenerateRequest{Prompt: "female model wearing linen dress"})
	if err != nil {
		t.Fatalf("GenerateImages error: %v", err)
	}
	if len(urls) != 1 {
		t.Fatalf("urls = %v", urls)
	}
}

func TestRemoveBackgroundEmptyResult(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	if _, err := client.RemoveBackground(context.Background(), Image{URL: "https://cdn/x.png"}); !errors.Is(err, ErrEmptyResult) {
		t.Fatalf("error = %v, want ErrEmptyResult", err)
	}
}

func TestAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"image too small"}`))
	})
	_, err := client.RemoveBackground(context.Background(), Image{Data: []byte("x")})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "image too small" {
		t.Fatalf("error = %v", err)
	}
}

func TestMissingToken(t *testing.T) {
	client := NewClient(Options{})
	if _, err := client.GenerateImages(context.Background(), GenerateRequest{Prompt: "x"}); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("error = %v", err)
	}
}
