package netfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const (
	// MaxImageBytes bounds how much of a remote image is read.
	MaxImageBytes = 25 << 20

	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
)

var (
	ErrInvalidURL    = errors.New("netfetch: invalid image url")
	ErrImageTooLarge = errors.New("netfetch: image exceeds size limit")
)

// Image is a fetched remote image.
type Image struct {
	URL         string
	ContentType string
	Data        []byte
}

// StatusError reports a non-2xx response from the image host.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("netfetch: image host responded %d", e.StatusCode)
}

// ImageFetcher downloads images with browser-like headers; some CDNs refuse
// requests without a User-Agent and Referer.
type ImageFetcher struct {
	client *Client
}

func NewImageFetcher(client *Client) *ImageFetcher {
	return &ImageFetcher{client: client}
}

// Fetch downloads rawURL into memory.
func (f *ImageFetcher) Fetch(ctx context.Context, rawURL string) (*Image, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("netfetch: build request: %w", err)
	}
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Referer", parsed.Scheme+"://"+parsed.Host+"/")
	req.Header.Set("Accept", "image/avif,image/webp,image/apng,image/*,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("netfetch: fetch image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("netfetch: read image: %w", err)
	}
	if len(data) > MaxImageBytes {
		return nil, ErrImageTooLarge
	}

	contentType := strings.TrimSpace(strings.Split(resp.Header.Get("Content-Type"), ";")[0])
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = mimetype.Detect(data).String()
	}
	return &Image{URL: parsed.String(), ContentType: contentType, Data: data}, nil
}
