package handlers

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"studio/pkg/zip"
)

// loadImage returns the bytes behind an image reference stored in client
// state: either an inline data URI or a remote URL.
func (a *App) loadImage(ctx context.Context, ref string) ([]byte, string, error) {
	ref = strings.TrimSpace(ref)
	if strings.HasPrefix(ref, "data:") {
		meta, payload, ok := strings.Cut(strings.TrimPrefix(ref, "data:"), ",")
		if !ok || !strings.HasSuffix(meta, ";base64") {
			return nil, "", fmt.Errorf("unsupported data URI")
		}
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, "", fmt.Errorf("decode data URI: %w", err)
		}
		return data, mimetype.Detect(data).String(), nil
	}
	img, err := a.Images.Fetch(ctx, ref)
	if err != nil {
		return nil, "", err
	}
	return img.Data, img.ContentType, nil
}

// assetName builds "<prefix>-<n><ext>" using the extension of mime.
func assetName(prefix string, n int, mime string) string {
	ext := ".bin"
	if m := mimetype.Lookup(strings.TrimSpace(strings.Split(mime, ";")[0])); m != nil && m.Extension() != "" {
		ext = m.Extension()
	}
	return fmt.Sprintf("%s-%d%s", prefix, n, ext)
}

// collectAssets downloads refs into zip entries under dir. Failed downloads
// are logged and skipped so one dead link does not sink the export.
func (a *App) collectAssets(r *http.Request, dir string, refs []string) []zip.Asset {
	assets := make([]zip.Asset, 0, len(refs))
	for i, ref := range refs {
		data, mime, err := a.loadImage(r.Context(), ref)
		if err != nil {
			a.logger().Warn().Err(err).Str("image", truncate(ref, 120)).Msg("export: skip image")
			continue
		}
		assets = append(assets, zip.Asset{Filename: dir + "/" + assetName("image", i+1, mime), MIME: mime, Data: data})
	}
	return assets
}

func (a *App) sendZip(w http.ResponseWriter, r *http.Request, filename string, assets []zip.Asset) {
	archive, err := zip.ArchiveAssets(assets, time.Now())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
