package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"studio/internal/backend"
	"studio/internal/gallery"
	"studio/internal/mask"
	"studio/internal/middleware"
	"studio/internal/netfetch"
	"studio/internal/products"
	"studio/internal/providers/bria"
	"studio/internal/providers/fashn"
	"studio/internal/providers/removebg"
	"studio/internal/storage"
	"studio/internal/tryon"
	"studio/internal/upload"
)

// requestError is a client mistake detected by the handler itself.
type requestError struct {
	status int
	msg    string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &requestError{status: http.StatusBadRequest, msg: fmt.Sprintf(format, args...)}
}

// fail logs err and answers with the matching status and error envelope.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	ev := a.logger().Warn()
	if status >= http.StatusInternalServerError {
		ev = a.logger().Error()
	}
	ev.Err(err).
		Str("request_id", middleware.RequestIDFromContext(r.Context())).
		Str("route", r.URL.Path).
		Int("status", status).
		Msg("request failed")
	a.error(w, status, msg)
}

func statusFor(err error) (int, string) {
	var (
		reqErr   *requestError
		upErr    *backend.UpstreamError
		maxErr   *http.MaxBytesError
		rbErr    *removebg.APIError
		fashnErr *fashn.APIError
		briaErr  *bria.APIError
	)
	switch {
	case errors.As(err, &reqErr):
		return reqErr.status, reqErr.msg
	case errors.As(err, &upErr):
		return upErr.Status, upErr.Message
	case errors.Is(err, backend.ErrUnavailable):
		return http.StatusInternalServerError, err.Error()
	case errors.As(err, &maxErr), errors.Is(err, upload.ErrTooLarge), errors.Is(err, netfetch.ErrImageTooLarge):
		return http.StatusRequestEntityTooLarge, err.Error()
	case errors.Is(err, upload.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType, err.Error()
	case errors.Is(err, upload.ErrEmpty), errors.Is(err, upload.ErrInvalidDataURI),
		errors.Is(err, netfetch.ErrInvalidURL),
		errors.Is(err, tryon.ErrMissingImage), errors.Is(err, tryon.ErrUnsupportedProvider),
		errors.Is(err, gallery.ErrInvalidItem), errors.Is(err, products.ErrInvalidProduct),
		errors.Is(err, mask.ErrInvalidSize), errors.Is(err, mask.ErrInvalidStroke),
		errors.Is(err, tryon.ErrMissingTaskID):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, gallery.ErrNotFound), errors.Is(err, products.ErrNotFound),
		errors.Is(err, mask.ErrSessionNotFound), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, mask.ErrPaintTooLarge):
		return http.StatusRequestEntityTooLarge, err.Error()
	case errors.Is(err, mask.ErrCapacity):
		return http.StatusServiceUnavailable, err.Error()
	case errors.Is(err, mask.ErrNoHistory), errors.Is(err, gallery.ErrTooOld):
		return http.StatusConflict, err.Error()
	case errors.Is(err, removebg.ErrMissingAPIKey), errors.Is(err, fashn.ErrMissingAPIKey), errors.Is(err, bria.ErrMissingAPIKey):
		return http.StatusServiceUnavailable, err.Error()
	case errors.As(err, &rbErr):
		return providerStatus(rbErr.Status), rbErr.Error()
	case errors.As(err, &fashnErr):
		return providerStatus(fashnErr.Status), fashnErr.Error()
	case errors.As(err, &briaErr):
		return providerStatus(briaErr.Status), briaErr.Error()
	}
	return http.StatusInternalServerError, err.Error()
}

// providerStatus passes client errors through. Auth failures are our
// misconfiguration, so they and server faults become 500.
func providerStatus(status int) int {
	if status >= 400 && status < 500 && status != http.StatusUnauthorized && status != http.StatusForbidden {
		return status
	}
	return http.StatusInternalServerError
}
