// Package upload validates user-supplied images before they are forwarded to
// the backend or a provider.
package upload

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultMaxBytes is the upload ceiling applied when none is configured.
const DefaultMaxBytes int64 = 10 << 20

var (
	ErrEmpty           = errors.New("upload: file is empty")
	ErrTooLarge        = errors.New("upload: file exceeds size limit")
	ErrUnsupportedType = errors.New("upload: unsupported file type")
	ErrInvalidDataURI  = errors.New("upload: invalid base64 image")
)

// AllowedTypes are the image types accepted by every tool.
var AllowedTypes = []string{"image/jpeg", "image/png", "image/webp"}

// File is a validated upload.
type File struct {
	Filename string
	MIME     string
	Data     []byte
}

// Validator enforces the size and type rules.
type Validator struct {
	maxBytes int64
}

func NewValidator(maxBytes int64) *Validator {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Validator{maxBytes: maxBytes}
}

// MaxBytes returns the configured ceiling.
func (v *Validator) MaxBytes() int64 {
	return v.maxBytes
}

// Check validates raw bytes. The type is sniffed from content; the declared
// filename only survives as the forwarded name.
func (v *Validator) Check(filename string, data []byte) (*File, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	if int64(len(data)) > v.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes > %d", ErrTooLarge, len(data), v.maxBytes)
	}
	detected := mimetype.Detect(data)
	mime := detected.String()
	if !allowed(mime) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, mime)
	}
	name := strings.TrimSpace(filename)
	if name == "" {
		name = "upload" + detected.Extension()
	}
	return &File{Filename: name, MIME: mime, Data: data}, nil
}

// ReadPart reads a multipart file without loading more than the limit.
func (v *Validator) ReadPart(fh *multipart.FileHeader) (*File, error) {
	if fh == nil {
		return nil, ErrEmpty
	}
	if fh.Size > v.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes > %d", ErrTooLarge, fh.Size, v.maxBytes)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("upload: open part: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, v.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("upload: read part: %w", err)
	}
	return v.Check(fh.Filename, data)
}

// DecodeDataURI accepts either a data URI or bare base64 and validates the
// decoded bytes.
func (v *Validator) DecodeDataURI(filename, value string) (*File, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, ErrEmpty
	}
	if strings.HasPrefix(value, "data:") {
		_, payload, ok := strings.Cut(value, ",")
		if !ok {
			return nil, ErrInvalidDataURI
		}
		value = payload
	}
	if int64(base64.StdEncoding.DecodedLen(len(value))) > v.maxBytes+2 {
		return nil, ErrTooLarge
	}
	data, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDataURI, err)
	}
	return v.Check(filename, data)
}

// DataURI renders f as a base64 data URI.
func (f *File) DataURI() string {
	return "data:" + f.MIME + ";base64," + base64.StdEncoding.EncodeToString(f.Data)
}

func allowed(mime string) bool {
	for _, t := range AllowedTypes {
		if mime == t {
			return true
		}
	}
	return false
}
