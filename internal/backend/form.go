package backend

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"strings"
)

// FormFile is a file part of a multipart form.
type FormFile struct {
	Field    string
	Filename string
	MIME     string
	Data     []byte
}

// formPart is either a text field or, when file is set, a file part.
type formPart struct {
	name  string
	value string
	file  *FormFile
}

// Form is an ordered multipart body. Text and file parts are encoded in the
// order they were added.
type Form struct {
	parts []formPart
}

func NewForm() *Form {
	return &Form{}
}

// Set adds a text field. Empty values are skipped.
func (f *Form) Set(name, value string) *Form {
	if value == "" {
		return f
	}
	f.parts = append(f.parts, formPart{name: name, value: value})
	return f
}

// AddFile adds a file part.
func (f *Form) AddFile(file FormFile) *Form {
	f.parts = append(f.parts, formPart{name: file.Field, file: &file})
	return f
}

// Field returns the first value of a text field.
func (f *Form) Field(name string) (string, bool) {
	for _, p := range f.parts {
		if p.file == nil && p.name == name {
			return p.value, true
		}
	}
	return "", false
}

// File returns the first file part with the given field name.
func (f *Form) File(field string) (FormFile, bool) {
	for _, p := range f.parts {
		if p.file != nil && p.name == field {
			return *p.file, true
		}
	}
	return FormFile{}, false
}

// Rename reshapes field names (text and file parts) using mapping; names not
// present in mapping are kept.
func (f *Form) Rename(mapping map[string]string) *Form {
	for i := range f.parts {
		to, ok := mapping[f.parts[i].name]
		if !ok {
			continue
		}
		f.parts[i].name = to
		if f.parts[i].file != nil {
			f.parts[i].file.Field = to
		}
	}
	return f
}

// Encode renders the form and returns the body and its content type.
func (f *Form) Encode() ([]byte, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range f.parts {
		if p.file == nil {
			if err := mw.WriteField(p.name, p.value); err != nil {
				return nil, "", fmt.Errorf("backend: write field %s: %w", p.name, err)
			}
			continue
		}
		if err := writeFile(mw, p.name, p.file); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("backend: close form: %w", err)
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}

func writeFile(mw *multipart.Writer, field string, file *FormFile) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		escapeQuotes(field), escapeQuotes(file.Filename)))
	mime := file.MIME
	if mime == "" {
		mime = "application/octet-stream"
	}
	h.Set("Content-Type", mime)
	part, err := mw.CreatePart(h)
	if err != nil {
		return fmt.Errorf("backend: create part %s: %w", field, err)
	}
	if _, err := part.Write(file.Data); err != nil {
		return fmt.Errorf("backend: write part %s: %w", field, err)
	}
	return nil
}

// quoteEscaper matches the escaping multipart.Writer.CreateFormFile applies.
var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
