package authpipe

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
)

// Request describes a call made through Client.Execute.
type Request struct {
	Method string
	Header http.Header
	Query  url.Values
	// Body is sent as is when it is []byte, string or io.Reader, and JSON
	// encoded otherwise. Ignored when Multipart is set.
	Body      any
	Multipart *Multipart
}

// Multipart is a multipart/form-data body.
type Multipart struct {
	Fields map[string]string
	Files  []File
}

// File is a multipart file part.
type File struct {
	Field   string
	Name    string
	Content io.Reader
}

// Response is a decoded 2xx response.
type Response struct {
	Status int
	Header http.Header
	// Body is the JSON payload decoded into generic values; nil for an empty body.
	Body any
	Raw  []byte
}

// Decode unmarshals the raw body into v; an empty body leaves v untouched.
func (r *Response) Decode(v any) error {
	if len(r.Raw) == 0 {
		return nil
	}
	return json.Unmarshal(r.Raw, v)
}

// DecodeData unmarshals the "data" member of the API envelope into v.
func (r *Response) DecodeData(v any) error {
	envelope := struct {
		Data any `json:"data"`
	}{Data: v}
	return r.Decode(&envelope)
}

// encode returns the body reader and the content type it requires. An empty
// content type means the caller's header is kept.
func (r *Request) encode() (io.Reader, string, error) {
	if r.Multipart != nil {
		return r.Multipart.encode()
	}
	switch actual := r.Body.(type) {
	case nil:
		return nil, "", nil
	case []byte:
		return bytes.NewReader(actual), "", nil
	case string:
		return bytes.NewBufferString(actual), "", nil
	case io.Reader:
		return actual, "", nil
	default:
		data, err := json.Marshal(actual)
		if err != nil {
			return nil, "", fmt.Errorf("failed to encode request body: %w", err)
		}
		return bytes.NewReader(data), "", nil
	}
}

func (m *Multipart) encode() (io.Reader, string, error) {
	buf := &bytes.Buffer{}
	writer := multipart.NewWriter(buf)
	for name, value := range m.Fields {
		if err := writer.WriteField(name, value); err != nil {
			return nil, "", err
		}
	}
	for _, file := range m.Files {
		if file.Content == nil {
			return nil, "", errors.New("multipart file content was nil: " + file.Field)
		}
		part, err := writer.CreateFormFile(file.Field, file.Name)
		if err != nil {
			return nil, "", err
		}
		if _, err = io.Copy(part, file.Content); err != nil {
			return nil, "", fmt.Errorf("failed to copy multipart file %v: %w", file.Name, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return buf, writer.FormDataContentType(), nil
}
