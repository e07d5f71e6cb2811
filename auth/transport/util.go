package transport

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
)

// bodySource returns a factory of fresh request bodies so a request can be
// replayed after a refresh. GetBody is used when set; otherwise the body is
// read once. r itself is never modified.
func bodySource(r *http.Request) (func() (io.ReadCloser, error), error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	if r.GetBody != nil {
		_ = r.Body.Close()
		return r.GetBody, nil
	}
	buf, err := io.ReadAll(r.Body)
	_ = r.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	return func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(buf)), nil
	}, nil
}

// clone copies r for sending with a body taken from body.
func clone(r *http.Request, body func() (io.ReadCloser, error)) (*http.Request, error) {
	cloned := r.Clone(r.Context())
	if body == nil {
		return cloned, nil
	}
	rc, err := body()
	if err != nil {
		return nil, fmt.Errorf("failed to reopen request body: %w", err)
	}
	cloned.Body = rc
	cloned.GetBody = body
	return cloned, nil
}

// buffer drains resp.Body so the response stays readable after the
// connection is released.
func buffer(resp *http.Response) (*http.Response, error) {
	data, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, err
	}
	resp.Body = io.NopCloser(bytes.NewReader(data))
	resp.ContentLength = int64(len(data))
	return resp, nil
}
