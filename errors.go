package authpipe

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnauthorized matches any *HTTPError carrying a 401 that survived the
// refresh-and-retry cycle.
var ErrUnauthorized = errors.New("unauthorized")

// HTTPError is returned for every non-2xx response.
type HTTPError struct {
	Method string
	Path   string
	Status int
	Header http.Header
	// Body is the decoded JSON payload, nil when the body was empty or not JSON.
	Body any
	Raw  []byte
}

func (e *HTTPError) Error() string {
	message := http.StatusText(e.Status)
	if body, ok := e.Body.(map[string]any); ok {
		if text, ok := body["message"].(string); ok && text != "" {
			message = text
		}
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, message)
}

func (e *HTTPError) Is(target error) bool {
	return target == ErrUnauthorized && e.Status == http.StatusUnauthorized
}

// ParseError reports a successful response whose body is not valid JSON.
type ParseError struct {
	Status int
	Header http.Header
	Body   string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to decode response (status %d): %v", e.Status, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// IsUnauthorized returns true if err is a terminal authentication failure.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsParseError returns true if err carries an undecodable response body.
func IsParseError(err error) bool {
	var parseErr *ParseError
	return errors.As(err, &parseErr)
}
