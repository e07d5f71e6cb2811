package authpipe

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/authpipe/auth/store"
	"github.com/viant/authpipe/auth/transport"
)

func TestOptions_Validate(t *testing.T) {
	var testCases = []struct {
		description string
		options     Options
		expectErr   bool
	}{
		{description: "valid", options: Options{BaseURL: "https://api.example.com"}},
		{description: "valid with path", options: Options{BaseURL: "http://localhost:8080/v1", Timeout: time.Second}},
		{description: "missing url", options: Options{}, expectErr: true},
		{description: "relative url", options: Options{BaseURL: "/api"}, expectErr: true},
		{description: "unsupported scheme", options: Options{BaseURL: "ftp://example.com"}, expectErr: true},
		{description: "negative margin", options: Options{BaseURL: "https://api.example.com", SafetyMargin: -time.Second}, expectErr: true},
		{description: "negative timeout", options: Options{BaseURL: "https://api.example.com", Timeout: -time.Second}, expectErr: true},
	}
	for _, testCase := range testCases {
		err := testCase.options.Validate()
		if testCase.expectErr {
			assert.Error(t, err, testCase.description)
			continue
		}
		assert.NoError(t, err, testCase.description)
	}
}

func TestDefaultOptions(t *testing.T) {
	options := DefaultOptions("https://api.example.com")
	assert.Equal(t, store.DefaultSafetyMargin, options.SafetyMargin)
	assert.EqualValues(t, transport.DefaultPublicPaths(), options.PublicPaths)
	assert.Zero(t, options.Timeout)
	assert.NoError(t, options.Validate())
}

func TestLoadOptions(t *testing.T) {
	dir := t.TempDir()
	location := filepath.Join(dir, "authpipe.yaml")
	data := []byte(`baseURL: https://api.example.com
tokenURL: /tmp/authpipe/token.json
safetyMargin: 30s
timeout: 5s
publicPaths:
  - /api/auth/login
  - /api/public
`)
	require.NoError(t, os.WriteFile(location, data, 0o600))

	options, err := LoadOptions(context.Background(), location)
	require.NoError(t, err)
	assert.Equal(t, &Options{
		BaseURL:      "https://api.example.com",
		TokenURL:     "/tmp/authpipe/token.json",
		SafetyMargin: 30 * time.Second,
		Timeout:      5 * time.Second,
		PublicPaths:  []string{"/api/auth/login", "/api/public"},
	}, options)

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("timeout: 5s\n"), 0o600))
	_, err = LoadOptions(context.Background(), invalid)
	assert.Error(t, err)

	_, err = LoadOptions(context.Background(), filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
