package mock

import (
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type grant struct {
	Data struct {
		AccessToken string  `json:"accessToken"`
		ExpiresIn   float64 `json:"expiresIn"`
		Role        string  `json:"role"`
	} `json:"data"`
}

func post(t *testing.T, client *http.Client, URL, body string) (*http.Response, *grant) {
	t.Helper()
	resp, err := client.Post(URL, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	ret := &grant{}
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(ret))
	}
	return resp, ret
}

func get(t *testing.T, URL, token string) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, URL, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	return resp.StatusCode
}

func TestServer_SessionLifecycle(t *testing.T) {
	server, err := NewServer(WithTokenLifetime(10 * time.Minute))
	require.NoError(t, err)
	defer server.Close()
	server.AddUser("alice", "secret", "owner")

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{Jar: jar}

	resp, _ := post(t, client, server.URL+"/api/auth/login", `{"username":"alice","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, issued := post(t, client, server.URL+"/api/auth/login", `{"username":"alice","password":"secret"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 600.0, issued.Data.ExpiresIn)
	assert.Equal(t, "owner", issued.Data.Role)
	assert.Equal(t, http.StatusOK, get(t, server.URL+"/api/me", issued.Data.AccessToken))
	assert.Equal(t, http.StatusUnauthorized, get(t, server.URL+"/api/me", ""))
	assert.Equal(t, http.StatusUnauthorized, get(t, server.URL+"/api/me", "forged"))

	server.Expire()
	assert.Equal(t, http.StatusUnauthorized, get(t, server.URL+"/api/me", issued.Data.AccessToken))

	resp, renewed := post(t, client, server.URL+"/api/auth/refresh", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, renewed.Data.Role)
	assert.Equal(t, http.StatusOK, get(t, server.URL+"/api/me", renewed.Data.AccessToken))

	resp, _ = post(t, http.DefaultClient, server.URL+"/api/auth/refresh", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	server.RevokeSessions()
	resp, _ = post(t, client, server.URL+"/api/auth/refresh", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, 3, server.RefreshCalls())
}

func TestServer_ExpiredByClock(t *testing.T) {
	now := time.Now()
	server, err := NewServer(WithClock(func() time.Time { return now }), WithTokenLifetime(time.Minute))
	require.NoError(t, err)
	defer server.Close()

	token, err := server.createJWT("alice", "owner", time.Minute)
	require.NoError(t, err)
	subject, err := server.verifyJWT(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", subject)

	now = now.Add(2 * time.Minute)
	_, err = server.verifyJWT(token)
	assert.Error(t, err)
}
