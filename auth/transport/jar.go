package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	neturl "net/url"
	"strings"
	"sync"
	"time"

	"github.com/viant/afs"
)

// FileJar is a cookie jar persisted as JSON at an afs URL. It keeps its own
// index of stored cookies because cookiejar.Jar cannot enumerate them.
type FileJar struct {
	mu      sync.RWMutex
	inner   *cookiejar.Jar
	URL     string
	fs      afs.Service
	entries map[string]persistedCookie
	logger  *slog.Logger
}

type persistedCookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Domain   string    `json:"domain"`
	HostOnly bool      `json:"hostOnly,omitempty"`
	Path     string    `json:"path"`
	Expires  time.Time `json:"expires,omitempty"`
	Secure   bool      `json:"secure,omitempty"`
	HttpOnly bool      `json:"httpOnly,omitempty"`
}

func (c *persistedCookie) key() string {
	return c.Domain + "|" + c.Path + "|" + c.Name
}

func (c *persistedCookie) expired(now time.Time) bool {
	return !c.Expires.IsZero() && !c.Expires.After(now)
}

func (c *persistedCookie) origin() *neturl.URL {
	scheme := "http"
	if c.Secure {
		scheme = "https"
	}
	return &neturl.URL{Scheme: scheme, Host: c.Domain, Path: c.Path}
}

func (c *persistedCookie) cookie() *http.Cookie {
	ret := &http.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Path:     c.Path,
		Expires:  c.Expires,
		Secure:   c.Secure,
		HttpOnly: c.HttpOnly,
	}
	if !c.HostOnly {
		ret.Domain = c.Domain
	}
	return ret
}

type jarSnapshot struct {
	Cookies []persistedCookie `json:"cookies"`
}

type JarOption func(*FileJar)

// WithJarService sets the afs service used for persistence
func WithJarService(fs afs.Service) JarOption {
	return func(j *FileJar) {
		j.fs = fs
	}
}

// WithJarLogger sets logger
func WithJarLogger(logger *slog.Logger) JarOption {
	return func(j *FileJar) {
		if logger != nil {
			j.logger = logger
		}
	}
}

// NewFileJar creates a jar persisted at URL, rehydrating cookies saved by a
// previous process.
func NewFileJar(ctx context.Context, URL string, options ...JarOption) (*FileJar, error) {
	inner, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	ret := &FileJar{
		inner:   inner,
		URL:     URL,
		fs:      afs.New(),
		entries: map[string]persistedCookie{},
		logger:  slog.Default(),
	}
	for _, opt := range options {
		opt(ret)
	}
	if err = ret.load(ctx); err != nil {
		ret.logger.Warn("discarding unreadable cookie jar", slog.String("url", URL), slog.String("error", err.Error()))
	}
	return ret, nil
}

func (j *FileJar) Cookies(u *neturl.URL) []*http.Cookie {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.inner.Cookies(u)
}

func (j *FileJar) SetCookies(u *neturl.URL, cookies []*http.Cookie) {
	if len(cookies) == 0 {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.inner.SetCookies(u, cookies)
	now := time.Now()
	for _, c := range cookies {
		entry := persistedCookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   strings.TrimPrefix(c.Domain, "."),
			Path:     c.Path,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
		}
		if entry.Domain == "" {
			entry.Domain = u.Hostname()
			entry.HostOnly = true
		}
		if entry.Path == "" {
			entry.Path = "/"
		}
		if c.MaxAge > 0 {
			entry.Expires = now.Add(time.Duration(c.MaxAge) * time.Second)
		}
		if c.MaxAge < 0 || entry.expired(now) {
			delete(j.entries, entry.key())
			continue
		}
		j.entries[entry.key()] = entry
	}
	if err := j.save(context.Background()); err != nil {
		j.logger.Warn("failed to persist cookies", slog.String("url", j.URL), slog.String("error", err.Error()))
	}
}

// Clear drops every cookie, in memory and on storage.
func (j *FileJar) Clear(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	inner, err := cookiejar.New(nil)
	if err != nil {
		return err
	}
	j.inner = inner
	j.entries = map[string]persistedCookie{}
	ok, err := j.fs.Exists(ctx, j.URL)
	if err != nil || !ok {
		return err
	}
	return j.fs.Delete(ctx, j.URL)
}

func (j *FileJar) save(ctx context.Context) error {
	snap := jarSnapshot{Cookies: make([]persistedCookie, 0, len(j.entries))}
	for _, entry := range j.entries {
		snap.Cookies = append(snap.Cookies, entry)
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	tmp := j.URL + ".tmp"
	if err = j.fs.Upload(ctx, tmp, 0o600, bytes.NewReader(data)); err != nil {
		return err
	}
	return j.fs.Move(ctx, tmp, j.URL)
}

func (j *FileJar) load(ctx context.Context) error {
	ok, err := j.fs.Exists(ctx, j.URL)
	if err != nil || !ok {
		return err
	}
	data, err := j.fs.DownloadWithURL(ctx, j.URL)
	if err != nil {
		return err
	}
	var snap jarSnapshot
	if err = json.Unmarshal(data, &snap); err != nil {
		return err
	}
	now := time.Now()
	for _, entry := range snap.Cookies {
		if entry.expired(now) || entry.Domain == "" {
			continue
		}
		j.inner.SetCookies(entry.origin(), []*http.Cookie{entry.cookie()})
		j.entries[entry.key()] = entry
	}
	return nil
}

// sessionTransport sends jar cookies with every request and records the
// cookies the server sets, so requests sent outside an http.Client keep the
// ambient session.
type sessionTransport struct {
	inner http.RoundTripper
	jar   http.CookieJar
}

// WrapWithCookieJar returns inner unchanged when jar is nil.
func WrapWithCookieJar(inner http.RoundTripper, jar http.CookieJar) http.RoundTripper {
	if jar == nil || inner == nil {
		return inner
	}
	return &sessionTransport{inner: inner, jar: jar}
}

func (s *sessionTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if cookies := s.jar.Cookies(req.URL); len(cookies) > 0 {
		req = req.Clone(req.Context())
		for _, c := range cookies {
			req.AddCookie(c)
		}
	}
	resp, err := s.inner.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if cookies := resp.Cookies(); len(cookies) > 0 {
		s.jar.SetCookies(req.URL, cookies)
	}
	return resp, nil
}
