package authpipe

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/viant/afs"
	"github.com/viant/authpipe/auth/store"
	"github.com/viant/authpipe/auth/transport"
	"gopkg.in/yaml.v3"
)

// Options configures a Client. They can be populated from CLI flags or a
// YAML file.
type Options struct {
	BaseURL      string        `yaml:"baseURL" json:"baseURL"  short:"u" long:"url" description:"API base URL"`
	TokenURL     string        `yaml:"tokenURL,omitempty" json:"tokenURL,omitempty"  short:"s" long:"token-store" description:"token store location (afs URL), in memory when empty"`
	CookieJarURL string        `yaml:"cookieJarURL,omitempty" json:"cookieJarURL,omitempty"  short:"j" long:"cookie-jar" description:"cookie jar location (afs URL), in memory when empty"`
	SafetyMargin time.Duration `yaml:"safetyMargin,omitempty" json:"safetyMargin,omitempty"  long:"safety-margin" description:"treat tokens as expired this long before they do"`
	Timeout      time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"  long:"timeout" description:"HTTP client timeout, 0 means none"`
	PublicPaths  []string      `yaml:"publicPaths,omitempty" json:"publicPaths,omitempty"  long:"public" description:"path prefixes sent without a bearer token"`
}

// DefaultOptions returns options for baseURL with every default applied.
func DefaultOptions(baseURL string) *Options {
	ret := &Options{BaseURL: baseURL}
	ret.Init()
	return ret
}

// Init applies defaults to unset fields.
func (o *Options) Init() {
	if o.SafetyMargin == 0 {
		o.SafetyMargin = store.DefaultSafetyMargin
	}
	if len(o.PublicPaths) == 0 {
		o.PublicPaths = transport.DefaultPublicPaths()
	}
}

// Validate checks that options describe a usable client.
func (o *Options) Validate() error {
	if o.BaseURL == "" {
		return errors.New("baseURL is required")
	}
	u, err := url.Parse(o.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid baseURL %q: %w", o.BaseURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid baseURL %q: expected http(s)://host", o.BaseURL)
	}
	if o.SafetyMargin < 0 {
		return fmt.Errorf("safetyMargin must not be negative: %v", o.SafetyMargin)
	}
	if o.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative: %v", o.Timeout)
	}
	return nil
}

// LoadOptions reads YAML options from any afs URL, then applies defaults and
// validates them.
func LoadOptions(ctx context.Context, URL string) (*Options, error) {
	fs := afs.New()
	data, err := fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to read options %v: %w", URL, err)
	}
	ret := &Options{}
	if err = yaml.Unmarshal(data, ret); err != nil {
		return nil, fmt.Errorf("failed to parse options %v: %w", URL, err)
	}
	ret.Init()
	if err = ret.Validate(); err != nil {
		return nil, err
	}
	return ret, nil
}
