package probe

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/viant/authpipe"
)

// Options configures a probe run. Client options can come from flags, a YAML
// file or both; a flag wins over the file.
type Options struct {
	authpipe.Options
	ConfigURL   string `short:"c" long:"config" description:"YAML client options (afs URL)"`
	Username    string `short:"U" long:"username" env:"AUTHPIPE_USERNAME" description:"login username, skipped when a persisted session exists"`
	Password    string `short:"P" long:"password" env:"AUTHPIPE_PASSWORD" description:"login password"`
	Path        string `short:"p" long:"path" default:"/api/me" description:"protected path to call"`
	Concurrency int    `short:"n" long:"concurrency" default:"8" description:"number of concurrent calls"`
	SentryDSN   string `long:"sentry-dsn" env:"SENTRY_DSN" description:"report terminal failures to sentry"`
	Environment string `long:"environment" env:"APP_ENV" default:"development" description:"sentry environment"`
	LogLevel    string `short:"l" long:"log-level" default:"info" description:"debug, info, warn or error"`
}

// clientOptions resolves the client options, loading ConfigURL when set.
func (o *Options) clientOptions(ctx context.Context) (*authpipe.Options, error) {
	ret := o.Options
	if o.ConfigURL != "" {
		loaded, err := authpipe.LoadOptions(ctx, o.ConfigURL)
		if err != nil {
			return nil, err
		}
		merged := *loaded
		if ret.BaseURL != "" {
			merged.BaseURL = ret.BaseURL
		}
		if ret.TokenURL != "" {
			merged.TokenURL = ret.TokenURL
		}
		if ret.CookieJarURL != "" {
			merged.CookieJarURL = ret.CookieJarURL
		}
		if ret.Timeout != 0 {
			merged.Timeout = ret.Timeout
		}
		if ret.SafetyMargin != 0 {
			merged.SafetyMargin = ret.SafetyMargin
		}
		if len(ret.PublicPaths) > 0 {
			merged.PublicPaths = ret.PublicPaths
		}
		ret = merged
	}
	ret.Init()
	if err := ret.Validate(); err != nil {
		return nil, err
	}
	return &ret, nil
}

func (o *Options) logger() *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(o.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
