package probe

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/getsentry/sentry-go"
	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
)

// Run parses args, probes the API and prints the report as JSON on stdout.
func Run(args []string) error {
	_ = godotenv.Load()
	return run(context.Background(), args, os.Stdout)
}

func run(ctx context.Context, args []string, out io.Writer) error {
	options := &Options{}
	_, err := flags.ParseArgs(options, args)
	if err != nil {
		return err
	}
	logger := options.logger()
	if err = InitSentry(options.SentryDSN, options.Environment); err != nil {
		logger.Warn("failed to initialize sentry", "error", err)
	}
	defer FlushSentry()

	report, err := New(options, logger).Run(ctx)
	if err != nil {
		sentry.CaptureException(err)
	}
	if report != nil {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		if encErr := encoder.Encode(report); encErr != nil {
			return encErr
		}
	}
	return err
}
