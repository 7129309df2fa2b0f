// Package observability wires Sentry error tracking.
package observability

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/copyarc/signup-api/internal/config"
)

// InitSentry initialises the global Sentry hub. A disabled or empty DSN is
// not an error; capture calls become no-ops.
func InitSentry(cfg config.SentryConfig, release, environment string) error {
	if !cfg.Enabled || cfg.DSN == "" {
		return nil
	}

	return sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      environment,
		Release:          release,
		TracesSampleRate: cfg.TracesSampleRate,
		AttachStacktrace: true,
	})
}

// Flush drains buffered events before shutdown.
func Flush(ctx context.Context) {
	deadline := 2 * time.Second
	if d, ok := ctx.Deadline(); ok {
		deadline = time.Until(d)
	}
	sentry.Flush(deadline)
}
