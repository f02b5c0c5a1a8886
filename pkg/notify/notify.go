// Package notify delivers run summaries to the group chat and fatal errors to
// the alert robot.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"
	"record-sync/constant"
)

type Notifier interface {
	SendText(ctx context.Context, text string) error
	SendFile(ctx context.Context, path string) error
}

type Alerter interface {
	Alert(ctx context.Context, severity constant.Severity, information, details string) error
}

// deliver runs send up to attempts times with exponential backoff between
// tries. attempts of 0 or 1 means a single try.
func deliver(ctx context.Context, attempts uint, what string, send func() error) error {
	if attempts == 0 {
		attempts = 1
	}
	err := retry.Do(
		send,
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(500*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			zerolog.Ctx(ctx).Warn().Err(err).Uint("attempt", n+1).Str("call", what).Msg("retrying webhook call")
		}),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}

type logNotifier struct{}

// NewLogNotifier returns a Notifier that only logs, for deployments without
// chat credentials.
func NewLogNotifier() Notifier {
	return logNotifier{}
}

func (logNotifier) SendText(ctx context.Context, text string) error {
	zerolog.Ctx(ctx).Info().Str("text", text).Msg("notification (chat disabled)")
	return nil
}

func (logNotifier) SendFile(ctx context.Context, path string) error {
	zerolog.Ctx(ctx).Info().Str("file", path).Msg("notification file (chat disabled)")
	return nil
}

type logAlerter struct{}

func NewLogAlerter() Alerter {
	return logAlerter{}
}

func (logAlerter) Alert(ctx context.Context, severity constant.Severity, information, details string) error {
	zerolog.Ctx(ctx).Error().
		Str("severity", string(severity)).
		Str("information", information).
		Str("details", details).
		Msg("alert (alert robot disabled)")
	return nil
}
