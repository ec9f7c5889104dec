package consumer

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/kollulohithaalekhya/event-driven-user-activity-tracker/internal/retry"
)

// Pinger is anything that can check database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// WaitForDatabase blocks until pinger succeeds or ctx is cancelled, waiting
// according to policy between attempts.
func WaitForDatabase(ctx context.Context, pinger Pinger, policy retry.Policy, logger zerolog.Logger) error {
	attempts := 0
	err := retry.Forever(ctx, policy, func(ctx context.Context) error {
		attempts++
		return pinger.Ping(ctx)
	}, func(err error, delay time.Duration) {
		logger.Warn().Err(err).Int("attempt", attempts).Dur("retry_in", delay).Msg("database not ready")
	})
	if err != nil {
		return err
	}
	logger.Info().Int("attempts", attempts).Msg("database ready")
	return nil
}

// MigrateWithRetry runs migrate until it succeeds or ctx is cancelled, so a
// transient schema failure does not end the process.
func MigrateWithRetry(ctx context.Context, migrate func(context.Context) error, policy retry.Policy, logger zerolog.Logger) error {
	attempts := 0
	err := retry.Forever(ctx, policy, func(ctx context.Context) error {
		attempts++
		return migrate(ctx)
	}, func(err error, delay time.Duration) {
		logger.Warn().Err(err).Int("attempt", attempts).Dur("retry_in", delay).Msg("migration failed")
	})
	if err != nil {
		return err
	}
	logger.Info().Int("attempts", attempts).Msg("schema migrated")
	return nil
}
