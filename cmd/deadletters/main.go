package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kollulohithaalekhya/event-driven-user-activity-tracker/internal/api"
	"github.com/kollulohithaalekhya/event-driven-user-activity-tracker/internal/config"
	"github.com/kollulohithaalekhya/event-driven-user-activity-tracker/internal/consumer"
	"github.com/kollulohithaalekhya/event-driven-user-activity-tracker/internal/logger"
	"github.com/kollulohithaalekhya/event-driven-user-activity-tracker/internal/observability"
	persistence "github.com/kollulohithaalekhya/event-driven-user-activity-tracker/internal/persistence/postgres"
	"github.com/kollulohithaalekhya/event-driven-user-activity-tracker/internal/queue"
	httptransport "github.com/kollulohithaalekhya/event-driven-user-activity-tracker/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "deadletters: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New("deadletters", cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "deadletters: %v\n", err)
		os.Exit(1)
	}
	log.Info().Stringer("config", cfg).Msg("configuration loaded")

	observability.InstallPropagator()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := persistence.Connect(ctx, cfg.PostgresURL, "activity-deadletters")
	if err != nil {
		fmt.Fprintf(os.Stderr, "deadletters: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := consumer.WaitForDatabase(ctx, persistence.NewRepository(pool), cfg.RetryPolicy(), log); err != nil {
		return
	}
	if cfg.PostgresMigrate {
		migrate := func(ctx context.Context) error { return persistence.Migrate(ctx, pool) }
		if err := consumer.MigrateWithRetry(ctx, migrate, cfg.RetryPolicy(), log); err != nil {
			return
		}
	}

	client := queue.New(queue.Config{
		URL:      cfg.RabbitMQURL,
		Name:     "activity-deadletters",
		PoolSize: 1,
		Retry:    cfg.RetryPolicy(),
	}, queue.WithLogger(log))
	defer client.Close()

	replayer := persistence.NewDeadLetterReplayer(pool, client, cfg.QueueName, cfg.DeadLetterMaxReplays,
		persistence.WithReplayLogger(log))

	if addr := cfg.DeadLetterHTTPAddress; addr != "" {
		server := httptransport.NewServer(httptransport.ServerConfig{Address: addr},
			api.NewHealthRouter(api.WithLogger(log)), log)
		go func() {
			if err := server.Serve(ctx); err != nil {
				log.Error().Err(err).Msg("metrics server error")
			}
		}()
	}

	ticker := time.NewTicker(cfg.DeadLetterPollInterval)
	defer ticker.Stop()

	log.Info().Dur("interval", cfg.DeadLetterPollInterval).Int("max_replays", cfg.DeadLetterMaxReplays).
		Msg("dead letter replayer started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("dead letter replayer stopped")
			return
		case <-ticker.C:
			result, err := replayer.RunOnce(ctx, cfg.DeadLetterBatchSize)
			if err != nil {
				log.Error().Err(err).Msg("dead letter replay pass failed")
			}
			if result.Replayed > 0 || result.Quarantined > 0 {
				log.Info().Int("replayed", result.Replayed).Int("quarantined", result.Quarantined).
					Msg("dead letter replay pass")
			}
		}
	}
}
