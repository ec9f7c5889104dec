package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

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
		fmt.Fprintf(os.Stderr, "consumer: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New("consumer", cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "consumer: %v\n", err)
		os.Exit(1)
	}
	log.Info().Stringer("config", cfg).Msg("configuration loaded")

	observability.InstallPropagator()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := persistence.Connect(ctx, cfg.PostgresURL, "activity-consumer")
	if err != nil {
		fmt.Fprintf(os.Stderr, "consumer: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	repo := persistence.NewRepository(pool)

	var wg sync.WaitGroup

	server := httptransport.NewServer(httptransport.ServerConfig{Address: cfg.ConsumerHTTPAddress},
		api.NewHealthRouter(api.WithLogger(log)), log)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Serve(ctx); err != nil {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	client := queue.New(queue.Config{
		URL:   cfg.RabbitMQURL,
		Name:  "activity-consumer",
		Retry: cfg.RetryPolicy(),
	}, queue.WithLogger(log))
	defer client.Close()

	opts := []consumer.Option{
		consumer.WithLogger(log),
		consumer.WithPrefetch(cfg.ConsumerPrefetch),
	}
	if cfg.DeadLetterPolicy == config.DeadLetterPark {
		opts = append(opts, consumer.WithDeadLetters(persistence.NewDeadLetterStore(pool)))
	}
	processor := consumer.NewProcessor(repo, cfg.QueueName, opts...)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := consumer.WaitForDatabase(ctx, repo, cfg.RetryPolicy(), log); err != nil {
			return
		}
		if cfg.PostgresMigrate {
			migrate := func(ctx context.Context) error { return persistence.Migrate(ctx, pool) }
			if err := consumer.MigrateWithRetry(ctx, migrate, cfg.RetryPolicy(), log); err != nil {
				return
			}
		}
		if err := processor.Run(ctx, client); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("consumer stopped with error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("consumer shutdown requested")
	wg.Wait()
	log.Info().Msg("consumer stopped")
}
