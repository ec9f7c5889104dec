package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kollulohithaalekhya/event-driven-user-activity-tracker/internal/api"
	"github.com/kollulohithaalekhya/event-driven-user-activity-tracker/internal/auth"
	"github.com/kollulohithaalekhya/event-driven-user-activity-tracker/internal/config"
	"github.com/kollulohithaalekhya/event-driven-user-activity-tracker/internal/logger"
	"github.com/kollulohithaalekhya/event-driven-user-activity-tracker/internal/observability"
	"github.com/kollulohithaalekhya/event-driven-user-activity-tracker/internal/producer"
	"github.com/kollulohithaalekhya/event-driven-user-activity-tracker/internal/queue"
	httptransport "github.com/kollulohithaalekhya/event-driven-user-activity-tracker/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "producer: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New("producer", cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "producer: %v\n", err)
		os.Exit(1)
	}
	log.Info().Stringer("config", cfg).Msg("configuration loaded")

	observability.InstallPropagator()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := queue.New(queue.Config{
		URL:      cfg.RabbitMQURL,
		Name:     "activity-producer",
		PoolSize: cfg.PublishPoolSize,
		Retry:    cfg.RetryPolicy(),
	}, queue.WithLogger(log))
	defer client.Close()

	// Publish declares the queue as well, so a broker that is down at startup
	// only delays the declaration until the first request.
	if err := client.EnsureQueue(cfg.QueueName); err != nil {
		log.Warn().Err(err).Str("queue", cfg.QueueName).Msg("queue declaration deferred")
	}

	service := producer.NewService(client, cfg.QueueName,
		producer.WithLogger(log),
		producer.WithPublishTimeout(cfg.PublishTimeout),
	)

	router := api.NewProducerRouter(service,
		api.WithLogger(log),
		api.WithAuth(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer}),
	)

	server := httptransport.NewServer(httptransport.ServerConfig{Address: cfg.HTTPAddress}, router, log)
	if err := server.Serve(ctx); err != nil {
		log.Error().Err(err).Msg("http server error")
	}
	log.Info().Msg("producer stopped")
}
