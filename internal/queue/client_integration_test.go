//go:build integration
// +build integration

package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	rabbitmqcontainer "github.com/testcontainers/testcontainers-go/modules/rabbitmq"

	"github.com/kollulohithaalekhya/event-driven-user-activity-tracker/internal/retry"
)

func TestPublishConsumeRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	url := setupRabbitMQ(t, ctx)
	client := New(Config{
		URL:   url,
		Name:  "integration",
		Retry: retry.Policy{Initial: 100 * time.Millisecond, Max: time.Second, Multiplier: 2},
	})
	t.Cleanup(func() { _ = client.Close() })

	const queueName = "user_activity_events"
	require.NoError(t, client.EnsureQueue(queueName))
	require.NoError(t, client.EnsureQueue(queueName))

	require.NoError(t, client.Publish(ctx, queueName, []byte(`{"n":1}`), true))
	require.NoError(t, client.Publish(ctx, queueName, []byte(`{"n":2}`), true))

	consumeCtx, stop := context.WithCancel(ctx)
	defer stop()

	var bodies []string
	redelivered := false
	err := client.Consume(consumeCtx, queueName, 1, func(_ context.Context, msg *Message) {
		require.True(t, msg.Persistent)
		// the first delivery is requeued once to prove redelivery
		if string(msg.Body) == `{"n":1}` && !msg.Redelivered {
			require.NoError(t, msg.Nack(true))
			return
		}
		if msg.Redelivered {
			redelivered = true
		}
		bodies = append(bodies, string(msg.Body))
		require.NoError(t, msg.Ack())
		if len(bodies) == 2 {
			stop()
		}
	})
	require.ErrorIs(t, err, context.Canceled)
	require.True(t, redelivered)
	require.ElementsMatch(t, []string{`{"n":1}`, `{"n":2}`}, bodies)
}

func setupRabbitMQ(t *testing.T, ctx context.Context) string {
	t.Helper()

	container, err := rabbitmqcontainer.Run(ctx, "rabbitmq:3.13-management-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	url, err := container.AmqpURL(ctx)
	require.NoError(t, err)
	return url
}
