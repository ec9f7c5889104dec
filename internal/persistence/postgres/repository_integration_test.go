//go:build integration
// +build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/kollulohithaalekhya/event-driven-user-activity-tracker/internal/domain"
	"github.com/kollulohithaalekhya/event-driven-user-activity-tracker/internal/queue"
)

func TestRepositoryInsertStoresRow(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	repo := NewRepository(pool)

	require.NoError(t, repo.Ping(ctx))

	ts, err := domain.ParseTimestamp("2025-01-01T10:00:00Z")
	require.NoError(t, err)
	event := domain.ActivityEvent{
		UserID:    123,
		EventType: "login",
		Timestamp: ts,
		Metadata:  map[string]any{"device": "mobile"},
	}

	id, err := repo.Insert(ctx, event)
	require.NoError(t, err)
	require.Positive(t, id)

	var (
		userID    int64
		eventType string
		stored    time.Time
		metadata  []byte
	)
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT user_id, event_type, "timestamp", metadata FROM user_activities WHERE id = $1`, id,
	).Scan(&userID, &eventType, &stored, &metadata))
	require.Equal(t, int64(123), userID)
	require.Equal(t, "login", eventType)
	require.True(t, stored.Equal(ts.Time))
	require.JSONEq(t, `{"device":"mobile"}`, string(metadata))
}

func TestRepositoryInsertKeepsDuplicates(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	repo := NewRepository(pool)

	event, err := domain.ParseActivityEvent([]byte(`{"user_id":7,"event_type":"click","timestamp":"2025-01-01T10:00:00Z"}`))
	require.NoError(t, err)

	first, err := repo.Insert(ctx, event)
	require.NoError(t, err)
	second, err := repo.Insert(ctx, event)
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	var count int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM user_activities WHERE user_id = 7`).Scan(&count))
	require.Equal(t, 2, count)
}

func TestRepositoryInsertRejectsOverlongEventType(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	repo := NewRepository(pool)

	ts, err := domain.ParseTimestamp("2025-01-01T10:00:00Z")
	require.NoError(t, err)
	long := make([]byte, domain.MaxEventTypeLength+1)
	for i := range long {
		long[i] = 'x'
	}

	invalid := []domain.ActivityEvent{
		{UserID: 1, EventType: string(long), Timestamp: ts},
		{UserID: 1, EventType: "   ", Timestamp: ts},
		{UserID: 1, EventType: "login"},
	}
	for _, event := range invalid {
		_, err = repo.Insert(ctx, event)
		var verr *domain.ValidationError
		require.ErrorAs(t, err, &verr)
	}

	var count int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM user_activities`).Scan(&count))
	require.Zero(t, count)
}

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)

	require.NoError(t, Migrate(ctx, pool))
}

type recordingPublisher struct {
	payloads [][]byte
	replays  []int32
	err      error
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, payload []byte, _ bool, opts ...queue.PublishOption) error {
	if p.err != nil {
		return p.err
	}
	msg := amqp.Publishing{Headers: amqp.Table{}}
	for _, opt := range opts {
		opt(&msg)
	}
	p.payloads = append(p.payloads, payload)
	p.replays = append(p.replays, msg.Headers[queue.ReplayCountHeader].(int32))
	return nil
}

func TestDeadLetterReplayerReplaysAndQuarantines(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	store := NewDeadLetterStore(pool)

	fresh, err := store.Park(ctx, DeadLetter{Payload: []byte(`{"bad":1}`), Reason: "invalid activity event"})
	require.NoError(t, err)
	exhausted, err := store.Park(ctx, DeadLetter{Payload: []byte(`{"bad":2}`), Reason: "invalid activity event", ReplayCount: 3})
	require.NoError(t, err)

	backlog, err := store.Backlog(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, backlog)

	publisher := &recordingPublisher{}
	replayer := NewDeadLetterReplayer(pool, publisher, "user_activity_events", 3)

	result, err := replayer.RunOnce(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, ReplayResult{Replayed: 1, Quarantined: 1}, result)
	require.Equal(t, [][]byte{[]byte(`{"bad":1}`)}, publisher.payloads)
	require.Equal(t, []int32{1}, publisher.replays)

	var replayCount int
	var replayedAt, quarantinedAt *time.Time
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT replay_count, replayed_at, quarantined_at FROM user_activity_dead_letters WHERE id = $1`, fresh,
	).Scan(&replayCount, &replayedAt, &quarantinedAt))
	require.Equal(t, 1, replayCount)
	require.NotNil(t, replayedAt)
	require.Nil(t, quarantinedAt)

	require.NoError(t, pool.QueryRow(ctx,
		`SELECT quarantined_at FROM user_activity_dead_letters WHERE id = $1`, exhausted,
	).Scan(&quarantinedAt))
	require.NotNil(t, quarantinedAt)

	result, err = replayer.RunOnce(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, ReplayResult{}, result)
}

func TestDeadLetterReplayerKeepsRowWhenPublishFails(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	store := NewDeadLetterStore(pool)

	_, err := store.Park(ctx, DeadLetter{Payload: []byte(`{}`), Reason: "invalid"})
	require.NoError(t, err)

	replayer := NewDeadLetterReplayer(pool, &recordingPublisher{err: &queue.PublishError{Queue: "q", Err: queue.ErrPublishNacked}}, "q", 5)
	result, err := replayer.RunOnce(ctx, 10)
	require.ErrorIs(t, err, queue.ErrPublishNacked)
	require.Equal(t, ReplayResult{}, result)

	backlog, err := store.Backlog(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, backlog)
}

func setupPostgres(t *testing.T, ctx context.Context) *pgxpool.Pool {
	t.Helper()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("user_activity_db"),
		postgrescontainer.WithUsername("postgres"),
		postgrescontainer.WithPassword("postgres"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(context.Background()) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := Connect(ctx, connStr, "integration-test")
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, waitForDatabase(ctx, NewRepository(pool)))
	require.NoError(t, Migrate(ctx, pool))
	return pool
}

func waitForDatabase(ctx context.Context, repo *Repository) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		err := repo.Ping(ctx)
		if err == nil || time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}
