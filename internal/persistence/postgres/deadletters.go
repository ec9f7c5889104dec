package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kollulohithaalekhya/event-driven-user-activity-tracker/internal/observability"
)

// DeadLetter is a message body that could never be stored as an activity.
type DeadLetter struct {
	Payload []byte
	Reason  string
	// ReplayCount is how many times this body has already been replayed.
	ReplayCount int
}

// DeadLetterStore parks poison messages for later inspection or replay.
type DeadLetterStore struct {
	pool *pgxpool.Pool
}

// NewDeadLetterStore initialises a store backed by the provided connection pool.
func NewDeadLetterStore(pool *pgxpool.Pool) *DeadLetterStore {
	return &DeadLetterStore{pool: pool}
}

// Park records letter in user_activity_dead_letters and returns its id.
func (s *DeadLetterStore) Park(ctx context.Context, letter DeadLetter) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var id int64
	if err := tx.QueryRow(ctx,
		`INSERT INTO user_activity_dead_letters (payload, reason, replay_count)
         VALUES ($1, $2, $3)
         RETURNING id`,
		letter.Payload, letter.Reason, letter.ReplayCount,
	).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert dead letter: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	observability.RecordDeadLetterParked(time.Now())
	return id, nil
}

// Backlog counts dead letters still waiting for replay.
func (s *DeadLetterStore) Backlog(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM user_activity_dead_letters
          WHERE replayed_at IS NULL AND quarantined_at IS NULL`,
	).Scan(&count)
	return count, err
}
