package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/kollulohithaalekhya/event-driven-user-activity-tracker/internal/queue"
)

// DefaultMaxReplays is used when the replayer is built with a non-positive limit.
const DefaultMaxReplays = 5

// Publisher hands a payload back to the broker.
type Publisher interface {
	Publish(ctx context.Context, queueName string, payload []byte, persistent bool, opts ...queue.PublishOption) error
}

// ReplayResult summarises one replay pass.
type ReplayResult struct {
	Replayed    int
	Quarantined int
}

// DeadLetterReplayer republishes parked messages onto the activity queue and
// quarantines those that keep coming back.
type DeadLetterReplayer struct {
	pool       *pgxpool.Pool
	store      *DeadLetterStore
	publisher  Publisher
	queueName  string
	maxReplays int
	logger     zerolog.Logger
}

// ReplayerOption configures optional behaviour for the replayer.
type ReplayerOption func(*DeadLetterReplayer)

// WithReplayLogger overrides the logger.
func WithReplayLogger(logger zerolog.Logger) ReplayerOption {
	return func(r *DeadLetterReplayer) {
		r.logger = logger
	}
}

// NewDeadLetterReplayer constructs a replayer publishing to queueName.
func NewDeadLetterReplayer(pool *pgxpool.Pool, publisher Publisher, queueName string, maxReplays int, opts ...ReplayerOption) *DeadLetterReplayer {
	if maxReplays <= 0 {
		maxReplays = DefaultMaxReplays
	}
	r := &DeadLetterReplayer{
		pool:       pool,
		store:      NewDeadLetterStore(pool),
		publisher:  publisher,
		queueName:  queueName,
		maxReplays: maxReplays,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunOnce processes up to batchSize pending dead letters, oldest first. Each
// row is handled in its own transaction and locked with SKIP LOCKED, so
// several replayers can run side by side. Per-row failures are joined into
// the returned error without stopping the pass.
func (r *DeadLetterReplayer) RunOnce(ctx context.Context, batchSize int) (ReplayResult, error) {
	var result ReplayResult

	rows, err := r.pool.Query(ctx,
		`SELECT id FROM user_activity_dead_letters
          WHERE replayed_at IS NULL AND quarantined_at IS NULL
          ORDER BY created_at, id
          LIMIT $1`, batchSize)
	if err != nil {
		return result, fmt.Errorf("select dead letters: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return result, fmt.Errorf("scan dead letters: %w", err)
	}

	var errs []error
	for _, id := range ids {
		outcome, handleErr := r.handleEntry(ctx, id)
		if handleErr != nil {
			replayFailedCounter.Inc()
			errs = append(errs, fmt.Errorf("dead letter %d: %w", id, handleErr))
			continue
		}
		switch outcome {
		case outcomeReplayed:
			result.Replayed++
			replayedCounter.Inc()
		case outcomeQuarantined:
			result.Quarantined++
			quarantinedCounter.Inc()
		}
	}

	if backlog, backlogErr := r.store.Backlog(ctx); backlogErr == nil {
		backlogGauge.Set(float64(backlog))
	}
	return result, errors.Join(errs...)
}

type entryOutcome int

const (
	outcomeSkipped entryOutcome = iota
	outcomeReplayed
	outcomeQuarantined
)

type deadLetterEntry struct {
	ID          int64
	Payload     []byte
	Reason      string
	ReplayCount int
}

func (r *DeadLetterReplayer) handleEntry(ctx context.Context, id int64) (entryOutcome, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return outcomeSkipped, err
	}
	defer tx.Rollback(ctx)

	entry, err := lockEntry(ctx, tx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		// taken by another replayer or settled since the batch was selected
		return outcomeSkipped, nil
	}
	if err != nil {
		return outcomeSkipped, err
	}

	if entry.ReplayCount >= r.maxReplays {
		if _, err := tx.Exec(ctx,
			`UPDATE user_activity_dead_letters SET quarantined_at = NOW() WHERE id = $1`, entry.ID,
		); err != nil {
			return outcomeSkipped, err
		}
		r.logger.Warn().Int64("dead_letter_id", entry.ID).Int("replay_count", entry.ReplayCount).
			Str("reason", entry.Reason).Msg("dead letter quarantined")
		return outcomeQuarantined, tx.Commit(ctx)
	}

	replays := entry.ReplayCount + 1
	if err := r.publisher.Publish(ctx, r.queueName, entry.Payload, true,
		queue.WithHeader(queue.ReplayCountHeader, int32(replays)),
	); err != nil {
		return outcomeSkipped, err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE user_activity_dead_letters
            SET replayed_at = NOW(), replay_count = $1
          WHERE id = $2`,
		replays, entry.ID,
	); err != nil {
		return outcomeSkipped, err
	}
	r.logger.Info().Int64("dead_letter_id", entry.ID).Int("replay_count", replays).Msg("dead letter replayed")
	return outcomeReplayed, tx.Commit(ctx)
}

func lockEntry(ctx context.Context, tx pgx.Tx, id int64) (deadLetterEntry, error) {
	var entry deadLetterEntry
	err := tx.QueryRow(ctx,
		`SELECT id, payload, reason, replay_count
           FROM user_activity_dead_letters
          WHERE id = $1 AND replayed_at IS NULL AND quarantined_at IS NULL
          FOR UPDATE SKIP LOCKED`, id,
	).Scan(&entry.ID, &entry.Payload, &entry.Reason, &entry.ReplayCount)
	return entry, err
}
