package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kollulohithaalekhya/event-driven-user-activity-tracker/internal/domain"
	"github.com/kollulohithaalekhya/event-driven-user-activity-tracker/internal/observability"
)

var tracer = otel.Tracer("github.com/kollulohithaalekhya/event-driven-user-activity-tracker/internal/persistence/postgres")

// Repository stores activity events in the user_activities table.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert writes one row inside its own transaction and returns the generated
// id. Events failing domain validation are returned as *domain.ValidationError
// without touching the database. Nothing deduplicates: a redelivered event produces a second row.
func (r *Repository) Insert(ctx context.Context, event domain.ActivityEvent) (int64, error) {
	if err := event.Validate(); err != nil {
		return 0, err
	}

	ctx, span := tracer.Start(ctx, "postgres.insert_activity",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.sql.table", "user_activities"),
		))
	defer span.End()

	metadata, err := domain.EncodeMetadata(event.Metadata)
	if err != nil {
		return 0, fmt.Errorf("encode metadata: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var id int64
	err = tx.QueryRow(ctx,
		`INSERT INTO user_activities (user_id, event_type, "timestamp", metadata)
         VALUES ($1, $2, $3, $4)
         RETURNING id`,
		event.UserID,
		event.EventType,
		event.Timestamp.Time,
		metadata,
	).Scan(&id)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("insert activity: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("commit: %w", err)
	}

	observability.RecordActivityPersisted(time.Now(), event.Timestamp.Time)
	span.SetAttributes(attribute.Int64("activity.id", id))
	return id, nil
}

// Ping checks connectivity with a trivial query.
func (r *Repository) Ping(ctx context.Context) error {
	var one int
	if err := r.pool.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}
