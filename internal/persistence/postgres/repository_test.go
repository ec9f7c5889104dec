package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kollulohithaalekhya/event-driven-user-activity-tracker/internal/domain"
)

func TestInsertValidatesBeforeTouchingDatabase(t *testing.T) {
	repo := NewRepository(nil)
	ts, err := domain.ParseTimestamp("2025-01-01T10:00:00Z")
	require.NoError(t, err)

	for _, event := range []domain.ActivityEvent{
		{UserID: 1, EventType: "", Timestamp: ts},
		{UserID: 1, EventType: "\t ", Timestamp: ts},
		{UserID: 1, EventType: "login"},
	} {
		_, err := repo.Insert(context.Background(), event)
		var verr *domain.ValidationError
		require.ErrorAs(t, err, &verr)
	}
}
