package producer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/kollulohithaalekhya/event-driven-user-activity-tracker/internal/domain"
	"github.com/kollulohithaalekhya/event-driven-user-activity-tracker/internal/queue"
)

type publishCall struct {
	queue      string
	payload    []byte
	persistent bool
	deadline   time.Time
}

type stubPublisher struct {
	calls []publishCall
	err   error
}

func (s *stubPublisher) Publish(ctx context.Context, queueName string, payload []byte, persistent bool, _ ...queue.PublishOption) error {
	deadline, _ := ctx.Deadline()
	s.calls = append(s.calls, publishCall{queue: queueName, payload: payload, persistent: persistent, deadline: deadline})
	return s.err
}

func TestTrackEventPublishesCanonicalPersistentMessage(t *testing.T) {
	publisher := &stubPublisher{}
	svc := NewService(publisher, "user_activity_events")
	before := testutil.ToFloat64(eventsCounter.WithLabelValues(outcomeAccepted))

	event, err := svc.TrackEvent(context.Background(), []byte(`{"user_id":123,"event_type":"login","timestamp":"2025-01-01T10:00:00Z"}`))
	require.NoError(t, err)
	require.Equal(t, int64(123), event.UserID)

	require.Len(t, publisher.calls, 1)
	call := publisher.calls[0]
	require.Equal(t, "user_activity_events", call.queue)
	require.True(t, call.persistent)
	require.JSONEq(t, `{"user_id":123,"event_type":"login","timestamp":"2025-01-01T10:00:00+00:00","metadata":{}}`, string(call.payload))
	require.Equal(t, before+1, testutil.ToFloat64(eventsCounter.WithLabelValues(outcomeAccepted)))
}

func TestTrackEventRejectsInvalidPayloadWithoutPublishing(t *testing.T) {
	publisher := &stubPublisher{}
	svc := NewService(publisher, "user_activity_events")
	before := testutil.ToFloat64(eventsCounter.WithLabelValues(outcomeRejected))

	_, err := svc.TrackEvent(context.Background(), []byte(`{"event_type":"login","timestamp":"2025-01-01T10:00:00Z"}`))
	require.Error(t, err)

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "user_id", verr.Fields[0].Field)
	require.Empty(t, publisher.calls)
	require.Equal(t, before+1, testutil.ToFloat64(eventsCounter.WithLabelValues(outcomeRejected)))
}

func TestTrackEventWrapsPublishFailures(t *testing.T) {
	publisher := &stubPublisher{err: errors.New("connection refused")}
	svc := NewService(publisher, "user_activity_events")

	_, err := svc.TrackEvent(context.Background(), []byte(`{"user_id":1,"event_type":"login","timestamp":"2025-01-01T10:00:00Z"}`))
	require.Error(t, err)

	var publishErr *queue.PublishError
	require.ErrorAs(t, err, &publishErr)
	require.Equal(t, "user_activity_events", publishErr.Queue)
	require.Contains(t, err.Error(), "connection refused")
}

func TestTrackEventKeepsTypedPublishError(t *testing.T) {
	typed := &queue.PublishError{Queue: "user_activity_events", Err: queue.ErrPublishNacked}
	publisher := &stubPublisher{err: typed}
	svc := NewService(publisher, "user_activity_events")

	_, err := svc.TrackEvent(context.Background(), []byte(`{"user_id":1,"event_type":"login","timestamp":"2025-01-01T10:00:00Z"}`))
	require.Same(t, typed, err)
	require.ErrorIs(t, err, queue.ErrPublishNacked)
}

func TestTrackEventBoundsPublishWithTimeout(t *testing.T) {
	publisher := &stubPublisher{}
	svc := NewService(publisher, "q", WithPublishTimeout(2*time.Second))

	start := time.Now()
	_, err := svc.TrackEvent(context.Background(), []byte(`{"user_id":1,"event_type":"login","timestamp":"2025-01-01T10:00:00Z"}`))
	require.NoError(t, err)

	require.Len(t, publisher.calls, 1)
	deadline := publisher.calls[0].deadline
	require.False(t, deadline.IsZero())
	require.WithinDuration(t, start.Add(2*time.Second), deadline, time.Second)
}
