package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseTimestampNormalisesZulu(t *testing.T) {
	ts, err := ParseTimestamp("2025-01-01T10:00:00Z")
	require.NoError(t, err)
	require.Equal(t, "2025-01-01T10:00:00+00:00", ts.String())
}

func TestParseTimestampKeepsOffset(t *testing.T) {
	ts, err := ParseTimestamp("2025-01-01T12:00:00+02:00")
	require.NoError(t, err)
	require.Equal(t, "2025-01-01T12:00:00+02:00", ts.String())
	require.True(t, ts.Equal(time.Date(2025, time.January, 1, 10, 0, 0, 0, time.UTC)))
}

func TestParseTimestampFractionalAndNaive(t *testing.T) {
	ts, err := ParseTimestamp("2025-01-01T10:00:00.250000")
	require.NoError(t, err)
	require.Equal(t, time.UTC, ts.Location())
	require.Equal(t, 250*time.Millisecond, time.Duration(ts.Nanosecond()))

	_, err = ParseTimestamp("2025-01-01 10:00:00+00:00")
	require.NoError(t, err)
}

func TestParseTimestampAcceptsISO8601Variants(t *testing.T) {
	cases := map[string]string{
		"2025-01-01T10:00Z":             "2025-01-01T10:00:00+00:00",
		"2025-01-01T10:00":              "2025-01-01T10:00:00+00:00",
		"2025-01-01T15:30:00+0530":      "2025-01-01T15:30:00+05:30",
		"2025-01-01T15:30+05:30":        "2025-01-01T15:30:00+05:30",
		"2025-01-01T15:00:00+05":        "2025-01-01T15:00:00+05:00",
		"2025-01-01T05:00:00.5-05":      "2025-01-01T05:00:00.5-05:00",
		"2025-01-01 10:00:00Z":          "2025-01-01T10:00:00+00:00",
		"2025-01-01T10:00:00.123456Z":   "2025-01-01T10:00:00.123456+00:00",
		"2025-01-01T12:00:00.000+02:00": "2025-01-01T12:00:00+02:00",
	}
	for value, want := range cases {
		t.Run(value, func(t *testing.T) {
			ts, err := ParseTimestamp(value)
			require.NoError(t, err)
			require.Equal(t, want, ts.String())
		})
	}

	ts, err := ParseTimestamp("2025-01-01T15:30:00+0530")
	require.NoError(t, err)
	require.True(t, ts.Equal(time.Date(2025, time.January, 1, 10, 0, 0, 0, time.UTC)))
}

func TestParseTimestampRejectsGarbage(t *testing.T) {
	for _, value := range []string{"", "2025-13-01T10:00:00Z", "01/01/2025", "2025-01-01T10:00:00 UTC"} {
		_, err := ParseTimestamp(value)
		require.Errorf(t, err, "value %q", value)
	}
}

func TestTimestampJSON(t *testing.T) {
	var ts Timestamp
	require.NoError(t, ts.UnmarshalJSON([]byte(`"2025-01-01T10:00:00Z"`)))
	out, err := ts.MarshalJSON()
	require.NoError(t, err)
	require.Equal(t, `"2025-01-01T10:00:00+00:00"`, string(out))

	require.Error(t, ts.UnmarshalJSON([]byte(`12`)))

	_, err = Timestamp{}.MarshalJSON()
	require.Error(t, err)
}

func TestEqualTreatsNilMetadataAsEmpty(t *testing.T) {
	ts, err := ParseTimestamp("2025-01-01T10:00:00Z")
	require.NoError(t, err)

	a := ActivityEvent{UserID: 1, EventType: "login", Timestamp: ts}
	b := ActivityEvent{UserID: 1, EventType: "login", Timestamp: ts, Metadata: map[string]any{}}
	require.True(t, a.Equal(b))

	b.Metadata["k"] = "v"
	require.False(t, a.Equal(b))
}
