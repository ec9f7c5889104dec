// Package domain defines the user activity event carried through the pipeline.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// MaxEventTypeLength matches the width of the event_type column.
const MaxEventTypeLength = 50

// ActivityEvent is the in-flight representation of one user activity.
type ActivityEvent struct {
	UserID    int64          `json:"user_id"`
	EventType string         `json:"event_type"`
	Timestamp Timestamp      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata"`
}

// Timestamp is a timezone-aware instant that always serialises with an explicit
// numeric offset ("+00:00" rather than "Z").
type Timestamp struct {
	time.Time
}

// canonicalLayout renders UTC as +00:00.
const canonicalLayout = "2006-01-02T15:04:05.999999999-07:00"

// timestampLayouts covers ISO-8601 date-times with a "T" or space separator,
// optional seconds and fraction, and an offset written as Z, ±hh:mm, ±hhmm,
// ±hh or omitted. Offset-less values are read as UTC.
var timestampLayouts = buildTimestampLayouts()

func buildTimestampLayouts() []string {
	var layouts []string
	for _, sep := range []string{"T", " "} {
		for _, clock := range []string{"15:04:05.999999999", "15:04"} {
			for _, zone := range []string{"Z07:00", "Z0700", "Z07", ""} {
				layouts = append(layouts, "2006-01-02"+sep+clock+zone)
			}
		}
	}
	return layouts
}

// ParseTimestamp parses an ISO-8601 date-time.
func ParseTimestamp(value string) (Timestamp, error) {
	value = strings.TrimSpace(value)
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return Timestamp{Time: parsed}, nil
		}
	}
	return Timestamp{}, fmt.Errorf("invalid ISO-8601 timestamp %q", value)
}

// String returns the canonical representation.
func (t Timestamp) String() string {
	return t.Time.Format(canonicalLayout)
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.Time.IsZero() {
		return nil, fmt.Errorf("timestamp is not set")
	}
	return []byte(`"` + t.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if len(raw) < 2 || raw[0] != '"' || raw[len(raw)-1] != '"' {
		return fmt.Errorf("timestamp must be a string, got %s", raw)
	}
	parsed, err := ParseTimestamp(raw[1 : len(raw)-1])
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Equal reports whether two events carry the same fields. Timestamps are
// compared as instants.
func (e ActivityEvent) Equal(other ActivityEvent) bool {
	if e.UserID != other.UserID || e.EventType != other.EventType {
		return false
	}
	if !e.Timestamp.Time.Equal(other.Timestamp.Time) {
		return false
	}
	left, err := EncodeMetadata(orEmpty(e.Metadata))
	if err != nil {
		return false
	}
	right, err := EncodeMetadata(orEmpty(other.Metadata))
	if err != nil {
		return false
	}
	return string(left) == string(right)
}

func orEmpty(metadata map[string]any) map[string]any {
	if metadata == nil {
		return map[string]any{}
	}
	return metadata
}
