package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Error type codes reported alongside each invalid field.
const (
	ErrTypeMissing    = "value_error.missing"
	ErrTypeNotAllowed = "type_error.none.not_allowed"
	ErrTypeInteger    = "type_error.integer"
	ErrTypeString     = "type_error.str"
	ErrTypeMinLength  = "value_error.any_str.min_length"
	ErrTypeMaxLength  = "value_error.any_str.max_length"
	ErrTypeDatetime   = "value_error.datetime"
	ErrTypeDict       = "type_error.dict"
	ErrTypeJSONDecode = "value_error.jsondecode"
)

// FieldError describes one invalid field. An empty Field refers to the whole body.
type FieldError struct {
	Field   string
	Message string
	Type    string
}

// ValidationError is returned when an untrusted payload does not satisfy the
// event contract.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		name := f.Field
		if name == "" {
			name = "body"
		}
		parts = append(parts, name+": "+f.Message)
	}
	return "invalid activity event: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, message, typ string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message, Type: typ})
}

// ParseActivityEvent decodes and validates a raw JSON payload. Every invalid
// field is reported, not just the first.
func ParseActivityEvent(raw []byte) (ActivityEvent, error) {
	verr := &ValidationError{}

	var fields map[string]json.RawMessage
	if err := wire.Unmarshal(raw, &fields); err != nil {
		trimmed := bytes.TrimSpace(raw)
		if json.Valid(trimmed) {
			verr.add("", "value is not a valid dict", ErrTypeDict)
		} else {
			verr.add("", "JSON decode error: "+err.Error(), ErrTypeJSONDecode)
		}
		return ActivityEvent{}, verr
	}
	if fields == nil {
		verr.add("", "value is not a valid dict", ErrTypeDict)
		return ActivityEvent{}, verr
	}

	var event ActivityEvent

	if value, ok := required(verr, fields, "user_id"); ok {
		id, err := parseInteger(value)
		if err != nil {
			verr.add("user_id", "value is not a valid integer", ErrTypeInteger)
		} else {
			event.UserID = id
		}
	}

	if value, ok := required(verr, fields, "event_type"); ok {
		var eventType string
		if err := wire.Unmarshal(value, &eventType); err != nil {
			verr.add("event_type", "str type expected", ErrTypeString)
		} else {
			switch length := utf8.RuneCountInString(eventType); {
			case strings.TrimSpace(eventType) == "":
				verr.add("event_type", "ensure this value has at least 1 characters", ErrTypeMinLength)
			case length > MaxEventTypeLength:
				verr.add("event_type", "ensure this value has at most "+strconv.Itoa(MaxEventTypeLength)+" characters", ErrTypeMaxLength)
			default:
				event.EventType = eventType
			}
		}
	}

	if value, ok := required(verr, fields, "timestamp"); ok {
		var ts Timestamp
		if err := ts.UnmarshalJSON(value); err != nil {
			verr.add("timestamp", "invalid datetime format", ErrTypeDatetime)
		} else {
			event.Timestamp = ts
		}
	}

	event.Metadata = map[string]any{}
	if value, ok := fields["metadata"]; ok && !isNull(value) {
		var metadata map[string]any
		if err := wire.Unmarshal(value, &metadata); err != nil || metadata == nil {
			verr.add("metadata", "value is not a valid dict", ErrTypeDict)
		} else {
			event.Metadata = metadata
		}
	}

	if len(verr.Fields) > 0 {
		return ActivityEvent{}, verr
	}
	return event, nil
}

// Validate checks an already constructed event against the same rules.
func (e ActivityEvent) Validate() error {
	verr := &ValidationError{}
	if strings.TrimSpace(e.EventType) == "" {
		verr.add("event_type", "ensure this value has at least 1 characters", ErrTypeMinLength)
	} else if utf8.RuneCountInString(e.EventType) > MaxEventTypeLength {
		verr.add("event_type", "ensure this value has at most "+strconv.Itoa(MaxEventTypeLength)+" characters", ErrTypeMaxLength)
	}
	if e.Timestamp.IsZero() {
		verr.add("timestamp", "field required", ErrTypeMissing)
	}
	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}

func required(verr *ValidationError, fields map[string]json.RawMessage, name string) (json.RawMessage, bool) {
	value, ok := fields[name]
	if !ok {
		verr.add(name, "field required", ErrTypeMissing)
		return nil, false
	}
	if isNull(value) {
		verr.add(name, "none is not an allowed value", ErrTypeNotAllowed)
		return nil, false
	}
	return value, true
}

func isNull(value json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(value), []byte("null"))
}

// parseInteger accepts JSON integer literals only; strings, booleans and
// fractional numbers are rejected.
func parseInteger(value json.RawMessage) (int64, error) {
	text := string(bytes.TrimSpace(value))
	if text == "" || (text[0] != '-' && (text[0] < '0' || text[0] > '9')) {
		return 0, errors.New("not a number")
	}
	return strconv.ParseInt(text, 10, 64)
}
