package domain

import (
	"github.com/bytedance/sonic"
)

// wire mirrors encoding/json behaviour, including sorted map keys, so the
// published bytes are deterministic for a given event. Numbers inside
// metadata decode as json.Number and are re-encoded digit for digit, so
// integers beyond 2^53 and literals such as 1.0 survive unchanged.
var wire = sonic.Config{
	EscapeHTML:       true,
	SortMapKeys:      true,
	CompactMarshaler: true,
	CopyString:       true,
	ValidateString:   true,
	UseNumber:        true,
}.Froze()

// EncodeEvent renders the canonical JSON body published to the queue.
func EncodeEvent(event ActivityEvent) ([]byte, error) {
	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}
	return wire.Marshal(event)
}

// DecodeEvent parses a queued message body using the same rules applied at
// the HTTP boundary.
func DecodeEvent(body []byte) (ActivityEvent, error) {
	return ParseActivityEvent(body)
}

// EncodeMetadata renders metadata for the JSON column. Nil maps encode to nil.
func EncodeMetadata(metadata map[string]any) ([]byte, error) {
	if metadata == nil {
		return nil, nil
	}
	return wire.Marshal(metadata)
}
