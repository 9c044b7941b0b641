package messages

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/golang/snappy"
)

// Payload markers. Encoded messages are a one byte marker followed by the JSON document, which
// is snappy-compressed when the marker is markerSnappy.
const (
	markerRaw    byte = 0
	markerSnappy byte = 1
)

// CompressAbove is the JSON size in bytes above which Encode compresses the payload.
const CompressAbove = 512

var (
	ErrEmptyPayload  = errors.New("empty payload")
	ErrUnknownMarker = errors.New("unknown payload marker")
)

// Encode serialises m for publishing.
func Encode(m Message) ([]byte, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}
	if len(body) <= CompressAbove {
		return append([]byte{markerRaw}, body...), nil
	}
	return append([]byte{markerSnappy}, snappy.Encode(nil, body)...), nil
}

// Decode parses a payload produced by Encode. Bare JSON documents, as published by older
// producers, are accepted as well.
func Decode(payload []byte) (Message, error) {
	if len(payload) == 0 {
		return Message{}, ErrEmptyPayload
	}

	var body []byte
	switch marker := payload[0]; marker {
	case markerRaw:
		body = payload[1:]
	case markerSnappy:
		decoded, err := snappy.Decode(nil, payload[1:])
		if err != nil {
			return Message{}, fmt.Errorf("decompress message: %w", err)
		}
		body = decoded
	case '{':
		body = payload
	default:
		return Message{}, fmt.Errorf("%w: 0x%02x", ErrUnknownMarker, marker)
	}

	msg := Message{}
	if err := json.Unmarshal(body, &msg); err != nil {
		return Message{}, fmt.Errorf("unmarshal message: %w", err)
	}
	return msg, nil
}
