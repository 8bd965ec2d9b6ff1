package notification

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/yrippert-maker/klg-asutk-app-sub001/internal/pkg/validator"
)

// Heartbeat payloads exchanged over the realtime connection
const (
	HeartbeatPing = "ping"
	HeartbeatPong = "pong"
)

// Frame is a decoded realtime notification payload.
type Frame struct {
	Kind       Kind
	RawType    string
	EntityType string
	EntityID   string
	ID         string
	Title      string
	Body       string
	Timestamp  time.Time

	// Fields holds every top-level field of the payload, known or not,
	// exactly as received.
	Fields map[string]json.RawMessage
}

type frameEnvelope struct {
	Type       string `json:"type" validate:"required"`
	EntityType string `json:"entity_type" validate:"required"`
	Timestamp  string `json:"timestamp" validate:"required"`
}

// IsHeartbeat reports whether data is the heartbeat acknowledgment
func IsHeartbeat(data []byte) bool {
	return string(bytes.TrimSpace(data)) == HeartbeatPong
}

// DecodeFrame parses a realtime text frame. Heartbeat acks yield
// ErrHeartbeatFrame; anything that is not a JSON object carrying type,
// entity_type and timestamp yields ErrMalformedFrame.
func DecodeFrame(data []byte) (Frame, error) {
	if IsHeartbeat(data) {
		return Frame{}, ErrHeartbeatFrame
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if fields == nil {
		return Frame{}, fmt.Errorf("%w: payload is null", ErrMalformedFrame)
	}

	env := frameEnvelope{
		Type:       stringField(fields, "type"),
		EntityType: stringField(fields, "entity_type"),
		Timestamp:  stringField(fields, "timestamp"),
	}
	if err := validator.Struct(env); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	// An unreadable timestamp stays zero; the raw value remains in Fields
	ts, _ := validator.IsValidDateTime(env.Timestamp)

	body := stringField(fields, "body")
	if body == "" {
		body = stringField(fields, "message")
	}

	return Frame{
		Kind:       ParseKind(env.Type),
		RawType:    env.Type,
		EntityType: env.EntityType,
		EntityID:   stringField(fields, "entity_id"),
		ID:         stringField(fields, "id"),
		Title:      stringField(fields, "title"),
		Body:       body,
		Timestamp:  ts,
		Fields:     fields,
	}, nil
}

// MarshalJSON re-emits the payload as received
func (f Frame) MarshalJSON() ([]byte, error) {
	if f.Fields == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(f.Fields)
}

// Notification converts the frame into an unread Notification.
func (f Frame) Notification() Notification {
	title := f.Title
	if title == "" {
		title = strings.ReplaceAll(f.RawType, "_", " ")
	}
	return Notification{
		ID:         f.ID,
		Title:      title,
		Body:       f.Body,
		IsRead:     false,
		CreatedAt:  f.Timestamp,
		Kind:       f.Kind,
		EntityType: f.EntityType,
		EntityID:   f.EntityID,
	}
}

// stringField reads a string or number field; other JSON types read as "".
func stringField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
