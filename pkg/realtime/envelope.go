package realtime

import (
	"encoding/json"
	"errors"
)

var errMissingEventName = errors.New("missing event name")

// Envelope is one frame on the wire.
type Envelope struct {
	Event EventName       `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals data into an envelope named name. Nil data is omitted.
func NewEnvelope(name EventName, data any) (Envelope, error) {
	if name == "" {
		return Envelope{}, errMissingEventName
	}
	env := Envelope{Event: name}
	if data == nil {
		return env, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	env.Data = raw
	return env, nil
}

// MarshalFrame encodes an envelope as a text frame payload.
func MarshalFrame(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}

// UnmarshalFrame decodes a text frame payload.
func UnmarshalFrame(b []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return Envelope{}, &ProtocolError{Err: err}
	}
	if env.Event == "" {
		return Envelope{}, &ProtocolError{Err: errMissingEventName}
	}
	return env, nil
}
