// Package protocol defines the envelope exchanged between relay clients and
// the server, and the codecs for the structured payloads that travel as
// JSON-encoded strings inside the envelope's value field.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies what an envelope asks the server to do.
type MessageType string

// Message types understood by the relay. AllInfos and RoomProps are only
// ever emitted by the server.
const (
	TypeRequest           MessageType = "REQUEST"
	TypeAllInfos          MessageType = "ALL_INFOS"
	TypeUpdateParticipant MessageType = "UPDATE_PARTICIPANT"
	TypeUpdateContents    MessageType = "UPDATE_CONTENTS"
	TypeRemoveParticipant MessageType = "REMOVE_PARTICIPANT"
	TypeClear             MessageType = "CLEAR"
	TypeRoomsToShow       MessageType = "ROOMS_TO_SHOW"
	TypeRequestRoomProps  MessageType = "REQUEST_ROOM_PROPS"
	TypeRoomProps         MessageType = "ROOM_PROPS"
	TypeRoomProp          MessageType = "ROOM_PROP"
)

var (
	// ErrMalformedEnvelope is returned when a frame is not a JSON object
	// with the envelope's string fields.
	ErrMalformedEnvelope = errors.New("malformed envelope")

	// ErrMalformedValue is returned when the value field of an envelope
	// does not hold the structured payload its type requires.
	ErrMalformedValue = errors.New("malformed envelope value")
)

// Envelope is the fixed-shape message carried by every text frame.
type Envelope struct {
	Type        MessageType `json:"t"`
	Room        string      `json:"r"`
	Participant string      `json:"p"`
	Value       string      `json:"v"`
}

// Decode parses a text frame into an Envelope. Keys match exactly: "R" is
// not "r". Missing fields decode as empty strings; anything other than a
// JSON object is rejected.
func Decode(frame []byte) (Envelope, error) {
	trimmed := bytes.TrimSpace(frame)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Envelope{}, fmt.Errorf("%w: not a JSON object", ErrMalformedEnvelope)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}

	var env Envelope
	targets := []struct {
		key string
		dst *string
	}{
		{"t", (*string)(&env.Type)},
		{"r", &env.Room},
		{"p", &env.Participant},
		{"v", &env.Value},
	}
	for _, target := range targets {
		raw, ok := fields[target.key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, target.dst); err != nil {
			return Envelope{}, fmt.Errorf("%w: field %q: %v", ErrMalformedEnvelope, target.key, err)
		}
	}
	return env, nil
}

// Encode serialises an Envelope into a text frame.
func Encode(env Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return data, nil
}
