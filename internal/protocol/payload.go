package protocol

import (
	"encoding/json"
	"fmt"
)

// Entry is one keyed participant or content value inside a RoomInfo.
type Entry struct {
	ID    string `json:"p"`
	Value string `json:"v"`
}

// RoomInfo is the projection of a single room sent inside ALL_INFOS.
type RoomInfo struct {
	Room         string  `json:"r"`
	Participants []Entry `json:"ps"`
	Contents     []Entry `json:"cs"`
}

// Property is a room property. On the wire it is a two-element array
// [key, value].
type Property struct {
	Key   string
	Value string
}

// MarshalJSON encodes the property as a [key, value] pair.
func (p Property) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{p.Key, p.Value})
}

// UnmarshalJSON accepts exactly a two-element array of strings.
func (p *Property) UnmarshalJSON(data []byte) error {
	var pair []string
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("property pair has %d elements, want 2", len(pair))
	}
	p.Key, p.Value = pair[0], pair[1]
	return nil
}

// NewAllInfos builds the server's reply to REQUEST.
func NewAllInfos(infos []RoomInfo) (Envelope, error) {
	if infos == nil {
		infos = []RoomInfo{}
	}
	for i := range infos {
		if infos[i].Participants == nil {
			infos[i].Participants = []Entry{}
		}
		if infos[i].Contents == nil {
			infos[i].Contents = []Entry{}
		}
	}

	value, err := json.Marshal(infos)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode room infos: %w", err)
	}
	return Envelope{Type: TypeAllInfos, Value: string(value)}, nil
}

// NewRoomProps builds the server's reply to REQUEST_ROOM_PROPS.
func NewRoomProps(room string, props []Property) (Envelope, error) {
	if props == nil {
		props = []Property{}
	}

	value, err := json.Marshal(props)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode room properties: %w", err)
	}
	return Envelope{Type: TypeRoomProps, Room: room, Value: string(value)}, nil
}

// DecodeRoomNames parses the value of a ROOMS_TO_SHOW envelope.
func DecodeRoomNames(value string) ([]string, error) {
	var names []string
	if err := json.Unmarshal([]byte(value), &names); err != nil {
		return nil, fmt.Errorf("%w: room names: %v", ErrMalformedValue, err)
	}
	return names, nil
}

// DecodeProperty parses the value of a ROOM_PROP envelope.
func DecodeProperty(value string) (Property, error) {
	var prop Property
	if err := json.Unmarshal([]byte(value), &prop); err != nil {
		return Property{}, fmt.Errorf("%w: room property: %v", ErrMalformedValue, err)
	}
	return prop, nil
}

// DecodeRoomInfos parses the value of an ALL_INFOS envelope.
func DecodeRoomInfos(value string) ([]RoomInfo, error) {
	var infos []RoomInfo
	if err := json.Unmarshal([]byte(value), &infos); err != nil {
		return nil, fmt.Errorf("%w: room infos: %v", ErrMalformedValue, err)
	}
	return infos, nil
}

// DecodeProperties parses the value of a ROOM_PROPS envelope.
func DecodeProperties(value string) ([]Property, error) {
	var props []Property
	if err := json.Unmarshal([]byte(value), &props); err != nil {
		return nil, fmt.Errorf("%w: room properties: %v", ErrMalformedValue, err)
	}
	return props, nil
}
