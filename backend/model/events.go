package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrUnknownEvent     = errors.New("unknown event type")
	ErrMalformedPayload = errors.New("malformed payload")
	ErrNoRoomID         = errors.New("room id is missing")
	ErrUnknownShapeKind = errors.New("unknown shape kind")
	ErrNoShapeID        = errors.New("shape id is missing")
)

// RoomRef addresses a room either as {"roomId": "..."} or as a bare JSON string.
type RoomRef struct {
	RoomID string `json:"roomId"`
}

func (r *RoomRef) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		return json.Unmarshal(b, &r.RoomID)
	}
	type plain RoomRef
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*r = RoomRef(p)
	return nil
}

type (
	EnterRoom struct{ RoomRef }
	Undo      struct{ RoomRef }
	Redo      struct{ RoomRef }

	ChatEnter struct {
		Username string `json:"username"`
		RoomID   string `json:"roomId"`
		ClientID string `json:"id"`
	}

	Credentials struct {
		RoomID   string `json:"roomId"`
		Password string `json:"password"`
		Username string `json:"username"`
	}

	CreateRoom struct{ Credentials }
	JoinRoom   struct{ Credentials }

	StartLine struct {
		RoomID      string  `json:"roomId"`
		Color       string  `json:"color"`
		StrokeWidth float64 `json:"strokeWidth"`
	}

	// DrawUpdate carries either a point batch for a stroke or a field set for
	// a shape. Kind being set selects the shape path.
	DrawUpdate struct {
		RoomID      string    `json:"roomId"`
		LineID      string    `json:"lineId"`
		ID          string    `json:"id"`
		Kind        ShapeKind `json:"kind"`
		Points      []Point   `json:"points"`
		Color       string    `json:"color"`
		StrokeWidth float64   `json:"strokeWidth"`

		Fields map[string]any  `json:"-"`
		Raw    json.RawMessage `json:"-"`
	}

	ChatPost struct {
		RoomID   string `json:"roomId"`
		Username string `json:"username"`
		Message  string `json:"message"`
	}
)

func (u *DrawUpdate) IsShape() bool {
	return u.Kind != ""
}

// Room returns the id of the room an event addresses.
func Room(msg any) string {
	switch m := msg.(type) {
	case EnterRoom:
		return m.RoomID
	case Undo:
		return m.RoomID
	case Redo:
		return m.RoomID
	case ChatEnter:
		return m.RoomID
	case CreateRoom:
		return m.RoomID
	case JoinRoom:
		return m.RoomID
	case StartLine:
		return m.RoomID
	case DrawUpdate:
		return m.RoomID
	case ChatPost:
		return m.RoomID
	}
	return ""
}

// Decode turns an inbound event into one of the typed variants above.
func Decode(ev Event) (any, error) {
	var (
		msg any
		err error
	)
	switch ev.Type {
	case EventEnterRoom:
		msg, err = decode[EnterRoom](ev.Payload)
	case EventUndo:
		msg, err = decode[Undo](ev.Payload)
	case EventRedo:
		msg, err = decode[Redo](ev.Payload)
	case EventChatEnter:
		msg, err = decode[ChatEnter](ev.Payload)
	case EventCreateRoom:
		msg, err = decode[CreateRoom](ev.Payload)
	case EventJoinRoom:
		msg, err = decode[JoinRoom](ev.Payload)
	case EventStartLine:
		msg, err = decode[StartLine](ev.Payload)
	case EventDrawUpdate:
		msg, err = decodeDrawUpdate(ev.Payload)
	case EventChatMessage:
		msg, err = decode[ChatPost](ev.Payload)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Type)
	}
	if err != nil {
		return nil, err
	}
	if Room(msg) == "" {
		return nil, ErrNoRoomID
	}
	return msg, nil
}

func decode[T any](payload json.RawMessage) (T, error) {
	var v T
	if len(payload) == 0 {
		return v, ErrMalformedPayload
	}
	if err := json.Unmarshal(payload, &v); err != nil {
		return v, errors.Join(ErrMalformedPayload, err)
	}
	return v, nil
}

func decodeDrawUpdate(payload json.RawMessage) (DrawUpdate, error) {
	u, err := decode[DrawUpdate](payload)
	if err != nil {
		return u, err
	}
	u.Raw = payload
	if !u.IsShape() {
		return u, nil
	}
	if !u.Kind.Valid() {
		return u, fmt.Errorf("%w: %q", ErrUnknownShapeKind, u.Kind)
	}
	if u.ID == "" {
		return u, ErrNoShapeID
	}
	if err = json.Unmarshal(payload, &u.Fields); err != nil {
		return u, errors.Join(ErrMalformedPayload, err)
	}
	delete(u.Fields, "roomId")
	delete(u.Fields, "id")
	delete(u.Fields, "kind")
	return u, nil
}
