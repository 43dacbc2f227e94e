package model

import "encoding/json"

const (
	defaultWireBufferSize = 256
)

// Inbound event types.
const (
	EventEnterRoom   = "enter-room"
	EventChatEnter   = "chat-enter"
	EventCreateRoom  = "create-room"
	EventJoinRoom    = "join-room"
	EventStartLine   = "start-line"
	EventDrawUpdate  = "draw-update"
	EventUndo        = "undo"
	EventRedo        = "redo"
	EventChatMessage = "chat-message"
)

// Outbound announcement types that are not echoes of inbound events.
const (
	AnnouncementTypeAck          = "ack"
	AnnouncementTypeHandshake    = "handshake"
	AnnouncementTypeRoomCreated  = "room-created"
	AnnouncementTypeRoomJoined   = "room-joined"
	AnnouncementTypeInitDrawing  = "init-drawing"
	AnnouncementTypeInitChat     = "init-chat"
	AnnouncementTypeDrawingState = "drawing-state"
)

// Event is an inbound frame as read from a connection.
type Event struct {
	SRC     string          `json:"-"` // assigned by server from the websocket session
	Type    string          `json:"type"`
	Ref     string          `json:"ref,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// Announcement is an outbound frame.
type Announcement struct {
	SRC     string `json:"src,omitempty"`
	Type    string `json:"type"`
	Ref     string `json:"ref,omitempty"`
	Payload any    `json:"payload"`
}

// Reply is the payload of an ack announcement.
type Reply struct {
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

type Fanout int

const (
	// FanoutOthers reaches every live member of the room except the originator.
	FanoutOthers Fanout = iota
	// FanoutAll reaches every live member of the room including the originator.
	FanoutAll
	// FanoutReply reaches the originator only.
	FanoutReply
)

func (f Fanout) String() string {
	switch f {
	case FanoutOthers:
		return "others"
	case FanoutAll:
		return "all"
	case FanoutReply:
		return "reply"
	}
	return "unknown"
}

// Delivery is an outbound announcement tagged with its fan-out policy.
type Delivery struct {
	Fanout       Fanout
	Announcement Announcement
}

type Wire struct {
	RX chan Event
	TX chan Announcement
}

// NewWire creates a wire with a buffered TX side so that fan-out never blocks
// the room that produced the announcement.
func NewWire() Wire {
	return Wire{
		RX: make(chan Event),
		TX: make(chan Announcement, defaultWireBufferSize),
	}
}
