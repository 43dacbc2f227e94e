// Package room holds the authoritative state of a single collaboration room:
// its drawing, undo/redo history, chat log and participants.
//
// Room is not safe for concurrent use. The registry serializes access to
// each room, and operations return the deliveries that have to be fanned out
// while that serialization still holds.
package room

import (
	"crypto/subtle"
	"time"

	"github.com/adwski/blackboard/backend/model"
	"github.com/google/uuid"
)

type Config struct {
	// HistoryLimit bounds each of the undo and redo stacks. Zero means unbounded.
	HistoryLimit int
	// NewLineID generates stroke ids. Defaults to random UUIDs.
	NewLineID func() string
}

type Room struct {
	id       string
	password string

	participants []string
	members      map[string]struct{}

	drawing *Drawing
	history *History
	chat    ChatLog

	newLineID  func() string
	lastActive time.Time
}

func New(id, password string, cfg Config) *Room {
	r := &Room{
		id:         id,
		password:   password,
		members:    make(map[string]struct{}),
		drawing:    NewDrawing(),
		history:    NewHistory(cfg.HistoryLimit),
		newLineID:  cfg.NewLineID,
		lastActive: time.Now(),
	}
	if r.newLineID == nil {
		r.newLineID = uuid.NewString
	}
	return r
}

func (r *Room) ID() string {
	return r.id
}

func (r *Room) CheckPassword(password string) bool {
	return subtle.ConstantTimeCompare([]byte(r.password), []byte(password)) == 1
}

// AddParticipant records member identifiers (connection ids, usernames).
// Empty and already known identifiers are ignored.
func (r *Room) AddParticipant(ids ...string) {
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := r.members[id]; ok {
			continue
		}
		r.members[id] = struct{}{}
		r.participants = append(r.participants, id)
	}
}

func (r *Room) HasParticipant(id string) bool {
	_, ok := r.members[id]
	return ok
}

func (r *Room) Info() model.RoomInfo {
	p := make([]string, len(r.participants))
	copy(p, r.participants)
	return model.RoomInfo{ID: r.id, Participants: p}
}

func (r *Room) Stats() model.RoomStats {
	undo, redo := r.history.Depth()
	return model.RoomStats{
		ID:           r.id,
		Participants: len(r.participants),
		Elements:     r.drawing.Len(),
		ChatMessages: r.chat.Len(),
		UndoDepth:    undo,
		RedoDepth:    redo,
	}
}

func (r *Room) Touch(t time.Time) {
	r.lastActive = t
}

func (r *Room) IdleSince() time.Time {
	return r.lastActive
}

// Elements returns a copy of the current drawing.
func (r *Room) Elements() []model.Element {
	return r.drawing.Elements()
}

// Messages returns a copy of the chat log.
func (r *Room) Messages() []model.ChatMessage {
	return r.chat.Messages()
}

type startedLine struct {
	RoomID string `json:"roomId"`
	model.Stroke
}

// StartLine creates an empty stroke with a fresh id and records an undo point
// holding the drawing as it was before the stroke.
func (r *Room) StartLine(req model.StartLine) (model.Stroke, []model.Delivery) {
	s := &model.Stroke{
		LineID:      r.newLineID(),
		Points:      make([]model.Point, 0),
		Color:       req.Color,
		StrokeWidth: req.StrokeWidth,
	}
	r.history.Record(r.drawing)
	r.drawing.AddStroke(s)

	started := *s.Clone()
	return started, []model.Delivery{{
		Fanout: model.FanoutOthers,
		Announcement: model.Announcement{
			Type:    model.EventStartLine,
			Payload: startedLine{RoomID: r.id, Stroke: started},
		},
	}}
}

// Draw applies a point batch or a shape update and relays the raw payload.
// Updates that cannot be applied are not relayed.
func (r *Room) Draw(u model.DrawUpdate) []model.Delivery {
	var applied bool
	if u.IsShape() {
		applied = r.drawing.UpsertShape(u)
	} else {
		applied = r.drawing.AppendPoints(u)
	}
	if !applied {
		return nil
	}
	return []model.Delivery{{
		Fanout: model.FanoutOthers,
		Announcement: model.Announcement{
			Type:    model.EventDrawUpdate,
			Payload: u.Raw,
		},
	}}
}

func (r *Room) Undo() []model.Delivery {
	prev, ok := r.history.Undo(r.drawing)
	if !ok {
		return nil
	}
	r.drawing = prev
	return r.drawingState()
}

func (r *Room) Redo() []model.Delivery {
	next, ok := r.history.Redo(r.drawing)
	if !ok {
		return nil
	}
	r.drawing = next
	return r.drawingState()
}

func (r *Room) drawingState() []model.Delivery {
	return []model.Delivery{{
		Fanout: model.FanoutAll,
		Announcement: model.Announcement{
			Type:    model.AnnouncementTypeDrawingState,
			Payload: r.drawing.Elements(),
		},
	}}
}

// PostMessage appends to the chat log and echoes the message to everyone.
// Blank messages are dropped silently.
func (r *Room) PostMessage(req model.ChatPost) []model.Delivery {
	msg, ok := r.chat.Post(req.Username, req.Message)
	if !ok {
		return nil
	}
	return []model.Delivery{{
		Fanout: model.FanoutAll,
		Announcement: model.Announcement{
			Type:    model.EventChatMessage,
			Payload: msg,
		},
	}}
}

// Replay brings a newly entered member up to date. Empty drawing
// and chat are not replayed.
func (r *Room) Replay() []model.Delivery {
	var ds []model.Delivery
	if r.drawing.Len() > 0 {
		ds = append(ds, reply(model.AnnouncementTypeInitDrawing, r.drawing.Elements()))
	}
	if r.chat.Len() > 0 {
		ds = append(ds, r.ReplayChat()...)
	}
	return ds
}

// ReplayChat sends the full chat log, even when empty.
func (r *Room) ReplayChat() []model.Delivery {
	return []model.Delivery{reply(model.AnnouncementTypeInitChat, r.chat.Messages())}
}

func reply(typ string, payload any) model.Delivery {
	return model.Delivery{
		Fanout:       model.FanoutReply,
		Announcement: model.Announcement{Type: typ, Payload: payload},
	}
}
