package room

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/adwski/blackboard/backend/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seqIDs() func() string {
	var n int
	return func() string {
		n++
		return fmt.Sprintf("L%d", n)
	}
}

func newTestRoom(t *testing.T, limit int) *Room {
	t.Helper()
	return New("room1", "secret", Config{HistoryLimit: limit, NewLineID: seqIDs()})
}

func points(xy ...float64) []model.Point {
	pts := make([]model.Point, 0, len(xy)/2)
	for i := 0; i+1 < len(xy); i += 2 {
		pts = append(pts, model.Point{X: xy[i], Y: xy[i+1]})
	}
	return pts
}

func strokeUpdate(lineID string, pts []model.Point) model.DrawUpdate {
	raw, _ := json.Marshal(map[string]any{"roomId": "room1", "lineId": lineID, "points": pts})
	return model.DrawUpdate{RoomID: "room1", LineID: lineID, Points: pts, Raw: raw}
}

func TestRoom_StartLineAndAppend(t *testing.T) {
	r := newTestRoom(t, 0)

	stroke, ds := r.StartLine(model.StartLine{RoomID: "room1", Color: "red", StrokeWidth: 2})
	assert.Equal(t, "L1", stroke.LineID)
	assert.Empty(t, stroke.Points)

	require.Len(t, ds, 1)
	assert.Equal(t, model.FanoutOthers, ds[0].Fanout)
	assert.Equal(t, model.EventStartLine, ds[0].Announcement.Type)
	b, err := json.Marshal(ds[0].Announcement.Payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"roomId":"room1","lineId":"L1","points":[],"color":"red","strokeWidth":2}`, string(b))

	u1 := strokeUpdate("L1", points(0, 0, 1, 1))
	ds = r.Draw(u1)
	require.Len(t, ds, 1)
	assert.Equal(t, model.FanoutOthers, ds[0].Fanout)
	assert.Equal(t, u1.Raw, ds[0].Announcement.Payload)

	r.Draw(strokeUpdate("L1", points(2, 2)))

	elems := r.Elements()
	require.Len(t, elems, 1)
	assert.Equal(t, points(0, 0, 1, 1, 2, 2), elems[0].Stroke.Points)
}

func TestRoom_AppendUnknownLineCreatesStroke(t *testing.T) {
	r := newTestRoom(t, 0)

	u := strokeUpdate("X", points(5, 5))
	u.Color = "blue"
	u.StrokeWidth = 3
	require.Len(t, r.Draw(u), 1)

	elems := r.Elements()
	require.Len(t, elems, 1)
	assert.Equal(t, &model.Stroke{LineID: "X", Points: points(5, 5), Color: "blue", StrokeWidth: 3}, elems[0].Stroke)

	undo, _ := r.history.Depth()
	assert.Zero(t, undo)
}

func TestRoom_AppendWithoutLineIDGoesToLastStroke(t *testing.T) {
	r := newTestRoom(t, 0)

	assert.Nil(t, r.Draw(strokeUpdate("", points(1, 1))))

	r.StartLine(model.StartLine{Color: "red"})
	r.StartLine(model.StartLine{Color: "green"})
	require.Len(t, r.Draw(strokeUpdate("", points(1, 1))), 1)

	elems := r.Elements()
	assert.Empty(t, elems[0].Stroke.Points)
	assert.Equal(t, points(1, 1), elems[1].Stroke.Points)
}

func TestRoom_Shapes(t *testing.T) {
	r := newTestRoom(t, 0)

	ds := r.Draw(model.DrawUpdate{
		ID: "s1", Kind: model.ShapeRectangle,
		Fields: map[string]any{"x": 1.0, "y": 1.0, "w": 10.0},
		Raw:    json.RawMessage(`{"id":"s1"}`),
	})
	require.Len(t, ds, 1)

	r.Draw(model.DrawUpdate{
		ID: "s1", Kind: model.ShapeRectangle,
		Fields: map[string]any{"w": 20.0},
	})

	elems := r.Elements()
	require.Len(t, elems, 1)
	assert.Equal(t, map[string]any{"x": 1.0, "y": 1.0, "w": 20.0}, elems[0].Shape.Fields)

	undo, _ := r.history.Depth()
	assert.Zero(t, undo, "shape updates do not record undo points")
}

func TestRoom_KindNeverChanges(t *testing.T) {
	r := newTestRoom(t, 0)
	r.StartLine(model.StartLine{})

	assert.Nil(t, r.Draw(model.DrawUpdate{ID: "L1", Kind: model.ShapeCircle}))

	r.Draw(model.DrawUpdate{ID: "s1", Kind: model.ShapeCircle})
	assert.Nil(t, r.Draw(strokeUpdate("s1", points(1, 1))))

	elems := r.Elements()
	require.Len(t, elems, 2)
	assert.True(t, elems[0].IsStroke())
	assert.False(t, elems[1].IsStroke())
}

func TestRoom_UndoRedoScenario(t *testing.T) {
	r := newTestRoom(t, 0)

	stroke, _ := r.StartLine(model.StartLine{Color: "red", StrokeWidth: 2})
	r.Draw(strokeUpdate(stroke.LineID, points(0, 0, 1, 1)))

	ds := r.Undo()
	require.Len(t, ds, 1)
	assert.Equal(t, model.FanoutAll, ds[0].Fanout)
	assert.Equal(t, model.AnnouncementTypeDrawingState, ds[0].Announcement.Type)
	assert.Empty(t, ds[0].Announcement.Payload)
	assert.Empty(t, r.Elements())

	ds = r.Redo()
	require.Len(t, ds, 1)
	want := []model.Element{{Stroke: &model.Stroke{
		LineID: "L1", Points: points(0, 0, 1, 1), Color: "red", StrokeWidth: 2,
	}}}
	assert.Equal(t, want, ds[0].Announcement.Payload)
	assert.Equal(t, want, r.Elements())
}

func TestRoom_UndoRedoEmptyIsNoOp(t *testing.T) {
	r := newTestRoom(t, 0)
	assert.Nil(t, r.Undo())
	assert.Nil(t, r.Redo())

	r.StartLine(model.StartLine{})
	before := r.Elements()
	assert.Nil(t, r.Redo())
	assert.Equal(t, before, r.Elements())
}

func TestRoom_StartLineClearsRedo(t *testing.T) {
	r := newTestRoom(t, 0)
	r.StartLine(model.StartLine{})
	r.StartLine(model.StartLine{})
	require.NotNil(t, r.Undo())

	_, redo := r.history.Depth()
	assert.Equal(t, 1, redo)

	r.StartLine(model.StartLine{})
	assert.Nil(t, r.Redo())
}

func TestRoom_DrawAndChatKeepRedo(t *testing.T) {
	r := newTestRoom(t, 0)
	r.StartLine(model.StartLine{})
	r.StartLine(model.StartLine{})
	require.NotNil(t, r.Undo())

	r.Draw(strokeUpdate("L1", points(1, 1)))
	r.Draw(model.DrawUpdate{ID: "s1", Kind: model.ShapeLine})
	r.PostMessage(model.ChatPost{Username: "alice", Message: "hi"})

	require.NotNil(t, r.Redo())
	assert.Len(t, r.Elements(), 2)
}

func TestRoom_SnapshotsAreIndependent(t *testing.T) {
	r := newTestRoom(t, 0)
	r.StartLine(model.StartLine{})
	r.Draw(strokeUpdate("L1", points(1, 1)))
	r.StartLine(model.StartLine{})

	// mutate the stroke captured in the latest undo point
	r.Draw(strokeUpdate("L1", points(2, 2)))

	r.Undo()
	elems := r.Elements()
	require.Len(t, elems, 1)
	assert.Equal(t, points(1, 1), elems[0].Stroke.Points)
}

func TestRoom_HistoryLimit(t *testing.T) {
	r := newTestRoom(t, 2)
	for range 5 {
		r.StartLine(model.StartLine{})
	}
	undo, _ := r.history.Depth()
	assert.Equal(t, 2, undo)

	require.NotNil(t, r.Undo())
	require.NotNil(t, r.Undo())
	assert.Nil(t, r.Undo())
	assert.Len(t, r.Elements(), 3)
}

func TestRoom_Chat(t *testing.T) {
	r := newTestRoom(t, 0)

	assert.Nil(t, r.PostMessage(model.ChatPost{Username: "alice", Message: ""}))
	assert.Nil(t, r.PostMessage(model.ChatPost{Username: "alice", Message: "  \t\n"}))
	assert.Empty(t, r.Messages())

	ds := r.PostMessage(model.ChatPost{Username: "alice", Message: "hi"})
	require.Len(t, ds, 1)
	assert.Equal(t, model.FanoutAll, ds[0].Fanout)
	assert.Equal(t, model.ChatMessage{Username: "alice", Message: "hi"}, ds[0].Announcement.Payload)
	assert.Equal(t, []model.ChatMessage{{Username: "alice", Message: "hi"}}, r.Messages())
}

func TestRoom_Replay(t *testing.T) {
	r := newTestRoom(t, 0)
	assert.Empty(t, r.Replay())

	chat := r.ReplayChat()
	require.Len(t, chat, 1)
	assert.Equal(t, model.AnnouncementTypeInitChat, chat[0].Announcement.Type)

	r.StartLine(model.StartLine{})
	ds := r.Replay()
	require.Len(t, ds, 1)
	assert.Equal(t, model.AnnouncementTypeInitDrawing, ds[0].Announcement.Type)

	r.PostMessage(model.ChatPost{Username: "bob", Message: "yo"})
	ds = r.Replay()
	require.Len(t, ds, 2)
	for _, d := range ds {
		assert.Equal(t, model.FanoutReply, d.Fanout)
	}
	assert.Equal(t, model.AnnouncementTypeInitChat, ds[1].Announcement.Type)
}

func TestRoom_Participants(t *testing.T) {
	r := newTestRoom(t, 0)
	r.AddParticipant("conn-1", "alice")
	r.AddParticipant("alice", "", "conn-2")

	assert.Equal(t, model.RoomInfo{ID: "room1", Participants: []string{"conn-1", "alice", "conn-2"}}, r.Info())
	assert.True(t, r.HasParticipant("alice"))
	assert.False(t, r.HasParticipant("bob"))
	assert.True(t, r.CheckPassword("secret"))
	assert.False(t, r.CheckPassword("wrong"))
}
