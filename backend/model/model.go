package model

import (
	"encoding/json"
	"maps"
)

// Point is a single sampled position of a stroke.
type Point struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Pressure float64 `json:"pressure,omitempty"`
	T        int64   `json:"t,omitempty"`
}

// Stroke is an accumulative freehand element. Updates append points.
type Stroke struct {
	LineID      string  `json:"lineId"`
	Points      []Point `json:"points"`
	Color       string  `json:"color"`
	StrokeWidth float64 `json:"strokeWidth"`
}

func (s *Stroke) Clone() *Stroke {
	c := *s
	c.Points = make([]Point, len(s.Points))
	copy(c.Points, s.Points)
	return &c
}

type ShapeKind string

const (
	ShapeRectangle ShapeKind = "rectangle"
	ShapeCircle    ShapeKind = "circle"
	ShapeEllipse   ShapeKind = "ellipse"
	ShapeLine      ShapeKind = "line"
	ShapeArrow     ShapeKind = "arrow"
	ShapeTriangle  ShapeKind = "triangle"
	ShapeText      ShapeKind = "text"
)

func (k ShapeKind) Valid() bool {
	switch k {
	case ShapeRectangle, ShapeCircle, ShapeEllipse, ShapeLine,
		ShapeArrow, ShapeTriangle, ShapeText:
		return true
	}
	return false
}

// Shape is a whole-state element. Updates overwrite fields per key.
// Fields hold geometry and style exactly as sent by clients.
type Shape struct {
	ID     string
	Kind   ShapeKind
	Fields map[string]any
}

func (s *Shape) Clone() *Shape {
	return &Shape{
		ID:     s.ID,
		Kind:   s.Kind,
		Fields: cloneFields(s.Fields),
	}
}

// Merge overwrites s's fields with the given ones. Nested values are copied.
func (s *Shape) Merge(fields map[string]any) {
	if s.Fields == nil {
		s.Fields = make(map[string]any, len(fields))
	}
	for k, v := range fields {
		s.Fields[k] = cloneValue(v)
	}
}

func (s *Shape) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(s.Fields)+2)
	maps.Copy(m, s.Fields)
	m["id"] = s.ID
	m["kind"] = s.Kind
	return json.Marshal(m)
}

func cloneFields(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	c := make(map[string]any, len(fields))
	for k, v := range fields {
		c[k] = cloneValue(v)
	}
	return c
}

// cloneValue deep-copies values produced by encoding/json decoding into any.
func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneFields(t)
	case []any:
		c := make([]any, len(t))
		for i := range t {
			c[i] = cloneValue(t[i])
		}
		return c
	default:
		return v
	}
}

// Element is either a Stroke or a Shape. Exactly one of the fields is set.
type Element struct {
	Stroke *Stroke
	Shape  *Shape
}

func (e Element) ID() string {
	if e.Stroke != nil {
		return e.Stroke.LineID
	}
	if e.Shape != nil {
		return e.Shape.ID
	}
	return ""
}

func (e Element) IsStroke() bool {
	return e.Stroke != nil
}

func (e Element) Clone() Element {
	switch {
	case e.Stroke != nil:
		return Element{Stroke: e.Stroke.Clone()}
	case e.Shape != nil:
		return Element{Shape: e.Shape.Clone()}
	}
	return Element{}
}

func (e Element) MarshalJSON() ([]byte, error) {
	if e.Shape != nil {
		return e.Shape.MarshalJSON()
	}
	return json.Marshal(e.Stroke)
}

type ChatMessage struct {
	Username string `json:"username"`
	Message  string `json:"message"`
}

// RoomInfo is what a joining client learns about the room. Never carries the password.
type RoomInfo struct {
	ID           string   `json:"id"`
	Participants []string `json:"participants"`
}

type RoomStats struct {
	ID           string `json:"room_id"`
	Participants int    `json:"participants"`
	LiveMembers  int    `json:"live_members"`
	Elements     int    `json:"elements"`
	ChatMessages int    `json:"chat_messages"`
	UndoDepth    int    `json:"undo_depth"`
	RedoDepth    int    `json:"redo_depth"`
}
