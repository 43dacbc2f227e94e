package room

import "github.com/adwski/blackboard/backend/model"

// Drawing is the ordered set of elements visible in a room.
// At most one element exists per id and its kind never changes.
type Drawing struct {
	elements []model.Element
	index    map[string]int
}

func NewDrawing() *Drawing {
	return &Drawing{
		elements: make([]model.Element, 0),
		index:    make(map[string]int),
	}
}

func (d *Drawing) Len() int {
	return len(d.elements)
}

// Clone returns a deep, independent copy.
func (d *Drawing) Clone() *Drawing {
	c := &Drawing{
		elements: make([]model.Element, len(d.elements)),
		index:    make(map[string]int, len(d.index)),
	}
	for i, e := range d.elements {
		c.elements[i] = e.Clone()
	}
	for id, i := range d.index {
		c.index[id] = i
	}
	return c
}

// Elements returns a deep copy of the elements in creation order.
func (d *Drawing) Elements() []model.Element {
	return d.Clone().elements
}

func (d *Drawing) lookup(id string) (model.Element, bool) {
	i, ok := d.index[id]
	if !ok {
		return model.Element{}, false
	}
	return d.elements[i], true
}

func (d *Drawing) add(e model.Element) {
	d.index[e.ID()] = len(d.elements)
	d.elements = append(d.elements, e)
}

// AddStroke appends a new stroke. It reports false if the id is taken.
func (d *Drawing) AddStroke(s *model.Stroke) bool {
	if _, ok := d.index[s.LineID]; ok {
		return false
	}
	d.add(model.Element{Stroke: s})
	return true
}

// AppendPoints concatenates points to the stroke identified by u.LineID.
// An unknown id creates the stroke from the update. An update without id
// goes to the most recently created stroke.
// It reports false when nothing could be applied.
func (d *Drawing) AppendPoints(u model.DrawUpdate) bool {
	if u.LineID == "" {
		s := d.lastStroke()
		if s == nil {
			return false
		}
		s.Points = append(s.Points, u.Points...)
		return true
	}

	e, ok := d.lookup(u.LineID)
	if !ok {
		points := make([]model.Point, len(u.Points))
		copy(points, u.Points)
		d.add(model.Element{Stroke: &model.Stroke{
			LineID:      u.LineID,
			Points:      points,
			Color:       u.Color,
			StrokeWidth: u.StrokeWidth,
		}})
		return true
	}
	if !e.IsStroke() {
		return false
	}
	e.Stroke.Points = append(e.Stroke.Points, u.Points...)
	return true
}

// UpsertShape merges u.Fields into the shape identified by u.ID, or appends
// a new shape. It reports false if the id belongs to a stroke.
func (d *Drawing) UpsertShape(u model.DrawUpdate) bool {
	e, ok := d.lookup(u.ID)
	if !ok {
		s := &model.Shape{ID: u.ID, Kind: u.Kind}
		s.Merge(u.Fields)
		d.add(model.Element{Shape: s})
		return true
	}
	if e.IsStroke() {
		return false
	}
	e.Shape.Kind = u.Kind
	e.Shape.Merge(u.Fields)
	return true
}

func (d *Drawing) lastStroke() *model.Stroke {
	for i := len(d.elements) - 1; i >= 0; i-- {
		if d.elements[i].IsStroke() {
			return d.elements[i].Stroke
		}
	}
	return nil
}
