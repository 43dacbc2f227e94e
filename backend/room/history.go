package room

// History keeps undo and redo snapshots of a Drawing.
// With a positive limit each stack keeps at most limit snapshots,
// the oldest being discarded first.
type History struct {
	undo  []*Drawing
	redo  []*Drawing
	limit int
}

func NewHistory(limit int) *History {
	return &History{limit: limit}
}

// Record saves a copy of current as the undo point and forgets the redo stack.
func (h *History) Record(current *Drawing) {
	h.undo = h.push(h.undo, current.Clone())
	clear(h.redo)
	h.redo = h.redo[:0]
}

// Undo returns the drawing to install instead of current.
// Current is moved onto the redo stack, the caller must not keep using it.
func (h *History) Undo(current *Drawing) (*Drawing, bool) {
	if len(h.undo) == 0 {
		return nil, false
	}
	var prev *Drawing
	h.undo, prev = pop(h.undo)
	h.redo = h.push(h.redo, current)
	return prev, true
}

// Redo mirrors Undo.
func (h *History) Redo(current *Drawing) (*Drawing, bool) {
	if len(h.redo) == 0 {
		return nil, false
	}
	var next *Drawing
	h.redo, next = pop(h.redo)
	h.undo = h.push(h.undo, current)
	return next, true
}

func (h *History) Depth() (undo, redo int) {
	return len(h.undo), len(h.redo)
}

func (h *History) push(stack []*Drawing, d *Drawing) []*Drawing {
	if h.limit > 0 && len(stack) >= h.limit {
		n := copy(stack, stack[len(stack)-h.limit+1:])
		clear(stack[n:])
		stack = stack[:n]
	}
	return append(stack, d)
}

func pop(stack []*Drawing) ([]*Drawing, *Drawing) {
	last := len(stack) - 1
	d := stack[last]
	stack[last] = nil
	return stack[:last], d
}
