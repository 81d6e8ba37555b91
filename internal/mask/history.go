package mask

import "errors"

// MaxHistory is the number of undo steps kept per canvas.
const MaxHistory = 50

// DefaultHistoryBytes is the snapshot budget of a History without one.
const DefaultHistoryBytes = 128 << 20

var ErrNoHistory = errors.New("mask: nothing to undo or redo")

// History keeps full pixel snapshots for undo and redo. Undo and redo
// together hold at most Slots snapshots; the oldest undo step goes first.
type History struct {
	// Budget caps snapshot bytes; zero means DefaultHistoryBytes.
	Budget int

	undo [][]byte
	redo [][]byte
}

// Slots is the number of snapshots of size bytes the history may hold. At
// least one step survives so a single stroke can always be undone.
func (h *History) Slots(size int) int {
	budget := h.Budget
	if budget <= 0 {
		budget = DefaultHistoryBytes
	}
	if size <= 0 {
		return MaxHistory
	}
	return min(MaxHistory, max(1, budget/size))
}

// Record stores the canvas state that precedes a mutation.
func (h *History) Record(c *Canvas) {
	h.redo = nil
	h.undo = append(h.undo, c.snapshot())
	if limit := h.Slots(len(c.img.Pix)); len(h.undo) > limit {
		drop := len(h.undo) - limit
		clear(h.undo[:drop])
		h.undo = h.undo[drop:]
	}
}

func (h *History) Undo(c *Canvas) error {
	if len(h.undo) == 0 {
		return ErrNoHistory
	}
	last := h.undo[len(h.undo)-1]
	h.undo = h.undo[:len(h.undo)-1]
	h.redo = append(h.redo, c.snapshot())
	c.restore(last)
	return nil
}

func (h *History) Redo(c *Canvas) error {
	if len(h.redo) == 0 {
		return ErrNoHistory
	}
	last := h.redo[len(h.redo)-1]
	h.redo = h.redo[:len(h.redo)-1]
	h.undo = append(h.undo, c.snapshot())
	c.restore(last)
	return nil
}

func (h *History) CanUndo() bool { return len(h.undo) > 0 }
func (h *History) CanRedo() bool { return len(h.redo) > 0 }

// Bytes is the memory held by snapshots.
func (h *History) Bytes() int {
	n := 0
	for _, s := range h.undo {
		n += len(s)
	}
	for _, s := range h.redo {
		n += len(s)
	}
	return n
}
