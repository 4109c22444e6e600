package editor

import "qrstudio/internal/domain"

// History is a linear snapshot history with a cursor. Every snapshot is a
// full copy of the element collection.
type History struct {
	snapshots [][]domain.Element
	pointer   int // index of the current state, -1 when empty
	limit     int // 0 means unbounded
}

// NewHistory creates an empty history keeping at most limit snapshots.
func NewHistory(limit int) *History {
	return &History{pointer: -1, limit: limit}
}

// Reset discards all snapshots and records initial as the only state.
func (h *History) Reset(initial []domain.Element) {
	h.snapshots = nil
	h.pointer = -1
	h.Record(initial)
}

// Record truncates any redo branch and appends state as the current one.
func (h *History) Record(state []domain.Element) {
	h.snapshots = append(h.snapshots[:h.pointer+1], copySnapshot(state))
	h.pointer = len(h.snapshots) - 1
	if h.limit > 0 && len(h.snapshots) > h.limit {
		drop := len(h.snapshots) - h.limit
		h.snapshots = append([][]domain.Element(nil), h.snapshots[drop:]...)
		h.pointer -= drop
	}
}

// Undo steps back and returns the state to restore.
func (h *History) Undo() ([]domain.Element, bool) {
	if !h.CanUndo() {
		return nil, false
	}
	h.pointer--
	return copySnapshot(h.snapshots[h.pointer]), true
}

// Redo steps forward and returns the state to restore.
func (h *History) Redo() ([]domain.Element, bool) {
	if !h.CanRedo() {
		return nil, false
	}
	h.pointer++
	return copySnapshot(h.snapshots[h.pointer]), true
}

func (h *History) CanUndo() bool { return h.pointer > 0 }
func (h *History) CanRedo() bool { return h.pointer >= 0 && h.pointer < len(h.snapshots)-1 }
func (h *History) Len() int      { return len(h.snapshots) }

func copySnapshot(s []domain.Element) []domain.Element {
	out := make([]domain.Element, len(s))
	for i, el := range s {
		out[i] = el.Clone()
	}
	return out
}
