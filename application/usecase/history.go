package usecase

import (
	"time"

	"github.com/Skryldev/audioedit/domain/model"
)

// History is a linear undo/redo log of parameter snapshots. Appending past
// the cursor drops the forward entries.
type History struct {
	entries []model.HistoryEntry
	index   int
}

// NewHistory starts a history whose only entry is initial
func NewHistory(initial model.EditParameters, at time.Time) *History {
	h := &History{}
	h.Reset(initial, at)
	return h
}

// Reset discards every entry and records initial at index 0
func (h *History) Reset(initial model.EditParameters, at time.Time) {
	h.entries = []model.HistoryEntry{{Params: initial.Clone(), Timestamp: at, ActionType: "init"}}
	h.index = 0
}

// Push records a snapshot after the cursor
func (h *History) Push(params model.EditParameters, action string, at time.Time) {
	if h.index < len(h.entries)-1 {
		h.entries = h.entries[:h.index+1]
	}
	h.entries = append(h.entries, model.HistoryEntry{Params: params.Clone(), Timestamp: at, ActionType: action})
	h.index = len(h.entries) - 1
}

// Undo moves the cursor back and returns the snapshot there. It reports
// false at index 0.
func (h *History) Undo() (model.EditParameters, bool) {
	if h.index <= 0 {
		return model.EditParameters{}, false
	}
	h.index--
	return h.entries[h.index].Params.Clone(), true
}

// Redo moves the cursor forward. It reports false at the last entry.
func (h *History) Redo() (model.EditParameters, bool) {
	if h.index >= len(h.entries)-1 {
		return model.EditParameters{}, false
	}
	h.index++
	return h.entries[h.index].Params.Clone(), true
}

func (h *History) CanUndo() bool { return h.index > 0 }
func (h *History) CanRedo() bool { return h.index < len(h.entries)-1 }
func (h *History) Index() int    { return h.index }
func (h *History) Len() int      { return len(h.entries) }

// Entries returns a copy of the log
func (h *History) Entries() []model.HistoryEntry {
	out := make([]model.HistoryEntry, len(h.entries))
	for i, e := range h.entries {
		out[i] = model.HistoryEntry{Params: e.Params.Clone(), Timestamp: e.Timestamp, ActionType: e.ActionType}
	}
	return out
}
