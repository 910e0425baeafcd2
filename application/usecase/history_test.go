package usecase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Skryldev/audioedit/domain/model"
)

func TestHistoryUndoRedo(t *testing.T) {
	at := time.Unix(0, 0)
	base := model.DefaultEditParameters(10)
	h := NewHistory(base, at)

	var states []model.EditParameters
	for _, level := range []int{10, 20, 30} {
		p := base.Clone()
		p.VolumeNormalize = level
		h.Push(p, "normalize", at)
		states = append(states, p)
	}
	assert.Equal(t, 4, h.Len())
	assert.Equal(t, 3, h.Index())

	got, ok := h.Undo()
	assert.True(t, ok)
	assert.Equal(t, states[1], got)

	got, ok = h.Redo()
	assert.True(t, ok)
	assert.Equal(t, states[2], got)

	_, ok = h.Redo()
	assert.False(t, ok, "redo at the last entry is a no-op")
	assert.Equal(t, 3, h.Index())

	for i := 0; i < 3; i++ {
		_, ok = h.Undo()
		assert.True(t, ok)
	}
	_, ok = h.Undo()
	assert.False(t, ok, "undo at index 0 is a no-op")
	assert.Equal(t, 0, h.Index())
}

func TestHistoryPushTruncatesForward(t *testing.T) {
	at := time.Unix(0, 0)
	h := NewHistory(model.DefaultEditParameters(10), at)
	p := model.DefaultEditParameters(10)
	for i := 1; i <= 3; i++ {
		p.VolumeNormalize = i
		h.Push(p, "normalize", at)
	}
	h.Undo()
	h.Undo()

	p.VolumeNormalize = 99
	h.Push(p, "normalize", at)

	assert.Equal(t, 3, h.Len())
	assert.False(t, h.CanRedo())
	entries := h.Entries()
	assert.Equal(t, 1, entries[1].Params.VolumeNormalize)
	assert.Equal(t, 99, entries[2].Params.VolumeNormalize)
}

func TestHistorySnapshotsAreIndependent(t *testing.T) {
	at := time.Unix(0, 0)
	p := model.DefaultEditParameters(10)
	h := NewHistory(p, at)

	p.Effects[model.EffectReverb] = 80
	h.Push(p, "effects", at)
	p.Effects[model.EffectReverb] = 10

	prev, _ := h.Undo()
	assert.Equal(t, 0, prev.Effects[model.EffectReverb])
	next, _ := h.Redo()
	assert.Equal(t, 80, next.Effects[model.EffectReverb])
}
