package audioedit

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skryldev/audioedit/domain/model"
	"github.com/Skryldev/audioedit/infrastructure/persistence"
	"github.com/Skryldev/audioedit/pkg/logger"
)

func newTestEditor(t *testing.T) *Editor {
	t.Helper()
	ed, err := New(Config{
		DisableFFmpeg:    true,
		Logger:           logger.Nop(),
		StorageDir:       t.TempDir(),
		AutoSaveDir:      t.TempDir(),
		AutoSaveInterval: time.Hour,
		PreviewDebounce:  time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ed.Close() })
	return ed
}

func writeTone(t *testing.T, ed *Editor, seconds float64) AudioRef {
	t.Helper()
	const rate = 8000
	n := int(seconds * rate)
	buf := model.NewBuffer(1, n, rate)
	for i := range buf.Channels[0] {
		buf.Channels[0][i] = 0.3 * math.Sin(2*math.Pi*220*float64(i)/rate)
	}
	ref, err := ed.Engine().Encode(context.Background(), buf)
	require.NoError(t, err)
	return ref
}

func TestNew_NativeOnly(t *testing.T) {
	ed := newTestEditor(t)
	caps := ed.Capabilities()
	assert.False(t, caps.FFmpeg)
	assert.True(t, caps.OpusDecode)
	assert.Equal(t, 4, caps.Workers)
}

func TestEditor_SessionSaveCommitsToStore(t *testing.T) {
	ctx := context.Background()
	ed := newTestEditor(t)
	src := writeTone(t, ed, 3)

	s, err := ed.NewSession(SessionOptions{})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.InitSession(ctx, AudioAsset{ID: "tone", URL: src.URL}))
	assert.InDelta(t, 3.0, s.Duration(), 0.01)

	require.NoError(t, s.SetTrim(0.5, 2.5))
	require.NoError(t, s.SetVolumeNormalize(60))
	_, err = s.AddSubtitle(0.5, 1.5, "hello")
	require.NoError(t, err)

	require.NoError(t, s.SaveEdits(ctx))
	assert.False(t, s.IsDirty())

	rec, err := persistence.NewStoreCommitter(ed.Store()).Last(ctx, "tone")
	require.NoError(t, err)
	assert.NotEmpty(t, rec.AudioURL)
	assert.Equal(t, "hello", rec.Transcript)
	require.NotNil(t, rec.Duration)
	assert.InDelta(t, 2.0, *rec.Duration, 1e-6)

	require.NoError(t, s.SetExportFormat(FormatWAV))
	res, err := s.PrepareExport(ctx)
	require.NoError(t, err)
	assert.Equal(t, FormatWAV, res.Ref.Format)
	assert.InDelta(t, 2.0, res.Ref.Duration, 0.01)
	require.NoError(t, ed.Engine().Dispose(ctx, res.Ref))
}

func TestEditor_ProbeNativeWAV(t *testing.T) {
	ed := newTestEditor(t)
	src := writeTone(t, ed, 1)

	meta, err := ed.ProbeAudio(context.Background(), src.URL)
	require.NoError(t, err)
	assert.Equal(t, 8000, meta.SampleRate)
	assert.InDelta(t, time.Second.Seconds(), meta.Duration.Seconds(), 0.01)
}
