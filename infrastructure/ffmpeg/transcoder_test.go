package ffmpeg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skryldev/audioedit/domain/model"
	"github.com/Skryldev/audioedit/internal/mocks"
	"github.com/Skryldev/audioedit/pkg/logger"
)

func TestTranscodeBuildsCodecArgs(t *testing.T) {
	exec := &mocks.MockFFmpegExecutor{}
	tr := NewTranscoder(exec, logger.Nop())

	err := tr.Transcode(context.Background(), "in.wav", "out.mp3", model.EncodeOptions{
		Format:  model.FormatMP3,
		Quality: model.QualityLow,
	})
	require.NoError(t, err)
	require.Len(t, exec.ExecutedArgs, 1)

	args := exec.ExecutedArgs[0]
	assert.Equal(t, []string{"-y", "-i", "in.wav"}, args[:3])
	assert.Contains(t, args, "libmp3lame")
	assert.Contains(t, args, "96k")
	assert.Contains(t, args, "aresample=22050,aformat=channel_layouts=mono")
	assert.Equal(t, "out.mp3", args[len(args)-1])
}

func TestTranscodeRejectsWAV(t *testing.T) {
	exec := &mocks.MockFFmpegExecutor{}
	err := NewTranscoder(exec, nil).Transcode(context.Background(), "in.wav", "out.wav", model.EncodeOptions{Format: model.FormatWAV})
	assert.Error(t, err)
	assert.Empty(t, exec.ExecutedArgs)
}

func TestTranscodePropagatesExecutorError(t *testing.T) {
	boom := errors.New("encoder missing")
	exec := &mocks.MockFFmpegExecutor{
		ExecuteFunc: func(context.Context, []string) error { return boom },
	}
	err := NewTranscoder(exec, nil).Transcode(context.Background(), "a.wav", "a.ogg", model.EncodeOptions{Format: model.FormatOGG})
	assert.ErrorIs(t, err, boom)
}

func TestProbeMetadata(t *testing.T) {
	tr := NewTranscoder(&mocks.MockFFmpegExecutor{}, nil)
	meta, err := tr.ProbeMetadata(context.Background(), "x.wav")
	require.NoError(t, err)
	assert.Equal(t, 120500*time.Millisecond, meta.Duration)
	assert.Equal(t, 44100, meta.SampleRate)
	assert.Equal(t, 2, meta.Channels)
	assert.Equal(t, "pcm_s16le", meta.Codec)
}

func TestParseProbeInvalidJSON(t *testing.T) {
	_, err := parseProbe([]byte("{"))
	assert.Error(t, err)
}

func TestFilterChainBuilder(t *testing.T) {
	fb := NewFilterChainBuilder()
	assert.True(t, fb.IsEmpty())
	fb.AddResample(0).AddChannelLayout(6)
	assert.True(t, fb.IsEmpty())
	fb.AddResample(48000).AddChannelLayout(2)
	assert.Equal(t, "aresample=48000,aformat=channel_layouts=stereo", fb.Build())
}
