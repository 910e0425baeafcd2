package pipeline

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skryldev/audioedit/domain/model"
	"github.com/Skryldev/audioedit/domain/ports"
	"github.com/Skryldev/audioedit/infrastructure/codec"
	"github.com/Skryldev/audioedit/infrastructure/storage"
	"github.com/Skryldev/audioedit/internal/mocks"
	"github.com/Skryldev/audioedit/pkg/dsp"
	pkgerrors "github.com/Skryldev/audioedit/pkg/errors"
	"github.com/Skryldev/audioedit/pkg/logger"
	"github.com/Skryldev/audioedit/pkg/progress"
)

const testRate = 8000

func sineBuffer(seconds, freq, amp float64, channels int) *model.Buffer {
	n := int(seconds * testRate)
	buf := model.NewBuffer(channels, n, testRate)
	for c := range buf.Channels {
		for i := range buf.Channels[c] {
			buf.Channels[c][i] = amp * math.Sin(2*math.Pi*freq*float64(i)/testRate+float64(c))
		}
	}
	return buf
}

func newTestEngine(t *testing.T, transcoder ports.Transcoder, reporter progress.Reporter) *Engine {
	t.Helper()
	e, err := NewEngine(Config{
		Storage:      storage.NewLocalStorage(t.TempDir()),
		Transcoder:   transcoder,
		Capabilities: model.Capabilities{Workers: 2, FFmpeg: transcoder != nil, OpusDecode: true},
		Reporter:     reporter,
		Logger:       logger.Nop(),
	})
	require.NoError(t, err)
	return e
}

func writeWAV(t *testing.T, dir, name string, buf *model.Buffer) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, codec.NewWAV().Encode(context.Background(), f, buf, 16))
	require.NoError(t, f.Close())
	return path
}

func TestNewEngineRequiresStorage(t *testing.T) {
	_, err := NewEngine(Config{})
	assert.Error(t, err)
}

func TestTrimLengthAndVerbatimCopy(t *testing.T) {
	e := newTestEngine(t, nil, nil)
	src := sineBuffer(3, 440, 0.5, 2)

	tests := []struct {
		name       string
		start, end float64
		wantLen    int
	}{
		{"middle", 0.5, 1.75, 10000},
		{"from zero", 0, 1, 8000},
		{"end clamped", 2, 10, 8000},
		{"fractional", 0.1234, 0.9876, int(math.Round((0.9876 - 0.1234) * testRate))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := e.Trim(context.Background(), src, tt.start, tt.end)
			require.NoError(t, err)
			require.Equal(t, 2, out.NumChannels())
			assert.Equal(t, tt.wantLen, out.Len())

			offset := int(math.Round(tt.start * testRate))
			for c := range out.Channels {
				assert.Equal(t, src.Channels[c][offset:offset+out.Len()], out.Channels[c])
			}
		})
	}
}

func TestTrimRejectsInvalidRanges(t *testing.T) {
	e := newTestEngine(t, nil, nil)
	src := sineBuffer(2, 440, 0.5, 1)

	for _, r := range [][2]float64{{1, 1}, {1.5, 0.5}, {-0.1, 1}, {2.5, 3}} {
		_, err := e.Trim(context.Background(), src, r[0], r[1])
		_, ok := pkgerrors.As[*pkgerrors.InvalidRangeError](err)
		assert.True(t, ok, "range %v", r)
	}
}

func TestTrimThirtySecondsToTen(t *testing.T) {
	e := newTestEngine(t, nil, nil)
	src := sineBuffer(30, 220, 0.3, 1)
	out, err := e.Trim(context.Background(), src, 5, 15)
	require.NoError(t, err)
	assert.InDelta(t, 10, out.Duration(), 1.0/testRate)
}

func TestNormalizeIdempotent(t *testing.T) {
	e := newTestEngine(t, nil, nil)
	src := sineBuffer(1, 440, 0.25, 2)

	once, err := e.Normalize(context.Background(), src, 100)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, once.Peak(), 1e-9)

	twice, err := e.Normalize(context.Background(), once, 100)
	require.NoError(t, err)
	assert.InDelta(t, once.Peak(), twice.Peak(), 1e-9)
	assert.InDeltaSlice(t, once.Channels[0], twice.Channels[0], 1e-9)

	half, err := e.Normalize(context.Background(), src, 50)
	require.NoError(t, err)
	assert.InDelta(t, 0.55, half.Peak(), 1e-9)
}

func TestNormalizeSilenceIsIdentity(t *testing.T) {
	e := newTestEngine(t, nil, nil)
	src := model.NewBuffer(1, 100, testRate)
	out, err := e.Normalize(context.Background(), src, 100)
	require.NoError(t, err)
	assert.Equal(t, src.Channels, out.Channels)
}

func TestNeutralEnhanceIsNearIdentity(t *testing.T) {
	e := newTestEngine(t, nil, nil)
	src := sineBuffer(1, 1000, 0.5, 2)

	out, err := e.Enhance(context.Background(), src, model.DefaultEnhancement())
	require.NoError(t, err)
	for c := range src.Channels {
		in := src.Channels[c][testRate/10:]
		got := out.Channels[c][testRate/10:]
		assert.Less(t, dsp.RMSDiff(in, got), dsp.RMS(in)*0.05)
	}
	assert.False(t, NeedsEnhancement(model.DefaultEnhancement()))
}

func TestEnhanceDeterministic(t *testing.T) {
	e := newTestEngine(t, nil, nil)
	src := sineBuffer(0.5, 300, 0.5, 2)
	en := model.Enhancement{VoiceClarity: 80, BassTone: 20, MidTone: 60, TrebleTone: 90, Presence: 10}

	a, err := e.Enhance(context.Background(), src, en)
	require.NoError(t, err)
	b, err := e.Enhance(context.Background(), src, en)
	require.NoError(t, err)
	assert.Equal(t, a.Channels, b.Channels)
}

func TestEnhanceBassDirection(t *testing.T) {
	e := newTestEngine(t, nil, nil)
	src := sineBuffer(1, 100, 0.2, 1)
	en := model.DefaultEnhancement()
	en.BassTone = 100

	out, err := e.Enhance(context.Background(), src, en)
	require.NoError(t, err)
	assert.Greater(t, dsp.RMS(out.Channels[0][testRate/4:]), dsp.RMS(src.Channels[0][testRate/4:]))
}

func TestVoiceClarityCutoff(t *testing.T) {
	assert.InDelta(t, 20, VoiceClarityCutoff(50), 1e-9)
	assert.InDelta(t, 80, VoiceClarityCutoff(75), 1e-9)
	assert.InDelta(t, 320, VoiceClarityCutoff(100), 1e-9)
}

func TestNeutralEffectsAreExactCopy(t *testing.T) {
	e := newTestEngine(t, nil, nil)
	src := sineBuffer(0.5, 440, 0.5, 2)

	out, err := e.ApplyEffects(context.Background(), src, model.DefaultEffects())
	require.NoError(t, err)
	assert.Equal(t, src.Channels, out.Channels)
	assert.Empty(t, EffectsChain(testRate, model.DefaultEffects()))
}

func TestEffectsChainSkipsInactive(t *testing.T) {
	fx := model.DefaultEffects()
	fx[model.EffectWarmth] = 40
	assert.Len(t, EffectsChain(testRate, fx), 2)

	fx[model.EffectBoost] = 40
	assert.Len(t, EffectsChain(testRate, fx), 4)
}

func TestReverbAddsTail(t *testing.T) {
	e := newTestEngine(t, nil, nil)
	src := model.NewBuffer(1, testRate, testRate)
	src.Channels[0][0] = 1

	fx := model.DefaultEffects()
	fx[model.EffectReverb] = 50
	out, err := e.ApplyEffects(context.Background(), src, fx)
	require.NoError(t, err)
	assert.Greater(t, dsp.RMS(out.Channels[0][100:4000]), 0.0)
	assert.Zero(t, dsp.RMS(src.Channels[0][100:4000]))
}

func TestBoostStaysInRange(t *testing.T) {
	e := newTestEngine(t, nil, nil)
	src := sineBuffer(0.5, 440, 0.9, 1)
	fx := model.DefaultEffects()
	fx[model.EffectBoost] = 100

	out, err := e.ApplyEffects(context.Background(), src, fx)
	require.NoError(t, err)
	assert.LessOrEqual(t, out.Peak(), 1.0)
}

func TestReduceNoiseAttenuatesHum(t *testing.T) {
	e := newTestEngine(t, nil, nil)
	src := sineBuffer(1, 60, 0.3, 1)
	nr := model.NoiseReduction{Strength: 80, Sensitivity: 50, PreserveVoice: 75}

	out, err := e.ReduceNoise(context.Background(), src, nr)
	require.NoError(t, err)
	assert.Less(t, dsp.RMS(out.Channels[0][testRate/2:]), dsp.RMS(src.Channels[0][testRate/2:])*0.5)
}

func TestPlan(t *testing.T) {
	e := newTestEngine(t, nil, nil)
	src := sineBuffer(10, 440, 0.5, 1)

	defaults := model.DefaultEditParameters(10)
	assert.Empty(t, e.Plan(src, defaults))

	all := defaults.Clone()
	all.Trim = model.Trim{StartTime: 1, EndTime: 5}
	all.NoiseReduction.Strength = 80
	all.Enhancement.Presence = 70
	all.Effects[model.EffectClarity] = 30
	all.VolumeNormalize = 80
	assert.Equal(t, []progress.Stage{
		progress.StageTrim,
		progress.StageNoiseReduction,
		progress.StageEnhance,
		progress.StageEffects,
		progress.StageNormalize,
	}, e.Plan(src, all))

	// back to the default profile means no noise reduction
	back := defaults.Clone()
	back.NoiseReduction.Strength = 80
	back.NoiseReduction.Strength = 50
	assert.Empty(t, e.Plan(src, back))
}

func TestProcessCompletelyDefaultsReturnsCopy(t *testing.T) {
	var updates []progress.Update
	e := newTestEngine(t, nil, progress.FuncReporter(func(u progress.Update) { updates = append(updates, u) }))
	src := sineBuffer(2, 440, 0.5, 2)

	out, err := e.ProcessCompletely(context.Background(), src, model.DefaultEditParameters(2))
	require.NoError(t, err)
	assert.Equal(t, src.Channels, out.Channels)
	require.Len(t, updates, 1)
	assert.Equal(t, progress.StageDone, updates[0].Stage)
}

func TestProcessCompletelyReportsStages(t *testing.T) {
	var updates []progress.Update
	e := newTestEngine(t, nil, progress.FuncReporter(func(u progress.Update) { updates = append(updates, u) }))
	src := sineBuffer(4, 440, 0.2, 1)

	params := model.DefaultEditParameters(4)
	params.Trim = model.Trim{StartTime: 1, EndTime: 3}
	params.VolumeNormalize = 100

	out, err := e.ProcessCompletely(context.Background(), src, params)
	require.NoError(t, err)
	assert.InDelta(t, 2, out.Duration(), 1.0/testRate)
	assert.InDelta(t, 1, out.Peak(), 1e-9)

	require.Len(t, updates, 3)
	assert.Equal(t, progress.StageTrim, updates[0].Stage)
	assert.Equal(t, progress.StageNormalize, updates[1].Stage)
	assert.Equal(t, 100.0, updates[1].Percent)
	assert.Equal(t, progress.StageDone, updates[2].Stage)
}

func TestProcessCompletelyWrapsStageError(t *testing.T) {
	e := newTestEngine(t, nil, nil)
	src := sineBuffer(1, 440, 0.5, 1)
	params := model.DefaultEditParameters(5)
	params.Trim = model.Trim{StartTime: 3, EndTime: 4}

	_, err := e.ProcessCompletely(context.Background(), src, params)
	perr, ok := pkgerrors.As[*pkgerrors.ProcessingError](err)
	require.True(t, ok)
	assert.Equal(t, "trim", perr.Stage)
	_, ok = pkgerrors.As[*pkgerrors.InvalidRangeError](err)
	assert.True(t, ok)
}

func TestWorkerPoolSerialAndParallelAgree(t *testing.T) {
	src := sineBuffer(0.5, 440, 0.5, 4)
	chain := EnhanceChain(testRate, model.Enhancement{VoiceClarity: 70, BassTone: 30, MidTone: 50, TrebleTone: 80, Presence: 60})

	serial, err := NewWorkerPool(0, nil).MapChannels(context.Background(), src, chain)
	require.NoError(t, err)
	parallel, err := NewWorkerPool(3, nil).MapChannels(context.Background(), src, chain)
	require.NoError(t, err)
	assert.Equal(t, serial.Channels, parallel.Channels)
}

func TestWorkerPoolCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewWorkerPool(1, nil).MapChannels(ctx, sineBuffer(0.1, 440, 0.5, 2), dsp.Gain(1))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEncodeWAV(t *testing.T) {
	e := newTestEngine(t, nil, nil)
	src := sineBuffer(1, 440, 0.5, 2)

	ref, err := e.Encode(context.Background(), src, ports.WithFormat(model.FormatWAV), ports.WithQuality(model.QualityMedium))
	require.NoError(t, err)
	assert.Equal(t, model.FormatWAV, ref.Format)
	assert.InDelta(t, 1, ref.Duration, 1e-9)
	assert.Greater(t, ref.Size, int64(0))

	decoded, err := e.Decode(context.Background(), ref.URL)
	require.NoError(t, err)
	assert.Equal(t, src.Len(), decoded.Len())

	require.NoError(t, e.Dispose(context.Background(), ref))
	_, err = os.Stat(ref.URL)
	assert.True(t, os.IsNotExist(err))
}

func TestEncodeFallsBackToWAV(t *testing.T) {
	tr := &mocks.MockTranscoder{
		TranscodeFunc: func(context.Context, string, string, model.EncodeOptions) error {
			return errors.New("libmp3lame missing")
		},
	}
	e := newTestEngine(t, tr, nil)

	ref, err := e.Encode(context.Background(), sineBuffer(0.5, 440, 0.5, 1), ports.WithFormat(model.FormatMP3))
	require.NoError(t, err)
	assert.Equal(t, model.FormatWAV, ref.Format)
	_, statErr := os.Stat(ref.URL)
	assert.NoError(t, statErr)
	require.Len(t, tr.Transcoded, 1)
	assert.Equal(t, 320_000, tr.Transcoded[0].Bitrate)
}

func TestEncodeWithoutTranscoderFallsBack(t *testing.T) {
	e := newTestEngine(t, nil, nil)
	ref, err := e.Encode(context.Background(), sineBuffer(0.5, 440, 0.5, 1), ports.WithFormat(model.FormatOGG))
	require.NoError(t, err)
	assert.Equal(t, model.FormatWAV, ref.Format)
}

func TestEncodeTranscoded(t *testing.T) {
	var wavInput string
	tr := &mocks.MockTranscoder{
		TranscodeFunc: func(_ context.Context, in, out string, _ model.EncodeOptions) error {
			wavInput = in
			return os.WriteFile(out, []byte("fake mp3"), 0o644)
		},
	}
	e := newTestEngine(t, tr, nil)

	ref, err := e.Encode(context.Background(), sineBuffer(0.5, 440, 0.5, 1),
		ports.WithFormat(model.FormatMP3), ports.WithQuality(model.QualityLow))
	require.NoError(t, err)
	assert.Equal(t, model.FormatMP3, ref.Format)
	assert.Equal(t, ".mp3", filepath.Ext(ref.URL))
	assert.EqualValues(t, len("fake mp3"), ref.Size)

	_, statErr := os.Stat(wavInput)
	assert.True(t, os.IsNotExist(statErr), "intermediate WAV should be removed")
}

func TestDecodeCachesPerURL(t *testing.T) {
	e := newTestEngine(t, nil, nil)
	path := writeWAV(t, t.TempDir(), "src.wav", sineBuffer(1, 440, 0.5, 2))

	var wg sync.WaitGroup
	results := make([]*model.Buffer, 4)
	for i := range results {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			buf, err := e.Decode(context.Background(), "file://"+path)
			assert.NoError(t, err)
			results[i] = buf
		}()
	}
	wg.Wait()

	for _, r := range results[1:] {
		assert.Same(t, results[0], r)
	}
	assert.Equal(t, testRate, results[0].SampleRate)

	e.Forget("file://" + path)
	again, err := e.Decode(context.Background(), "file://"+path)
	require.NoError(t, err)
	assert.NotSame(t, results[0], again)
}

func TestDecodeErrors(t *testing.T) {
	e := newTestEngine(t, nil, nil)
	dir := t.TempDir()

	_, err := e.Decode(context.Background(), filepath.Join(dir, "missing.wav"))
	_, ok := pkgerrors.As[*pkgerrors.DecodeError](err)
	assert.True(t, ok)

	bogus := filepath.Join(dir, "bogus.wav")
	require.NoError(t, os.WriteFile(bogus, []byte("not audio at all"), 0o644))
	_, err = e.Decode(context.Background(), bogus)
	_, ok = pkgerrors.As[*pkgerrors.DecodeError](err)
	assert.True(t, ok)

	mp3 := filepath.Join(dir, "clip.mp3")
	require.NoError(t, os.WriteFile(mp3, []byte("ID3"), 0o644))
	_, err = e.Decode(context.Background(), mp3)
	_, ok = pkgerrors.As[*pkgerrors.DecodeError](err)
	assert.True(t, ok)
}

func TestDecodeViaTranscoder(t *testing.T) {
	dir := t.TempDir()
	wavSrc := writeWAV(t, dir, "real.wav", sineBuffer(0.5, 440, 0.5, 1))
	data, err := os.ReadFile(wavSrc)
	require.NoError(t, err)

	tr := &mocks.MockTranscoder{
		DecodeToWAVFunc: func(_ context.Context, _, out string) error {
			return os.WriteFile(out, data, 0o644)
		},
	}
	e := newTestEngine(t, tr, nil)

	mp3 := filepath.Join(dir, "clip.mp3")
	require.NoError(t, os.WriteFile(mp3, []byte("ID3"), 0o644))
	buf, err := e.Decode(context.Background(), mp3)
	require.NoError(t, err)
	assert.Equal(t, 4000, buf.Len())
}

func TestProbeFallsBackToDecode(t *testing.T) {
	e := newTestEngine(t, nil, nil)
	path := writeWAV(t, t.TempDir(), "src.wav", sineBuffer(2, 440, 0.5, 2))

	meta, err := e.Probe(context.Background(), path)
	require.NoError(t, err)
	assert.InDelta(t, 2, meta.Duration.Seconds(), 1e-6)
	assert.Equal(t, 2, meta.Channels)
	assert.Equal(t, "wav", meta.Format)
}

func TestEngine_StorageFailures(t *testing.T) {
	ctx := context.Background()
	diskFull := errors.New("disk full")
	store := &mocks.MockStorageProvider{
		ExistsFunc: func(_ context.Context, path string) (bool, error) {
			return path != "/missing.wav", nil
		},
		CreateFunc: func(context.Context, string, string) (ports.WriteSeekCloser, string, error) {
			return nil, "", diskFull
		},
	}
	e, err := NewEngine(Config{Storage: store, Logger: logger.Nop()})
	require.NoError(t, err)

	t.Run("encode reports processing error", func(t *testing.T) {
		_, err := e.Encode(ctx, sineBuffer(0.1, 440, 0.5, 1))
		perr, ok := pkgerrors.As[*pkgerrors.ProcessingError](err)
		require.True(t, ok, err)
		assert.Equal(t, "encode", perr.Stage)
		assert.ErrorIs(t, err, diskFull)
	})

	t.Run("missing source", func(t *testing.T) {
		_, err := e.Decode(ctx, "/missing.wav")
		_, ok := pkgerrors.As[*pkgerrors.DecodeError](err)
		assert.True(t, ok, err)
	})

	t.Run("unreadable source", func(t *testing.T) {
		_, err := e.Decode(ctx, "/present.wav")
		derr, ok := pkgerrors.As[*pkgerrors.DecodeError](err)
		require.True(t, ok, err)
		assert.Equal(t, "/present.wav", derr.Source)
	})
}
