package preview

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skryldev/audioedit/application/pipeline"
	"github.com/Skryldev/audioedit/domain/model"
	"github.com/Skryldev/audioedit/domain/ports"
	"github.com/Skryldev/audioedit/infrastructure/codec"
	"github.com/Skryldev/audioedit/infrastructure/storage"
	pkgerrors "github.com/Skryldev/audioedit/pkg/errors"
	"github.com/Skryldev/audioedit/pkg/logger"
)

const rate = 8000

// countingRenderer wraps the engine and records encodes and overlap
type countingRenderer struct {
	*pipeline.Engine
	encodes  atomic.Int32
	inFlight atomic.Int32
	overlap  atomic.Bool
}

func (r *countingRenderer) Encode(ctx context.Context, buf *model.Buffer, opts ...ports.Option) (model.AudioRef, error) {
	if r.inFlight.Add(1) > 1 {
		r.overlap.Store(true)
	}
	defer r.inFlight.Add(-1)
	time.Sleep(5 * time.Millisecond)
	r.encodes.Add(1)
	return r.Engine.Encode(ctx, buf, opts...)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func writeSource(t *testing.T, seconds float64) string {
	t.Helper()
	buf := model.NewBuffer(1, int(seconds*rate), rate)
	for i := range buf.Channels[0] {
		buf.Channels[0][i] = 0.4 * math.Sin(2*math.Pi*300*float64(i)/rate)
	}
	path := filepath.Join(t.TempDir(), "source.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, codec.NewWAV().Encode(context.Background(), f, buf, 16))
	require.NoError(t, f.Close())
	return path
}

func newGenerator(t *testing.T, clock *fakeClock) (*Generator, *countingRenderer) {
	t.Helper()
	engine, err := pipeline.NewEngine(pipeline.Config{
		Storage: storage.NewLocalStorage(t.TempDir()),
		Logger:  logger.Nop(),
	})
	require.NoError(t, err)
	r := &countingRenderer{Engine: engine}

	cfg := Config{Renderer: r, Logger: logger.Nop(), Debounce: 30 * time.Millisecond}
	if clock != nil {
		cfg.Now = clock.Now
	}
	g, err := NewGenerator(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })
	return g, r
}

func TestRequestsCoalesceToLast(t *testing.T) {
	g, r := newGenerator(t, nil)
	src := writeSource(t, 10)

	ready := make(chan Result, 4)
	g.OnReady(func(res Result) { ready <- res })
	var started atomic.Int32
	g.OnStart(func(Request) { started.Add(1) })

	params := model.DefaultEditParameters(10)
	for _, strength := range []int{10, 20, 30, 40, 90} {
		params.NoiseReduction.Strength = strength
		g.Request(Request{SourceURL: src, Operation: model.EditNoiseReduction, Params: params, Playhead: 4})
	}

	select {
	case res := <-ready:
		assert.Equal(t, 90, res.Request.Params.NoiseReduction.Strength)
		assert.InDelta(t, 1.5, res.Start, 1e-9)
		assert.InDelta(t, 6.5, res.End, 1e-9)
	case <-time.After(2 * time.Second):
		t.Fatal("preview never became ready")
	}

	time.Sleep(100 * time.Millisecond)
	assert.Len(t, ready, 0)
	assert.EqualValues(t, 1, r.encodes.Load())
	assert.EqualValues(t, 1, started.Load())
}

func TestDifferentOperationsDebounceIndependently(t *testing.T) {
	g, _ := newGenerator(t, nil)
	src := writeSource(t, 6)

	ready := make(chan Result, 4)
	g.OnReady(func(res Result) { ready <- res })

	params := model.DefaultEditParameters(6)
	params.Enhancement.BassTone = 80
	params.VolumeNormalize = 70
	g.Request(Request{SourceURL: src, Operation: model.EditEnhance, Params: params})
	g.Request(Request{SourceURL: src, Operation: model.EditNormalize, Params: params})

	ops := map[model.EditType]bool{}
	for i := 0; i < 2; i++ {
		select {
		case res := <-ready:
			ops[res.Request.Operation] = true
		case <-time.After(2 * time.Second):
			t.Fatal("preview never became ready")
		}
	}
	assert.True(t, ops[model.EditEnhance])
	assert.True(t, ops[model.EditNormalize])
}

func TestGenerateUsesCacheWithinTTL(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	g, r := newGenerator(t, clock)
	src := writeSource(t, 8)
	req := Request{SourceURL: src, Operation: model.EditEffects, Params: model.DefaultEditParameters(8), Playhead: 2}
	req.Params.Effects[model.EffectWarmth] = 60

	first, err := g.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	clock.Advance(4 * time.Minute)
	second, err := g.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Ref.URL, second.Ref.URL)
	assert.EqualValues(t, 1, r.encodes.Load())

	clock.Advance(2 * time.Minute)
	third, err := g.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, third.Cached)
	assert.EqualValues(t, 2, r.encodes.Load())

	_, statErr := os.Stat(first.Ref.URL)
	assert.True(t, os.IsNotExist(statErr), "expired preview should be disposed")
}

func TestSweepDisposesExpired(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	g, _ := newGenerator(t, clock)
	src := writeSource(t, 8)

	res, err := g.Generate(context.Background(), Request{SourceURL: src, Operation: model.EditTrim, Params: model.DefaultEditParameters(8)})
	require.NoError(t, err)
	assert.Equal(t, 0, g.Sweep())
	assert.Equal(t, 1, g.CacheLen())

	clock.Advance(DefaultTTL)
	assert.Equal(t, 1, g.Sweep())
	assert.Equal(t, 0, g.CacheLen())
	_, statErr := os.Stat(res.Ref.URL)
	assert.True(t, os.IsNotExist(statErr))
}

func TestNewPreviewReleasesExpiredOnes(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	g, _ := newGenerator(t, clock)
	src := writeSource(t, 8)

	old, err := g.Generate(context.Background(), Request{SourceURL: src, Operation: model.EditTrim, Params: model.DefaultEditParameters(8)})
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)
	for i := 0; i < 3; i++ {
		p := model.DefaultEditParameters(8)
		p.VolumeNormalize = 20 + i*10
		_, err := g.Generate(context.Background(), Request{SourceURL: src, Operation: model.EditNormalize, Params: p})
		require.NoError(t, err)
	}

	assert.Equal(t, 3, g.CacheLen())
	_, statErr := os.Stat(old.Ref.URL)
	assert.True(t, os.IsNotExist(statErr), "expired preview should be released without an explicit sweep")
}

func TestClearDisposesCachedPreviews(t *testing.T) {
	g, _ := newGenerator(t, nil)
	src := writeSource(t, 8)

	res, err := g.Generate(context.Background(), Request{SourceURL: src, Operation: model.EditTrim, Params: model.DefaultEditParameters(8)})
	require.NoError(t, err)

	require.NoError(t, g.Clear())
	assert.Equal(t, 0, g.CacheLen())
	_, statErr := os.Stat(res.Ref.URL)
	assert.True(t, os.IsNotExist(statErr))

	_, err = g.Generate(context.Background(), Request{SourceURL: src, Operation: model.EditTrim, Params: model.DefaultEditParameters(8)})
	assert.NoError(t, err)
}

func TestSupersededPreviewIsDropped(t *testing.T) {
	g, _ := newGenerator(t, nil)
	src := writeSource(t, 8)

	var delivered []uint64
	g.OnReady(func(res Result) { delivered = append(delivered, res.Request.Seq) })

	older := Request{SourceURL: src, Operation: model.EditNormalize, Params: model.DefaultEditParameters(8), Seq: 1}
	older.Params.VolumeNormalize = 30
	newer := older
	newer.Params = older.Params.Clone()
	newer.Params.VolumeNormalize = 70
	newer.Seq = 2

	g.fire(newer)
	g.fire(older)
	assert.Equal(t, []uint64{2}, delivered)
}

func TestWindow(t *testing.T) {
	g, _ := newGenerator(t, nil)
	tests := []struct {
		name       string
		req        Request
		duration   float64
		start, end float64
	}{
		{"near start", Request{Operation: model.EditEnhance, Playhead: 1}, 20, 0, 5},
		{"middle", Request{Operation: model.EditEnhance, Playhead: 10}, 20, 7.5, 12.5},
		{"near end", Request{Operation: model.EditEnhance, Playhead: 19}, 20, 15, 20},
		{"short source", Request{Operation: model.EditEnhance, Playhead: 2}, 3, 0, 3},
		{"trim region", Request{Operation: model.EditTrim, Playhead: 0, Params: model.EditParameters{Trim: model.Trim{StartTime: 8, EndTime: 16}}}, 20, 8, 13},
		{"combined stays in trim", Request{Operation: model.EditAll, Playhead: 18, Params: model.EditParameters{Trim: model.Trim{StartTime: 2, EndTime: 12}}}, 20, 7, 12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := g.window(tt.req, tt.duration)
			assert.InDelta(t, tt.start, start, 1e-9)
			assert.InDelta(t, tt.end, end, 1e-9)
		})
	}
}

func TestPreviewFailureGoesToErrorCallback(t *testing.T) {
	g, _ := newGenerator(t, nil)
	errs := make(chan error, 1)
	g.OnError(func(_ Request, err error) { errs <- err })

	g.Request(Request{SourceURL: filepath.Join(t.TempDir(), "missing.wav"), Operation: model.EditEnhance, Params: model.DefaultEditParameters(1)})

	select {
	case err := <-errs:
		_, ok := pkgerrors.As[*pkgerrors.PreviewGenerationError](err)
		assert.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("error callback not called")
	}
}

func TestGenerateIsSerialized(t *testing.T) {
	g, r := newGenerator(t, nil)
	src := writeSource(t, 8)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			p := model.DefaultEditParameters(8)
			p.VolumeNormalize = 10 + i*20
			_, err := g.Generate(context.Background(), Request{SourceURL: src, Operation: model.EditNormalize, Params: p})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.False(t, r.overlap.Load())
	assert.EqualValues(t, 4, r.encodes.Load())
}

func TestCloseDisposesAndStops(t *testing.T) {
	g, r := newGenerator(t, nil)
	src := writeSource(t, 8)

	res, err := g.Generate(context.Background(), Request{SourceURL: src, Operation: model.EditTrim, Params: model.DefaultEditParameters(8)})
	require.NoError(t, err)

	g.Request(Request{SourceURL: src, Operation: model.EditEnhance, Params: model.DefaultEditParameters(8)})
	require.NoError(t, g.Close())

	_, statErr := os.Stat(res.Ref.URL)
	assert.True(t, os.IsNotExist(statErr))

	time.Sleep(100 * time.Millisecond)
	assert.EqualValues(t, 1, r.encodes.Load())

	_, err = g.Generate(context.Background(), Request{SourceURL: src, Operation: model.EditTrim})
	assert.Error(t, err)
}

func TestUnsupportedOperation(t *testing.T) {
	g, _ := newGenerator(t, nil)
	src := writeSource(t, 2)
	_, err := g.Generate(context.Background(), Request{SourceURL: src, Operation: model.EditSubtitles})
	assert.Error(t, err)
}

func TestCacheKeyStable(t *testing.T) {
	a := CacheKey("s", model.EditEffects, model.Effects{"reverb": 10, "boost": 5})
	b := CacheKey("s", model.EditEffects, model.Effects{"boost": 5, "reverb": 10})
	c := CacheKey("s", model.EditEffects, model.Effects{"boost": 6, "reverb": 10})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, CacheKey("t", model.EditEffects, model.Effects{"reverb": 10, "boost": 5}))
}
