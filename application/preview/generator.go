// Package preview renders short, cheap approximations of edits around the
// playhead for interactive feedback.
package preview

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/bep/debounce"
	"go.uber.org/zap"

	"github.com/Skryldev/audioedit/application/pipeline"
	"github.com/Skryldev/audioedit/domain/model"
	"github.com/Skryldev/audioedit/domain/ports"
	"github.com/Skryldev/audioedit/pkg/dsp"
	pkgerrors "github.com/Skryldev/audioedit/pkg/errors"
	"github.com/Skryldev/audioedit/pkg/logger"
)

// Defaults
const (
	DefaultDebounce = 300 * time.Millisecond
	DefaultTTL      = 5 * time.Minute
	DefaultWindow   = 5 * time.Second
	DefaultLead     = 2500 * time.Millisecond
	DefaultTimeout  = 30 * time.Second
)

// Renderer is the part of the engine previews need
type Renderer interface {
	Decode(ctx context.Context, sourceURL string) (*model.Buffer, error)
	Trim(ctx context.Context, buf *model.Buffer, start, end float64) (*model.Buffer, error)
	Apply(ctx context.Context, buf *model.Buffer, p dsp.Processor) (*model.Buffer, error)
	Encode(ctx context.Context, buf *model.Buffer, opts ...ports.Option) (model.AudioRef, error)
	Dispose(ctx context.Context, ref model.AudioRef) error
}

// Request describes one preview
type Request struct {
	SourceURL string
	Operation model.EditType
	Params    model.EditParameters
	Playhead  float64
	// Seq orders requests for the same operation; Request assigns it
	Seq uint64
}

// Result is a rendered preview. The reference is owned by the generator's
// cache; callers must not dispose it.
type Result struct {
	Request Request
	Ref     model.AudioRef
	Start   float64
	End     float64
	Cached  bool
}

// Config holds Generator configuration
type Config struct {
	Renderer Renderer
	Logger   *logger.Logger
	Debounce time.Duration
	TTL      time.Duration
	Window   time.Duration
	Lead     time.Duration
	Timeout  time.Duration
	Now      func() time.Time
}

// Generator debounces preview requests per operation, renders them one at a
// time and caches the results.
type Generator struct {
	renderer Renderer
	log      *logger.Logger
	cfg      Config
	cache    *Cache

	mu         sync.Mutex
	debouncers map[model.EditType]func(func())
	seq        map[model.EditType]uint64
	delivered  map[model.EditType]uint64
	closed     bool
	onStart    func(Request)
	onReady    func(Result)
	onError    func(Request, error)

	// serializes rendering
	render sync.Mutex
}

// NewGenerator creates a preview generator
func NewGenerator(cfg Config) (*Generator, error) {
	if cfg.Renderer == nil {
		return nil, fmt.Errorf("Renderer is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Lead <= 0 {
		cfg.Lead = DefaultLead
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Generator{
		renderer:   cfg.Renderer,
		log:        cfg.Logger,
		cfg:        cfg,
		cache:      NewCache(cfg.TTL, cfg.Now, cfg.Renderer.Dispose),
		debouncers: make(map[model.EditType]func(func())),
		seq:        make(map[model.EditType]uint64),
		delivered:  make(map[model.EditType]uint64),
	}, nil
}

// OnStart registers a callback fired when a debounced request starts rendering
func (g *Generator) OnStart(fn func(Request)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onStart = fn
}

// OnReady registers the success callback
func (g *Generator) OnReady(fn func(Result)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onReady = fn
}

// OnError registers the failure callback. Errors are *PreviewGenerationError.
func (g *Generator) OnError(fn func(Request, error)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onError = fn
}

// Request schedules a preview. Calls for the same operation within the
// debounce window coalesce; only the last one renders.
func (g *Generator) Request(req Request) {
	req.Params = req.Params.Clone()

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	g.seq[req.Operation]++
	req.Seq = g.seq[req.Operation]
	d, ok := g.debouncers[req.Operation]
	if !ok {
		d = debounce.New(g.cfg.Debounce)
		g.debouncers[req.Operation] = d
	}
	d(func() { g.fire(req) })
}

func (g *Generator) fire(req Request) {
	g.mu.Lock()
	closed, onStart, onReady, onError := g.closed, g.onStart, g.onReady, g.onError
	g.mu.Unlock()
	if closed {
		return
	}

	if onStart != nil {
		onStart(req)
	}

	ctx, cancel := context.WithTimeout(context.Background(), g.cfg.Timeout)
	defer cancel()

	res, err := g.Generate(ctx, req)
	if err != nil {
		g.log.Warn("preview failed",
			zap.String("operation", string(req.Operation)),
			zap.Error(err),
		)
		if onError != nil {
			onError(req, err)
		}
		return
	}
	if !g.markDelivered(req) {
		g.log.Debug("dropping superseded preview",
			zap.String("operation", string(req.Operation)),
			zap.Uint64("seq", req.Seq),
		)
		return
	}
	if onReady != nil {
		onReady(res)
	}
}

// markDelivered records req as the newest delivered preview for its operation.
// It returns false when a newer request was already delivered.
func (g *Generator) markDelivered(req Request) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if req.Seq <= g.delivered[req.Operation] {
		return false
	}
	g.delivered[req.Operation] = req.Seq
	return true
}

// Generate renders a preview synchronously, bypassing the debounce. Renders
// are serialized; a call waits for the one in progress.
func (g *Generator) Generate(ctx context.Context, req Request) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = pkgerrors.NewPreviewGenerationError(string(req.Operation), fmt.Errorf("panic: %v", r))
		}
	}()

	g.render.Lock()
	defer g.render.Unlock()

	g.mu.Lock()
	closed := g.closed
	g.mu.Unlock()
	if closed {
		return Result{}, pkgerrors.NewPreviewGenerationError(string(req.Operation), fmt.Errorf("generator closed"))
	}

	source, err := g.renderer.Decode(ctx, req.SourceURL)
	if err != nil {
		return Result{}, pkgerrors.NewPreviewGenerationError(string(req.Operation), err)
	}

	start, end := g.window(req, source.Duration())
	key := CacheKey(req.SourceURL, req.Operation, struct {
		Options any     `json:"options"`
		Start   float64 `json:"start"`
		End     float64 `json:"end"`
	}{optionsFor(req.Operation, req.Params), start, end})

	if ref, ok := g.cache.Get(key); ok {
		return Result{Request: req, Ref: ref, Start: start, End: end, Cached: true}, nil
	}

	began := time.Now()
	segment, err := g.renderer.Trim(ctx, source, start, end)
	if err != nil {
		return Result{}, pkgerrors.NewPreviewGenerationError(string(req.Operation), err)
	}

	processed, err := g.process(ctx, req, segment)
	if err != nil {
		return Result{}, pkgerrors.NewPreviewGenerationError(string(req.Operation), err)
	}

	ref, err := g.renderer.Encode(ctx, processed, ports.WithFormat(model.FormatWAV), ports.WithQuality(model.QualityMedium))
	if err != nil {
		return Result{}, pkgerrors.NewPreviewGenerationError(string(req.Operation), err)
	}
	g.cache.Put(key, ref)
	if n := g.cache.Sweep(); n > 0 {
		g.log.Debug("expired previews released", zap.Int("count", n))
	}

	g.log.Debug("preview rendered",
		zap.String("operation", string(req.Operation)),
		zap.Float64("start", start),
		zap.Float64("end", end),
		zap.Duration("took", time.Since(began)),
	)
	return Result{Request: req, Ref: ref, Start: start, End: end}, nil
}

func (g *Generator) process(ctx context.Context, req Request, segment *model.Buffer) (*model.Buffer, error) {
	sr := segment.SampleRate
	switch req.Operation {
	case model.EditTrim:
		return segment, nil
	case model.EditEnhance:
		return g.renderer.Apply(ctx, segment, enhanceChain(sr, req.Params.Enhancement))
	case model.EditNoiseReduction:
		return g.renderer.Apply(ctx, segment, noiseChain(sr, req.Params.NoiseReduction))
	case model.EditNormalize:
		peak := segment.Peak()
		if peak == 0 || req.Params.VolumeNormalize <= 0 {
			return segment, nil
		}
		return g.renderer.Apply(ctx, segment, dsp.Gain(pipeline.NormalizeTarget(req.Params.VolumeNormalize)/peak))
	case model.EditEffects:
		return g.renderer.Apply(ctx, segment, effectsChain(sr, req.Params.Effects))
	case model.EditAll:
		return g.renderer.Apply(ctx, segment, combinedChain(sr, req.Params))
	default:
		return nil, fmt.Errorf("unsupported preview operation %q", req.Operation)
	}
}

// window returns the preview bounds: Window long, starting Lead before the
// playhead, clamped to the source (or to the trim region for trim and
// combined previews)
func (g *Generator) window(req Request, duration float64) (float64, float64) {
	lo, hi := 0.0, duration
	if req.Operation == model.EditTrim || req.Operation == model.EditAll {
		lo = math.Max(0, req.Params.Trim.StartTime)
		hi = math.Min(duration, req.Params.Trim.EndTime)
		if hi <= lo {
			lo, hi = 0, duration
		}
	}
	playhead := math.Min(math.Max(req.Playhead, lo), hi)
	start := math.Max(lo, playhead-g.cfg.Lead.Seconds())
	end := math.Min(hi, start+g.cfg.Window.Seconds())
	if end-start < g.cfg.Window.Seconds() {
		start = math.Max(lo, end-g.cfg.Window.Seconds())
	}
	return start, end
}

func optionsFor(op model.EditType, p model.EditParameters) any {
	switch op {
	case model.EditTrim:
		return p.Trim
	case model.EditEnhance:
		return p.Enhancement.Clamp()
	case model.EditNoiseReduction:
		return p.NoiseReduction.Clamp()
	case model.EditNormalize:
		return p.VolumeNormalize
	case model.EditEffects:
		return p.Effects
	default:
		return p.Fingerprint(model.EditAll)
	}
}

// Sweep disposes expired previews
func (g *Generator) Sweep() int {
	return g.cache.Sweep()
}

// CacheLen returns the number of cached previews
func (g *Generator) CacheLen() int {
	return g.cache.Len()
}

// Clear disposes every cached preview. Pending requests still render.
func (g *Generator) Clear() error {
	g.render.Lock()
	defer g.render.Unlock()
	return g.cache.Clear()
}

// Close stops pending requests from rendering and disposes every cached preview
func (g *Generator) Close() error {
	g.mu.Lock()
	g.closed = true
	g.debouncers = make(map[model.EditType]func(func()))
	g.mu.Unlock()

	g.render.Lock()
	defer g.render.Unlock()
	return g.cache.Clear()
}
