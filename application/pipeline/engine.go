package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Skryldev/audioedit/domain/model"
	"github.com/Skryldev/audioedit/domain/ports"
	"github.com/Skryldev/audioedit/infrastructure/codec"
	"github.com/Skryldev/audioedit/pkg/dsp"
	pkgerrors "github.com/Skryldev/audioedit/pkg/errors"
	"github.com/Skryldev/audioedit/pkg/logger"
	"github.com/Skryldev/audioedit/pkg/progress"
)

// Stage represents a single buffer transformation
type Stage func(ctx context.Context, buf *model.Buffer) (*model.Buffer, error)

type namedStage struct {
	name  progress.Stage
	stage Stage
}

// Config holds Engine dependencies
type Config struct {
	Storage      ports.StorageProvider
	Transcoder   ports.Transcoder // optional
	Decoders     []ports.Decoder  // defaults to WAV, plus Ogg/Opus when supported
	Encoder      ports.Encoder    // defaults to WAV
	Capabilities model.Capabilities
	Reporter     progress.Reporter
	Logger       *logger.Logger
	OutputDir    string
}

// Engine is the signal processing engine. It never mutates a buffer it was
// handed; every operation returns a new one.
type Engine struct {
	storage    ports.StorageProvider
	transcoder ports.Transcoder
	decoders   []ports.Decoder
	encoder    ports.Encoder
	caps       model.Capabilities
	pool       *WorkerPool
	reporter   progress.Reporter
	log        *logger.Logger
	outputDir  string

	mu      sync.RWMutex
	sources map[string]*model.Buffer
	decodes singleflight.Group
}

// NewEngine creates an engine
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Storage == nil {
		return nil, fmt.Errorf("StorageProvider is required")
	}

	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}

	reporter := cfg.Reporter
	if reporter == nil {
		reporter = progress.NoopReporter{}
	}

	decoders := cfg.Decoders
	if len(decoders) == 0 {
		decoders = []ports.Decoder{codec.NewWAV()}
		if cfg.Capabilities.OpusDecode {
			decoders = append(decoders, codec.NewOggOpus())
		}
	}

	encoder := cfg.Encoder
	if encoder == nil {
		encoder = codec.NewWAV()
	}

	transcoder := cfg.Transcoder
	if !cfg.Capabilities.FFmpeg {
		transcoder = nil
	}

	return &Engine{
		storage:    cfg.Storage,
		transcoder: transcoder,
		decoders:   decoders,
		encoder:    encoder,
		caps:       cfg.Capabilities,
		pool:       NewWorkerPool(cfg.Capabilities.Workers, log),
		reporter:   reporter,
		log:        log,
		outputDir:  cfg.OutputDir,
		sources:    make(map[string]*model.Buffer),
	}, nil
}

// Capabilities returns the capabilities the engine was built with
func (e *Engine) Capabilities() model.Capabilities { return e.caps }

// ProcessCompletely runs trim, noise reduction, enhancement, effects and
// normalization in that order. Stages whose parameters are neutral are not run.
func (e *Engine) ProcessCompletely(ctx context.Context, buf *model.Buffer, params model.EditParameters) (*model.Buffer, error) {
	jobID := uuid.NewString()
	stages := e.plan(buf, params)
	log := e.log.With(zap.String("job_id", jobID))
	job := progress.NewJob(e.reporter, jobID, len(stages))

	if len(stages) == 0 {
		log.Debug("no stages needed, returning copy")
		job.Finish("nothing to do")
		return buf.Clone(), nil
	}

	out := buf
	for _, s := range stages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := time.Now()
		next, err := s.stage(ctx, out)
		if err != nil {
			return nil, pkgerrors.NewProcessingError(string(s.name), "stage failed", err)
		}
		out = next
		log.Debug("stage complete",
			zap.String("stage", string(s.name)),
			zap.Duration("took", time.Since(start)),
		)
		job.Step(s.name)
	}

	job.Finish("done")
	return out, nil
}

// Plan lists the stages ProcessCompletely would run for params
func (e *Engine) Plan(buf *model.Buffer, params model.EditParameters) []progress.Stage {
	stages := e.plan(buf, params)
	names := make([]progress.Stage, len(stages))
	for i, s := range stages {
		names[i] = s.name
	}
	return names
}

func (e *Engine) plan(buf *model.Buffer, params model.EditParameters) []namedStage {
	var stages []namedStage

	if !params.Trim.IsFullLength(buf.Duration()) {
		trim := params.Trim
		stages = append(stages, namedStage{progress.StageTrim, func(ctx context.Context, b *model.Buffer) (*model.Buffer, error) {
			return e.Trim(ctx, b, trim.StartTime, trim.EndTime)
		}})
	}
	if NeedsNoiseReduction(params.NoiseReduction) {
		nr := params.NoiseReduction
		stages = append(stages, namedStage{progress.StageNoiseReduction, func(ctx context.Context, b *model.Buffer) (*model.Buffer, error) {
			return e.ReduceNoise(ctx, b, nr)
		}})
	}
	if NeedsEnhancement(params.Enhancement) {
		en := params.Enhancement
		stages = append(stages, namedStage{progress.StageEnhance, func(ctx context.Context, b *model.Buffer) (*model.Buffer, error) {
			return e.Enhance(ctx, b, en)
		}})
	}
	if params.Effects.HasActive() {
		fx := params.Effects.Clone()
		stages = append(stages, namedStage{progress.StageEffects, func(ctx context.Context, b *model.Buffer) (*model.Buffer, error) {
			return e.ApplyEffects(ctx, b, fx)
		}})
	}
	if params.VolumeNormalize > 0 {
		level := params.VolumeNormalize
		stages = append(stages, namedStage{progress.StageNormalize, func(ctx context.Context, b *model.Buffer) (*model.Buffer, error) {
			return e.Normalize(ctx, b, level)
		}})
	}
	return stages
}

// Apply runs p over every channel of buf on the worker pool
func (e *Engine) Apply(ctx context.Context, buf *model.Buffer, p dsp.Processor) (*model.Buffer, error) {
	return e.pool.MapChannels(ctx, buf, p)
}

// Decode returns the decoded source. Results are cached per URL and shared:
// callers must treat the returned buffer as read-only.
func (e *Engine) Decode(ctx context.Context, sourceURL string) (*model.Buffer, error) {
	e.mu.RLock()
	buf, ok := e.sources[sourceURL]
	e.mu.RUnlock()
	if ok {
		return buf, nil
	}

	v, err, _ := e.decodes.Do(sourceURL, func() (interface{}, error) {
		buf, err := e.decode(ctx, sourceURL)
		if err != nil {
			return nil, err
		}
		e.mu.Lock()
		e.sources[sourceURL] = buf
		e.mu.Unlock()
		return buf, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.Buffer), nil
}

// Forget drops a cached decoded source
func (e *Engine) Forget(sourceURL string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.sources, sourceURL)
}

// Probe returns source metadata, via ffprobe when available
func (e *Engine) Probe(ctx context.Context, sourceURL string) (*model.AudioMetadata, error) {
	path := localPath(sourceURL)
	if e.transcoder != nil {
		meta, err := e.transcoder.ProbeMetadata(ctx, path)
		if err == nil && meta.Duration > 0 {
			return meta, nil
		}
		e.log.Debug("probe failed, decoding instead", zap.String("source", sourceURL), zap.Error(err))
	}

	buf, err := e.Decode(ctx, sourceURL)
	if err != nil {
		return nil, err
	}
	size, _ := e.storage.Size(ctx, path)
	return &model.AudioMetadata{
		Duration:   time.Duration(buf.Duration() * float64(time.Second)),
		SampleRate: buf.SampleRate,
		Channels:   buf.NumChannels(),
		Format:     strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."),
		Size:       size,
	}, nil
}

// Close drops every cached source
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sources = make(map[string]*model.Buffer)
	return nil
}

func localPath(url string) string {
	return strings.TrimPrefix(url, "file://")
}
