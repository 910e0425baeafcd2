// Package audioedit is a client-side audio editing core: a signal processing
// engine, a debounced preview generator and an edit session coordinator that
// drives an external waveform visualizer.
package audioedit

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Skryldev/audioedit/application/pipeline"
	"github.com/Skryldev/audioedit/application/preview"
	"github.com/Skryldev/audioedit/application/usecase"
	"github.com/Skryldev/audioedit/domain/model"
	"github.com/Skryldev/audioedit/domain/ports"
	"github.com/Skryldev/audioedit/infrastructure/codec"
	"github.com/Skryldev/audioedit/infrastructure/ffmpeg"
	"github.com/Skryldev/audioedit/infrastructure/persistence"
	"github.com/Skryldev/audioedit/infrastructure/storage"
	"github.com/Skryldev/audioedit/pkg/logger"
	"github.com/Skryldev/audioedit/pkg/progress"
	"github.com/Skryldev/audioedit/pkg/retry"
)

// Re-export types for convenient use by callers
type (
	AudioAsset     = model.AudioAsset
	AudioRef       = model.AudioRef
	AudioMetadata  = model.AudioMetadata
	Capabilities   = model.Capabilities
	EditParameters = model.EditParameters
	EditType       = model.EditType
	EditMode       = model.EditMode
	EffectName     = model.EffectName
	Enhancement    = model.Enhancement
	NoiseReduction = model.NoiseReduction
	Subtitle       = model.Subtitle
	CommittedEdit  = model.CommittedEdit
	Format         = model.Format
	Quality        = model.Quality

	Session        = usecase.EditSession
	SessionState   = usecase.State
	SubtitleUpdate = usecase.SubtitleUpdate
	Event          = usecase.Event
	EventType      = usecase.EventType
	ExportResult   = usecase.ExportResult
	Timeline       = usecase.Timeline

	PreviewResult  = preview.Result
	ProgressUpdate = progress.Update
	ProgressStage  = progress.Stage

	Visualizer = ports.Visualizer
	Committer  = ports.Committer
	KVStore    = ports.KVStore
)

// Re-export constants
const (
	FormatMP3  = model.FormatMP3
	FormatWAV  = model.FormatWAV
	FormatOGG  = model.FormatOGG
	FormatOpus = model.FormatOpus
	FormatAAC  = model.FormatAAC

	QualityLow    = model.QualityLow
	QualityMedium = model.QualityMedium
	QualityHigh   = model.QualityHigh

	EditTrim           = model.EditTrim
	EditEnhance        = model.EditEnhance
	EditNoiseReduction = model.EditNoiseReduction
	EditNormalize      = model.EditNormalize
	EditEffects        = model.EditEffects
	EditSubtitles      = model.EditSubtitles
	EditAll            = model.EditAll

	EffectReverb  = model.EffectReverb
	EffectEQVoice = model.EffectEQVoice
	EffectBoost   = model.EffectBoost
	EffectWarmth  = model.EffectWarmth
	EffectClarity = model.EffectClarity

	StageDecode    = progress.StageDecode
	StageTrim      = progress.StageTrim
	StageNormalize = progress.StageNormalize
	StageEncode    = progress.StageEncode
	StageDone      = progress.StageDone

	EventApplied      = usecase.EventApplied
	EventPreviewReady = usecase.EventPreviewReady
	EventSaved        = usecase.EventSaved
	EventAutoSaved    = usecase.EventAutoSaved
)

// Re-export option functions
var (
	WithFormat     = ports.WithFormat
	WithQuality    = ports.WithQuality
	WithBitrate    = ports.WithBitrate
	WithSampleRate = ports.WithSampleRate
	WithChannels   = ports.WithChannels
	WithBitDepth   = ports.WithBitDepth
	WithOutputDir  = ports.WithOutputDir

	DefaultEditParameters = model.DefaultEditParameters
)

// Config holds top-level configuration for the editor
type Config struct {
	// FFmpegPath is the path to ffmpeg binary (auto-detected if empty)
	FFmpegPath string

	// FFprobePath is the path to ffprobe binary (auto-detected if empty)
	FFprobePath string

	// DisableFFmpeg forces the native WAV/Opus paths even when ffmpeg exists
	DisableFFmpeg bool

	// Logger is an optional custom logger. Uses production zap if nil.
	Logger *logger.Logger

	// ZapLogger allows passing a *zap.Logger directly
	ZapLogger *zap.Logger

	// ProgressCh is an optional channel for receiving progress updates.
	// Updates are dropped when it is full.
	ProgressCh chan<- ProgressUpdate

	// OnProgress is called synchronously for every update
	OnProgress func(ProgressUpdate)

	// Workers sets the number of per-channel workers (default: 4)
	Workers int

	// StorageDir holds rendered results. Defaults to a directory under os.TempDir.
	StorageDir string

	// AutoSaveDir holds auto-save documents. In-memory when empty.
	AutoSaveDir string

	// AutoSaveInterval overrides the periodic auto-save interval
	AutoSaveInterval time.Duration

	// PreviewDebounce overrides the per-operation preview debounce
	PreviewDebounce time.Duration

	// VisualizerTimeout is how long a visualizer load may take before the
	// session reports it as degraded
	VisualizerTimeout time.Duration

	// RetryConfig overrides default retry behavior for auto-save writes
	RetryConfig *retry.Config
}

// Editor owns the engine shared by every session it creates
type Editor struct {
	cfg      Config
	engine   *pipeline.Engine
	store    ports.KVStore
	caps     model.Capabilities
	retryCfg retry.Config
	log      *logger.Logger
}

// DetectCapabilities probes the environment once. The returned executor is
// nil when ffmpeg is unavailable or disabled.
func DetectCapabilities(cfg Config, log *logger.Logger) (model.Capabilities, *ffmpeg.Executor) {
	caps := model.Capabilities{Workers: cfg.Workers, OpusDecode: true}
	if caps.Workers <= 0 {
		caps.Workers = 4
	}
	if cfg.DisableFFmpeg {
		return caps, nil
	}

	exec, err := ffmpeg.NewExecutor(ffmpeg.ExecutorConfig{
		FFmpegPath:  cfg.FFmpegPath,
		FFprobePath: cfg.FFprobePath,
		Logger:      log,
	})
	if err != nil {
		log.Info("ffmpeg unavailable, using native codecs only", zap.Error(err))
		return caps, nil
	}
	caps.FFmpeg = true
	return caps, exec
}

// New creates an Editor with the given configuration
func New(cfg Config) (*Editor, error) {
	log := cfg.Logger
	if log == nil && cfg.ZapLogger != nil {
		log = logger.FromZap(cfg.ZapLogger)
	}
	if log == nil {
		var err error
		log, err = logger.New(false)
		if err != nil {
			return nil, err
		}
	}

	caps, exec := DetectCapabilities(cfg, log)
	var transcoder ports.Transcoder
	if exec != nil {
		transcoder = ffmpeg.NewTranscoder(exec, log.Named("ffmpeg"))
	}

	storageDir := cfg.StorageDir
	if storageDir == "" {
		storageDir = filepath.Join(os.TempDir(), "audioedit")
	}

	reporters := progress.NewMultiReporter()
	if cfg.ProgressCh != nil {
		reporters.Add(progress.NewChannelReporter(cfg.ProgressCh))
	}
	if cfg.OnProgress != nil {
		reporters.Add(progress.FuncReporter(cfg.OnProgress))
	}

	retryCfg := retry.DefaultConfig()
	if cfg.RetryConfig != nil {
		retryCfg = *cfg.RetryConfig
	}

	var store ports.KVStore = persistence.NewMemoryStore()
	if cfg.AutoSaveDir != "" {
		store = persistence.NewFileStore(cfg.AutoSaveDir)
	}

	decoders := []ports.Decoder{codec.NewWAV()}
	if caps.OpusDecode {
		decoders = append(decoders, codec.NewOggOpus())
	}

	engine, err := pipeline.NewEngine(pipeline.Config{
		Storage:      storage.NewLocalStorage(storageDir),
		Transcoder:   transcoder,
		Decoders:     decoders,
		Encoder:      codec.NewWAV(),
		Capabilities: caps,
		Reporter:     reporters,
		Logger:       log.Named("engine"),
	})
	if err != nil {
		return nil, err
	}

	log.Info("audio editor ready",
		zap.Bool("ffmpeg", caps.FFmpeg),
		zap.Int("workers", caps.Workers),
		zap.String("storage_dir", storageDir))

	return &Editor{
		cfg:      cfg,
		engine:   engine,
		store:    store,
		caps:     caps,
		retryCfg: retryCfg,
		log:      log,
	}, nil
}

// Capabilities reports what the editor detected at startup
func (e *Editor) Capabilities() Capabilities { return e.caps }

// Engine exposes the signal processing engine for direct, session-less use
func (e *Editor) Engine() *pipeline.Engine { return e.engine }

// Store returns the key/value store used for auto-save and local commits
func (e *Editor) Store() KVStore { return e.store }

// SessionOptions configures one edit session
type SessionOptions struct {
	// Visualizer is optional; the session runs headless without it
	Visualizer Visualizer
	// Committer receives saved edits. Defaults to a committer backed by the
	// editor's store.
	Committer Committer
}

// NewSession creates an edit session with its own preview generator. The
// caller initializes it with InitSession and must Close it.
func (e *Editor) NewSession(opts SessionOptions) (*Session, error) {
	gen, err := preview.NewGenerator(preview.Config{
		Renderer: e.engine,
		Logger:   e.log.Named("preview"),
		Debounce: e.cfg.PreviewDebounce,
	})
	if err != nil {
		return nil, err
	}

	committer := opts.Committer
	if committer == nil {
		committer = persistence.NewStoreCommitter(e.store)
	}

	s, err := usecase.NewEditSession(usecase.Config{
		Engine:            e.engine,
		Preview:           gen,
		Visualizer:        opts.Visualizer,
		Store:             e.store,
		Committer:         committer,
		Logger:            e.log.Named("session"),
		AutoSaveInterval:  e.cfg.AutoSaveInterval,
		VisualizerTimeout: e.cfg.VisualizerTimeout,
		RetryConfig:       e.retryCfg,
	})
	if err != nil {
		return nil, multierr.Append(err, gen.Close())
	}
	return s, nil
}

// ProbeAudio returns metadata about an audio file without decoding it
func (e *Editor) ProbeAudio(ctx context.Context, url string) (*AudioMetadata, error) {
	return e.engine.Probe(ctx, url)
}

// Close releases the engine and flushes the logger
func (e *Editor) Close() error {
	err := e.engine.Close()
	// Sync on stderr-backed loggers fails with EINVAL on some platforms
	_ = e.log.Sync()
	return err
}
