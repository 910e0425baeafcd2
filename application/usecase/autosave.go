package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Skryldev/audioedit/domain/model"
	"github.com/Skryldev/audioedit/domain/ports"
	"github.com/Skryldev/audioedit/pkg/logger"
	"github.com/Skryldev/audioedit/pkg/retry"
)

const (
	AutoSaveKeyPrefix       = "audioeditor_autoSave:"
	AutoSaveVersion         = 1
	DefaultAutoSaveInterval = 30 * time.Second
	DefaultMinSaveGap       = 5 * time.Second
)

// AutoSavePayload is the JSON document written to the store
type AutoSavePayload struct {
	Version   int                  `json:"version"`
	Timestamp int64                `json:"timestamp"` // unix milliseconds
	ProjectID string               `json:"projectId"`
	State     model.EditParameters `json:"state"`
}

// AutoSaveKey returns the store key for an asset
func AutoSaveKey(assetID string) string {
	if assetID == "" {
		assetID = "unknown"
	}
	return AutoSaveKeyPrefix + assetID
}

// snapshot returns the state to save, its revision and whether the session is dirty
type snapshot func() (state model.EditParameters, revision uint64, dirty bool)

// autoSaver writes the session state to a KV store on a fixed interval while
// the session is dirty. Writes closer together than minGap are skipped.
type autoSaver struct {
	store    ports.KVStore
	key      string
	project  string
	interval time.Duration
	minGap   time.Duration
	now      func() time.Time
	retryCfg retry.Config
	log      *logger.Logger
	snapshot snapshot
	onSaved  func(time.Time)

	mu           sync.Mutex
	lastSave     time.Time
	lastRevision uint64

	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	nudge   chan struct{}
	stop    chan struct{}
	done    chan struct{}
}

type autoSaverConfig struct {
	Store    ports.KVStore
	Project  string
	Interval time.Duration
	MinGap   time.Duration
	Now      func() time.Time
	Retry    retry.Config
	Logger   *logger.Logger
	Snapshot snapshot
	OnSaved  func(time.Time)
}

func newAutoSaver(cfg autoSaverConfig) *autoSaver {
	ctx, cancel := context.WithCancel(context.Background())
	return &autoSaver{
		ctx:      ctx,
		cancel:   cancel,
		store:    cfg.Store,
		key:      AutoSaveKey(cfg.Project),
		project:  cfg.Project,
		interval: cfg.Interval,
		minGap:   cfg.MinGap,
		now:      cfg.Now,
		retryCfg: cfg.Retry,
		log:      cfg.Logger.With(zap.String("autosave_key", AutoSaveKey(cfg.Project))),
		snapshot: cfg.Snapshot,
		onSaved:  cfg.OnSaved,
		nudge:    make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (a *autoSaver) start() {
	a.started = true
	go a.run()
}

func (a *autoSaver) run() {
	defer close(a.done)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-a.stop:
			return
		case <-ticker.C:
		case <-a.nudge:
		}
		_, _ = a.save(a.ctx)
	}
}

// Nudge asks for a save attempt without waiting for the next tick
func (a *autoSaver) Nudge() {
	select {
	case a.nudge <- struct{}{}:
	default:
	}
}

// save writes the current state when it is dirty, changed since the last
// write and at least minGap after it. It reports whether a write happened.
func (a *autoSaver) save(ctx context.Context) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	state, revision, dirty := a.snapshot()
	if !dirty || revision == a.lastRevision {
		return false, nil
	}
	now := a.now()
	if !a.lastSave.IsZero() && now.Sub(a.lastSave) < a.minGap {
		return false, nil
	}
	a.lastSave = now

	data, err := json.Marshal(AutoSavePayload{
		Version:   AutoSaveVersion,
		Timestamp: now.UnixMilli(),
		ProjectID: a.project,
		State:     state,
	})
	if err != nil {
		return false, fmt.Errorf("encoding auto-save state: %w", err)
	}

	err = retry.Do(ctx, a.retryCfg, func() error {
		return a.store.Put(ctx, a.key, data)
	})
	if err != nil {
		a.log.Warn("auto-save failed", zap.Error(err))
		return false, err
	}

	a.lastRevision = revision
	a.log.Debug("auto-saved editor state", zap.Time("at", now), zap.Uint64("revision", revision))
	if a.onSaved != nil {
		a.onSaved(now)
	}
	return true, nil
}

func (a *autoSaver) close() {
	select {
	case <-a.stop:
		return
	default:
		a.cancel()
		close(a.stop)
	}
	if a.started {
		<-a.done
	}
}

// restoreAutoSave reads a previously saved state for project. Any failure
// yields ok=false and the caller starts from defaults.
func restoreAutoSave(ctx context.Context, store ports.KVStore, project string, duration float64, log *logger.Logger) (model.EditParameters, bool) {
	data, err := store.Get(ctx, AutoSaveKey(project))
	if err != nil {
		log.Debug("no auto-saved state", zap.String("project", project), zap.Error(err))
		return model.EditParameters{}, false
	}

	var payload AutoSavePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		log.Warn("discarding unreadable auto-save", zap.String("project", project), zap.Error(err))
		return model.EditParameters{}, false
	}
	if payload.Version != AutoSaveVersion || payload.ProjectID != project {
		log.Warn("discarding auto-save for another version or project",
			zap.Int("version", payload.Version),
			zap.String("saved_project", payload.ProjectID),
		)
		return model.EditParameters{}, false
	}

	return sanitize(payload.State, duration), true
}

// sanitize brings restored parameters back inside their domains
func sanitize(p model.EditParameters, duration float64) model.EditParameters {
	defaults := model.DefaultEditParameters(duration)

	out := p.Clone()
	if validateTrim(out.Trim, duration) != nil {
		out.Trim = defaults.Trim
	}
	out.Enhancement = out.Enhancement.Clamp()
	out.NoiseReduction = out.NoiseReduction.Clamp()
	out.VolumeNormalize = model.ClampSlider(out.VolumeNormalize)

	fx := model.DefaultEffects()
	for name, v := range p.Effects {
		if name.IsKnown() {
			fx[name] = model.ClampSlider(v)
		}
	}
	out.Effects = fx

	if out.Subtitles == nil {
		out.Subtitles = []model.Subtitle{}
	}
	out.TimelineZoom = clampZoom(out.TimelineZoom)
	if out.ExportFormat == "" {
		out.ExportFormat = defaults.ExportFormat
	}
	if !validQuality(out.ExportQuality) {
		out.ExportQuality = defaults.ExportQuality
	}
	return out
}
