package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Skryldev/audioedit/application/preview"
	"github.com/Skryldev/audioedit/domain/model"
	"github.com/Skryldev/audioedit/domain/ports"
	"github.com/Skryldev/audioedit/pkg/dsp"
	pkgerrors "github.com/Skryldev/audioedit/pkg/errors"
	"github.com/Skryldev/audioedit/pkg/logger"
	"github.com/Skryldev/audioedit/pkg/retry"
)

const DefaultVisualizerTimeout = 15 * time.Second

// State is the session lifecycle state
type State string

const (
	StateUninitialized State = "uninitialized"
	StateReady         State = "ready"
	StateSaving        State = "saving"
	StateClosed        State = "closed"
)

// VisualizerStatus tracks the waveform component
type VisualizerStatus string

const (
	VisualizerIdle     VisualizerStatus = "idle"
	VisualizerLoading  VisualizerStatus = "loading"
	VisualizerReady    VisualizerStatus = "ready"
	VisualizerDegraded VisualizerStatus = "degraded"
)

// EventType names a session notification
type EventType string

const (
	EventParamsChanged  EventType = "params-changed"
	EventStateChanged   EventType = "state-changed"
	EventApplyStarted   EventType = "apply-started"
	EventApplied        EventType = "applied"
	EventApplyFailed    EventType = "apply-failed"
	EventPreviewStarted EventType = "preview-started"
	EventPreviewReady   EventType = "preview-ready"
	EventPreviewFailed  EventType = "preview-failed"
	EventVisualizer     EventType = "visualizer"
	EventSaved          EventType = "saved"
	EventAutoSaved      EventType = "auto-saved"
)

// Event is delivered to subscribers after the state it describes is visible
type Event struct {
	Type     EventType
	EditType model.EditType
	Ref      model.AudioRef
	Err      error
}

// Listener receives session events. It must not block.
type Listener func(Event)

// AudioEngine is the part of the signal processing engine the session drives
type AudioEngine interface {
	Decode(ctx context.Context, sourceURL string) (*model.Buffer, error)
	Forget(sourceURL string)
	ProcessCompletely(ctx context.Context, buf *model.Buffer, params model.EditParameters) (*model.Buffer, error)
	Encode(ctx context.Context, buf *model.Buffer, opts ...ports.Option) (model.AudioRef, error)
	Dispose(ctx context.Context, ref model.AudioRef) error
}

// Previewer renders debounced previews
type Previewer interface {
	Request(req preview.Request)
	OnStart(fn func(preview.Request))
	OnReady(fn func(preview.Result))
	OnError(fn func(preview.Request, error))
	Clear() error
	Close() error
}

// Config holds EditSession dependencies. Engine is required.
type Config struct {
	Engine     AudioEngine
	Preview    Previewer        // optional
	Visualizer ports.Visualizer // optional
	Store      ports.KVStore    // optional, nil disables auto-save
	Committer  ports.Committer  // optional
	Logger     *logger.Logger

	Now               func() time.Time
	AutoSaveInterval  time.Duration
	MinSaveGap        time.Duration
	VisualizerTimeout time.Duration
	RetryConfig       retry.Config
}

type applied struct {
	key string
	ref model.AudioRef
}

// EditSession coordinates edit parameters, undo history, previews and full
// quality applies for one audio asset at a time.
type EditSession struct {
	id         string
	engine     AudioEngine
	preview    Previewer
	visualizer ports.Visualizer
	store      ports.KVStore
	committer  ports.Committer
	log        *logger.Logger
	cfg        Config

	mu             sync.Mutex
	state          State
	asset          model.AudioAsset
	duration       float64
	params         model.EditParameters
	history        *History
	dirty          bool
	revision       uint64
	pending        map[model.EditType]bool
	results        map[model.EditType]applied
	retired        []model.AudioRef
	committed      *model.CommittedEdit
	timeline       Timeline
	activeSubtitle string
	playhead       float64
	lastPreview    *preview.Result
	lastAutoSave   time.Time
	autosave       *autoSaver

	visStatus VisualizerStatus
	visGen    uint64
	visTimer  *time.Timer
	visSource string

	listeners    map[int]Listener
	nextListener int

	applies singleflight.Group
}

// NewEditSession creates an uninitialized session
func NewEditSession(cfg Config) (*EditSession, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("Engine is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.AutoSaveInterval <= 0 {
		cfg.AutoSaveInterval = DefaultAutoSaveInterval
	}
	if cfg.MinSaveGap <= 0 {
		cfg.MinSaveGap = DefaultMinSaveGap
	}
	if cfg.VisualizerTimeout <= 0 {
		cfg.VisualizerTimeout = DefaultVisualizerTimeout
	}
	if cfg.RetryConfig.MaxAttempts == 0 {
		cfg.RetryConfig = retry.DefaultConfig()
	}

	id := uuid.NewString()
	s := &EditSession{
		id:         id,
		engine:     cfg.Engine,
		preview:    cfg.Preview,
		visualizer: cfg.Visualizer,
		store:      cfg.Store,
		committer:  cfg.Committer,
		log:        cfg.Logger.With(zap.String("session_id", id)),
		cfg:        cfg,
		state:      StateUninitialized,
		pending:    make(map[model.EditType]bool),
		results:    make(map[model.EditType]applied),
		visStatus:  VisualizerIdle,
		listeners:  make(map[int]Listener),
	}

	if s.preview != nil {
		s.preview.OnStart(func(req preview.Request) {
			s.notify(Event{Type: EventPreviewStarted, EditType: req.Operation})
		})
		s.preview.OnReady(s.previewReady)
		s.preview.OnError(func(req preview.Request, err error) {
			s.log.Warn("preview failed", zap.String("operation", string(req.Operation)), zap.Error(err))
			s.notify(Event{Type: EventPreviewFailed, EditType: req.Operation, Err: err})
		})
	}
	if s.visualizer != nil {
		s.visualizer.OnReady(func() { s.settleVisualizer(VisualizerReady, nil) })
		s.visualizer.OnError(func(err error) { s.settleVisualizer(VisualizerDegraded, err) })
	}
	return s, nil
}

// ID identifies the session in logs
func (s *EditSession) ID() string { return s.id }

// InitSession binds the session to asset. A source that cannot be decoded
// is rejected with a DecodeError and leaves the session untouched.
func (s *EditSession) InitSession(ctx context.Context, asset model.AudioAsset) error {
	if asset.URL == "" {
		return pkgerrors.NewInvalidParameterError("asset.url", asset.URL, "asset has no source")
	}

	s.mu.Lock()
	closed := s.state == StateClosed
	s.mu.Unlock()
	if closed {
		return pkgerrors.NewSessionNotReadyError("InitSession")
	}

	buf, err := s.engine.Decode(ctx, asset.URL)
	if err != nil {
		if _, ok := pkgerrors.As[*pkgerrors.DecodeError](err); ok {
			return err
		}
		return pkgerrors.NewDecodeError(asset.URL, "could not load audio", err)
	}

	duration := asset.Duration
	if duration <= 0 {
		duration = buf.Duration()
	}
	asset.Duration = duration
	asset.SampleRate = buf.SampleRate

	params := model.DefaultEditParameters(duration)
	restored := false
	if s.store != nil {
		if p, ok := restoreAutoSave(ctx, s.store, asset.ID, duration, s.log); ok {
			params, restored = p, true
		}
	}

	// drop whatever a previous asset left behind
	stale, oldSaver, oldURL := s.resetForInit()
	if oldSaver != nil {
		oldSaver.close()
	}
	s.disposeAll(stale)
	if oldURL != "" && oldURL != asset.URL {
		s.engine.Forget(oldURL)
	}

	s.mu.Lock()
	s.asset = asset
	s.duration = duration
	s.params = params
	s.history = NewHistory(params, s.cfg.Now())
	s.dirty = restored
	s.revision = 0
	s.committed = nil
	s.activeSubtitle = ""
	s.playhead = 0
	s.lastPreview = nil
	s.timeline = BuildTimeline(duration, asset.Transcript)
	for _, sub := range params.Subtitles {
		s.timeline.Markers = append(s.timeline.Markers, subtitleMarker(sub))
	}
	if restored {
		s.revision = 1
		defaults := model.DefaultEditParameters(duration)
		for _, t := range changedTypes(defaults, params) {
			s.pending[t] = true
		}
	}
	s.state = StateReady
	if s.store != nil {
		s.autosave = newAutoSaver(autoSaverConfig{
			Store:    s.store,
			Project:  asset.ID,
			Interval: s.cfg.AutoSaveInterval,
			MinGap:   s.cfg.MinSaveGap,
			Now:      s.cfg.Now,
			Retry:    s.cfg.RetryConfig,
			Logger:   s.log,
			Snapshot: s.autoSaveSnapshot,
			OnSaved:  s.autoSaved,
		})
		s.autosave.start()
	}
	trim := params.Trim
	s.mu.Unlock()

	s.log.Info("edit session initialized",
		zap.String("asset_id", asset.ID),
		zap.String("source", asset.URL),
		zap.Float64("duration", duration),
		zap.Int("sample_rate", asset.SampleRate),
		zap.Bool("restored", restored),
	)

	s.loadVisualizer(model.AudioRef{URL: asset.URL, Duration: duration})
	if s.visualizer != nil && !trim.IsFullLength(duration) {
		s.visualizer.SetMarkedRegion("trim", trim.StartTime, trim.EndTime)
	}
	s.notify(Event{Type: EventStateChanged})
	return nil
}

func (s *EditSession) resetForInit() ([]model.AudioRef, *autoSaver, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stale := s.takeResultsLocked()
	saver := s.autosave
	s.autosave = nil
	s.pending = make(map[model.EditType]bool)
	return stale, saver, s.asset.URL
}

// State returns the lifecycle state
func (s *EditSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsDirty reports whether anything changed since the last save or discard
func (s *EditSession) IsDirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// Params returns a copy of the current parameters
func (s *EditSession) Params() model.EditParameters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params.Clone()
}

// Asset returns the bound asset
func (s *EditSession) Asset() model.AudioAsset {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.asset
}

// Duration returns the source duration in seconds
func (s *EditSession) Duration() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration
}

// Timeline returns the current segmentation
func (s *EditSession) Timeline() Timeline {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Timeline{
		Segments: append([]Segment(nil), s.timeline.Segments...),
		Markers:  append([]Marker(nil), s.timeline.Markers...),
	}
}

// History returns a copy of the undo log and the cursor
func (s *EditSession) History() ([]model.HistoryEntry, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.history == nil {
		return nil, -1
	}
	return s.history.Entries(), s.history.Index()
}

// CanUndo reports whether Undo would move the cursor
func (s *EditSession) CanUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history != nil && s.history.CanUndo()
}

// CanRedo reports whether Redo would move the cursor
func (s *EditSession) CanRedo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history != nil && s.history.CanRedo()
}

// VisualizerStatus returns the waveform component status
func (s *EditSession) VisualizerStatus() VisualizerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visStatus
}

// LastPreview returns the most recent preview, if any
func (s *EditSession) LastPreview() (preview.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastPreview == nil {
		return preview.Result{}, false
	}
	return *s.lastPreview, true
}

// LastCommitted returns what the last successful save committed
func (s *EditSession) LastCommitted() (model.CommittedEdit, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.committed == nil {
		return model.CommittedEdit{}, false
	}
	return *s.committed, true
}

// HasPendingChanges reports whether editType has changes not yet applied
func (s *EditSession) HasPendingChanges(editType model.EditType) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending[editType]
}

// PendingChanges lists every edit type with changes not yet applied
func (s *EditSession) PendingChanges() []model.EditType {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.Filter(appliableTypes, func(t model.EditType, _ int) bool { return s.pending[t] })
}

// Subscribe registers l and returns a function that removes it
func (s *EditSession) Subscribe(l Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = l
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *EditSession) notify(ev Event) {
	s.mu.Lock()
	ls := lo.Values(s.listeners)
	s.mu.Unlock()
	for _, l := range ls {
		l(ev)
	}
}

func (s *EditSession) readyLocked(op string) error {
	if s.state != StateReady && s.state != StateSaving {
		return pkgerrors.NewSessionNotReadyError(op)
	}
	return nil
}

// SetTrim sets the kept region. Bounds must satisfy
// 0 <= start < end <= duration.
func (s *EditSession) SetTrim(start, end float64) error {
	return s.mutate("SetTrim", model.EditTrim, func(p *model.EditParameters, duration float64) error {
		t := model.Trim{StartTime: start, EndTime: end}
		if err := validateTrim(t, duration); err != nil {
			return err
		}
		p.Trim = t
		return nil
	})
}

// SetEnhancement replaces the enhancement sliders, clamped to 0-100
func (s *EditSession) SetEnhancement(e model.Enhancement) error {
	return s.mutate("SetEnhancement", model.EditEnhance, func(p *model.EditParameters, _ float64) error {
		p.Enhancement = e.Clamp()
		return nil
	})
}

// SetNoiseReduction replaces the noise reduction profile, clamped to 0-100
func (s *EditSession) SetNoiseReduction(n model.NoiseReduction) error {
	return s.mutate("SetNoiseReduction", model.EditNoiseReduction, func(p *model.EditParameters, _ float64) error {
		p.NoiseReduction = n.Clamp()
		return nil
	})
}

// SetVolumeNormalize sets the normalization level; 0 disables it
func (s *EditSession) SetVolumeNormalize(level int) error {
	return s.mutate("SetVolumeNormalize", model.EditNormalize, func(p *model.EditParameters, _ float64) error {
		p.VolumeNormalize = model.ClampSlider(level)
		return nil
	})
}

// SetEffect sets one effect's intensity; 0 turns it off
func (s *EditSession) SetEffect(name model.EffectName, intensity int) error {
	if !name.IsKnown() {
		return pkgerrors.NewInvalidParameterError("effect", name, "unknown effect")
	}
	return s.mutate("SetEffect", model.EditEffects, func(p *model.EditParameters, _ float64) error {
		p.Effects[name] = model.ClampSlider(intensity)
		return nil
	})
}

// mutate applies fn to a copy of the parameters. On success the copy becomes
// current, a history entry is recorded and the affected applied results are
// invalidated. On error nothing changes.
func (s *EditSession) mutate(op string, editType model.EditType, fn func(p *model.EditParameters, duration float64) error) error {
	s.mu.Lock()
	if err := s.readyLocked(op); err != nil {
		s.mu.Unlock()
		return err
	}
	next := s.params.Clone()
	if err := fn(&next, s.duration); err != nil {
		s.mu.Unlock()
		return err
	}
	stale := s.commitLocked(next, string(editType), invalidatedBy(editType))
	req := s.previewRequestLocked(editType)
	trim := next.Trim
	s.mu.Unlock()

	s.disposeAll(stale)
	if editType == model.EditTrim && s.visualizer != nil {
		s.visualizer.SetMarkedRegion("trim", trim.StartTime, trim.EndTime)
		s.visualizer.SeekTo(trim.StartTime)
	}
	s.requestPreview(req)
	s.afterChange()
	return nil
}

// commitLocked makes next current and records it in the history
func (s *EditSession) commitLocked(next model.EditParameters, action string, invalidate []model.EditType) []model.AudioRef {
	s.params = next
	s.dirty = true
	s.revision++
	s.history.Push(next, action, s.cfg.Now())
	return s.invalidateLocked(invalidate)
}

func (s *EditSession) invalidateLocked(types []model.EditType) []model.AudioRef {
	var stale []model.AudioRef
	for _, t := range types {
		s.pending[t] = true
		if r, ok := s.results[t]; ok {
			delete(s.results, t)
			if !s.isCommittedLocked(r.ref) {
				stale = append(stale, r.ref)
			}
		}
	}
	return stale
}

func (s *EditSession) takeResultsLocked() []model.AudioRef {
	refs := lo.Reject(s.retired, func(r model.AudioRef, _ int) bool { return s.isCommittedLocked(r) })
	s.retired = nil
	for t, r := range s.results {
		delete(s.results, t)
		if !s.isCommittedLocked(r.ref) {
			refs = append(refs, r.ref)
		}
	}
	return refs
}

func (s *EditSession) isCommittedLocked(ref model.AudioRef) bool {
	return s.committed != nil && s.committed.AudioURL == ref.URL
}

func (s *EditSession) afterChange() {
	s.mu.Lock()
	saver := s.autosave
	s.mu.Unlock()
	if saver != nil {
		saver.Nudge()
	}
	s.notify(Event{Type: EventParamsChanged})
}

// Undo restores the previous snapshot. It is a no-op at the first entry.
func (s *EditSession) Undo() error {
	return s.travel("Undo", (*History).Undo)
}

// Redo restores the next snapshot. It is a no-op at the last entry.
func (s *EditSession) Redo() error {
	return s.travel("Redo", (*History).Redo)
}

func (s *EditSession) travel(op string, move func(*History) (model.EditParameters, bool)) error {
	s.mu.Lock()
	if err := s.readyLocked(op); err != nil {
		s.mu.Unlock()
		return err
	}
	next, ok := move(s.history)
	if !ok {
		s.mu.Unlock()
		return nil
	}

	prev := s.params
	s.params = next
	s.dirty = true
	s.revision++
	var invalidate []model.EditType
	for _, t := range changedTypes(prev, next) {
		invalidate = append(invalidate, invalidatedBy(t)...)
	}
	stale := s.invalidateLocked(lo.Uniq(invalidate))
	req := s.previewRequestLocked(editTypeForMode(next.ActiveEditMode))
	zoomChanged := prev.TimelineZoom != next.TimelineZoom
	s.mu.Unlock()

	s.disposeAll(stale)
	if s.visualizer != nil {
		s.visualizer.SetMarkedRegion("trim", next.Trim.StartTime, next.Trim.EndTime)
		if zoomChanged {
			s.visualizer.SetZoom(next.TimelineZoom)
		}
	}
	s.requestPreview(req)
	s.afterChange()
	return nil
}

// ApplyEdit renders editType at full quality and returns the result. Results
// are memoized by parameter fingerprint and concurrent calls for the same
// parameters share one render. Every type except trim is rendered over the
// trimmed region.
func (s *EditSession) ApplyEdit(ctx context.Context, editType model.EditType) (model.AudioRef, error) {
	if !lo.Contains(appliableTypes, editType) {
		return model.AudioRef{}, pkgerrors.NewInvalidParameterError("editType", editType, "edit type cannot be applied")
	}

	s.mu.Lock()
	if err := s.readyLocked("ApplyEdit"); err != nil {
		s.mu.Unlock()
		return model.AudioRef{}, err
	}
	key := applyKey(s.params, editType)
	if r, ok := s.results[editType]; ok && r.key == key {
		s.mu.Unlock()
		return r.ref, nil
	}
	params := paramsFor(editType, s.params, s.duration)
	source := s.asset.URL
	s.mu.Unlock()

	// in-flight applies run to completion even if the caller goes away
	renderCtx := context.WithoutCancel(ctx)
	v, err, _ := s.applies.Do(string(editType)+"|"+key, func() (interface{}, error) {
		return s.render(renderCtx, editType, key, source, params)
	})
	if err != nil {
		return model.AudioRef{}, err
	}
	return v.(model.AudioRef), nil
}

func (s *EditSession) render(ctx context.Context, editType model.EditType, key, source string, params model.EditParameters) (model.AudioRef, error) {
	began := time.Now()
	log := s.log.With(zap.String("edit_type", string(editType)), zap.String("key", key))
	s.notify(Event{Type: EventApplyStarted, EditType: editType})

	ref, err := s.renderRef(ctx, source, params)
	if err != nil {
		log.Error("apply failed", zap.Error(err))
		applyErr := pkgerrors.NewApplyFailedError(string(editType), err)
		s.notify(Event{Type: EventApplyFailed, EditType: editType, Err: applyErr})
		return model.AudioRef{}, applyErr
	}

	s.mu.Lock()
	if s.state == StateClosed || s.asset.URL != source {
		s.mu.Unlock()
		_ = s.engine.Dispose(ctx, ref)
		return model.AudioRef{}, pkgerrors.NewSessionNotReadyError("ApplyEdit")
	}
	var stale []model.AudioRef
	currentKey := applyKey(s.params, editType)
	current := currentKey == key
	prev, hasPrev := s.results[editType]
	switch {
	case !current && hasPrev && prev.key == currentKey:
		// a newer render already holds the slot; the late ref stays owned
		// by the session until teardown so its caller can still play it
		s.retired = append(s.retired, ref)
	default:
		if hasPrev && prev.ref.URL != ref.URL && !s.isCommittedLocked(prev.ref) {
			stale = append(stale, prev.ref)
		}
		s.results[editType] = applied{key: key, ref: ref}
	}
	if current {
		delete(s.pending, editType)
	}
	s.mu.Unlock()

	s.disposeAll(stale)
	log.Info("edit applied",
		zap.String("ref", ref.URL),
		zap.Float64("duration", ref.Duration),
		zap.Bool("current", current),
		zap.Duration("took", time.Since(began)),
	)
	if editType == model.EditTrim && current {
		s.loadVisualizer(ref)
	}
	s.notify(Event{Type: EventApplied, EditType: editType, Ref: ref})
	return ref, nil
}

func (s *EditSession) renderRef(ctx context.Context, source string, params model.EditParameters) (model.AudioRef, error) {
	buf, err := s.engine.Decode(ctx, source)
	if err != nil {
		return model.AudioRef{}, err
	}
	out, err := s.engine.ProcessCompletely(ctx, buf, params)
	if err != nil {
		return model.AudioRef{}, err
	}
	return s.engine.Encode(ctx, out, ports.WithFormat(model.FormatWAV), ports.WithQuality(model.QualityHigh))
}

// SaveEdits applies every edit and commits the result, the transcript built
// from subtitles and the trimmed duration together. Nothing is committed when
// any step fails.
func (s *EditSession) SaveEdits(ctx context.Context) error {
	s.mu.Lock()
	if err := s.readyLocked("SaveEdits"); err != nil {
		s.mu.Unlock()
		return err
	}
	s.state = StateSaving
	s.mu.Unlock()
	s.notify(Event{Type: EventStateChanged})

	err := s.save(ctx)

	s.mu.Lock()
	if s.state == StateSaving {
		s.state = StateReady
	}
	s.mu.Unlock()
	s.notify(Event{Type: EventStateChanged})
	return err
}

func (s *EditSession) save(ctx context.Context) error {
	ref, err := s.ApplyEdit(ctx, model.EditAll)
	if err != nil {
		return err
	}

	s.mu.Lock()
	params := s.params.Clone()
	asset := s.asset
	duration := s.duration
	revision := s.revision
	s.mu.Unlock()

	edit := model.CommittedEdit{
		AudioURL:   ref.URL,
		Transcript: TranscriptFromSubtitles(params.Subtitles),
	}
	if !params.Trim.IsFullLength(duration) {
		d := params.Trim.Length()
		edit.Duration = &d
	}

	if s.committer != nil {
		if err := s.committer.Commit(ctx, asset.ID, edit); err != nil {
			s.log.Error("commit failed", zap.String("asset_id", asset.ID), zap.Error(err))
			return fmt.Errorf("committing edits: %w", err)
		}
	}

	s.mu.Lock()
	s.committed = &edit
	if s.revision == revision {
		s.dirty = false
	}
	s.mu.Unlock()

	s.log.Info("edits saved", zap.String("asset_id", asset.ID), zap.String("ref", ref.URL))
	s.notify(Event{Type: EventSaved, EditType: model.EditAll, Ref: ref})
	return nil
}

// DiscardEdits resets the parameters to defaults and drops every applied
// result. Committed state is not touched.
func (s *EditSession) DiscardEdits() error {
	s.mu.Lock()
	if err := s.readyLocked("DiscardEdits"); err != nil {
		s.mu.Unlock()
		return err
	}
	s.params = model.DefaultEditParameters(s.duration)
	s.history.Reset(s.params, s.cfg.Now())
	s.dirty = false
	s.revision++
	s.pending = make(map[model.EditType]bool)
	s.activeSubtitle = ""
	s.lastPreview = nil
	s.timeline = BuildTimeline(s.duration, s.asset.Transcript)
	stale := s.takeResultsLocked()
	reload := s.visSource != s.asset.URL
	source := model.AudioRef{URL: s.asset.URL, Duration: s.duration}
	s.mu.Unlock()

	s.disposeAll(stale)
	if s.preview != nil {
		if err := s.preview.Clear(); err != nil {
			s.log.Warn("failed to clear previews", zap.Error(err))
		}
	}
	if s.visualizer != nil {
		s.visualizer.ClearRegions()
		if reload {
			s.loadVisualizer(source)
		}
	}
	s.afterChange()
	return nil
}

// AddSubtitle appends a caption with the default style and makes it active
func (s *EditSession) AddSubtitle(start, end float64, text string) (model.Subtitle, error) {
	if math.IsNaN(start) || math.IsNaN(end) || start < 0 || end <= start {
		return model.Subtitle{}, pkgerrors.NewInvalidParameterError("subtitle", [2]float64{start, end}, "subtitle must end after it starts")
	}
	sub := newSubtitle(start, end, text)
	err := s.mutateSubtitles("AddSubtitle", func(p *model.EditParameters) error {
		p.Subtitles = append(p.Subtitles, sub)
		return nil
	}, func() {
		s.activeSubtitle = sub.ID
		s.timeline.Markers = append(s.timeline.Markers, subtitleMarker(sub))
	})
	if err != nil {
		return model.Subtitle{}, err
	}
	return sub, nil
}

// UpdateSubtitle changes the fields set in u. Unknown ids are ignored.
func (s *EditSession) UpdateSubtitle(id string, u SubtitleUpdate) error {
	var updated model.Subtitle
	err := s.mutateSubtitles("UpdateSubtitle", func(p *model.EditParameters) error {
		_, idx, ok := lo.FindIndexOf(p.Subtitles, func(sub model.Subtitle) bool { return sub.ID == id })
		if !ok {
			return errNoChange
		}
		next := u.apply(p.Subtitles[idx])
		if next.EndTime <= next.StartTime || next.StartTime < 0 {
			return pkgerrors.NewInvalidParameterError("subtitle", [2]float64{next.StartTime, next.EndTime}, "subtitle must end after it starts")
		}
		p.Subtitles[idx] = next
		updated = next
		return nil
	}, func() {
		markerID := subtitleMarker(updated).ID
		for i, m := range s.timeline.Markers {
			if m.ID == markerID {
				s.timeline.Markers[i] = subtitleMarker(updated)
			}
		}
	})
	if errors.Is(err, errNoChange) {
		return nil
	}
	return err
}

// RemoveSubtitle deletes a caption and its marker
func (s *EditSession) RemoveSubtitle(id string) error {
	err := s.mutateSubtitles("RemoveSubtitle", func(p *model.EditParameters) error {
		kept := lo.Reject(p.Subtitles, func(sub model.Subtitle, _ int) bool { return sub.ID == id })
		if len(kept) == len(p.Subtitles) {
			return errNoChange
		}
		p.Subtitles = kept
		return nil
	}, func() {
		markerID := "marker-subtitle-" + id
		s.timeline.Markers = lo.Reject(s.timeline.Markers, func(m Marker, _ int) bool { return m.ID == markerID })
		if s.activeSubtitle == id {
			s.activeSubtitle = ""
		}
	})
	if errors.Is(err, errNoChange) {
		return nil
	}
	return err
}

var errNoChange = errors.New("no change")

func (s *EditSession) mutateSubtitles(op string, fn func(p *model.EditParameters) error, after func()) error {
	s.mu.Lock()
	if err := s.readyLocked(op); err != nil {
		s.mu.Unlock()
		return err
	}
	next := s.params.Clone()
	if err := fn(&next); err != nil {
		s.mu.Unlock()
		return err
	}
	stale := s.commitLocked(next, string(model.EditSubtitles), []model.EditType{model.EditSubtitles, model.EditAll})
	after()
	s.mu.Unlock()

	s.disposeAll(stale)
	s.afterChange()
	return nil
}

// ActiveSubtitle returns the selected caption
func (s *EditSession) ActiveSubtitle() (model.Subtitle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.Find(s.params.Subtitles, func(sub model.Subtitle) bool { return sub.ID == s.activeSubtitle })
}

// SetActiveSubtitle selects a caption; "" clears the selection
func (s *EditSession) SetActiveSubtitle(id string) error {
	s.mu.Lock()
	if err := s.readyLocked("SetActiveSubtitle"); err != nil {
		s.mu.Unlock()
		return err
	}
	s.activeSubtitle = id
	s.mu.Unlock()
	s.notify(Event{Type: EventParamsChanged})
	return nil
}

// ToggleSubtitles flips subtitle visibility
func (s *EditSession) ToggleSubtitles() error {
	s.mu.Lock()
	if err := s.readyLocked("ToggleSubtitles"); err != nil {
		s.mu.Unlock()
		return err
	}
	s.params.ShowSubtitles = !s.params.ShowSubtitles
	s.revision++
	s.mu.Unlock()
	s.notify(Event{Type: EventParamsChanged})
	return nil
}

// SetEditMode focuses an editor panel
func (s *EditSession) SetEditMode(mode model.EditMode) error {
	s.mu.Lock()
	if err := s.readyLocked("SetEditMode"); err != nil {
		s.mu.Unlock()
		return err
	}
	s.params.ActiveEditMode = mode
	s.mu.Unlock()
	s.notify(Event{Type: EventParamsChanged})
	return nil
}

// SetTimelineZoom clamps factor to [0.1, 5] and forwards it to the visualizer
func (s *EditSession) SetTimelineZoom(factor float64) error {
	s.mu.Lock()
	if err := s.readyLocked("SetTimelineZoom"); err != nil {
		s.mu.Unlock()
		return err
	}
	zoom := clampZoom(factor)
	s.params.TimelineZoom = zoom
	s.mu.Unlock()

	if s.visualizer != nil {
		s.visualizer.SetZoom(zoom)
	}
	s.notify(Event{Type: EventParamsChanged})
	return nil
}

// Seek moves the playhead, clamped to the source
func (s *EditSession) Seek(seconds float64) error {
	s.mu.Lock()
	if err := s.readyLocked("Seek"); err != nil {
		s.mu.Unlock()
		return err
	}
	if math.IsNaN(seconds) {
		seconds = 0
	}
	s.playhead = math.Min(math.Max(seconds, 0), s.duration)
	t := s.playhead
	s.mu.Unlock()

	if s.visualizer != nil {
		s.visualizer.SeekTo(t)
	}
	return nil
}

// Playhead returns the playhead position in seconds
func (s *EditSession) Playhead() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playhead
}

// PreviewEdit requests a preview of editType with the current parameters
func (s *EditSession) PreviewEdit(editType model.EditType) error {
	s.mu.Lock()
	if err := s.readyLocked("PreviewEdit"); err != nil {
		s.mu.Unlock()
		return err
	}
	req := s.previewRequestLocked(editType)
	s.mu.Unlock()
	if req == nil {
		return pkgerrors.NewInvalidParameterError("editType", editType, "edit type has no preview")
	}
	s.requestPreview(req)
	return nil
}

func (s *EditSession) previewRequestLocked(editType model.EditType) *preview.Request {
	if s.preview == nil || editType == "" || editType == model.EditSubtitles {
		return nil
	}
	if !lo.Contains(appliableTypes, editType) {
		return nil
	}
	return &preview.Request{
		SourceURL: s.asset.URL,
		Operation: editType,
		Params:    s.params.Clone(),
		Playhead:  s.playhead,
	}
}

func (s *EditSession) requestPreview(req *preview.Request) {
	if req != nil {
		s.preview.Request(*req)
	}
}

func (s *EditSession) previewReady(res preview.Result) {
	s.mu.Lock()
	if res.Request.SourceURL != s.asset.URL {
		s.mu.Unlock()
		return
	}
	if last := s.lastPreview; last != nil && last.Request.Operation == res.Request.Operation && last.Request.Seq > res.Request.Seq {
		s.mu.Unlock()
		return
	}
	s.lastPreview = &res
	s.mu.Unlock()
	s.notify(Event{Type: EventPreviewReady, EditType: res.Request.Operation, Ref: res.Ref})
}

// SetExportFormat selects the export container
func (s *EditSession) SetExportFormat(f model.Format) error {
	switch f {
	case model.FormatMP3, model.FormatWAV, model.FormatOGG, model.FormatOpus, model.FormatAAC:
	default:
		return pkgerrors.NewInvalidParameterError("format", f, "unsupported export format")
	}
	return s.mutateExport("SetExportFormat", func(p *model.EditParameters) { p.ExportFormat = f })
}

// SetExportQuality selects the export preset
func (s *EditSession) SetExportQuality(q model.Quality) error {
	if !validQuality(q) {
		return pkgerrors.NewInvalidParameterError("quality", q, "unsupported export quality")
	}
	return s.mutateExport("SetExportQuality", func(p *model.EditParameters) { p.ExportQuality = q })
}

func (s *EditSession) mutateExport(op string, fn func(p *model.EditParameters)) error {
	s.mu.Lock()
	if err := s.readyLocked(op); err != nil {
		s.mu.Unlock()
		return err
	}
	next := s.params.Clone()
	fn(&next)
	s.commitLocked(next, "export", nil)
	s.mu.Unlock()
	s.afterChange()
	return nil
}

// EstimatedFileSizeKB estimates the export size of the trimmed region
func (s *EditSession) EstimatedFileSizeKB() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return EstimateFileSizeKB(s.params.ExportFormat, s.params.ExportQuality, s.params.Trim.Length())
}

// MaxDuration returns the longest export the current format and quality allow
func (s *EditSession) MaxDuration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return MaxExportDuration(s.params.ExportFormat, s.params.ExportQuality)
}

// PrepareExport renders every edit and encodes it with the export format and
// quality. The caller owns the returned reference.
func (s *EditSession) PrepareExport(ctx context.Context) (ExportResult, error) {
	s.mu.Lock()
	if err := s.readyLocked("PrepareExport"); err != nil {
		s.mu.Unlock()
		return ExportResult{}, err
	}
	format, quality := s.params.ExportFormat, s.params.ExportQuality
	length := s.params.Trim.Length()
	s.mu.Unlock()

	if limit := MaxExportDuration(format, quality); time.Duration(length*float64(time.Second)) > limit {
		return ExportResult{}, pkgerrors.NewInvalidParameterError("duration", length,
			fmt.Sprintf("exports in %s/%s are limited to %s", format, quality, limit))
	}

	ref, err := s.ApplyEdit(ctx, model.EditAll)
	if err != nil {
		return ExportResult{}, err
	}

	buf, err := s.engine.Decode(ctx, ref.URL)
	if err != nil {
		return ExportResult{}, pkgerrors.NewApplyFailedError("export", err)
	}
	defer s.engine.Forget(ref.URL)

	settings := quality.Settings()
	out, err := s.engine.Encode(ctx, buf,
		ports.WithFormat(format),
		ports.WithQuality(quality),
		ports.WithSampleRate(settings.SampleRate),
		ports.WithChannels(settings.Channels),
		ports.WithBitDepth(settings.BitDepth),
	)
	if err != nil {
		return ExportResult{}, pkgerrors.NewApplyFailedError("export", err)
	}

	s.log.Info("export prepared",
		zap.String("format", string(out.Format)),
		zap.String("quality", string(quality)),
		zap.String("ref", out.URL),
	)
	return ExportResult{
		Ref:             out,
		Format:          out.Format,
		Quality:         quality,
		Settings:        settings,
		EstimatedSizeKB: EstimateFileSizeKB(format, quality, length),
	}, nil
}

// Waveform returns n peak values of the trimmed region for drawing a
// fallback waveform when the visualizer is degraded
func (s *EditSession) Waveform(ctx context.Context, n int) ([]float64, error) {
	s.mu.Lock()
	if err := s.readyLocked("Waveform"); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	source, trim := s.asset.URL, s.params.Trim
	s.mu.Unlock()

	buf, err := s.engine.Decode(ctx, source)
	if err != nil {
		return nil, err
	}
	start := int(math.Round(trim.StartTime * float64(buf.SampleRate)))
	end := int(math.Round(trim.EndTime * float64(buf.SampleRate)))
	start = lo.Clamp(start, 0, buf.Len())
	end = lo.Clamp(end, start, buf.Len())

	channels := make([][]float64, buf.NumChannels())
	for i, ch := range buf.Channels {
		channels[i] = ch[start:end]
	}
	return dsp.VolumeData(channels, n), nil
}

// loadVisualizer hands ref to the visualizer and degrades it when it is not
// ready within the timeout
func (s *EditSession) loadVisualizer(ref model.AudioRef) {
	if s.visualizer == nil {
		return
	}
	s.mu.Lock()
	s.visGen++
	gen := s.visGen
	s.visStatus = VisualizerLoading
	s.visSource = ref.URL
	if s.visTimer != nil {
		s.visTimer.Stop()
	}
	s.visTimer = time.AfterFunc(s.cfg.VisualizerTimeout, func() {
		s.expireVisualizer(gen)
	})
	s.mu.Unlock()

	s.visualizer.LoadSource(ref)
}

func (s *EditSession) expireVisualizer(gen uint64) {
	s.mu.Lock()
	if gen != s.visGen || s.visStatus != VisualizerLoading {
		s.mu.Unlock()
		return
	}
	s.visStatus = VisualizerDegraded
	s.mu.Unlock()

	s.log.Warn("visualizer did not become ready, using fallback waveform",
		zap.Duration("timeout", s.cfg.VisualizerTimeout))
	s.notify(Event{Type: EventVisualizer, Err: context.DeadlineExceeded})
}

func (s *EditSession) settleVisualizer(status VisualizerStatus, err error) {
	s.mu.Lock()
	if s.visStatus != VisualizerLoading {
		s.mu.Unlock()
		return
	}
	s.visStatus = status
	if s.visTimer != nil {
		s.visTimer.Stop()
		s.visTimer = nil
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Warn("visualizer failed, using fallback waveform", zap.Error(err))
	}
	s.notify(Event{Type: EventVisualizer, Err: err})
}

func (s *EditSession) autoSaveSnapshot() (model.EditParameters, uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params.Clone(), s.revision, s.dirty
}

func (s *EditSession) autoSaved(at time.Time) {
	s.mu.Lock()
	s.lastAutoSave = at
	s.mu.Unlock()
	s.notify(Event{Type: EventAutoSaved})
}

// LastAutoSave returns when the state was last auto-saved
func (s *EditSession) LastAutoSave() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAutoSave
}

func (s *EditSession) disposeAll(refs []model.AudioRef) {
	for _, ref := range refs {
		if err := s.engine.Dispose(context.Background(), ref); err != nil {
			s.log.Warn("failed to dispose result", zap.String("ref", ref.URL), zap.Error(err))
		}
	}
}

// Close stops the auto-save scheduler and the preview generator and releases
// every applied result the session still owns
func (s *EditSession) Close() error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	s.state = StateClosed
	saver := s.autosave
	s.autosave = nil
	if s.visTimer != nil {
		s.visTimer.Stop()
		s.visTimer = nil
	}
	refs := s.takeResultsLocked()
	source := s.asset.URL
	s.mu.Unlock()

	if saver != nil {
		saver.close()
	}

	var errs error
	if s.preview != nil {
		errs = multierr.Append(errs, s.preview.Close())
	}
	for _, ref := range refs {
		errs = multierr.Append(errs, s.engine.Dispose(context.Background(), ref))
	}
	if source != "" {
		s.engine.Forget(source)
	}
	s.log.Debug("edit session closed", zap.Int("released", len(refs)))
	return errs
}

var appliableTypes = []model.EditType{
	model.EditTrim,
	model.EditEnhance,
	model.EditNoiseReduction,
	model.EditNormalize,
	model.EditEffects,
	model.EditAll,
}

// invalidatedBy lists the applied results a change to editType makes stale.
// Every result is rendered over the trimmed region, so a trim change
// invalidates all of them.
func invalidatedBy(editType model.EditType) []model.EditType {
	switch editType {
	case model.EditTrim:
		return appliableTypes
	case model.EditSubtitles:
		return []model.EditType{model.EditSubtitles, model.EditAll}
	default:
		return []model.EditType{editType, model.EditAll}
	}
}

// changedTypes lists the edit types whose parameters differ between a and b
func changedTypes(a, b model.EditParameters) []model.EditType {
	types := []model.EditType{model.EditTrim, model.EditEnhance, model.EditNoiseReduction, model.EditNormalize, model.EditEffects, model.EditSubtitles}
	return lo.Filter(types, func(t model.EditType, _ int) bool {
		return a.Fingerprint(t) != b.Fingerprint(t)
	})
}

func applyKey(p model.EditParameters, editType model.EditType) string {
	switch editType {
	case model.EditTrim, model.EditAll:
		return p.Fingerprint(editType)
	default:
		return p.Fingerprint(editType) + "/" + p.Fingerprint(model.EditTrim)
	}
}

// paramsFor keeps the trim and only the parameters of editType
func paramsFor(editType model.EditType, p model.EditParameters, duration float64) model.EditParameters {
	if editType == model.EditAll {
		return p.Clone()
	}
	out := model.DefaultEditParameters(duration)
	out.Trim = p.Trim
	switch editType {
	case model.EditEnhance:
		out.Enhancement = p.Enhancement
	case model.EditNoiseReduction:
		out.NoiseReduction = p.NoiseReduction
	case model.EditNormalize:
		out.VolumeNormalize = p.VolumeNormalize
	case model.EditEffects:
		out.Effects = p.Effects.Clone()
	}
	return out
}

func editTypeForMode(mode model.EditMode) model.EditType {
	switch mode {
	case model.ModeTrim:
		return model.EditTrim
	case model.ModeEnhance:
		return model.EditEnhance
	case model.ModeNoiseReduction:
		return model.EditNoiseReduction
	case model.ModeNormalize:
		return model.EditNormalize
	case model.ModeEffects:
		return model.EditEffects
	default:
		return ""
	}
}

// trimTolerance absorbs float noise when the end bound equals the duration
const trimTolerance = 1e-6

func validateTrim(t model.Trim, duration float64) error {
	switch {
	case math.IsNaN(t.StartTime) || math.IsNaN(t.EndTime):
		return pkgerrors.NewInvalidParameterError("trim", t, "bounds must be numbers")
	case t.StartTime < 0:
		return pkgerrors.NewInvalidParameterError("trim.startTime", t.StartTime, "start must not be negative")
	case t.EndTime <= t.StartTime:
		return pkgerrors.NewInvalidParameterError("trim.endTime", t.EndTime, "end must be after start")
	case duration > 0 && t.EndTime > duration+trimTolerance:
		return pkgerrors.NewInvalidParameterError("trim.endTime", t.EndTime, fmt.Sprintf("end is past the source duration %.3f", duration))
	}
	return nil
}

func clampZoom(z float64) float64 {
	if math.IsNaN(z) || z == 0 {
		return 1
	}
	return math.Min(math.Max(z, model.MinTimelineZoom), model.MaxTimelineZoom)
}
