package progress

import (
	"sync"
	"time"
)

// Stage is one step of a full-quality render
type Stage string

const (
	StageDecode         Stage = "decode"
	StageTrim           Stage = "trim"
	StageNoiseReduction Stage = "noise-reduction"
	StageEnhance        Stage = "enhance"
	StageEffects        Stage = "effects"
	StageNormalize      Stage = "normalize"
	StageEncode         Stage = "encode"
	StageDone           Stage = "done"
)

// Update holds a progress update
type Update struct {
	JobID     string
	Stage     Stage
	Percent   float64
	Message   string
	Timestamp time.Time
}

// Reporter is the interface for progress reporting
type Reporter interface {
	Report(update Update)
}

// Job reports the stages of a single render against a fixed stage count
type Job struct {
	r     Reporter
	id    string
	total int
	done  int
}

// NewJob binds r to jobID. total is the number of Step calls expected before Finish.
func NewJob(r Reporter, jobID string, total int) *Job {
	if r == nil {
		r = NoopReporter{}
	}
	return &Job{r: r, id: jobID, total: total}
}

// Step records that stage completed
func (j *Job) Step(stage Stage) {
	j.done++
	pct := 100.0
	if j.total > 0 && j.done < j.total {
		pct = float64(j.done) / float64(j.total) * 100
	}
	j.emit(stage, pct, "")
}

// Finish reports StageDone at 100%
func (j *Job) Finish(msg string) {
	j.emit(StageDone, 100, msg)
}

func (j *Job) emit(stage Stage, pct float64, msg string) {
	j.r.Report(Update{JobID: j.id, Stage: stage, Percent: pct, Message: msg, Timestamp: time.Now()})
}

// ChannelReporter sends updates to a channel without blocking; updates are
// dropped when the channel is full
type ChannelReporter struct {
	ch chan<- Update
}

// NewChannelReporter creates a reporter that sends updates to ch
func NewChannelReporter(ch chan<- Update) *ChannelReporter {
	return &ChannelReporter{ch: ch}
}

func (r *ChannelReporter) Report(update Update) {
	if update.Timestamp.IsZero() {
		update.Timestamp = time.Now()
	}
	select {
	case r.ch <- update:
	default:
	}
}

// FuncReporter adapts a function to Reporter
type FuncReporter func(Update)

func (f FuncReporter) Report(update Update) { f(update) }

// MultiReporter fans out to multiple reporters
type MultiReporter struct {
	mu        sync.RWMutex
	reporters []Reporter
}

func NewMultiReporter(reporters ...Reporter) *MultiReporter {
	return &MultiReporter{reporters: reporters}
}

func (m *MultiReporter) Add(r Reporter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reporters = append(m.reporters, r)
}

func (m *MultiReporter) Report(update Update) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.reporters {
		r.Report(update)
	}
}

// NoopReporter discards all updates
type NoopReporter struct{}

func (n NoopReporter) Report(_ Update) {}
