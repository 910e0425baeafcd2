package mocks

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"

	"github.com/Skryldev/audioedit/domain/model"
	"github.com/Skryldev/audioedit/domain/ports"
)

// MockFFmpegExecutor is a test double for ports.FFmpegExecutor
type MockFFmpegExecutor struct {
	ExecuteFunc  func(ctx context.Context, args []string) error
	ProbeFunc    func(ctx context.Context, inputPath string) ([]byte, error)
	ExecutedArgs [][]string
}

func (m *MockFFmpegExecutor) Execute(ctx context.Context, args []string) error {
	m.ExecutedArgs = append(m.ExecutedArgs, args)
	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(ctx, args)
	}
	return nil
}

func (m *MockFFmpegExecutor) Probe(ctx context.Context, inputPath string) ([]byte, error) {
	if m.ProbeFunc != nil {
		return m.ProbeFunc(ctx, inputPath)
	}
	return defaultProbeResponse(), nil
}

func defaultProbeResponse() []byte {
	resp := map[string]interface{}{
		"format": map[string]interface{}{
			"duration":    "120.5",
			"bit_rate":    "192000",
			"size":        "2880000",
			"format_name": "wav",
		},
		"streams": []map[string]interface{}{
			{
				"codec_type":  "audio",
				"codec_name":  "pcm_s16le",
				"sample_rate": "44100",
				"channels":    2,
				"bit_rate":    "1411200",
			},
		},
	}
	b, _ := json.Marshal(resp)
	return b
}

// MockTranscoder is a test double for ports.Transcoder
type MockTranscoder struct {
	mu              sync.Mutex
	TranscodeFunc   func(ctx context.Context, in, out string, opts model.EncodeOptions) error
	DecodeToWAVFunc func(ctx context.Context, in, out string) error
	ProbeFunc       func(ctx context.Context, in string) (*model.AudioMetadata, error)
	Transcoded      []model.EncodeOptions
}

func (m *MockTranscoder) Transcode(ctx context.Context, in, out string, opts model.EncodeOptions) error {
	m.mu.Lock()
	m.Transcoded = append(m.Transcoded, opts)
	m.mu.Unlock()
	if m.TranscodeFunc != nil {
		return m.TranscodeFunc(ctx, in, out, opts)
	}
	return nil
}

func (m *MockTranscoder) DecodeToWAV(ctx context.Context, in, out string) error {
	if m.DecodeToWAVFunc != nil {
		return m.DecodeToWAVFunc(ctx, in, out)
	}
	return errors.New("decode not supported")
}

func (m *MockTranscoder) ProbeMetadata(ctx context.Context, in string) (*model.AudioMetadata, error) {
	if m.ProbeFunc != nil {
		return m.ProbeFunc(ctx, in)
	}
	return nil, errors.New("probe not supported")
}

// MockStorageProvider is a test double for ports.StorageProvider
type MockStorageProvider struct {
	ExistsFunc   func(ctx context.Context, path string) (bool, error)
	SizeFunc     func(ctx context.Context, path string) (int64, error)
	RemoveFunc   func(ctx context.Context, path string) error
	TempFileFunc func(ctx context.Context, dir, pattern string) (string, error)
	CreateFunc   func(ctx context.Context, dir, pattern string) (ports.WriteSeekCloser, string, error)
	OpenFunc     func(ctx context.Context, path string) (io.ReadSeekCloser, error)
}

func (m *MockStorageProvider) Exists(ctx context.Context, path string) (bool, error) {
	if m.ExistsFunc != nil {
		return m.ExistsFunc(ctx, path)
	}
	return true, nil
}

func (m *MockStorageProvider) Size(ctx context.Context, path string) (int64, error) {
	if m.SizeFunc != nil {
		return m.SizeFunc(ctx, path)
	}
	return 1024, nil
}

func (m *MockStorageProvider) Remove(ctx context.Context, path string) error {
	if m.RemoveFunc != nil {
		return m.RemoveFunc(ctx, path)
	}
	return nil
}

func (m *MockStorageProvider) TempFile(ctx context.Context, dir, pattern string) (string, error) {
	if m.TempFileFunc != nil {
		return m.TempFileFunc(ctx, dir, pattern)
	}
	return "/tmp/mock_temp_file", nil
}

func (m *MockStorageProvider) Create(ctx context.Context, dir, pattern string) (ports.WriteSeekCloser, string, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, dir, pattern)
	}
	return nil, "", errors.New("create not supported")
}

func (m *MockStorageProvider) Open(ctx context.Context, path string) (io.ReadSeekCloser, error) {
	if m.OpenFunc != nil {
		return m.OpenFunc(ctx, path)
	}
	return nil, errors.New("open not supported")
}

// MockVisualizer records every call made by the session
type MockVisualizer struct {
	mu      sync.Mutex
	ready   func()
	failed  func(error)
	Loaded  []model.AudioRef
	Seeks   []float64
	Zooms   []float64
	Regions [][2]float64
	Cleared int
	// AutoReady fires the ready callback on every LoadSource
	AutoReady bool
}

func (m *MockVisualizer) LoadSource(ref model.AudioRef) {
	m.mu.Lock()
	m.Loaded = append(m.Loaded, ref)
	ready, auto := m.ready, m.AutoReady
	m.mu.Unlock()
	if auto && ready != nil {
		ready()
	}
}

func (m *MockVisualizer) OnReady(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ready = fn
}

func (m *MockVisualizer) OnError(fn func(error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed = fn
}

// Fail invokes the registered error callback
func (m *MockVisualizer) Fail(err error) {
	m.mu.Lock()
	failed := m.failed
	m.mu.Unlock()
	if failed != nil {
		failed(err)
	}
}

func (m *MockVisualizer) SeekTo(seconds float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Seeks = append(m.Seeks, seconds)
}

func (m *MockVisualizer) SetZoom(factor float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Zooms = append(m.Zooms, factor)
}

func (m *MockVisualizer) SetMarkedRegion(_ string, start, end float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Regions = append(m.Regions, [2]float64{start, end})
}

func (m *MockVisualizer) ClearRegions() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Cleared++
}

// LoadCount returns the number of LoadSource calls
func (m *MockVisualizer) LoadCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Loaded)
}

// MockKVStore is a test double for ports.KVStore
type MockKVStore struct {
	mu      sync.Mutex
	PutFunc func(ctx context.Context, key string, value []byte) error
	GetFunc func(ctx context.Context, key string) ([]byte, error)
	Puts    map[string][][]byte
}

func (m *MockKVStore) Put(ctx context.Context, key string, value []byte) error {
	if m.PutFunc != nil {
		if err := m.PutFunc(ctx, key, value); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Puts == nil {
		m.Puts = make(map[string][][]byte)
	}
	m.Puts[key] = append(m.Puts[key], append([]byte(nil), value...))
	return nil
}

func (m *MockKVStore) Get(ctx context.Context, key string) ([]byte, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if v := m.Puts[key]; len(v) > 0 {
		return v[len(v)-1], nil
	}
	return nil, errors.New("not found")
}

// PutCount returns how many times key was written
func (m *MockKVStore) PutCount(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Puts[key])
}

// MockCommitter is a test double for ports.Committer
type MockCommitter struct {
	mu         sync.Mutex
	CommitFunc func(ctx context.Context, assetID string, edit model.CommittedEdit) error
	Commits    []model.CommittedEdit
}

func (m *MockCommitter) Commit(ctx context.Context, assetID string, edit model.CommittedEdit) error {
	if m.CommitFunc != nil {
		if err := m.CommitFunc(ctx, assetID, edit); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Commits = append(m.Commits, edit)
	return nil
}
