package ports

import (
	"context"
	"io"

	"github.com/Skryldev/audioedit/domain/model"
)

// FFmpegExecutor is the abstraction for FFmpeg command execution
type FFmpegExecutor interface {
	// Execute runs an ffmpeg command with the given arguments
	Execute(ctx context.Context, args []string) error

	// Probe runs ffprobe and returns JSON output
	Probe(ctx context.Context, inputPath string) ([]byte, error)
}

// Transcoder converts between encoded files. Implementations are best effort:
// callers must be prepared to fall back when an error is returned.
type Transcoder interface {
	// Transcode encodes a WAV file into the format described by opts
	Transcode(ctx context.Context, inputPath, outputPath string, opts model.EncodeOptions) error

	// DecodeToWAV converts any input ffmpeg understands into 16-bit WAV
	DecodeToWAV(ctx context.Context, inputPath, outputPath string) error

	// ProbeMetadata returns stream metadata without decoding
	ProbeMetadata(ctx context.Context, inputPath string) (*model.AudioMetadata, error)
}

// Decoder turns an encoded stream into PCM
type Decoder interface {
	// CanDecode reports whether the decoder handles the given path
	CanDecode(path string) bool

	// Decode reads the whole stream
	Decode(ctx context.Context, r io.ReadSeeker) (*model.Buffer, error)
}

// Encoder writes PCM as a lossless container. It must always succeed for
// valid buffers and writable destinations.
type Encoder interface {
	Encode(ctx context.Context, w io.WriteSeeker, buf *model.Buffer, bitDepth int) error
}

// WriteSeekCloser is a writable, seekable destination
type WriteSeekCloser interface {
	io.Writer
	io.Seeker
	io.Closer
}

// StorageProvider abstracts filesystem or object storage operations
type StorageProvider interface {
	// Exists checks if a file exists
	Exists(ctx context.Context, path string) (bool, error)

	// Size returns file size in bytes
	Size(ctx context.Context, path string) (int64, error)

	// Remove deletes a file
	Remove(ctx context.Context, path string) error

	// TempFile creates a temporary file and returns its path
	TempFile(ctx context.Context, dir, pattern string) (string, error)

	// Create opens a new temporary file for writing and returns it with its path
	Create(ctx context.Context, dir, pattern string) (WriteSeekCloser, string, error)

	// Open opens a file for reading
	Open(ctx context.Context, path string) (io.ReadSeekCloser, error)
}

// Visualizer is the waveform component the session drives. It never reports
// rendering state back beyond readiness.
type Visualizer interface {
	LoadSource(ref model.AudioRef)
	OnReady(fn func())
	OnError(fn func(error))
	SeekTo(seconds float64)
	SetZoom(factor float64)
	SetMarkedRegion(id string, start, end float64)
	ClearRegions()
}

// KVStore is a transient key/value store used for auto-save
type KVStore interface {
	Put(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// Committer persists a saved edit back to the asset owner
type Committer interface {
	Commit(ctx context.Context, assetID string, edit model.CommittedEdit) error
}

// Option is the functional option type for encoding
type Option func(*model.EncodeOptions)

// WithFormat sets the output format
func WithFormat(f model.Format) Option {
	return func(o *model.EncodeOptions) {
		o.Format = f
	}
}

// WithQuality sets the quality preset
func WithQuality(q model.Quality) Option {
	return func(o *model.EncodeOptions) {
		o.Quality = q
	}
}

// WithBitrate sets the target bitrate in bps
func WithBitrate(bitrate int) Option {
	return func(o *model.EncodeOptions) {
		o.Bitrate = bitrate
	}
}

// WithSampleRate sets the output sample rate
func WithSampleRate(hz int) Option {
	return func(o *model.EncodeOptions) {
		o.SampleRate = hz
	}
}

// WithChannels sets the output channel count
func WithChannels(n int) Option {
	return func(o *model.EncodeOptions) {
		if n > 0 {
			o.Channels = n
		}
	}
}

// WithBitDepth sets the WAV bit depth (16 or 24)
func WithBitDepth(bits int) Option {
	return func(o *model.EncodeOptions) {
		if bits == 16 || bits == 24 {
			o.BitDepth = bits
		}
	}
}

// WithOutputDir places the encoded file in dir
func WithOutputDir(dir string) Option {
	return func(o *model.EncodeOptions) {
		o.Dir = dir
	}
}
