package model

import (
	"math"
	"time"
)

// Format represents an encoded output container/codec
type Format string

const (
	FormatWAV  Format = "wav"
	FormatMP3  Format = "mp3"
	FormatOGG  Format = "ogg"
	FormatOpus Format = "opus"
	FormatAAC  Format = "aac"
)

// Extension returns the file extension used for the format
func (f Format) Extension() string {
	switch f {
	case FormatAAC:
		return ".m4a"
	case FormatMP3, FormatOGG, FormatOpus:
		return "." + string(f)
	default:
		return ".wav"
	}
}

// IsLossless reports whether the format never needs an external encoder
func (f Format) IsLossless() bool {
	return f == FormatWAV || f == ""
}

// Quality selects an export preset
type Quality string

const (
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
)

// QualitySettings are the encoder settings behind a quality preset
type QualitySettings struct {
	Bitrate    int // bps
	SampleRate int
	Channels   int
	BitDepth   int // lossless path only
}

// Settings returns the encoder settings for the preset.
// Unknown presets resolve to high.
func (q Quality) Settings() QualitySettings {
	switch q {
	case QualityLow:
		return QualitySettings{Bitrate: 96_000, SampleRate: 22050, Channels: 1, BitDepth: 16}
	case QualityMedium:
		return QualitySettings{Bitrate: 128_000, SampleRate: 44100, Channels: 2, BitDepth: 16}
	default:
		return QualitySettings{Bitrate: 320_000, SampleRate: 48000, Channels: 2, BitDepth: 24}
	}
}

// AudioAsset is an immutable reference to a source recording
type AudioAsset struct {
	ID         string
	URL        string
	Duration   float64 // seconds, 0 when unknown until probed
	SampleRate int     // derived on decode
	Format     string
	Transcript string
}

// AudioMetadata holds metadata of an audio source
type AudioMetadata struct {
	Duration   time.Duration
	SampleRate int
	Channels   int
	Bitrate    int
	Codec      string
	Format     string
	Size       int64
}

// AudioRef is an independently playable local reference produced by the engine
type AudioRef struct {
	URL       string
	Format    Format
	Duration  float64
	Size      int64
	CreatedAt time.Time
}

// IsZero reports whether the reference points nowhere
func (r AudioRef) IsZero() bool { return r.URL == "" }

// Buffer holds decoded PCM audio, one slice per channel, samples in [-1, 1]
type Buffer struct {
	SampleRate int
	Channels   [][]float64
}

// NewBuffer allocates a silent buffer
func NewBuffer(channels, length, sampleRate int) *Buffer {
	b := &Buffer{SampleRate: sampleRate, Channels: make([][]float64, channels)}
	for i := range b.Channels {
		b.Channels[i] = make([]float64, length)
	}
	return b
}

// NumChannels returns the channel count
func (b *Buffer) NumChannels() int { return len(b.Channels) }

// Len returns the per-channel sample count
func (b *Buffer) Len() int {
	if len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Duration returns the buffer length in seconds
func (b *Buffer) Duration() float64 {
	if b.SampleRate <= 0 {
		return 0
	}
	return float64(b.Len()) / float64(b.SampleRate)
}

// Clone returns a deep copy
func (b *Buffer) Clone() *Buffer {
	out := &Buffer{SampleRate: b.SampleRate, Channels: make([][]float64, len(b.Channels))}
	for i, ch := range b.Channels {
		out.Channels[i] = append([]float64(nil), ch...)
	}
	return out
}

// Slice copies samples [start, start+length) of every channel into a new buffer
func (b *Buffer) Slice(start, length int) *Buffer {
	out := NewBuffer(b.NumChannels(), length, b.SampleRate)
	for i, ch := range b.Channels {
		copy(out.Channels[i], ch[start:start+length])
	}
	return out
}

// Peak returns the largest absolute sample value across channels
func (b *Buffer) Peak() float64 {
	var peak float64
	for _, ch := range b.Channels {
		for _, s := range ch {
			if a := math.Abs(s); a > peak {
				peak = a
			}
		}
	}
	return peak
}

// Capabilities is computed once at startup and handed to the engine
type Capabilities struct {
	// Workers is the number of background workers for per-channel work; 0 or 1 runs inline
	Workers int
	// FFmpeg reports whether an external transcoder is usable
	FFmpeg bool
	// OpusDecode reports whether Ogg/Opus sources can be decoded natively
	OpusDecode bool
}

// EncodeOptions configures a single encode call
type EncodeOptions struct {
	Format     Format
	Quality    Quality
	Bitrate    int // bps, overrides the quality preset when set
	SampleRate int
	Channels   int
	BitDepth   int
	Dir        string // output directory, storage default when empty
}

// DefaultEncodeOptions returns WAV at high quality
func DefaultEncodeOptions() *EncodeOptions {
	return &EncodeOptions{Format: FormatWAV, Quality: QualityHigh}
}

// Resolve fills unset fields from the quality preset
func (o EncodeOptions) Resolve() EncodeOptions {
	s := o.Quality.Settings()
	if o.Bitrate <= 0 {
		o.Bitrate = s.Bitrate
	}
	if o.SampleRate <= 0 {
		o.SampleRate = s.SampleRate
	}
	if o.Channels <= 0 {
		o.Channels = s.Channels
	}
	if o.BitDepth <= 0 {
		o.BitDepth = s.BitDepth
	}
	if o.Format == "" {
		o.Format = FormatWAV
	}
	return o
}

// CommittedEdit is what a successful save hands to the owner of the asset.
// All fields are committed together or not at all.
type CommittedEdit struct {
	AudioURL   string
	Transcript string
	// Duration is set only when the trim shortened the asset
	Duration *float64
}
