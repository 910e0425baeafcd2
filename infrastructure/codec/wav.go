// Package codec converts between encoded containers and model.Buffer.
package codec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/Skryldev/audioedit/domain/model"
)

// ErrInvalidWAV is returned for streams without a RIFF/WAVE header
var ErrInvalidWAV = errors.New("invalid WAV file")

// WAV decodes and encodes linear PCM WAV files
type WAV struct{}

// NewWAV returns the WAV codec
func NewWAV() *WAV { return &WAV{} }

// CanDecode reports whether path has a .wav extension
func (w *WAV) CanDecode(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".wav")
}

// Decode reads the whole file into a float buffer
func (w *WAV) Decode(ctx context.Context, r io.ReadSeeker) (*model.Buffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	decoder := wav.NewDecoder(r)
	if !decoder.IsValidFile() {
		return nil, ErrInvalidWAV
	}

	pcm, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("could not read PCM buffer: %w", err)
	}
	if pcm.Format == nil || pcm.Format.NumChannels <= 0 {
		return nil, ErrInvalidWAV
	}

	bitDepth := int(decoder.BitDepth)
	if bitDepth <= 0 {
		bitDepth = 16
	}
	scale := 1 / math.Pow(2, float64(bitDepth-1))

	channels := pcm.Format.NumChannels
	frames := len(pcm.Data) / channels
	buf := model.NewBuffer(channels, frames, pcm.Format.SampleRate)
	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			buf.Channels[c][i] = float64(pcm.Data[i*channels+c]) * scale
		}
	}
	return buf, nil
}

// Encode writes buf as interleaved PCM at bitDepth (16 or 24)
func (w *WAV) Encode(ctx context.Context, dst io.WriteSeeker, buf *model.Buffer, bitDepth int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if bitDepth != 24 {
		bitDepth = 16
	}
	channels := buf.NumChannels()
	if channels == 0 {
		return errors.New("buffer has no channels")
	}

	maxVal := math.Pow(2, float64(bitDepth-1)) - 1
	frames := buf.Len()
	data := make([]int, frames*channels)
	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			s := buf.Channels[c][i]
			if s > 1 {
				s = 1
			} else if s < -1 {
				s = -1
			}
			data[i*channels+c] = int(math.Round(s * maxVal))
		}
	}

	encoder := wav.NewEncoder(dst, buf.SampleRate, bitDepth, channels, 1)
	pcm := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: buf.SampleRate},
		Data:           data,
		SourceBitDepth: bitDepth,
	}
	if err := encoder.Write(pcm); err != nil {
		_ = encoder.Close()
		return fmt.Errorf("data writing error: %w", err)
	}
	return encoder.Close()
}
