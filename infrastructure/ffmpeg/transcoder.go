package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Skryldev/audioedit/domain/model"
	"github.com/Skryldev/audioedit/domain/ports"
	"github.com/Skryldev/audioedit/pkg/logger"
	"go.uber.org/zap"
)

// ffprobeOutput maps key fields from ffprobe JSON
type ffprobeOutput struct {
	Format struct {
		Duration   string `json:"duration"`
		BitRate    string `json:"bit_rate"`
		Size       string `json:"size"`
		FormatName string `json:"format_name"`
	} `json:"format"`
	Streams []struct {
		CodecType  string `json:"codec_type"`
		CodecName  string `json:"codec_name"`
		SampleRate string `json:"sample_rate"`
		Channels   int    `json:"channels"`
		BitRate    string `json:"bit_rate"`
	} `json:"streams"`
}

// Transcoder implements ports.Transcoder on top of an FFmpegExecutor
type Transcoder struct {
	executor ports.FFmpegExecutor
	log      *logger.Logger
}

// NewTranscoder wraps executor
func NewTranscoder(executor ports.FFmpegExecutor, log *logger.Logger) *Transcoder {
	if log == nil {
		log = logger.Nop()
	}
	return &Transcoder{executor: executor, log: log}
}

// Transcode encodes a WAV input into opts.Format
func (t *Transcoder) Transcode(ctx context.Context, inputPath, outputPath string, opts model.EncodeOptions) error {
	opts = opts.Resolve()
	args := []string{"-y", "-i", inputPath}

	fb := NewFilterChainBuilder().
		AddResample(opts.SampleRate).
		AddChannelLayout(opts.Channels)
	if !fb.IsEmpty() {
		args = append(args, "-af", fb.Build())
	}
	args = append(args, "-ar", fmt.Sprintf("%d", opts.SampleRate), "-ac", fmt.Sprintf("%d", opts.Channels))

	codecArgs, err := buildCodecArgs(opts)
	if err != nil {
		return err
	}
	args = append(args, codecArgs...)
	args = append(args, outputPath)

	t.log.Debug("transcoding",
		zap.String("format", string(opts.Format)),
		zap.Int("bitrate", opts.Bitrate),
	)
	return t.executor.Execute(ctx, args)
}

// DecodeToWAV converts inputPath to 16-bit PCM WAV at outputPath
func (t *Transcoder) DecodeToWAV(ctx context.Context, inputPath, outputPath string) error {
	args := []string{"-y", "-i", inputPath, "-vn", "-c:a", "pcm_s16le", "-f", "wav", outputPath}
	return t.executor.Execute(ctx, args)
}

// ProbeMetadata runs ffprobe and parses the first audio stream
func (t *Transcoder) ProbeMetadata(ctx context.Context, inputPath string) (*model.AudioMetadata, error) {
	data, err := t.executor.Probe(ctx, inputPath)
	if err != nil {
		return nil, err
	}
	return parseProbe(data)
}

func parseProbe(data []byte) (*model.AudioMetadata, error) {
	var probe ffprobeOutput
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	meta := &model.AudioMetadata{
		Format: probe.Format.FormatName,
	}

	var durationSec float64
	if _, err := fmt.Sscanf(probe.Format.Duration, "%f", &durationSec); err == nil {
		meta.Duration = time.Duration(durationSec * float64(time.Second))
	}

	fmt.Sscanf(probe.Format.Size, "%d", &meta.Size)

	for _, s := range probe.Streams {
		if s.CodecType != "" && s.CodecType != "audio" {
			continue
		}
		meta.Codec = s.CodecName
		meta.Channels = s.Channels
		fmt.Sscanf(s.SampleRate, "%d", &meta.SampleRate)
		fmt.Sscanf(s.BitRate, "%d", &meta.Bitrate)
		break // take first audio stream
	}

	return meta, nil
}

func buildCodecArgs(opts model.EncodeOptions) ([]string, error) {
	bitrate := fmt.Sprintf("%dk", opts.Bitrate/1000)

	switch opts.Format {
	case model.FormatMP3:
		return []string{"-c:a", "libmp3lame", "-b:a", bitrate}, nil
	case model.FormatOGG:
		return []string{"-c:a", "libvorbis", "-b:a", bitrate}, nil
	case model.FormatOpus:
		return []string{"-c:a", "libopus", "-vbr", "on", "-b:a", bitrate}, nil
	case model.FormatAAC:
		return []string{"-c:a", "aac", "-b:a", bitrate}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", opts.Format)
	}
}
